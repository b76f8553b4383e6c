package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ResaleScanner/internal/ports"
)

var errUnexpectedShape = errors.New("response is not a success envelope")

// Function pairs a stable role name (used in logs and metrics) with the
// deployment-specific function reference.
type Function struct {
	Role string
	Ref  string
}

// CallObserver records invocation results.
type CallObserver interface {
	ObserveRemoteCall(function, result string, d time.Duration)
	ObserveRefresh(function string)
}

type envelope struct {
	Success      *bool           `json:"success"`
	Result       json.RawMessage `json:"result"`
	ErrorMessage string          `json:"errorMessage"`
	ErrorType    string          `json:"errorType"`
}

// Client invokes remote functions through the shared success envelope.
// It never retries; retry policy belongs to the caller.
type Client struct {
	transport ports.FunctionTransport
	logger    *slog.Logger
	observer  CallObserver
}

// NewClient wires a transport. logger and observer may be nil.
func NewClient(transport ports.FunctionTransport, logger *slog.Logger, observer CallObserver) *Client {
	return &Client{transport: transport, logger: logger, observer: observer}
}

// Call marshals req, invokes fn and decodes the envelope's result into resp.
// resp may be nil when the result is not needed.
func (c *Client) Call(ctx context.Context, fn Function, req, resp any) error {
	if c == nil || c.transport == nil {
		return fmt.Errorf("remote client is not configured")
	}
	if fn.Ref == "" {
		return fmt.Errorf("remote function %s has no reference configured", fn.Role)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", fn.Role, err)
	}

	start := time.Now()
	res, err := c.transport.Invoke(ctx, fn.Ref, payload)
	if err != nil {
		err = &TransportFailure{Function: fn.Ref, Err: err}
	} else {
		err = decodeEnvelope(fn, res, resp)
	}
	elapsed := time.Since(start)

	result := resultLabel(err)
	if c.observer != nil {
		c.observer.ObserveRemoteCall(fn.Role, result, elapsed)
	}
	c.debug("remote call", "function", fn.Role, "result", result, "duration_ms", elapsed.Milliseconds())
	return err
}

// Refresh asks the runtime to reinitialise fn. Failures are logged and dropped.
func (c *Client) Refresh(ctx context.Context, fn Function) {
	if c == nil || c.transport == nil {
		return
	}
	if c.observer != nil {
		c.observer.ObserveRefresh(fn.Role)
	}
	if err := c.transport.Refresh(ctx, fn.Ref); err != nil && c.logger != nil {
		c.logger.Warn("function refresh failed", "function", fn.Role, "error", err)
	}
}

func decodeEnvelope(fn Function, res ports.InvokeResult, out any) error {
	raw := string(res.Payload)
	if res.FunctionError != "" {
		return &TransportFailure{Function: fn.Ref, Raw: raw, Err: errors.New(res.FunctionError)}
	}

	var env envelope
	if err := json.Unmarshal(res.Payload, &env); err != nil {
		return &TransportFailure{Function: fn.Ref, Raw: raw, Err: err}
	}
	if env.ErrorMessage != "" {
		return &TransportFailure{Function: fn.Ref, Raw: raw}
	}
	if env.Success == nil {
		return &TransportFailure{Function: fn.Ref, Raw: raw, Err: errUnexpectedShape}
	}
	if !*env.Success {
		return &BusinessFailure{Function: fn.Ref}
	}

	if out == nil {
		return nil
	}
	if len(env.Result) == 0 {
		return fmt.Errorf("%w: %s returned no result", ErrMalformedResult, fn.Role)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResult, fn.Role, err)
	}
	return nil
}

func resultLabel(err error) string {
	var transport *TransportFailure
	var business *BusinessFailure
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &transport):
		return "transport_failure"
	case errors.As(err, &business):
		return "business_failure"
	default:
		return "error"
	}
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
