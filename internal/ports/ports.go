package ports

import (
	"context"

	"ResaleScanner/internal/domain"
)

// InvokeResult is the raw outcome of one remote function invocation.
// FunctionError is set when the runtime reports an execution-level failure.
type InvokeResult struct {
	Payload       []byte
	FunctionError string
}

// FunctionTransport executes named remote functions (AWS Lambda in production).
type FunctionTransport interface {
	Invoke(ctx context.Context, function string, payload []byte) (InvokeResult, error)
	// Refresh forces the function to reinitialise after it misbehaved.
	Refresh(ctx context.Context, function string) error
}

// RecordStore persists processing records for deduplication and audit.
type RecordStore interface {
	// BatchGet returns the records that exist; absent keys are not an error.
	// Callers must not pass more than BatchLimit keys.
	BatchGet(ctx context.Context, keys []string) (map[string]domain.Record, error)
	Upsert(ctx context.Context, req domain.UpsertRequest) error
	BatchLimit() int
}
