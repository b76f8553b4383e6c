package lambda

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"

	"ResaleScanner/internal/ports"
)

// API is the subset of the Lambda client the transport uses.
type API interface {
	Invoke(ctx context.Context, params *awslambda.InvokeInput, optFns ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error)
	UpdateFunctionConfiguration(ctx context.Context, params *awslambda.UpdateFunctionConfigurationInput, optFns ...func(*awslambda.Options)) (*awslambda.UpdateFunctionConfigurationOutput, error)
}

// Transport invokes Lambda functions synchronously.
type Transport struct {
	api API
}

var _ ports.FunctionTransport = (*Transport)(nil)

// New wraps an existing Lambda client.
func New(api API) *Transport {
	return &Transport{api: api}
}

// NewFromConfig builds a Lambda client; endpoint overrides the service URL
// (LocalStack and similar) when non-empty.
func NewFromConfig(cfg aws.Config, endpoint string) *Transport {
	client := awslambda.NewFromConfig(cfg, func(o *awslambda.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return New(client)
}

// Invoke runs function with payload and returns its raw response.
func (t *Transport) Invoke(ctx context.Context, function string, payload []byte) (ports.InvokeResult, error) {
	out, err := t.api.Invoke(ctx, &awslambda.InvokeInput{
		FunctionName: aws.String(function),
		Payload:      payload,
	})
	if err != nil {
		return ports.InvokeResult{}, fmt.Errorf("invoke %s: %w", function, err)
	}
	return ports.InvokeResult{
		Payload:       out.Payload,
		FunctionError: aws.ToString(out.FunctionError),
	}, nil
}

// Refresh rewrites the function description with a random value. Any
// configuration update makes Lambda discard warm execution environments.
func (t *Transport) Refresh(ctx context.Context, function string) error {
	_, err := t.api.UpdateFunctionConfiguration(ctx, &awslambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(function),
		Description:  aws.String(strconv.FormatFloat(rand.Float64(), 'f', -1, 64)),
	})
	if err != nil {
		return fmt.Errorf("refresh %s: %w", function, err)
	}
	return nil
}
