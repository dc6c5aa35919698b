// Package invoke calls the downstream CVS services, which are Lambda functions
// fronted by an API-Gateway-shaped request/response envelope.
package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "atfreport.invoke"

// LambdaAPI is the subset of the Lambda client used by the invoker.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *awslambda.InvokeInput, optFns ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error)
}

// Request is the proxy event sent to a downstream function.
type Request struct {
	HTTPMethod            string            `json:"httpMethod"`
	Path                  string            `json:"path"`
	QueryStringParameters map[string]string `json:"queryStringParameters,omitempty"`
	PathParameters        map[string]string `json:"pathParameters,omitempty"`
}

// Response is the proxy result returned by a downstream function.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Invoker sends Requests to named Lambda functions. Each function gets its own
// circuit breaker so one unhealthy dependency does not trip the others.
type Invoker struct {
	client   LambdaAPI
	timeout  time.Duration
	settings BreakerSettings
	logger   *slog.Logger
	breakers map[string]*gobreaker.CircuitBreaker
}

// BreakerSettings configures the per-function circuit breakers.
type BreakerSettings struct {
	FailThreshold uint32        // consecutive failures before opening (default 5)
	Cooldown      time.Duration // how long to stay open before half-open (default 30s)
	FailWindow    time.Duration // closed-state counter reset interval (default 60s)
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithTimeout bounds each invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) { i.timeout = d }
}

// WithBreakerSettings overrides the circuit breaker defaults.
func WithBreakerSettings(s BreakerSettings) Option {
	return func(i *Invoker) { i.settings = s }
}

// WithLogger sets the logger used for breaker state changes.
func WithLogger(l *slog.Logger) Option {
	return func(i *Invoker) { i.logger = l }
}

// New creates an Invoker for the given functions. Breakers are built up front
// so the Invoker is safe for concurrent use without locking.
func New(client LambdaAPI, functions []string, opts ...Option) *Invoker {
	inv := &Invoker{
		client: client,
		settings: BreakerSettings{
			FailThreshold: 5,
			Cooldown:      30 * time.Second,
			FailWindow:    60 * time.Second,
		},
		logger:   slog.Default(),
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(functions)),
	}
	for _, o := range opts {
		o(inv)
	}
	for _, fn := range functions {
		inv.breakers[fn] = inv.newBreaker(fn)
	}
	return inv
}

func (inv *Invoker) newBreaker(function string) *gobreaker.CircuitBreaker {
	threshold := inv.settings.FailThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     function,
		Interval: inv.settings.FailWindow,
		Timeout:  inv.settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			inv.logger.Warn("lambda circuit state changed", "function", name, "from", from.String(), "to", to.String())
		},
	})
}

// Invoke calls function synchronously with req and returns the validated
// response. A 404 from the function is returned as an empty 200.
func (inv *Invoker) Invoke(ctx context.Context, function string, req Request) (*Response, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "lambda.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("faas.invoked_name", function),
			attribute.String("http.route", req.Path),
		),
	)
	defer span.End()

	resp, err := inv.invoke(ctx, function, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

func (inv *Invoker) invoke(ctx context.Context, function string, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request for %s: %w", function, err)
	}

	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	call := func() (interface{}, error) {
		return inv.client.Invoke(ctx, &awslambda.InvokeInput{
			FunctionName:   aws.String(function),
			InvocationType: lambdatypes.InvocationTypeRequestResponse,
			LogType:        lambdatypes.LogTypeTail,
			Payload:        payload,
		})
	}

	var out interface{}
	if cb, ok := inv.breakers[function]; ok {
		out, err = cb.Execute(call)
	} else {
		out, err = call()
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &RemoteLookupError{Function: function, Message: "circuit open", Err: err}
		}
		return nil, &RemoteLookupError{Function: function, Message: "invoke failed", Err: err}
	}

	return ValidateResponse(function, out.(*awslambda.InvokeOutput))
}

// ValidateResponse applies the downstream contract to a raw invocation result:
// an error status or empty payload fails, an inner status of 400 or above
// fails unless it is exactly 404, a missing body fails, and 404 becomes an
// empty 200.
func ValidateResponse(function string, out *awslambda.InvokeOutput) (*Response, error) {
	if out == nil {
		return nil, &RemoteLookupError{Function: function, Message: "Lambda invocation returned no output."}
	}
	if len(out.Payload) == 0 || out.StatusCode >= 400 {
		return nil, &RemoteLookupError{
			Function:   function,
			StatusCode: int(out.StatusCode),
			Message:    fmt.Sprintf("Lambda invocation returned error: %d with empty payload.", out.StatusCode),
		}
	}
	if out.FunctionError != nil {
		return nil, &RemoteLookupError{
			Function:   function,
			StatusCode: int(out.StatusCode),
			Body:       string(out.Payload),
			Message:    fmt.Sprintf("Lambda invocation returned function error: %s %s", *out.FunctionError, out.Payload),
		}
	}

	var raw struct {
		StatusCode int              `json:"statusCode"`
		Body       *json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(out.Payload, &raw); err != nil {
		return nil, &RemoteLookupError{
			Function: function,
			Body:     string(out.Payload),
			Message:  fmt.Sprintf("Lambda invocation returned bad data: %s.", out.Payload),
			Err:      err,
		}
	}

	body := decodeBody(raw.Body)
	if raw.StatusCode >= 400 && raw.StatusCode != 404 {
		return nil, &RemoteLookupError{
			Function:   function,
			StatusCode: raw.StatusCode,
			Body:       body,
			Message:    fmt.Sprintf("Lambda invocation returned error: %d %s", raw.StatusCode, body),
		}
	}
	if raw.StatusCode == 404 {
		return &Response{StatusCode: 200, Body: "[]"}, nil
	}
	if body == "" {
		return nil, &RemoteLookupError{
			Function:   function,
			StatusCode: raw.StatusCode,
			Message:    fmt.Sprintf("Lambda invocation returned bad data: %s.", out.Payload),
		}
	}
	return &Response{StatusCode: raw.StatusCode, Body: body}, nil
}

// decodeBody returns the proxy body as a string. Proxy bodies are normally
// JSON-encoded strings, but some functions return the document inline.
func decodeBody(raw *json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(*raw, &s); err == nil {
		return s
	}
	if string(*raw) == "null" {
		return ""
	}
	return string(*raw)
}
