// report-gen Lambda consumes SQS batches of tester visits and, for each visit,
// renders the ATF report and e-mails it to the test station and the tester.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"

	intlambda "github.com/dwsmith1983/atfreport/internal/lambda"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

// handleEvent processes one SQS invocation. An empty event fails the whole
// invocation; otherwise failed messages are reported back as batch item
// failures.
func handleEvent(ctx context.Context, d *intlambda.Deps, raw json.RawMessage) (events.SQSEventResponse, error) {
	defer func() {
		if err := d.Telemetry.Flush(ctx); err != nil {
			d.Logger.Warn("telemetry flush failed", "error", err)
		}
	}()
	return d.Dispatcher.Handle(ctx, raw)
}

func handler(ctx context.Context, raw json.RawMessage) (events.SQSEventResponse, error) {
	d, err := getDeps()
	if err != nil {
		slog.Error("init failed", "error", err)
		return events.SQSEventResponse{}, err
	}
	return handleEvent(ctx, d, raw)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
