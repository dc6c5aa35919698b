// Package dispatch drives each queued visit through fetch, timeline build,
// render and delivery, isolating failures per message.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/atfreport/internal/lookup"
	"github.com/dwsmith1983/atfreport/internal/metrics"
	"github.com/dwsmith1983/atfreport/internal/timeline"
	"github.com/dwsmith1983/atfreport/pkg/types"
)

const tracerName = "atfreport.dispatch"

// Fetcher retrieves the remote data a report is built from.
type Fetcher interface {
	FetchTimelineInputs(ctx context.Context, visit types.Visit) (lookup.TimelineInputs, error)
	GetTestStationEmails(ctx context.Context, pNumber string) ([]types.StationEmails, error)
}

// Renderer produces the spreadsheet artifact.
type Renderer interface {
	Render(visit types.Visit, events []types.ActivityEvent) (*types.ReportArtifact, error)
}

// Composer produces the notification personalisation.
type Composer interface {
	Compose(visit types.Visit, events []types.ActivityEvent) (*types.NotificationPayload, error)
}

// Uploader stores the spreadsheet artifact.
type Uploader interface {
	Upload(ctx context.Context, artifact *types.ReportArtifact) error
}

// Notifier sends the notification to a list of recipients.
type Notifier interface {
	SendNotification(ctx context.Context, personalisation map[string]string, recipients []string, activityID string) error
}

// Dispatcher processes SQS messages carrying visits.
type Dispatcher struct {
	fetcher  Fetcher
	renderer Renderer
	composer Composer
	notifier Notifier
	uploader Uploader
	logger   *slog.Logger
	metrics  *metrics.Recorder
	mode     types.BatchMode
	workers  int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithUploader enables rendering and upload of the spreadsheet. Without an
// uploader only the notification is produced.
func WithUploader(u Uploader) Option {
	return func(d *Dispatcher) { d.uploader = u }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithBatchMode selects partial-failure reporting or fail-fast.
func WithBatchMode(m types.BatchMode) Option {
	return func(d *Dispatcher) { d.mode = m }
}

// WithWorkers bounds how many messages of a batch are processed at once.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) { d.workers = n }
}

// New creates a Dispatcher.
func New(fetcher Fetcher, renderer Renderer, composer Composer, notifier Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		fetcher:  fetcher,
		renderer: renderer,
		composer: composer,
		notifier: notifier,
		logger:   slog.Default(),
		mode:     types.BatchPartial,
		workers:  4,
	}
	for _, o := range opts {
		o(d)
	}
	if d.workers < 1 {
		d.workers = 1
	}
	return d
}

// Handle decodes a raw SQS invocation payload and processes the batch. Only
// an empty event, or any failure in fail-fast mode, fails the invocation.
func (d *Dispatcher) Handle(ctx context.Context, raw json.RawMessage) (events.SQSEventResponse, error) {
	event, err := DecodeBatch(raw)
	if err != nil {
		d.logger.Error("rejecting invocation", "error", err)
		return events.SQSEventResponse{}, err
	}
	return d.ProcessBatch(ctx, event)
}

// ProcessBatch processes every message of the batch concurrently. In partial
// mode failed message ids are returned in input order; in fail-fast mode the
// first failure is returned and the remaining messages are cancelled.
func (d *Dispatcher) ProcessBatch(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	invocationID := ulid.Make().String()
	logger := d.logger.With("invocationId", invocationID)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "sqs.batch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("invocation.id", invocationID),
			attribute.Int("messaging.batch.message_count", len(event.Records)),
		),
	)
	defer span.End()

	logger.Info("processing batch", "messages", len(event.Records), "mode", string(d.mode))

	failed := make([]bool, len(event.Records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i := range event.Records {
		msg := event.Records[i]
		g.Go(func() error {
			if d.mode == types.BatchFailFast {
				if err := gctx.Err(); err != nil {
					return err
				}
			}
			err := d.process(gctx, logger, msg)
			if err == nil {
				return nil
			}
			failed[i] = true
			if d.mode == types.BatchFailFast {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("batch aborted", "error", err)
		return events.SQSEventResponse{}, err
	}

	var resp events.SQSEventResponse
	for i, f := range failed {
		if f {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: event.Records[i].MessageId,
			})
		}
	}
	span.SetAttributes(attribute.Int("messaging.batch.failed_count", len(resp.BatchItemFailures)))
	logger.Info("batch complete",
		"messages", len(event.Records),
		"failed", len(resp.BatchItemFailures))
	return resp, nil
}

// Process runs one message through every stage. Failures are returned as a
// *StageError.
func (d *Dispatcher) Process(ctx context.Context, msg events.SQSMessage) error {
	return d.process(ctx, d.logger, msg)
}

func (d *Dispatcher) process(ctx context.Context, logger *slog.Logger, msg events.SQSMessage) error {
	start := time.Now()
	logger = logger.With("messageId", msg.MessageId)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "atf.report",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("messaging.message.id", msg.MessageId)),
	)
	defer span.End()

	activityID, stage, err := d.run(ctx, logger, msg)
	if err != nil {
		serr := &StageError{MessageID: msg.MessageId, ActivityID: activityID, Stage: stage, Err: err}
		span.RecordError(serr)
		span.SetStatus(codes.Error, serr.Error())
		span.SetAttributes(attribute.String("atf.stage", string(stage)))
		logger.Error("message failed",
			"activityId", activityID,
			"stage", string(stage),
			"error", err)
		d.metrics.MessageFailed(ctx, stage, time.Since(start))
		return serr
	}

	d.metrics.MessageProcessed(ctx, time.Since(start))
	logger.Info("message processed", "activityId", activityID, "stage", string(types.StageDone))
	return nil
}

// run executes the stages in order and reports the stage that failed.
func (d *Dispatcher) run(ctx context.Context, logger *slog.Logger, msg events.SQSMessage) (string, types.Stage, error) {
	visit, err := ParseVisit(msg.Body)
	if err != nil {
		return "", types.StageParse, err
	}
	logger = logger.With("activityId", visit.ID)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("atf.activity_id", visit.ID))

	inputs, err := d.fetcher.FetchTimelineInputs(ctx, visit)
	if err != nil {
		return visit.ID, types.StageFetch, err
	}

	tl := timeline.Build(logger, inputs.TestResults, inputs.WaitActivities)
	logger.Debug("timeline built", "events", len(tl), "tests", timeline.CountTests(tl))

	var artifact *types.ReportArtifact
	if d.uploader != nil {
		if artifact, err = d.renderer.Render(visit, tl); err != nil {
			return visit.ID, types.StageRender, err
		}
	}
	payload, err := d.composer.Compose(visit, tl)
	if err != nil {
		return visit.ID, types.StageRender, err
	}

	if err := d.deliver(ctx, logger, visit, artifact, payload); err != nil {
		return visit.ID, types.StageDeliver, err
	}
	return visit.ID, types.StageDone, nil
}

// deliver uploads the artifact concurrently with the station lookup and the
// notifications. Station recipients are notified before the tester.
func (d *Dispatcher) deliver(ctx context.Context, logger *slog.Logger, visit types.Visit, artifact *types.ReportArtifact, payload *types.NotificationPayload) error {
	var uploadErr, notifyErr error
	var g errgroup.Group

	if artifact != nil {
		g.Go(func() error {
			if uploadErr = d.uploader.Upload(ctx, artifact); uploadErr == nil {
				d.metrics.ReportUploaded(ctx)
			}
			return nil
		})
	}
	g.Go(func() error {
		notifyErr = d.notify(ctx, logger, visit, payload)
		return nil
	})
	_ = g.Wait()

	return errors.Join(uploadErr, notifyErr)
}

func (d *Dispatcher) notify(ctx context.Context, logger *slog.Logger, visit types.Visit, payload *types.NotificationPayload) error {
	personalisation := payload.Personalisation()

	records, err := d.fetcher.GetTestStationEmails(ctx, visit.TestStationPNumber)
	if err != nil {
		return fmt.Errorf("getting test station e-mails: %w", err)
	}

	var errs []error
	if station := stationRecipients(records); len(station) > 0 {
		if err := d.notifier.SendNotification(ctx, personalisation, station, visit.ID); err != nil {
			errs = append(errs, err)
		} else {
			d.metrics.NotificationSent(ctx, "station")
		}
	} else {
		logger.Info("no test station e-mail addresses, skipping station notification",
			"testStationPNumber", visit.TestStationPNumber)
	}

	if email := strings.TrimSpace(visit.TesterEmail); email != "" {
		if err := d.notifier.SendNotification(ctx, personalisation, []string{email}, visit.ID); err != nil {
			errs = append(errs, err)
		} else {
			d.metrics.NotificationSent(ctx, "tester")
		}
	} else {
		logger.Info("visit has no tester e-mail, skipping tester notification")
	}
	return errors.Join(errs...)
}

// stationRecipients flattens the lookup records into a de-duplicated list of
// non-blank addresses.
func stationRecipients(records []types.StationEmails) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		for _, e := range r.TestStationEmails {
			e = strings.TrimSpace(e)
			if e == "" || seen[e] {
				continue
			}
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}
