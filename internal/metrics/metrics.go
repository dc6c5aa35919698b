// Package metrics records report generator counters through OpenTelemetry.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

// Instrument names.
const (
	MessagesProcessed = "atf_report.messages_processed"
	MessagesFailed    = "atf_report.messages_failed"
	MessageDuration   = "atf_report.message_duration"
	ReportsUploaded   = "atf_report.reports_uploaded"
	NotificationsSent = "atf_report.notifications_sent"
)

// Recorder records per-message outcomes. A nil *Recorder records nothing.
type Recorder struct {
	processed     metric.Int64Counter
	failed        metric.Int64Counter
	duration      metric.Float64Histogram
	uploaded      metric.Int64Counter
	notifications metric.Int64Counter
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Recorder, error) {
	var (
		r   Recorder
		err error
	)
	if r.processed, err = meter.Int64Counter(MessagesProcessed,
		metric.WithDescription("Messages that produced a report and notification")); err != nil {
		return nil, fmt.Errorf("creating %s: %w", MessagesProcessed, err)
	}
	if r.failed, err = meter.Int64Counter(MessagesFailed,
		metric.WithDescription("Messages that failed, by stage")); err != nil {
		return nil, fmt.Errorf("creating %s: %w", MessagesFailed, err)
	}
	if r.duration, err = meter.Float64Histogram(MessageDuration,
		metric.WithDescription("Per-message processing time"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating %s: %w", MessageDuration, err)
	}
	if r.uploaded, err = meter.Int64Counter(ReportsUploaded,
		metric.WithDescription("Report spreadsheets written to S3")); err != nil {
		return nil, fmt.Errorf("creating %s: %w", ReportsUploaded, err)
	}
	if r.notifications, err = meter.Int64Counter(NotificationsSent,
		metric.WithDescription("Notification batches delivered, by recipient kind")); err != nil {
		return nil, fmt.Errorf("creating %s: %w", NotificationsSent, err)
	}
	return &r, nil
}

// MessageProcessed records a successful message.
func (r *Recorder) MessageProcessed(ctx context.Context, d time.Duration) {
	if r == nil {
		return
	}
	r.processed.Add(ctx, 1)
	r.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", "ok")))
}

// MessageFailed records a failed message and the stage it failed in.
func (r *Recorder) MessageFailed(ctx context.Context, stage types.Stage, d time.Duration) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("stage", string(stage)))
	r.failed.Add(ctx, 1, attrs)
	r.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", "failed")))
}

// ReportUploaded records an upload.
func (r *Recorder) ReportUploaded(ctx context.Context) {
	if r == nil {
		return
	}
	r.uploaded.Add(ctx, 1)
}

// NotificationSent records a delivered notification to recipient ("station"
// or "tester").
func (r *Recorder) NotificationSent(ctx context.Context, recipient string) {
	if r == nil {
		return
	}
	r.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("recipient", recipient)))
}
