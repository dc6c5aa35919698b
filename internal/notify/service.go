package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

// EmailSender is the subset of Client used by Service.
type EmailSender interface {
	SendEmail(ctx context.Context, templateID, emailAddress string, personalisation map[string]string, reference string) (*EmailResponse, error)
}

// Service sends the ATF report e-mail to a list of recipients.
type Service struct {
	sender     EmailSender
	templateID string
	logger     *slog.Logger
}

// NewService creates a Service sending templateID through sender.
func NewService(sender EmailSender, templateID string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sender: sender, templateID: templateID, logger: logger}
}

// SendNotification sends personalisation to every recipient. Every recipient
// is attempted; failures are joined and match
// types.ErrNotificationDeliveryFailed.
func (s *Service) SendNotification(ctx context.Context, personalisation map[string]string, recipients []string, activityID string) error {
	var errs []error
	for _, email := range recipients {
		reference := fmt.Sprintf("%s-%s", activityID, ulid.Make())
		resp, err := s.sender.SendEmail(ctx, s.templateID, email, personalisation, reference)
		if err != nil {
			s.logger.Error("notification failed",
				"activityId", activityID,
				"testStationPNumber", personalisation["testStationPNumber"],
				"reference", reference,
				"error", err,
			)
			var ne *NotifyError
			if !errors.As(err, &ne) {
				err = &NotifyError{Recipient: email, Message: "sending e-mail", Err: err}
			}
			errs = append(errs, err)
			continue
		}
		s.logger.Info("notification sent",
			"activityId", activityID,
			"testStationPNumber", personalisation["testStationPNumber"],
			"reference", reference,
			"notificationId", resp.ID,
		)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", types.ErrNotificationDeliveryFailed, errors.Join(errs...))
}
