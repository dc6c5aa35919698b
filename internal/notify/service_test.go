package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

type sentEmail struct {
	templateID string
	email      string
	reference  string
}

type mockSender struct {
	sent []sentEmail
	errs map[string]error
}

func (m *mockSender) SendEmail(_ context.Context, templateID, email string, _ map[string]string, reference string) (*EmailResponse, error) {
	m.sent = append(m.sent, sentEmail{templateID: templateID, email: email, reference: reference})
	if err := m.errs[email]; err != nil {
		return nil, err
	}
	return &EmailResponse{ID: "n-" + email}, nil
}

func TestService_SendsToEveryRecipient(t *testing.T) {
	sender := &mockSender{}
	s := NewService(sender, "template-1", nil)

	err := s.SendNotification(context.Background(), map[string]string{"testStationPNumber": "P1"},
		[]string{"a@example.com", "b@example.com"}, "activity-1")
	require.NoError(t, err)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "a@example.com", sender.sent[0].email)
	assert.Equal(t, "b@example.com", sender.sent[1].email)
	assert.Equal(t, "template-1", sender.sent[0].templateID)
	assert.True(t, strings.HasPrefix(sender.sent[0].reference, "activity-1-"))
	assert.NotEqual(t, sender.sent[0].reference, sender.sent[1].reference)
}

func TestService_AttemptsAllAndJoinsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sender := &mockSender{errs: map[string]error{
		"a@example.com": &NotifyError{Recipient: "a@example.com", StatusCode: 400, Message: "BadRequestError: bad"},
		"c@example.com": errors.New("connection reset"),
	}}
	s := NewService(sender, "template-1", logger)

	err := s.SendNotification(context.Background(), map[string]string{},
		[]string{"a@example.com", "b@example.com", "c@example.com"}, "activity-1")
	require.Error(t, err)
	assert.Len(t, sender.sent, 3)
	assert.ErrorIs(t, err, types.ErrNotificationDeliveryFailed)
	assert.Contains(t, err.Error(), "400 BadRequestError: bad")
	assert.Contains(t, err.Error(), "connection reset")

	var ne *NotifyError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, 400, ne.StatusCode)
	assert.Equal(t, 2, strings.Count(buf.String(), `"msg":"notification failed"`))
	assert.Equal(t, 1, strings.Count(buf.String(), `"msg":"notification sent"`))
}

func TestService_NoRecipients(t *testing.T) {
	sender := &mockSender{}
	require.NoError(t, NewService(sender, "t", nil).SendNotification(context.Background(), nil, nil, "a"))
	assert.Empty(t, sender.sent)
}
