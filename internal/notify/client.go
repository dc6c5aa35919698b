package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v4"
)

// DefaultBaseURL is the GOV.UK Notify API endpoint.
const DefaultBaseURL = "https://api.notifications.service.gov.uk"

const (
	emailPath = "/v2/notifications/email"
	// API keys end with "-<service id>-<secret>", both UUIDs.
	uuidLen = 36
)

// ErrInvalidAPIKey is returned for keys that do not carry a service id and
// secret.
var ErrInvalidAPIKey = errors.New("invalid Notify API key")

// EmailResponse is the subset of the Notify send-email response we log.
type EmailResponse struct {
	ID        string `json:"id"`
	Reference string `json:"reference"`
}

type emailRequest struct {
	EmailAddress    string            `json:"email_address"`
	TemplateID      string            `json:"template_id"`
	Personalisation map[string]string `json:"personalisation,omitempty"`
	Reference       string            `json:"reference,omitempty"`
}

type apiErrors struct {
	StatusCode int `json:"status_code"`
	Errors     []struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Client is a minimal GOV.UK Notify API client.
type Client struct {
	http      *resty.Client
	serviceID string
	secret    []byte
	now       func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different Notify endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.http.SetBaseURL(u) }
}

// WithHTTPTimeout sets the per-request timeout.
func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithRetryCount sets how many times a request failing to connect, or
// answered with a 429 or a 5xx, is retried.
func WithRetryCount(n int) ClientOption {
	return func(c *Client) { c.http.SetRetryCount(n) }
}

// NewClient creates a Client from a Notify API key.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	serviceID, secret, err := parseAPIKey(apiKey)
	if err != nil {
		return nil, err
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			AddRetryCondition(retryCondition),
		serviceID: serviceID,
		secret:    []byte(secret),
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func parseAPIKey(key string) (serviceID, secret string, err error) {
	if len(key) < 2*uuidLen+1 {
		return "", "", ErrInvalidAPIKey
	}
	secret = key[len(key)-uuidLen:]
	serviceID = key[len(key)-2*uuidLen-1 : len(key)-uuidLen-1]
	if key[len(key)-uuidLen-1] != '-' {
		return "", "", ErrInvalidAPIKey
	}
	return serviceID, secret, nil
}

// retryCondition retries throttling, server errors and failures to connect.
// Other transport errors, timeouts included, may follow a send Notify already
// accepted, so they are not retried.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return isDialError(err)
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == 429 || code >= 500
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func (c *Client) token() (string, error) {
	claims := jwt.MapClaims{
		"iss": c.serviceID,
		"iat": c.now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// SendEmail sends one templated e-mail. A non-2xx response is returned as a
// *NotifyError.
func (c *Client) SendEmail(
	ctx context.Context,
	templateID, emailAddress string,
	personalisation map[string]string,
	reference string,
) (*EmailResponse, error) {
	token, err := c.token()
	if err != nil {
		return nil, fmt.Errorf("signing Notify token: %w", err)
	}

	var (
		out     EmailResponse
		failure apiErrors
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(emailRequest{
			EmailAddress:    emailAddress,
			TemplateID:      templateID,
			Personalisation: personalisation,
			Reference:       reference,
		}).
		SetResult(&out).
		SetError(&failure).
		Post(emailPath)
	if err != nil {
		return nil, &NotifyError{Recipient: emailAddress, Message: "sending e-mail", Err: err}
	}
	if resp.IsError() {
		msg := resp.Status()
		if len(failure.Errors) > 0 {
			msg = failure.Errors[0].Error + ": " + failure.Errors[0].Message
		}
		return nil, &NotifyError{Recipient: emailAddress, StatusCode: resp.StatusCode(), Message: msg}
	}
	return &out, nil
}
