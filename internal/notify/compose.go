// Package notify builds the ATF report e-mail personalisation and delivers it
// through GOV.UK Notify.
package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dwsmith1983/atfreport/internal/datefmt"
	"github.com/dwsmith1983/atfreport/pkg/types"
)

const divider = "\n---\n"

// Composer projects a visit timeline into a notification payload.
type Composer struct {
	formatter datefmt.Formatter
}

// NewComposer creates a Composer that formats timestamps with formatter.
func NewComposer(formatter datefmt.Formatter) *Composer {
	return &Composer{formatter: formatter}
}

// Compose builds the personalisation for a visit. activityDetails holds one
// paragraph per event, separated by a divider line.
func (c *Composer) Compose(visit types.Visit, events []types.ActivityEvent) (*types.NotificationPayload, error) {
	startDate, err := c.formatter.Date(visit.StartTime)
	if err != nil {
		return nil, malformed("visit startTime", err)
	}
	startTime, err := c.formatter.Time(visit.StartTime)
	if err != nil {
		return nil, malformed("visit startTime", err)
	}
	endTime, err := c.formatter.Time(visit.EndTime)
	if err != nil {
		return nil, malformed("visit endTime", err)
	}

	activityType := types.LabelWaitTime
	if visit.ActivityType == types.ActivityVisit {
		activityType = types.LabelTest
	}

	var details strings.Builder
	for i, ev := range events {
		var (
			para string
			err  error
		)
		switch ev.Kind {
		case types.EventTest:
			para, err = c.testParagraph(ev.Test)
		case types.EventWait:
			para, err = c.waitParagraph(ev.Wait)
		default:
			err = fmt.Errorf("%w: unknown event kind %q", types.ErrMalformedActivityEvent, ev.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		details.WriteString(para)
		if i < len(events)-1 {
			details.WriteString(divider)
		} else {
			details.WriteString("\n")
		}
	}

	return &types.NotificationPayload{
		TestStationPNumber: visit.TestStationPNumber,
		TesterName:         visit.TesterName,
		StartTimeDate:      startDate,
		StartTime:          startTime,
		EndTime:            endTime,
		TestStationName:    visit.TestStationName,
		ActivityType:       activityType,
		ActivityDetails:    details.String(),
	}, nil
}

func (c *Composer) testParagraph(unit *types.TestUnit) (string, error) {
	if unit == nil {
		return "", fmt.Errorf("%w: test event has no test result", types.ErrMalformedActivityEvent)
	}
	tt := unit.TestType
	timeRange, err := c.timeRange(tt.TestTypeStartTimestamp, tt.TestTypeEndTimestamp)
	if err != nil {
		return "", err
	}
	var seatsOrAxles string
	if n, ok := unit.SeatsOrAxles(); ok {
		seatsOrAxles = strconv.Itoa(n)
	}

	lines := []string{
		fmt.Sprintf("^#%s (%s)", types.LabelTest, unit.VehicleID()),
		"^• Time: " + timeRange,
		"^• Test description: " + tt.Description(),
		"^• Axles / Seats: " + seatsOrAxles,
		"^• Result: " + capitalise(tt.TestResult),
	}
	if tt.CertificateNumber != "" {
		lines = append(lines, "^• Certificate number: "+tt.CertificateNumber)
	}
	if tt.IsCOIFWithAnnualTest() && tt.SecondaryCertificateNumber != "" {
		lines = append(lines, "^• Secondary certificate number: "+tt.SecondaryCertificateNumber)
	}
	if tt.TestExpiryDate != "" {
		expiry, err := c.formatter.Date(tt.TestExpiryDate)
		if err != nil {
			return "", malformed("testExpiryDate", err)
		}
		lines = append(lines, "^• Expiry date: "+expiry)
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Composer) waitParagraph(wait *types.WaitActivity) (string, error) {
	if wait == nil {
		return "", fmt.Errorf("%w: wait event has no wait activity", types.ErrMalformedActivityEvent)
	}
	timeRange, err := c.timeRange(wait.StartTime, wait.EndTime)
	if err != nil {
		return "", err
	}
	lines := []string{
		"^#" + types.LabelTimeNotTesting,
		"^• Time: " + timeRange,
		"^• Reason for waiting: " + strings.Join(wait.WaitReason, ", "),
	}
	if wait.Notes != "" {
		lines = append(lines, "^• Notes: "+wait.Notes)
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Composer) timeRange(start, end string) (string, error) {
	from, err := c.formatter.Time(start)
	if err != nil {
		return "", malformed("start time", err)
	}
	to, err := c.formatter.Time(end)
	if err != nil {
		return "", malformed("end time", err)
	}
	return from + " - " + to, nil
}

func malformed(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", types.ErrMalformedActivityEvent, field, err)
}

func capitalise(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
