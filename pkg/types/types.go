package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Visit is the tester activity that triggers a report. It is created upstream
// and only ever read here.
type Visit struct {
	ID                 string       `json:"id"`
	TesterStaffID      string       `json:"testerStaffId"`
	TesterName         string       `json:"testerName"`
	TesterEmail        string       `json:"testerEmail"`
	TestStationPNumber string       `json:"testStationPNumber"`
	TestStationName    string       `json:"testStationName"`
	TestStationType    StationType  `json:"testStationType,omitempty"`
	TestStationEmail   string       `json:"testStationEmail,omitempty"`
	StartTime          string       `json:"startTime"`
	EndTime            string       `json:"endTime"`
	ActivityType       ActivityType `json:"activityType"`
	ActivityDay        string       `json:"activityDay,omitempty"`
}

// Validate checks the fields every stage downstream of parsing relies on.
func (v Visit) Validate() error {
	switch {
	case v.ID == "":
		return fmt.Errorf("%w: visit id is required", ErrMalformedActivityEvent)
	case v.TesterStaffID == "":
		return fmt.Errorf("%w: visit %s has no testerStaffId", ErrMalformedActivityEvent, v.ID)
	case v.TestStationPNumber == "":
		return fmt.Errorf("%w: visit %s has no testStationPNumber", ErrMalformedActivityEvent, v.ID)
	}
	if _, err := ParseTimestamp(v.StartTime); err != nil {
		return fmt.Errorf("%w: visit %s startTime: %v", ErrMalformedActivityEvent, v.ID, err)
	}
	if _, err := ParseTimestamp(v.EndTime); err != nil {
		return fmt.Errorf("%w: visit %s endTime: %v", ErrMalformedActivityEvent, v.ID, err)
	}
	return nil
}

// TestType is one discrete vehicle test outcome within a test result.
type TestType struct {
	TestTypeID                 string `json:"testTypeId,omitempty"`
	TestTypeName               string `json:"testTypeName,omitempty"`
	Name                       string `json:"name,omitempty"`
	TestCode                   string `json:"testCode,omitempty"`
	TestResult                 string `json:"testResult,omitempty"`
	CertificateNumber          string `json:"certificateNumber,omitempty"`
	SecondaryCertificateNumber string `json:"secondaryCertificateNumber,omitempty"`
	TestExpiryDate             string `json:"testExpiryDate,omitempty"`
	TestTypeStartTimestamp     string `json:"testTypeStartTimestamp,omitempty"`
	TestTypeEndTimestamp       string `json:"testTypeEndTimestamp,omitempty"`
}

// TestResultHeader holds the per-vehicle fields shared by every test type of a
// test result.
type TestResultHeader struct {
	TestResultID       string      `json:"testResultId,omitempty"`
	TesterStaffID      string      `json:"testerStaffId,omitempty"`
	TestStationPNumber string      `json:"testStationPNumber,omitempty"`
	VRM                string      `json:"vrm,omitempty"`
	TrailerID          string      `json:"trailerId,omitempty"`
	VIN                string      `json:"vin,omitempty"`
	VehicleType        VehicleType `json:"vehicleType,omitempty"`
	NumberOfSeats      *int        `json:"numberOfSeats,omitempty"`
	NoOfAxles          *int        `json:"noOfAxles,omitempty"`
	TestStartTimestamp string      `json:"testStartTimestamp,omitempty"`
	TestEndTimestamp   string      `json:"testEndTimestamp,omitempty"`
	TestStatus         TestStatus  `json:"testStatus,omitempty"`
}

// VehicleID returns the trailer id for trailers and the VRM otherwise.
func (h TestResultHeader) VehicleID() string {
	if h.VehicleType == VehicleTRL {
		return h.TrailerID
	}
	return h.VRM
}

// SeatsOrAxles returns the seat count for PSVs and the axle count otherwise.
// ok is false when the relevant count was not recorded.
func (h TestResultHeader) SeatsOrAxles() (n int, ok bool) {
	p := h.NoOfAxles
	if h.VehicleType == VehiclePSV {
		p = h.NumberOfSeats
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// TestResult is a test result as returned by the test-results service. It may
// bundle several test types.
type TestResult struct {
	TestResultHeader
	TestTypes []TestType `json:"testTypes"`
}

// TestUnit is a test result carrying exactly one test type.
type TestUnit struct {
	TestResultHeader
	TestType TestType `json:"testTypes"`
}

// WaitActivity is a recorded interval where the tester was not testing.
type WaitActivity struct {
	ID         string     `json:"id,omitempty"`
	StartTime  string     `json:"startTime"`
	EndTime    string     `json:"endTime"`
	WaitReason WaitReason `json:"waitReason,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// WaitReason is the list of reasons recorded against a wait activity. Older
// records carry a single string instead of a list.
type WaitReason []string

// UnmarshalJSON accepts either a string or an array of strings.
func (w *WaitReason) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*w = nil
		} else {
			*w = WaitReason{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("waitReason must be a string or a list of strings: %w", err)
	}
	*w = many
	return nil
}

// ActivityEvent is one entry of a visit timeline. Exactly one of Test and Wait
// is set, matching Kind.
type ActivityEvent struct {
	Kind      EventKind     `json:"activityType"`
	StartTime string        `json:"startTime"`
	Test      *TestUnit     `json:"test,omitempty"`
	Wait      *WaitActivity `json:"wait,omitempty"`
}

// StationEmails is one record of the test-stations e-mail lookup.
type StationEmails struct {
	TestStationID      string   `json:"testStationId,omitempty"`
	TestStationPNumber string   `json:"testStationPNumber"`
	TestStationEmails  []string `json:"testStationEmails"`
}

// ReportArtifact is a rendered report ready for upload.
type ReportArtifact struct {
	FileName string
	Content  []byte
}

// NotificationPayload is the personalisation handed to the e-mail provider.
type NotificationPayload struct {
	TestStationPNumber string `json:"testStationPNumber"`
	TesterName         string `json:"testerName"`
	StartTimeDate      string `json:"startTimeDate"`
	StartTime          string `json:"startTime"`
	EndTime            string `json:"endTime"`
	TestStationName    string `json:"testStationName"`
	ActivityType       string `json:"activityType"`
	ActivityDetails    string `json:"activityDetails"`
}

// Personalisation flattens the payload into the key/value map the e-mail
// template is rendered with.
func (p NotificationPayload) Personalisation() map[string]string {
	return map[string]string{
		"testStationPNumber": p.TestStationPNumber,
		"testerName":         p.TesterName,
		"startTimeDate":      p.StartTimeDate,
		"startTime":          p.StartTime,
		"endTime":            p.EndTime,
		"testStationName":    p.TestStationName,
		"activityType":       p.ActivityType,
		"activityDetails":    p.ActivityDetails,
	}
}

// timestampLayouts are the ISO-8601 forms the upstream services emit. Values
// without an offset are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp as produced by the upstream
// services: RFC 3339 with optional fractional seconds, a local date-time
// without offset, or a bare date.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, firstErr)
}

// coifWithAnnualTestIDs are the test type ids whose certificate is issued
// together with a secondary (annual test) certificate.
var coifWithAnnualTestIDs = map[string]bool{
	"142": true,
	"143": true,
	"175": true,
	"176": true,
}

// IsCOIFWithAnnualTest reports whether the test type carries a secondary
// certificate number.
func (t TestType) IsCOIFWithAnnualTest() bool {
	return coifWithAnnualTestIDs[t.TestTypeID]
}

// Description returns the display name of the test type.
func (t TestType) Description() string {
	if t.TestTypeName != "" {
		return t.TestTypeName
	}
	return t.Name
}

// CertificateNumbers returns the certificate numbers to report, primary
// first. The secondary number is only reported for COIF-with-annual-test types.
func (t TestType) CertificateNumbers() []string {
	var out []string
	if t.CertificateNumber != "" {
		out = append(out, t.CertificateNumber)
	}
	if t.IsCOIFWithAnnualTest() && t.SecondaryCertificateNumber != "" {
		out = append(out, t.SecondaryCertificateNumber)
	}
	return out
}
