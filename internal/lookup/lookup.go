// Package lookup retrieves test results, wait activities and test-station
// e-mail addresses from the downstream CVS services.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dwsmith1983/atfreport/internal/invoke"
	"github.com/dwsmith1983/atfreport/pkg/types"
)

// Invoker is the subset of invoke.Invoker used by the lookup services.
type Invoker interface {
	Invoke(ctx context.Context, function string, req invoke.Request) (*invoke.Response, error)
}

// Functions names the downstream Lambda functions.
type Functions struct {
	TestResults  string
	Activities   string
	TestStations string
}

// Client performs the three downstream lookups.
type Client struct {
	invoker   Invoker
	functions Functions
	logger    *slog.Logger
}

// NewClient creates a lookup client.
func NewClient(invoker Invoker, functions Functions, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{invoker: invoker, functions: functions, logger: logger}
}

// TestResultsQuery filters the test-results lookup.
type TestResultsQuery struct {
	TesterStaffID      string
	FromDateTime       string
	ToDateTime         string
	TestStationPNumber string
	TestStatus         types.TestStatus
}

// ActivitiesQuery filters the activities lookup.
type ActivitiesQuery struct {
	TesterStaffID      string
	FromStartTime      string
	ToStartTime        string
	TestStationPNumber string
	ActivityType       types.ActivityType
}

// GetTestResults returns the matching test results sorted ascending by the
// end timestamp of their first test type. Records are not expanded here.
func (c *Client) GetTestResults(ctx context.Context, q TestResultsQuery) ([]types.TestResult, error) {
	c.logger.Debug("fetching test results", "testerStaffId", q.TesterStaffID, "testStationPNumber", q.TestStationPNumber)

	resp, err := c.invoker.Invoke(ctx, c.functions.TestResults, invoke.Request{
		HTTPMethod: "GET",
		Path:       "/test-results/getTestResultsByTesterStaffId",
		QueryStringParameters: map[string]string{
			"testerStaffId":      q.TesterStaffID,
			"fromDateTime":       q.FromDateTime,
			"toDateTime":         q.ToDateTime,
			"testStationPNumber": q.TestStationPNumber,
			"testStatus":         string(q.TestStatus),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting test results: %w", err)
	}

	var results []types.TestResult
	if err := decodeBody(c.functions.TestResults, resp, &results); err != nil {
		return nil, fmt.Errorf("getting test results: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return firstTestTypeEnd(results[i]) < firstTestTypeEnd(results[j])
	})
	c.logger.Debug("test results fetched", "count", len(results))
	return results, nil
}

func firstTestTypeEnd(r types.TestResult) string {
	if len(r.TestTypes) == 0 {
		return ""
	}
	return r.TestTypes[0].TestTypeEndTimestamp
}

// GetActivities returns the matching activities sorted ascending by start
// time. Activity types other than visit and wait cannot match anything, so no
// call is made for them.
func (c *Client) GetActivities(ctx context.Context, q ActivitiesQuery) ([]types.WaitActivity, error) {
	if !q.ActivityType.Valid() {
		c.logger.Info("unsupported activity type, returning no activities", "activityType", q.ActivityType)
		return []types.WaitActivity{}, nil
	}

	resp, err := c.invoker.Invoke(ctx, c.functions.Activities, invoke.Request{
		HTTPMethod: "GET",
		Path:       "/activities/details",
		QueryStringParameters: map[string]string{
			"testerStaffId":      q.TesterStaffID,
			"fromStartTime":      q.FromStartTime,
			"toStartTime":        q.ToStartTime,
			"testStationPNumber": q.TestStationPNumber,
			"activityType":       string(q.ActivityType),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting activities: %w", err)
	}

	var activities []types.WaitActivity
	if err := decodeBody(c.functions.Activities, resp, &activities); err != nil {
		return nil, fmt.Errorf("getting activities: %w", err)
	}

	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].StartTime < activities[j].StartTime
	})
	c.logger.Debug("activities fetched", "activityType", q.ActivityType, "count", len(activities))
	return activities, nil
}

// GetTestStationEmails returns the e-mail records held for a test station.
func (c *Client) GetTestStationEmails(ctx context.Context, pNumber string) ([]types.StationEmails, error) {
	resp, err := c.invoker.Invoke(ctx, c.functions.TestStations, invoke.Request{
		HTTPMethod:     "GET",
		Path:           fmt.Sprintf("/test-stations/%s/email-addresses", pNumber),
		PathParameters: map[string]string{"testStationPNumber": pNumber},
	})
	if err != nil {
		return nil, fmt.Errorf("getting test station emails for %s: %w", pNumber, err)
	}

	var stations []types.StationEmails
	if err := decodeBody(c.functions.TestStations, resp, &stations); err != nil {
		return nil, fmt.Errorf("getting test station emails for %s: %w", pNumber, err)
	}
	return stations, nil
}

func decodeBody(function string, resp *invoke.Response, v interface{}) error {
	if err := json.Unmarshal([]byte(resp.Body), v); err != nil {
		return &invoke.RemoteLookupError{
			Function:   function,
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			Message:    "Lambda invocation returned bad data",
			Err:        err,
		}
	}
	return nil
}
