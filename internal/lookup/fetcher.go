package lookup

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

// TimelineInputs are the two collections a visit timeline is built from.
type TimelineInputs struct {
	TestResults    []types.TestResult
	WaitActivities []types.WaitActivity
}

// FetchTimelineInputs runs the test-results and wait-activities lookups for a
// visit concurrently. A failure of either cancels the other.
func (c *Client) FetchTimelineInputs(ctx context.Context, visit types.Visit) (TimelineInputs, error) {
	var in TimelineInputs
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		results, err := c.GetTestResults(gctx, TestResultsQuery{
			TesterStaffID:      visit.TesterStaffID,
			FromDateTime:       visit.StartTime,
			ToDateTime:         visit.EndTime,
			TestStationPNumber: visit.TestStationPNumber,
			TestStatus:         types.TestSubmitted,
		})
		in.TestResults = results
		return err
	})
	g.Go(func() error {
		waits, err := c.GetActivities(gctx, ActivitiesQuery{
			TesterStaffID:      visit.TesterStaffID,
			FromStartTime:      visit.StartTime,
			ToStartTime:        visit.EndTime,
			TestStationPNumber: visit.TestStationPNumber,
			ActivityType:       types.ActivityWait,
		})
		in.WaitActivities = waits
		return err
	})

	if err := g.Wait(); err != nil {
		return TimelineInputs{}, err
	}
	c.logger.Info("timeline inputs fetched",
		"activityId", visit.ID,
		"testResults", len(in.TestResults),
		"waitActivities", len(in.WaitActivities),
		"total", len(in.TestResults)+len(in.WaitActivities))
	return in, nil
}
