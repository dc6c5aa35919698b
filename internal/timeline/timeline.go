// Package timeline expands test results into single-test-type units and merges
// them with wait activities into one chronologically ordered timeline.
package timeline

import (
	"log/slog"
	"sort"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

// Expand splits each test result into one unit per test type, preserving the
// order of results and of test types within a result. A result without test
// types produces no units.
func Expand(logger *slog.Logger, results []types.TestResult) []types.TestUnit {
	if logger == nil {
		logger = slog.Default()
	}
	n := 0
	for _, r := range results {
		n += len(r.TestTypes)
	}
	units := make([]types.TestUnit, 0, n)
	for _, r := range results {
		if len(r.TestTypes) == 0 {
			logger.Warn("test result has no test types, skipping",
				"testResultId", r.TestResultID, "vrm", r.VRM, "trailerId", r.TrailerID)
			continue
		}
		for _, tt := range r.TestTypes {
			units = append(units, types.TestUnit{
				TestResultHeader: r.TestResultHeader,
				TestType:         tt,
			})
		}
	}
	return units
}

// Merge tags units as TEST events and waits as WAIT events and orders them by
// start time. Start times are compared as ISO-8601 strings; events with equal
// start times keep their input order, units before waits.
func Merge(units []types.TestUnit, waits []types.WaitActivity) []types.ActivityEvent {
	events := make([]types.ActivityEvent, 0, len(units)+len(waits))
	for i := range units {
		u := units[i]
		events = append(events, types.ActivityEvent{
			Kind:      types.EventTest,
			StartTime: u.TestType.TestTypeStartTimestamp,
			Test:      &u,
		})
	}
	for i := range waits {
		w := waits[i]
		events = append(events, types.ActivityEvent{
			Kind:      types.EventWait,
			StartTime: w.StartTime,
			Wait:      &w,
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartTime < events[j].StartTime
	})
	return events
}

// Build expands results and merges them with waits.
func Build(logger *slog.Logger, results []types.TestResult, waits []types.WaitActivity) []types.ActivityEvent {
	return Merge(Expand(logger, results), waits)
}

// CountTests returns the number of TEST events in a timeline.
func CountTests(events []types.ActivityEvent) int {
	n := 0
	for _, e := range events {
		if e.Kind == types.EventTest {
			n++
		}
	}
	return n
}
