// Package types defines the public domain types for the ATF report generator.
package types

// ActivityType is the kind of tester activity recorded by the activities service.
type ActivityType string

// ActivityType values enumerate the activity kinds the generator understands.
const (
	ActivityVisit ActivityType = "visit"
	ActivityWait  ActivityType = "wait"
)

// Valid reports whether the activity type is one the activities service can be queried for.
func (a ActivityType) Valid() bool {
	return a == ActivityVisit || a == ActivityWait
}

// StationType is the category of a test station.
type StationType string

// StationType values enumerate the test station categories.
const (
	StationATF  StationType = "atf"
	StationGVTS StationType = "gvts"
	StationHQ   StationType = "hq"
)

// VehicleType determines which vehicle identifier and which count (seats or
// axles) is reported for a test.
type VehicleType string

// VehicleType values enumerate the tested vehicle categories.
const (
	VehiclePSV VehicleType = "psv"
	VehicleHGV VehicleType = "hgv"
	VehicleTRL VehicleType = "trl"
)

// TestStatus is the lifecycle status of a test result.
type TestStatus string

// TestSubmitted is the only status the report includes.
const TestSubmitted TestStatus = "submitted"

// EventKind tags an ActivityEvent.
type EventKind string

// EventKind values tag the two timeline entry kinds.
const (
	EventTest EventKind = "TEST"
	EventWait EventKind = "WAIT"
)

// Display labels used by the report and the notification text.
const (
	LabelTest           = "Test"
	LabelWaitTime       = "Wait Time"
	LabelTimeNotTesting = "Time not Testing"
)

// BatchMode selects how a failing message affects the rest of its batch.
type BatchMode string

// BatchMode values. BatchPartial reports failed message ids back to SQS;
// BatchFailFast aborts the invocation on the first failure.
const (
	BatchPartial  BatchMode = "partial"
	BatchFailFast BatchMode = "fail-fast"
)

// Stage names a step of per-message processing.
type Stage string

// Stage values in execution order.
const (
	StageParse       Stage = "PARSE"
	StageFetch       Stage = "FETCH"
	StageExpandMerge Stage = "EXPAND_MERGE"
	StageRender      Stage = "RENDER"
	StageDeliver     Stage = "DELIVER"
	StageDone        Stage = "DONE"
)
