package main

// StackConfig holds configuration for the report generator CDK stack.
type StackConfig struct {
	Branch           string
	BucketSuffix     string
	MemorySize       float64
	Timeout          float64
	LambdaDistDir    string
	LogRetentionDays float64
	DestroyOnDelete  bool

	// Notify
	TemplateID string
	SecretName string

	// Queue
	BatchSize       float64
	MaxReceiveCount float64
	BatchMode       string
	Timezone        string

	// Downstream functions the generator invokes.
	TestResultsFunction  string
	ActivitiesFunction   string
	TestStationsFunction string
}

// DefaultConfig returns a StackConfig with sensible defaults.
func DefaultConfig() StackConfig {
	return StackConfig{
		Branch:               "develop",
		BucketSuffix:         "develop",
		MemorySize:           512,
		Timeout:              60,
		LambdaDistDir:        "../dist/lambda",
		LogRetentionDays:     7,
		BatchSize:            10,
		MaxReceiveCount:      3,
		BatchMode:            "partial",
		Timezone:             "Europe/London",
		TestResultsFunction:  "cvs-svc-test-results",
		ActivitiesFunction:   "cvs-svc-activities",
		TestStationsFunction: "cvs-svc-test-stations",
	}
}

func (c StackConfig) functionName() string {
	return "cvs-svc-atf-report-gen-" + c.Branch
}
