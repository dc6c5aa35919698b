package main

import (
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
)

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)
	cfg := DefaultConfig()

	if branch := os.Getenv("BRANCH"); branch != "" {
		cfg.Branch = branch
		cfg.BucketSuffix = branch
	}
	if bucket := os.Getenv("BUCKET"); bucket != "" {
		cfg.BucketSuffix = bucket
	}
	cfg.TemplateID = os.Getenv("TEMPLATE_ID")
	cfg.SecretName = os.Getenv("SECRET_NAME")
	if mode := os.Getenv("BATCH_FAILURE_MODE"); mode != "" {
		cfg.BatchMode = mode
	}
	cfg.DestroyOnDelete = os.Getenv("ATF_REPORT_DESTROY_ON_DELETE") == "true"

	stackName := "AtfReportGenStack"
	if name := os.Getenv("ATF_REPORT_STACK_NAME"); name != "" {
		stackName = name
	}

	NewReportGenStack(app, stackName, cfg)
	app.Synth(nil)
}
