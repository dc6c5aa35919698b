package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/stretchr/testify/require"
)

// setupTestDirs creates a dummy bootstrap file so CDK asset resolution
// succeeds without a real build.
func setupTestDirs(t *testing.T) StackConfig {
	t.Helper()
	tmp := t.TempDir()

	dir := filepath.Join(tmp, "lambda", "report-gen")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bootstrap"), []byte("#!/bin/sh\n"), 0o755))

	cfg := DefaultConfig()
	cfg.LambdaDistDir = filepath.Join(tmp, "lambda")
	cfg.TemplateID = "template-1"
	return cfg
}

func synthTemplate(t *testing.T, cfg StackConfig) assertions.Template {
	t.Helper()
	app := awscdk.NewApp(nil)
	stack := NewReportGenStack(app, "TestStack", cfg)
	return assertions.Template_FromStack(stack, nil)
}

func templateJSON(t *testing.T, tmpl assertions.Template) string {
	t.Helper()
	b, err := json.Marshal(tmpl.ToJSON())
	require.NoError(t, err)
	return string(b)
}

func TestReportsBucket(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.HasResourceProperties(jsii.String("AWS::S3::Bucket"), map[string]interface{}{
		"BucketName": jsii.String("cvs-atf-reports-develop"),
		"PublicAccessBlockConfiguration": map[string]interface{}{
			"BlockPublicAcls":       true,
			"BlockPublicPolicy":     true,
			"IgnorePublicAcls":      true,
			"RestrictPublicBuckets": true,
		},
	})
}

func TestQueueWithDeadLetter(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.ResourceCountIs(jsii.String("AWS::SQS::Queue"), jsii.Number(2))
	tmpl.HasResourceProperties(jsii.String("AWS::SQS::Queue"), map[string]interface{}{
		"QueueName":         jsii.String("cvs-svc-atf-report-gen-develop-queue"),
		"VisibilityTimeout": jsii.Number(360),
		"RedrivePolicy": assertions.Match_ObjectLike(&map[string]interface{}{
			"maxReceiveCount": jsii.Number(3),
		}),
	})
}

func TestFunction(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.HasResourceProperties(jsii.String("AWS::Lambda::Function"), map[string]interface{}{
		"FunctionName":  jsii.String("cvs-svc-atf-report-gen-develop"),
		"Runtime":       jsii.String("provided.al2023"),
		"Architectures": &[]interface{}{jsii.String("arm64")},
		"Handler":       jsii.String("bootstrap"),
		"Environment": assertions.Match_ObjectLike(&map[string]interface{}{
			"Variables": assertions.Match_ObjectLike(&map[string]interface{}{
				"BRANCH":             jsii.String("develop"),
				"BUCKET":             jsii.String("develop"),
				"TEMPLATE_ID":        jsii.String("template-1"),
				"BATCH_FAILURE_MODE": jsii.String("partial"),
				"TIMEZONE":           jsii.String("Europe/London"),
			}),
		}),
	})
}

func TestEventSourceReportsBatchItemFailures(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.HasResourceProperties(jsii.String("AWS::Lambda::EventSourceMapping"), map[string]interface{}{
		"BatchSize":             jsii.Number(10),
		"FunctionResponseTypes": &[]interface{}{jsii.String("ReportBatchItemFailures")},
	})
}

func TestInvokePermissions(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.HasResourceProperties(jsii.String("AWS::IAM::Policy"), map[string]interface{}{
		"PolicyDocument": assertions.Match_ObjectLike(&map[string]interface{}{
			"Statement": assertions.Match_ArrayWith(&[]interface{}{
				assertions.Match_ObjectLike(&map[string]interface{}{
					"Action": jsii.String("lambda:InvokeFunction"),
				}),
			}),
		}),
	})
	tpl := templateJSON(t, tmpl)
	require.Contains(t, tpl, "function:cvs-svc-test-results")
	require.Contains(t, tpl, "function:cvs-svc-activities")
	require.Contains(t, tpl, "function:cvs-svc-test-stations")
}

func TestNoSecretPermissionsWithoutSecretName(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	require.NotContains(t, templateJSON(t, tmpl), "secretsmanager:GetSecretValue")
}

func TestSecretPermissionsWithSecretName(t *testing.T) {
	cfg := setupTestDirs(t)
	cfg.SecretName = "cvs/notify"
	tmpl := synthTemplate(t, cfg)

	tpl := templateJSON(t, tmpl)
	require.Contains(t, tpl, "secretsmanager:GetSecretValue")
	require.Contains(t, tpl, "SECRET_NAME")
}

func TestStackOutputs(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.HasOutput(jsii.String("QueueUrl"), map[string]interface{}{})
	tmpl.HasOutput(jsii.String("BucketName"), map[string]interface{}{})
	tmpl.HasOutput(jsii.String("FunctionName"), map[string]interface{}{})
}
