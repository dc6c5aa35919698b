package main

import (
	"path/filepath"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambdaeventsources"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssqs"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// NewReportGenStack defines the queue, reports bucket and Lambda function of
// the ATF report generator.
func NewReportGenStack(scope constructs.Construct, id string, cfg StackConfig) awscdk.Stack {
	stack := awscdk.NewStack(scope, &id, nil)
	name := cfg.functionName()
	timeout := awscdk.Duration_Seconds(jsii.Number(cfg.Timeout))

	// Reports bucket
	bucket := awss3.NewBucket(stack, jsii.String("ReportsBucket"), &awss3.BucketProps{
		BucketName:        jsii.String("cvs-atf-reports-" + cfg.BucketSuffix),
		BlockPublicAccess: awss3.BlockPublicAccess_BLOCK_ALL(),
		Encryption:        awss3.BucketEncryption_S3_MANAGED,
		EnforceSSL:        jsii.Bool(true),
		RemovalPolicy:     removalPolicy(cfg.DestroyOnDelete),
	})

	// Queue with dead letter queue
	dlq := awssqs.NewQueue(stack, jsii.String("DeadLetterQueue"), &awssqs.QueueProps{
		QueueName:       jsii.String(name + "-dlq"),
		RetentionPeriod: awscdk.Duration_Days(jsii.Number(14)),
	})
	queue := awssqs.NewQueue(stack, jsii.String("Queue"), &awssqs.QueueProps{
		QueueName:         jsii.String(name + "-queue"),
		VisibilityTimeout: awscdk.Duration_Seconds(jsii.Number(cfg.Timeout * 6)),
		DeadLetterQueue: &awssqs.DeadLetterQueue{
			Queue:           dlq,
			MaxReceiveCount: jsii.Number(cfg.MaxReceiveCount),
		},
	})

	env := &map[string]*string{
		"BRANCH":             jsii.String(cfg.Branch),
		"BUCKET":             jsii.String(cfg.BucketSuffix),
		"BATCH_FAILURE_MODE": jsii.String(cfg.BatchMode),
		"TIMEZONE":           jsii.String(cfg.Timezone),
	}
	if cfg.TemplateID != "" {
		(*env)["TEMPLATE_ID"] = jsii.String(cfg.TemplateID)
	}
	if cfg.SecretName != "" {
		(*env)["SECRET_NAME"] = jsii.String(cfg.SecretName)
	}

	fn := awslambda.NewFunction(stack, jsii.String("report-gen"), &awslambda.FunctionProps{
		FunctionName: jsii.String(name),
		Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
		Handler:      jsii.String("bootstrap"),
		Code:         awslambda.Code_FromAsset(jsii.String(filepath.Join(cfg.LambdaDistDir, "report-gen")), nil),
		Architecture: awslambda.Architecture_ARM_64(),
		MemorySize:   jsii.Number(cfg.MemorySize),
		Timeout:      timeout,
		Environment:  env,
		LogRetention: logRetentionDays(cfg.LogRetentionDays),
	})

	bucket.GrantPut(fn, nil)
	fn.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions:   &[]*string{jsii.String("lambda:InvokeFunction")},
		Resources: downstreamArns(stack, cfg),
	}))
	if cfg.SecretName != "" {
		secret := awssecretsmanager.Secret_FromSecretNameV2(stack, jsii.String("NotifySecret"), jsii.String(cfg.SecretName))
		secret.GrantRead(fn, nil)
	}

	fn.AddEventSource(awslambdaeventsources.NewSqsEventSource(queue, &awslambdaeventsources.SqsEventSourceProps{
		BatchSize:               jsii.Number(cfg.BatchSize),
		ReportBatchItemFailures: jsii.Bool(true),
	}))

	awscdk.NewCfnOutput(stack, jsii.String("QueueUrl"), &awscdk.CfnOutputProps{
		Value: queue.QueueUrl(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("BucketName"), &awscdk.CfnOutputProps{
		Value: bucket.BucketName(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("FunctionName"), &awscdk.CfnOutputProps{
		Value: fn.FunctionName(),
	})

	return stack
}

func downstreamArns(stack awscdk.Stack, cfg StackConfig) *[]*string {
	names := []string{cfg.TestResultsFunction, cfg.ActivitiesFunction, cfg.TestStationsFunction}
	arns := make([]*string, 0, len(names))
	for _, n := range names {
		arns = append(arns, stack.FormatArn(&awscdk.ArnComponents{
			Service:      jsii.String("lambda"),
			Resource:     jsii.String("function"),
			ResourceName: jsii.String(n),
			ArnFormat:    awscdk.ArnFormat_COLON_RESOURCE_NAME,
		}))
	}
	return &arns
}

func removalPolicy(destroy bool) awscdk.RemovalPolicy {
	if destroy {
		return awscdk.RemovalPolicy_DESTROY
	}
	return awscdk.RemovalPolicy_RETAIN
}

func logRetentionDays(days float64) awslogs.RetentionDays {
	switch days {
	case 1:
		return awslogs.RetentionDays_ONE_DAY
	case 3:
		return awslogs.RetentionDays_THREE_DAYS
	case 5:
		return awslogs.RetentionDays_FIVE_DAYS
	case 7:
		return awslogs.RetentionDays_ONE_WEEK
	case 14:
		return awslogs.RetentionDays_TWO_WEEKS
	case 30:
		return awslogs.RetentionDays_ONE_MONTH
	case 90:
		return awslogs.RetentionDays_THREE_MONTHS
	default:
		return awslogs.RetentionDays_ONE_WEEK
	}
}
