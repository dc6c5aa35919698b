// Package lambda builds the report generator's dependency graph for the Lambda
// handler.
package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/dwsmith1983/atfreport/internal/config"
	"github.com/dwsmith1983/atfreport/internal/datefmt"
	"github.com/dwsmith1983/atfreport/internal/dispatch"
	"github.com/dwsmith1983/atfreport/internal/invoke"
	"github.com/dwsmith1983/atfreport/internal/lookup"
	"github.com/dwsmith1983/atfreport/internal/metrics"
	"github.com/dwsmith1983/atfreport/internal/notify"
	"github.com/dwsmith1983/atfreport/internal/report"
	"github.com/dwsmith1983/atfreport/internal/storage"
	"github.com/dwsmith1983/atfreport/internal/telemetry"
	"github.com/dwsmith1983/atfreport/pkg/types"
)

// ServiceName identifies the function in logs and telemetry.
const ServiceName = "cvs-svc-atf-report-gen"

// Deps holds shared dependencies for the Lambda handler.
type Deps struct {
	Config     *config.Config
	Dispatcher *dispatch.Dispatcher
	Telemetry  *telemetry.Telemetry
	Logger     *slog.Logger
}

// Env is the process environment Init reads.
type Env struct {
	ConfigPath  string // CONFIG_PATH
	SecretsPath string // SECRETS_PATH, used when SECRET_NAME is unset
	Branch      string // BRANCH
	SecretName  string // SECRET_NAME
	TemplateID  string // TEMPLATE_ID
	Bucket      string // BUCKET
	Timezone    string // TIMEZONE
	BatchMode   string // BATCH_FAILURE_MODE
	Region      string // AWS_REGION
	LogLevel    string // LOG_LEVEL
}

// EnvFromOS reads Env from the process environment.
func EnvFromOS() Env {
	return Env{
		ConfigPath:  envOrDefault("CONFIG_PATH", "/var/task/config/config.yml"),
		SecretsPath: envOrDefault("SECRETS_PATH", "/var/task/config/secrets.yml"),
		Branch:      os.Getenv("BRANCH"),
		SecretName:  os.Getenv("SECRET_NAME"),
		TemplateID:  os.Getenv("TEMPLATE_ID"),
		Bucket:      os.Getenv("BUCKET"),
		Timezone:    os.Getenv("TIMEZONE"),
		BatchMode:   os.Getenv("BATCH_FAILURE_MODE"),
		Region:      os.Getenv("AWS_REGION"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}
}

// Init creates shared dependencies from environment variables.
func Init(ctx context.Context) (*Deps, error) {
	return InitWithEnv(ctx, EnvFromOS())
}

// InitWithEnv creates shared dependencies from env.
func InitWithEnv(ctx context.Context, env Env) (*Deps, error) {
	logger := NewLogger(env.LogLevel)
	slog.SetDefault(logger)

	if env.Region == "" {
		return nil, fmt.Errorf("AWS_REGION environment variable required")
	}
	templateID, err := config.TemplateID(env.TemplateID)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(env.ConfigPath)
	if err != nil {
		return nil, err
	}
	if env.BatchMode != "" {
		cfg.Dispatch.BatchMode = types.BatchMode(env.BatchMode)
	}
	if cfg.Dispatch.BatchMode != types.BatchPartial && cfg.Dispatch.BatchMode != types.BatchFailFast {
		return nil, fmt.Errorf("BATCH_FAILURE_MODE %q must be %q or %q",
			cfg.Dispatch.BatchMode, types.BatchPartial, types.BatchFailFast)
	}
	if env.Timezone != "" {
		cfg.Report.Timezone = env.Timezone
	}
	formatter, err := datefmt.New(cfg.Report.Timezone)
	if err != nil {
		return nil, err
	}

	bucketSuffix := env.Bucket
	if bucketSuffix == "" {
		bucketSuffix = cfg.Report.BucketSuffix
	}
	if cfg.Report.Uploads() && bucketSuffix == "" {
		return nil, fmt.Errorf("BUCKET environment variable required when uploads are enabled")
	}

	tel, err := telemetry.Setup(ctx, ServiceName, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}
	recorder, err := metrics.New(tel.Meter(ServiceName))
	if err != nil {
		return nil, err
	}

	invokeEndpoint := cfg.InvokeEndpoint(env.Branch)
	invokeAWS, err := loadAWSConfig(ctx, env.Region, invokeEndpoint)
	if err != nil {
		return nil, err
	}
	lambdaClient := awslambda.NewFromConfig(invokeAWS, func(o *awslambda.Options) {
		if invokeEndpoint.Endpoint != "" {
			o.BaseEndpoint = aws.String(invokeEndpoint.Endpoint)
		}
	})
	functions := lookup.Functions{
		TestResults:  cfg.Functions.TestResults,
		Activities:   cfg.Functions.Activities,
		TestStations: cfg.Functions.TestStations,
	}
	invoker := invoke.New(lambdaClient,
		[]string{functions.TestResults, functions.Activities, functions.TestStations},
		invoke.WithTimeout(cfg.Dispatch.CallTimeout),
		invoke.WithBreakerSettings(invoke.BreakerSettings{
			FailThreshold: cfg.Breaker.FailThreshold,
			Cooldown:      cfg.Breaker.Cooldown,
			FailWindow:    cfg.Breaker.FailWindow,
		}),
		invoke.WithLogger(logger),
	)
	lookups := lookup.NewClient(invoker, functions, logger)

	var secretsClient config.SecretsManagerAPI
	if env.SecretName != "" {
		awsCfg, err := loadAWSConfig(ctx, env.Region, config.Endpoint{})
		if err != nil {
			return nil, err
		}
		secretsClient = secretsmanager.NewFromConfig(awsCfg)
	}
	secrets, err := config.LoadNotifySecrets(ctx, secretsClient, env.SecretName, env.SecretsPath)
	if err != nil {
		return nil, err
	}
	notifyOpts := []notify.ClientOption{notify.WithHTTPTimeout(cfg.Dispatch.CallTimeout)}
	if endpoint := firstNonEmpty(secrets.Endpoint, cfg.Notify.Endpoint); endpoint != "" {
		notifyOpts = append(notifyOpts, notify.WithBaseURL(endpoint))
	}
	notifyClient, err := notify.NewClient(secrets.APIKey, notifyOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating Notify client: %w", err)
	}

	rendererOpts := []report.Option{}
	if cfg.Report.TemplatePath != "" {
		rendererOpts = append(rendererOpts, report.WithTemplateFile(cfg.Report.TemplatePath))
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(recorder),
		dispatch.WithBatchMode(cfg.Dispatch.BatchMode),
		dispatch.WithWorkers(cfg.Dispatch.Workers),
	}
	if cfg.Report.Uploads() {
		s3Endpoint := cfg.S3Endpoint(env.Branch)
		s3AWS, err := loadAWSConfig(ctx, env.Region, s3Endpoint)
		if err != nil {
			return nil, err
		}
		s3Client := s3.NewFromConfig(s3AWS, func(o *s3.Options) {
			if s3Endpoint.Endpoint != "" {
				o.BaseEndpoint = aws.String(s3Endpoint.Endpoint)
				o.UsePathStyle = true
			}
		})
		uploader, err := storage.NewUploader(storage.BucketName(bucketSuffix),
			storage.WithS3Client(s3Client),
			storage.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		dispatchOpts = append(dispatchOpts, dispatch.WithUploader(uploader))
	}

	d := dispatch.New(
		lookups,
		report.NewRenderer(formatter, rendererOpts...),
		notify.NewComposer(formatter),
		notify.NewService(notifyClient, templateID, logger),
		dispatchOpts...,
	)

	logger.Info("dependencies initialised",
		"branch", config.ResolveBranch(env.Branch),
		"batchMode", string(cfg.Dispatch.BatchMode),
		"uploads", cfg.Report.Uploads(),
		"timezone", formatter.Location().String())

	return &Deps{
		Config:     cfg,
		Dispatcher: d,
		Telemetry:  tel,
		Logger:     logger,
	}, nil
}

// NewLogger returns the JSON logger used by the Lambda handler.
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil || level == "" {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: l,
	})).With("service", ServiceName)
}

// loadAWSConfig loads the SDK config for region. A local endpoint uses static
// credentials so offline runs need no AWS profile.
func loadAWSConfig(ctx context.Context, region string, endpoint config.Endpoint) (aws.Config, error) {
	if endpoint.Region != "" {
		region = endpoint.Region
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if endpoint.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
