package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

const sampleConfig = `functions:
  testResults: cvs-svc-test-results-${BRANCH:develop}
  activities: cvs-svc-activities-${BRANCH:develop}
  testStations: cvs-svc-test-stations-${BRANCH:develop}
invoke:
  local:
    endpoint: http://localhost:3013
  remote:
    region: ${AWS_REGION:eu-west-1}
s3:
  local:
    endpoint: http://localhost:7000
  remote: {}
report:
  timezone: Europe/London
  uploadEnabled: false
dispatch:
  batchMode: fail-fast
  workers: 8
  callTimeout: 5s
breaker:
  failThreshold: 3
  cooldown: 1m
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("BRANCH", "")
	t.Setenv("AWS_REGION", "")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "cvs-svc-test-results-develop", cfg.Functions.TestResults)
	assert.Equal(t, "cvs-svc-activities-develop", cfg.Functions.Activities)
	assert.Equal(t, "cvs-svc-test-stations-develop", cfg.Functions.TestStations)
	assert.Equal(t, "http://localhost:3013", cfg.InvokeEndpoint("").Endpoint)
	assert.Equal(t, "eu-west-1", cfg.InvokeEndpoint("feature-x").Region)
	assert.Equal(t, "http://localhost:7000", cfg.S3Endpoint("local").Endpoint)
	assert.Empty(t, cfg.S3Endpoint("develop").Endpoint)
	assert.False(t, cfg.Report.Uploads())
	assert.Equal(t, types.BatchFailFast, cfg.Dispatch.BatchMode)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.CallTimeout)
	assert.Equal(t, uint32(3), cfg.Breaker.FailThreshold)
	assert.Equal(t, time.Minute, cfg.Breaker.Cooldown)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BRANCH", "prod")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "cvs-svc-test-results-prod", cfg.Functions.TestResults)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`functions: {testResults: a, activities: b, testStations: c}`))
	require.NoError(t, err)

	assert.True(t, cfg.Report.Uploads())
	assert.Equal(t, types.BatchPartial, cfg.Dispatch.BatchMode)
	assert.Equal(t, DefaultWorkers, cfg.Dispatch.Workers)
	assert.Equal(t, DefaultCallTimeout, cfg.Dispatch.CallTimeout)
	assert.Equal(t, uint32(DefaultFailThreshold), cfg.Breaker.FailThreshold)
	assert.Equal(t, DefaultCooldown, cfg.Breaker.Cooldown)
}

func TestLoad_ShippedConfig(t *testing.T) {
	t.Setenv("BRANCH", "")
	t.Setenv("TIMEZONE", "")

	cfg, err := Load(filepath.Join("..", "..", "config", "config.yml"))
	require.NoError(t, err)
	assert.Equal(t, "cvs-svc-test-results-develop", cfg.Functions.TestResults)
	assert.Equal(t, "Europe/London", cfg.Report.Timezone)
	assert.True(t, cfg.Report.Uploads())
	assert.Equal(t, "http://localhost:3013", cfg.InvokeEndpoint("").Endpoint)
	assert.Empty(t, cfg.S3Endpoint("develop").Endpoint)
	assert.Equal(t, time.Minute, cfg.Breaker.FailWindow)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing test results", `functions: {activities: b, testStations: c}`, "functions.testResults is required"},
		{"missing activities", `functions: {testResults: a, testStations: c}`, "functions.activities is required"},
		{"missing test stations", `functions: {testResults: a, activities: b}`, "functions.testStations is required"},
		{"bad batch mode", "functions: {testResults: a, activities: b, testStations: c}\ndispatch: {batchMode: sometimes}", "dispatch.batchMode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SET_VAR", "value")
	t.Setenv("UNSET_VAR", "")

	assert.Equal(t, "a-value", string(ExpandEnv([]byte("a-${SET_VAR:other}"))))
	assert.Equal(t, "a-fallback", string(ExpandEnv([]byte("a-${UNSET_VAR:fallback}"))))
	assert.Equal(t, "a-UNSET_VAR", string(ExpandEnv([]byte("a-${UNSET_VAR}"))))
	assert.Equal(t, "no refs", string(ExpandEnv([]byte("no refs"))))
}

func TestResolveBranch(t *testing.T) {
	assert.Equal(t, BranchLocal, ResolveBranch(""))
	assert.Equal(t, BranchLocal, ResolveBranch("local"))
	assert.Equal(t, BranchRemote, ResolveBranch("develop"))
}

type mockSecretsManager struct {
	secret  string
	err     error
	lastID  string
	invoked bool
}

func (m *mockSecretsManager) GetSecretValue(_ context.Context, input *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.invoked = true
	m.lastID = aws.ToString(input.SecretId)
	if m.err != nil {
		return nil, m.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(m.secret)}, nil
}

func TestLoadNotifySecrets_SecretsManager(t *testing.T) {
	sm := &mockSecretsManager{secret: "notify:\n  api_key: key-123\n  endpoint: https://notify.example\n"}

	s, err := LoadNotifySecrets(context.Background(), sm, "cvs-atf/notify", "")
	require.NoError(t, err)
	assert.Equal(t, "cvs-atf/notify", sm.lastID)
	assert.Equal(t, "key-123", s.APIKey)
	assert.Equal(t, "https://notify.example", s.Endpoint)
}

func TestLoadNotifySecrets_SecretsManagerError(t *testing.T) {
	sm := &mockSecretsManager{err: errors.New("AccessDenied")}

	_, err := LoadNotifySecrets(context.Background(), sm, "name", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestLoadNotifySecrets_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yml")
	require.NoError(t, os.WriteFile(path, []byte("notify:\n  api_key: file-key\n"), 0o600))
	sm := &mockSecretsManager{}

	s, err := LoadNotifySecrets(context.Background(), sm, "", path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", s.APIKey)
	assert.False(t, sm.invoked)
}

func TestLoadNotifySecrets_MissingFile(t *testing.T) {
	_, err := LoadNotifySecrets(context.Background(), nil, "", filepath.Join(t.TempDir(), "secrets.yml"))
	assert.ErrorIs(t, err, ErrSecretFileNotExist)
}

func TestLoadNotifySecrets_NoNotifySection(t *testing.T) {
	sm := &mockSecretsManager{secret: "other: {}\n"}
	_, err := LoadNotifySecrets(context.Background(), sm, "name", "")
	assert.ErrorIs(t, err, ErrNotifyConfigNotSet)
}

func TestTemplateID(t *testing.T) {
	id, err := TemplateID("tmpl-1")
	require.NoError(t, err)
	assert.Equal(t, "tmpl-1", id)

	_, err = TemplateID("")
	assert.ErrorIs(t, err, ErrTemplateIDNotSet)
}
