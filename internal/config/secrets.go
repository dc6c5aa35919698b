package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"gopkg.in/yaml.v3"
)

// Secret loading errors. The messages match what operators search the logs for.
var (
	ErrSecretFileNotExist = errors.New("The secret file does not exist.")                  //nolint:staticcheck // operator-facing message
	ErrTemplateIDNotSet   = errors.New("TEMPLATE_ID environment variable does not exist.") //nolint:staticcheck // operator-facing message
	ErrNotifyConfigNotSet = errors.New("The GovNotify configuration not set.")             //nolint:staticcheck // operator-facing message
)

// SecretsManagerAPI is the subset of the Secrets Manager client used to load
// Notify secrets.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NotifySecrets are the GOV.UK Notify credentials.
type NotifySecrets struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

type secretsDoc struct {
	Notify *NotifySecrets `yaml:"notify"`
}

// LoadNotifySecrets reads the Notify credentials from the named Secrets
// Manager secret or, when secretName is empty, from the YAML file at
// secretsFile. Both hold a document of the form {notify: {api_key, endpoint}}.
func LoadNotifySecrets(ctx context.Context, client SecretsManagerAPI, secretName, secretsFile string) (*NotifySecrets, error) {
	var data []byte
	if secretName != "" {
		if client == nil {
			return nil, fmt.Errorf("secrets manager client required for secret %s", secretName)
		}
		out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretName),
		})
		if err != nil {
			return nil, fmt.Errorf("getting secret %s: %w", secretName, err)
		}
		data = []byte(aws.ToString(out.SecretString))
	} else {
		b, err := os.ReadFile(secretsFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ErrSecretFileNotExist
			}
			return nil, fmt.Errorf("reading secrets file: %w", err)
		}
		data = b
	}

	var doc secretsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing notify secrets: %w", err)
	}
	if doc.Notify == nil || doc.Notify.APIKey == "" {
		return nil, ErrNotifyConfigNotSet
	}
	return doc.Notify, nil
}

// TemplateID returns id, failing when it is empty.
func TemplateID(id string) (string, error) {
	if id == "" {
		return "", ErrTemplateIDNotSet
	}
	return id, nil
}
