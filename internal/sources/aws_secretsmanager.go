package sources

import (
	"context"
	"encoding/base64"
	"errors"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/secret"
)

// SecretsManagerClientAPI is the subset of the Secrets Manager client used by the source
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager reads secrets from AWS Secrets Manager. Versions are
// Secrets Manager version ids.
type AWSSecretsManager struct {
	name   string
	client SecretsManagerClientAPI
	region string
	logger *logging.Logger
}

// AWSSecretsManagerOption configures an AWSSecretsManager source
type AWSSecretsManagerOption func(*AWSSecretsManager)

// WithSecretsManagerClient sets a custom client (for testing)
func WithSecretsManagerClient(client SecretsManagerClientAPI) AWSSecretsManagerOption {
	return func(s *AWSSecretsManager) {
		s.client = client
	}
}

// NewAWSSecretsManager creates an AWS Secrets Manager source
func NewAWSSecretsManager(name string, configMap map[string]interface{}, logger *logging.Logger, opts ...AWSSecretsManagerOption) (*AWSSecretsManager, error) {
	settings := parseAWSSettings(configMap)
	if logger == nil {
		logger = logging.Nop()
	}

	s := &AWSSecretsManager{name: name, region: settings.Region, logger: logger}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		cfg, err := settings.load(context.Background())
		if err != nil {
			return nil, err
		}
		var clientOpts []func(*secretsmanager.Options)
		if settings.Endpoint != "" {
			endpoint := settings.Endpoint
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		s.client = secretsmanager.NewFromConfig(cfg, clientOpts...)
	}

	return s, nil
}

// Name returns the source name
func (s *AWSSecretsManager) Name() string {
	return s.name
}

// Get fetches a version id, or AWSCURRENT when version is empty. Binary
// secrets that are not UTF-8 are returned base64 encoded.
func (s *AWSSecretsManager) Get(ctx context.Context, name, version string) (*secret.Secret, error) {
	input := &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)}
	if version != "" {
		input.VersionId = aws.String(version)
	}

	result, err := s.client.GetSecretValue(ctx, input)
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, dserrors.BackendError("aws-secretsmanager", "get "+name, err)
	}

	var value string
	switch {
	case result.SecretString != nil:
		value = *result.SecretString
	case result.SecretBinary != nil && utf8.Valid(result.SecretBinary):
		value = string(result.SecretBinary)
	case result.SecretBinary != nil:
		value = base64.StdEncoding.EncodeToString(result.SecretBinary)
	default:
		return nil, nil
	}

	out := secret.New(name, aws.ToString(result.VersionId), value)
	if version != "" {
		out.Version = version
	}
	return &out, nil
}
