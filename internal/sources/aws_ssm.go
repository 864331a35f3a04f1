package sources

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/secret"
)

// SSMClientAPI is the subset of the SSM client used by the source
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// AWSSSM reads SecureString parameters from SSM Parameter Store. Versions
// are parameter version numbers.
type AWSSSM struct {
	name           string
	client         SSMClientAPI
	prefix         string
	withDecryption bool
	logger         *logging.Logger
}

// AWSSSMOption configures an AWSSSM source
type AWSSSMOption func(*AWSSSM)

// WithSSMClient sets a custom client (for testing)
func WithSSMClient(client SSMClientAPI) AWSSSMOption {
	return func(s *AWSSSM) {
		s.client = client
	}
}

// NewAWSSSM creates an SSM Parameter Store source
func NewAWSSSM(name string, configMap map[string]interface{}, logger *logging.Logger, opts ...AWSSSMOption) (*AWSSSM, error) {
	settings := parseAWSSettings(configMap)
	if logger == nil {
		logger = logging.Nop()
	}

	s := &AWSSSM{
		name:           name,
		withDecryption: true,
		logger:         logger,
	}
	if prefix, ok := configMap["parameter_prefix"].(string); ok {
		s.prefix = prefix
	}
	if decrypt, ok := configMap["with_decryption"].(bool); ok {
		s.withDecryption = decrypt
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		cfg, err := settings.load(context.Background())
		if err != nil {
			return nil, err
		}
		var clientOpts []func(*ssm.Options)
		if settings.Endpoint != "" {
			endpoint := settings.Endpoint
			clientOpts = append(clientOpts, func(o *ssm.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		s.client = ssm.NewFromConfig(cfg, clientOpts...)
	}

	return s, nil
}

// Name returns the source name
func (s *AWSSSM) Name() string {
	return s.name
}

// Get fetches a parameter, pinned to a version number when one is given
func (s *AWSSSM) Get(ctx context.Context, name, version string) (*secret.Secret, error) {
	paramName := s.parameterName(name)
	if version != "" {
		if _, err := strconv.ParseInt(version, 10, 64); err != nil {
			s.logger.Debug("Ignoring non-numeric SSM version %q for %s", version, name)
			return nil, nil
		}
		paramName += ":" + version
	}

	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(s.withDecryption),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		var versionNotFound *types.ParameterVersionNotFound
		if errors.As(err, &notFound) || errors.As(err, &versionNotFound) {
			return nil, nil
		}
		return nil, dserrors.BackendError("aws-ssm", "get "+name, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return nil, nil
	}

	out := secret.New(name, strconv.FormatInt(result.Parameter.Version, 10), *result.Parameter.Value)
	return &out, nil
}

func (s *AWSSSM) parameterName(name string) string {
	if s.prefix == "" {
		return name
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + strings.TrimPrefix(name, "/")
}
