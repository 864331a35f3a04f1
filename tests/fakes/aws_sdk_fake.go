package fakes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// FakeSecretsManagerClient is a mock implementation of the Secrets Manager subset
type FakeSecretsManagerClient struct {
	mu sync.Mutex
	// Secrets maps secret names to their versions
	Secrets map[string]*SecretData
	// Errors maps secret names to errors to return
	Errors map[string]error
	// GetSecretValueFunc allows custom behavior for GetSecretValue
	GetSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretData holds the versions of a mock secret
type SecretData struct {
	Current  string
	Versions map[string]*SecretVersionData
}

// SecretVersionData holds one version of a mock secret
type SecretVersionData struct {
	SecretString *string
	SecretBinary []byte
	CreatedDate  *time.Time
}

// NewFakeSecretsManagerClient creates a new mock Secrets Manager client
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets: make(map[string]*SecretData),
		Errors:  make(map[string]error),
	}
}

// AddSecretString adds a string secret as the AWSCURRENT version
func (f *FakeSecretsManagerClient) AddSecretString(name, versionID, value string) {
	f.addVersion(name, versionID, &SecretVersionData{SecretString: aws.String(value)})
}

// AddSecretBinary adds a binary secret as the AWSCURRENT version
func (f *FakeSecretsManagerClient) AddSecretBinary(name, versionID string, value []byte) {
	f.addVersion(name, versionID, &SecretVersionData{SecretBinary: value})
}

func (f *FakeSecretsManagerClient) addVersion(name, versionID string, data *SecretVersionData) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	data.CreatedDate = &now
	secret, exists := f.Secrets[name]
	if !exists {
		secret = &SecretData{Versions: make(map[string]*SecretVersionData)}
		f.Secrets[name] = secret
	}
	secret.Versions[versionID] = data
	secret.Current = versionID
}

// AddError configures the mock to return an error for a specific secret
func (f *FakeSecretsManagerClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// GetSecretValue mocks the GetSecretValue operation
func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.GetSecretValueFunc != nil {
		return f.GetSecretValueFunc(ctx, params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	secretName := aws.ToString(params.SecretId)
	if err, exists := f.Errors[secretName]; exists {
		return nil, err
	}

	data, exists := f.Secrets[secretName]
	if !exists {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", secretName)),
		}
	}

	versionID := data.Current
	if params.VersionId != nil {
		versionID = aws.ToString(params.VersionId)
	}
	version, exists := data.Versions[versionID]
	if !exists {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret value for VersionId: %s", versionID)),
		}
	}

	var stages []string
	if versionID == data.Current {
		stages = []string{"AWSCURRENT"}
	}

	return &secretsmanager.GetSecretValueOutput{
		ARN:           aws.String(fmt.Sprintf("arn:aws:secretsmanager:us-east-1:123456789012:secret:%s", secretName)),
		Name:          params.SecretId,
		SecretString:  version.SecretString,
		SecretBinary:  version.SecretBinary,
		VersionId:     aws.String(versionID),
		VersionStages: stages,
		CreatedDate:   version.CreatedDate,
	}, nil
}

// FakeSSMClient is a mock implementation of the SSM Parameter Store subset
type FakeSSMClient struct {
	mu sync.Mutex
	// Parameters maps parameter names to their history, oldest first
	Parameters map[string][]*ParameterData
	// Errors maps parameter names to errors to return
	Errors map[string]error
	// GetParameterFunc allows custom behavior for GetParameter
	GetParameterFunc func(ctx context.Context, params *ssm.GetParameterInput) (*ssm.GetParameterOutput, error)

	decrypted []bool
}

// ParameterData holds the data for one version of a mock SSM parameter
type ParameterData struct {
	Type             ssmtypes.ParameterType
	Value            *string
	Version          int64
	LastModifiedDate *time.Time
}

// NewFakeSSMClient creates a new mock SSM client
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Parameters: make(map[string][]*ParameterData),
		Errors:     make(map[string]error),
	}
}

// AddSecureStringParameter appends a SecureString version to the parameter
func (f *FakeSSMClient) AddSecureStringParameter(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	history := f.Parameters[name]
	f.Parameters[name] = append(history, &ParameterData{
		Type:             ssmtypes.ParameterTypeSecureString,
		Value:            aws.String(value),
		Version:          int64(len(history) + 1),
		LastModifiedDate: &now,
	})
}

// AddError configures the mock to return an error for a specific parameter
func (f *FakeSSMClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// Decrypted reports the WithDecryption flag of every call
func (f *FakeSSMClient) Decrypted() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.decrypted...)
}

// GetParameter mocks the GetParameter operation. Names may carry a
// ":version" selector.
func (f *FakeSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if f.GetParameterFunc != nil {
		return f.GetParameterFunc(ctx, params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.decrypted = append(f.decrypted, aws.ToBool(params.WithDecryption))

	paramName := aws.ToString(params.Name)
	selector := ""
	if i := strings.LastIndex(paramName, ":"); i >= 0 {
		paramName, selector = paramName[:i], paramName[i+1:]
	}

	if err, exists := f.Errors[paramName]; exists {
		return nil, err
	}

	history, exists := f.Parameters[paramName]
	if !exists || len(history) == 0 {
		return nil, &ssmtypes.ParameterNotFound{
			Message: aws.String(fmt.Sprintf("Parameter %s not found", paramName)),
		}
	}

	data := history[len(history)-1]
	if selector != "" {
		n, err := strconv.Atoi(selector)
		if err != nil || n < 1 || n > len(history) {
			return nil, &ssmtypes.ParameterVersionNotFound{
				Message: aws.String(fmt.Sprintf("Version %s of parameter %s not found", selector, paramName)),
			}
		}
		data = history[n-1]
	}

	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:             aws.String(paramName),
			Type:             data.Type,
			Value:            data.Value,
			Version:          data.Version,
			LastModifiedDate: data.LastModifiedDate,
			ARN:              aws.String(fmt.Sprintf("arn:aws:ssm:us-east-1:123456789012:parameter%s", paramName)),
		},
	}, nil
}
