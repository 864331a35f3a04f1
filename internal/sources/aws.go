package sources

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// awsSettings holds the connection settings shared by the AWS sources
type awsSettings struct {
	Region          string
	Profile         string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func parseAWSSettings(configMap map[string]interface{}) awsSettings {
	s := awsSettings{Region: "us-east-1"}
	if r, ok := configMap["region"].(string); ok && r != "" {
		s.Region = r
	}
	if p, ok := configMap["profile"].(string); ok {
		s.Profile = p
	}
	// Optional endpoint and static credentials for LocalStack
	if e, ok := configMap["endpoint"].(string); ok {
		s.Endpoint = e
	}
	if ak, ok := configMap["access_key_id"].(string); ok {
		s.AccessKeyID = ak
	}
	if sk, ok := configMap["secret_access_key"].(string); ok {
		s.SecretAccessKey = sk
	}
	return s
}

func (s awsSettings) load(ctx context.Context) (aws.Config, error) {
	configOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(s.Region)}
	if s.Profile != "" {
		configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(s.Profile))
	}
	if s.AccessKeyID != "" && s.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}
