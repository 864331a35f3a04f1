package sources

import (
	"context"
	"fmt"
	"os"
	"path"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/secret"
)

// GCPSecretManagerAPI is the subset of the Secret Manager client used by the source
type GCPSecretManagerAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// GCPSecretManager reads secrets from Google Cloud Secret Manager. Versions
// are version numbers; an unpinned request reads "latest".
type GCPSecretManager struct {
	name      string
	client    GCPSecretManagerAPI
	projectID string
	logger    *logging.Logger
}

// GCPOption configures a GCPSecretManager source
type GCPOption func(*GCPSecretManager)

// WithGCPClient sets a custom client (for testing)
func WithGCPClient(client GCPSecretManagerAPI) GCPOption {
	return func(s *GCPSecretManager) {
		s.client = client
	}
}

// NewGCPSecretManager creates a GCP Secret Manager source
func NewGCPSecretManager(name string, configMap map[string]interface{}, logger *logging.Logger, opts ...GCPOption) (*GCPSecretManager, error) {
	projectID, _ := configMap["project_id"].(string)
	if projectID == "" {
		projectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if projectID == "" {
		return nil, dserrors.ConfigError{
			Field:      "project_id",
			Message:    "project_id is required for GCP Secret Manager",
			Suggestion: "Set project_id in config or GOOGLE_CLOUD_PROJECT environment variable",
		}
	}
	if logger == nil {
		logger = logging.Nop()
	}

	s := &GCPSecretManager{name: name, projectID: projectID, logger: logger}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		var clientOptions []option.ClientOption
		if keyPath, ok := configMap["service_account_key_path"].(string); ok && keyPath != "" {
			clientOptions = append(clientOptions, option.WithCredentialsFile(keyPath))
		}
		if endpoint, ok := configMap["endpoint"].(string); ok && endpoint != "" {
			clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
		}
		client, err := secretmanager.NewClient(context.Background(), clientOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
		}
		s.client = client
	}

	return s, nil
}

// Name returns the source name
func (s *GCPSecretManager) Name() string {
	return s.name
}

// Get accesses a secret version
func (s *GCPSecretManager) Get(ctx context.Context, name, version string) (*secret.Secret, error) {
	v := version
	if v == "" {
		v = "latest"
	}
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", s.projectID, name, v)

	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resourceName})
	if err != nil {
		switch status.Code(err) {
		case codes.NotFound, codes.FailedPrecondition:
			// FailedPrecondition is returned for disabled or destroyed versions
			return nil, nil
		}
		return nil, dserrors.BackendError("gcp-secretmanager", "access "+name, err)
	}
	if result.Payload == nil || result.Payload.Data == nil {
		return nil, nil
	}

	resolved := version
	if resolved == "" && result.Name != "" {
		resolved = path.Base(result.Name)
	}
	out := secret.New(name, resolved, string(result.Payload.Data))
	return &out, nil
}
