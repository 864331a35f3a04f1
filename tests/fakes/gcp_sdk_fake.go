package fakes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// FakeGCPSecretManagerClient is a mock implementation of the Secret Manager subset
type FakeGCPSecretManagerClient struct {
	mu sync.Mutex
	// Versions maps version resource names (projects/X/secrets/Y/versions/Z) to their data
	Versions map[string]*GCPSecretVersionData
	// Latest maps secret resource names to their newest version number
	Latest map[string]int
	// Errors maps secret resource names (projects/X/secrets/Y) to errors to return
	Errors map[string]error
	// AccessSecretVersionFunc allows custom behavior for AccessSecretVersion
	AccessSecretVersionFunc func(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)

	requests []string
}

// GCPSecretVersionData holds version-specific data for a GCP secret
type GCPSecretVersionData struct {
	Name       string
	State      secretmanagerpb.SecretVersion_State
	CreateTime *timestamppb.Timestamp
	Data       []byte
}

// NewFakeGCPSecretManagerClient creates a new mock GCP Secret Manager client
func NewFakeGCPSecretManagerClient() *FakeGCPSecretManagerClient {
	return &FakeGCPSecretManagerClient{
		Versions: make(map[string]*GCPSecretVersionData),
		Latest:   make(map[string]int),
		Errors:   make(map[string]error),
	}
}

// AddSecretVersion appends a new enabled version and returns its number
func (f *FakeGCPSecretManagerClient) AddSecretVersion(projectID, secretName string, value []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	secretFullName := fmt.Sprintf("projects/%s/secrets/%s", projectID, secretName)
	n := f.Latest[secretFullName] + 1
	f.Latest[secretFullName] = n

	versionFullName := fmt.Sprintf("%s/versions/%d", secretFullName, n)
	f.Versions[versionFullName] = &GCPSecretVersionData{
		Name:       versionFullName,
		State:      secretmanagerpb.SecretVersion_ENABLED,
		CreateTime: timestamppb.New(time.Now()),
		Data:       value,
	}
	return n
}

// AddError configures the mock to return an error for a specific secret
func (f *FakeGCPSecretManagerClient) AddError(projectID, secretName string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[fmt.Sprintf("projects/%s/secrets/%s", projectID, secretName)] = err
}

// Requests returns the resource names requested, in call order
func (f *FakeGCPSecretManagerClient) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// AccessSecretVersion mocks the AccessSecretVersion operation
func (f *FakeGCPSecretManagerClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	if f.AccessSecretVersionFunc != nil {
		return f.AccessSecretVersionFunc(ctx, req)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req.Name)

	secretFullName, version, ok := strings.Cut(req.Name, "/versions/")
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "invalid resource name %s", req.Name)
	}
	if err, exists := f.Errors[secretFullName]; exists {
		return nil, err
	}
	if version == "latest" {
		n, exists := f.Latest[secretFullName]
		if !exists {
			return nil, status.Errorf(codes.NotFound, "Secret %s not found", secretFullName)
		}
		version = strconv.Itoa(n)
	}

	data, exists := f.Versions[secretFullName+"/versions/"+version]
	if !exists {
		return nil, status.Errorf(codes.NotFound, "Secret version %s not found", req.Name)
	}
	if data.State != secretmanagerpb.SecretVersion_ENABLED {
		return nil, status.Errorf(codes.FailedPrecondition, "Secret version %s is in DISABLED state", data.Name)
	}

	return &secretmanagerpb.AccessSecretVersionResponse{
		Name: data.Name,
		Payload: &secretmanagerpb.SecretPayload{
			Data: data.Data,
		},
	}, nil
}

// GCPNotFoundError creates a mock GCP not found error
func GCPNotFoundError(resourceName string) error {
	return status.Errorf(codes.NotFound, "Resource %s not found", resourceName)
}

// GCPPermissionDeniedError creates a mock GCP permission denied error
func GCPPermissionDeniedError(message string) error {
	return status.Error(codes.PermissionDenied, message)
}
