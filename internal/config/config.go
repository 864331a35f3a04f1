package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given
const DefaultPath = "edgesecrets.yaml"

// Layer types
const (
	LayerMemory = "memory"
	LayerFile   = "file"
	LayerRemote = "remote"
)

const (
	defaultRemoteTimeout = 10 * time.Second
	defaultClientTimeout = 30 * time.Second
)

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the edgesecrets.yaml structure
type Definition struct {
	Version      int                          `yaml:"version"`
	Log          LogConfig                    `yaml:"log,omitempty"`
	KeyProviders map[string]KeyProviderConfig `yaml:"keyProviders,omitempty"`
	// Chain is ordered from the layer nearest the caller to the source of truth
	Chain     []LayerConfig   `yaml:"chain"`
	Client    ClientConfig    `yaml:"client,omitempty"`
	Transport TransportConfig `yaml:"transport,omitempty"`
	Delivery  DeliveryConfig  `yaml:"delivery,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
}

// LogConfig controls log output
type LogConfig struct {
	Debug  bool   `yaml:"debug,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// KeyProviderConfig holds key-operations provider configuration
type KeyProviderConfig struct {
	Type      string                 `yaml:"type"`
	TimeoutMs int                    `yaml:"timeout_ms,omitempty"`
	Config    map[string]interface{} `yaml:",inline"`
}

// LayerConfig describes one layer of the store chain
type LayerConfig struct {
	Type        string `yaml:"type"`
	Name        string `yaml:"name,omitempty"`
	Path        string `yaml:"path,omitempty"`
	KeyProvider string `yaml:"keyProvider,omitempty"`
	KeyID       string `yaml:"keyId,omitempty"`
	TimeoutMs   int    `yaml:"timeout_ms,omitempty"`
}

// ClientConfig tunes the secret manager client
type ClientConfig struct {
	TimeoutMs int `yaml:"timeout_ms,omitempty"`
}

// TransportConfig describes the device-to-cloud channel
type TransportConfig struct {
	Type               string            `yaml:"type,omitempty"`
	URL                string            `yaml:"url,omitempty"`
	DeviceID           string            `yaml:"device_id,omitempty"`
	HandshakeTimeoutMs int               `yaml:"handshake_timeout_ms,omitempty"`
	Headers            map[string]string `yaml:"headers,omitempty"`
}

// DeliveryConfig configures the cloud-side delivery service
type DeliveryConfig struct {
	Listen string `yaml:"listen,omitempty"`
	Path   string `yaml:"path,omitempty"`
	// APIKey, when set, must match the X-API-KEY header of every device
	APIKey string       `yaml:"api_key,omitempty"`
	Source SourceConfig `yaml:"source,omitempty"`
}

// SourceConfig holds delivery source configuration
type SourceConfig struct {
	Type      string                 `yaml:"type"`
	TimeoutMs int                    `yaml:"timeout_ms,omitempty"`
	Config    map[string]interface{} `yaml:",inline"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// Load reads, expands and validates the configuration file
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create edgesecrets.yaml or pass --config",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}
	c.Definition = def
	return nil
}

// Parse expands ${VAR} references and decodes a configuration document
func Parse(data []byte) (*Definition, error) {
	expanded := os.ExpandEnv(string(data))

	var def Definition
	if err := yaml.Unmarshal([]byte(expanded), &def); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}

	if def.Version != 0 {
		return nil, dserrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your edgesecrets.yaml file",
		}
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks cross references and layer settings
func (d *Definition) Validate() error {
	if len(d.Chain) == 0 {
		return dserrors.ConfigError{
			Field:      "chain",
			Message:    "at least one layer is required",
			Suggestion: "Add a layer such as '- type: memory'",
		}
	}

	for i, layer := range d.Chain {
		field := fmt.Sprintf("chain[%d]", i)

		switch layer.Type {
		case LayerMemory:
		case LayerFile:
			if layer.Path == "" {
				return dserrors.ConfigError{
					Field:      field + ".path",
					Message:    "file layers need a path",
					Suggestion: "Set path to a writable location such as /var/lib/edgesecrets/secrets.json",
				}
			}
		case LayerRemote:
			if d.Transport.URL == "" {
				return dserrors.ConfigError{
					Field:      "transport.url",
					Message:    "a remote layer needs a transport",
					Suggestion: "Configure transport.url and transport.device_id",
				}
			}
		default:
			return dserrors.ConfigError{
				Field:      field + ".type",
				Value:      layer.Type,
				Message:    "unknown layer type",
				Suggestion: "Use one of: memory, file, remote",
			}
		}

		if layer.TimeoutMs < 0 {
			return dserrors.ConfigError{
				Field:      field + ".timeout_ms",
				Value:      layer.TimeoutMs,
				Message:    "timeout must not be negative",
				Suggestion: "Remove the field to use the default",
			}
		}

		if layer.KeyProvider != "" {
			if _, ok := d.KeyProviders[layer.KeyProvider]; !ok {
				return dserrors.ConfigError{
					Field:      field + ".keyProvider",
					Value:      layer.KeyProvider,
					Message:    "key provider not found in configuration",
					Suggestion: availableSuggestion("key providers", keys(d.KeyProviders)),
				}
			}
			if layer.KeyID == "" {
				return dserrors.ConfigError{
					Field:   field + ".keyId",
					Message: "layers with a key provider need a keyId",
				}
			}
		}
	}

	for name, kp := range d.KeyProviders {
		if kp.Type == "" {
			return dserrors.ConfigError{
				Field:      "keyProviders." + name + ".type",
				Message:    "key provider type is required",
				Suggestion: "Use one of: local, azure-keyvault, reverse",
			}
		}
	}

	if d.Log.Format != "" && d.Log.Format != "console" && d.Log.Format != "json" {
		return dserrors.ConfigError{
			Field:      "log.format",
			Value:      d.Log.Format,
			Message:    "unknown log format",
			Suggestion: "Use console or json",
		}
	}

	return nil
}

// GetKeyProvider returns the configuration for a named key provider
func (c *Config) GetKeyProvider(name string) (KeyProviderConfig, error) {
	if c.Definition == nil {
		return KeyProviderConfig{}, dserrors.UserError{
			Message:    "Configuration not loaded",
			Suggestion: "This is an internal error. Please report it",
		}
	}
	return c.Definition.KeyProvider(name)
}

// KeyProvider returns the configuration for a named key provider
func (d *Definition) KeyProvider(name string) (KeyProviderConfig, error) {
	if kp, ok := d.KeyProviders[name]; ok {
		return kp, nil
	}

	return KeyProviderConfig{}, dserrors.ConfigError{
		Field:      "keyProvider",
		Value:      name,
		Message:    "key provider not found in configuration",
		Suggestion: availableSuggestion("key providers", keys(d.KeyProviders)),
	}
}

// GetTimeout returns the provider timeout
func (p KeyProviderConfig) GetTimeout() time.Duration {
	if p.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// GetTimeout returns the source timeout
func (s SourceConfig) GetTimeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// RemoteTimeout returns how long a remote layer waits for a response
func (l LayerConfig) RemoteTimeout() time.Duration {
	if l.TimeoutMs <= 0 {
		return defaultRemoteTimeout
	}
	return time.Duration(l.TimeoutMs) * time.Millisecond
}

// DisplayName returns the configured name or the layer type
func (l LayerConfig) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	return l.Type
}

// Timeout returns the client's GetSecretValue bound
func (c ClientConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return defaultClientTimeout
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// HandshakeTimeout returns the websocket handshake bound
func (t TransportConfig) HandshakeTimeout() time.Duration {
	if t.HandshakeTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(t.HandshakeTimeoutMs) * time.Millisecond
}

// ListenAddr returns the delivery listen address
func (d DeliveryConfig) ListenAddr() string {
	if d.Listen == "" {
		return ":8443"
	}
	return d.Listen
}

// EndpointPath returns the delivery websocket path
func (d DeliveryConfig) EndpointPath() string {
	if d.Path == "" {
		return "/devices"
	}
	return d.Path
}

// MetricsPort returns the metrics port
func (m MetricsConfig) MetricsPort() int {
	if m.Port == 0 {
		return 9090
	}
	return m.Port
}

// MetricsPath returns the metrics path
func (m MetricsConfig) MetricsPath() string {
	if m.Path == "" {
		return "/metrics"
	}
	return m.Path
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func availableSuggestion(what string, available []string) string {
	if len(available) == 0 {
		return fmt.Sprintf("Add %s to the configuration", what)
	}
	return fmt.Sprintf("Available %s: %s", what, strings.Join(available, ", "))
}
