package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/systmms/edgesecrets/internal/chain"
	"github.com/systmms/edgesecrets/internal/config"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/internal/metrics"
	"github.com/systmms/edgesecrets/internal/wstransport"
)

var stderr io.Writer = os.Stderr

// session is an assembled chain plus the transport it owns
type session struct {
	*chain.Chain
	client *wstransport.Client
}

func (s *session) Close() {
	if s.client != nil {
		_ = s.client.Close()
	}
	_ = s.Chain.Close()
}

// loadConfig loads the configuration once and applies its log settings
func loadConfig(cfg *config.Config) error {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Definition != nil {
		return nil
	}
	if err := cfg.Load(); err != nil {
		return err
	}
	if log := cfg.Definition.Log; log.Format == "json" || log.Debug {
		cfg.Logger = logging.NewWithWriter(stderr, logging.Options{
			Debug:  log.Debug || cfg.Logger.IsDebug(),
			Format: log.Format,
		})
	}
	return nil
}

// openChain builds the configured chain, dialing the transport when a
// remote layer needs it
func openChain(ctx context.Context, cfg *config.Config) (*session, error) {
	if err := loadConfig(cfg); err != nil {
		return nil, err
	}
	def := cfg.Definition

	opts := []chain.Option{chain.WithLogger(cfg.Logger)}
	if def.Metrics.Enabled {
		metrics.InitMetrics()
		opts = append(opts, chain.WithObserver(metrics.NewStoreMetrics()))
	}

	s := &session{}
	if needsTransport(def) {
		client, err := wstransport.Dial(ctx, wstransport.ClientConfig{
			URL:              def.Transport.URL,
			DeviceID:         def.Transport.DeviceID,
			Headers:          toHeader(def.Transport.Headers),
			HandshakeTimeout: def.Transport.HandshakeTimeout(),
		}, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect transport: %w", err)
		}
		s.client = client
		opts = append(opts, chain.WithChannel(client))
	}

	c, err := chain.Build(def, opts...)
	if err != nil {
		if s.client != nil {
			_ = s.client.Close()
		}
		return nil, err
	}
	s.Chain = c
	return s, nil
}

func needsTransport(def *config.Definition) bool {
	for _, layer := range def.Chain {
		if layer.Type == config.LayerRemote {
			return true
		}
	}
	return false
}

func toHeader(m map[string]string) http.Header {
	h := http.Header{}
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}
