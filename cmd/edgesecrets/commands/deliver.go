package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/edgesecrets/internal/config"
	"github.com/systmms/edgesecrets/internal/delivery"
	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/internal/metrics"
	"github.com/systmms/edgesecrets/internal/sources"
	"github.com/systmms/edgesecrets/internal/wstransport"
	"github.com/systmms/edgesecrets/pkg/transport"
)

const shutdownTimeout = 10 * time.Second

func NewDeliverCommand(cfg *config.Config) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Run the cloud delivery service",
		Long: `Accept device connections over websocket and answer their secret requests
from the configured delivery source (Azure Key Vault, AWS Secrets Manager,
AWS SSM, GCP Secret Manager, SQL or a static map).

Each request is answered by invoking UpdateSecrets on the requesting device.
Secrets the source does not have are left out of the answer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			def := cfg.Definition
			if listen != "" {
				def.Delivery.Listen = listen
			}

			srv, err := newDeliveryServer(def, cfg.Logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides delivery.listen)")
	return cmd
}

// deliveryServer wires a source, a responder and the websocket hub
type deliveryServer struct {
	def       *config.Definition
	logger    *logging.Logger
	hub       *wstransport.Hub
	responder *delivery.Responder
	metrics   *metrics.Server
}

func newDeliveryServer(def *config.Definition, logger *logging.Logger) (*deliveryServer, error) {
	if def.Delivery.Source.Type == "" {
		return nil, dserrors.ConfigError{
			Field:      "delivery.source.type",
			Message:    "the delivery service needs a source",
			Suggestion: "Use one of: azure-keyvault, aws-secretsmanager, aws-ssm, gcp-secretmanager, sql, static",
		}
	}

	source, err := sources.New("delivery", def.Delivery.Source, logger)
	if err != nil {
		return nil, err
	}

	opts := []delivery.Option{
		delivery.WithLogger(logger),
		delivery.WithSourceTimeout(def.Delivery.Source.GetTimeout()),
	}
	metricsConfig := metrics.DefaultServerConfig()
	metricsConfig.Enabled = def.Metrics.Enabled
	metricsConfig.Port = def.Metrics.MetricsPort()
	metricsConfig.Path = def.Metrics.MetricsPath()
	if metricsConfig.Enabled {
		metrics.InitMetrics()
		opts = append(opts, delivery.WithRecorder(metrics.NewDeliveryMetrics()))
	}

	s := &deliveryServer{
		def:       def,
		logger:    logger,
		responder: delivery.New(source, opts...),
		metrics:   metrics.NewServer(metricsConfig, logger),
	}
	s.hub = wstransport.NewHub(s.handleEvent, logger, wstransport.WithAPIKey(def.Delivery.APIKey))
	return s, nil
}

func (s *deliveryServer) handleEvent(ctx context.Context, deviceID string, msg transport.Message, reply wstransport.Invoker) {
	if err := s.responder.Handle(ctx, msg.Payload, reply); err != nil {
		s.logger.Warn("Request from device %s not delivered: %v", deviceID, err)
	}
}

// Handler serves the device endpoint
func (s *deliveryServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.def.Delivery.EndpointPath(), s.hub)
	return mux
}

// Run serves until ctx is cancelled
func (s *deliveryServer) Run(ctx context.Context) error {
	if err := s.metrics.Start(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.def.Delivery.ListenAddr())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	s.logger.Info("Delivering secrets on %s%s", ln.Addr(), s.def.Delivery.EndpointPath())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down delivery service")
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.metrics.Stop(shutdownCtx)
	return server.Shutdown(shutdownCtx)
}
