package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/MrEthical07/teamgate/internal/httpapi"
	otelexport "github.com/MrEthical07/teamgate/metrics/export/otel"
	promexport "github.com/MrEthical07/teamgate/metrics/export/prometheus"
)

const meterName = "github.com/MrEthical07/teamgate"

// Runtime runs the HTTP API, the optional gRPC health endpoint and the
// expired-secret sweep until the context ends or a signal arrives.
type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	services   *Services
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	health     *health.Server
	otel       *otelexport.Exporter
}

// NewRuntime wires the servers around services. It takes ownership of
// services and closes them when Run returns.
func NewRuntime(cfg Config, services *Services, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runtime{cfg: cfg, logger: logger, services: services}

	router := httpapi.NewRouter(services.Engine, httpapi.Options{
		Logger:            logger,
		Metrics:           promexport.Handler(services.Engine),
		Ready:             services.Ping,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		RequestTimeout:    30 * time.Second,
	})
	r.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.OTelMetrics {
		exp, err := otelexport.NewExporter(otel.GetMeterProvider().Meter(meterName), services.Engine)
		if err != nil {
			return nil, fmt.Errorf("register otel metrics: %w", err)
		}
		r.otel = exp
	}

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			r.closeOTel()
			return nil, fmt.Errorf("listen gRPC: %w", err)
		}
		r.grpcLis = lis
		r.grpcServer = grpc.NewServer()
		r.health = health.NewServer()
		healthpb.RegisterHealthServer(r.grpcServer, r.health)
		r.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	return r, nil
}

// Handler returns the HTTP handler served by Run.
func (r *Runtime) Handler() http.Handler {
	return r.httpServer.Handler
}

// Run serves until ctx ends, SIGINT or SIGTERM arrives, or a server fails,
// then shuts down gracefully.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	if r.grpcServer != nil {
		go func() {
			r.logger.Info("grpc health server started", "addr", r.grpcLis.Addr().String())
			if err := r.grpcServer.Serve(r.grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	purgeCtx, cancelPurge := context.WithCancel(ctx)
	purgeDone := make(chan struct{})
	go func() {
		defer close(purgeDone)
		purgeLoop(purgeCtx, r.cfg.PurgeInterval, r.services.PurgeExpired, r.logger)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	cancelPurge()
	<-purgeDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
	defer cancel()
	if r.health != nil {
		r.health.Shutdown()
	}
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("http shutdown incomplete", "error", err)
	}
	if r.grpcServer != nil {
		r.grpcServer.GracefulStop()
	}
	r.closeOTel()
	r.services.Close()
	return runErr
}

func (r *Runtime) closeOTel() {
	if r.otel == nil {
		return
	}
	if err := r.otel.Close(); err != nil {
		r.logger.Warn("otel metrics unregister failed", "error", err)
	}
	r.otel = nil
}

// purgeLoop calls purge every interval until ctx ends. A non-positive
// interval disables it.
func purgeLoop(ctx context.Context, interval time.Duration, purge func(context.Context, time.Time) (int64, error), logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := purge(ctx, now)
			switch {
			case err != nil && ctx.Err() == nil:
				logger.ErrorContext(ctx, "expired secret purge failed", "error", err)
			case removed > 0:
				logger.InfoContext(ctx, "expired secrets purged", "removed", removed)
			}
		}
	}
}
