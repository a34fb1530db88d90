package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/queue-sentinel/internal/audio"
	"github.com/GriffinCanCode/queue-sentinel/internal/config"
	"github.com/GriffinCanCode/queue-sentinel/internal/match"
	"github.com/GriffinCanCode/queue-sentinel/internal/metrics"
	"github.com/GriffinCanCode/queue-sentinel/internal/orchestrator"
	"github.com/GriffinCanCode/queue-sentinel/internal/reference"
	"github.com/GriffinCanCode/queue-sentinel/internal/resilience"
	"github.com/GriffinCanCode/queue-sentinel/internal/screen"
	"github.com/GriffinCanCode/queue-sentinel/internal/server"
	"github.com/GriffinCanCode/queue-sentinel/internal/subimage"
	"github.com/GriffinCanCode/queue-sentinel/internal/trace"
)

const shutdownTimeout = 5 * time.Second

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	closeLog := setupLogging(cfg)
	defer func() { _ = closeLog() }()

	if err := cfg.Validate(); err != nil {
		return err
	}

	m := metrics.New()
	trace.SetObserver(m.ObserveStep)

	src, err := screen.NewSource()
	if err != nil {
		return err
	}
	capturer := screen.NewCapturer(src)
	defer func() { _ = capturer.Close() }()

	// No audio means no alerts: refuse to run rather than watch silently
	sink, err := audio.NewPortAudioSink()
	if err != nil {
		slog.Error("audio output unavailable", "error", err)
		return err
	}
	defer func() { _ = sink.Close() }()

	breaker := resilience.New(resilience.AlertConfig()).WithHook(func(name string, _, to resilience.State) {
		m.BreakerState(name, uint32(to))
	})
	alerter := audio.NewAlerter(sink, breaker, cfg.AlertFrequency, cfg.AlertDuration).WithObserver(m.Alert)

	policy := match.NewPolicy(subimage.NewSearcher(cfg.SearchPruneDistance), match.Config{
		MaxResults:  cfg.MatchMaxResults,
		MaxDistance: cfg.MatchMaxDistance,
	})

	orch := orchestrator.New(cfg, orchestrator.Deps{
		Capturer: capturer,
		Store:    reference.NewStore(cfg.ReferencePath()),
		Locator:  policy,
		Alerter:  alerter,
		Metrics:  m,
	})
	srv := server.New(orch, m.Handler())
	grpcServer, health := server.NewGRPCServer(orch)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		return err
	}
	go srv.Run(ctx)
	go health.Run(ctx, server.HealthInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		orch.Stop()
		return err
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("grpc server error", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("sentinel listening", "http", cfg.HTTPAddr, "grpc", cfg.GRPCAddr, "reference", cfg.ReferencePath())
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}

	orch.Stop()
	slog.Info("shutdown complete")
	return nil
}
