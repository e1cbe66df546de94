package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/wake-gate/internal/audio"
	"github.com/lexiqai/wake-gate/internal/config"
	"github.com/lexiqai/wake-gate/internal/observability"
	"github.com/lexiqai/wake-gate/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	gateFile, err := config.LoadGateFile(cfg.GateConfigFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.GateConfigFile).Msg("Failed to load gate configuration")
	}

	cues, err := gateFile.LoadCues(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load cue audio")
	}

	var deps atomic.Pointer[session.Dependencies]
	deps.Store(&session.Dependencies{Config: cfg, Gate: gateFile, Cues: cues})

	var device *audio.DeviceOutput
	if cfg.CueOutput == config.CueOutputDevice {
		device, err = audio.NewDeviceOutput()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to open audio device")
		}
		defer device.Close()
		deps.Load().Device = device
	}

	logger.Info().
		Str("port", cfg.Port).
		Str("gate_config", cfg.GateConfigFile).
		Bool("wake_check", gateFile.GateEnabled()).
		Strs("wake_words", gateFile.WakeCheck.WakeWords).
		Str("cue_output", cfg.CueOutput).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Wake Gate Service starting")

	// Create HTTP server
	mux := http.NewServeMux()

	// Register gate WebSocket handler
	mux.HandleFunc("/v1/gate", session.Handler(func() session.Dependencies { return *deps.Load() }))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness checks
	checks := map[string]observability.HealthCheckFunc{
		"gate_config": func(ctx context.Context) (bool, error) {
			current := deps.Load()
			if current.Gate.GateEnabled() && len(current.Gate.WakeCheck.WakeWords) == 0 {
				return false, errors.New("no wake words configured")
			}
			return true, nil
		},
	}
	if device != nil {
		checks["audio_device"] = func(ctx context.Context) (bool, error) {
			return device.Available()
		}
	}

	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Reload the gate file for new sessions when it changes
	watcher, err := config.NewGateWatcher(cfg.GateConfigFile, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Gate configuration reload disabled")
	} else {
		go watcher.Run(ctx, func(f *config.GateFile) {
			cues, err := f.LoadCues(logger)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to reload cue audio, keeping previous configuration")
				return
			}
			next := *deps.Load()
			next.Gate = f
			next.Cues = cues
			deps.Store(&next)
		})
	}

	// Optional gRPC health service
	var grpcHealth *observability.GRPCHealthServer
	if cfg.GRPCHealthPort != "" {
		grpcHealth, err = observability.NewGRPCHealthServer(fmt.Sprintf(":%s", cfg.GRPCHealthPort), checks, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to start gRPC health server")
		}
		go func() {
			if err := grpcHealth.Serve(ctx, 10*time.Second); err != nil {
				logger.Error().Err(err).Msg("gRPC health server stopped")
			}
		}()
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/v1/gate", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if grpcHealth != nil {
		grpcHealth.Stop()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
