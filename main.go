package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/server"
)

func main() {
	var (
		configPath string
		addr       string
		modelPath  string
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	flag.StringVar(&modelPath, "model", "", "Checkpoint to try first, overrides the candidate list order")
	flag.Parse()

	if err := run(configPath, addr, modelPath); err != nil {
		fmt.Fprintf(os.Stderr, "detect: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr, modelPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if modelPath != "" {
		cfg.PreferModel(config.ModelNameFromPath(modelPath), modelPath)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: server.ServiceName})
	log := logger.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dcfg, err := detectors.FromConfig(cfg.Model)
	if err != nil {
		return err
	}

	// A failed load leaves the detector degraded; the service still starts.
	pipeline, err := inference.NewEngineBuilder().
		WithMetrics(profiler.New()).
		WithConfig(cfg).
		LoadDetector(ctx, dcfg, detectors.LoadONNX).
		Build()
	if err != nil {
		return err
	}

	if !pipeline.Detector().Available() {
		log.Warn().Msg("starting without a detection model; /detect will answer 503")
	}
	return shutdown(log, pipeline, server.New(cfg.Server, pipeline).Run(ctx))
}

// shutdown releases the engine and the runtime once the server has stopped.
//
// When the graceful shutdown timed out, handlers may still be inside inference, so
// the engine is left open and the process exit reclaims it.
func shutdown(log *logger.Logger, engine inference.Engine, runErr error) error {
	if errors.Is(runErr, context.DeadlineExceeded) {
		log.Warn().Err(runErr).Msg("handlers still running; leaving detector open")
		return runErr
	}
	if err := engine.Close(); err != nil {
		log.Warn().Err(err).Msg("closing detector")
		return runErr
	}
	if err := providers.DestroyEnvironment(); err != nil {
		log.Warn().Err(err).Msg("destroying onnxruntime environment")
	}
	return runErr
}
