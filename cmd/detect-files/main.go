// Command detect-files runs the detection pipeline over a directory of frames and
// prints one JSON line per frame.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/util"
)

// line is written to stdout for every frame.
type line struct {
	File    string             `json:"file"`
	Frame   *int               `json:"frame,omitempty"` // nil unless named frame-<n>
	Error   string             `json:"error,omitempty"`
	Payload *inference.Payload `json:"payload,omitempty"`
}

func main() {
	var (
		configPath string
		dir        string
		modelPath  string
		confidence float64
		annotate   bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&dir, "dir", ".", "Directory of frames (frame-<n>.jpg or any supported image)")
	flag.StringVar(&modelPath, "model", "", "Checkpoint to try first")
	flag.Float64Var(&confidence, "confidence", -1, "Confidence threshold, overrides the configuration")
	flag.BoolVar(&annotate, "annotate", false, "Embed annotated images in the output")
	flag.Parse()

	if err := run(configPath, dir, modelPath, confidence, annotate); err != nil {
		fmt.Fprintf(os.Stderr, "detect-files: %v\n", err)
		os.Exit(1)
	}
}

func frameIndex(f util.ImageFile) *int {
	if f.Frame < 0 {
		return nil
	}
	n := f.Frame
	return &n
}

func run(configPath, dir, modelPath string, confidence float64, annotate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if modelPath != "" {
		cfg.PreferModel(config.ModelNameFromPath(modelPath), modelPath)
	}
	// stdout carries the results
	logger.Init(logger.Options{Level: cfg.Log.Level, Format: "console", Writer: os.Stderr})
	log := logger.Named("detect-files")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dcfg, err := detectors.FromConfig(cfg.Model)
	if err != nil {
		return err
	}
	pipeline, err := inference.NewEngineBuilder().
		WithConfig(cfg).
		LoadDetector(ctx, dcfg, detectors.LoadONNX).
		Build()
	if err != nil {
		return err
	}
	defer pipeline.Close()
	if err := pipeline.Detector().Check(); err != nil {
		return err
	}

	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return err
	}
	log.Info().Str("dir", dir).Int("files", len(files)).Msg("processing frames")

	opts := pipeline.DefaultOptions()
	opts.Annotate = annotate
	if confidence >= 0 {
		opts.ConfidenceThreshold = float32(confidence)
	}

	enc := json.NewEncoder(os.Stdout)
	start := time.Now()
	var failed int
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		out := line{File: filepath.Base(f.Path), Frame: frameIndex(f)}
		payload, err := pipeline.Detect(ctx, inference.Request{Data: f.Data, SourceID: out.File, Options: opts})
		if err != nil {
			failed++
			out.Error = err.Error()
		} else {
			out.Payload = payload
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}

	log.Info().
		Int("frames", len(files)).
		Int("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("done")
	return nil
}
