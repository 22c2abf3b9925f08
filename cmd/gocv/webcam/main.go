//go:build gocv

// Command webcam reads frames from a capture device or a video file with gocv and
// runs the detection pipeline on each of them.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/signal"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/logger"
)

func main() {
	var (
		configPath string
		source     string
		modelPath  string
		show       bool
		every      int
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&source, "source", "0", "Capture device id or video file")
	flag.StringVar(&modelPath, "model", "", "Checkpoint to try first")
	flag.BoolVar(&show, "show-window", false, "Show detections in a window")
	flag.IntVar(&every, "every", 1, "Run detection on every n-th frame")
	flag.Parse()

	if err := run(configPath, source, modelPath, show, max(every, 1)); err != nil {
		fmt.Fprintf(os.Stderr, "webcam: %v\n", err)
		os.Exit(1)
	}
}

func open(source string) (*gocv.VideoCapture, error) {
	if id, err := strconv.Atoi(source); err == nil {
		return gocv.OpenVideoCapture(id)
	}
	return gocv.OpenVideoCapture(source)
}

func run(configPath, source, modelPath string, show bool, every int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if modelPath != "" {
		cfg.PreferModel(config.ModelNameFromPath(modelPath), modelPath)
	}
	logger.Init(logger.Options{Level: cfg.Log.Level, Format: "console"})
	log := logger.Named("webcam")

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

	capture, err := open(source)
	if err != nil {
		return fmt.Errorf("opening %s: %w", source, err)
	}
	defer capture.Close()

	var window *gocv.Window
	if show {
		window = gocv.NewWindow("Detections")
		defer window.Close()
	}

	img := gocv.NewMat()
	defer img.Close()

	opts := pipeline.DefaultOptions()
	opts.Annotate = false
	green := color.RGBA{0, 255, 0, 0}

	log.Info().Str("source", source).Msg("reading frames")
	for n := 0; ctx.Err() == nil; n++ {
		if ok := capture.Read(&img); !ok {
			log.Info().Int("frames", n).Msg("end of stream")
			return nil
		}
		if img.Empty() || n%every != 0 {
			continue
		}

		// video frames enter the pipeline the same way uploads do
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
		if err != nil {
			log.Warn().Err(err).Int("frame", n).Msg("encoding frame")
			continue
		}
		start := time.Now()
		payload, err := pipeline.Detect(ctx, inference.Request{
			Data:     buf.GetBytes(),
			MIME:     "image/jpeg",
			SourceID: fmt.Sprintf("%s#%d", source, n),
			Options:  opts,
		})
		buf.Close()
		if err != nil {
			log.Warn().Err(err).Int("frame", n).Msg("detection failed")
			continue
		}

		labels := make([]string, len(payload.Detections))
		for i, d := range payload.Detections {
			labels[i] = fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
		}
		log.Info().
			Int("frame", n).
			Int("count", payload.Count).
			Strs("detections", labels).
			Dur("elapsed", time.Since(start)).
			Msg("frame")

		if window != nil {
			for _, d := range payload.Detections {
				r := image.Rect(int(d.Box.XMin), int(d.Box.YMin), int(d.Box.XMax), int(d.Box.YMax))
				gocv.Rectangle(&img, r, green, 2)
				caption := fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
				gocv.PutText(&img, caption, r.Min.Add(image.Pt(0, -4)), gocv.FontHersheyPlain, 1.2, green, 2)
			}
			window.IMShow(img)
			window.WaitKey(1)
		}
	}
	return nil
}
