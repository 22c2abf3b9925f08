// Package config - Service configuration from YAML, environment and flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "DETECT_"

// Config is the complete service configuration.
type Config struct {
	Server    Server    `json:"server" yaml:"server" validate:"required"`
	Model     Model     `json:"model" yaml:"model" validate:"required"`
	Detection Detection `json:"detection" yaml:"detection" validate:"required"`
	Decoder   Decoder   `json:"decoder" yaml:"decoder" validate:"required"`
	Log       Log       `json:"log" yaml:"log" validate:"required"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr         string        `json:"addr" yaml:"addr" validate:"required"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" validate:"gte=0"`
	// MaxBodyBytes bounds the size of a /detect request body.
	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" validate:"gt=0"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins"`
}

// Candidate is one checkpoint the detector may load.
type Candidate struct {
	// Name selects the output decoder, e.g. "yolov8n" or "yolov5s".
	Name string `json:"name" yaml:"name" validate:"required"`
	Path string `json:"path" yaml:"path" validate:"required"`
	// URL, when set, is fetched into Path if Path does not exist yet.
	URL     string `json:"url" yaml:"url" validate:"omitempty,url"`
	Version string `json:"version" yaml:"version"`
}

// Model configures checkpoint loading and the runtime.
type Model struct {
	// Candidates are tried in order; the first that loads wins.
	Candidates   []Candidate   `json:"candidates" yaml:"candidates" validate:"required,min=1,dive"`
	InputWidth   int           `json:"input_width" yaml:"input_width" validate:"gt=0"`
	InputHeight  int           `json:"input_height" yaml:"input_height" validate:"gt=0"`
	ClassSet     string        `json:"class_set" yaml:"class_set" validate:"oneof=yolo coco voc"`
	SharedLib    string        `json:"shared_lib" yaml:"shared_lib"`
	Provider     string        `json:"provider" yaml:"provider" validate:"oneof=cpu coreml cuda"`
	IntraThreads int           `json:"intra_threads" yaml:"intra_threads" validate:"gte=0"`
	InterThreads int           `json:"inter_threads" yaml:"inter_threads" validate:"gte=0"`
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" validate:"gte=0"`
}

// Detection holds the request defaults.
type Detection struct {
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	IoUThreshold        float32 `json:"iou_threshold" yaml:"iou_threshold" validate:"gte=0,lte=1"`
	Annotate            bool    `json:"annotate" yaml:"annotate"`
	AnnotationFormat    string  `json:"annotation_format" yaml:"annotation_format" validate:"oneof=png jpeg"`
}

// Decoder bounds the media decoder.
type Decoder struct {
	MaxPixels int `json:"max_pixels" yaml:"max_pixels" validate:"gt=0"`
}

// Log configures the root logger.
type Log struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `json:"format" yaml:"format" validate:"oneof=console json"`
}

// Default returns the configuration used when nothing else is supplied.
//
// Returns:
//   - Config: Defaults for a CPU deployment listening on :5000.
//
// @example
// cfg := config.Default()
// cfg.Model.Candidates[0].Path = "/models/yolov8n.onnx"
func Default() Config {
	return Config{
		Server: Server{
			Addr:         ":5000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			MaxBodyBytes: 10 << 20,
			CORSOrigins:  []string{"*"},
		},
		Model: Model{
			Candidates: []Candidate{
				{Name: "yolov8n", Path: "models/yolov8n.onnx", Version: "8.0"},
				{Name: "yolov5s", Path: "models/yolov5s.onnx", Version: "5.0"},
			},
			InputWidth:   640,
			InputHeight:  640,
			ClassSet:     "yolo",
			Provider:     "cpu",
			FetchTimeout: 2 * time.Minute,
		},
		Detection: Detection{
			ConfidenceThreshold: 0.3,
			IoUThreshold:        0.45,
			Annotate:            true,
			AnnotationFormat:    "png",
		},
		Decoder: Decoder{MaxPixels: 40_000_000},
		Log:     Log{Level: "info", Format: "json"},
	}
}

// Load builds a configuration from defaults, an optional YAML file and the environment.
//
// Arguments:
//   - path: The YAML file to read. Empty means defaults plus environment only.
//
// Returns:
//   - Config: The validated configuration.
//   - error: An error if the file cannot be read or the result is invalid.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg.ApplyEnv(NewEnv(EnvPrefix))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto c.
//
// A single candidate can be forced with MODEL_PATH (and optionally MODEL_NAME, MODEL_URL);
// it is tried before the configured list.
func (c *Config) ApplyEnv(env Env) {
	srv := env.Prefix("SERVER_")
	c.Server.Addr = srv.MayString("ADDR", c.Server.Addr)
	c.Server.ReadTimeout = srv.MayDuration("READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = srv.MayDuration("WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.MaxBodyBytes = srv.MayInt64("MAX_BODY_BYTES", c.Server.MaxBodyBytes)
	c.Server.CORSOrigins = srv.MayCSV("CORS_ORIGINS", c.Server.CORSOrigins)

	mdl := env.Prefix("MODEL_")
	if p := mdl.MayString("PATH", ""); p != "" {
		c.PreferModel(mdl.MayString("NAME", ""), p)
		c.Model.Candidates[0].URL = mdl.MayString("URL", c.Model.Candidates[0].URL)
	}
	c.Model.InputWidth = mdl.MayInt("INPUT_WIDTH", c.Model.InputWidth)
	c.Model.InputHeight = mdl.MayInt("INPUT_HEIGHT", c.Model.InputHeight)
	c.Model.ClassSet = mdl.MayString("CLASS_SET", c.Model.ClassSet)
	c.Model.SharedLib = mdl.MayString("SHARED_LIB", c.Model.SharedLib)
	c.Model.Provider = mdl.MayString("PROVIDER", c.Model.Provider)
	c.Model.IntraThreads = mdl.MayInt("INTRA_THREADS", c.Model.IntraThreads)
	c.Model.InterThreads = mdl.MayInt("INTER_THREADS", c.Model.InterThreads)
	c.Model.FetchTimeout = mdl.MayDuration("FETCH_TIMEOUT", c.Model.FetchTimeout)

	c.Detection.ConfidenceThreshold = env.MayFloat32("CONFIDENCE_THRESHOLD", c.Detection.ConfidenceThreshold)
	c.Detection.IoUThreshold = env.MayFloat32("IOU_THRESHOLD", c.Detection.IoUThreshold)
	c.Detection.Annotate = env.MayBool("ANNOTATE", c.Detection.Annotate)
	c.Detection.AnnotationFormat = env.MayString("ANNOTATION_FORMAT", c.Detection.AnnotationFormat)

	c.Decoder.MaxPixels = env.MayInt("DECODER_MAX_PIXELS", c.Decoder.MaxPixels)

	c.Log.Level = strings.ToLower(env.MayString("LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(env.MayString("LOG_FORMAT", c.Log.Format))
}

// PreferModel puts a checkpoint at the front of the candidate list.
//
// Arguments:
//   - name: The decoder name. Empty infers it from the file name.
//   - path: The checkpoint path.
func (c *Config) PreferModel(name, path string) {
	if name == "" {
		name = ModelNameFromPath(path)
	}
	kept := make([]Candidate, 0, len(c.Model.Candidates)+1)
	kept = append(kept, Candidate{Name: name, Path: path})
	for _, cand := range c.Model.Candidates {
		if cand.Path != path {
			kept = append(kept, cand)
		}
	}
	c.Model.Candidates = kept
}

// ModelNameFromPath guesses the decoder name from a checkpoint file name.
func ModelNameFromPath(path string) string {
	base := strings.ToLower(path)
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	switch {
	case strings.HasPrefix(base, "yolov5"):
		return "yolov5"
	default:
		return "yolov8"
	}
}

// Validate checks the struct tags and the cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if c.Server.ReadTimeout > 0 && c.Server.WriteTimeout > 0 && c.Server.WriteTimeout < c.Server.ReadTimeout {
		return fmt.Errorf("invalid config: write_timeout %s shorter than read_timeout %s",
			c.Server.WriteTimeout, c.Server.ReadTimeout)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())
