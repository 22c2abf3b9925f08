package detectors

import (
	"fmt"

	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/preprocess"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXModel runs a YOLO checkpoint through ONNX Runtime.
type ONNXModel struct {
	session *providers.Session
	decoder model.Model
	classes *models.OutputClassSet
	name    string
	version string
	shape   preprocess.Shape
}

// NewONNXModel loads one checkpoint.
//
// Arguments:
//   - c: The checkpoint. Its name selects the output decoder.
//   - cfg: The detector configuration.
//
// Returns:
//   - *ONNXModel: The loaded model.
//   - error: An error if the decoder, class table or session cannot be created.
func NewONNXModel(c Candidate, cfg Config) (*ONNXModel, error) {
	classes, err := models.ClassSet(cfg.ClassSet)
	if err != nil {
		return nil, err
	}
	decoder, err := models.NewModel(model.NewModelArgs{
		Name:    model.Name(c.Name),
		Path:    c.Path,
		Family:  string(cfg.ClassSet),
		Version: c.Version,
	})
	if err != nil {
		return nil, err
	}

	session, err := providers.NewSession(cfg.Provider, c.Path)
	if err != nil {
		return nil, err
	}

	m := &ONNXModel{
		session: session,
		decoder: decoder,
		classes: classes,
		name:    c.Name,
		version: c.Version,
		shape:   inputShape(session.Inputs[0], cfg.InputShape),
	}
	if m.version == "" && session.Metadata.Version > 0 {
		m.version = fmt.Sprintf("%d", session.Metadata.Version)
	}
	return m, nil
}

// LoadONNX is the Loader for ONNX checkpoints.
func LoadONNX(c Candidate, cfg Config) (Model, error) {
	m, err := NewONNXModel(c, cfg)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// inputShape prefers the static NCHW size declared by the model.
func inputShape(info ort.InputOutputInfo, fallback preprocess.Shape) preprocess.Shape {
	d := info.Dimensions
	if len(d) == 4 && d[2] > 0 && d[3] > 0 {
		return preprocess.Shape{Width: int(d[3]), Height: int(d[2])}
	}
	return fallback
}

func (m *ONNXModel) Name() string { return m.name }
func (m *ONNXModel) Version() string { return m.version }
func (m *ONNXModel) InputShape() preprocess.Shape { return m.shape }
func (m *ONNXModel) Classes() postprocess.Labeler { return m.classes }
func (m *ONNXModel) Metadata() providers.Metadata { return m.session.Metadata }

// Infer runs one forward pass. Input and output tensors belong to this call only.
//
// Arguments:
//   - t: The prepared tensor.
//
// Returns:
//   - []postprocess.RawDetection: The decoded candidates.
//   - error: An error if the run fails or the output cannot be decoded.
func (m *ONNXModel) Infer(t *preprocess.Tensor) ([]postprocess.RawDetection, error) {
	input, err := ort.NewTensor(ort.NewShape(t.Dims()...), t.Data())
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	defer input.Destroy()

	outputs, err := m.session.Run([]ort.Value{input})
	if err != nil {
		return nil, fmt.Errorf("error running %s: %w", m.name, err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%s: output %q is not a float32 tensor", m.name, m.session.Outputs[0].Name)
	}
	return m.decoder.Decode(out.GetData(), out.GetShape())
}

// Close releases the session.
func (m *ONNXModel) Close() error {
	return m.session.Close()
}
