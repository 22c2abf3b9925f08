package providers

// CoreML flags, see coreml_provider_factory.h.
const (
	CoreMLFlagUseCPUOnly                 uint32 = 0x001
	CoreMLFlagEnableOnSubgraph           uint32 = 0x002
	CoreMLFlagOnlyEnableDeviceWithANE    uint32 = 0x004
	CoreMLFlagOnlyAllowStaticInputShapes uint32 = 0x008
	CoreMLFlagCreateMLProgram            uint32 = 0x010
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	CPUOnly bool `json:"cpuOnly" yaml:"cpuOnly"`
	// Enable CoreML EP to run on a subgraph in the body of a control flow operator.
	EnableOnSubgraphs bool `json:"enableOnSubgraphs" yaml:"enableOnSubgraphs"`
	// Only allow the CoreML EP to take nodes with inputs that have static shapes.
	RequireStaticInputShapes bool `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes"`
	// Create an MLProgram format model. Requires Core ML 5 or later (iOS 15+ or macOS 12+).
	MLProgram bool `json:"mlProgram" yaml:"mlProgram"`
}

// Flags packs the options into the bit set AppendExecutionProviderCoreML expects.
func (o CoreMLOptions) Flags() uint32 {
	var f uint32
	if o.CPUOnly {
		f |= CoreMLFlagUseCPUOnly
	}
	if o.EnableOnSubgraphs {
		f |= CoreMLFlagEnableOnSubgraph
	}
	if o.RequireStaticInputShapes {
		f |= CoreMLFlagOnlyAllowStaticInputShapes
	}
	if o.MLProgram {
		f |= CoreMLFlagCreateMLProgram
	}
	return f
}
