// Package providers - ONNX Runtime environment, execution providers and sessions.
package providers

import "fmt"

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

const (
	// CPUProviderBackend uses the default CPU kernels.
	CPUProviderBackend ProviderBackend = "cpu"
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// CUDAProviderBackend uses NVIDIA CUDA for GPU acceleration.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// ParseBackend maps a configured provider name onto a backend.
func ParseBackend(s string) (ProviderBackend, error) {
	switch b := ProviderBackend(s); b {
	case "", CPUProviderBackend:
		return CPUProviderBackend, nil
	case CoreMLProviderBackend, CUDAProviderBackend:
		return b, nil
	default:
		return "", fmt.Errorf("no matching provider backend registered: %s", s)
	}
}
