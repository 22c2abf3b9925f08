package providers

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envMu   sync.Mutex
	envLib  string
	envErr  error
	envDone bool
)

// InitEnvironment loads the onnxruntime shared library once per process.
//
// Later calls return the outcome of the first one.
//
// Arguments:
//   - libPath: The shared library. Empty uses GetSharedLibPath.
//
// Returns:
//   - error: An error if the library is missing or fails to initialize.
func InitEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envDone {
		return envErr
	}
	envDone = true

	if libPath == "" {
		libPath = GetSharedLibPath()
	}
	if libPath == "" {
		envErr = fmt.Errorf("no onnxruntime shared library known for this platform; set %s", SharedLibEnv)
		return envErr
	}
	if _, err := os.Stat(libPath); err != nil {
		envErr = fmt.Errorf("ONNX Runtime library not found at %s: %w", libPath, err)
		return envErr
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		envErr = fmt.Errorf("error initializing ORT environment: %w", err)
		return envErr
	}
	envLib = libPath
	return nil
}

// SharedLib returns the library the environment was initialized with.
func SharedLib() string {
	envMu.Lock()
	defer envMu.Unlock()
	return envLib
}

// DestroyEnvironment releases the runtime. Sessions must be closed first.
func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	envDone = false
	envErr = nil
	envLib = ""
	return ort.DestroyEnvironment()
}
