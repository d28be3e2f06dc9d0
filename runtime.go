package ortbench

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// LibraryPathEnv names the environment variable consulted for the shared library.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var runtimeMu sync.Mutex

// LibraryPath picks the onnxruntime shared library: an explicit path first, then
// the environment, then the platform's default library name.
func LibraryPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(LibraryPathEnv); p != "" {
		return p
	}
	return defaultLibraryPath(runtime.GOOS)
}

func defaultLibraryPath(goos string) string {
	switch goos {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// InitRuntime loads the shared library and initializes the ORT environment.
// Calling it again once the environment is up does nothing.
func InitRuntime(libPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	path := LibraryPath(libPath)
	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to init ORT env from %s: %w", path, err)
	}
	pkgLogger().Info("onnxruntime initialized", "library", path, "version", ort.GetVersion())
	return nil
}

// ShutdownRuntime destroys the ORT environment if it was initialized.
func ShutdownRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// RuntimeVersion reports the version of the loaded runtime, or "" before InitRuntime.
func RuntimeVersion() string {
	if !ort.IsInitialized() {
		return ""
	}
	return ort.GetVersion()
}
