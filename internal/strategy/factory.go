package strategy

import (
	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/gpu"
)

// Backend names accepted by New.
const (
	BackendCPU  = "cpu"
	BackendGPU  = "gpu"
	BackendLite = "gpu-lite"
	BackendANN  = "ann"
)

// New constructs a strategy by backend name. The kernel is only consulted
// by the GPU backend; nil means the best available kernel is opened at
// Initialize.
func New(backend string, kernel gpu.Kernel, cfg Config) (Strategy, error) {
	switch backend {
	case BackendCPU, "":
		return NewCPU(cfg), nil
	case BackendGPU:
		return NewGPU(kernel, cfg), nil
	case BackendLite:
		return NewLite(cfg), nil
	case BackendANN:
		return NewANN(ANNConfig{Config: cfg}), nil
	default:
		return nil, cherr.New(cherr.ErrCodeConfigInvalid, "unknown search backend", nil).
			WithDetail("backend", backend)
	}
}
