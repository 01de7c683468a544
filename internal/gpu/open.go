package gpu

import (
	"log/slog"
)

// Open returns the best available kernel: the native accelerator library
// when one can be loaded, otherwise the host kernel. Never fails; a machine
// without an accelerator gets a fully functional CPU-backed kernel and the
// GPU strategy still reports itself available.
func Open() Kernel {
	k, err := openNative()
	if err != nil {
		slog.Info("accelerator_unavailable_using_host_kernel",
			slog.String("error", err.Error()))
		return NewHostKernel()
	}
	slog.Info("accelerator_loaded", slog.String("kernel", k.Name()))
	return k
}
