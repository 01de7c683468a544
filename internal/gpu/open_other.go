//go:build !darwin && !linux

package gpu

import (
	"fmt"

	cherr "github.com/chordex/chordex/internal/errors"
)

// openNative always fails on platforms without dlopen support; Open falls
// back to the host kernel.
func openNative() (Kernel, error) {
	return nil, cherr.Wrap(cherr.ErrCodeDeviceUnavailable,
		fmt.Errorf("native kernels are not supported on this platform"))
}
