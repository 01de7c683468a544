//go:build darwin || linux

package gpu

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"

	cherr "github.com/chordex/chordex/internal/errors"
)

// KernelLibEnv names the environment variable overriding the accelerator
// library path.
const KernelLibEnv = "CHORDEX_KERNEL_LIB"

// candidateLibs are the default accelerator library names probed at open.
func candidateLibs() []string {
	if runtime.GOOS == "darwin" {
		return []string{"libchordexkern.dylib"}
	}
	return []string{"libchordexkern.so"}
}

// NativeKernel drives an accelerator through a dynamically loaded library.
// The library owns device memory; this wrapper owns the symbol table and
// translates status codes into errors.
//
// Expected C ABI:
//
//	int64_t chordex_upload(const double *data, int32_t rows, int32_t dims);
//	int32_t chordex_batch_dot(int64_t handle, const double *query,
//	                          const int32_t *indices, int32_t n, double *out);
//	int32_t chordex_release(int64_t handle);
type NativeKernel struct {
	lib  uintptr
	path string

	upload   func(*float64, int32, int32) int64
	batchDot func(int64, *float64, *int32, int32, *float64) int32
	release  func(int64) int32

	mu     sync.Mutex
	closed bool
}

// Verify interface implementation at compile time.
var _ Kernel = (*NativeKernel)(nil)

// OpenNative loads the accelerator library from the given path, or from
// KernelLibEnv / the default candidates when path is empty. Returns a
// device-unavailable error when no library can be loaded; callers fall
// back to NewHostKernel.
func OpenNative(path string) (*NativeKernel, error) {
	paths := []string{}
	if path != "" {
		paths = append(paths, path)
	} else {
		if env := os.Getenv(KernelLibEnv); env != "" {
			paths = append(paths, env)
		}
		paths = append(paths, candidateLibs()...)
	}

	var lastErr error
	for _, p := range paths {
		lib, err := purego.Dlopen(p, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}

		k := &NativeKernel{lib: lib, path: p}
		purego.RegisterLibFunc(&k.upload, lib, "chordex_upload")
		purego.RegisterLibFunc(&k.batchDot, lib, "chordex_batch_dot")
		purego.RegisterLibFunc(&k.release, lib, "chordex_release")
		return k, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no accelerator library candidates")
	}
	return nil, cherr.Wrap(cherr.ErrCodeDeviceUnavailable, lastErr)
}

// Name identifies the loaded library.
func (k *NativeKernel) Name() string { return "native:" + k.path }

// Discrete reports true: a loaded library implies accelerator-backed work.
func (k *NativeKernel) Discrete() bool { return true }

// Upload copies the matrix into device memory exactly once.
func (k *NativeKernel) Upload(matrix []float64, rows, dims int) (Buffer, error) {
	if rows*dims != len(matrix) {
		return nil, fmt.Errorf("matrix length %d does not match %dx%d", len(matrix), rows, dims)
	}
	if rows == 0 {
		return &nativeBuffer{kernel: k, handle: 0, rows: 0, dims: dims, freed: true}, nil
	}

	handle := k.upload(&matrix[0], int32(rows), int32(dims))
	if handle <= 0 {
		return nil, cherr.Newf(cherr.ErrCodeDeviceAlloc, "device upload failed with status %d", handle)
	}

	return &nativeBuffer{kernel: k, handle: handle, rows: rows, dims: dims}, nil
}

// Close unloads the library. Idempotent.
func (k *NativeKernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true
	return purego.Dlclose(k.lib)
}

type nativeBuffer struct {
	kernel *NativeKernel
	handle int64
	rows   int
	dims   int

	mu    sync.RWMutex
	freed bool
}

func (b *nativeBuffer) Rows() int { return b.rows }

// BatchDot launches the batched dot-product kernel. Only the query and the
// output buffer cross the host/device boundary per call. The read lock is
// held across the kernel call so Free cannot release the device handle
// under an in-flight launch.
func (b *nativeBuffer) BatchDot(query []float64, indices []int32, out []float64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.freed {
		return fmt.Errorf("buffer is freed")
	}
	if err := validateBatchDot(b.rows, b.dims, query, indices, out); err != nil {
		return err
	}
	if len(out) == 0 {
		return nil
	}

	var indexPtr *int32
	n := int32(-1) // all rows
	if indices != nil {
		indexPtr = &indices[0]
		n = int32(len(indices))
	}

	status := b.kernel.batchDot(b.handle, &query[0], indexPtr, n, &out[0])
	if status != 0 {
		return cherr.Newf(cherr.ErrCodeKernelFailed, "batch dot kernel failed with status %d", status)
	}
	return nil
}

// Free releases the device buffer. Idempotent; blocks until in-flight
// kernel calls drain before releasing the handle.
func (b *nativeBuffer) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.freed {
		return nil
	}
	b.freed = true
	if status := b.kernel.release(b.handle); status != 0 {
		return fmt.Errorf("device release failed with status %d", status)
	}
	return nil
}
