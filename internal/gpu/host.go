package gpu

import (
	"fmt"
	"sync"
)

// HostKernel is the pure Go kernel used when no accelerator library can be
// loaded. It satisfies the same contract with host memory, so the GPU
// strategy stays available everywhere, only without device performance.
type HostKernel struct{}

// Verify interface implementation at compile time.
var _ Kernel = (*HostKernel)(nil)

// NewHostKernel creates a host kernel.
func NewHostKernel() *HostKernel {
	return &HostKernel{}
}

// Name identifies the backing implementation.
func (k *HostKernel) Name() string { return "host" }

// Discrete reports false: no accelerator backs this kernel.
func (k *HostKernel) Discrete() bool { return false }

// Upload keeps a private copy of the matrix in host memory.
func (k *HostKernel) Upload(matrix []float64, rows, dims int) (Buffer, error) {
	if rows*dims != len(matrix) {
		return nil, fmt.Errorf("matrix length %d does not match %dx%d", len(matrix), rows, dims)
	}
	data := make([]float64, len(matrix))
	copy(data, matrix)
	return &hostBuffer{data: data, rows: rows, dims: dims}, nil
}

// Close releases kernel resources.
func (k *HostKernel) Close() error { return nil }

type hostBuffer struct {
	data []float64
	rows int
	dims int

	mu    sync.RWMutex
	freed bool
}

func (b *hostBuffer) Rows() int { return b.rows }

func (b *hostBuffer) BatchDot(query []float64, indices []int32, out []float64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.freed {
		return fmt.Errorf("buffer is freed")
	}
	if err := validateBatchDot(b.rows, b.dims, query, indices, out); err != nil {
		return err
	}

	if indices == nil {
		for row := 0; row < b.rows; row++ {
			out[row] = b.dotRow(row, query)
		}
		return nil
	}
	for i, idx := range indices {
		out[i] = b.dotRow(int(idx), query)
	}
	return nil
}

func (b *hostBuffer) dotRow(row int, query []float64) float64 {
	base := row * b.dims
	vec := b.data[base : base+b.dims]

	var dot float64
	for i, q := range query {
		dot += q * vec[i]
	}
	return dot
}

// Free releases the buffer. Idempotent.
func (b *hostBuffer) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.freed {
		return nil
	}
	b.freed = true
	b.data = nil
	return nil
}
