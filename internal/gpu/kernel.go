// Package gpu provides the device kernel boundary used by the GPU search
// strategy: a contract for uploading an embedding matrix to device memory
// once and running batched dot products against it per query.
//
// Errors at this boundary are explicit returned values, never panics; the
// strategy above decides whether to fall back to the CPU path.
package gpu

import (
	"fmt"
)

// Kernel is a batch linear-algebra backend. Implementations: a native
// accelerator library loaded through purego, and a host (pure Go) kernel
// used when no accelerator is present.
type Kernel interface {
	// Name identifies the backing implementation for logs and stats.
	Name() string

	// Discrete reports whether a discrete accelerator backs this kernel.
	// A host kernel returns false but is still fully functional.
	Discrete() bool

	// Upload copies a row-major rows x dims matrix into kernel-owned
	// memory and returns a handle to it. Called exactly once per corpus:
	// per-query work must only allocate the query and output buffers.
	Upload(matrix []float64, rows, dims int) (Buffer, error)

	// Close releases kernel resources. Idempotent.
	Close() error
}

// Buffer is a kernel-resident embedding matrix. Read-only after Upload.
type Buffer interface {
	// Rows returns the number of matrix rows.
	Rows() int

	// BatchDot writes dot(query, row[i]) into out for every i in indices.
	// A nil indices slice means all rows, in which case len(out) must be
	// Rows(). len(out) must equal len(indices) otherwise.
	BatchDot(query []float64, indices []int32, out []float64) error

	// Free releases the buffer. Idempotent; BatchDot after Free errors.
	Free() error
}

// validateBatchDot checks the common BatchDot argument contract.
func validateBatchDot(rows, dims int, query []float64, indices []int32, out []float64) error {
	if len(query) != dims {
		return fmt.Errorf("query length %d does not match matrix dims %d", len(query), dims)
	}
	want := rows
	if indices != nil {
		want = len(indices)
	}
	if len(out) != want {
		return fmt.Errorf("output length %d does not match %d requested rows", len(out), want)
	}
	for _, idx := range indices {
		if idx < 0 || int(idx) >= rows {
			return fmt.Errorf("row index %d out of range [0,%d)", idx, rows)
		}
	}
	return nil
}
