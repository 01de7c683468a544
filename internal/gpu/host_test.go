package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostKernel_UploadAndBatchDotAllRows(t *testing.T) {
	k := NewHostKernel()
	defer k.Close()

	// 3 rows x 2 dims
	matrix := []float64{
		1, 0,
		0, 1,
		0.9, 0.1,
	}
	buf, err := k.Upload(matrix, 3, 2)
	require.NoError(t, err)
	defer buf.Free()

	out := make([]float64, 3)
	require.NoError(t, buf.BatchDot([]float64{1, 0}, nil, out))

	assert.InDelta(t, 1.0, out[0], 1e-12)
	assert.InDelta(t, 0.0, out[1], 1e-12)
	assert.InDelta(t, 0.9, out[2], 1e-12)
}

func TestHostKernel_BatchDotIndexList(t *testing.T) {
	k := NewHostKernel()
	matrix := []float64{
		1, 0,
		0, 1,
		0.9, 0.1,
	}
	buf, err := k.Upload(matrix, 3, 2)
	require.NoError(t, err)

	out := make([]float64, 2)
	require.NoError(t, buf.BatchDot([]float64{0, 2}, []int32{1, 2}, out))

	assert.InDelta(t, 2.0, out[0], 1e-12)
	assert.InDelta(t, 0.2, out[1], 1e-12)
}

func TestHostKernel_UploadCopiesMatrix(t *testing.T) {
	k := NewHostKernel()
	matrix := []float64{1, 0}
	buf, err := k.Upload(matrix, 1, 2)
	require.NoError(t, err)

	// Mutating the caller's slice must not affect the uploaded buffer.
	matrix[0] = 42

	out := make([]float64, 1)
	require.NoError(t, buf.BatchDot([]float64{1, 0}, nil, out))
	assert.InDelta(t, 1.0, out[0], 1e-12)
}

func TestHostKernel_ArgumentValidation(t *testing.T) {
	k := NewHostKernel()
	buf, err := k.Upload([]float64{1, 0, 0, 1}, 2, 2)
	require.NoError(t, err)

	tests := []struct {
		name    string
		query   []float64
		indices []int32
		out     []float64
	}{
		{"query dims", []float64{1}, nil, make([]float64, 2)},
		{"out too short", []float64{1, 0}, nil, make([]float64, 1)},
		{"index out of range", []float64{1, 0}, []int32{5}, make([]float64, 1)},
		{"negative index", []float64{1, 0}, []int32{-1}, make([]float64, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, buf.BatchDot(tt.query, tt.indices, tt.out))
		})
	}
}

func TestHostKernel_UploadSizeMismatch(t *testing.T) {
	k := NewHostKernel()
	_, err := k.Upload([]float64{1, 2, 3}, 2, 2)
	assert.Error(t, err)
}

func TestHostBuffer_FreeIsIdempotent(t *testing.T) {
	k := NewHostKernel()
	buf, err := k.Upload([]float64{1, 0}, 1, 2)
	require.NoError(t, err)

	require.NoError(t, buf.Free())
	require.NoError(t, buf.Free())

	out := make([]float64, 1)
	assert.Error(t, buf.BatchDot([]float64{1, 0}, nil, out))
}
