package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cherr "github.com/chordex/chordex/internal/errors"
)

// newEmbedServer returns a test server answering /health and /embed with
// vectors of the given dimensionality.
func newEmbedServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embedResponse{Embeddings: make([][]float64, len(req.Inputs))}
		for i := range req.Inputs {
			vec := make([]float64, dims)
			vec[i%dims] = 1.0
			resp.Embeddings[i] = vec
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	return httptest.NewServer(mux)
}

func TestRemoteEmbedder_DetectsDimensions(t *testing.T) {
	srv := newEmbedServer(t, 384)
	defer srv.Close()

	cfg := DefaultRemoteConfig()
	cfg.Endpoint = srv.URL

	e, err := NewRemoteEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, 384, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestRemoteEmbedder_EmbedBatch(t *testing.T) {
	srv := newEmbedServer(t, 78)
	defer srv.Close()

	cfg := DefaultRemoteConfig()
	cfg.Endpoint = srv.URL
	cfg.Dimensions = 78
	cfg.BatchSize = 2

	e, err := NewRemoteEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	// Five texts across a batch size of two exercises the batching loop.
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for _, v := range vecs {
		assert.Len(t, v, 78)
	}
}

func TestRemoteEmbedder_DimensionDriftIsHardError(t *testing.T) {
	srv := newEmbedServer(t, 64)
	defer srv.Close()

	cfg := DefaultRemoteConfig()
	cfg.Endpoint = srv.URL
	cfg.Dimensions = 384 // deployment expects 384, server answers 64

	e, err := NewRemoteEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Embed(context.Background(), "Cmaj7")
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeDimensionMismatch))
}

func TestRemoteEmbedder_HealthCheckFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultRemoteConfig()
	cfg.Endpoint = srv.URL

	_, err := NewRemoteEmbedder(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRemoteEmbedder_ClosedRejectsWork(t *testing.T) {
	srv := newEmbedServer(t, 16)
	defer srv.Close()

	cfg := DefaultRemoteConfig()
	cfg.Endpoint = srv.URL
	cfg.Dimensions = 16
	cfg.SkipHealthCheck = true

	e, err := NewRemoteEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close()) // idempotent

	_, err = e.Embed(context.Background(), "anything")
	assert.Error(t, err)
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}, func() error {
		attempts++
		if attempts < 3 {
			return assert.AnError
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}, func() error {
		attempts++
		return assert.AnError
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
	assert.ErrorIs(t, err, assert.AnError)
}

func TestWithRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, DefaultRetryConfig(), func() error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, context.Canceled)
}
