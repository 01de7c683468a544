package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	cherr "github.com/chordex/chordex/internal/errors"
)

// Remote embedder defaults.
const (
	DefaultRemoteEndpoint = "http://localhost:9659"
	DefaultRemoteModel    = "voicing-embed-384"
)

// RemoteConfig holds configuration for the HTTP embedding service client.
type RemoteConfig struct {
	// Endpoint is the embedding server URL (default: http://localhost:9659).
	Endpoint string

	// Model is the model identifier requested from the server.
	Model string

	// Dimensions is the expected embedding dimension. Zero means detect
	// from the server's first response.
	Dimensions int

	// BatchSize is the maximum texts per request.
	BatchSize int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts per request.
	MaxRetries int

	// SkipHealthCheck skips the health check during creation (for testing).
	SkipHealthCheck bool
}

// DefaultRemoteConfig returns default remote embedder configuration.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Endpoint:   DefaultRemoteEndpoint,
		Model:      DefaultRemoteModel,
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// RemoteEmbedder generates embeddings by calling an external HTTP embedding
// service. The service is a black box: text in, fixed-length vector out.
type RemoteEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    RemoteConfig
	dims      int

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time.
var _ Embedder = (*RemoteEmbedder)(nil)

type embedRequest struct {
	Model  string   `json:"model"`
	Inputs []string `json:"inputs"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewRemoteEmbedder creates a remote embedder and verifies the server is
// reachable unless the health check is skipped.
func NewRemoteEmbedder(ctx context.Context, cfg RemoteConfig) (*RemoteEmbedder, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultRemoteEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultRemoteModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	// No client-level timeout: it would override per-request context
	// timeouts and break retry timeout scaling.
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}
	client := &http.Client{Transport: transport}

	e := &RemoteEmbedder{
		client:    client,
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := e.healthCheck(checkCtx); err != nil {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("embedding service health check failed: %w", err)
		}
		if e.dims == 0 {
			dims, err := e.detectDimensions(checkCtx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
			}
			e.dims = dims
		}
	}

	return e, nil
}

// healthCheck verifies the embedding server responds.
func (e *RemoteEmbedder) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// detectDimensions embeds a probe string and records the returned length.
func (e *RemoteEmbedder) detectDimensions(ctx context.Context) (int, error) {
	vecs, err := e.doEmbed(ctx, []string{"probe"})
	if err != nil {
		return 0, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, fmt.Errorf("server returned empty probe embedding")
	}
	return len(vecs[0]), nil
}

// Embed generates an embedding for a single text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting into
// server-sized batches and retrying transient failures with backoff.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	results := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(texts))

		var batch [][]float64
		err := WithRetry(ctx, RetryConfig{
			MaxRetries:   e.config.MaxRetries,
			InitialDelay: time.Second,
			MaxDelay:     16 * time.Second,
			Multiplier:   2.0,
		}, func() error {
			reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
			defer cancel()

			var err error
			batch, err = e.doEmbed(reqCtx, texts[start:end])
			return err
		})
		if err != nil {
			return nil, cherr.Wrap(cherr.ErrCodeEmbeddingFailed, err)
		}

		results = append(results, batch...)
	}

	// Drift between indexing-time and query-time dimensionality is a hard
	// error, never a silent truncation or pad.
	for _, vec := range results {
		if e.dims != 0 && len(vec) != e.dims {
			return nil, cherr.DimensionMismatch(e.dims, len(vec))
		}
	}

	return results, nil
}

// doEmbed performs a single embedding request.
func (e *RemoteEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(embedRequest{Model: e.config.Model, Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding server returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("server returned %d embeddings for %d inputs", len(parsed.Embeddings), len(texts))
	}

	return parsed.Embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *RemoteEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *RemoteEmbedder) ModelName() string {
	return e.config.Model
}

// Available checks if the embedding server responds to a health probe.
func (e *RemoteEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := e.healthCheck(checkCtx); err != nil {
		slog.Debug("embedding_service_unavailable", slog.String("error", err.Error()))
		return false
	}
	return true
}

// Close releases HTTP resources. Safe to call multiple times.
func (e *RemoteEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
