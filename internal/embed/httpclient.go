package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	findxerrors "github.com/gaspardpetit/findx/internal/errors"
)

// HTTP embedding service constants.
const (
	// HTTPConnectTimeout bounds the initial health probe.
	HTTPConnectTimeout = 5 * time.Second

	// HTTPPoolSize is the default HTTP connection pool size.
	HTTPPoolSize = 4
)

// HTTPConfig configures an HTTPEmbedder.
type HTTPConfig struct {
	// URL is the embedding service endpoint, e.g. http://localhost:8080/embed.
	URL string

	// APIKey, if set, is sent as a bearer token on every request.
	APIKey string

	// Model is passed in the request body's optional "model" field.
	Model string

	// Dimensions overrides auto-detection (0 = auto-detect from first response).
	Dimensions int

	// BatchSize caps how many texts are sent per request (default DefaultBatchSize).
	BatchSize int

	// Timeout bounds a single request (default DefaultTimeout).
	Timeout time.Duration

	// MaxRetries for transient failures (default DefaultMaxRetries).
	MaxRetries int

	// PoolSize for the HTTP connection pool (default HTTPPoolSize).
	PoolSize int

	// SkipHealthCheck skips the initial availability probe (for testing).
	SkipHealthCheck bool
}

// DefaultHTTPConfig returns sensible defaults for the given endpoint.
func DefaultHTTPConfig(url string) HTTPConfig {
	return HTTPConfig{
		URL:        url,
		Dimensions: 0,
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		PoolSize:   HTTPPoolSize,
	}
}

// embedRequest is the wire request for the generic HTTP embedding contract.
type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model,omitempty"`
}

// embedResponse is the wire response for the generic HTTP embedding contract.
type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// HTTPEmbedder generates embeddings by calling a remote HTTP service that
// implements the generic { input, model? } -> { data: [{ embedding }] } contract.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig
	dims      int
	breaker   *findxerrors.CircuitBreaker

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder creates a new HTTP embedder talking to cfg.URL.
func NewHTTPEmbedder(ctx context.Context, cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http embedder: URL is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = HTTPPoolSize
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// Context timeouts are applied per request in doEmbed, not on the client,
	// so retries can use a fresh deadline each attempt.
	client := &http.Client{Transport: transport}

	e := &HTTPEmbedder{
		client:    client,
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
		breaker: findxerrors.NewCircuitBreaker(
			"embed-http:"+cfg.URL,
			findxerrors.WithMaxFailures(5),
			findxerrors.WithResetTimeout(30*time.Second),
		),
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, HTTPConnectTimeout)
		defer cancel()

		if cfg.Dimensions == 0 {
			dims, err := e.detectDimensions(checkCtx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, fmt.Errorf("failed to reach embedding service: %w", err)
			}
			e.dims = dims
		}
	}

	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	return e, nil
}

func (e *HTTPEmbedder) detectDimensions(ctx context.Context) (int, error) {
	embeddings, err := e.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return 0, fmt.Errorf("empty embedding returned")
	}
	return len(embeddings[0]), nil
}

// Embed generates the embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}

	embeddings, err := e.doEmbedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, chunked by BatchSize.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}
	if len(nonEmpty) == 0 {
		return results, nil
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		embeddings, err := e.doEmbedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}
		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

func (e *HTTPEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32
	cfg := RetryConfig{
		MaxRetries:   e.config.MaxRetries,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}

	// The breaker wraps the whole retry sequence: once the embedding
	// service has failed enough times to trip it, further calls fail
	// fast with ErrCircuitOpen instead of repeating the backoff loop
	// against a service that's already known to be down.
	err := e.breaker.Execute(func() error {
		return DownloadWithRetry(ctx, cfg, func() error {
			timeoutCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
			defer cancel()

			emb, err := e.doEmbed(timeoutCtx, texts)
			if err != nil {
				return err
			}
			embeddings = emb
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return embeddings, nil
}

// doEmbed performs a single request and watches for context cancellation so
// Ctrl+C interrupts a stuck request instead of waiting for it to time out.
func (e *HTTPEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embedRequest{Input: texts, Model: e.config.Model}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	type result struct {
		embeddings [][]float32
		err        error
	}
	resultCh := make(chan result, 1)

	go func() {
		resp, err := e.client.Do(req)
		if err != nil {
			resultCh <- result{nil, err}
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			resultCh <- result{nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(respBody))}
			return
		}

		var apiResult embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
			resultCh <- result{nil, fmt.Errorf("failed to decode response: %w", err)}
			return
		}

		embeddings := make([][]float32, len(apiResult.Data))
		for i, d := range apiResult.Data {
			embeddings[i] = normalizeVector(d.Embedding)
		}
		resultCh <- result{embeddings, nil}
	}()

	select {
	case <-ctx.Done():
		e.ForceCloseConnections()
		select {
		case <-resultCh:
		case <-time.After(100 * time.Millisecond):
		}
		return nil, ctx.Err()
	case r := <-resultCh:
		return r.embeddings, r.err
	}
}

// Dimensions returns the embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the configured model identifier.
func (e *HTTPEmbedder) ModelName() string {
	if e.config.Model == "" {
		return "http"
	}
	return e.config.Model
}

// Available reports whether the remote service accepts requests.
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	_, err := e.doEmbed(ctx, []string{"availability probe"})
	return err == nil
}

// Close releases pooled connections.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.transport != nil {
		e.transport.CloseIdleConnections()
	}
	return nil
}

// ForceCloseConnections forcibly interrupts in-flight requests during shutdown
// by replacing the transport; goroutines blocked reading from old connections
// get an error instead of hanging until the request timeout.
func (e *HTTPEmbedder) ForceCloseConnections() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.transport != nil {
		e.transport.CloseIdleConnections()
		e.transport = &http.Transport{
			MaxIdleConns:        e.config.PoolSize,
			MaxIdleConnsPerHost: e.config.PoolSize,
			MaxConnsPerHost:     e.config.PoolSize * 2,
			IdleConnTimeout:     10 * time.Second,
			DisableKeepAlives:   true,
		}
		e.client.Transport = e.transport
	}
}
