package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

// requestShape abstracts the wire format differences between
// openai-compatible and voyageai-compatible embedding endpoints: both POST
// a JSON body and get back a JSON array of vectors, but the field names
// differ.
type requestShape interface {
	buildBody(model string, texts []string, mode EmbedMode) ([]byte, error)
	parseVectors(body []byte) ([][]float32, error)
}

const (
	defaultBatchSize  = 96
	maxRetryAttempts  = 5
	retryBaseDelay    = 200 * time.Millisecond
	requestsPerSecond = 10
)

// httpProvider implements Provider against an openai-compatible or
// voyageai-compatible HTTP embeddings endpoint.
type httpProvider struct {
	cfg       Config
	shape     requestShape
	client    *http.Client
	apiKey    string
	limiter   *rate.Limiter
	dims      int
	batchSize int
}

func newHTTPProvider(cfg Config, shape requestShape) (*httpProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embed: %s provider requires an endpoint", cfg.Provider)
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if cfg.APIKeyEnv != "" && apiKey == "" {
		return nil, fmt.Errorf("embed: credential env var %s is unset", cfg.APIKeyEnv)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &httpProvider{
		cfg:       cfg,
		shape:     shape,
		client:    &http.Client{Timeout: 30 * time.Second},
		apiKey:    apiKey,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		dims:      cfg.Dimensions,
		batchSize: batchSize,
	}, nil
}

// Embed splits texts into batches of batchSize, retrying each batch with
// exponential backoff on transient failure. A batch that exhausts its
// retries surfaces an embedding_failed error scoped to that batch, per
// spec §4.6, without corrupting vectors already produced for prior
// batches in the same call.
func (p *httpProvider) Embed(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := p.embedBatchWithRetry(ctx, batch, mode)
		if err != nil {
			return nil, fmt.Errorf("embedding_failed: batch [%d:%d]: %w", start, end, err)
		}
		for _, v := range vectors {
			if p.dims == 0 {
				p.dims = len(v)
			} else if len(v) != p.dims {
				return nil, fmt.Errorf("embedding_failed: provider returned dimension %d, expected %d", len(v), p.dims)
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (p *httpProvider) embedBatchWithRetry(ctx context.Context, batch []string, mode EmbedMode) ([][]float32, error) {
	var lastErr error
	delay := retryBaseDelay
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		vectors, err := p.doRequest(ctx, batch, mode)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", maxRetryAttempts, lastErr)
}

func (p *httpProvider) doRequest(ctx context.Context, batch []string, mode EmbedMode) ([][]float32, error) {
	body, err := p.shape.buildBody(p.cfg.Model, batch, mode)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &transientError{err: fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	return p.shape.parseVectors(respBody)
}

// transientError marks a failure as retryable (network errors, 429, 5xx).
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

func (p *httpProvider) Dimensions() int { return p.dims }
func (p *httpProvider) Close() error    { return nil }

// openAIRequestShape builds requests matching the OpenAI embeddings API:
// {"model": "...", "input": ["..."]} -> {"data": [{"embedding": [...]}]}.
type openAIRequestShape struct{}

func (openAIRequestShape) buildBody(model string, texts []string, _ EmbedMode) ([]byte, error) {
	return json.Marshal(struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{Model: model, Input: texts})
}

func (openAIRequestShape) parseVectors(body []byte) ([][]float32, error) {
	return parseDataEmbeddings(body)
}

// voyageAIRequestShape builds requests matching the Voyage AI embeddings
// API: {"model": "...", "input": ["..."], "input_type": "query"|"document"}
// -> {"data": [{"embedding": [...]}]}.
type voyageAIRequestShape struct{}

func (voyageAIRequestShape) buildBody(model string, texts []string, mode EmbedMode) ([]byte, error) {
	inputType := "document"
	if mode == EmbedModeQuery {
		inputType = "query"
	}
	return json.Marshal(struct {
		Model     string   `json:"model"`
		Input     []string `json:"input"`
		InputType string   `json:"input_type"`
	}{Model: model, Input: texts, InputType: inputType})
}

func (voyageAIRequestShape) parseVectors(body []byte) ([][]float32, error) {
	return parseDataEmbeddings(body)
}

// parseDataEmbeddings parses the {"data":[{"embedding":[...]}]} shape both
// provider wire formats share.
func parseDataEmbeddings(body []byte) ([][]float32, error) {
	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
