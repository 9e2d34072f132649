package hybrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// HTTPRerankerConfig configures an HTTPReranker against a cross-encoder
// scoring endpoint, mirroring the embed package's HTTP provider shape.
type HTTPRerankerConfig struct {
	Endpoint  string
	Model     string
	APIKeyEnv string
}

// HTTPReranker implements Reranker against an HTTP cross-encoder endpoint
// that accepts {"model","query","documents":[...]} and returns
// {"results":[{"index":N,"score":F}]}, the shape Cohere/Voyage rerank
// endpoints share.
type HTTPReranker struct {
	cfg    HTTPRerankerConfig
	client *http.Client
	apiKey string
}

// NewHTTPReranker builds an HTTPReranker. It does not fail on a missing
// credential; Rerank surfaces that as a request error instead, so a
// missing key degrades retrieval (fused order) rather than aborting
// startup, as a missing embedding credential does for the query runtime.
func NewHTTPReranker(cfg HTTPRerankerConfig) *HTTPReranker {
	return &HTTPReranker{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		apiKey: os.Getenv(cfg.APIKeyEnv),
	}
}

func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankScore, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if r.cfg.Endpoint == "" {
		return nil, fmt.Errorf("hybrid: http reranker requires an endpoint")
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}
	body, err := json.Marshal(struct {
		Model     string   `json:"model"`
		Query     string   `json:"query"`
		Documents []string `json:"documents"`
	}{Model: r.cfg.Model, Query: query, Documents: docs})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hybrid: reranker status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, err
	}

	scores := make([]RerankScore, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(candidates) {
			continue
		}
		scores = append(scores, RerankScore{ChunkID: candidates[res.Index].ChunkID, Score: res.Score})
	}
	return scores, nil
}
