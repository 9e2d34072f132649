package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoEmbeddingModels indicates the configuration names zero embedding
	// models; semantic search has nothing to run against.
	ErrNoEmbeddingModels = errors.New("no embedding models configured")

	// ErrInvalidProvider indicates an unsupported embedding or reranking
	// provider name.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidDimensions indicates a non-positive embedding dimension.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrEmptyModelName indicates a model entry missing its name.
	ErrEmptyModelName = errors.New("empty model name")

	// ErrInvalidRRFK indicates a non-positive rrf_k.
	ErrInvalidRRFK = errors.New("invalid rrf_k")

	// ErrInvalidTopN indicates a non-positive top_n.
	ErrInvalidTopN = errors.New("invalid top_n")
)

var validEmbeddingProviders = map[string]bool{"openai-compatible": true, "voyageai-compatible": true, "mock": true}
var validRerankingProviders = map[string]bool{"http": true, "noop": true}

// Validate checks structural validity of cfg. It does not check API key
// presence: a missing credential does not fail configuration load (see
// EmbeddingModel for how each command handles it).
func Validate(cfg *Config) error {
	var errs []error

	if len(cfg.EmbeddingModels) == 0 {
		errs = append(errs, ErrNoEmbeddingModels)
	}
	for _, m := range cfg.EmbeddingModels {
		if strings.TrimSpace(m.Name) == "" {
			errs = append(errs, ErrEmptyModelName)
		}
		if !validEmbeddingProviders[strings.ToLower(m.Provider)] {
			errs = append(errs, fmt.Errorf("%w: embedding model %q provider %q", ErrInvalidProvider, m.Name, m.Provider))
		}
		if m.Dimensions <= 0 {
			errs = append(errs, fmt.Errorf("%w: embedding model %q: %d", ErrInvalidDimensions, m.Name, m.Dimensions))
		}
	}
	for _, m := range cfg.RerankingModels {
		if strings.TrimSpace(m.Name) == "" {
			errs = append(errs, ErrEmptyModelName)
		}
		if !validRerankingProviders[strings.ToLower(m.Provider)] {
			errs = append(errs, fmt.Errorf("%w: reranking model %q provider %q", ErrInvalidProvider, m.Name, m.Provider))
		}
	}

	if cfg.Retrieval.RRFK <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidRRFK, cfg.Retrieval.RRFK))
	}
	if cfg.Retrieval.TopN <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidTopN, cfg.Retrieval.TopN))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

// joinErrors combines multiple validation errors into one, matching the
// teacher's internal/config/validate.go style of reporting every
// violation at once rather than failing on the first.
func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("%d validation errors: %s", len(errs), strings.Join(msgs, "; "))
}
