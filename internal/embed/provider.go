// Package embed implements the Embedding Client: a pluggable Provider
// capability (openai-compatible and voyageai-compatible HTTP backends,
// plus a mock for tests), batched embedding with progress reporting,
// exponential backoff retry, and token-bucket rate limiting. Grounded on
// the teacher's internal/embed/provider.go (the Provider interface shape)
// and batched.go (the batch-with-progress algorithm), with the provider
// implementations rewritten per SPEC_FULL.md §4.6 from a bundled ONNX
// subprocess to pluggable HTTP backends.
package embed

import "context"

// EmbedMode distinguishes query embeddings from passage (document) ones,
// since some providers use an asymmetric encoder for the two.
type EmbedMode string

const (
	EmbedModeQuery   EmbedMode = "query"
	EmbedModePassage EmbedMode = "passage"
)

// Provider converts text into fixed-dimension vectors.
type Provider interface {
	Embed(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error)
	Dimensions() int
	Close() error
}
