package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockProvider_DeterministicAndDimensioned(t *testing.T) {
	p := NewMockProvider(128)
	ctx := context.Background()

	v1, err := p.Embed(ctx, []string{"hello"}, EmbedModePassage)
	require.NoError(t, err)
	v2, err := p.Embed(ctx, []string{"hello"}, EmbedModePassage)
	require.NoError(t, err)

	require.Equal(t, v1, v2, "embeddings must be deterministic for the same text and mode")
	require.Len(t, v1[0], 128)
	require.Equal(t, 128, p.Dimensions())
}

func TestMockProvider_QueryAndPassageModesDiffer(t *testing.T) {
	p := NewMockProvider(32)
	ctx := context.Background()

	q, err := p.Embed(ctx, []string{"x"}, EmbedModeQuery)
	require.NoError(t, err)
	d, err := p.Embed(ctx, []string{"x"}, EmbedModePassage)
	require.NoError(t, err)
	require.NotEqual(t, q, d)
}

func TestMockProvider_CloseIsTracked(t *testing.T) {
	p := NewMockProvider(8)
	require.False(t, p.IsClosed())
	require.NoError(t, p.Close())
	require.True(t, p.IsClosed())
}

func TestNewProvider_UnsupportedNameErrors(t *testing.T) {
	_, err := NewProvider(Config{Provider: "carrier-pigeon"})
	require.Error(t, err)
}

func TestNewProvider_HTTPProviderRequiresEndpoint(t *testing.T) {
	_, err := NewProvider(Config{Provider: "openai-compatible"})
	require.Error(t, err)
}

func TestEmbedWithProgress_ReportsBatchesAndPreservesOrder(t *testing.T) {
	p := NewMockProvider(4)
	ctx := context.Background()
	texts := []string{"a", "b", "c", "d", "e"}

	progressCh := make(chan BatchProgress, 10)
	vectors, err := EmbedWithProgress(ctx, p, texts, EmbedModePassage, 2, progressCh)
	close(progressCh)
	require.NoError(t, err)
	require.Len(t, vectors, 5)

	var lastBatch BatchProgress
	for progress := range progressCh {
		lastBatch = progress
	}
	require.Equal(t, 5, lastBatch.TotalChunks)
	require.Equal(t, 5, lastBatch.ProcessedChunks)
	require.Equal(t, 3, lastBatch.TotalBatches) // ceil(5/2)
}

func TestEmbedWithProgress_PropagatesBatchError(t *testing.T) {
	p := NewMockProvider(4)
	p.SetEmbedError(errors.New("boom"))
	_, err := EmbedWithProgress(context.Background(), p, []string{"a"}, EmbedModePassage, 2, nil)
	require.Error(t, err)
}

func TestIsTransient_ClassifiesWrappedTransientErrors(t *testing.T) {
	base := &transientError{err: errors.New("connection reset")}
	wrapped := errorsJoinLike(base)
	require.True(t, isTransient(base))
	require.True(t, isTransient(wrapped))
	require.False(t, isTransient(errors.New("permanent")))
}

func errorsJoinLike(err error) error {
	return &wrapOnce{err: err}
}

type wrapOnce struct{ err error }

func (w *wrapOnce) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapOnce) Unwrap() error { return w.err }
