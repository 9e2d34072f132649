package embed

import (
	"context"
	"fmt"
)

// BatchProgress reports embedding progress, for a CLI progress bar.
// Grounded on the teacher's embed/batched.go BatchProgress shape.
type BatchProgress struct {
	BatchIndex      int
	TotalBatches    int
	ProcessedChunks int
	TotalChunks     int
}

// EmbedWithProgress embeds texts in provider-sized batches, sending a
// BatchProgress after each batch. progressCh may be nil.
func EmbedWithProgress(ctx context.Context, provider Provider, texts []string, mode EmbedMode, batchSize int, progressCh chan<- BatchProgress) ([][]float32, error) {
	total := len(texts)
	if total == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	numBatches := (total + batchSize - 1) / batchSize
	results := make([][]float32, 0, total)
	processed := 0

	for i := 0; i < numBatches; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		start := i * batchSize
		end := start + batchSize
		if end > total {
			end = total
		}

		vectors, err := provider.Embed(ctx, texts[start:end], mode)
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", i+1, numBatches, err)
		}
		results = append(results, vectors...)
		processed += end - start

		if progressCh != nil {
			progressCh <- BatchProgress{
				BatchIndex:      i + 1,
				TotalBatches:    numBatches,
				ProcessedChunks: processed,
				TotalChunks:     total,
			}
		}
	}
	return results, nil
}
