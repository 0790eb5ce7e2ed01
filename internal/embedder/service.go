package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service embeds arbitrarily many texts by splitting them into provider-sized
// batches. It borrows the Embedder and never closes it.
type Service struct {
	emb       Embedder
	batchSize int
	log       *slog.Logger
}

// NewService wraps emb. batchSize is clamped to [1, MaxBatchSize].
func NewService(emb Embedder, batchSize int, logger *slog.Logger) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{emb: emb, batchSize: batchSize, log: logger}
}

// EmbedMany returns one vector per text, in input order
func (s *Service) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	start := time.Now()

	for i := 0; i < len(texts); i += s.batchSize {
		end := i + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := s.emb.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts[i:end]})
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		for _, e := range resp.Embeddings {
			vectors = append(vectors, e.Vector)
		}

		s.log.Debug("embedded batch",
			"provider", s.emb.Provider(),
			"done", end,
			"total", len(texts))
	}

	if len(texts) > 0 {
		s.log.Debug("embedding complete",
			"provider", s.emb.Provider(),
			"texts", len(texts),
			"duration_ms", time.Since(start).Milliseconds())
	}
	return vectors, nil
}

// EmbedOne returns the vector for a single text
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	emb, err := s.emb.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
	if err != nil {
		return nil, err
	}
	return emb.Vector, nil
}

// Dimension returns the provider's vector dimension
func (s *Service) Dimension() int {
	return s.emb.Dimension()
}

// Provider returns the provider name
func (s *Service) Provider() string {
	return s.emb.Provider()
}

// Model returns the model name
func (s *Service) Model() string {
	return s.emb.Model()
}
