package client

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

const defaultEmbeddingModel = "text-embedding-004"

// QuestionEmbedder turns follow-up questions into vectors for the semantic
// answer cache. It implements repository.Embedder.
type QuestionEmbedder struct {
	client *genai.Client
	model  string
	log    *slog.Logger
}

func NewQuestionEmbedder(c *genai.Client, model string, log *slog.Logger) *QuestionEmbedder {
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &QuestionEmbedder{
		client: c,
		model:  model,
		log:    log,
	}
}

func (e *QuestionEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	res, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(res.Embeddings) == 0 {
		return nil, fmt.Errorf("embed question: empty response from %s", e.model)
	}
	vector := res.Embeddings[0].Values
	e.log.Debug("embedded question", "model", e.model, "dims", len(vector))
	return vector, nil
}
