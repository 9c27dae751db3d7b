package client

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuestionEmbedderModelDefault(t *testing.T) {
	log := slog.New(slog.DiscardHandler)

	e := NewQuestionEmbedder(nil, "", log)
	assert.Equal(t, defaultEmbeddingModel, e.model)

	e = NewQuestionEmbedder(nil, "gemini-embedding-001", log)
	assert.Equal(t, "gemini-embedding-001", e.model)
}
