package repository

import (
	"context"

	"datalens-core/internal/domain/entity"
)

// AssistantAPI is the remote assistants protocol surface the pipeline drives.
type AssistantAPI interface {
	CreateAssistant(ctx context.Context, name, instructions string) (string, error)
	CreateThread(ctx context.Context) (string, error)
	UploadFile(ctx context.Context, fileName string, data []byte) (string, error)
	CreateMessage(ctx context.Context, threadID, content string, fileIDs []string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (entity.RunHandle, error)
	GetRun(ctx context.Context, threadID, runID string) (entity.RunHandle, error)
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
}

// AnswerCache is a similarity-keyed cache of previously answered questions.
type AnswerCache interface {
	Search(ctx context.Context, vector []float32, threshold float32) (*entity.CachedAnswer, error)
	Save(ctx context.Context, question, answer string, vector []float32) error
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// HistoryStore is the generic document CRUD consumed by the delivery layer to
// persist chat/chart/dashboard history. The analysis pipeline never calls it.
type HistoryStore interface {
	Create(ctx context.Context, doc *entity.HistoryDocument) error
	Get(ctx context.Context, kind, id string) (*entity.HistoryDocument, error)
	Update(ctx context.Context, doc *entity.HistoryDocument) error
	Delete(ctx context.Context, kind, id string) error
	Query(ctx context.Context, kind string) ([]*entity.HistoryDocument, error)
}
