package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"datalens-core/internal/domain/entity"
)

// answerFreshness bounds how old a cached answer may be before it is ignored.
const answerFreshness = 24 * time.Hour

// QdrantAnswerCache stores previously answered questions keyed by embedding,
// so repeated follow-up questions skip the remote assistant entirely.
type QdrantAnswerCache struct {
	client         *qdrant.Client
	collectionName string
	log            *slog.Logger
}

func NewQdrantAnswerCache(client *qdrant.Client, collectionName string, log *slog.Logger) *QdrantAnswerCache {
	return &QdrantAnswerCache{
		client:         client,
		collectionName: collectionName,
		log:            log,
	}
}

func (s *QdrantAnswerCache) InitCollection(ctx context.Context, dim uint64) error {
	_, err := s.client.GetCollectionInfo(ctx, s.collectionName)
	if err != nil {
		st, ok := status.FromError(err)
		if ok && st.Code() == codes.NotFound {
			err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: s.collectionName,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     dim,
					Distance: qdrant.Distance_Cosine,
				}),
			})
			if err != nil {
				return fmt.Errorf("failed to create collection: %w", err)
			}
		} else {
			return err
		}
	}

	// Integer index on created_at keeps the freshness range filter fast.
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collectionName,
		FieldName:      "created_at",
		FieldType:      qdrant.FieldType_FieldTypeInteger.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		s.log.Warn("could not create created_at index (might already exist)", "error", err)
	}

	return nil
}

func (s *QdrantAnswerCache) Search(ctx context.Context, vector []float32, threshold float32) (*entity.CachedAnswer, error) {
	cutoff := time.Now().Add(-answerFreshness).Unix()
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "created_at",
						Range: &qdrant.Range{
							Gte: qdrant.PtrOf(float64(cutoff)),
						},
					},
				},
			},
		},
	}

	res, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(1)),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: &threshold,
	})
	if err != nil || len(res) == 0 {
		return nil, err
	}

	hit := res[0]
	payload := hit.Payload
	return &entity.CachedAnswer{
		Question: payload["question"].GetStringValue(),
		Answer:   payload["answer"].GetStringValue(),
		Score:    hit.Score,
	}, nil
}

func (s *QdrantAnswerCache) Save(ctx context.Context, question, answer string, vector []float32) error {
	payload := map[string]any{
		"question":   question,
		"answer":     answer,
		"created_at": time.Now().Unix(),
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionName,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(uuid.NewString()),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(payload),
			},
		},
	})
	return err
}
