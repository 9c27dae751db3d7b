package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"datalens-core/internal/domain/entity"
)

// RedisHistoryStore persists chat/chart/dashboard history as JSON documents
// under "history:<kind>:<id>" keys. It implements repository.HistoryStore.
type RedisHistoryStore struct {
	client *redis.Client
	ttl    time.Duration // zero means keep forever
}

func NewRedisHistoryStore(client *redis.Client, ttl time.Duration) *RedisHistoryStore {
	return &RedisHistoryStore{
		client: client,
		ttl:    ttl,
	}
}

func historyKey(kind, id string) string {
	return "history:" + kind + ":" + id
}

func (r *RedisHistoryStore) Create(ctx context.Context, doc *entity.HistoryDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return r.write(ctx, doc)
}

func (r *RedisHistoryStore) Get(ctx context.Context, kind, id string) (*entity.HistoryDocument, error) {
	raw, err := r.client.Get(ctx, historyKey(kind, id)).Bytes()
	if err == redis.Nil {
		return nil, entity.ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history get: %w", err)
	}
	var doc entity.HistoryDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("history decode: %w", err)
	}
	return &doc, nil
}

func (r *RedisHistoryStore) Update(ctx context.Context, doc *entity.HistoryDocument) error {
	existing, err := r.Get(ctx, doc.Kind, doc.ID)
	if err != nil {
		return err
	}
	doc.CreatedAt = existing.CreatedAt
	doc.UpdatedAt = time.Now().UTC()
	return r.write(ctx, doc)
}

func (r *RedisHistoryStore) Delete(ctx context.Context, kind, id string) error {
	n, err := r.client.Del(ctx, historyKey(kind, id)).Result()
	if err != nil {
		return fmt.Errorf("history delete: %w", err)
	}
	if n == 0 {
		return entity.ErrResourceNotFound
	}
	return nil
}

func (r *RedisHistoryStore) Query(ctx context.Context, kind string) ([]*entity.HistoryDocument, error) {
	var docs []*entity.HistoryDocument
	iter := r.client.Scan(ctx, 0, historyKey(kind, "*"), 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("history query: %w", err)
		}
		var doc entity.HistoryDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		docs = append(docs, &doc)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("history scan: %w", err)
	}
	return docs, nil
}

func (r *RedisHistoryStore) write(ctx context.Context, doc *entity.HistoryDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("history encode: %w", err)
	}
	if err := r.client.Set(ctx, historyKey(doc.Kind, doc.ID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("history set: %w", err)
	}
	return nil
}
