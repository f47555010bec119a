package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/edume/internal/logger"
	"github.com/edume/internal/model"
	"github.com/edume/internal/storage"
)

type PostRepository struct {
	store storage.Store
}

func NewPostRepository(store storage.Store) *PostRepository {
	return &PostRepository{store: store}
}

func (r *PostRepository) Create(ctx context.Context, p *model.Post) error {
	defer logger.DeferLogDuration("post.Create", time.Now())()
	if err := r.store.Put(ctx, storage.CollectionPosts, p.ID, p.ToDocument()); err != nil {
		return fmt.Errorf("postRepo.Create: %w", err)
	}
	return nil
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	defer logger.DeferLogDuration("post.GetByID", time.Now())()
	docs, err := r.store.Get(ctx, storage.Collection(storage.CollectionPosts).WhereEqual("id", id))
	if err != nil {
		return nil, fmt.Errorf("postRepo.GetByID: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	p, err := model.PostFromDocument(docs[0].ID, docs[0].Data)
	if err != nil {
		return nil, fmt.Errorf("postRepo.GetByID: %w", err)
	}
	return &p, nil
}

// ListByUser: посты автора, новые первыми.
func (r *PostRepository) ListByUser(ctx context.Context, userID string) ([]model.Post, error) {
	defer logger.DeferLogDuration("post.ListByUser", time.Now())()
	docs, err := r.store.Get(ctx, storage.Collection(storage.CollectionPosts).
		WhereEqual("userId", userID).Order("timestamp", true))
	if err != nil {
		return nil, fmt.Errorf("postRepo.ListByUser: %w", err)
	}
	out := make([]model.Post, 0, len(docs))
	for _, d := range docs {
		p, err := model.PostFromDocument(d.ID, d.Data)
		if err != nil {
			logger.Debugf("postRepo.ListByUser: skip %s: %v", d.ID, err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *PostRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("post.Delete", time.Now())()
	if err := r.store.Delete(ctx, storage.CollectionPosts, id); err != nil {
		return fmt.Errorf("postRepo.Delete: %w", err)
	}
	return nil
}
