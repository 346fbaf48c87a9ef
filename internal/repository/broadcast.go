package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edupaila/community-server-go/internal/database"
	"github.com/edupaila/community-server-go/internal/model"
)

type BroadcastRepository interface {
	Create(ctx context.Context, params model.CreateBroadcastParams) (*model.Broadcast, error)
	FindByID(ctx context.Context, id string) (*model.Broadcast, error)
	FindAll(ctx context.Context, limit, offset int) ([]model.Broadcast, error)
	Count(ctx context.Context) (int, error)
}

type broadcastRepo struct {
	db database.DBTX
}

func NewBroadcastRepository(db *sqlx.DB) BroadcastRepository {
	return &broadcastRepo{db: db}
}

func (r *broadcastRepo) Create(ctx context.Context, params model.CreateBroadcastParams) (*model.Broadcast, error) {
	var b model.Broadcast
	err := r.db.GetContext(ctx, &b, `
		INSERT INTO broadcasts (subject, body, media_links, attachment_names, recipients, sent_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.Subject, params.Body,
		pq.StringArray(nonNil(params.MediaLinks)),
		pq.StringArray(nonNil(params.AttachmentNames)),
		pq.StringArray(params.Recipients),
		params.SentBy)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *broadcastRepo) FindByID(ctx context.Context, id string) (*model.Broadcast, error) {
	var b model.Broadcast
	err := r.db.GetContext(ctx, &b, `
		SELECT * FROM broadcasts WHERE id = $1
	`, id)
	return HandleNotFound(&b, err)
}

func (r *broadcastRepo) FindAll(ctx context.Context, limit, offset int) ([]model.Broadcast, error) {
	var broadcasts []model.Broadcast
	err := r.db.SelectContext(ctx, &broadcasts, `
		SELECT * FROM broadcasts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return broadcasts, err
}

func (r *broadcastRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM broadcasts`)
	return count, err
}

// nonNil keeps empty slices from being stored as NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
