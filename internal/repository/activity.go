package repository

import (
	"context"

	"contentapi/internal/model"
)

// ActivityRepository persists the upload/delete audit trail.
type ActivityRepository interface {
	// Record appends one entry.
	Record(ctx context.Context, a *model.Activity) error

	// List returns entries newest first with the total row count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Activity], error)
}

// NoopActivity is used when no database is configured.
type NoopActivity struct{}

var _ ActivityRepository = NoopActivity{}

func (NoopActivity) Record(context.Context, *model.Activity) error { return nil }

func (NoopActivity) List(context.Context, PageQuery) (*PageResult[model.Activity], error) {
	return &PageResult[model.Activity]{Items: []model.Activity{}}, nil
}
