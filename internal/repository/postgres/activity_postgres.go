package postgres

import (
	"context"
	"database/sql"

	"contentapi/internal/model"
	"contentapi/internal/repository"
)

// ActivityPostgres is a PostgreSQL implementation of repository.ActivityRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type ActivityPostgres struct {
	db *sql.DB
}

// NewActivityPostgres creates a new ActivityPostgres repository.
func NewActivityPostgres(db *sql.DB) *ActivityPostgres {
	return &ActivityPostgres{db: db}
}

var _ repository.ActivityRepository = (*ActivityPostgres)(nil)

// Record inserts one activity row.
func (r *ActivityPostgres) Record(ctx context.Context, a *model.Activity) error {
	const q = `
		INSERT INTO content_activity (id, action, category, filename, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, q,
		a.ID,
		a.Action,
		a.Category,
		a.Filename,
		a.Size,
		a.CreatedAt,
	)
	return err
}

// List returns activity rows using LIMIT/OFFSET pagination and a total count.
func (r *ActivityPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Activity], error) {
	const qCount = `SELECT COUNT(*) FROM content_activity`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT id, action, category, filename, size, created_at
		FROM content_activity
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Activity, 0)
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(
			&a.ID,
			&a.Action,
			&a.Category,
			&a.Filename,
			&a.Size,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Activity]{
		Items: items,
		Total: total,
	}, nil
}
