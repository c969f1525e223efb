package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// List returns active services, optionally narrowed to a category.
func (r *Repository) List(ctx context.Context, category string) ([]Service, error) {
	query := `
		SELECT id, name, category, base_price, requires_inventory, estimated_duration_minutes, active
		FROM services
		WHERE active = true
	`
	args := []interface{}{}
	if category != "" {
		query += ` AND category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY name ASC`

	var services []Service
	if err := r.db.SelectContext(ctx, &services, query, args...); err != nil {
		return nil, err
	}
	return services, nil
}

// GetByID returns one service.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	var svc Service
	err := r.db.GetContext(ctx, &svc, `
		SELECT id, name, category, base_price, requires_inventory, estimated_duration_minutes, active
		FROM services
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}
