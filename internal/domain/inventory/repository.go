package inventory

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Source produces the full current stock list. Implemented by the sqlx
// repository in production and by fakes in tests.
type Source interface {
	FetchItems(ctx context.Context) ([]Item, error)
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// FetchItems loads every inventory row in stable name order. DB failures map
// to ErrFetchFailed so callers can offer a retry instead of surfacing driver
// noise.
func (r *Repository) FetchItems(ctx context.Context) ([]Item, error) {
	var items []Item
	err := r.db.SelectContext(ctx, &items, `
		SELECT id, name, category, unit_price, unit, quantity_available, reorder_level, active, updated_at
		FROM inventory_items
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return items, nil
}
