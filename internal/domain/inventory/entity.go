package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Item mirrors one inventory record owned by the backend stock system.
// The booking flow only reads it.
type Item struct {
	ID                uuid.UUID `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Category          string    `db:"category" json:"category"`
	UnitPrice         int64     `db:"unit_price" json:"unit_price"`
	Unit              string    `db:"unit" json:"unit"`
	QuantityAvailable int       `db:"quantity_available" json:"quantity_available"`
	ReorderLevel      int       `db:"reorder_level" json:"reorder_level"`
	Active            bool      `db:"active" json:"active"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Selectable reports whether the item may be offered for selection.
func (i Item) Selectable() bool {
	return i.Active && i.QuantityAvailable > 0
}

// LowStock reports whether the item sits at or under its reorder level.
func (i Item) LowStock() bool {
	return i.QuantityAvailable <= i.ReorderLevel
}

// FilterOptions narrow the selectable view of a snapshot. The
// active-and-in-stock predicate is standing and applied regardless.
type FilterOptions struct {
	Category   string
	SearchTerm string
}

// StockChange describes one item whose availability moved between two
// snapshot refreshes.
type StockChange struct {
	ItemID            uuid.UUID `json:"item_id"`
	Name              string    `json:"name"`
	QuantityAvailable int       `json:"quantity_available"`
	Active            bool      `json:"active"`
}
