package catalog

import "github.com/google/uuid"

// Service is one bookable service from the catalog, consumed read-only.
type Service struct {
	ID                uuid.UUID `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Category          string    `db:"category" json:"category"`
	BasePrice         int64     `db:"base_price" json:"base_price"`
	RequiresInventory bool      `db:"requires_inventory" json:"requires_inventory"`
	EstimatedDuration int       `db:"estimated_duration_minutes" json:"estimated_duration_minutes"`
	Active            bool      `db:"active" json:"active"`
}
