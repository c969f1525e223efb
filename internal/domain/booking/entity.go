package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/fixpoint/fixpoint-api/internal/domain/location"
	"github.com/fixpoint/fixpoint-api/internal/domain/selection"
)

// State is the booking session lifecycle.
type State string

const (
	StateActive    State = "active"
	StateSubmitted State = "submitted"
	StateAbandoned State = "abandoned"
)

// Schedule is the requested service date and start time.
type Schedule struct {
	Date string `json:"date"` // 2006-01-02
	Time string `json:"time"` // 15:04
}

// Session is one booking-in-progress. It owns the selection ledger and the
// resolved location, lives in Redis while the form is open, and is destroyed
// on submit or abandon.
type Session struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	State  State     `json:"state"`
	// Generation increments on every save; in-flight work that reloads the
	// session and finds it gone or closed discards its result.
	Generation int64 `json:"generation"`

	ServiceID     *uuid.UUID                 `json:"service_id,omitempty"`
	Location      *location.ResolvedLocation `json:"location,omitempty"`
	Ledger        *selection.Ledger          `json:"ledger"`
	PaymentMethod string                     `json:"payment_method,omitempty"`
	Schedule      *Schedule                  `json:"schedule,omitempty"`
	Description   string                     `json:"description,omitempty"`

	LastReconcileAt time.Time `json:"last_reconcile_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// DraftLine is one priced material on an assembled draft.
type DraftLine struct {
	ItemID    uuid.UUID `json:"item_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	LineTotal int64     `json:"line_total"`
}

// Draft is a fully validated, submittable booking.
type Draft struct {
	ServiceID     uuid.UUID   `json:"service_id"`
	ServiceName   string      `json:"service_name"`
	BasePrice     int64       `json:"base_price"`
	ScheduledAt   time.Time   `json:"scheduled_at"`
	Address       *string     `json:"address"`
	Lat           float64     `json:"lat"`
	Lng           float64     `json:"lng"`
	PaymentMethod string      `json:"payment_method"`
	Description   string      `json:"description,omitempty"`
	Lines         []DraftLine `json:"lines"`
	TotalCost     int64       `json:"total_cost"`
	// Warnings are caller-visible conditions that do not block submission,
	// e.g. a location outside the service region.
	Warnings []string `json:"warnings,omitempty"`
}

// Booking is the persisted record created on successful submission.
type Booking struct {
	ID                uuid.UUID `db:"id" json:"id"`
	UserID            uuid.UUID `db:"user_id" json:"user_id"`
	ServiceID         uuid.UUID `db:"service_id" json:"service_id"`
	ScheduledAt       time.Time `db:"scheduled_at" json:"scheduled_at"`
	Address           *string   `db:"address" json:"address"`
	Lat               float64   `db:"lat" json:"lat"`
	Lng               float64   `db:"lng" json:"lng"`
	LocationConfirmed bool      `db:"location_confirmed" json:"location_confirmed"`
	PaymentMethod     string    `db:"payment_method" json:"payment_method"`
	Description       string    `db:"description" json:"description"`
	TotalCost         int64     `db:"total_cost" json:"total_cost"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// LineConflict identifies one material the stock system refused at
// submission time.
type LineConflict struct {
	ItemID uuid.UUID `json:"item_id"`
	Name   string    `json:"name"`
	Reason string    `json:"reason"`
}
