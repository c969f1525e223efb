package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fixpoint/fixpoint-api/internal/domain/location"
)

// SQLRepository persists bookings. Stock reservation and the booking insert
// share one transaction; either the whole booking lands or none of it does.
type SQLRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

// Create inserts the booking and its lines, locking each inventory row and
// decrementing stock. Lines the stock system cannot cover are collected and
// the transaction rolls back with ErrStockConflict.
func (r *SQLRepository) Create(ctx context.Context, userID uuid.UUID, loc *location.ResolvedLocation, draft *Draft) (*Booking, []LineConflict, error) {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var conflicts []LineConflict
	for _, line := range draft.Lines {
		available, err := r.lockItem(ctx, tx, line.ItemID)
		if errors.Is(err, sql.ErrNoRows) {
			conflicts = append(conflicts, LineConflict{ItemID: line.ItemID, Name: line.Name, Reason: "material no longer offered"})
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("lock inventory item: %w", err)
		}
		if available < line.Quantity {
			conflicts = append(conflicts, LineConflict{
				ItemID: line.ItemID,
				Name:   line.Name,
				Reason: fmt.Sprintf("only %d in stock", available),
			})
		}
	}
	if len(conflicts) > 0 {
		return nil, conflicts, ErrStockConflict
	}

	booking := &Booking{
		ID:                uuid.New(),
		UserID:            userID,
		ServiceID:         draft.ServiceID,
		ScheduledAt:       draft.ScheduledAt,
		Address:           draft.Address,
		Lat:               draft.Lat,
		Lng:               draft.Lng,
		LocationConfirmed: loc != nil && loc.Confirmed,
		PaymentMethod:     draft.PaymentMethod,
		Description:       draft.Description,
		TotalCost:         draft.TotalCost,
		CreatedAt:         time.Now(),
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (id, user_id, service_id, scheduled_at, address, lat, lng, location_confirmed, payment_method, description, total_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, booking.ID, booking.UserID, booking.ServiceID, booking.ScheduledAt, booking.Address,
		booking.Lat, booking.Lng, booking.LocationConfirmed, booking.PaymentMethod,
		booking.Description, booking.TotalCost, booking.CreatedAt); err != nil {
		return nil, nil, fmt.Errorf("insert booking: %w", err)
	}

	for _, line := range draft.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO booking_lines (booking_id, item_id, name, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, booking.ID, line.ItemID, line.Name, line.Quantity, line.UnitPrice, line.LineTotal); err != nil {
			return nil, nil, fmt.Errorf("insert booking line: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE inventory_items
			SET quantity_available = quantity_available - $1, updated_at = now()
			WHERE id = $2
		`, line.Quantity, line.ItemID); err != nil {
			return nil, nil, fmt.Errorf("decrement stock: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}
	return booking, nil, nil
}

func (r *SQLRepository) lockItem(ctx context.Context, tx *sqlx.Tx, itemID uuid.UUID) (int, error) {
	var available int
	err := tx.GetContext(ctx, &available, `
		SELECT quantity_available
		FROM inventory_items
		WHERE id = $1 AND active = true
		FOR UPDATE
	`, itemID)
	return available, err
}

// GetByID loads a persisted booking for the user.
func (r *SQLRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.GetContext(ctx, &booking, `
		SELECT id, user_id, service_id, scheduled_at, address, lat, lng, location_confirmed, payment_method, description, total_cost, created_at
		FROM bookings
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &booking, nil
}
