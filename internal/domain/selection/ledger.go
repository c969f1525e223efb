package selection

import (
	"github.com/google/uuid"

	"github.com/fixpoint/fixpoint-api/internal/domain/inventory"
)

// Line is one selected material. UnitPriceAtSelection is captured when the
// item is toggled in and never live-repriced; only the quantity cap follows
// the snapshot.
type Line struct {
	ItemID               uuid.UUID `json:"item_id"`
	Name                 string    `json:"name"`
	Unit                 string    `json:"unit"`
	Quantity             int       `json:"quantity"`
	UnitPriceAtSelection int64     `json:"unit_price_at_selection"`
	// Stale marks a line whose backing item became inactive or zero-stock
	// after selection. Stale lines block submission but are never silently
	// dropped.
	Stale bool `json:"stale"`
}

// LineTotal is the line's cost contribution.
func (l Line) LineTotal() int64 {
	return l.UnitPriceAtSelection * int64(l.Quantity)
}

// Ledger holds the selected materials in insertion order, one line per item.
type Ledger struct {
	Lines []Line `json:"lines"`
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// IsEmpty reports whether nothing is selected.
func (g *Ledger) IsEmpty() bool {
	return len(g.Lines) == 0
}

// Get returns the line for itemID if selected.
func (g *Ledger) Get(itemID uuid.UUID) (Line, bool) {
	for _, line := range g.Lines {
		if line.ItemID == itemID {
			return line, true
		}
	}
	return Line{}, false
}

// Toggle selects the item, or removes it if it is already selected.
// Selecting an item with no available stock fails with ErrOutOfStock.
func (g *Ledger) Toggle(item inventory.Item) error {
	for i, line := range g.Lines {
		if line.ItemID == item.ID {
			g.Lines = append(g.Lines[:i], g.Lines[i+1:]...)
			return nil
		}
	}

	if item.QuantityAvailable < 1 || !item.Active {
		return ErrOutOfStock
	}

	g.Lines = append(g.Lines, Line{
		ItemID:               item.ID,
		Name:                 item.Name,
		Unit:                 item.Unit,
		Quantity:             1,
		UnitPriceAtSelection: item.UnitPrice,
	})
	return nil
}

// SetQuantity clamps requested into [1, quantityAvailable] and applies it.
// Clamping is silent; an unknown itemID is a no-op. The caller supplies the
// availability from the latest snapshot.
func (g *Ledger) SetQuantity(itemID uuid.UUID, requested, quantityAvailable int) {
	for i := range g.Lines {
		if g.Lines[i].ItemID != itemID {
			continue
		}
		g.Lines[i].Quantity = clamp(requested, 1, quantityAvailable)
		return
	}
}

// Remove deletes the line for itemID if present.
func (g *Ledger) Remove(itemID uuid.UUID) {
	for i, line := range g.Lines {
		if line.ItemID == itemID {
			g.Lines = append(g.Lines[:i], g.Lines[i+1:]...)
			return
		}
	}
}

// TotalCost sums the lines. Computed on every call, never cached, so it can
// not drift from the selection.
func (g *Ledger) TotalCost() int64 {
	var total int64
	for _, line := range g.Lines {
		total += line.LineTotal()
	}
	return total
}

// HasStaleLines reports whether any line is flagged stale.
func (g *Ledger) HasStaleLines() bool {
	for _, line := range g.Lines {
		if line.Stale {
			return true
		}
	}
	return false
}

// StaleLines returns the flagged lines.
func (g *Ledger) StaleLines() []Line {
	var out []Line
	for _, line := range g.Lines {
		if line.Stale {
			out = append(out, line)
		}
	}
	return out
}

// Reconcile re-clamps every line against the snapshot. Lines whose item went
// inactive or out of stock are flagged stale, not removed: the user decides
// what to do with them. Returns true when any line changed.
func (g *Ledger) Reconcile(snapshot *inventory.Snapshot) bool {
	changed := false
	for i := range g.Lines {
		line := &g.Lines[i]

		item, ok := snapshot.Get(line.ItemID)
		if !ok || !item.Active || item.QuantityAvailable < 1 {
			if !line.Stale {
				line.Stale = true
				changed = true
			}
			continue
		}

		if line.Stale {
			line.Stale = false
			changed = true
		}
		if clamped := clamp(line.Quantity, 1, item.QuantityAvailable); clamped != line.Quantity {
			line.Quantity = clamped
			changed = true
		}
	}
	return changed
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
