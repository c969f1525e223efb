package inventory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AuthCheck reports whether the context carries an authenticated user.
// Injected so the snapshot never reaches into HTTP plumbing directly.
type AuthCheck func(ctx context.Context) bool

type flight struct {
	done chan struct{}
	err  error
}

// Snapshot is a read-only view of current stock, refreshed on demand.
// A refresh fully replaces the prior view; readers never observe a partial
// update. Concurrent refresh triggers coalesce onto the in-flight one.
type Snapshot struct {
	source Source
	auth   AuthCheck

	mu          sync.RWMutex
	items       []Item
	byID        map[uuid.UUID]Item
	refreshedAt time.Time

	flightMu sync.Mutex
	inFlight *flight

	changeMu sync.Mutex
	onChange func([]StockChange)
}

// NewSnapshot creates an empty snapshot over the given source.
func NewSnapshot(source Source, auth AuthCheck) *Snapshot {
	return &Snapshot{
		source: source,
		auth:   auth,
		byID:   make(map[uuid.UUID]Item),
	}
}

// OnChange registers a callback invoked with the stock diff after each
// refresh that observed movement.
func (s *Snapshot) OnChange(fn func([]StockChange)) {
	s.changeMu.Lock()
	s.onChange = fn
	s.changeMu.Unlock()
}

// Refresh replaces the snapshot with the source's current stock.
// A refresh already in flight absorbs this trigger and both callers share
// its outcome.
func (s *Snapshot) Refresh(ctx context.Context) error {
	if s.auth != nil && !s.auth(ctx) {
		return ErrAuthRequired
	}

	s.flightMu.Lock()
	if f := s.inFlight; f != nil {
		s.flightMu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	s.inFlight = f
	s.flightMu.Unlock()

	f.err = s.doRefresh(ctx)

	s.flightMu.Lock()
	s.inFlight = nil
	s.flightMu.Unlock()
	close(f.done)

	return f.err
}

func (s *Snapshot) doRefresh(ctx context.Context) error {
	items, err := s.source.FetchItems(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("inventory refresh failed")
		return err
	}

	byID := make(map[uuid.UUID]Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	s.mu.Lock()
	changes := diffStock(s.byID, items)
	s.items = items
	s.byID = byID
	s.refreshedAt = time.Now()
	s.mu.Unlock()

	log.Debug().Int("items", len(items)).Int("changed", len(changes)).Msg("inventory snapshot refreshed")

	if len(changes) > 0 {
		s.changeMu.Lock()
		fn := s.onChange
		s.changeMu.Unlock()
		if fn != nil {
			fn(changes)
		}
	}
	return nil
}

// diffStock lists items whose availability or active flag moved.
// Caller holds s.mu.
func diffStock(prev map[uuid.UUID]Item, next []Item) []StockChange {
	if len(prev) == 0 {
		return nil
	}
	var changes []StockChange
	for _, item := range next {
		old, seen := prev[item.ID]
		if !seen {
			continue
		}
		if old.QuantityAvailable != item.QuantityAvailable || old.Active != item.Active {
			changes = append(changes, StockChange{
				ItemID:            item.ID,
				Name:              item.Name,
				QuantityAvailable: item.QuantityAvailable,
				Active:            item.Active,
			})
		}
	}
	return changes
}

// Items returns the full current view in snapshot order.
func (s *Snapshot) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns one item from the current view.
func (s *Snapshot) Get(id uuid.UUID) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.byID[id]
	return item, ok
}

// RefreshedAt reports when the current view was taken; zero before the first
// refresh.
func (s *Snapshot) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// Filter returns the selectable items matching opts, preserving snapshot
// order. Inactive and zero-stock items are never returned, regardless of
// opts.
func (s *Snapshot) Filter(opts FilterOptions) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	term := strings.ToLower(strings.TrimSpace(opts.SearchTerm))

	var out []Item
	for _, item := range s.items {
		if !item.Selectable() {
			continue
		}
		if opts.Category != "" && item.Category != opts.Category {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(item.Name), term) {
			continue
		}
		out = append(out, item)
	}
	return out
}
