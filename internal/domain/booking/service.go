package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fixpoint/fixpoint-api/internal/domain/catalog"
	"github.com/fixpoint/fixpoint-api/internal/domain/geocode"
	"github.com/fixpoint/fixpoint-api/internal/domain/inventory"
	"github.com/fixpoint/fixpoint-api/internal/domain/location"
	"github.com/fixpoint/fixpoint-api/internal/domain/selection"
)

// Catalog is the read-only service lookup the booking flow needs.
type Catalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*catalog.Service, error)
}

// Repository persists submitted bookings.
type Repository interface {
	// Create inserts the booking and its lines in one transaction, reserving
	// stock per line. Returned conflicts are non-nil only with ErrStockConflict.
	Create(ctx context.Context, userID uuid.UUID, loc *location.ResolvedLocation, draft *Draft) (*Booking, []LineConflict, error)
}

// Service drives the booking session: one form in progress per session ID,
// stored in Redis, mutated strictly through load-check-save.
type Service struct {
	store     SessionStore
	catalog   Catalog
	resolver  *location.Resolver
	snapshot  *inventory.Snapshot
	assembler *Assembler
	repo      Repository

	// reconcileMin rate-limits the post-mutation stock reconcile so a burst
	// of quantity edits does not turn into a request storm.
	reconcileMin time.Duration
	now          func() time.Time
}

func NewService(store SessionStore, cat Catalog, resolver *location.Resolver, snapshot *inventory.Snapshot, assembler *Assembler, repo Repository, reconcileMin time.Duration) *Service {
	return &Service{
		store:        store,
		catalog:      cat,
		resolver:     resolver,
		snapshot:     snapshot,
		assembler:    assembler,
		repo:         repo,
		reconcileMin: reconcileMin,
		now:          time.Now,
	}
}

// Open starts a new booking session for the user.
func (s *Service) Open(ctx context.Context, userID uuid.UUID) (*Session, error) {
	sess := &Session{
		ID:        uuid.New(),
		UserID:    userID,
		State:     StateActive,
		Ledger:    selection.NewLedger(),
		CreatedAt: s.now(),
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	log.Info().Str("session_id", sess.ID.String()).Str("user_id", userID.String()).Msg("booking session opened")
	return sess, nil
}

// Get loads the user's session.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// mutate runs fn against a freshly loaded active session and saves the result
// with a bumped generation. Slow work (geocoding, stock refresh) happens
// before mutate is called, so a result arriving after the session closed is
// discarded here instead of mutating a torn-down session.
func (s *Service) mutate(ctx context.Context, id, userID uuid.UUID, fn func(*Session) error) (*Session, error) {
	sess, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if sess.State != StateActive {
		return nil, ErrSessionClosed
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.Generation++
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SetService attaches a catalog service to the session.
func (s *Service) SetService(ctx context.Context, id, userID, serviceID uuid.UUID) (*Session, error) {
	svc, err := s.catalog.GetByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, userID, func(sess *Session) error {
		sess.ServiceID = &svc.ID
		return nil
	})
}

// SearchLocation forward-geocodes a query. A primary-provider hit resolves
// and stores the location immediately; a fallback hit returns candidates for
// an explicit pick and leaves the session untouched.
func (s *Service) SearchLocation(ctx context.Context, id, userID uuid.UUID, query string) (*location.SearchResult, *Session, error) {
	result, err := s.resolver.ResolveFromSearch(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	if result.Resolved == nil {
		return result, nil, nil
	}
	sess, err := s.storeLocation(ctx, id, userID, *result.Resolved)
	if err != nil {
		return nil, nil, err
	}
	return result, sess, nil
}

// PickCandidate confirms one candidate from a degraded search result.
func (s *Service) PickCandidate(ctx context.Context, id, userID uuid.UUID, candidate geocode.Candidate) (*Session, error) {
	return s.storeLocation(ctx, id, userID, s.resolver.ResolveFromCandidate(candidate))
}

// SetCoordinate resolves a map click.
func (s *Service) SetCoordinate(ctx context.Context, id, userID uuid.UUID, coord location.Coordinate) (*Session, error) {
	resolved := s.resolver.ResolveFromCoordinate(ctx, coord, location.SourceMapClick)
	return s.storeLocation(ctx, id, userID, resolved)
}

// SetCity resolves a configured city shortcut.
func (s *Service) SetCity(ctx context.Context, id, userID uuid.UUID, city string) (*Session, error) {
	resolved, err := s.resolver.ResolveFromCity(ctx, city)
	if err != nil {
		return nil, err
	}
	return s.storeLocation(ctx, id, userID, resolved)
}

// UseDevicePosition resolves the client-reported device fix, falling back to
// the anchor location on any failure.
func (s *Service) UseDevicePosition(ctx context.Context, id, userID uuid.UUID, src location.PositionSource) (*Session, error) {
	return s.storeLocation(ctx, id, userID, s.resolver.ResolveFromDevice(ctx, src))
}

// ClearLocation drops the resolved location.
func (s *Service) ClearLocation(ctx context.Context, id, userID uuid.UUID) (*Session, error) {
	return s.mutate(ctx, id, userID, func(sess *Session) error {
		sess.Location = nil
		return nil
	})
}

func (s *Service) storeLocation(ctx context.Context, id, userID uuid.UUID, resolved location.ResolvedLocation) (*Session, error) {
	return s.mutate(ctx, id, userID, func(sess *Session) error {
		sess.Location = &resolved
		return nil
	})
}

// ToggleMaterial selects the item or removes it if already selected, then
// reconciles the ledger against fresh stock.
func (s *Service) ToggleMaterial(ctx context.Context, id, userID, itemID uuid.UUID) (*Session, error) {
	if err := s.ensureSnapshot(ctx); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, userID, func(sess *Session) error {
		item, ok := s.snapshot.Get(itemID)
		if !ok {
			return inventory.ErrNotFound
		}
		if err := sess.Ledger.Toggle(item); err != nil {
			return err
		}
		s.reconcile(ctx, sess)
		return nil
	})
}

// SetMaterialQuantity applies a quantity, silently clamped to what is in
// stock.
func (s *Service) SetMaterialQuantity(ctx context.Context, id, userID, itemID uuid.UUID, quantity int) (*Session, error) {
	if err := s.ensureSnapshot(ctx); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, userID, func(sess *Session) error {
		item, ok := s.snapshot.Get(itemID)
		if !ok {
			return nil
		}
		sess.Ledger.SetQuantity(itemID, quantity, item.QuantityAvailable)
		s.reconcile(ctx, sess)
		return nil
	})
}

// RemoveMaterial deletes the line.
func (s *Service) RemoveMaterial(ctx context.Context, id, userID, itemID uuid.UUID) (*Session, error) {
	return s.mutate(ctx, id, userID, func(sess *Session) error {
		sess.Ledger.Remove(itemID)
		s.reconcile(ctx, sess)
		return nil
	})
}

// reconcile refreshes the snapshot and re-clamps the ledger against it, at
// most once per reconcileMin. A failed refresh reconciles against the last
// good snapshot; the ledger is never left half-updated.
func (s *Service) reconcile(ctx context.Context, sess *Session) {
	if s.reconcileMin > 0 && s.now().Sub(sess.LastReconcileAt) < s.reconcileMin {
		return
	}
	if err := s.snapshot.Refresh(ctx); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("stock refresh during reconcile failed")
	}
	if sess.Ledger.Reconcile(s.snapshot) {
		log.Info().Str("session_id", sess.ID.String()).Msg("ledger adjusted to current stock")
	}
	sess.LastReconcileAt = s.now()
}

// ensureSnapshot performs the first refresh lazily so material ops never read
// an empty view.
func (s *Service) ensureSnapshot(ctx context.Context) error {
	if !s.snapshot.RefreshedAt().IsZero() {
		return nil
	}
	return s.snapshot.Refresh(ctx)
}

// SetPayment records the chosen payment method.
func (s *Service) SetPayment(ctx context.Context, id, userID uuid.UUID, method string) (*Session, error) {
	return s.mutate(ctx, id, userID, func(sess *Session) error {
		sess.PaymentMethod = method
		return nil
	})
}

// SetSchedule records the requested date and time. Window validation happens
// at assembly so the user can fill the form in any order.
func (s *Service) SetSchedule(ctx context.Context, id, userID uuid.UUID, schedule Schedule) (*Session, error) {
	return s.mutate(ctx, id, userID, func(sess *Session) error {
		sess.Schedule = &schedule
		return nil
	})
}

// SetDescription records the free-text problem description.
func (s *Service) SetDescription(ctx context.Context, id, userID uuid.UUID, description string) (*Session, error) {
	return s.mutate(ctx, id, userID, func(sess *Session) error {
		sess.Description = description
		return nil
	})
}

// Preview assembles the session into a draft, or reports every reason it
// cannot be submitted yet.
func (s *Service) Preview(ctx context.Context, id, userID uuid.UUID) (*Draft, []Reason, error) {
	sess, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, nil, err
	}
	if sess.State != StateActive {
		return nil, nil, ErrSessionClosed
	}
	return s.assemble(ctx, sess)
}

func (s *Service) assemble(ctx context.Context, sess *Session) (*Draft, []Reason, error) {
	var svc *catalog.Service
	if sess.ServiceID != nil {
		loaded, err := s.catalog.GetByID(ctx, *sess.ServiceID)
		if err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return nil, nil, err
		}
		svc = loaded
	}
	draft, reasons := s.assembler.Assemble(svc, sess.Location, sess.Ledger, sess.PaymentMethod, sess.Schedule, sess.Description)
	return draft, reasons, nil
}

// Submit assembles and persists the booking. Stock is reserved line by line
// inside one transaction; any shortfall rejects the whole booking and the
// session stays active with its stale lines flagged for correction.
func (s *Service) Submit(ctx context.Context, id, userID uuid.UUID) (*Booking, error) {
	sess, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if sess.State != StateActive {
		return nil, ErrSessionClosed
	}

	draft, reasons, err := s.assemble(ctx, sess)
	if err != nil {
		return nil, err
	}
	if len(reasons) > 0 {
		return nil, &ValidationFailedError{Reasons: reasons}
	}

	booking, conflicts, err := s.repo.Create(ctx, userID, sess.Location, draft)
	if err != nil {
		if errors.Is(err, ErrStockConflict) {
			s.flagConflicts(ctx, sess, conflicts)
			return nil, &StockConflictError{Conflicts: conflicts}
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	sess.State = StateSubmitted
	sess.Ledger = selection.NewLedger()
	sess.Location = nil
	sess.Generation++
	if err := s.store.Save(ctx, sess); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("failed to close session after submit")
	}

	log.Info().
		Str("booking_id", booking.ID.String()).
		Str("user_id", userID.String()).
		Int64("total_cost", booking.TotalCost).
		Msg("booking submitted")
	return booking, nil
}

// flagConflicts re-reconciles after a submission-time stock conflict so the
// session the user returns to already shows the offending lines as stale.
func (s *Service) flagConflicts(ctx context.Context, sess *Session, conflicts []LineConflict) {
	if err := s.snapshot.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("stock refresh after conflict failed")
	}
	sess.Ledger.Reconcile(s.snapshot)
	for _, c := range conflicts {
		for i := range sess.Ledger.Lines {
			if sess.Ledger.Lines[i].ItemID == c.ItemID {
				sess.Ledger.Lines[i].Stale = true
			}
		}
	}
	sess.LastReconcileAt = s.now()
	sess.Generation++
	if err := s.store.Save(ctx, sess); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("failed to save session after conflict")
	}
}

// Abandon closes the session. Late-arriving results against an abandoned
// session are discarded by the active-state check in mutate.
func (s *Service) Abandon(ctx context.Context, id, userID uuid.UUID) error {
	sess, err := s.Get(ctx, id, userID)
	if err != nil {
		return err
	}
	if sess.State != StateActive {
		return ErrSessionClosed
	}
	sess.State = StateAbandoned
	sess.Generation++
	if err := s.store.Save(ctx, sess); err != nil {
		return err
	}
	log.Info().Str("session_id", sess.ID.String()).Msg("booking session abandoned")
	return nil
}
