package booking

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fixpoint/fixpoint-api/internal/domain/catalog"
	"github.com/fixpoint/fixpoint-api/internal/domain/geocode"
	"github.com/fixpoint/fixpoint-api/internal/domain/inventory"
	"github.com/fixpoint/fixpoint-api/internal/domain/location"
	"github.com/fixpoint/fixpoint-api/internal/domain/selection"
)

// memoryStore round-trips sessions through JSON the way the Redis store
// does, so a session held by the caller never aliases the stored one.
type memoryStore struct {
	sessions map[uuid.UUID][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[uuid.UUID][]byte)}
}

func (m *memoryStore) Save(_ context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	m.sessions[sess.ID] = data
	return nil
}

func (m *memoryStore) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	data, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (m *memoryStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.sessions, id)
	return nil
}

type fakeCatalog struct {
	services map[uuid.UUID]*catalog.Service
}

func (f *fakeCatalog) GetByID(_ context.Context, id uuid.UUID) (*catalog.Service, error) {
	svc, ok := f.services[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return svc, nil
}

type fakeRepo struct {
	booking   *Booking
	conflicts []LineConflict
	err       error
	lastDraft *Draft
}

func (f *fakeRepo) Create(_ context.Context, userID uuid.UUID, loc *location.ResolvedLocation, draft *Draft) (*Booking, []LineConflict, error) {
	f.lastDraft = draft
	if f.err != nil {
		return nil, f.conflicts, f.err
	}
	if f.booking == nil {
		f.booking = &Booking{
			ID:        uuid.New(),
			UserID:    userID,
			ServiceID: draft.ServiceID,
			TotalCost: draft.TotalCost,
		}
	}
	return f.booking, nil, nil
}

type fakeStockSource struct {
	items      []inventory.Item
	fetchCalls int
}

func (f *fakeStockSource) FetchItems(_ context.Context) ([]inventory.Item, error) {
	f.fetchCalls++
	out := make([]inventory.Item, len(f.items))
	copy(out, f.items)
	return out, nil
}

type deadProvider struct{}

func (deadProvider) Name() string { return "dead" }

func (deadProvider) ForwardSearch(context.Context, string, string) ([]geocode.Candidate, error) {
	return nil, geocode.ErrNotConfigured
}

func (deadProvider) ReverseLookup(context.Context, geocode.Coordinate) (string, error) {
	return "", geocode.ErrNotConfigured
}

type testEnv struct {
	service *Service
	store   *memoryStore
	stock   *fakeStockSource
	repo    *fakeRepo
	catalog *fakeCatalog
}

func newTestEnv(t *testing.T, items []inventory.Item, services ...*catalog.Service) *testEnv {
	t.Helper()

	cat := &fakeCatalog{services: make(map[uuid.UUID]*catalog.Service)}
	for _, svc := range services {
		cat.services[svc.ID] = svc
	}

	stock := &fakeStockSource{items: items}
	snapshot := inventory.NewSnapshot(stock, nil)

	resolver := location.NewResolver(deadProvider{}, deadProvider{}, location.Config{
		Fence:      location.Geofence{MinLat: 5.9, MaxLat: 9.8, MinLng: 79.6, MaxLng: 81.9},
		Anchor:     location.Coordinate{Lat: 6.9271, Lng: 79.8612},
		DeviceWait: 100 * time.Millisecond,
		Cities:     location.DefaultCities(),
	})

	hours, err := ParseServiceHours("09:00", "17:00")
	if err != nil {
		t.Fatalf("parse hours: %v", err)
	}
	assembler := NewAssembler(hours)
	assembler.now = func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}

	store := newMemoryStore()
	repo := &fakeRepo{}
	svc := NewService(store, cat, resolver, snapshot, assembler, repo, 0)
	return &testEnv{service: svc, store: store, stock: stock, repo: repo, catalog: cat}
}

func TestSessionOwnership(t *testing.T) {
	env := newTestEnv(t, nil)
	userA := uuid.New()
	userB := uuid.New()

	sess, err := env.service.Open(context.Background(), userA)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := env.service.Get(context.Background(), sess.ID, userB); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for foreign user, got %v", err)
	}
	if _, err := env.service.Get(context.Background(), sess.ID, userA); err != nil {
		t.Fatalf("owner should load session: %v", err)
	}
}

func TestEndToEndSubmission(t *testing.T) {
	item := inventory.Item{
		ID:                uuid.New(),
		Name:              "cement bag",
		UnitPrice:         200,
		Unit:              "bag",
		QuantityAvailable: 5,
		Active:            true,
	}
	svc := &catalog.Service{ID: uuid.New(), Name: "Masonry repair", BasePrice: 1000, RequiresInventory: true, Active: true}
	env := newTestEnv(t, []inventory.Item{item}, svc)
	ctx := context.Background()
	userID := uuid.New()

	sess, err := env.service.Open(ctx, userID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := env.service.SetService(ctx, sess.ID, userID, svc.ID); err != nil {
		t.Fatalf("set service: %v", err)
	}

	withLoc, err := env.service.SetCity(ctx, sess.ID, userID, "Kandy")
	if err != nil {
		t.Fatalf("set city: %v", err)
	}
	if !withLoc.Location.Confirmed {
		t.Fatal("Kandy must resolve inside the geofence")
	}
	if withLoc.Location.Lat != 7.8731 || withLoc.Location.Lng != 80.7718 {
		t.Fatalf("unexpected city coordinate: %+v", withLoc.Location.Coordinate)
	}

	if _, err := env.service.ToggleMaterial(ctx, sess.ID, userID, item.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	withQty, err := env.service.SetMaterialQuantity(ctx, sess.ID, userID, item.ID, 2)
	if err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if got := withQty.Ledger.TotalCost(); got != 400 {
		t.Fatalf("ledger total = %d, want 400", got)
	}

	if _, err := env.service.SetPayment(ctx, sess.ID, userID, "cash"); err != nil {
		t.Fatalf("set payment: %v", err)
	}
	if _, err := env.service.SetSchedule(ctx, sess.ID, userID, Schedule{Date: "2026-03-11", Time: "10:00"}); err != nil {
		t.Fatalf("set schedule: %v", err)
	}

	draft, reasons, err := env.service.Preview(ctx, sess.ID, userID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(reasons) != 0 {
		t.Fatalf("expected zero reasons, got %v", reasons)
	}
	if draft.TotalCost != 1400 {
		t.Fatalf("draft total = %d, want 1400", draft.TotalCost)
	}

	booking, err := env.service.Submit(ctx, sess.ID, userID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if booking.TotalCost != 1400 {
		t.Errorf("booking total = %d, want 1400", booking.TotalCost)
	}
	if env.repo.lastDraft == nil || len(env.repo.lastDraft.Lines) != 1 {
		t.Fatalf("repo should receive one line, got %+v", env.repo.lastDraft)
	}

	closed, err := env.service.Get(ctx, sess.ID, userID)
	if err != nil {
		t.Fatalf("get after submit: %v", err)
	}
	if closed.State != StateSubmitted {
		t.Errorf("state = %s, want submitted", closed.State)
	}
	if !closed.Ledger.IsEmpty() || closed.Location != nil {
		t.Error("ledger and location must be cleared after submit")
	}

	if _, err := env.service.SetPayment(ctx, sess.ID, userID, "cash"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("mutating a submitted session should fail with ErrSessionClosed, got %v", err)
	}
}

func TestSessionViewReportsMaterialsCostOnly(t *testing.T) {
	item := inventory.Item{
		ID:                uuid.New(),
		Name:              "cement bag",
		UnitPrice:         200,
		Unit:              "bag",
		QuantityAvailable: 5,
		Active:            true,
	}
	svc := &catalog.Service{ID: uuid.New(), Name: "Masonry repair", BasePrice: 1000, RequiresInventory: true, Active: true}
	env := newTestEnv(t, []inventory.Item{item}, svc)
	ctx := context.Background()
	userID := uuid.New()

	sess, _ := env.service.Open(ctx, userID)
	env.service.SetService(ctx, sess.ID, userID, svc.ID)
	env.service.SetCity(ctx, sess.ID, userID, "Kandy")
	env.service.ToggleMaterial(ctx, sess.ID, userID, item.ID)
	env.service.SetMaterialQuantity(ctx, sess.ID, userID, item.ID, 2)
	env.service.SetPayment(ctx, sess.ID, userID, "cash")
	env.service.SetSchedule(ctx, sess.ID, userID, Schedule{Date: "2026-03-11", Time: "10:00"})

	current, err := env.service.Get(ctx, sess.ID, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	view := sessionView(current)
	if view.MaterialsCost != 400 {
		t.Fatalf("materials cost = %d, want 400", view.MaterialsCost)
	}

	// The view must never claim a booking total; that figure includes the
	// base price and exists only on the assembled draft.
	data, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := fields["total_cost"]; ok {
		t.Fatal("session view must not expose a total_cost field")
	}
	if _, ok := fields["materials_cost"]; !ok {
		t.Fatalf("session view must expose materials_cost, got %s", data)
	}

	draft, reasons, err := env.service.Preview(ctx, sess.ID, userID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(reasons) != 0 {
		t.Fatalf("expected zero reasons, got %v", reasons)
	}
	if draft.TotalCost != svc.BasePrice+view.MaterialsCost {
		t.Fatalf("draft total = %d, want %d", draft.TotalCost, svc.BasePrice+view.MaterialsCost)
	}
}

func TestAbandonDiscardsLateResults(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	sess, err := env.service.Open(ctx, userID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := env.service.Abandon(ctx, sess.ID, userID); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	// A resolution arriving after teardown must not mutate the session.
	_, err = env.service.SetCoordinate(ctx, sess.ID, userID, location.Coordinate{Lat: 6.9, Lng: 79.9})
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}

	got, err := env.service.Get(ctx, sess.ID, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Location != nil {
		t.Fatal("abandoned session must not receive the late location")
	}
	if err := env.service.Abandon(ctx, sess.ID, userID); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("double abandon should fail with ErrSessionClosed, got %v", err)
	}
}

func TestSubmitCollectsValidationReasons(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	sess, err := env.service.Open(ctx, userID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_, err = env.service.Submit(ctx, sess.ID, userID)
	var validation *ValidationFailedError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationFailedError, got %v", err)
	}
	if len(validation.Reasons) < 4 {
		t.Fatalf("expected all independent reasons collected, got %v", validation.Reasons)
	}

	still, err := env.service.Get(ctx, sess.ID, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if still.State != StateActive {
		t.Fatal("failed validation must leave the session active")
	}
}

func TestStockConflictFlagsLinesAndKeepsSessionActive(t *testing.T) {
	item := inventory.Item{
		ID:                uuid.New(),
		Name:              "cement bag",
		UnitPrice:         200,
		Unit:              "bag",
		QuantityAvailable: 5,
		Active:            true,
	}
	svc := &catalog.Service{ID: uuid.New(), Name: "Masonry repair", BasePrice: 1000, RequiresInventory: true, Active: true}
	env := newTestEnv(t, []inventory.Item{item}, svc)
	ctx := context.Background()
	userID := uuid.New()

	sess, _ := env.service.Open(ctx, userID)
	env.service.SetService(ctx, sess.ID, userID, svc.ID)
	env.service.SetCity(ctx, sess.ID, userID, "Kandy")
	env.service.ToggleMaterial(ctx, sess.ID, userID, item.ID)
	env.service.SetPayment(ctx, sess.ID, userID, "cash")
	env.service.SetSchedule(ctx, sess.ID, userID, Schedule{Date: "2026-03-11", Time: "10:00"})

	env.repo.err = ErrStockConflict
	env.repo.conflicts = []LineConflict{{ItemID: item.ID, Name: item.Name, Reason: "only 0 in stock"}}

	_, err := env.service.Submit(ctx, sess.ID, userID)
	var conflict *StockConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected StockConflictError, got %v", err)
	}
	if len(conflict.Conflicts) != 1 || conflict.Conflicts[0].Name != "cement bag" {
		t.Fatalf("unexpected conflicts: %+v", conflict.Conflicts)
	}

	after, err := env.service.Get(ctx, sess.ID, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.State != StateActive {
		t.Fatal("stock conflict must leave the session active for correction")
	}
	line, ok := after.Ledger.Get(item.ID)
	if !ok {
		t.Fatal("conflicted line must not be removed")
	}
	if !line.Stale {
		t.Fatal("conflicted line must be flagged stale")
	}
}

func TestToggleOutOfStockItem(t *testing.T) {
	item := inventory.Item{ID: uuid.New(), Name: "cement bag", UnitPrice: 200, QuantityAvailable: 0, Active: true}
	env := newTestEnv(t, []inventory.Item{item})
	ctx := context.Background()
	userID := uuid.New()

	sess, _ := env.service.Open(ctx, userID)
	if _, err := env.service.ToggleMaterial(ctx, sess.ID, userID, item.ID); !errors.Is(err, selection.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
}

func TestReconcileRateLimit(t *testing.T) {
	item := inventory.Item{ID: uuid.New(), Name: "cement bag", UnitPrice: 200, QuantityAvailable: 5, Active: true}
	env := newTestEnv(t, []inventory.Item{item})
	env.service.reconcileMin = 2 * time.Second

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	now := base
	env.service.now = func() time.Time { return now }

	ctx := context.Background()
	userID := uuid.New()
	sess, _ := env.service.Open(ctx, userID)

	if _, err := env.service.ToggleMaterial(ctx, sess.ID, userID, item.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	// First fetch fills the snapshot, second is the reconcile after toggle.
	if env.stock.fetchCalls != 2 {
		t.Fatalf("fetch calls = %d, want 2", env.stock.fetchCalls)
	}

	now = base.Add(500 * time.Millisecond)
	if _, err := env.service.SetMaterialQuantity(ctx, sess.ID, userID, item.ID, 3); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if env.stock.fetchCalls != 2 {
		t.Fatalf("reconcile inside the interval must not refetch, got %d calls", env.stock.fetchCalls)
	}

	now = base.Add(3 * time.Second)
	if _, err := env.service.SetMaterialQuantity(ctx, sess.ID, userID, item.ID, 4); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if env.stock.fetchCalls != 3 {
		t.Fatalf("reconcile past the interval must refetch, got %d calls", env.stock.fetchCalls)
	}
}

func TestUnknownCityShortcut(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	sess, _ := env.service.Open(ctx, userID)
	if _, err := env.service.SetCity(ctx, sess.ID, userID, "Atlantis"); !errors.Is(err, location.ErrUnknownCity) {
		t.Fatalf("expected ErrUnknownCity, got %v", err)
	}
}

func TestDevicePositionFallsBackToAnchor(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	sess, _ := env.service.Open(ctx, userID)
	got, err := env.service.UseDevicePosition(ctx, sess.ID, userID, reportedPosition{})
	if err != nil {
		t.Fatalf("device position: %v", err)
	}
	if got.Location == nil {
		t.Fatal("expected anchor location")
	}
	if got.Location.Lat != 6.9271 || got.Location.Lng != 79.8612 {
		t.Fatalf("expected anchor coordinate, got %+v", got.Location.Coordinate)
	}
	if got.Location.Confirmed {
		t.Fatal("anchor fallback must stay unconfirmed")
	}
}
