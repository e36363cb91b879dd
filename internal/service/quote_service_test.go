package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"devis-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuoteStore is an in-memory QuoteStore with a real compare-and-set.
type fakeQuoteStore struct {
	mu     sync.Mutex
	nextID int64
	quotes map[int64]*models.Quote

	// casFailures makes the next n CAS calls lose the race.
	casFailures int
}

func newFakeQuoteStore() *fakeQuoteStore {
	return &fakeQuoteStore{nextID: 1, quotes: make(map[int64]*models.Quote)}
}

func (f *fakeQuoteStore) CreateQuote(_ context.Context, quote *models.Quote) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	quote.ID = f.nextID
	f.nextID++
	quote.Version = 1
	quote.CreatedAt = time.Now()
	quote.UpdatedAt = quote.CreatedAt

	stored := *quote
	f.quotes[quote.ID] = &stored
	return nil
}

func (f *fakeQuoteStore) GetQuoteByID(_ context.Context, id int64) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	quote, ok := f.quotes[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *quote
	return &copied, nil
}

func (f *fakeQuoteStore) GetQuoteByIdempotencyKey(_ context.Context, key string) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, quote := range f.quotes {
		if quote.IdempotencyKey == key {
			copied := *quote
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeQuoteStore) ListQuotes(_ context.Context) ([]models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Quote, 0, len(f.quotes))
	for _, quote := range f.quotes {
		out = append(out, *quote)
	}
	return out, nil
}

func (f *fakeQuoteStore) ListQuotesByStatus(_ context.Context, status models.QuoteStatus) ([]models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Quote
	for _, quote := range f.quotes {
		if quote.Status == status {
			out = append(out, *quote)
		}
	}
	return out, nil
}

func (f *fakeQuoteStore) ListStaleQuotes(_ context.Context, status models.QuoteStatus, olderThan time.Time) ([]models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Quote
	for _, quote := range f.quotes {
		if quote.Status == status && quote.UpdatedAt.Before(olderThan) {
			out = append(out, *quote)
		}
	}
	return out, nil
}

func (f *fakeQuoteStore) UpdateQuoteStatusCAS(_ context.Context, quoteID int64, target models.QuoteStatus, actor string, occurredAt time.Time, expectedVersion int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	quote, ok := f.quotes[quoteID]
	if !ok {
		return 0, models.ErrNotFound
	}
	if f.casFailures > 0 {
		f.casFailures--
		return 0, models.ErrConcurrentModification
	}
	if quote.Version != expectedVersion {
		return 0, models.ErrConcurrentModification
	}

	quote.Status = target
	quote.Version++
	quote.LastTransitionBy = actor
	quote.LastTransitionAt = &occurredAt
	quote.UpdatedAt = time.Now()
	return quote.Version, nil
}

// fakeCatalogStore serves a fixed catalog.
type fakeCatalogStore struct {
	items map[int64]models.CatalogItem
}

func (f *fakeCatalogStore) GetCatalogItem(_ context.Context, id int64) (*models.CatalogItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &item, nil
}

func (f *fakeCatalogStore) GetCatalogItems(_ context.Context) ([]models.CatalogItem, error) {
	out := make([]models.CatalogItem, 0, len(f.items))
	for _, item := range f.items {
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeCatalogStore) GetCatalogItemsByIDs(_ context.Context, ids []int64) ([]models.CatalogItem, error) {
	var out []models.CatalogItem
	seen := make(map[int64]bool)
	for _, id := range ids {
		if item, ok := f.items[id]; ok && !seen[id] {
			out = append(out, item)
			seen[id] = true
		}
	}
	return out, nil
}

// fakeEventSink records published events.
type fakeEventSink struct {
	mu           sync.Mutex
	created      []*models.QuoteCreatedEvent
	submitted    []*models.QuoteSubmittedEvent
	transitioned []*models.QuoteTransitionedEvent
}

func (f *fakeEventSink) PublishQuoteCreated(_ context.Context, e *models.QuoteCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, e)
	return nil
}

func (f *fakeEventSink) PublishQuoteSubmitted(_ context.Context, e *models.QuoteSubmittedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, e)
	return nil
}

func (f *fakeEventSink) PublishQuoteTransitioned(_ context.Context, e *models.QuoteTransitionedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitioned = append(f.transitioned, e)
	return nil
}

func intPtr(v int) *int { return &v }

func testCatalog() *fakeCatalogStore {
	return &fakeCatalogStore{items: map[int64]models.CatalogItem{
		1: {
			ID:             1,
			Name:           "Traiteur",
			BasePriceCents: 25000,
			Bands: []models.PriceBand{
				{Min: 0, Max: intPtr(50), PriceCents: 30000},
				{Min: 51, Max: intPtr(150), PriceCents: 60000},
				{Min: 151, Max: nil, PriceCents: 120000},
			},
		},
		2: {ID: 2, Name: "Photographe", BasePriceCents: 45000},
	}}
}

func newTestService(quotes *fakeQuoteStore, events *fakeEventSink, maxRetries int) *QuoteService {
	catalog := NewCatalogService(testCatalog(), nil, time.Minute)
	return NewQuoteService(quotes, catalog, events, maxRetries)
}

var (
	clientActor = models.Actor{ID: "client-1", Role: models.RoleClient}
	adminActor  = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
)

func TestCreateQuoteResolvesPricesAndBracket(t *testing.T) {
	quotes := newFakeQuoteStore()
	events := &fakeEventSink{}
	svc := newTestService(quotes, events, 3)

	resp, err := svc.CreateQuote(context.Background(), &CreateQuoteRequest{
		GuestCount: 80,
		ItemIDs:    []int64{1, 2},
		CreatedBy:  "client-1",
	})
	require.NoError(t, err)

	// Item 1 at 80 guests hits the 51-150 band; item 2 has no bands.
	assert.Equal(t, int64(60000+45000), resp.TotalCents)
	assert.Equal(t, models.BracketTo2000, resp.BudgetBracket)
	assert.Equal(t, models.StatusBrouillon, resp.Status)

	stored, err := quotes.GetQuoteByID(context.Background(), resp.QuoteID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBrouillon, stored.Status)
	assert.Equal(t, int64(1), stored.Version)

	require.Len(t, events.created, 1)
	assert.Equal(t, resp.QuoteID, events.created[0].QuoteID)
}

func TestCreateQuoteIdempotency(t *testing.T) {
	quotes := newFakeQuoteStore()
	events := &fakeEventSink{}
	svc := newTestService(quotes, events, 3)

	req := &CreateQuoteRequest{
		GuestCount:     30,
		ItemIDs:        []int64{1},
		CreatedBy:      "client-1",
		IdempotencyKey: "wizard-abc",
	}

	first, err := svc.CreateQuote(context.Background(), req)
	require.NoError(t, err)

	second, err := svc.CreateQuote(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.QuoteID, second.QuoteID)
	assert.Len(t, events.created, 1)
}

func TestCreateQuoteUnknownItem(t *testing.T) {
	svc := newTestService(newFakeQuoteStore(), &fakeEventSink{}, 3)

	_, err := svc.CreateQuote(context.Background(), &CreateQuoteRequest{
		GuestCount: 30,
		ItemIDs:    []int64{99},
		CreatedBy:  "client-1",
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSubmitFreezesAndPublishes(t *testing.T) {
	quotes := newFakeQuoteStore()
	events := &fakeEventSink{}
	svc := newTestService(quotes, events, 3)

	resp, err := svc.CreateQuote(context.Background(), &CreateQuoteRequest{
		GuestCount: 30,
		ItemIDs:    []int64{1},
		CreatedBy:  "client-1",
	})
	require.NoError(t, err)

	quote, err := svc.Submit(context.Background(), resp.QuoteID, clientActor)
	require.NoError(t, err)

	assert.Equal(t, models.StatusSoumis, quote.Status)
	assert.Equal(t, int64(2), quote.Version)
	require.Len(t, events.submitted, 1)
	require.Len(t, events.transitioned, 1)
	assert.Equal(t, models.StatusBrouillon, events.transitioned[0].FromStatus)
	assert.Equal(t, models.StatusSoumis, events.transitioned[0].ToStatus)

	// Second submit fails: the quote is no longer a draft.
	_, err = svc.Submit(context.Background(), resp.QuoteID, clientActor)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Len(t, events.submitted, 1)
}

func TestClientValidateWrongSource(t *testing.T) {
	quotes := newFakeQuoteStore()
	svc := newTestService(quotes, &fakeEventSink{}, 3)

	quote := &models.Quote{Status: models.StatusSoumis, CreatedBy: "client-1"}
	require.NoError(t, quotes.CreateQuote(context.Background(), quote))

	_, err := svc.ClientValidate(context.Background(), quote.ID, clientActor)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestClientValidateFromAwaitingState(t *testing.T) {
	quotes := newFakeQuoteStore()
	events := &fakeEventSink{}
	svc := newTestService(quotes, events, 3)

	quote := &models.Quote{Status: models.StatusAttenteValidationClient, CreatedBy: "client-1"}
	require.NoError(t, quotes.CreateQuote(context.Background(), quote))

	updated, err := svc.ClientValidate(context.Background(), quote.ID, clientActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusValideClient, updated.Status)
}

func TestAdminTransitionFromTerminalFails(t *testing.T) {
	quotes := newFakeQuoteStore()
	svc := newTestService(quotes, &fakeEventSink{}, 3)

	for _, terminal := range []models.QuoteStatus{
		models.StatusRefuse, models.StatusExpire, models.StatusAnnule, models.StatusValideFinal,
	} {
		quote := &models.Quote{Status: terminal, CreatedBy: "client-1"}
		require.NoError(t, quotes.CreateQuote(context.Background(), quote))

		_, err := svc.AdminTransition(context.Background(), quote.ID, models.StatusEnEtude, adminActor)
		assert.ErrorIsf(t, err, models.ErrInvalidTransition, "from %s", terminal)
	}
}

func TestAdminTransitionMissingQuote(t *testing.T) {
	svc := newTestService(newFakeQuoteStore(), &fakeEventSink{}, 3)

	_, err := svc.AdminTransition(context.Background(), 404, models.StatusEnEtude, adminActor)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTransitionRetriesAfterLostRace(t *testing.T) {
	quotes := newFakeQuoteStore()
	events := &fakeEventSink{}
	svc := newTestService(quotes, events, 3)

	quote := &models.Quote{Status: models.StatusSoumis, CreatedBy: "client-1"}
	require.NoError(t, quotes.CreateQuote(context.Background(), quote))

	quotes.casFailures = 1

	updated, err := svc.AdminTransition(context.Background(), quote.ID, models.StatusEnEtude, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnEtude, updated.Status)
	assert.Len(t, events.transitioned, 1)
}

func TestTransitionRetriesExhausted(t *testing.T) {
	quotes := newFakeQuoteStore()
	svc := newTestService(quotes, &fakeEventSink{}, 2)

	quote := &models.Quote{Status: models.StatusSoumis, CreatedBy: "client-1"}
	require.NoError(t, quotes.CreateQuote(context.Background(), quote))

	quotes.casFailures = 5

	_, err := svc.AdminTransition(context.Background(), quote.ID, models.StatusEnEtude, adminActor)
	assert.ErrorIs(t, err, models.ErrConcurrentModification)
}

// raceQuoteStore holds both readers at the barrier until each has loaded
// the quote, so two triage actors decide from the same version.
type raceQuoteStore struct {
	*fakeQuoteStore
	barrier sync.WaitGroup
}

func (r *raceQuoteStore) GetQuoteByID(ctx context.Context, id int64) (*models.Quote, error) {
	quote, err := r.fakeQuoteStore.GetQuoteByID(ctx, id)
	r.barrier.Done()
	r.barrier.Wait()
	return quote, err
}

func TestConcurrentAdminTransitionsExactlyOneWins(t *testing.T) {
	quotes := &raceQuoteStore{fakeQuoteStore: newFakeQuoteStore()}
	quotes.barrier.Add(2)

	events := &fakeEventSink{}
	catalog := NewCatalogService(testCatalog(), nil, time.Minute)
	svc := NewQuoteService(quotes, catalog, events, 1)

	quote := &models.Quote{Status: models.StatusSoumis, CreatedBy: "client-1"}
	require.NoError(t, quotes.CreateQuote(context.Background(), quote))

	// With a single attempt each, the CAS lets exactly one write through
	// and the loser surfaces the conflict instead of overwriting.
	results := make(chan error, 2)
	apply := func(target models.QuoteStatus, actorID string) {
		_, err := svc.AdminTransition(context.Background(), quote.ID, target,
			models.Actor{ID: actorID, Role: models.RoleAdmin})
		results <- err
	}

	go apply(models.StatusEnEtude, "admin-a")
	go apply(models.StatusRefuse, "admin-b")

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			assert.ErrorIs(t, err, models.ErrConcurrentModification)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Len(t, events.transitioned, 1)

	final, err := quotes.fakeQuoteStore.GetQuoteByID(context.Background(), quote.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), final.Version)
	assert.Equal(t, events.transitioned[0].ToStatus, final.Status)
}

func TestExpireStaleQuotes(t *testing.T) {
	quotes := newFakeQuoteStore()
	events := &fakeEventSink{}
	svc := newTestService(quotes, events, 3)

	stale := &models.Quote{Status: models.StatusSoumis, CreatedBy: "client-1"}
	require.NoError(t, quotes.CreateQuote(context.Background(), stale))
	quotes.quotes[stale.ID].UpdatedAt = time.Now().Add(-40 * 24 * time.Hour)

	fresh := &models.Quote{Status: models.StatusSoumis, CreatedBy: "client-2"}
	require.NoError(t, quotes.CreateQuote(context.Background(), fresh))

	draft := &models.Quote{Status: models.StatusBrouillon, CreatedBy: "client-3"}
	require.NoError(t, quotes.CreateQuote(context.Background(), draft))
	quotes.quotes[draft.ID].UpdatedAt = time.Now().Add(-40 * 24 * time.Hour)

	expired, err := svc.ExpireStaleQuotes(context.Background(), time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	updated, err := svc.GetQuote(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpire, updated.Status)
	assert.Equal(t, "system:expiry-sweeper", updated.LastTransitionBy)

	untouched, err := svc.GetQuote(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSoumis, untouched.Status)
}
