package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devis-service/internal/models"
	"devis-service/internal/pricing"
	"devis-service/internal/util"
	"devis-service/internal/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QuoteService handles the quote lifecycle: wizard drafts with snapshot
// pricing, and status transitions with optimistic concurrency.
type QuoteService struct {
	quotes     QuoteStore
	catalog    *CatalogService
	events     EventSink
	maxRetries int
	logger     *zap.Logger
}

// NewQuoteService creates a new quote service
func NewQuoteService(quotes QuoteStore, catalog *CatalogService, events EventSink, maxRetries int) *QuoteService {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &QuoteService{
		quotes:     quotes,
		catalog:    catalog,
		events:     events,
		maxRetries: maxRetries,
		logger:     util.GetLogger(),
	}
}

// CreateQuoteRequest represents a wizard submission
type CreateQuoteRequest struct {
	GuestCount     int     `json:"guest_count" binding:"min=0"`
	ItemIDs        []int64 `json:"item_ids" binding:"required,min=1"`
	CreatedBy      string  `json:"created_by" binding:"required"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

// CreateQuoteResponse represents the response after creating a draft
type CreateQuoteResponse struct {
	QuoteID       int64                `json:"quote_id"`
	Status        models.QuoteStatus   `json:"status"`
	TotalCents    int64                `json:"total_cents"`
	BudgetBracket models.BudgetBracket `json:"budget_bracket"`
}

// CreateQuote prices the selected catalog items against the guest count,
// classifies the budget bracket and persists the draft in brouillon.
func (s *QuoteService) CreateQuote(ctx context.Context, req *CreateQuoteRequest) (*CreateQuoteResponse, error) {
	ctx, span := util.StartSpan(ctx, "QuoteService.CreateQuote")
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	existing, err := s.quotes.GetQuoteByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		s.logger.Info("Duplicate quote request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("quote_id", existing.ID))
		return &CreateQuoteResponse{
			QuoteID:       existing.ID,
			Status:        existing.Status,
			TotalCents:    existing.TotalCents,
			BudgetBracket: existing.BudgetBracket,
		}, nil
	}

	selections, err := s.priceSelections(ctx, req.ItemIDs, req.GuestCount)
	if err != nil {
		util.QuotesFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	total := pricing.QuoteTotal(selections)

	quote := &models.Quote{
		Status:         models.StatusBrouillon,
		GuestCount:     req.GuestCount,
		TotalCents:     total,
		BudgetBracket:  pricing.ClassifyBudget(total),
		Selections:     selections,
		CreatedBy:      req.CreatedBy,
		IdempotencyKey: req.IdempotencyKey,
	}

	if err := s.quotes.CreateQuote(ctx, quote); err != nil {
		util.QuotesFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create quote: %w", err)
	}

	util.QuotesCreatedTotal.Inc()
	s.logger.Info("Quote draft created",
		zap.Int64("quote_id", quote.ID),
		zap.Int64("total_cents", quote.TotalCents),
		zap.String("budget_bracket", string(quote.BudgetBracket)))

	selectionData := make([]models.QuoteSelectionData, 0, len(selections))
	for _, sel := range selections {
		selectionData = append(selectionData, models.QuoteSelectionData{
			ItemID:             sel.ItemID,
			ResolvedPriceCents: sel.ResolvedPriceCents,
		})
	}

	event := &models.QuoteCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeQuoteCreated,
			Timestamp: time.Now(),
		},
		QuoteID:       quote.ID,
		GuestCount:    quote.GuestCount,
		TotalCents:    quote.TotalCents,
		BudgetBracket: quote.BudgetBracket,
		Selections:    selectionData,
		CreatedBy:     quote.CreatedBy,
	}
	if err := s.events.PublishQuoteCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish QuoteCreated event", zap.Error(err))
	}

	return &CreateQuoteResponse{
		QuoteID:       quote.ID,
		Status:        quote.Status,
		TotalCents:    quote.TotalCents,
		BudgetBracket: quote.BudgetBracket,
	}, nil
}

// priceSelections resolves a snapshot price for each selected item. Prices
// and the derived bracket are frozen at submission; they are never re-joined
// against the live catalog.
func (s *QuoteService) priceSelections(ctx context.Context, itemIDs []int64, guestCount int) ([]models.QuoteSelection, error) {
	start := time.Now()
	defer func() {
		util.PricingResolveLatency.Observe(time.Since(start).Seconds())
	}()

	items, err := s.catalog.GetItemsByIDs(ctx, itemIDs)
	if err != nil {
		return nil, err
	}

	itemMap := make(map[int64]*models.CatalogItem, len(items))
	for i := range items {
		itemMap[items[i].ID] = &items[i]
	}

	selections := make([]models.QuoteSelection, 0, len(itemIDs))
	for _, id := range itemIDs {
		item, ok := itemMap[id]
		if !ok {
			return nil, fmt.Errorf("catalog item %d: %w", id, models.ErrNotFound)
		}
		selections = append(selections, models.QuoteSelection{
			ItemID:             id,
			ResolvedPriceCents: pricing.ResolvePrice(item, guestCount),
		})
	}
	return selections, nil
}

// Submit moves a draft quote to soumis on the client's behalf.
func (s *QuoteService) Submit(ctx context.Context, quoteID int64, actor models.Actor) (*models.Quote, error) {
	ctx, span := util.StartSpan(ctx, "QuoteService.Submit")
	defer span.End()

	quote, err := s.transition(ctx, quoteID, func(q *models.Quote) (workflow.Transition, error) {
		return workflow.Submit(q, actor)
	})
	if err != nil {
		return nil, err
	}

	util.QuotesSubmittedTotal.Inc()

	event := &models.QuoteSubmittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeQuoteSubmitted,
			Timestamp: time.Now(),
		},
		QuoteID:       quote.ID,
		TotalCents:    quote.TotalCents,
		BudgetBracket: quote.BudgetBracket,
		Actor:         actor.ID,
	}
	if err := s.events.PublishQuoteSubmitted(ctx, event); err != nil {
		s.logger.Error("Failed to publish QuoteSubmitted event", zap.Error(err))
	}

	return quote, nil
}

// ClientValidate accepts the admin proposal on the client's behalf.
func (s *QuoteService) ClientValidate(ctx context.Context, quoteID int64, actor models.Actor) (*models.Quote, error) {
	ctx, span := util.StartSpan(ctx, "QuoteService.ClientValidate")
	defer span.End()

	return s.transition(ctx, quoteID, func(q *models.Quote) (workflow.Transition, error) {
		return workflow.ClientValidate(q, actor)
	})
}

// AdminTransition moves a quote to any status during triage.
func (s *QuoteService) AdminTransition(ctx context.Context, quoteID int64, target models.QuoteStatus, actor models.Actor) (*models.Quote, error) {
	ctx, span := util.StartSpan(ctx, "QuoteService.AdminTransition")
	defer span.End()

	return s.transition(ctx, quoteID, func(q *models.Quote) (workflow.Transition, error) {
		return workflow.AdminTransition(q, target, actor)
	})
}

// transition runs the read-decide-write cycle with a bounded retry on
// compare-and-set conflicts. InvalidTransition and NotFound surface
// immediately; only a lost race re-reads and re-decides.
func (s *QuoteService) transition(ctx context.Context, quoteID int64, decide func(*models.Quote) (workflow.Transition, error)) (*models.Quote, error) {
	var lastErr error

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		quote, err := s.quotes.GetQuoteByID(ctx, quoteID)
		if err != nil {
			return nil, err
		}

		tr, err := decide(quote)
		if err != nil {
			util.QuoteTransitionsRejected.WithLabelValues(rejectionReason(err)).Inc()
			return nil, err
		}

		newVersion, err := s.quotes.UpdateQuoteStatusCAS(ctx, quote.ID, tr.To, tr.Actor.ID, tr.OccurredAt, quote.Version)
		if errors.Is(err, models.ErrConcurrentModification) {
			util.QuoteTransitionConflicts.Inc()
			s.logger.Warn("Status write lost the race, retrying",
				zap.Int64("quote_id", quoteID),
				zap.Int("attempt", attempt+1))
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		quote.Version = newVersion
		util.QuoteTransitionsTotal.WithLabelValues(string(tr.To)).Inc()
		s.logger.Info("Quote transitioned",
			zap.Int64("quote_id", quote.ID),
			zap.String("from", string(tr.From)),
			zap.String("to", string(tr.To)),
			zap.String("actor", tr.Actor.ID))

		event := &models.QuoteTransitionedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeQuoteTransitioned,
				Timestamp: time.Now(),
			},
			QuoteID:    quote.ID,
			FromStatus: tr.From,
			ToStatus:   tr.To,
			Actor:      tr.Actor.ID,
			OccurredAt: tr.OccurredAt,
		}
		if err := s.events.PublishQuoteTransitioned(ctx, event); err != nil {
			s.logger.Error("Failed to publish QuoteTransitioned event", zap.Error(err))
		}

		return quote, nil
	}

	return nil, fmt.Errorf("transition retries exhausted for quote %d: %w", quoteID, lastErr)
}

func rejectionReason(err error) string {
	if errors.Is(err, models.ErrInvalidTransition) {
		return "invalid_transition"
	}
	return "error"
}

// GetQuote retrieves a quote with its selections
func (s *QuoteService) GetQuote(ctx context.Context, quoteID int64) (*models.Quote, error) {
	return s.quotes.GetQuoteByID(ctx, quoteID)
}

// ListQuotes lists quotes for the triage screen, optionally by status
func (s *QuoteService) ListQuotes(ctx context.Context, status *models.QuoteStatus) ([]models.Quote, error) {
	if status != nil {
		return s.quotes.ListQuotesByStatus(ctx, *status)
	}
	return s.quotes.ListQuotes(ctx)
}

// ExpireStaleQuotes transitions soumis quotes older than the cutoff to
// expire, one CAS cycle each. Lost races are fine: someone triaged the
// quote in the meantime.
func (s *QuoteService) ExpireStaleQuotes(ctx context.Context, olderThan time.Time) (int, error) {
	ctx, span := util.StartSpan(ctx, "QuoteService.ExpireStaleQuotes")
	defer span.End()

	stale, err := s.quotes.ListStaleQuotes(ctx, models.StatusSoumis, olderThan)
	if err != nil {
		return 0, err
	}

	sweeper := models.Actor{ID: "system:expiry-sweeper", Role: models.RoleAdmin}

	expired := 0
	for _, quote := range stale {
		if _, err := s.AdminTransition(ctx, quote.ID, models.StatusExpire, sweeper); err != nil {
			s.logger.Warn("Failed to expire stale quote",
				zap.Int64("quote_id", quote.ID),
				zap.Error(err))
			continue
		}
		util.QuotesExpiredTotal.Inc()
		expired++
	}

	return expired, nil
}
