package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"devis-service/internal/models"
)

// CreateQuote creates a new quote with its selections in one transaction
func (s *Store) CreateQuote(ctx context.Context, quote *models.Quote) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO quotes (status, version, guest_count, total_cents, budget_bracket, created_by, idempotency_key)
		VALUES ($1, 1, $2, $3, $4, $5, $6)
		RETURNING id, version, created_at, updated_at`

	if err := tx.GetContext(ctx, quote, query,
		quote.Status, quote.GuestCount, quote.TotalCents, quote.BudgetBracket,
		quote.CreatedBy, quote.IdempotencyKey); err != nil {
		return fmt.Errorf("failed to insert quote: %w", err)
	}

	for i := range quote.Selections {
		sel := &quote.Selections[i]
		sel.QuoteID = quote.ID
		sel.Position = i

		if err := tx.GetContext(ctx, &sel.ID, `
			INSERT INTO quote_selections (quote_id, item_id, resolved_price_cents, position)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			sel.QuoteID, sel.ItemID, sel.ResolvedPriceCents, sel.Position); err != nil {
			return fmt.Errorf("failed to insert quote selection: %w", err)
		}
	}

	return tx.Commit()
}

// GetQuoteByID retrieves a quote and its selections by ID
func (s *Store) GetQuoteByID(ctx context.Context, id int64) (*models.Quote, error) {
	var quote models.Quote
	err := s.db.GetContext(ctx, &quote, "SELECT * FROM quotes WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("quote %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &quote.Selections,
		"SELECT * FROM quote_selections WHERE quote_id = $1 ORDER BY position", id); err != nil {
		return nil, err
	}

	return &quote, nil
}

// GetQuoteByIdempotencyKey retrieves a quote by idempotency key
func (s *Store) GetQuoteByIdempotencyKey(ctx context.Context, key string) (*models.Quote, error) {
	var quote models.Quote
	err := s.db.GetContext(ctx, &quote, "SELECT * FROM quotes WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

// ListQuotesByStatus retrieves quotes for the triage screen
func (s *Store) ListQuotesByStatus(ctx context.Context, status models.QuoteStatus) ([]models.Quote, error) {
	var quotes []models.Quote
	err := s.db.SelectContext(ctx, &quotes,
		"SELECT * FROM quotes WHERE status = $1 ORDER BY created_at DESC", status)
	return quotes, err
}

// ListQuotes retrieves all quotes ordered by recency
func (s *Store) ListQuotes(ctx context.Context) ([]models.Quote, error) {
	var quotes []models.Quote
	err := s.db.SelectContext(ctx, &quotes, "SELECT * FROM quotes ORDER BY created_at DESC")
	return quotes, err
}

// ListStaleQuotes retrieves quotes stuck in a status since before the cutoff
func (s *Store) ListStaleQuotes(ctx context.Context, status models.QuoteStatus, olderThan time.Time) ([]models.Quote, error) {
	var quotes []models.Quote
	err := s.db.SelectContext(ctx, &quotes,
		"SELECT * FROM quotes WHERE status = $1 AND updated_at < $2 ORDER BY updated_at", status, olderThan)
	return quotes, err
}

// UpdateQuoteStatusCAS writes a status transition guarded by the version
// counter. The check "is version still expectedVersion" and the write are
// one statement, so two concurrent triage actors cannot both win from a
// stale read. Returns the new version.
func (s *Store) UpdateQuoteStatusCAS(ctx context.Context, quoteID int64, target models.QuoteStatus, actor string, occurredAt time.Time, expectedVersion int64) (int64, error) {
	var newVersion int64
	err := s.db.GetContext(ctx, &newVersion, `
		UPDATE quotes
		SET status = $1, version = version + 1, last_transition_by = $2,
		    last_transition_at = $3, updated_at = NOW()
		WHERE id = $4 AND version = $5
		RETURNING version`,
		target, actor, occurredAt, quoteID, expectedVersion)

	if err == sql.ErrNoRows {
		// Zero rows: either the quote is gone or someone moved it first.
		var exists bool
		if checkErr := s.db.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM quotes WHERE id = $1)", quoteID); checkErr != nil {
			return 0, checkErr
		}
		if !exists {
			return 0, fmt.Errorf("quote %d: %w", quoteID, models.ErrNotFound)
		}
		return 0, fmt.Errorf("quote %d version %d: %w", quoteID, expectedVersion, models.ErrConcurrentModification)
	}
	if err != nil {
		return 0, err
	}

	return newVersion, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
