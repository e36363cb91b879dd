package models

import "time"

// Event types
const (
	EventTypeQuoteCreated      = "QUOTE_CREATED"
	EventTypeQuoteSubmitted    = "QUOTE_SUBMITTED"
	EventTypeQuoteTransitioned = "QUOTE_TRANSITIONED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// QuoteCreatedEvent published when a wizard draft is persisted
type QuoteCreatedEvent struct {
	BaseEvent
	QuoteID       int64                `json:"quote_id"`
	GuestCount    int                  `json:"guest_count"`
	TotalCents    int64                `json:"total_cents"`
	BudgetBracket BudgetBracket        `json:"budget_bracket"`
	Selections    []QuoteSelectionData `json:"selections"`
	CreatedBy     string               `json:"created_by"`
}

// QuoteSubmittedEvent published when the client submits a draft
type QuoteSubmittedEvent struct {
	BaseEvent
	QuoteID       int64         `json:"quote_id"`
	TotalCents    int64         `json:"total_cents"`
	BudgetBracket BudgetBracket `json:"budget_bracket"`
	Actor         string        `json:"actor"`
}

// QuoteTransitionedEvent published after every successful status change.
// Notification and export collaborators (email, PDF) subscribe to this.
type QuoteTransitionedEvent struct {
	BaseEvent
	QuoteID    int64       `json:"quote_id"`
	FromStatus QuoteStatus `json:"from_status"`
	ToStatus   QuoteStatus `json:"to_status"`
	Actor      string      `json:"actor"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// QuoteSelectionData represents selection data in events
type QuoteSelectionData struct {
	ItemID             int64 `json:"item_id"`
	ResolvedPriceCents int64 `json:"resolved_price_cents"`
}
