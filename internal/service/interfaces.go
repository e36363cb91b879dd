package service

import (
	"context"
	"time"

	"devis-service/internal/models"
)

// QuoteStore is the persistence boundary for quotes. The sqlx store
// implements it; tests use fakes.
type QuoteStore interface {
	CreateQuote(ctx context.Context, quote *models.Quote) error
	GetQuoteByID(ctx context.Context, id int64) (*models.Quote, error)
	GetQuoteByIdempotencyKey(ctx context.Context, key string) (*models.Quote, error)
	ListQuotes(ctx context.Context) ([]models.Quote, error)
	ListQuotesByStatus(ctx context.Context, status models.QuoteStatus) ([]models.Quote, error)
	ListStaleQuotes(ctx context.Context, status models.QuoteStatus, olderThan time.Time) ([]models.Quote, error)
	UpdateQuoteStatusCAS(ctx context.Context, quoteID int64, target models.QuoteStatus, actor string, occurredAt time.Time, expectedVersion int64) (int64, error)
}

// CatalogStore is the read boundary for catalog items and their bands.
type CatalogStore interface {
	GetCatalogItem(ctx context.Context, id int64) (*models.CatalogItem, error)
	GetCatalogItems(ctx context.Context) ([]models.CatalogItem, error)
	GetCatalogItemsByIDs(ctx context.Context, ids []int64) ([]models.CatalogItem, error)
}

// CatalogCache holds point-in-time catalog snapshots.
type CatalogCache interface {
	GetCachedCatalogItem(ctx context.Context, itemID int64) (*models.CatalogItem, error)
	CacheCatalogItem(ctx context.Context, item *models.CatalogItem, ttl time.Duration) error
}

// EventSink publishes domain events after successful mutations.
type EventSink interface {
	PublishQuoteCreated(ctx context.Context, event *models.QuoteCreatedEvent) error
	PublishQuoteSubmitted(ctx context.Context, event *models.QuoteSubmittedEvent) error
	PublishQuoteTransitioned(ctx context.Context, event *models.QuoteTransitionedEvent) error
}
