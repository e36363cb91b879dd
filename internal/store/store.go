package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"devis-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetCatalogItem retrieves a catalog item with its price bands, in the
// order the back-office defined them.
func (s *Store) GetCatalogItem(ctx context.Context, id int64) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := s.db.GetContext(ctx, &item, "SELECT * FROM catalog_items WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("catalog item %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadBands(ctx, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetCatalogItems retrieves all catalog items with their bands
func (s *Store) GetCatalogItems(ctx context.Context) ([]models.CatalogItem, error) {
	var items []models.CatalogItem
	err := s.db.SelectContext(ctx, &items, "SELECT * FROM catalog_items ORDER BY id")
	if err != nil {
		return nil, err
	}

	for i := range items {
		if err := s.loadBands(ctx, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// GetCatalogItemsByIDs retrieves multiple catalog items by IDs
func (s *Store) GetCatalogItemsByIDs(ctx context.Context, ids []int64) ([]models.CatalogItem, error) {
	if len(ids) == 0 {
		return []models.CatalogItem{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM catalog_items WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var items []models.CatalogItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}

	for i := range items {
		if err := s.loadBands(ctx, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (s *Store) loadBands(ctx context.Context, item *models.CatalogItem) error {
	return s.db.SelectContext(ctx, &item.Bands,
		"SELECT * FROM price_bands WHERE item_id = $1 ORDER BY position", item.ID)
}
