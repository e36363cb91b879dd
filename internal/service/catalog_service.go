package service

import (
	"context"
	"time"

	"devis-service/internal/models"
	"devis-service/internal/util"

	"go.uber.org/zap"
)

// CatalogService reads catalog items through the redis snapshot cache.
type CatalogService struct {
	store  CatalogStore
	cache  CatalogCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store CatalogStore, cache CatalogCache, ttl time.Duration) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// GetItem returns a catalog item snapshot, read-through cached. The snapshot
// is taken once; pricing never re-queries mid-calculation.
func (cs *CatalogService) GetItem(ctx context.Context, id int64) (*models.CatalogItem, error) {
	if cs.cache != nil {
		cached, err := cs.cache.GetCachedCatalogItem(ctx, id)
		if err != nil {
			cs.logger.Warn("Catalog cache read failed", zap.Int64("item_id", id), zap.Error(err))
		}
		if cached != nil {
			util.CatalogCacheHits.WithLabelValues("hit").Inc()
			return cached, nil
		}
		util.CatalogCacheHits.WithLabelValues("miss").Inc()
	}

	item, err := cs.store.GetCatalogItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if cs.cache != nil {
		if err := cs.cache.CacheCatalogItem(ctx, item, cs.ttl); err != nil {
			cs.logger.Warn("Catalog cache write failed", zap.Int64("item_id", id), zap.Error(err))
		}
	}
	return item, nil
}

// GetItems returns the full catalog for the wizard's prestation picker.
func (cs *CatalogService) GetItems(ctx context.Context) ([]models.CatalogItem, error) {
	return cs.store.GetCatalogItems(ctx)
}

// GetItemsByIDs returns the selected catalog items for pricing. Each item
// is served from the snapshot cache when possible; misses are batch-read
// from the store and cached for the next wizard.
func (cs *CatalogService) GetItemsByIDs(ctx context.Context, ids []int64) ([]models.CatalogItem, error) {
	items := make([]models.CatalogItem, 0, len(ids))
	var missing []int64
	seen := make(map[int64]bool, len(ids))

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		if cs.cache != nil {
			cached, err := cs.cache.GetCachedCatalogItem(ctx, id)
			if err != nil {
				cs.logger.Warn("Catalog cache read failed", zap.Int64("item_id", id), zap.Error(err))
			}
			if cached != nil {
				util.CatalogCacheHits.WithLabelValues("hit").Inc()
				items = append(items, *cached)
				continue
			}
			util.CatalogCacheHits.WithLabelValues("miss").Inc()
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return items, nil
	}

	fetched, err := cs.store.GetCatalogItemsByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i := range fetched {
		if cs.cache != nil {
			if err := cs.cache.CacheCatalogItem(ctx, &fetched[i], cs.ttl); err != nil {
				cs.logger.Warn("Catalog cache write failed", zap.Int64("item_id", fetched[i].ID), zap.Error(err))
			}
		}
		items = append(items, fetched[i])
	}

	return items, nil
}
