// Package staging keeps pending product edits in Redis, one entry per product.
package staging

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/marketplace/pkg/cache"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
)

// PartitionKey is the Redis key holding every pending edit.
const PartitionKey = "Unverified Updated Product"

type Cache struct {
	list      *cache.List[domain.StagedEdit]
	partition string
}

func New(client redis.UniversalClient) *Cache {
	return &Cache{
		list:      cache.NewList[domain.StagedEdit](client),
		partition: PartitionKey,
	}
}

func forProduct(productID string) func(domain.StagedEdit) bool {
	return func(e domain.StagedEdit) bool { return e.ProductID == productID }
}

// Put stores edit, replacing whatever was staged for the same product.
func (c *Cache) Put(ctx context.Context, edit *domain.StagedEdit) error {
	return c.list.Put(ctx, c.partition, *edit, forProduct(edit.ProductID))
}

// Backfill stores edit only if the product has no entry yet.
func (c *Cache) Backfill(ctx context.Context, edit *domain.StagedEdit) (bool, error) {
	return c.list.Add(ctx, c.partition, *edit, forProduct(edit.ProductID))
}

// Index returns all staged edits keyed by product id.
func (c *Cache) Index(ctx context.Context) (map[string]*domain.StagedEdit, error) {
	edits, err := c.list.GetAll(ctx, c.partition)
	if err != nil {
		return nil, err
	}

	index := make(map[string]*domain.StagedEdit, len(edits))
	for i := range edits {
		index[edits[i].ProductID] = &edits[i]
	}
	return index, nil
}

func (c *Cache) GetAll(ctx context.Context) ([]domain.StagedEdit, error) {
	return c.list.GetAll(ctx, c.partition)
}

// Remove evicts the entries of the given products.
func (c *Cache) Remove(ctx context.Context, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		set[id] = struct{}{}
	}

	_, err := c.list.RemoveAll(ctx, c.partition, func(e domain.StagedEdit) bool {
		_, ok := set[e.ProductID]
		return ok
	})
	return err
}

// RemoveEdit evicts one specific edit, leaving a newer edit for the same product alone.
func (c *Cache) RemoveEdit(ctx context.Context, editID uuid.UUID) (bool, error) {
	return c.list.Remove(ctx, c.partition, func(e domain.StagedEdit) bool { return e.ID == editID })
}
