package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/marketplace/pkg/mylogger"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"go.uber.org/zap"
)

type cachedCatalogService struct {
	next        CatalogService
	redisClient redis.UniversalClient
	cacheTTL    time.Duration
	logger      *zap.Logger
}

func NewCachedCatalogService(next CatalogService, redisClient redis.UniversalClient, ttl time.Duration, logger *zap.Logger) CatalogService {
	return &cachedCatalogService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    ttl,
		logger:      logger,
	}
}

func productKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

// ownerKey points from a related product to the base whose cached view embeds it.
func ownerKey(id string) string {
	return fmt.Sprintf("product:%s:base", id)
}

func (s *cachedCatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	key := productKey(id)

	val, err := s.redisClient.Get(ctx, key).Bytes()
	if err == nil {
		var product domain.Product
		if err := json.Unmarshal(val, &product); err == nil {
			return &product, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		mylogger.Warn(ctx, s.logger, "Product cache read failed", zap.String("key", key), zap.Error(err))
	}

	product, err := s.next.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(product)
	if err != nil {
		return product, nil
	}

	_, err = s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, s.cacheTTL)
		for _, c := range product.Children {
			pipe.Set(ctx, ownerKey(c.ID), product.ID, s.cacheTTL)
		}
		return nil
	})
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Product cache write failed", zap.String("key", key), zap.Error(err))
	}

	return product, nil
}

// invalidate drops the cached views of ids and of any base embedding them.
func (s *cachedCatalogService) invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}

	owners := make([]string, 0, len(ids))
	for _, id := range ids {
		owners = append(owners, ownerKey(id))
	}

	keys := make([]string, 0, len(ids)*2)
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}

	bases, err := s.redisClient.MGet(ctx, owners...).Result()
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Product cache owner lookup failed", zap.Error(err))
	}
	for _, b := range bases {
		if baseID, ok := b.(string); ok {
			keys = append(keys, productKey(baseID))
		}
	}

	if err := s.redisClient.Del(ctx, keys...).Err(); err != nil {
		mylogger.Warn(ctx, s.logger, "Product cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func groupIDs(products []*domain.Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
		if p.ParentID != nil {
			ids = append(ids, *p.ParentID)
		}
		for _, c := range p.Children {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func (s *cachedCatalogService) CreateProduct(ctx context.Context, residentID string, in CreateProductInput) (*CreateProductResult, error) {
	return s.next.CreateProduct(ctx, residentID, in)
}

func (s *cachedCatalogService) AddRelatedProducts(ctx context.Context, baseID string, related []ProductInput) ([]*domain.Product, error) {
	res, err := s.next.AddRelatedProducts(ctx, baseID, related)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, baseID)
	return res, nil
}

func (s *cachedCatalogService) StageEdit(ctx context.Context, actorID, productID string, in StageEditInput) (*domain.StagedEdit, error) {
	edit, err := s.next.StageEdit(ctx, actorID, productID, in)

	// the live row changed even when only the cache write failed
	if err == nil || KindOf(err) == KindCache {
		s.invalidate(ctx, productID)
	}
	return edit, err
}

func (s *cachedCatalogService) Decide(ctx context.Context, baseID string, approve bool, deciderID string) (*domain.Product, error) {
	res, err := s.next.Decide(ctx, baseID, approve, deciderID)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, groupIDs([]*domain.Product{res})...)
	return res, nil
}

func (s *cachedCatalogService) DeleteProducts(ctx context.Context, ids []string) ([]*domain.Product, error) {
	res, err := s.next.DeleteProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, append(groupIDs(res), ids...)...)
	return res, nil
}

func (s *cachedCatalogService) DeleteMerchantProducts(ctx context.Context, residentID string) ([]*domain.Product, error) {
	res, err := s.next.DeleteMerchantProducts(ctx, residentID)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, groupIDs(res)...)
	return res, nil
}

func (s *cachedCatalogService) Query(ctx context.Context, q ProductQuery) (*domain.Page[*domain.Product], error) {
	return s.next.Query(ctx, q)
}

func (s *cachedCatalogService) ListPendingEdits(ctx context.Context) ([]*domain.StagedEdit, error) {
	return s.next.ListPendingEdits(ctx)
}
