// Package menu resolves a merchant's default menu and adds products to it.
package menu

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"github.com/sakashimaa/marketplace/services/catalog/internal/repository"
)

var (
	menuCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_default_menu_cache_hits_total",
		Help: "Default menu lookups served from the in-process cache.",
	})
	menuCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_default_menu_cache_misses_total",
		Help: "Default menu lookups that went to the database.",
	})
)

// Grouping caches default menu ids per merchant. Menus rarely change, so a short TTL is enough.
type Grouping struct {
	repo  repository.MenuRepository
	cache *expirable.LRU[string, string]
}

func NewGrouping(repo repository.MenuRepository, size int, ttl time.Duration) *Grouping {
	return &Grouping{
		repo:  repo,
		cache: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func (g *Grouping) DefaultGroup(ctx context.Context, residentID string) (string, error) {
	if id, ok := g.cache.Get(residentID); ok {
		menuCacheHits.Inc()
		return id, nil
	}
	menuCacheMisses.Inc()

	m, err := g.repo.DefaultMenu(ctx, residentID)
	if err != nil {
		return "", err
	}

	g.cache.Add(residentID, m.ID)
	return m.ID, nil
}

func (g *Grouping) AddEntriesToGroup(ctx context.Context, groupID string, entries []domain.MenuEntry) error {
	return g.repo.AddEntries(ctx, groupID, entries)
}
