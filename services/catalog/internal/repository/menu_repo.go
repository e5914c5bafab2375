package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/marketplace/pkg/mylogger"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type MenuRepository interface {
	DefaultMenu(ctx context.Context, residentID string) (*domain.Menu, error)
	AddEntries(ctx context.Context, menuID string, entries []domain.MenuEntry) error
}

type menuRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewMenuRepository(pool *pgxpool.Pool, logger *zap.Logger) MenuRepository {
	return &menuRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("contract/menu_repo"),
	}
}

func (r *menuRepo) DefaultMenu(ctx context.Context, residentID string) (*domain.Menu, error) {
	ctx, span := r.tracer.Start(ctx, "MenuRepository.DefaultMenu")
	defer span.End()

	span.SetAttributes(attribute.String("resident_id", residentID))

	query := `
		SELECT id, resident_id, name, is_default
		FROM menus
		WHERE resident_id = $1 AND is_default
	`

	var m domain.Menu
	err := r.pool.QueryRow(ctx, query, residentID).Scan(&m.ID, &m.ResidentID, &m.Name, &m.IsDefault)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMenuNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error getting default menu", zap.String("resident_id", residentID), zap.Error(err))

		return nil, fmt.Errorf("error getting default menu: %w", err)
	}

	return &m, nil
}

// AddEntries upserts entries into the menu; an existing entry for a product gets the new price.
func (r *menuRepo) AddEntries(ctx context.Context, menuID string, entries []domain.MenuEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "MenuRepository.AddEntries")
	defer span.End()

	span.SetAttributes(
		attribute.String("menu_id", menuID),
		attribute.Int("entries", len(entries)),
	)

	query := `
		INSERT INTO product_in_menus (id, menu_id, product_id, price, status)
		VALUES ($1, $2, $3, $4, 'active')
		ON CONFLICT (menu_id, product_id) DO UPDATE SET price = EXCLUDED.price
	`

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(query, "PIM_"+uuid.NewString(), menuID, e.ProductID, e.Price)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error adding menu entries", zap.String("menu_id", menuID), zap.Error(err))

		return fmt.Errorf("error adding menu entries: %w", err)
	}

	return nil
}
