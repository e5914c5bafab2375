package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/marketplace/pkg/mylogger"
	"github.com/sakashimaa/marketplace/pkg/outbox/worker"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	GetWithChildren(ctx context.Context, id string) (*domain.Product, error)
	FindByIDsOrParents(ctx context.Context, ids []string) ([]*domain.Product, error)
	FindBaseIDsByResident(ctx context.Context, residentID string) ([]string, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int64, error)
	LoadChildren(ctx context.Context, products []*domain.Product) error
	LoadParents(ctx context.Context, products []*domain.Product) error
	LoadCategories(ctx context.Context, products []*domain.Product) error

	PendingEdits(ctx context.Context, productIDs []string) (map[string]*domain.StagedEdit, error)
	ListPendingEdits(ctx context.Context, createdBefore time.Time) ([]*domain.StagedEdit, error)

	Commit(ctx context.Context, uow *domain.UnitOfWork) error
}

type productRepo struct {
	pool   *pgxpool.Pool
	outbox worker.OutboxRepository
	tracer trace.Tracer
	logger *zap.Logger
}

func NewProductRepository(pool *pgxpool.Pool, outbox worker.OutboxRepository, logger *zap.Logger) ProductRepository {
	return &productRepo{
		pool:   pool,
		outbox: outbox,
		logger: logger,
		tracer: otel.Tracer("contract/product_repo"),
	}
}

const productColumns = `p.id, p.parent_id, p.resident_id, p.code, p.name, p.type, p.default_price,
	p.size, p.color, p.weight, p.image, p.status, p.approved_by, p.version, p.created_at, p.updated_at`

var sortColumns = map[domain.SortField]string{
	domain.SortByCreatedAt:    "p.created_at",
	domain.SortByUpdatedAt:    "p.updated_at",
	domain.SortByName:         "p.name",
	domain.SortByCode:         "p.code",
	domain.SortByType:         "p.type",
	domain.SortByDefaultPrice: "p.default_price",
	domain.SortByStatus:       "p.status",
	domain.SortByID:           "p.id",
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID,
		&p.ParentID,
		&p.ResidentID,
		&p.Code,
		&p.Name,
		&p.Type,
		&p.DefaultPrice,
		&p.Size,
		&p.Color,
		&p.Weight,
		&p.Image,
		&p.Status,
		&p.ApprovedBy,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func collectProducts(rows pgx.Rows) ([]*domain.Product, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Product, error) {
		return scanProduct(row)
	})
}

func (r *productRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.String("id", id),
	)

	query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error get by id",
			zap.String("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting product: %w", err)
	}

	return p, nil
}

func (r *productRepo) GetWithChildren(ctx context.Context, id string) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.GetWithChildren")
	defer span.End()

	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.LoadChildren(ctx, []*domain.Product{p}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("children", len(p.Children)))
	return p, nil
}

func (r *productRepo) FindByIDsOrParents(ctx context.Context, ids []string) ([]*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.FindByIDsOrParents")
	defer span.End()

	span.SetAttributes(
		attribute.StringSlice("ids", ids),
	)

	query := `SELECT ` + productColumns + `
		FROM products p
		WHERE p.id = ANY($1) OR p.parent_id = ANY($1)
		ORDER BY p.parent_id NULLS FIRST, p.id`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error selecting products by ids: %w", err)
	}

	products, err := collectProducts(rows)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(ctx, r.logger, "Failed to scan rows", zap.Error(err))
		return nil, fmt.Errorf("error scanning rows: %w", err)
	}

	return products, nil
}

func (r *productRepo) FindBaseIDsByResident(ctx context.Context, residentID string) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.FindBaseIDsByResident")
	defer span.End()

	span.SetAttributes(
		attribute.String("resident_id", residentID),
	)

	query := `
		SELECT id
		FROM products
		WHERE resident_id = $1 AND parent_id IS NULL AND status <> 'deleted'
	`

	rows, err := r.pool.Query(ctx, query, residentID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error selecting resident products: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error scanning rows: %w", err)
	}

	return ids, nil
}

func buildFilter(filter domain.ProductFilter) (string, []any) {
	var conds []string
	var args []any
	argId := 1

	add := func(cond string, arg any) {
		conds = append(conds, fmt.Sprintf(cond, argId))
		args = append(args, arg)
		argId++
	}

	if filter.ID != "" {
		add("p.id = $%d", filter.ID)
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		add("p.status = ANY($%d)", statuses)
	} else {
		conds = append(conds, "p.status <> 'deleted'")
	}

	if filter.ApartmentID != "" {
		add("p.resident_id IN (SELECT ms.resident_id FROM merchant_stores ms WHERE ms.apartment_id = $%d)", filter.ApartmentID)
	}

	if filter.CategoryID != "" {
		add(`EXISTS (
			SELECT 1 FROM product_categories pc
			WHERE pc.product_id = p.id AND pc.system_category_id = $%d)`, filter.CategoryID)
	}

	if filter.Type != "" {
		add("p.type = $%d", filter.Type)
	}

	if filter.ResidentID != "" {
		add("p.resident_id = $%d", filter.ResidentID)
	}

	if filter.Search != "" {
		add(`p.name ILIKE $%d ESCAPE '\'`, "%"+escapeLike(filter.Search)+"%")
	}

	if filter.OnlyBase {
		conds = append(conds, "p.parent_id IS NULL")
	}

	if len(conds) == 0 {
		return "", args
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *productRepo) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int64, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int("limit", filter.Limit),
		attribute.Int("offset", filter.Offset),
		attribute.String("search", filter.Search),
		attribute.String("sort", string(filter.Sort.Field)),
	)

	column, ok := sortColumns[filter.Sort.Field]
	if !ok {
		column = sortColumns[domain.DefaultSort.Field]
	}
	direction := "ASC"
	if filter.Sort.Desc {
		direction = "DESC"
	}

	where, args := buildFilter(filter)

	countQuery := `SELECT COUNT(*) FROM products p` + where

	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to count products",
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	if total == 0 {
		return []*domain.Product{}, 0, nil
	}

	query := `SELECT ` + productColumns + ` FROM products p` + where +
		fmt.Sprintf(" ORDER BY %s %s, p.id ASC", column, direction)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error getting products",
			zap.String("search", filter.Search),
			zap.Int("limit", filter.Limit),
			zap.Int("offset", filter.Offset),
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("error selecting products: %w", err)
	}

	products, err := collectProducts(rows)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(ctx, r.logger, "Failed to scan rows", zap.Error(err))
		return nil, 0, fmt.Errorf("error scanning rows: %w", err)
	}

	span.SetAttributes(attribute.Int64("total", total))
	return products, total, nil
}

func productIDs(products []*domain.Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

// LoadChildren attaches every non-deleted child to its parent in products.
func (r *productRepo) LoadChildren(ctx context.Context, products []*domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "ProductRepository.LoadChildren")
	defer span.End()

	query := `SELECT ` + productColumns + `
		FROM products p
		WHERE p.parent_id = ANY($1) AND p.status <> 'deleted'
		ORDER BY p.created_at, p.id`

	rows, err := r.pool.Query(ctx, query, productIDs(products))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error selecting children: %w", err)
	}

	children, err := collectProducts(rows)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error scanning children: %w", err)
	}

	byParent := make(map[string][]*domain.Product)
	for _, c := range children {
		byParent[*c.ParentID] = append(byParent[*c.ParentID], c)
	}

	for _, p := range products {
		p.Children = byParent[p.ID]
		if p.Children == nil {
			p.Children = []*domain.Product{}
		}
	}

	return nil
}

func (r *productRepo) LoadParents(ctx context.Context, products []*domain.Product) error {
	var parentIDs []string
	for _, p := range products {
		if p.ParentID != nil {
			parentIDs = append(parentIDs, *p.ParentID)
		}
	}
	if len(parentIDs) == 0 {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "ProductRepository.LoadParents")
	defer span.End()

	query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, parentIDs)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error selecting parents: %w", err)
	}

	parents, err := collectProducts(rows)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error scanning parents: %w", err)
	}

	byID := make(map[string]*domain.Product, len(parents))
	for _, p := range parents {
		byID[p.ID] = p
	}

	for _, p := range products {
		if p.ParentID != nil {
			p.Parent = byID[*p.ParentID]
		}
	}

	return nil
}

func (r *productRepo) LoadCategories(ctx context.Context, products []*domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "ProductRepository.LoadCategories")
	defer span.End()

	query := `
		SELECT pc.product_id, c.id, c.name
		FROM product_categories pc
		JOIN system_categories c ON c.id = pc.system_category_id
		WHERE pc.product_id = ANY($1)
		ORDER BY c.name
	`

	rows, err := r.pool.Query(ctx, query, productIDs(products))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error selecting categories: %w", err)
	}
	defer rows.Close()

	byProduct := make(map[string][]domain.Category)
	for rows.Next() {
		var productID string
		var c domain.Category
		if err := rows.Scan(&productID, &c.ID, &c.Name); err != nil {
			span.RecordError(err)
			return fmt.Errorf("error scanning category: %w", err)
		}
		byProduct[productID] = append(byProduct[productID], c)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("rows iteration error: %w", err)
	}

	for _, p := range products {
		p.Categories = byProduct[p.ID]
	}

	return nil
}
