package service

import (
	"context"

	"github.com/sakashimaa/marketplace/pkg/mylogger"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProductQuery is the raw, unvalidated read request.
type ProductQuery struct {
	ID          string
	Statuses    []string
	ApartmentID string
	CategoryID  string
	Type        string
	Search      string
	OnlyBase    bool
	Sort        string
	Page        int
	Limit       int
	Include     []string
}

func (q ProductQuery) filter() (domain.ProductFilter, domain.IncludeSet, error) {
	const op = "Query"

	statuses := make([]domain.ProductStatus, 0, len(q.Statuses))
	for _, raw := range q.Statuses {
		st, err := domain.ParseStatus(raw)
		if err != nil {
			return domain.ProductFilter{}, nil, newError(KindValidation, op, "invalid status", err)
		}
		statuses = append(statuses, st)
	}

	sort, err := domain.ParseSort(q.Sort)
	if err != nil {
		return domain.ProductFilter{}, nil, newError(KindValidation, op, "invalid sort", err)
	}

	include, err := domain.ParseInclude(q.Include)
	if err != nil {
		return domain.ProductFilter{}, nil, newError(KindValidation, op, "invalid include", err)
	}

	_, offset, err := domain.PageOffset(q.Page, q.Limit)
	if err != nil {
		return domain.ProductFilter{}, nil, newError(KindValidation, op, "invalid page", err)
	}

	return domain.ProductFilter{
		ID:          q.ID,
		Statuses:    statuses,
		ApartmentID: q.ApartmentID,
		CategoryID:  q.CategoryID,
		Type:        q.Type,
		Search:      q.Search,
		OnlyBase:    q.OnlyBase,
		Sort:        sort,
		Limit:       q.Limit,
		Offset:      offset,
	}, include, nil
}

func (s *catalogService) Query(ctx context.Context, q ProductQuery) (*domain.Page[*domain.Product], error) {
	const op = "Query"

	ctx, span := s.tracer.Start(ctx, "CatalogService.Query")
	defer span.End()

	filter, include, err := q.filter()
	if err != nil {
		return nil, err
	}

	page, _, _ := domain.PageOffset(q.Page, q.Limit)

	span.SetAttributes(
		attribute.Int("page", page),
		attribute.Int("limit", q.Limit),
		attribute.String("search", q.Search),
	)

	products, total, err := s.repo.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, storeError(op, err)
	}

	if filter.ID != "" && total == 0 {
		return nil, newError(KindNotFound, op, "product not found", nil)
	}

	if err := s.include(ctx, products, include); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if filter.HasStatus(domain.StatusUnverified) {
		if err := s.overlay(ctx, products); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	return &domain.Page[*domain.Product]{
		List:     products,
		Page:     page,
		LastPage: domain.LastPage(total, q.Limit),
		Total:    total,
	}, nil
}

func (s *catalogService) include(ctx context.Context, products []*domain.Product, include domain.IncludeSet) error {
	const op = "Query"

	if len(products) == 0 {
		return nil
	}

	if include[domain.IncludeRelated] {
		if err := s.repo.LoadChildren(ctx, products); err != nil {
			return storeError(op, err)
		}
	}
	if include[domain.IncludeBase] {
		if err := s.repo.LoadParents(ctx, products); err != nil {
			return storeError(op, err)
		}
	}
	if include[domain.IncludeCategory] {
		if err := s.repo.LoadCategories(ctx, products); err != nil {
			return storeError(op, err)
		}
	}
	return nil
}

// overlay attaches staged edits to unverified products and their children. The live
// attributes are left untouched.
func (s *catalogService) overlay(ctx context.Context, products []*domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	staged, err := s.staging.Index(ctx)
	if err != nil {
		return newError(KindCache, "Query", "staging cache failure", err)
	}
	if len(staged) == 0 {
		return nil
	}

	attach := func(p *domain.Product) {
		if p.Status != domain.StatusUnverified {
			return
		}
		if edit, ok := staged[p.ID]; ok {
			p.ProposedUpdate = edit.Proposal()
		}
	}

	for _, p := range products {
		attach(p)
		for _, c := range p.Children {
			attach(c)
		}
	}
	return nil
}

func (s *catalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	const op = "GetProduct"

	ctx, span := s.tracer.Start(ctx, "CatalogService.GetProduct")
	defer span.End()

	span.SetAttributes(attribute.String("id", id))

	p, err := s.repo.GetWithChildren(ctx, id)
	if err != nil {
		err = storeError(op, err)
		if KindOf(err) == KindStore {
			span.RecordError(err)
			mylogger.Error(ctx, s.logger, "Error getting product", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}
	if p.Status == domain.StatusDeleted {
		return nil, newError(KindNotFound, op, "product not found", nil)
	}

	if err := s.repo.LoadCategories(ctx, []*domain.Product{p}); err != nil {
		return nil, storeError(op, err)
	}

	if err := s.overlay(ctx, []*domain.Product{p}); err != nil {
		return nil, err
	}

	return p, nil
}
