package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	generalDomain "github.com/sakashimaa/marketplace/pkg/domain"
	"github.com/sakashimaa/marketplace/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/marketplace/pkg/outbox/domain"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"github.com/sakashimaa/marketplace/services/catalog/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	productTopic     = "product_events"
	productAggregate = "Product"
	imageField       = "Image"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_moderation_decisions_total",
		Help: "Moderation decisions committed, by resulting status.",
	}, []string{"status"})

	stagedEditsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_staged_edits_total",
		Help: "Edits staged for moderation.",
	})

	versionConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_version_conflicts_total",
		Help: "Commits rejected because a row changed concurrently.",
	}, []string{"op"})
)

type ImageStore interface {
	Upload(ctx context.Context, files []domain.ImageFile, entityType, entityID, field string, startOrder int) (string, error)
}

type StagingCache interface {
	Put(ctx context.Context, edit *domain.StagedEdit) error
	Index(ctx context.Context) (map[string]*domain.StagedEdit, error)
	Remove(ctx context.Context, productIDs ...string) error
	RemoveEdit(ctx context.Context, editID uuid.UUID) (bool, error)
}

// DefaultGrouping places new products into the merchant's default menu.
type DefaultGrouping interface {
	DefaultGroup(ctx context.Context, residentID string) (string, error)
	AddEntriesToGroup(ctx context.Context, groupID string, entries []domain.MenuEntry) error
}

type ProductInput struct {
	Attributes domain.ProductAttributes
	Images     []domain.ImageFile
}

type CreateProductInput struct {
	Base    ProductInput
	Related []ProductInput
}

type CreateProductResult struct {
	Product  *domain.Product `json:"product"`
	Warnings []Warning       `json:"warnings,omitempty"`
}

// StageEditInput proposes new attributes. The image field is derived from the live
// value: RemoveImages are dropped and NewImages are uploaded and appended.
type StageEditInput struct {
	Attributes   domain.ProductAttributes
	NewImages    []domain.ImageFile
	RemoveImages []string
}

type CatalogService interface {
	CreateProduct(ctx context.Context, residentID string, in CreateProductInput) (*CreateProductResult, error)
	AddRelatedProducts(ctx context.Context, baseID string, related []ProductInput) ([]*domain.Product, error)
	StageEdit(ctx context.Context, actorID, productID string, in StageEditInput) (*domain.StagedEdit, error)
	Decide(ctx context.Context, baseID string, approve bool, deciderID string) (*domain.Product, error)
	DeleteProducts(ctx context.Context, ids []string) ([]*domain.Product, error)
	DeleteMerchantProducts(ctx context.Context, residentID string) ([]*domain.Product, error)
	Query(ctx context.Context, q ProductQuery) (*domain.Page[*domain.Product], error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListPendingEdits(ctx context.Context) ([]*domain.StagedEdit, error)
}

type catalogService struct {
	repo       repository.ProductRepository
	staging    StagingCache
	images     ImageStore
	grouping   DefaultGrouping
	maxRetries int
	now        func() time.Time
	tracer     trace.Tracer
	logger     *zap.Logger
}

func NewCatalogService(
	repo repository.ProductRepository,
	staging StagingCache,
	images ImageStore,
	grouping DefaultGrouping,
	maxRetries int,
	logger *zap.Logger,
) CatalogService {
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &catalogService{
		repo:       repo,
		staging:    staging,
		images:     images,
		grouping:   grouping,
		maxRetries: maxRetries,
		now:        func() time.Time { return time.Now().UTC() },
		tracer:     otel.Tracer("catalog/service"),
		logger:     logger,
	}
}

// storeError classifies a repository failure.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		return newError(KindNotFound, op, "product not found", err)
	case errors.Is(err, repository.ErrVersionConflict):
		return err
	default:
		return newError(KindStore, op, "catalog store failure", err)
	}
}

// withRetry reruns attempt while its commit loses an optimistic concurrency race.
func (s *catalogService) withRetry(ctx context.Context, op string, attempt func() error) error {
	var err error
	for i := 0; i < s.maxRetries; i++ {
		if err = attempt(); !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}

		versionConflictsTotal.WithLabelValues(op).Inc()
		mylogger.Warn(ctx, s.logger, "Version conflict, retrying", zap.String("op", op), zap.Int("attempt", i+1))

		if ctxErr := ctx.Err(); ctxErr != nil {
			return newError(KindInternal, op, "cancelled", ctxErr)
		}
	}

	return newError(KindConflict, op, "product changed concurrently", err)
}

func productEvent(aggregateID, eventType string, payload any) (*outboxDomain.OutboxEvent, error) {
	return outboxDomain.NewEvent(productTopic, productAggregate, aggregateID, eventType, payload)
}

func (s *catalogService) newProduct(
	ctx context.Context,
	in ProductInput,
	residentID string,
	parentID *string,
	now time.Time,
) (*domain.Product, error) {
	p := domain.NewProduct(in.Attributes, residentID, parentID, now)
	if len(in.Images) == 0 {
		return p, nil
	}

	uploaded, err := s.images.Upload(ctx, in.Images, productAggregate, p.ID, imageField, domain.NextImageOrder("image", p.Image))
	if err != nil {
		return nil, newError(KindUpload, "CreateProduct", "image upload failed", err)
	}

	p.Image = domain.MergeImages(p.Image, nil, uploaded)
	return p, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, residentID string, in CreateProductInput) (*CreateProductResult, error) {
	const op = "CreateProduct"

	ctx, span := s.tracer.Start(ctx, "CatalogService.CreateProduct")
	defer span.End()

	span.SetAttributes(
		attribute.String("resident_id", residentID),
		attribute.Int("related", len(in.Related)),
	)

	now := s.now()

	base, err := s.newProduct(ctx, in.Base, residentID, nil, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	children := make([]*domain.Product, 0, len(in.Related))
	relatedIDs := make([]string, 0, len(in.Related))
	for _, r := range in.Related {
		child, err := s.newProduct(ctx, r, residentID, &base.ID, now)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		children = append(children, child)
		relatedIDs = append(relatedIDs, child.ID)
	}

	uow := &domain.UnitOfWork{}
	uow.Insert(base)
	uow.Insert(children...)

	event, err := productEvent(base.ID, generalDomain.EventProductCreated, generalDomain.ProductCreatedEvent{
		ProductID:  base.ID,
		ResidentID: residentID,
		RelatedIDs: relatedIDs,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, newError(KindInternal, op, "event encoding failed", err)
	}
	uow.Emit(event)

	if err := s.repo.Commit(ctx, uow); err != nil {
		span.RecordError(err)
		return nil, storeError(op, err)
	}

	base.Children = children

	result := &CreateProductResult{Product: base}
	if w := s.addToDefaultMenu(ctx, base); w != nil {
		result.Warnings = append(result.Warnings, *w)
	}

	mylogger.Info(ctx, s.logger, "Product created",
		zap.String("product_id", base.ID),
		zap.Int("related", len(children)),
		zap.Int("warnings", len(result.Warnings)),
	)

	return result, nil
}

func (s *catalogService) addToDefaultMenu(ctx context.Context, p *domain.Product) *Warning {
	groupID, err := s.grouping.DefaultGroup(ctx, p.ResidentID)
	if err == nil {
		err = s.grouping.AddEntriesToGroup(ctx, groupID, []domain.MenuEntry{{ProductID: p.ID, Price: p.DefaultPrice}})
	}
	if err == nil {
		return nil
	}

	mylogger.Warn(ctx, s.logger, "Failed to add product to default menu",
		zap.String("product_id", p.ID),
		zap.String("resident_id", p.ResidentID),
		zap.Error(err),
	)

	return &Warning{
		Kind:    WarningPartialSideEffect,
		Message: "product created but not added to the default menu: " + err.Error(),
	}
}

func (s *catalogService) AddRelatedProducts(ctx context.Context, baseID string, related []ProductInput) ([]*domain.Product, error) {
	const op = "AddRelatedProducts"

	ctx, span := s.tracer.Start(ctx, "CatalogService.AddRelatedProducts")
	defer span.End()

	span.SetAttributes(attribute.String("base_id", baseID))

	if len(related) == 0 {
		return nil, newError(KindValidation, op, "no related products given", nil)
	}

	base, err := s.repo.GetByID(ctx, baseID)
	if err != nil {
		return nil, storeError(op, err)
	}
	if base.Status == domain.StatusDeleted {
		return nil, newError(KindNotFound, op, "product not found", nil)
	}
	if !base.IsBase() {
		return nil, newError(KindValidation, op, "related products can only be added to a base product", nil)
	}

	now := s.now()
	children := make([]*domain.Product, 0, len(related))
	for _, r := range related {
		child, err := s.newProduct(ctx, r, base.ResidentID, &base.ID, now)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	uow := &domain.UnitOfWork{}
	uow.Insert(children...)

	for _, c := range children {
		event, err := productEvent(c.ID, generalDomain.EventProductCreated, generalDomain.ProductCreatedEvent{
			ProductID:  c.ID,
			ResidentID: c.ResidentID,
			CreatedAt:  now,
		})
		if err != nil {
			return nil, newError(KindInternal, op, "event encoding failed", err)
		}
		uow.Emit(event)
	}

	if err := s.repo.Commit(ctx, uow); err != nil {
		span.RecordError(err)
		return nil, storeError(op, err)
	}

	return children, nil
}

func (s *catalogService) StageEdit(ctx context.Context, actorID, productID string, in StageEditInput) (*domain.StagedEdit, error) {
	const op = "StageEdit"

	ctx, span := s.tracer.Start(ctx, "CatalogService.StageEdit")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int("new_images", len(in.NewImages)),
		attribute.Int("removed_images", len(in.RemoveImages)),
	)

	p, err := s.liveProduct(ctx, op, productID)
	if err != nil {
		return nil, err
	}

	var uploaded string
	if len(in.NewImages) > 0 {
		uploaded, err = s.images.Upload(ctx, in.NewImages, productAggregate, p.ID, imageField, domain.NextImageOrder("image", p.Image))
		if err != nil {
			span.RecordError(err)
			return nil, newError(KindUpload, op, "image upload failed", err)
		}
	}

	var edit *domain.StagedEdit
	loaded := p
	err = s.withRetry(ctx, op, func() error {
		target := loaded
		loaded = nil
		if target == nil {
			reloaded, err := s.liveProduct(ctx, op, productID)
			if err != nil {
				return err
			}
			target = reloaded
		}

		staged, err := s.stageOnce(ctx, target, actorID, in, uploaded)
		edit = staged
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	stagedEditsTotal.Inc()

	if err := s.staging.Put(ctx, edit); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, s.logger, "Staged edit committed but not cached",
			zap.String("product_id", productID),
			zap.String("edit_id", edit.ID.String()),
			zap.Error(err),
		)

		return nil, newError(KindCache, op, "staging cache failure", err)
	}

	mylogger.Info(ctx, s.logger, "Edit staged",
		zap.String("product_id", productID),
		zap.String("edit_id", edit.ID.String()),
		zap.String("proposed_by", actorID),
	)

	return edit, nil
}

func (s *catalogService) liveProduct(ctx context.Context, op, id string) (*domain.Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(op, err)
	}
	if p.Status == domain.StatusDeleted {
		return nil, newError(KindNotFound, op, "product not found", nil)
	}
	return p, nil
}

// stageOnce records the edit as pending and reopens the product. Live attributes stay as they are.
func (s *catalogService) stageOnce(
	ctx context.Context,
	p *domain.Product,
	actorID string,
	in StageEditInput,
	uploaded string,
) (*domain.StagedEdit, error) {
	now := s.now()

	attrs := in.Attributes
	attrs.Image = domain.MergeImages(p.Image, in.RemoveImages, uploaded)

	edit := domain.NewStagedEdit(p, attrs, actorID, now)
	p.Reopen(now)

	event, err := productEvent(p.ID, generalDomain.EventProductEditStaged, generalDomain.ProductEditStagedEvent{
		ProductID:  p.ID,
		EditID:     edit.ID.String(),
		ProposedBy: actorID,
		StagedAt:   now,
	})
	if err != nil {
		return nil, newError(KindInternal, "StageEdit", "event encoding failed", err)
	}

	uow := &domain.UnitOfWork{}
	uow.Update(p)
	uow.Stage(edit)
	uow.Emit(event)

	if err := s.repo.Commit(ctx, uow); err != nil {
		return nil, storeError("StageEdit", err)
	}

	return edit, nil
}

func (s *catalogService) Decide(ctx context.Context, baseID string, approve bool, deciderID string) (*domain.Product, error) {
	const op = "Decide"

	ctx, span := s.tracer.Start(ctx, "CatalogService.Decide")
	defer span.End()

	span.SetAttributes(
		attribute.String("base_id", baseID),
		attribute.Bool("approve", approve),
	)

	var (
		base    *domain.Product
		evict   []uuid.UUID
		applied int
	)
	err := s.withRetry(ctx, op, func() error {
		var err error
		base, evict, applied, err = s.decideOnce(ctx, baseID, approve, deciderID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	decisionsTotal.WithLabelValues(string(base.Status)).Inc()
	s.evictEdits(ctx, evict)

	mylogger.Info(ctx, s.logger, "Product decided",
		zap.String("product_id", base.ID),
		zap.String("status", string(base.Status)),
		zap.String("decided_by", deciderID),
		zap.Int("group_size", len(base.Group())),
		zap.Int("applied_edits", applied),
	)

	return base, nil
}

// decideOnce applies one decision to the whole group. The ledger decides which staged edit
// applies; cache entries that disagree with it are only returned for eviction.
func (s *catalogService) decideOnce(
	ctx context.Context,
	baseID string,
	approve bool,
	deciderID string,
) (*domain.Product, []uuid.UUID, int, error) {
	const op = "Decide"

	base, err := s.repo.GetWithChildren(ctx, baseID)
	if err != nil {
		return nil, nil, 0, storeError(op, err)
	}
	if base.Status == domain.StatusDeleted {
		return nil, nil, 0, newError(KindNotFound, op, "product not found", nil)
	}

	group := base.Group()
	ids := productIDs(group)

	cached, err := s.staging.Index(ctx)
	if err != nil {
		return nil, nil, 0, newError(KindCache, op, "staging cache failure", err)
	}

	pending, err := s.repo.PendingEdits(ctx, ids)
	if err != nil {
		return nil, nil, 0, storeError(op, err)
	}

	now := s.now()
	uow := &domain.UnitOfWork{}
	var evict []uuid.UUID
	var appliedIDs []string

	for _, p := range group {
		edit := pending[p.ID]
		if c, ok := cached[p.ID]; ok && (edit == nil || c.ID != edit.ID) {
			mylogger.Warn(ctx, s.logger, "Ignoring stale staged edit",
				zap.String("product_id", p.ID),
				zap.String("edit_id", c.ID.String()),
			)
			evict = append(evict, c.ID)
		}

		if edit != nil {
			// the decision is taken on the staged attribute set, rejected or not
			p.ProductAttributes = edit.Attributes
			state := domain.EditDiscarded
			if approve {
				state = domain.EditConsumed
			}
			uow.Resolve(edit, state, now)
			appliedIDs = append(appliedIDs, edit.ID.String())
			evict = append(evict, edit.ID)
		}

		p.Decide(approve, deciderID, now)
		uow.Update(p)
	}

	eventType := generalDomain.EventProductRejected
	if approve {
		eventType = generalDomain.EventProductVerified
	}

	event, err := productEvent(base.ID, eventType, generalDomain.ProductDecidedEvent{
		ProductID:  base.ID,
		GroupIDs:   ids,
		Status:     string(base.Status),
		DecidedBy:  deciderID,
		AppliedIDs: appliedIDs,
		DecidedAt:  now,
	})
	if err != nil {
		return nil, nil, 0, newError(KindInternal, op, "event encoding failed", err)
	}
	uow.Emit(event)

	if err := s.repo.Commit(ctx, uow); err != nil {
		return nil, nil, 0, storeError(op, err)
	}

	return base, evict, len(appliedIDs), nil
}

// evictEdits drops resolved edits from the staging cache. Failures are left to the reconciler,
// the ledger already says the edits are no longer pending.
func (s *catalogService) evictEdits(ctx context.Context, editIDs []uuid.UUID) {
	for _, id := range editIDs {
		if _, err := s.staging.RemoveEdit(ctx, id); err != nil {
			mylogger.Warn(ctx, s.logger, "Failed to evict staged edit",
				zap.String("edit_id", id.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *catalogService) DeleteProducts(ctx context.Context, ids []string) ([]*domain.Product, error) {
	const op = "DeleteProducts"

	ctx, span := s.tracer.Start(ctx, "CatalogService.DeleteProducts")
	defer span.End()

	span.SetAttributes(attribute.StringSlice("ids", ids))

	if len(ids) == 0 {
		return nil, newError(KindValidation, op, "no product ids given", nil)
	}

	var deleted []*domain.Product
	err := s.withRetry(ctx, op, func() error {
		var err error
		deleted, err = s.deleteOnce(ctx, ids)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// deleted products never get a decision, so nothing staged for them survives
	if len(deleted) > 0 {
		if err := s.staging.Remove(ctx, productIDs(deleted)...); err != nil {
			mylogger.Warn(ctx, s.logger, "Failed to evict staged edits of deleted products", zap.Error(err))
		}
	}

	mylogger.Info(ctx, s.logger, "Products deleted", zap.Int("count", len(deleted)))
	return deleted, nil
}

func (s *catalogService) deleteOnce(ctx context.Context, ids []string) ([]*domain.Product, error) {
	const op = "DeleteProducts"

	found, err := s.repo.FindByIDsOrParents(ctx, ids)
	if err != nil {
		return nil, storeError(op, err)
	}
	if len(found) == 0 {
		return nil, newError(KindNotFound, op, "no products found", nil)
	}

	live := make([]*domain.Product, 0, len(found))
	for _, p := range found {
		if p.Status != domain.StatusDeleted {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return live, nil
	}

	liveIDs := productIDs(live)
	pending, err := s.repo.PendingEdits(ctx, liveIDs)
	if err != nil {
		return nil, storeError(op, err)
	}

	now := s.now()
	uow := &domain.UnitOfWork{}

	for _, p := range live {
		if edit, ok := pending[p.ID]; ok {
			uow.Resolve(edit, domain.EditDiscarded, now)
		}
		p.SoftDelete(now)
		uow.Update(p)
	}

	event, err := productEvent(liveIDs[0], generalDomain.EventProductsDeleted, generalDomain.ProductsDeletedEvent{
		ProductIDs: liveIDs,
		DeletedAt:  now,
	})
	if err != nil {
		return nil, newError(KindInternal, op, "event encoding failed", err)
	}
	uow.Emit(event)

	if err := s.repo.Commit(ctx, uow); err != nil {
		return nil, storeError(op, err)
	}

	return live, nil
}

func (s *catalogService) DeleteMerchantProducts(ctx context.Context, residentID string) ([]*domain.Product, error) {
	ids, err := s.repo.FindBaseIDsByResident(ctx, residentID)
	if err != nil {
		return nil, storeError("DeleteMerchantProducts", err)
	}
	if len(ids) == 0 {
		mylogger.Info(ctx, s.logger, "Merchant has no products", zap.String("resident_id", residentID))
		return nil, nil
	}

	deleted, err := s.DeleteProducts(ctx, ids)
	if KindOf(err) == KindNotFound {
		return nil, nil
	}
	return deleted, err
}

func (s *catalogService) ListPendingEdits(ctx context.Context) ([]*domain.StagedEdit, error) {
	edits, err := s.repo.ListPendingEdits(ctx, time.Time{})
	if err != nil {
		return nil, storeError("ListPendingEdits", err)
	}
	return edits, nil
}

func productIDs(products []*domain.Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}
