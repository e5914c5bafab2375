package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	outboxDomain "github.com/sakashimaa/marketplace/pkg/outbox/domain"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"github.com/sakashimaa/marketplace/services/catalog/internal/repository"
)

func cloneProduct(p *domain.Product) *domain.Product {
	c := *p
	c.Children = nil
	c.Parent = nil
	c.ProposedUpdate = nil
	if p.ParentID != nil {
		parent := *p.ParentID
		c.ParentID = &parent
	}
	return &c
}

type memRepo struct {
	mu         sync.Mutex
	products   map[string]*domain.Product
	edits      map[uuid.UUID]*domain.StagedEdit
	categories map[string][]domain.Category
	events     []*outboxDomain.OutboxEvent
	commits    int

	commitErr error
	// conflicts makes the next n commits fail as if another writer got there first
	conflicts int
	onCommit  func()
}

func newMemRepo() *memRepo {
	return &memRepo{
		products:   map[string]*domain.Product{},
		edits:      map[uuid.UUID]*domain.StagedEdit{},
		categories: map[string][]domain.Category{},
	}
}

func (r *memRepo) seed(products ...*domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range products {
		r.products[p.ID] = cloneProduct(p)
	}
}

func (r *memRepo) stored(id string) *domain.Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneProduct(r.products[id])
}

func (r *memRepo) editsOf(productID string) []*domain.StagedEdit {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.StagedEdit
	for _, e := range r.edits {
		if e.ProductID == productID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *memRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (r *memRepo) childrenOf(id string) []*domain.Product {
	var out []*domain.Product
	for _, c := range r.products {
		if c.ParentID != nil && *c.ParentID == id && c.Status != domain.StatusDeleted {
			out = append(out, cloneProduct(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) GetWithChildren(ctx context.Context, id string) (*domain.Product, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p.Children = r.childrenOf(id)
	return p, nil
}

func (r *memRepo) FindByIDsOrParents(_ context.Context, ids []string) ([]*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}

	var out []*domain.Product
	for _, p := range r.products {
		if want[p.ID] || (p.ParentID != nil && want[*p.ParentID]) {
			out = append(out, cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) FindBaseIDsByResident(_ context.Context, residentID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, p := range r.products {
		if p.ResidentID == residentID && p.IsBase() && p.Status != domain.StatusDeleted {
			ids = append(ids, p.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *memRepo) List(_ context.Context, f domain.ProductFilter) ([]*domain.Product, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []*domain.Product
	for _, p := range r.products {
		switch {
		case f.ID != "" && p.ID != f.ID:
			continue
		case len(f.Statuses) == 0 && p.Status == domain.StatusDeleted:
			continue
		case len(f.Statuses) > 0 && !f.HasStatus(p.Status):
			continue
		case f.OnlyBase && !p.IsBase():
			continue
		case f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)):
			continue
		}
		rows = append(rows, cloneProduct(p))
	}

	sort.Slice(rows, func(i, j int) bool {
		if f.Sort.Desc {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].ID < rows[j].ID
	})

	total := int64(len(rows))
	if f.Offset >= len(rows) {
		return []*domain.Product{}, total, nil
	}
	rows = rows[f.Offset:]
	if f.Limit > 0 && f.Limit < len(rows) {
		rows = rows[:f.Limit]
	}
	return rows, total, nil
}

func (r *memRepo) LoadChildren(_ context.Context, products []*domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range products {
		p.Children = r.childrenOf(p.ID)
	}
	return nil
}

func (r *memRepo) LoadParents(_ context.Context, products []*domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range products {
		if p.ParentID != nil {
			if parent, ok := r.products[*p.ParentID]; ok {
				p.Parent = cloneProduct(parent)
			}
		}
	}
	return nil
}

func (r *memRepo) LoadCategories(_ context.Context, products []*domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range products {
		p.Categories = r.categories[p.ID]
	}
	return nil
}

func (r *memRepo) PendingEdits(_ context.Context, productIDs []string) (map[string]*domain.StagedEdit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := map[string]bool{}
	for _, id := range productIDs {
		want[id] = true
	}

	out := map[string]*domain.StagedEdit{}
	for _, e := range r.edits {
		if e.State == domain.EditPending && want[e.ProductID] {
			c := *e
			out[e.ProductID] = &c
		}
	}
	return out, nil
}

func (r *memRepo) ListPendingEdits(_ context.Context, createdBefore time.Time) ([]*domain.StagedEdit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.StagedEdit
	for _, e := range r.edits {
		if e.State != domain.EditPending {
			continue
		}
		if !createdBefore.IsZero() && !e.CreatedAt.Before(createdBefore) {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Commit validates the whole unit before touching state, so a failed commit changes nothing.
func (r *memRepo) Commit(_ context.Context, uow *domain.UnitOfWork) error {
	if r.onCommit != nil {
		r.onCommit()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.commitErr != nil {
		return r.commitErr
	}
	if r.conflicts > 0 {
		r.conflicts--
		return fmt.Errorf("%w: injected", repository.ErrVersionConflict)
	}

	for _, p := range uow.Inserts {
		if _, ok := r.products[p.ID]; ok {
			return fmt.Errorf("duplicate product %s", p.ID)
		}
	}
	for _, p := range uow.Updates {
		cur, ok := r.products[p.ID]
		if !ok || cur.Version != p.Version {
			return fmt.Errorf("%w: product %s", repository.ErrVersionConflict, p.ID)
		}
	}
	for _, t := range uow.Transitions {
		e, ok := r.edits[t.EditID]
		if !ok || e.State != domain.EditPending {
			return fmt.Errorf("%w: edit %s", repository.ErrVersionConflict, t.EditID)
		}
	}

	for _, p := range uow.Inserts {
		r.products[p.ID] = cloneProduct(p)
	}
	for _, p := range uow.Updates {
		stored := cloneProduct(p)
		stored.Version++
		r.products[p.ID] = stored
	}
	for _, e := range uow.StagedEdits {
		for _, old := range r.edits {
			if old.ProductID == e.ProductID && old.State == domain.EditPending {
				old.State = domain.EditSuperseded
				at := e.CreatedAt
				old.ResolvedAt = &at
			}
		}
		c := *e
		r.edits[e.ID] = &c
	}
	for _, t := range uow.Transitions {
		at := t.At
		r.edits[t.EditID].State = t.To
		r.edits[t.EditID].ResolvedAt = &at
	}
	r.events = append(r.events, uow.Events...)
	r.commits++

	for _, p := range uow.Updates {
		p.Version++
	}
	return nil
}

type memStaging struct {
	mu      sync.Mutex
	entries map[string]domain.StagedEdit
	err     error
}

func newMemStaging() *memStaging {
	return &memStaging{entries: map[string]domain.StagedEdit{}}
}

func (m *memStaging) Put(_ context.Context, edit *domain.StagedEdit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries[edit.ProductID] = *edit
	return nil
}

func (m *memStaging) Index(_ context.Context) (map[string]*domain.StagedEdit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]*domain.StagedEdit, len(m.entries))
	for k, v := range m.entries {
		e := v
		out[k] = &e
	}
	return out, nil
}

func (m *memStaging) Remove(_ context.Context, productIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, id := range productIDs {
		delete(m.entries, id)
	}
	return nil
}

func (m *memStaging) RemoveEdit(_ context.Context, editID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	for k, v := range m.entries {
		if v.ID == editID {
			delete(m.entries, k)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStaging) has(productID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[productID]
	return ok
}

type fakeImages struct {
	calls []string
	err   error
}

func (f *fakeImages) Upload(_ context.Context, files []domain.ImageFile, entityType, entityID, field string, startOrder int) (string, error) {
	if f.err != nil {
		return "", f.err
	}

	urls := make([]string, 0, len(files))
	for i := range files {
		urls = append(urls, fmt.Sprintf("https://cdn/%s/%s/%s_%d.jpg",
			strings.ToLower(entityType), entityID, strings.ToLower(field), startOrder+i))
	}
	f.calls = append(f.calls, entityID)
	return domain.JoinImages(urls), nil
}

type fakeGrouping struct {
	groupErr error
	addErr   error
	added    map[string][]domain.MenuEntry
}

func (f *fakeGrouping) DefaultGroup(_ context.Context, residentID string) (string, error) {
	if f.groupErr != nil {
		return "", f.groupErr
	}
	return "MN_" + residentID, nil
}

func (f *fakeGrouping) AddEntriesToGroup(_ context.Context, groupID string, entries []domain.MenuEntry) error {
	if f.addErr != nil {
		return f.addErr
	}
	if f.added == nil {
		f.added = map[string][]domain.MenuEntry{}
	}
	f.added[groupID] = append(f.added[groupID], entries...)
	return nil
}

var errBoom = errors.New("boom")
