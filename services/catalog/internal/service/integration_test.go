package service

import (
	"encoding/json"
	"testing"
	"time"

	outboxRepository "github.com/sakashimaa/marketplace/pkg/outbox/repository"
	"github.com/sakashimaa/marketplace/pkg/testsuite"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"github.com/sakashimaa/marketplace/services/catalog/internal/menu"
	"github.com/sakashimaa/marketplace/services/catalog/internal/repository"
	"github.com/sakashimaa/marketplace/services/catalog/internal/staging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type IntegrationTestSuite struct {
	testsuite.BaseSuite

	Staging *staging.Cache
	Service CatalogService
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../../migrations")
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *IntegrationTestSuite) SetupTest() {
	s.TruncateTables("product_in_menus", "menus", "product_categories", "staged_edits", "products", "outbox")
	s.FlushRedis()

	logger := zap.NewNop()
	outboxRepo := outboxRepository.NewOutboxRepository(s.DbPool, logger)
	productRepo := repository.NewProductRepository(s.DbPool, outboxRepo, logger)
	grouping := menu.NewGrouping(repository.NewMenuRepository(s.DbPool, logger), 16, time.Minute)

	s.Staging = staging.New(s.Redis)
	core := NewCatalogService(productRepo, s.Staging, &fakeImages{}, grouping, 3, logger)
	s.Service = NewCachedCatalogService(core, s.Redis, time.Minute, logger)

	_, err := s.DbPool.Exec(s.Ctx,
		`INSERT INTO menus (id, resident_id, name, is_default) VALUES ('MN_1', 'RS_1', 'Main', TRUE)`)
	s.Require().NoError(err)
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration suite needs docker")
	}
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) create(name string, related ...string) *domain.Product {
	in := CreateProductInput{Base: ProductInput{Attributes: domain.ProductAttributes{
		Name:         name,
		DefaultPrice: decimal.RequireFromString("9.90"),
	}}}
	for _, r := range related {
		in.Related = append(in.Related, ProductInput{Attributes: domain.ProductAttributes{Name: r}})
	}

	res, err := s.Service.CreateProduct(s.Ctx, "RS_1", in)
	s.Require().NoError(err)
	s.Require().Empty(res.Warnings)
	return res.Product
}

func (s *IntegrationTestSuite) liveRow(id string) (string, domain.ProductStatus, string) {
	var name, approvedBy string
	var status domain.ProductStatus
	err := s.DbPool.QueryRow(s.Ctx, `SELECT name, status, approved_by FROM products WHERE id = $1`, id).
		Scan(&name, &status, &approvedBy)
	s.Require().NoError(err)
	return name, status, approvedBy
}

func (s *IntegrationTestSuite) TestStageAndApprove_CascadesToRelated() {
	a := s.create("A", "B")
	b := a.Children[0]

	var price decimal.Decimal
	err := s.DbPool.QueryRow(s.Ctx,
		`SELECT price FROM product_in_menus WHERE menu_id = 'MN_1' AND product_id = $1`, a.ID).Scan(&price)
	s.Require().NoError(err)
	s.Require().True(price.Equal(decimal.RequireFromString("9.90")))

	_, err = s.Service.StageEdit(s.Ctx, "merchant1", a.ID, StageEditInput{Attributes: domain.ProductAttributes{Name: "A2"}})
	s.Require().NoError(err)

	name, status, _ := s.liveRow(a.ID)
	s.Require().Equal("A", name)
	s.Require().Equal(domain.StatusUnverified, status)

	_, err = s.Service.Decide(s.Ctx, a.ID, true, "admin1")
	s.Require().NoError(err)

	name, status, approvedBy := s.liveRow(a.ID)
	s.Require().Equal("A2", name)
	s.Require().Equal(domain.StatusVerified, status)
	s.Require().Equal("admin1", approvedBy)

	_, status, approvedBy = s.liveRow(b.ID)
	s.Require().Equal(domain.StatusVerified, status)
	s.Require().Equal("admin1", approvedBy)

	entries, err := s.Staging.GetAll(s.Ctx)
	s.Require().NoError(err)
	s.Require().Empty(entries)

	var eventTypes []string
	rows, err := s.DbPool.Query(s.Ctx, `SELECT event_type FROM outbox ORDER BY id`)
	s.Require().NoError(err)
	for rows.Next() {
		var t string
		s.Require().NoError(rows.Scan(&t))
		eventTypes = append(eventTypes, t)
	}
	s.Require().NoError(rows.Err())
	s.Require().Equal([]string{"ProductCreated", "ProductEditStaged", "ProductVerified"}, eventTypes)
}

func (s *IntegrationTestSuite) TestReject_AppliesStagedAttributes() {
	a := s.create("Soup")

	_, err := s.Service.StageEdit(s.Ctx, "merchant1", a.ID, StageEditInput{Attributes: domain.ProductAttributes{Name: "Borscht"}})
	s.Require().NoError(err)

	_, err = s.Service.Decide(s.Ctx, a.ID, false, "admin1")
	s.Require().NoError(err)

	name, status, approvedBy := s.liveRow(a.ID)
	s.Require().Equal("Borscht", name)
	s.Require().Equal(domain.StatusRejected, status)
	s.Require().Empty(approvedBy)

	var state string
	err = s.DbPool.QueryRow(s.Ctx, `SELECT state FROM staged_edits WHERE product_id = $1`, a.ID).Scan(&state)
	s.Require().NoError(err)
	s.Require().Equal(string(domain.EditDiscarded), state)
}

func (s *IntegrationTestSuite) TestGetProduct_CacheIsInvalidatedByDecisions() {
	a := s.create("Tea", "Lemon")

	got, err := s.Service.GetProduct(s.Ctx, a.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.StatusUnverified, got.Status)

	cached, err := s.Redis.Get(s.Ctx, productKey(a.ID)).Bytes()
	s.Require().NoError(err)

	var fromCache domain.Product
	s.Require().NoError(json.Unmarshal(cached, &fromCache))
	s.Require().Equal(a.ID, fromCache.ID)

	_, err = s.Service.Decide(s.Ctx, a.ID, true, "admin1")
	s.Require().NoError(err)

	got, err = s.Service.GetProduct(s.Ctx, a.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.StatusVerified, got.Status)
	s.Require().Equal(domain.StatusVerified, got.Children[0].Status)

	// staging an edit on the related product must drop the base's cached view too
	_, err = s.Service.StageEdit(s.Ctx, "merchant1", a.Children[0].ID, StageEditInput{Attributes: domain.ProductAttributes{Name: "Lime"}})
	s.Require().NoError(err)

	got, err = s.Service.GetProduct(s.Ctx, a.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.StatusUnverified, got.Children[0].Status)
	s.Require().NotNil(got.Children[0].ProposedUpdate)
	s.Require().Equal("Lime", got.Children[0].ProposedUpdate.Attributes.Name)
}

func (s *IntegrationTestSuite) TestQuery_PagingAndOverlay() {
	for _, name := range []string{"Apple", "Apricot", "Banana", "Avocado", "Cherry"} {
		s.create(name)
	}

	page, err := s.Service.Query(s.Ctx, ProductQuery{Search: "a", Sort: "+name", Limit: 2, Page: 2})
	s.Require().NoError(err)
	s.Require().Equal(int64(4), page.Total)
	s.Require().Equal(2, page.LastPage)
	s.Require().Len(page.List, 2)
	s.Require().Equal("Avocado", page.List[0].Name)
	s.Require().Equal("Banana", page.List[1].Name)

	first, err := s.Service.Query(s.Ctx, ProductQuery{Search: "apri"})
	s.Require().NoError(err)
	s.Require().Len(first.List, 1)

	_, err = s.Service.StageEdit(s.Ctx, "merchant1", first.List[0].ID,
		StageEditInput{Attributes: domain.ProductAttributes{Name: "Dried Apricot"}})
	s.Require().NoError(err)

	overlaid, err := s.Service.Query(s.Ctx, ProductQuery{Statuses: []string{"unverified"}, Search: "apri"})
	s.Require().NoError(err)
	s.Require().Len(overlaid.List, 1)
	s.Require().Equal("Apricot", overlaid.List[0].Name)
	s.Require().Equal("Dried Apricot", overlaid.List[0].ProposedUpdate.Attributes.Name)
}

func (s *IntegrationTestSuite) TestDeleteProducts_SoftDeletesGroup() {
	a := s.create("Kit", "Part 1", "Part 2")

	deleted, err := s.Service.DeleteProducts(s.Ctx, []string{a.ID})
	s.Require().NoError(err)
	s.Require().Len(deleted, 3)

	var count int
	err = s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM products WHERE status = 'deleted'`).Scan(&count)
	s.Require().NoError(err)
	s.Require().Equal(3, count)

	res, err := s.Service.Query(s.Ctx, ProductQuery{})
	s.Require().NoError(err)
	s.Require().Empty(res.List)
}
