package staging

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type StagingSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcredis.RedisContainer
	client    *goredis.Client
	cache     *Cache
}

func (s *StagingSuite) SetupSuite() {
	s.ctx = context.Background()

	var err error
	s.container, err = tcredis.Run(s.ctx, "redis:7-alpine")
	s.Require().NoError(err)

	uri, err := s.container.ConnectionString(s.ctx)
	s.Require().NoError(err)

	opts, err := goredis.ParseURL(uri)
	s.Require().NoError(err)

	s.client = goredis.NewClient(opts)
	s.cache = New(s.client)
}

func (s *StagingSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *StagingSuite) SetupTest() {
	s.Require().NoError(s.client.FlushDB(s.ctx).Err())
}

func (s *StagingSuite) edit(productID, name string) *domain.StagedEdit {
	p := &domain.Product{ID: productID, Version: 1}
	return domain.NewStagedEdit(p, domain.ProductAttributes{
		Name:         name,
		DefaultPrice: decimal.RequireFromString("12.50"),
	}, "RS_1", time.Now().UTC())
}

func (s *StagingSuite) TestPut_LastWriterWins() {
	first := s.edit("PD_A", "A1")
	second := s.edit("PD_A", "A2")

	s.Require().NoError(s.cache.Put(s.ctx, first))
	s.Require().NoError(s.cache.Put(s.ctx, s.edit("PD_B", "B1")))
	s.Require().NoError(s.cache.Put(s.ctx, second))

	index, err := s.cache.Index(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(index, 2)
	s.Require().Equal(second.ID, index["PD_A"].ID)
	s.Require().Equal("A2", index["PD_A"].Attributes.Name)
	s.Require().True(decimal.RequireFromString("12.5").Equal(index["PD_A"].Attributes.DefaultPrice))
}

func (s *StagingSuite) TestRemove_EvictsOnlyGivenProducts() {
	s.Require().NoError(s.cache.Put(s.ctx, s.edit("PD_A", "A")))
	s.Require().NoError(s.cache.Put(s.ctx, s.edit("PD_B", "B")))
	s.Require().NoError(s.cache.Put(s.ctx, s.edit("PD_C", "C")))

	s.Require().NoError(s.cache.Remove(s.ctx, "PD_A", "PD_C", "PD_missing"))

	all, err := s.cache.GetAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Require().Equal("PD_B", all[0].ProductID)
}

func (s *StagingSuite) TestRemoveEdit_KeepsNewerEdit() {
	old := s.edit("PD_A", "old")
	s.Require().NoError(s.cache.Put(s.ctx, old))

	newer := s.edit("PD_A", "new")
	s.Require().NoError(s.cache.Put(s.ctx, newer))

	removed, err := s.cache.RemoveEdit(s.ctx, old.ID)
	s.Require().NoError(err)
	s.Require().False(removed)

	index, err := s.cache.Index(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal(newer.ID, index["PD_A"].ID)
}

func (s *StagingSuite) TestBackfill_DoesNotOverwrite() {
	current := s.edit("PD_A", "current")
	s.Require().NoError(s.cache.Put(s.ctx, current))

	added, err := s.cache.Backfill(s.ctx, s.edit("PD_A", "stale"))
	s.Require().NoError(err)
	s.Require().False(added)

	added, err = s.cache.Backfill(s.ctx, s.edit("PD_B", "lost"))
	s.Require().NoError(err)
	s.Require().True(added)

	index, err := s.cache.Index(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal(current.ID, index["PD_A"].ID)
	s.Require().Contains(index, "PD_B")
}

func TestStagingSuite(t *testing.T) {
	suite.Run(t, new(StagingSuite))
}
