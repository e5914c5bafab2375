package service

import (
	"fmt"

	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
)

func (s *CatalogServiceSuite) TestQuery_PagesCoverEveryRowOnce() {
	for i := 0; i < 7; i++ {
		s.createGroup(fmt.Sprintf("Item %d", i), 0)
	}

	seen := map[string]bool{}
	for page := 1; page <= 3; page++ {
		res, err := s.svc.Query(s.ctx, ProductQuery{Page: page, Limit: 3, Sort: "+id"})
		s.Require().NoError(err)
		s.Require().Equal(int64(7), res.Total)
		s.Require().Equal(3, res.LastPage)
		s.Require().Equal(page, res.Page)

		for _, p := range res.List {
			s.Require().False(seen[p.ID], "duplicate %s", p.ID)
			seen[p.ID] = true
		}
	}
	s.Require().Len(seen, 7)

	all, err := s.svc.Query(s.ctx, ProductQuery{})
	s.Require().NoError(err)
	s.Require().Len(all.List, 7)
	s.Require().Equal(1, all.LastPage)
	s.Require().Equal(1, all.Page)
}

func (s *CatalogServiceSuite) TestQuery_RejectsBadInput() {
	_, err := s.svc.Query(s.ctx, ProductQuery{Sort: "-nonsense"})
	s.Require().Equal(KindValidation, KindOf(err))

	_, err = s.svc.Query(s.ctx, ProductQuery{Statuses: []string{"pending"}})
	s.Require().Equal(KindValidation, KindOf(err))

	_, err = s.svc.Query(s.ctx, ProductQuery{Include: []string{"menu"}})
	s.Require().Equal(KindValidation, KindOf(err))

	_, err = s.svc.Query(s.ctx, ProductQuery{Page: 1 << 62, Limit: 4})
	s.Require().Equal(KindValidation, KindOf(err))
}

func (s *CatalogServiceSuite) TestQuery_UnknownIDIsNotFound() {
	_, err := s.svc.Query(s.ctx, ProductQuery{ID: "PD_MISSING"})
	s.Require().Equal(KindNotFound, KindOf(err))

	res, err := s.svc.Query(s.ctx, ProductQuery{Search: "nothing like this"})
	s.Require().NoError(err)
	s.Require().Empty(res.List)
	s.Require().Zero(res.LastPage)
}

func (s *CatalogServiceSuite) TestQuery_OverlaysStagedEditsForUnverified() {
	base := s.createGroup("Noodles", 1)
	child := base.Children[0]
	s.verify(base.ID)

	_, err := s.svc.StageEdit(s.ctx, "merchant1", child.ID, StageEditInput{Attributes: attrs("Udon")})
	s.Require().NoError(err)

	res, err := s.svc.Query(s.ctx, ProductQuery{
		Statuses: []string{"unverified", "verified"},
		OnlyBase: true,
		Include:  []string{"related"},
	})
	s.Require().NoError(err)
	s.Require().Len(res.List, 1)

	got := res.List[0]
	s.Require().Nil(got.ProposedUpdate)
	s.Require().Len(got.Children, 1)
	s.Require().NotNil(got.Children[0].ProposedUpdate)
	s.Require().Equal("Udon", got.Children[0].ProposedUpdate.Attributes.Name)
	s.Require().Equal(child.Name, got.Children[0].Name)

	plain, err := s.svc.Query(s.ctx, ProductQuery{Statuses: []string{"verified"}, Include: []string{"related"}})
	s.Require().NoError(err)
	for _, p := range plain.List {
		s.Require().Nil(p.ProposedUpdate)
		for _, c := range p.Children {
			s.Require().Nil(c.ProposedUpdate)
		}
	}
}

func (s *CatalogServiceSuite) TestQuery_IncludesBase() {
	base := s.createGroup("Pasta", 1)

	res, err := s.svc.Query(s.ctx, ProductQuery{ID: base.Children[0].ID, Include: []string{"base"}})
	s.Require().NoError(err)
	s.Require().Len(res.List, 1)
	s.Require().NotNil(res.List[0].Parent)
	s.Require().Equal(base.ID, res.List[0].Parent.ID)
}

func (s *CatalogServiceSuite) TestGetProduct() {
	base := s.createGroup("Steak", 2)
	s.repo.categories[base.ID] = []domain.Category{{ID: "SC_1", Name: "Grill"}}

	_, err := s.svc.StageEdit(s.ctx, "merchant1", base.ID, StageEditInput{Attributes: attrs("Steak XL")})
	s.Require().NoError(err)

	got, err := s.svc.GetProduct(s.ctx, base.ID)
	s.Require().NoError(err)
	s.Require().Len(got.Children, 2)
	s.Require().Equal("Grill", got.Categories[0].Name)
	s.Require().NotNil(got.ProposedUpdate)
	s.Require().Equal("Steak", got.Name)

	_, err = s.svc.DeleteProducts(s.ctx, []string{base.ID})
	s.Require().NoError(err)

	_, err = s.svc.GetProduct(s.ctx, base.ID)
	s.Require().Equal(KindNotFound, KindOf(err))
}
