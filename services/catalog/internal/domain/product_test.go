package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewProduct(t *testing.T) {
	now := time.Now()
	base := NewProduct(ProductAttributes{Name: "Tea"}, "RS_1", nil, now)

	require.True(t, strings.HasPrefix(base.ID, "PD_"))
	require.True(t, base.IsBase())
	require.Equal(t, StatusUnverified, base.Status)
	require.Empty(t, base.ApprovedBy)
	require.Equal(t, int64(1), base.Version)

	child := NewProduct(ProductAttributes{Name: "Tea L"}, "RS_1", &base.ID, now)
	require.False(t, child.IsBase())
	require.NotEqual(t, base.ID, child.ID)
}

func TestProduct_DecideAndReopen(t *testing.T) {
	now := time.Now()
	p := NewProduct(ProductAttributes{Name: "Tea"}, "RS_1", nil, now)

	later := now.Add(time.Minute)
	p.Decide(true, "admin1", later)
	require.Equal(t, StatusVerified, p.Status)
	require.Equal(t, "admin1", p.ApprovedBy)
	require.Equal(t, later, p.UpdatedAt)

	p.Reopen(later)
	require.Equal(t, StatusUnverified, p.Status)
	require.Empty(t, p.ApprovedBy)

	p.Decide(false, "admin1", later)
	require.Equal(t, StatusRejected, p.Status)
	require.Empty(t, p.ApprovedBy)

	p.SoftDelete(later)
	require.Equal(t, StatusDeleted, p.Status)
}

func TestProduct_Group(t *testing.T) {
	now := time.Now()
	base := NewProduct(ProductAttributes{}, "RS_1", nil, now)
	c1 := NewProduct(ProductAttributes{}, "RS_1", &base.ID, now)
	c2 := NewProduct(ProductAttributes{}, "RS_1", &base.ID, now)
	base.Children = []*Product{c1, c2}

	require.Equal(t, []*Product{base, c1, c2}, base.Group())
}

func TestStagedEdit_Abandoned(t *testing.T) {
	now := time.Now()
	p := NewProduct(ProductAttributes{}, "RS_1", nil, now)
	edit := NewStagedEdit(p, ProductAttributes{Name: "x"}, "RS_1", now.Add(-48*time.Hour))

	require.Equal(t, EditPending, edit.State)
	require.Equal(t, p.Version, edit.BaseVersion)
	require.True(t, edit.Abandoned(now, 24*time.Hour))
	require.False(t, edit.Abandoned(now, 72*time.Hour))

	edit.State = EditConsumed
	require.False(t, edit.Abandoned(now, 24*time.Hour))
}
