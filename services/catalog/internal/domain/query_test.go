package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSort(t *testing.T) {
	s, err := ParseSort("")
	require.NoError(t, err)
	require.Equal(t, DefaultSort, s)

	s, err = ParseSort("+name")
	require.NoError(t, err)
	require.Equal(t, Sort{Field: SortByName}, s)

	s, err = ParseSort("-ProductName")
	require.NoError(t, err)
	require.Equal(t, Sort{Field: SortByName, Desc: true}, s)

	s, err = ParseSort("price")
	require.NoError(t, err)
	require.Equal(t, Sort{Field: SortByDefaultPrice}, s)

	_, err = ParseSort("-password")
	require.Error(t, err)
}

func TestParseInclude(t *testing.T) {
	set, err := ParseInclude([]string{"related,category", " base "})
	require.NoError(t, err)
	require.True(t, set[IncludeRelated])
	require.True(t, set[IncludeBase])
	require.True(t, set[IncludeCategory])

	_, err = ParseInclude([]string{"orders"})
	require.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Verified ")
	require.NoError(t, err)
	require.Equal(t, StatusVerified, s)

	_, err = ParseStatus("archived")
	require.Error(t, err)
}

func TestLastPage(t *testing.T) {
	require.Equal(t, 0, LastPage(0, 10))
	require.Equal(t, 1, LastPage(10, 10))
	require.Equal(t, 2, LastPage(11, 10))
	require.Equal(t, 4, LastPage(7, 2))
	require.Equal(t, 1, LastPage(7, 0))
	require.Equal(t, 1, LastPage(7, -3))
}

func TestPageOffset(t *testing.T) {
	page, offset, err := PageOffset(0, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page)
	require.Equal(t, 0, offset)

	page, offset, err = PageOffset(3, 10)
	require.NoError(t, err)
	require.Equal(t, 3, page)
	require.Equal(t, 20, offset)

	page, offset, err = PageOffset(5, 0)
	require.NoError(t, err)
	require.Equal(t, 1, page)
	require.Equal(t, 0, offset)
}

func TestPageOffset_Overflow(t *testing.T) {
	_, _, err := PageOffset(1<<62, 4)
	require.ErrorIs(t, err, ErrPageOutOfRange)

	_, _, err = PageOffset(2, math.MaxInt)
	require.ErrorIs(t, err, ErrPageOutOfRange)

	_, offset, err := PageOffset(2, math.MaxInt/2)
	require.NoError(t, err)
	require.GreaterOrEqual(t, offset, 0)
}
