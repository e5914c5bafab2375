package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

type SortField string

const (
	SortByCreatedAt    SortField = "created_at"
	SortByUpdatedAt    SortField = "updated_at"
	SortByName         SortField = "name"
	SortByCode         SortField = "code"
	SortByType         SortField = "type"
	SortByDefaultPrice SortField = "default_price"
	SortByStatus       SortField = "status"
	SortByID           SortField = "id"
)

var sortAliases = map[string]SortField{
	"created_at":    SortByCreatedAt,
	"createddate":   SortByCreatedAt,
	"updated_at":    SortByUpdatedAt,
	"updateddate":   SortByUpdatedAt,
	"name":          SortByName,
	"productname":   SortByName,
	"code":          SortByCode,
	"productcode":   SortByCode,
	"type":          SortByType,
	"producttype":   SortByType,
	"default_price": SortByDefaultPrice,
	"defaultprice":  SortByDefaultPrice,
	"price":         SortByDefaultPrice,
	"status":        SortByStatus,
	"id":            SortByID,
	"productid":     SortByID,
}

type Sort struct {
	Field SortField
	Desc  bool
}

var DefaultSort = Sort{Field: SortByCreatedAt, Desc: true}

// ParseSort reads "+field" / "-field". A bare field sorts ascending; empty input yields DefaultSort.
func ParseSort(raw string) (Sort, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultSort, nil
	}

	sort := Sort{}
	switch raw[0] {
	case '-':
		sort.Desc = true
		raw = raw[1:]
	case '+':
		raw = raw[1:]
	}

	field, ok := sortAliases[strings.ToLower(raw)]
	if !ok {
		return Sort{}, fmt.Errorf("unknown sort field %q", raw)
	}

	sort.Field = field
	return sort, nil
}

type Include string

const (
	IncludeRelated  Include = "related"
	IncludeBase     Include = "base"
	IncludeCategory Include = "category"
)

type IncludeSet map[Include]bool

func ParseInclude(raw []string) (IncludeSet, error) {
	set := IncludeSet{}
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			switch inc := Include(part); inc {
			case "":
			case IncludeRelated, IncludeBase, IncludeCategory:
				set[inc] = true
			default:
				return nil, fmt.Errorf("unknown include %q", part)
			}
		}
	}
	return set, nil
}

// ProductFilter is the storage-level query. Limit <= 0 means no limit.
type ProductFilter struct {
	ID          string
	Statuses    []ProductStatus
	ApartmentID string
	CategoryID  string
	Type        string
	ResidentID  string
	Search      string
	OnlyBase    bool
	Sort        Sort
	Limit       int
	Offset      int
}

func (f ProductFilter) HasStatus(s ProductStatus) bool {
	for _, st := range f.Statuses {
		if st == s {
			return true
		}
	}
	return false
}

type Page[T any] struct {
	List     []T   `json:"list"`
	Page     int   `json:"page"`
	LastPage int   `json:"last_page"`
	Total    int64 `json:"total"`
}

var ErrPageOutOfRange = errors.New("page is out of range")

// PageOffset clamps page to 1 and returns the row offset for it. limit <= 0 always reads from row 0.
func PageOffset(page, limit int) (int, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		return 1, 0, nil
	}
	if page-1 > math.MaxInt/limit {
		return 0, 0, ErrPageOutOfRange
	}
	return page, (page - 1) * limit, nil
}

// LastPage is ceil(total/limit). Without a limit every row sits on page 1.
func LastPage(total int64, limit int) int {
	if total <= 0 {
		return 0
	}
	if limit <= 0 {
		return 1
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
