package domain

import "github.com/shopspring/decimal"

// Menu is a merchant's display grouping of products. Each merchant has at most one default menu.
type Menu struct {
	ID         string `json:"id"`
	ResidentID string `json:"resident_id"`
	Name       string `json:"name"`
	IsDefault  bool   `json:"is_default"`
}

type MenuEntry struct {
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
}
