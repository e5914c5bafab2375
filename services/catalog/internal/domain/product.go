package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const productIDPrefix = "PD_"

type ProductStatus string

const (
	StatusUnverified ProductStatus = "unverified"
	StatusVerified   ProductStatus = "verified"
	StatusRejected   ProductStatus = "rejected"
	StatusDeleted    ProductStatus = "deleted"
)

func ParseStatus(raw string) (ProductStatus, error) {
	switch s := ProductStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusUnverified, StatusVerified, StatusRejected, StatusDeleted:
		return s, nil
	default:
		return "", fmt.Errorf("unknown product status %q", raw)
	}
}

// ProductAttributes is the mutable part of a product, and the full payload of a staged edit.
type ProductAttributes struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	DefaultPrice decimal.Decimal `json:"default_price"`
	Size         string          `json:"size"`
	Color        string          `json:"color"`
	Weight       string          `json:"weight"`
	Image        string          `json:"image"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID         string  `json:"id"`
	ParentID   *string `json:"parent_id"`
	ResidentID string  `json:"resident_id"`
	ProductAttributes
	Status     ProductStatus `json:"status"`
	ApprovedBy string        `json:"approved_by"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Version    int64         `json:"version"`

	Children   []*Product `json:"related,omitempty"`
	Parent     *Product   `json:"base,omitempty"`
	Categories []Category `json:"categories,omitempty"`

	// ProposedUpdate is read-only decoration from the staging cache; it is never persisted.
	ProposedUpdate *ProposedUpdate `json:"proposed_update,omitempty"`
}

type ProposedUpdate struct {
	EditID     uuid.UUID         `json:"edit_id"`
	ProposedBy string            `json:"proposed_by"`
	StagedAt   time.Time         `json:"staged_at"`
	Attributes ProductAttributes `json:"attributes"`
}

func NewProductID() string {
	return productIDPrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:16]
}

// NewProduct builds an unverified product. A non-nil parentID makes it a related product.
func NewProduct(attrs ProductAttributes, residentID string, parentID *string, now time.Time) *Product {
	return &Product{
		ID:                NewProductID(),
		ParentID:          parentID,
		ResidentID:        residentID,
		ProductAttributes: attrs,
		Status:            StatusUnverified,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}
}

func (p *Product) IsBase() bool {
	return p.ParentID == nil
}

// Group returns the product followed by its loaded children.
func (p *Product) Group() []*Product {
	group := make([]*Product, 0, len(p.Children)+1)
	group = append(group, p)
	return append(group, p.Children...)
}

func (p *Product) Decide(approve bool, deciderID string, now time.Time) {
	if approve {
		p.Status = StatusVerified
		p.ApprovedBy = deciderID
	} else {
		p.Status = StatusRejected
		p.ApprovedBy = ""
	}
	p.UpdatedAt = now
}

// Reopen puts the product back into moderation.
func (p *Product) Reopen(now time.Time) {
	p.Status = StatusUnverified
	p.ApprovedBy = ""
	p.UpdatedAt = now
}

func (p *Product) SoftDelete(now time.Time) {
	p.Status = StatusDeleted
	p.ApprovedBy = ""
	p.UpdatedAt = now
}
