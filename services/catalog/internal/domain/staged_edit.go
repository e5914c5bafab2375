package domain

import (
	"time"

	"github.com/google/uuid"
)

type EditState string

const (
	EditPending    EditState = "pending"
	EditConsumed   EditState = "consumed"
	EditDiscarded  EditState = "discarded"
	EditSuperseded EditState = "superseded"
)

// StagedEdit is a proposed replacement attribute set awaiting a moderation decision.
// At most one edit per product is pending; staging a new one supersedes the old.
type StagedEdit struct {
	ID          uuid.UUID         `json:"id"`
	ProductID   string            `json:"product_id"`
	Attributes  ProductAttributes `json:"attributes"`
	BaseVersion int64             `json:"base_version"`
	ProposedBy  string            `json:"proposed_by"`
	State       EditState         `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
}

func NewStagedEdit(product *Product, attrs ProductAttributes, proposedBy string, now time.Time) *StagedEdit {
	return &StagedEdit{
		ID:          uuid.New(),
		ProductID:   product.ID,
		Attributes:  attrs,
		BaseVersion: product.Version,
		ProposedBy:  proposedBy,
		State:       EditPending,
		CreatedAt:   now,
	}
}

func (e *StagedEdit) Proposal() *ProposedUpdate {
	return &ProposedUpdate{
		EditID:     e.ID,
		ProposedBy: e.ProposedBy,
		StagedAt:   e.CreatedAt,
		Attributes: e.Attributes,
	}
}

func (e *StagedEdit) Abandoned(now time.Time, after time.Duration) bool {
	return e.State == EditPending && now.Sub(e.CreatedAt) > after
}
