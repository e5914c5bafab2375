package domain

import (
	"encoding/json"
	"time"
)

// EventEnvelope is the wire shape of every message on the marketplace topics.
type EventEnvelope struct {
	Event   string          `json:"event"`
	EventID int64           `json:"event_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

const (
	EventMerchantDeactivated = "MerchantDeactivated"

	EventProductCreated    = "ProductCreated"
	EventProductEditStaged = "ProductEditStaged"
	EventProductVerified   = "ProductVerified"
	EventProductRejected   = "ProductRejected"
	EventProductsDeleted   = "ProductsDeleted"
)

type MerchantDeactivatedEvent struct {
	ResidentID    string    `json:"resident_id"`
	DeactivatedAt time.Time `json:"deactivated_at"`
}

type ProductCreatedEvent struct {
	ProductID  string    `json:"product_id"`
	ResidentID string    `json:"resident_id"`
	RelatedIDs []string  `json:"related_ids,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ProductEditStagedEvent struct {
	ProductID  string    `json:"product_id"`
	EditID     string    `json:"edit_id"`
	ProposedBy string    `json:"proposed_by"`
	StagedAt   time.Time `json:"staged_at"`
}

type ProductDecidedEvent struct {
	ProductID  string    `json:"product_id"`
	GroupIDs   []string  `json:"group_ids"`
	Status     string    `json:"status"`
	DecidedBy  string    `json:"decided_by"`
	AppliedIDs []string  `json:"applied_edit_ids,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

type ProductsDeletedEvent struct {
	ProductIDs []string  `json:"product_ids"`
	DeletedAt  time.Time `json:"deleted_at"`
}
