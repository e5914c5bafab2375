package domain

import (
	"time"

	"github.com/google/uuid"
	outboxDomain "github.com/sakashimaa/marketplace/pkg/outbox/domain"
)

type EditTransition struct {
	EditID uuid.UUID
	To     EditState
	At     time.Time
}

// UnitOfWork collects every write of one operation so it is persisted by a single Commit.
// Updated products are written only if their Version still matches the stored row.
type UnitOfWork struct {
	Inserts     []*Product
	Updates     []*Product
	StagedEdits []*StagedEdit
	Transitions []EditTransition
	Events      []*outboxDomain.OutboxEvent
}

func (u *UnitOfWork) Insert(products ...*Product) {
	u.Inserts = append(u.Inserts, products...)
}

func (u *UnitOfWork) Update(products ...*Product) {
	u.Updates = append(u.Updates, products...)
}

func (u *UnitOfWork) Stage(edit *StagedEdit) {
	u.StagedEdits = append(u.StagedEdits, edit)
}

func (u *UnitOfWork) Resolve(edit *StagedEdit, to EditState, at time.Time) {
	u.Transitions = append(u.Transitions, EditTransition{EditID: edit.ID, To: to, At: at})
}

func (u *UnitOfWork) Emit(events ...*outboxDomain.OutboxEvent) {
	u.Events = append(u.Events, events...)
}

func (u *UnitOfWork) Empty() bool {
	return len(u.Inserts) == 0 && len(u.Updates) == 0 && len(u.StagedEdits) == 0 && len(u.Transitions) == 0
}
