package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"go.opentelemetry.io/otel/attribute"
)

const stagedEditColumns = `id, product_id, attributes, base_version, proposed_by, state, created_at, resolved_at`

func scanStagedEdit(row pgx.CollectableRow) (*domain.StagedEdit, error) {
	var e domain.StagedEdit
	err := row.Scan(
		&e.ID,
		&e.ProductID,
		&e.Attributes,
		&e.BaseVersion,
		&e.ProposedBy,
		&e.State,
		&e.CreatedAt,
		&e.ResolvedAt,
	)
	return &e, err
}

// PendingEdits returns the pending ledger entry of each product that has one.
func (r *productRepo) PendingEdits(ctx context.Context, productIDs []string) (map[string]*domain.StagedEdit, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.PendingEdits")
	defer span.End()

	span.SetAttributes(attribute.StringSlice("product_ids", productIDs))

	query := `SELECT ` + stagedEditColumns + `
		FROM staged_edits
		WHERE state = 'pending' AND product_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, productIDs)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error selecting pending edits: %w", err)
	}

	edits, err := pgx.CollectRows(rows, scanStagedEdit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error scanning pending edits: %w", err)
	}

	byProduct := make(map[string]*domain.StagedEdit, len(edits))
	for _, e := range edits {
		byProduct[e.ProductID] = e
	}

	return byProduct, nil
}

// ListPendingEdits lists pending edits oldest first. A zero createdBefore lists all of them.
func (r *productRepo) ListPendingEdits(ctx context.Context, createdBefore time.Time) ([]*domain.StagedEdit, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.ListPendingEdits")
	defer span.End()

	query := `SELECT ` + stagedEditColumns + `
		FROM staged_edits
		WHERE state = 'pending'`

	var args []any
	if !createdBefore.IsZero() {
		query += ` AND created_at < $1`
		args = append(args, createdBefore)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error listing pending edits: %w", err)
	}

	edits, err := pgx.CollectRows(rows, scanStagedEdit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error scanning pending edits: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(edits)))
	return edits, nil
}
