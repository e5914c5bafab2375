package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sakashimaa/marketplace/pkg/mylogger"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// Commit persists the unit of work in one transaction. Any conditional write that
// matches no row aborts everything with ErrVersionConflict.
func (r *productRepo) Commit(ctx context.Context, uow *domain.UnitOfWork) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Commit")
	defer span.End()

	span.SetAttributes(
		attribute.Int("uow.inserts", len(uow.Inserts)),
		attribute.Int("uow.updates", len(uow.Updates)),
		attribute.Int("uow.staged_edits", len(uow.StagedEdits)),
		attribute.Int("uow.transitions", len(uow.Transitions)),
		attribute.Int("uow.events", len(uow.Events)),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error starting transaction", zap.Error(err))

		return fmt.Errorf("error starting transaction: %w", err)
	}

	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				r.logger,
				"Error rolling back transaction",
				zap.Error(err),
				zap.String("method_name", "Commit"),
			)
		}
	}()

	if err := r.apply(ctx, tx, uow); err != nil {
		span.RecordError(err)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.TableName == "staged_edits" {
			return fmt.Errorf("%w: concurrent staged edit", ErrVersionConflict)
		}

		if !errors.Is(err, ErrVersionConflict) {
			mylogger.Error(ctx, r.logger, "Error applying unit of work", zap.Error(err))
		}
		return err
	}

	if err := r.outbox.SaveOutboxEvents(ctx, tx, uow.Events); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save outbox events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error commiting transaction", zap.Error(err))

		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, p := range uow.Updates {
		p.Version++
	}

	return nil
}

func (r *productRepo) apply(ctx context.Context, tx pgx.Tx, uow *domain.UnitOfWork) error {
	insertProduct := `
		INSERT INTO products (id, parent_id, resident_id, code, name, type, default_price,
			size, color, weight, image, status, approved_by, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	for _, p := range uow.Inserts {
		_, err := tx.Exec(ctx, insertProduct,
			p.ID, p.ParentID, p.ResidentID, p.Code, p.Name, p.Type, p.DefaultPrice,
			p.Size, p.Color, p.Weight, p.Image, p.Status, p.ApprovedBy, p.Version, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("error creating product %s: %w", p.ID, err)
		}
	}

	updateProduct := `
		UPDATE products
		SET code = $1, name = $2, type = $3, default_price = $4, size = $5, color = $6,
			weight = $7, image = $8, status = $9, approved_by = $10, updated_at = $11,
			version = version + 1
		WHERE id = $12 AND version = $13
	`

	for _, p := range uow.Updates {
		tag, err := tx.Exec(ctx, updateProduct,
			p.Code, p.Name, p.Type, p.DefaultPrice, p.Size, p.Color,
			p.Weight, p.Image, p.Status, p.ApprovedBy, p.UpdatedAt,
			p.ID, p.Version,
		)
		if err != nil {
			return fmt.Errorf("error updating product %s: %w", p.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: product %s at version %d", ErrVersionConflict, p.ID, p.Version)
		}
	}

	supersede := `
		UPDATE staged_edits
		SET state = 'superseded', resolved_at = $2
		WHERE product_id = $1 AND state = 'pending'
	`
	insertEdit := `
		INSERT INTO staged_edits (` + stagedEditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, e := range uow.StagedEdits {
		if _, err := tx.Exec(ctx, supersede, e.ProductID, e.CreatedAt); err != nil {
			return fmt.Errorf("error superseding edits of %s: %w", e.ProductID, err)
		}

		_, err := tx.Exec(ctx, insertEdit,
			e.ID, e.ProductID, e.Attributes, e.BaseVersion, e.ProposedBy, e.State, e.CreatedAt, e.ResolvedAt,
		)
		if err != nil {
			return fmt.Errorf("error staging edit for %s: %w", e.ProductID, err)
		}
	}

	resolve := `
		UPDATE staged_edits
		SET state = $1, resolved_at = $2
		WHERE id = $3 AND state = 'pending'
	`

	for _, t := range uow.Transitions {
		tag, err := tx.Exec(ctx, resolve, t.To, t.At, t.EditID)
		if err != nil {
			return fmt.Errorf("error resolving edit %s: %w", t.EditID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: staged edit %s is no longer pending", ErrVersionConflict, t.EditID)
		}
	}

	return nil
}
