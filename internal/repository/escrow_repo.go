package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"renobroker/internal/model"
)

// EscrowRepository stores escrow documents. A unique index on project_id
// enforces at most one escrow per project at the store level.
type EscrowRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewEscrowRepository(db *pgxpool.Pool, logger *zap.Logger) *EscrowRepository {
	return &EscrowRepository{
		db:     db,
		logger: logger,
	}
}

func (r *EscrowRepository) Create(ctx context.Context, e *model.Escrow) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO escrows (id, project_id, bid_id, status, doc, version)
        VALUES ($1, $2, $3, $4, $5, 1)
    `
	_, err = r.db.Exec(ctx, query, e.ID, e.ProjectID, e.BidID, string(e.Status), doc)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to insert escrow", zap.Error(err))
		return err
	}

	e.Version = 1
	return nil
}

func (r *EscrowRepository) Get(ctx context.Context, id string) (*model.Escrow, error) {
	return r.get(ctx, `SELECT doc, version FROM escrows WHERE id = $1`, id)
}

func (r *EscrowRepository) GetByProject(ctx context.Context, projectID string) (*model.Escrow, error) {
	return r.get(ctx, `SELECT doc, version FROM escrows WHERE project_id = $1`, projectID)
}

func (r *EscrowRepository) get(ctx context.Context, query, arg string) (*model.Escrow, error) {
	var doc []byte
	var version int64
	err := r.db.QueryRow(ctx, query, arg).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get escrow", zap.String("key", arg), zap.Error(err))
		return nil, err
	}

	var e model.Escrow
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("failed to decode escrow doc: %w", err)
	}
	e.Version = version
	return &e, nil
}

func (r *EscrowRepository) Update(ctx context.Context, e *model.Escrow) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return err
	}

	query := `
        UPDATE escrows
        SET doc = $2, status = $3, version = version + 1, updated_at = NOW()
        WHERE id = $1 AND version = $4
    `
	tag, err := r.db.Exec(ctx, query, e.ID, doc, string(e.Status), e.Version)
	if err != nil {
		r.logger.Error("Failed to update escrow", zap.String("id", e.ID), zap.Error(err))
		return err
	}

	if tag.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, e.ID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}

	e.Version++
	return nil
}
