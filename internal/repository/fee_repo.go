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

// FeeRepository stores fee transaction documents. A unique index on
// (project_id, bid_id, type) enforces at most one WIN_FEE per pair.
type FeeRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewFeeRepository(db *pgxpool.Pool, logger *zap.Logger) *FeeRepository {
	return &FeeRepository{
		db:     db,
		logger: logger,
	}
}

func (r *FeeRepository) Create(ctx context.Context, f *model.FeeTransaction) error {
	doc, err := json.Marshal(f)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO fee_transactions (id, user_id, project_id, bid_id, fee_type, status, doc, version)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
    `
	_, err = r.db.Exec(ctx, query, f.ID, f.UserID, f.ProjectID, f.BidID, f.Type, string(f.Status), doc)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to insert fee transaction", zap.Error(err))
		return err
	}

	f.Version = 1
	return nil
}

func (r *FeeRepository) Get(ctx context.Context, id string) (*model.FeeTransaction, error) {
	query := `SELECT doc, version FROM fee_transactions WHERE id = $1`

	var doc []byte
	var version int64
	err := r.db.QueryRow(ctx, query, id).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get fee transaction", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	var f model.FeeTransaction
	if err := json.Unmarshal(doc, &f); err != nil {
		return nil, fmt.Errorf("failed to decode fee doc: %w", err)
	}
	f.Version = version
	return &f, nil
}

func (r *FeeRepository) Update(ctx context.Context, f *model.FeeTransaction) error {
	doc, err := json.Marshal(f)
	if err != nil {
		return err
	}

	query := `
        UPDATE fee_transactions
        SET doc = $2, status = $3, version = version + 1, updated_at = NOW()
        WHERE id = $1 AND version = $4
    `
	tag, err := r.db.Exec(ctx, query, f.ID, doc, string(f.Status), f.Version)
	if err != nil {
		r.logger.Error("Failed to update fee transaction", zap.String("id", f.ID), zap.Error(err))
		return err
	}

	if tag.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, f.ID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}

	f.Version++
	return nil
}

func (r *FeeRepository) ListByProject(ctx context.Context, projectID string) ([]*model.FeeTransaction, error) {
	query := `
        SELECT doc, version FROM fee_transactions
        WHERE project_id = $1
        ORDER BY created_at ASC
    `
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list fee transactions", zap.String("project_id", projectID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var fees []*model.FeeTransaction
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, err
		}
		var f model.FeeTransaction
		if err := json.Unmarshal(doc, &f); err != nil {
			return nil, fmt.Errorf("failed to decode fee doc: %w", err)
		}
		f.Version = version
		fees = append(fees, &f)
	}

	return fees, rows.Err()
}

func (r *FeeRepository) ListByUser(ctx context.Context, userID string) ([]*model.FeeTransaction, error) {
	query := `
        SELECT doc, version FROM fee_transactions
        WHERE user_id = $1
        ORDER BY created_at ASC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list fee transactions", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var fees []*model.FeeTransaction
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, err
		}
		var f model.FeeTransaction
		if err := json.Unmarshal(doc, &f); err != nil {
			return nil, fmt.Errorf("failed to decode fee doc: %w", err)
		}
		f.Version = version
		fees = append(fees, &f)
	}

	return fees, rows.Err()
}
