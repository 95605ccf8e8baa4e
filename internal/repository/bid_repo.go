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

// BidRepository stores bid documents, scoped to their project.
type BidRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewBidRepository(db *pgxpool.Pool, logger *zap.Logger) *BidRepository {
	return &BidRepository{
		db:     db,
		logger: logger,
	}
}

func (r *BidRepository) Create(ctx context.Context, b *model.Bid) error {
	doc, err := json.Marshal(b)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO bids (id, project_id, contractor_id, status, doc, version)
        VALUES ($1, $2, $3, $4, $5, 1)
    `
	_, err = r.db.Exec(ctx, query, b.ID, b.ProjectID, b.ContractorID, string(b.Status), doc)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to insert bid", zap.Error(err))
		return err
	}

	b.Version = 1
	return nil
}

func (r *BidRepository) Get(ctx context.Context, id string) (*model.Bid, error) {
	query := `SELECT doc, version FROM bids WHERE id = $1`

	var doc []byte
	var version int64
	err := r.db.QueryRow(ctx, query, id).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get bid", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	var b model.Bid
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, fmt.Errorf("failed to decode bid doc: %w", err)
	}
	b.Version = version
	return &b, nil
}

func (r *BidRepository) Update(ctx context.Context, b *model.Bid) error {
	doc, err := json.Marshal(b)
	if err != nil {
		return err
	}

	query := `
        UPDATE bids
        SET doc = $2, status = $3, version = version + 1, updated_at = NOW()
        WHERE id = $1 AND version = $4
    `
	tag, err := r.db.Exec(ctx, query, b.ID, doc, string(b.Status), b.Version)
	if err != nil {
		r.logger.Error("Failed to update bid", zap.String("id", b.ID), zap.Error(err))
		return err
	}

	if tag.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, b.ID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}

	b.Version++
	return nil
}

func (r *BidRepository) ListByProject(ctx context.Context, projectID string) ([]*model.Bid, error) {
	query := `
        SELECT doc, version FROM bids
        WHERE project_id = $1
        ORDER BY created_at ASC
    `
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list bids", zap.String("project_id", projectID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var bids []*model.Bid
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, err
		}
		var b model.Bid
		if err := json.Unmarshal(doc, &b); err != nil {
			return nil, fmt.Errorf("failed to decode bid doc: %w", err)
		}
		b.Version = version
		bids = append(bids, &b)
	}

	return bids, rows.Err()
}

func (r *BidRepository) CountByProject(ctx context.Context, projectID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM bids WHERE project_id = $1`, projectID,
	).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count bids", zap.String("project_id", projectID), zap.Error(err))
		return 0, err
	}
	return count, nil
}
