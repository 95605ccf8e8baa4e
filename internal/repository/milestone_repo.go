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

// MilestoneRepository stores milestone documents under their escrow. A unique
// index on (escrow_id, percentage) rejects duplicate checkpoints.
type MilestoneRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts all milestones of an escrow in one transaction, so a
// project start never leaves a partial milestone set behind.
func (r *MilestoneRepository) CreateBatch(ctx context.Context, milestones []*model.Milestone) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO milestones (id, escrow_id, project_id, percentage, status, doc, version)
        VALUES ($1, $2, $3, $4, $5, $6, 1)
    `
	for _, m := range milestones {
		doc, err := json.Marshal(m)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, query, m.ID, m.EscrowID, m.ProjectID, m.Percentage, string(m.Status), doc)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			r.logger.Error("Failed to insert milestone", zap.Error(err))
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for _, m := range milestones {
		m.Version = 1
	}
	return nil
}

func (r *MilestoneRepository) Get(ctx context.Context, id string) (*model.Milestone, error) {
	query := `SELECT doc, version FROM milestones WHERE id = $1`

	var doc []byte
	var version int64
	err := r.db.QueryRow(ctx, query, id).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get milestone", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	var m model.Milestone
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("failed to decode milestone doc: %w", err)
	}
	m.Version = version
	return &m, nil
}

func (r *MilestoneRepository) Update(ctx context.Context, m *model.Milestone) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return err
	}

	query := `
        UPDATE milestones
        SET doc = $2, status = $3, version = version + 1, updated_at = NOW()
        WHERE id = $1 AND version = $4
    `
	tag, err := r.db.Exec(ctx, query, m.ID, doc, string(m.Status), m.Version)
	if err != nil {
		r.logger.Error("Failed to update milestone", zap.String("id", m.ID), zap.Error(err))
		return err
	}

	if tag.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, m.ID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}

	m.Version++
	return nil
}

// ListByEscrow returns the escrow's milestones ordered by completion
// percentage, which defines the sequence.
func (r *MilestoneRepository) ListByEscrow(ctx context.Context, escrowID string) ([]*model.Milestone, error) {
	query := `
        SELECT doc, version FROM milestones
        WHERE escrow_id = $1
        ORDER BY percentage ASC
    `
	rows, err := r.db.Query(ctx, query, escrowID)
	if err != nil {
		r.logger.Error("Failed to list milestones", zap.String("escrow_id", escrowID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var milestones []*model.Milestone
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, err
		}
		var m model.Milestone
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, fmt.Errorf("failed to decode milestone doc: %w", err)
		}
		m.Version = version
		milestones = append(milestones, &m)
	}

	return milestones, rows.Err()
}
