package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"renobroker/internal/model"
)

// MatchRunRepository stores the durable saga log, keyed by project id.
type MatchRunRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewMatchRunRepository(db *pgxpool.Pool, logger *zap.Logger) *MatchRunRepository {
	return &MatchRunRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert records the saga's latest completed step and state.
func (r *MatchRunRepository) Upsert(ctx context.Context, run *model.MatchRun) error {
	query := `
        INSERT INTO match_runs (project_id, bid_id, step, state)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (project_id) DO UPDATE
        SET bid_id = $2, step = $3, state = $4, updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query, run.ProjectID, run.BidID, run.Step, run.State)
	if err != nil {
		r.logger.Error("Failed to upsert match run",
			zap.String("project_id", run.ProjectID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// ListByState returns runs in a given state, oldest first. Used by the
// admin view and the resume sweep.
func (r *MatchRunRepository) ListByState(ctx context.Context, state string, limit int) ([]*model.MatchRun, error) {
	query := `
        SELECT project_id, bid_id, step, state, created_at, updated_at
        FROM match_runs
        WHERE state = $1
        ORDER BY updated_at ASC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, state, limit)
	if err != nil {
		r.logger.Error("Failed to list match runs", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var runs []*model.MatchRun
	for rows.Next() {
		var run model.MatchRun
		if err := rows.Scan(
			&run.ProjectID,
			&run.BidID,
			&run.Step,
			&run.State,
			&run.CreatedAt,
			&run.UpdatedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func (r *MatchRunRepository) Get(ctx context.Context, projectID string) (*model.MatchRun, error) {
	query := `
        SELECT project_id, bid_id, step, state, created_at, updated_at
        FROM match_runs
        WHERE project_id = $1
    `
	var run model.MatchRun
	err := r.db.QueryRow(ctx, query, projectID).Scan(
		&run.ProjectID,
		&run.BidID,
		&run.Step,
		&run.State,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get match run",
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		return nil, err
	}
	return &run, nil
}
