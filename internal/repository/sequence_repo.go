package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// SequenceRepository hands out monotonic display-code counters. The counter
// lives in the store, so values survive restarts and never collide.
type SequenceRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSequenceRepository(db *pgxpool.Pool, logger *zap.Logger) *SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// Next atomically increments and returns the counter for a scope.
func (r *SequenceRepository) Next(ctx context.Context, scope string) (int64, error) {
	query := `
        INSERT INTO sequences (scope, value)
        VALUES ($1, 1)
        ON CONFLICT (scope) DO UPDATE SET value = sequences.value + 1
        RETURNING value
    `
	var value int64
	err := r.db.QueryRow(ctx, query, scope).Scan(&value)
	if err != nil {
		r.logger.Error("Failed to advance sequence", zap.String("scope", scope), zap.Error(err))
		return 0, err
	}
	return value, nil
}
