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

// ProjectRepository stores project documents. Each row holds the full entity
// as JSONB plus the columns queries filter on, and a version counter checked
// on every update.
type ProjectRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewProjectRepository(db *pgxpool.Pool, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ProjectRepository) Create(ctx context.Context, p *model.Project) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO projects (id, owner_id, status, doc, version)
        VALUES ($1, $2, $3, $4, 1)
    `
	_, err = r.db.Exec(ctx, query, p.ID, p.OwnerID, string(p.Status), doc)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to insert project", zap.Error(err))
		return err
	}

	p.Version = 1
	return nil
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (*model.Project, error) {
	query := `SELECT doc, version FROM projects WHERE id = $1`

	var doc []byte
	var version int64
	err := r.db.QueryRow(ctx, query, id).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get project", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	var p model.Project
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("failed to decode project doc: %w", err)
	}
	p.Version = version
	return &p, nil
}

// Update writes the document back, guarded by the version read earlier.
// A zero-row update against an existing document means a concurrent writer
// won; the caller must re-read and retry.
func (r *ProjectRepository) Update(ctx context.Context, p *model.Project) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}

	query := `
        UPDATE projects
        SET doc = $2, owner_id = $3, status = $4, version = version + 1, updated_at = NOW()
        WHERE id = $1 AND version = $5
    `
	tag, err := r.db.Exec(ctx, query, p.ID, doc, p.OwnerID, string(p.Status), p.Version)
	if err != nil {
		r.logger.Error("Failed to update project", zap.String("id", p.ID), zap.Error(err))
		return err
	}

	if tag.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, p.ID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}

	p.Version++
	return nil
}

func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete project", zap.String("id", id), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProjectRepository) ListByStatus(ctx context.Context, status model.ProjectStatus, limit int) ([]*model.Project, error) {
	query := `
        SELECT doc, version FROM projects
        WHERE status = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	return r.list(ctx, query, string(status), limit)
}

func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.Project, error) {
	query := `
        SELECT doc, version FROM projects
        WHERE owner_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	return r.list(ctx, query, ownerID, limit)
}

func (r *ProjectRepository) list(ctx context.Context, query string, args ...any) ([]*model.Project, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list projects", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, err
		}
		var p model.Project
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("failed to decode project doc: %w", err)
		}
		p.Version = version
		projects = append(projects, &p)
	}

	return projects, rows.Err()
}
