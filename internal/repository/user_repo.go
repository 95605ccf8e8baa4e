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

type UserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO users (id, email, role, password_hash, doc, version)
        VALUES ($1, $2, $3, $4, $5, 1)
    `
	_, err = r.db.Exec(ctx, query, u.ID, u.Email, u.Role, u.PasswordHash, doc)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to insert user", zap.Error(err))
		return err
	}

	u.Version = 1
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.get(ctx, `SELECT doc, password_hash, version FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.get(ctx, `SELECT doc, password_hash, version FROM users WHERE email = $1`, email)
}

func (r *UserRepository) get(ctx context.Context, query, arg string) (*model.User, error) {
	var doc []byte
	var hash string
	var version int64
	err := r.db.QueryRow(ctx, query, arg).Scan(&doc, &hash, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get user", zap.Error(err))
		return nil, err
	}

	var u model.User
	if err := json.Unmarshal(doc, &u); err != nil {
		return nil, fmt.Errorf("failed to decode user doc: %w", err)
	}
	u.PasswordHash = hash
	u.Version = version
	return &u, nil
}
