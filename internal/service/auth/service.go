package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"renobroker/internal/apperr"
	"renobroker/internal/model"
	"renobroker/internal/repository"
	"renobroker/internal/util"
	"renobroker/pkg/rbac"
)

// UserStore is the user collection of the document store.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type Service struct {
	users     UserStore
	jwtSecret string
	logger    *zap.Logger
}

func NewService(users UserStore, jwtSecret string, logger *zap.Logger) *Service {
	return &Service{
		users:     users,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// Register creates a new account with one of the platform roles.
func (s *Service) Register(ctx context.Context, email, password, name, role string) (*model.User, error) {
	if email == "" || password == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "email and password are required")
	}
	if !rbac.ValidRole(role) {
		return nil, apperr.New(apperr.CodeInvalidInput, "unknown role")
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, apperr.Internal("failed to hash password")
	}

	u := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		CreatedAt:    time.Now(),
	}

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.New(apperr.CodeUserExists, "email already registered")
		}
		s.logger.Error("Failed to create user", zap.Error(err))
		return nil, apperr.Internal("failed to create user")
	}

	s.logger.Info("User registered",
		zap.String("user_id", u.ID),
		zap.String("role", u.Role),
	)
	return u, nil
}

// Login checks credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		// Same error for unknown email and bad password.
		return "", nil, apperr.New(apperr.CodeUnauthorized, "invalid email or password")
	}

	if !util.CheckPassword(password, u.PasswordHash) {
		return "", nil, apperr.New(apperr.CodeUnauthorized, "invalid email or password")
	}

	token, err := util.GenerateJWT(u.ID, u.Role, s.jwtSecret)
	if err != nil {
		s.logger.Error("Failed to sign token", zap.Error(err))
		return "", nil, apperr.Internal("failed to sign token")
	}

	return token, u, nil
}

// GetUser loads an account by id.
func (s *Service) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeUserNotFound, "user not found")
		}
		s.logger.Error("Failed to load user", zap.Error(err))
		return nil, apperr.Internal("failed to load user")
	}
	return u, nil
}
