package settings

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"renobroker/internal/apperr"
	"renobroker/pkg/config"
)

const (
	policyKey = "settings:policy"
	policyTTL = 5 * time.Minute
)

// Policy is the brokerage policy applied when a bid is matched. Amounts are
// in minor currency units.
type Policy struct {
	Currency            string `json:"currency"`
	EscrowPercentage    int64  `json:"escrow_percentage"`
	EscrowMinAmount     int64  `json:"escrow_min_amount"`
	EscrowMaxAmount     int64  `json:"escrow_max_amount"` // 0 = no cap
	WinFeePercentage    int64  `json:"win_fee_percentage"`
	VerificationFeeFlat int64  `json:"verification_fee_flat"`
}

// EscrowAmount computes the escrow for a winning bid price: a percentage of
// the price clamped into [min, max].
func (p Policy) EscrowAmount(bidPrice int64) int64 {
	amount := bidPrice * p.EscrowPercentage / 100
	if amount < p.EscrowMinAmount {
		amount = p.EscrowMinAmount
	}
	if p.EscrowMaxAmount > 0 && amount > p.EscrowMaxAmount {
		amount = p.EscrowMaxAmount
	}
	return amount
}

// WinFee computes the platform fee owed by the winning contractor.
func (p Policy) WinFee(bidPrice int64) int64 {
	return bidPrice * p.WinFeePercentage / 100
}

func fromConfig(c config.PolicyConfig) Policy {
	return Policy{
		Currency:            c.Currency,
		EscrowPercentage:    c.EscrowPercentage,
		EscrowMinAmount:     c.EscrowMinAmount,
		EscrowMaxAmount:     c.EscrowMaxAmount,
		WinFeePercentage:    c.WinFeePercentage,
		VerificationFeeFlat: c.VerificationFeeFlat,
	}
}

func (p Policy) validate() error {
	if p.Currency == "" {
		return apperr.New(apperr.CodeInvalidInput, "currency is required")
	}
	if p.EscrowPercentage < 0 || p.EscrowPercentage > 100 {
		return apperr.New(apperr.CodeInvalidInput, "escrow_percentage must be between 0 and 100")
	}
	if p.WinFeePercentage < 0 || p.WinFeePercentage > 100 {
		return apperr.New(apperr.CodeInvalidInput, "win_fee_percentage must be between 0 and 100")
	}
	if p.EscrowMinAmount < 0 || p.EscrowMaxAmount < 0 || p.VerificationFeeFlat < 0 {
		return apperr.New(apperr.CodeInvalidInput, "amounts must not be negative")
	}
	if p.EscrowMaxAmount > 0 && p.EscrowMaxAmount < p.EscrowMinAmount {
		return apperr.New(apperr.CodeInvalidInput, "escrow_max_amount must not be below escrow_min_amount")
	}
	return nil
}

// Service resolves the current policy. Admin overrides live in Redis; the
// config file value is the fallback whenever Redis is empty or unreachable,
// so a cache outage never blocks matching.
type Service struct {
	defaults Policy
	cache    *redis.Client
	logger   *zap.Logger
}

func NewService(cfg config.PolicyConfig, cache *redis.Client, logger *zap.Logger) *Service {
	return &Service{
		defaults: fromConfig(cfg),
		cache:    cache,
		logger:   logger,
	}
}

// Policy returns the effective policy.
func (s *Service) Policy(ctx context.Context) Policy {
	if s.cache == nil {
		return s.defaults
	}

	data, err := s.cache.Get(ctx, policyKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("Policy cache read failed, using defaults", zap.Error(err))
		}
		return s.defaults
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn("Policy cache entry malformed, using defaults", zap.Error(err))
		return s.defaults
	}
	return p
}

// Update stores an admin policy override. The TTL keeps a forgotten override
// from outliving the deployment that set it.
func (s *Service) Update(ctx context.Context, p Policy) error {
	if err := p.validate(); err != nil {
		return err
	}
	if s.cache == nil {
		return apperr.Internal("policy overrides require a cache")
	}

	data, err := json.Marshal(p)
	if err != nil {
		return apperr.Internal("failed to encode policy")
	}
	if err := s.cache.Set(ctx, policyKey, data, policyTTL).Err(); err != nil {
		s.logger.Error("Failed to store policy override", zap.Error(err))
		return apperr.Internal("failed to store policy override")
	}

	s.logger.Info("Policy override applied",
		zap.Int64("escrow_percentage", p.EscrowPercentage),
		zap.Int64("win_fee_percentage", p.WinFeePercentage),
	)
	return nil
}

// Reset drops the override and falls back to the config file values.
func (s *Service) Reset(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Del(ctx, policyKey).Err(); err != nil {
		s.logger.Error("Failed to drop policy override", zap.Error(err))
		return apperr.Internal("failed to drop policy override")
	}
	return nil
}
