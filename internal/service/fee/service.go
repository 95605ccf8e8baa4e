package fee

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"renobroker/internal/apperr"
	"renobroker/internal/events"
	"renobroker/internal/model"
	"renobroker/internal/mq"
	"renobroker/internal/repository"
	"renobroker/pkg/metrics"
)

// FeeStore is the fee transaction collection of the document store.
type FeeStore interface {
	Create(ctx context.Context, f *model.FeeTransaction) error
	Get(ctx context.Context, id string) (*model.FeeTransaction, error)
	Update(ctx context.Context, f *model.FeeTransaction) error
	ListByProject(ctx context.Context, projectID string) ([]*model.FeeTransaction, error)
	ListByUser(ctx context.Context, userID string) ([]*model.FeeTransaction, error)
}

// Sequencer hands out persisted display-code counters.
type Sequencer interface {
	Next(ctx context.Context, scope string) (int64, error)
}

// Service is the platform fee ledger.
type Service struct {
	fees   FeeStore
	seq    Sequencer
	events events.Sink
	logger *zap.Logger
}

func NewService(fees FeeStore, seq Sequencer, sink events.Sink, logger *zap.Logger) *Service {
	return &Service{
		fees:   fees,
		seq:    seq,
		events: sink,
		logger: logger,
	}
}

type CreateInput struct {
	ID        string // deterministic for WIN_FEE, random otherwise
	UserID    string
	ProjectID string
	BidID     string
	Type      string
	Amount    int64
	Currency  string
}

// Create records a PENDING fee. Win fee creation is idempotent on the
// (project, bid, type) key: a retried saga step gets the existing record.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.FeeTransaction, error) {
	if in.Amount <= 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "fee amount must be positive")
	}
	if in.Type != model.FeeTypeWin && in.Type != model.FeeTypeVerification {
		return nil, apperr.New(apperr.CodeInvalidInput, "unknown fee type")
	}

	seq, err := s.seq.Next(ctx, model.CodeScopeFee)
	if err != nil {
		return nil, s.internal("failed to allocate fee code", err)
	}

	now := time.Now()
	f := &model.FeeTransaction{
		ID:        in.ID,
		Code:      model.FormatCode(model.CodeScopeFee, seq),
		UserID:    in.UserID,
		ProjectID: in.ProjectID,
		BidID:     in.BidID,
		Type:      in.Type,
		Amount:    in.Amount,
		Currency:  in.Currency,
		Status:    model.FeePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.fees.Create(ctx, f); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, getErr := s.fees.Get(ctx, in.ID)
			if getErr == nil {
				return existing, nil
			}
			return nil, apperr.New(apperr.CodeFeeExists, "fee already recorded for this project and bid")
		}
		return nil, s.internal("failed to create fee", err)
	}

	s.logger.Info("Fee created",
		zap.String("fee_id", f.ID),
		zap.String("type", f.Type),
		zap.String("user_id", f.UserID),
		zap.Int64("amount", f.Amount),
	)
	return f, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.FeeTransaction, error) {
	f, err := s.fees.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeFeeNotFound, "fee not found")
		}
		return nil, s.internal("failed to load fee", err)
	}
	return f, nil
}

// MarkPaid settles a PENDING fee.
func (s *Service) MarkPaid(ctx context.Context, adminID, feeID string) (*model.FeeTransaction, error) {
	f, err := s.Get(ctx, feeID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.transition(ctx, f, model.FeePaid, func(f *model.FeeTransaction) {
		f.PaidAt = &now
		f.PaidBy = adminID
	}); err != nil {
		return nil, err
	}

	s.emit(ctx, f, mq.RoutingKeyFeePaid)
	return f, nil
}

// Cancel voids a PENDING fee, the compensation path for a rejected match.
func (s *Service) Cancel(ctx context.Context, adminID, feeID, reason string) (*model.FeeTransaction, error) {
	f, err := s.Get(ctx, feeID)
	if err != nil {
		return nil, err
	}
	if f.Status == model.FeeCancelled {
		return f, nil
	}

	now := time.Now()
	if err := s.transition(ctx, f, model.FeeCancelled, func(f *model.FeeTransaction) {
		f.CancelledAt = &now
		f.CancelledBy = adminID
		f.CancelReason = reason
	}); err != nil {
		return nil, err
	}

	s.emit(ctx, f, mq.RoutingKeyFeeCancelled)
	return f, nil
}

func (s *Service) ListByProject(ctx context.Context, projectID string) ([]*model.FeeTransaction, error) {
	fees, err := s.fees.ListByProject(ctx, projectID)
	if err != nil {
		return nil, s.internal("failed to list fees", err)
	}
	return fees, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*model.FeeTransaction, error) {
	fees, err := s.fees.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.internal("failed to list fees", err)
	}
	return fees, nil
}

func (s *Service) transition(ctx context.Context, f *model.FeeTransaction, target model.FeeStatus, mutate func(*model.FeeTransaction)) error {
	from := f.Status
	if !from.CanTransitionTo(target) {
		metrics.RecordTransition("fee", string(from), string(target), "rejected")
		return apperr.New(apperr.CodeFeeInvalidTransition,
			fmt.Sprintf("cannot transition fee from %s to %s", from, target))
	}

	f.Status = target
	if mutate != nil {
		mutate(f)
	}
	f.UpdatedAt = time.Now()

	if err := s.fees.Update(ctx, f); err != nil {
		metrics.RecordTransition("fee", string(from), string(target), "conflict")
		if errors.Is(err, repository.ErrConflict) {
			return apperr.New(apperr.CodeConflict, "fee was modified concurrently, retry")
		}
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.CodeFeeNotFound, "fee not found")
		}
		return s.internal("failed to update fee", err)
	}

	metrics.RecordTransition("fee", string(from), string(target), "ok")
	return nil
}

func (s *Service) emit(ctx context.Context, f *model.FeeTransaction, routingKey string) {
	_ = s.events.Emit(ctx, mq.AggregateFee, f.ID, routingKey, mq.FeeEventPayload{
		FeeID:     f.ID,
		UserID:    f.UserID,
		ProjectID: f.ProjectID,
		Type:      f.Type,
		Status:    string(f.Status),
		Amount:    f.Amount,
		At:        time.Now(),
	})
}

func (s *Service) internal(msg string, err error) error {
	s.logger.Error(msg, zap.Error(err))
	return apperr.Internal(msg)
}
