package escrow

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

// EscrowStore is the escrow collection of the document store.
type EscrowStore interface {
	Create(ctx context.Context, e *model.Escrow) error
	Get(ctx context.Context, id string) (*model.Escrow, error)
	GetByProject(ctx context.Context, projectID string) (*model.Escrow, error)
	Update(ctx context.Context, e *model.Escrow) error
}

// MilestoneStore is the milestone sub-collection under an escrow.
type MilestoneStore interface {
	CreateBatch(ctx context.Context, milestones []*model.Milestone) error
	Get(ctx context.Context, id string) (*model.Milestone, error)
	Update(ctx context.Context, m *model.Milestone) error
	ListByEscrow(ctx context.Context, escrowID string) ([]*model.Milestone, error)
}

// Sequencer hands out persisted display-code counters.
type Sequencer interface {
	Next(ctx context.Context, scope string) (int64, error)
}

// Service is the escrow ledger: escrow and milestone state machines plus
// the append-only transaction log per escrow.
type Service struct {
	escrows    EscrowStore
	milestones MilestoneStore
	seq        Sequencer
	events     events.Sink
	logger     *zap.Logger
}

func NewService(escrows EscrowStore, milestones MilestoneStore, seq Sequencer, sink events.Sink, logger *zap.Logger) *Service {
	return &Service{
		escrows:    escrows,
		milestones: milestones,
		seq:        seq,
		events:     sink,
		logger:     logger,
	}
}

type CreateInput struct {
	ID           string // deterministic: derived from projectID+bidID by the orchestrator
	ProjectID    string
	BidID        string
	HomeownerID  string
	ContractorID string
	Amount       int64
	Currency     string
	ActorID      string
}

// Create opens a PENDING escrow with an initial DEPOSIT log entry. Creation
// is idempotent: if an escrow already exists for the project and matches the
// same bid, it is returned as-is, so a retried match saga converges.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Escrow, error) {
	if in.Amount <= 0 {
		return nil, apperr.New(apperr.CodeEscrowInvalidAmount, "escrow amount must be positive")
	}

	seq, err := s.seq.Next(ctx, model.CodeScopeEscrow)
	if err != nil {
		return nil, s.internal("failed to allocate escrow code", err)
	}

	now := time.Now()
	e := &model.Escrow{
		ID:           in.ID,
		Code:         model.FormatCode(model.CodeScopeEscrow, seq),
		ProjectID:    in.ProjectID,
		BidID:        in.BidID,
		HomeownerID:  in.HomeownerID,
		ContractorID: in.ContractorID,
		Amount:       in.Amount,
		Currency:     in.Currency,
		Status:       model.EscrowPending,
		Transactions: []model.EscrowTransaction{{
			Type:    model.EscrowTxDeposit,
			Amount:  in.Amount,
			ActorID: in.ActorID,
			Note:    "escrow opened",
			At:      now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.escrows.Create(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, getErr := s.escrows.GetByProject(ctx, in.ProjectID)
			if getErr != nil {
				return nil, s.internal("failed to load existing escrow", getErr)
			}
			if existing.BidID == in.BidID {
				return existing, nil
			}
			return nil, apperr.New(apperr.CodeEscrowExists, "project already has an escrow for another bid")
		}
		return nil, s.internal("failed to create escrow", err)
	}

	s.logger.Info("Escrow created",
		zap.String("escrow_id", e.ID),
		zap.String("project_id", e.ProjectID),
		zap.Int64("amount", e.Amount),
	)
	return e, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Escrow, error) {
	e, err := s.escrows.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeEscrowNotFound, "escrow not found")
		}
		return nil, s.internal("failed to load escrow", err)
	}
	return e, nil
}

func (s *Service) GetByProject(ctx context.Context, projectID string) (*model.Escrow, error) {
	e, err := s.escrows.GetByProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeEscrowNotFound, "escrow not found")
		}
		return nil, s.internal("failed to load escrow", err)
	}
	return e, nil
}

// ConfirmDeposit acknowledges funds: PENDING -> HELD.
func (s *Service) ConfirmDeposit(ctx context.Context, adminID, escrowID, note string) (*model.Escrow, error) {
	e, err := s.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, e, model.EscrowHeld, model.EscrowTransaction{
		Type:    model.EscrowTxDeposit,
		Amount:  e.Amount,
		ActorID: adminID,
		Note:    note,
		At:      time.Now(),
	}); err != nil {
		return nil, err
	}

	s.emit(ctx, e, mq.RoutingKeyEscrowHeld)
	return e, nil
}

// Release pays out everything still held: HELD / PARTIAL_RELEASED /
// DISPUTED -> RELEASED.
func (s *Service) Release(ctx context.Context, adminID, escrowID, note string) (*model.Escrow, error) {
	e, err := s.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	remainder := e.Remaining()
	if err := s.transition(ctx, e, model.EscrowReleased, model.EscrowTransaction{
		Type:    model.EscrowTxRelease,
		Amount:  remainder,
		ActorID: adminID,
		Note:    note,
		At:      time.Now(),
	}, func(e *model.Escrow) {
		e.ReleasedAmount = e.Amount
	}); err != nil {
		return nil, err
	}

	metrics.RecordEscrowRelease(e.Currency, remainder)
	s.emit(ctx, e, mq.RoutingKeyEscrowReleased)
	return e, nil
}

// PartialRelease pays out part of the held amount. The resulting status is
// RELEASED when the cumulative released amount reaches the escrow amount,
// PARTIAL_RELEASED otherwise.
func (s *Service) PartialRelease(ctx context.Context, adminID, escrowID string, amount int64, note string) (*model.Escrow, error) {
	e, err := s.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	if amount <= 0 || amount > e.Remaining() {
		return nil, apperr.New(apperr.CodeEscrowInvalidAmount,
			fmt.Sprintf("release amount must be between 1 and the remaining %d", e.Remaining()))
	}
	if e.Status != model.EscrowHeld && e.Status != model.EscrowPartialReleased {
		return nil, apperr.New(apperr.CodeEscrowInvalidTransition,
			fmt.Sprintf("cannot partially release escrow in status %s", e.Status))
	}

	target := model.EscrowPartialReleased
	if e.ReleasedAmount+amount == e.Amount {
		target = model.EscrowReleased
	}

	if err := s.transition(ctx, e, target, model.EscrowTransaction{
		Type:    model.EscrowTxRelease,
		Amount:  amount,
		ActorID: adminID,
		Note:    note,
		At:      time.Now(),
	}, func(e *model.Escrow) {
		e.ReleasedAmount += amount
	}); err != nil {
		return nil, err
	}

	metrics.RecordEscrowRelease(e.Currency, amount)
	if target == model.EscrowReleased {
		s.emit(ctx, e, mq.RoutingKeyEscrowReleased)
	} else {
		s.emit(ctx, e, mq.RoutingKeyEscrowPartialReleased)
	}
	return e, nil
}

// Refund returns the unreleased remainder: HELD / PARTIAL_RELEASED /
// DISPUTED -> REFUNDED.
func (s *Service) Refund(ctx context.Context, adminID, escrowID, reason string) (*model.Escrow, error) {
	e, err := s.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, e, model.EscrowRefunded, model.EscrowTransaction{
		Type:    model.EscrowTxRefund,
		Amount:  e.Remaining(),
		ActorID: adminID,
		Note:    reason,
		At:      time.Now(),
	}); err != nil {
		return nil, err
	}

	s.emit(ctx, e, mq.RoutingKeyEscrowRefunded)
	return e, nil
}

// MarkDisputed freezes an escrow: HELD / PARTIAL_RELEASED -> DISPUTED.
// Only the two parties holding a stake may freeze it.
func (s *Service) MarkDisputed(ctx context.Context, userID, escrowID, reason string) (*model.Escrow, error) {
	e, err := s.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if userID != e.HomeownerID && userID != e.ContractorID {
		return nil, apperr.New(apperr.CodeForbidden, "only the escrow participants can open a dispute")
	}
	if e.Status != model.EscrowHeld && e.Status != model.EscrowPartialReleased {
		return nil, apperr.New(apperr.CodeEscrowInvalidTransition,
			fmt.Sprintf("cannot dispute escrow in status %s", e.Status))
	}

	if err := s.transition(ctx, e, model.EscrowDisputed, model.EscrowTransaction{
		Type:    model.EscrowTxAdjustment,
		Amount:  0,
		ActorID: userID,
		Note:    "dispute: " + reason,
		At:      time.Now(),
	}); err != nil {
		return nil, err
	}

	s.emit(ctx, e, mq.RoutingKeyEscrowDisputed)
	return e, nil
}

// Dispute resolutions.
const (
	ResolutionRelease = "RELEASE"
	ResolutionRefund  = "REFUND"
)

// ResolveDispute settles a DISPUTED escrow as a full release or a refund.
func (s *Service) ResolveDispute(ctx context.Context, adminID, escrowID, resolution, note string) (*model.Escrow, error) {
	e, err := s.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if e.Status != model.EscrowDisputed {
		return nil, apperr.New(apperr.CodeEscrowInvalidTransition, "escrow is not disputed")
	}

	switch resolution {
	case ResolutionRelease:
		return s.Release(ctx, adminID, escrowID, note)
	case ResolutionRefund:
		return s.Refund(ctx, adminID, escrowID, note)
	default:
		return nil, apperr.New(apperr.CodeInvalidInput, "resolution must be RELEASE or REFUND")
	}
}

// Cancel voids an escrow that never held funds: PENDING -> CANCELLED.
func (s *Service) Cancel(ctx context.Context, adminID, escrowID, reason string) (*model.Escrow, error) {
	e, err := s.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if e.Status != model.EscrowPending {
		return nil, apperr.New(apperr.CodeEscrowInvalidTransition, "only a pending escrow can be cancelled")
	}

	if err := s.transition(ctx, e, model.EscrowCancelled, model.EscrowTransaction{
		Type:    model.EscrowTxAdjustment,
		Amount:  0,
		ActorID: adminID,
		Note:    reason,
		At:      time.Now(),
	}); err != nil {
		return nil, err
	}

	s.emit(ctx, e, mq.RoutingKeyEscrowCancelled)
	return e, nil
}

// transition validates the edge, appends the log entry, applies extra
// mutations and writes under the version guard.
func (s *Service) transition(ctx context.Context, e *model.Escrow, target model.EscrowStatus, entry model.EscrowTransaction, mutate ...func(*model.Escrow)) error {
	from := e.Status
	if !from.CanTransitionTo(target) {
		metrics.RecordTransition("escrow", string(from), string(target), "rejected")
		return apperr.New(apperr.CodeEscrowInvalidTransition,
			fmt.Sprintf("cannot transition escrow from %s to %s", from, target))
	}

	e.Status = target
	e.Transactions = append(e.Transactions, entry)
	for _, fn := range mutate {
		fn(e)
	}
	e.UpdatedAt = time.Now()

	if err := s.escrows.Update(ctx, e); err != nil {
		metrics.RecordTransition("escrow", string(from), string(target), "conflict")
		if errors.Is(err, repository.ErrConflict) {
			return apperr.New(apperr.CodeConflict, "escrow was modified concurrently, retry")
		}
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.CodeEscrowNotFound, "escrow not found")
		}
		return s.internal("failed to update escrow", err)
	}

	metrics.RecordTransition("escrow", string(from), string(target), "ok")
	return nil
}

func (s *Service) emit(ctx context.Context, e *model.Escrow, routingKey string) {
	_ = s.events.Emit(ctx, mq.AggregateEscrow, e.ID, routingKey, mq.EscrowEventPayload{
		EscrowID:       e.ID,
		ProjectID:      e.ProjectID,
		HomeownerID:    e.HomeownerID,
		Status:         string(e.Status),
		Amount:         e.Amount,
		ReleasedAmount: e.ReleasedAmount,
		Currency:       e.Currency,
		At:             time.Now(),
	})
}

func (s *Service) internal(msg string, err error) error {
	s.logger.Error(msg, zap.Error(err))
	return apperr.Internal(msg)
}
