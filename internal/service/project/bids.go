package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"renobroker/internal/apperr"
	"renobroker/internal/model"
	"renobroker/internal/mq"
	"renobroker/internal/repository"
	"renobroker/pkg/metrics"
)

type BidInput struct {
	Price        int64
	TimelineDays int
	Proposal     string
}

func (in *BidInput) validate() error {
	if in.Price <= 0 {
		return apperr.New(apperr.CodeInvalidInput, "price must be positive")
	}
	if in.TimelineDays <= 0 {
		return apperr.New(apperr.CodeInvalidInput, "timeline_days must be positive")
	}
	return nil
}

// AddBid creates a PENDING bid on an OPEN project. Guards, in order:
// project must be OPEN, the deadline must not have passed, the bid count
// must be under max_bids, and the contractor must not already hold an
// active bid on this project.
func (s *Service) AddBid(ctx context.Context, contractorID, projectID string, in BidInput) (*model.Bid, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	p, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.ProjectOpen {
		return nil, apperr.New(apperr.CodeProjectNotOpen, "project is not open for bidding")
	}
	if p.BidDeadline != nil && !time.Now().Before(*p.BidDeadline) {
		return nil, apperr.New(apperr.CodeBidDeadlinePassed, "bidding deadline has passed")
	}

	count, err := s.bids.CountByProject(ctx, projectID)
	if err != nil {
		return nil, s.internal("failed to count bids", err)
	}
	if count >= p.MaxBids {
		return nil, apperr.New(apperr.CodeBidMaxReached, "project has reached its maximum number of bids")
	}

	active, err := s.HasContractorBid(ctx, projectID, contractorID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, apperr.New(apperr.CodeBidAlreadyActive, "contractor already has an active bid on this project")
	}

	seq, err := s.seq.Next(ctx, model.CodeScopeBid)
	if err != nil {
		return nil, s.internal("failed to allocate bid code", err)
	}

	now := time.Now()
	b := &model.Bid{
		ID:           uuid.NewString(),
		Code:         model.FormatCode(model.CodeScopeBid, seq),
		ProjectID:    projectID,
		ContractorID: contractorID,
		Price:        in.Price,
		TimelineDays: in.TimelineDays,
		Proposal:     in.Proposal,
		Status:       model.BidPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.bids.Create(ctx, b); err != nil {
		return nil, s.internal("failed to create bid", err)
	}

	s.logger.Info("Bid created",
		zap.String("bid_id", b.ID),
		zap.String("project_id", projectID),
		zap.String("contractor_id", contractorID),
	)
	s.emitBid(ctx, b, mq.RoutingKeyBidCreated)
	return b, nil
}

// HasContractorBid reports whether the contractor holds a PENDING, APPROVED
// or SELECTED bid on the project.
func (s *Service) HasContractorBid(ctx context.Context, projectID, contractorID string) (bool, error) {
	bids, err := s.bids.ListByProject(ctx, projectID)
	if err != nil {
		return false, s.internal("failed to list bids", err)
	}
	for _, b := range bids {
		if b.ContractorID == contractorID && b.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

// ApproveBid marks a PENDING bid eligible for selection.
func (s *Service) ApproveBid(ctx context.Context, adminID, projectID, bidID, note string) (*model.Bid, error) {
	return s.reviewBid(ctx, adminID, projectID, bidID, note, model.BidApproved, mq.RoutingKeyBidApproved)
}

// RejectBid declines a PENDING bid.
func (s *Service) RejectBid(ctx context.Context, adminID, projectID, bidID, note string) (*model.Bid, error) {
	return s.reviewBid(ctx, adminID, projectID, bidID, note, model.BidRejected, mq.RoutingKeyBidRejected)
}

func (s *Service) reviewBid(ctx context.Context, adminID, projectID, bidID, note string, target model.BidStatus, routingKey string) (*model.Bid, error) {
	b, err := s.GetBid(ctx, projectID, bidID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BidPending {
		return nil, apperr.New(apperr.CodeBidInvalidStatus, "bid is not pending review")
	}

	now := time.Now()
	if err := s.transitionBid(ctx, b, target, func(b *model.Bid) {
		b.ReviewedBy = adminID
		b.ReviewNote = note
		b.ReviewedAt = &now
	}); err != nil {
		return nil, err
	}

	s.emitBid(ctx, b, routingKey)
	return b, nil
}

// WithdrawBid lets a contractor pull an active, not yet selected bid.
func (s *Service) WithdrawBid(ctx context.Context, contractorID, projectID, bidID string) (*model.Bid, error) {
	b, err := s.GetBid(ctx, projectID, bidID)
	if err != nil {
		return nil, err
	}
	if b.ContractorID != contractorID {
		return nil, apperr.New(apperr.CodeForbidden, "bid belongs to another contractor")
	}
	if b.Status == model.BidSelected {
		return nil, apperr.New(apperr.CodeBidInvalidStatus, "a selected bid cannot be withdrawn")
	}

	now := time.Now()
	if err := s.transitionBid(ctx, b, model.BidWithdrawn, func(b *model.Bid) {
		b.WithdrawnAt = &now
	}); err != nil {
		return nil, err
	}

	s.emitBid(ctx, b, mq.RoutingKeyBidWithdrawn)
	return b, nil
}

// SelectBid marks exactly one APPROVED bid SELECTED and demotes any other
// selected bid back to APPROVED. Called by the match orchestrator.
func (s *Service) SelectBid(ctx context.Context, projectID, bidID string) (*model.Bid, error) {
	chosen, err := s.GetBid(ctx, projectID, bidID)
	if err != nil {
		return nil, err
	}
	if chosen.Status == model.BidSelected {
		// Re-entrant saga step: already done.
		return chosen, nil
	}
	if chosen.Status != model.BidApproved {
		return nil, apperr.New(apperr.CodeBidInvalidStatus, "only an approved bid can be selected")
	}

	bids, err := s.bids.ListByProject(ctx, projectID)
	if err != nil {
		return nil, s.internal("failed to list bids", err)
	}
	for _, sibling := range bids {
		if sibling.ID == bidID || sibling.Status != model.BidSelected {
			continue
		}
		if err := s.transitionBid(ctx, sibling, model.BidApproved, nil); err != nil {
			return nil, err
		}
	}

	if err := s.transitionBid(ctx, chosen, model.BidSelected, nil); err != nil {
		return nil, err
	}

	s.emitBid(ctx, chosen, mq.RoutingKeyBidSelected)
	return chosen, nil
}

// UnselectBid demotes a SELECTED bid back to APPROVED, leaving it eligible
// for a future selection. Compensation path for a rejected match.
func (s *Service) UnselectBid(ctx context.Context, projectID, bidID string) (*model.Bid, error) {
	b, err := s.GetBid(ctx, projectID, bidID)
	if err != nil {
		return nil, err
	}
	if b.Status == model.BidApproved {
		return b, nil
	}
	if b.Status != model.BidSelected {
		return nil, apperr.New(apperr.CodeBidInvalidStatus, "bid is not selected")
	}
	if err := s.transitionBid(ctx, b, model.BidApproved, nil); err != nil {
		return nil, err
	}
	return b, nil
}

// GetBid loads a bid and verifies it belongs to the project.
func (s *Service) GetBid(ctx context.Context, projectID, bidID string) (*model.Bid, error) {
	b, err := s.bids.Get(ctx, bidID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeBidNotFound, "bid not found")
		}
		return nil, s.internal("failed to load bid", err)
	}
	if b.ProjectID != projectID {
		return nil, apperr.New(apperr.CodeBidNotFound, "bid not found on this project")
	}
	return b, nil
}

func (s *Service) ListBids(ctx context.Context, projectID string) ([]*model.Bid, error) {
	bids, err := s.bids.ListByProject(ctx, projectID)
	if err != nil {
		return nil, s.internal("failed to list bids", err)
	}
	return bids, nil
}

func (s *Service) transitionBid(ctx context.Context, b *model.Bid, target model.BidStatus, mutate func(*model.Bid)) error {
	from := b.Status
	if !from.CanTransitionTo(target) {
		metrics.RecordTransition("bid", string(from), string(target), "rejected")
		return apperr.New(apperr.CodeBidInvalidStatus,
			fmt.Sprintf("cannot transition bid from %s to %s", from, target))
	}

	b.Status = target
	if mutate != nil {
		mutate(b)
	}
	b.UpdatedAt = time.Now()

	if err := s.bids.Update(ctx, b); err != nil {
		metrics.RecordTransition("bid", string(from), string(target), "conflict")
		if errors.Is(err, repository.ErrConflict) {
			return apperr.New(apperr.CodeConflict, "bid was modified concurrently, retry")
		}
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.CodeBidNotFound, "bid not found")
		}
		return s.internal("failed to update bid", err)
	}

	metrics.RecordTransition("bid", string(from), string(target), "ok")
	return nil
}

func (s *Service) emitBid(ctx context.Context, b *model.Bid, routingKey string) {
	_ = s.events.Emit(ctx, mq.AggregateBid, b.ID, routingKey, mq.BidEventPayload{
		BidID:        b.ID,
		ProjectID:    b.ProjectID,
		ContractorID: b.ContractorID,
		Status:       string(b.Status),
		Price:        b.Price,
		At:           time.Now(),
	})
}
