package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"renobroker/internal/apperr"
	"renobroker/internal/model"
	"renobroker/internal/repository"
	"renobroker/pkg/metrics"
)

// CreateMilestones attaches a checkpoint plan to an escrow. The release
// percentages must sum to 100 and the completion percentages must be
// strictly increasing. Called once, when the project starts.
func (s *Service) CreateMilestones(ctx context.Context, escrowID string, defs []model.MilestoneDef) ([]*model.Milestone, error) {
	e, err := s.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	if len(defs) == 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "at least one milestone is required")
	}

	existing, err := s.milestones.ListByEscrow(ctx, escrowID)
	if err != nil {
		return nil, s.internal("failed to list milestones", err)
	}
	if len(existing) > 0 {
		return nil, apperr.New(apperr.CodeMilestoneDuplicate, "escrow already has milestones")
	}

	releaseSum := 0
	lastPct := 0
	for _, d := range defs {
		if d.Percentage <= lastPct || d.Percentage > 100 {
			return nil, apperr.New(apperr.CodeInvalidInput,
				"milestone percentages must be strictly increasing and at most 100")
		}
		if d.ReleasePercentage < 0 || d.ReleasePercentage > 100 {
			return nil, apperr.New(apperr.CodeMilestoneInvalidShares,
				"release percentage must be between 0 and 100")
		}
		lastPct = d.Percentage
		releaseSum += d.ReleasePercentage
	}
	if releaseSum != 100 {
		return nil, apperr.New(apperr.CodeMilestoneInvalidShares,
			fmt.Sprintf("release percentages must sum to 100, got %d", releaseSum))
	}

	now := time.Now()
	out := make([]*model.Milestone, 0, len(defs))
	for _, d := range defs {
		out = append(out, &model.Milestone{
			ID:                uuid.NewString(),
			EscrowID:          e.ID,
			ProjectID:         e.ProjectID,
			Name:              d.Name,
			Percentage:        d.Percentage,
			ReleasePercentage: d.ReleasePercentage,
			Status:            model.MilestonePending,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	if err := s.milestones.CreateBatch(ctx, out); err != nil {
		return nil, s.internal("failed to create milestones", err)
	}

	s.logger.Info("Milestones created",
		zap.String("escrow_id", e.ID),
		zap.Int("count", len(out)),
	)
	return out, nil
}

func (s *Service) ListMilestones(ctx context.Context, escrowID string) ([]*model.Milestone, error) {
	ms, err := s.milestones.ListByEscrow(ctx, escrowID)
	if err != nil {
		return nil, s.internal("failed to list milestones", err)
	}
	return ms, nil
}

// RequestCompletion lets the matched contractor claim a milestone is done.
// Every earlier milestone must already be CONFIRMED, requests go in order.
func (s *Service) RequestCompletion(ctx context.Context, contractorID, milestoneID string) (*model.Milestone, error) {
	m, err := s.getMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if err := s.checkMilestoneContractor(ctx, m, contractorID); err != nil {
		return nil, err
	}
	if m.Status != model.MilestonePending {
		return nil, apperr.New(apperr.CodeMilestoneInvalidStatus,
			fmt.Sprintf("milestone is %s, only a pending milestone can be requested", m.Status))
	}

	siblings, err := s.milestones.ListByEscrow(ctx, m.EscrowID)
	if err != nil {
		return nil, s.internal("failed to list milestones", err)
	}
	for _, sib := range siblings {
		if sib.Percentage < m.Percentage && sib.Status != model.MilestoneConfirmed {
			return nil, apperr.New(apperr.CodeMilestoneOrderViolation,
				fmt.Sprintf("milestone %q at %d%% is not confirmed yet", sib.Name, sib.Percentage))
		}
	}

	now := time.Now()
	if err := s.transitionMilestone(ctx, m, model.MilestoneRequested, func(m *model.Milestone) {
		m.RequestedAt = &now
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Milestone completion requested",
		zap.String("milestone_id", m.ID),
		zap.String("contractor_id", contractorID),
	)
	return m, nil
}

// ConfirmCompletion is the homeowner accepting a requested milestone. It
// does not move funds; releases are a separate admin action against the
// escrow.
func (s *Service) ConfirmCompletion(ctx context.Context, homeownerID, milestoneID string) (*model.Milestone, error) {
	m, err := s.getMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if m.Status != model.MilestoneRequested {
		return nil, apperr.New(apperr.CodeMilestoneInvalidStatus, "milestone completion has not been requested")
	}
	if err := s.checkMilestoneOwner(ctx, m, homeownerID); err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.transitionMilestone(ctx, m, model.MilestoneConfirmed, func(m *model.Milestone) {
		m.ConfirmedAt = &now
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Milestone confirmed", zap.String("milestone_id", m.ID))
	return m, nil
}

// DisputeMilestone is the homeowner contesting a requested milestone.
func (s *Service) DisputeMilestone(ctx context.Context, homeownerID, milestoneID, reason string) (*model.Milestone, error) {
	m, err := s.getMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if m.Status != model.MilestoneRequested {
		return nil, apperr.New(apperr.CodeMilestoneInvalidStatus, "milestone completion has not been requested")
	}
	if err := s.checkMilestoneOwner(ctx, m, homeownerID); err != nil {
		return nil, err
	}

	if err := s.transitionMilestone(ctx, m, model.MilestoneDisputed, func(m *model.Milestone) {
		m.DisputeReason = reason
	}); err != nil {
		return nil, err
	}

	s.logger.Warn("Milestone disputed",
		zap.String("milestone_id", m.ID),
		zap.String("reason", reason),
	)
	return m, nil
}

// ReleaseShare returns how much money a milestone's release share is worth
// against its escrow amount.
func (s *Service) ReleaseShare(e *model.Escrow, m *model.Milestone) int64 {
	return e.Amount * int64(m.ReleasePercentage) / 100
}

func (s *Service) getMilestone(ctx context.Context, id string) (*model.Milestone, error) {
	m, err := s.milestones.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeMilestoneNotFound, "milestone not found")
		}
		return nil, s.internal("failed to load milestone", err)
	}
	return m, nil
}

func (s *Service) checkMilestoneOwner(ctx context.Context, m *model.Milestone, homeownerID string) error {
	e, err := s.Get(ctx, m.EscrowID)
	if err != nil {
		return err
	}
	if e.HomeownerID != homeownerID {
		return apperr.New(apperr.CodeForbidden, "milestone belongs to another homeowner's project")
	}
	return nil
}

func (s *Service) checkMilestoneContractor(ctx context.Context, m *model.Milestone, contractorID string) error {
	e, err := s.Get(ctx, m.EscrowID)
	if err != nil {
		return err
	}
	if e.ContractorID != contractorID {
		return apperr.New(apperr.CodeForbidden, "milestone belongs to another contractor's project")
	}
	return nil
}

func (s *Service) transitionMilestone(ctx context.Context, m *model.Milestone, target model.MilestoneStatus, mutate func(*model.Milestone)) error {
	from := m.Status
	m.Status = target
	if mutate != nil {
		mutate(m)
	}
	m.UpdatedAt = time.Now()

	if err := s.milestones.Update(ctx, m); err != nil {
		metrics.RecordTransition("milestone", string(from), string(target), "conflict")
		if errors.Is(err, repository.ErrConflict) {
			return apperr.New(apperr.CodeConflict, "milestone was modified concurrently, retry")
		}
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.CodeMilestoneNotFound, "milestone not found")
		}
		return s.internal("failed to update milestone", err)
	}

	metrics.RecordTransition("milestone", string(from), string(target), "ok")
	return nil
}
