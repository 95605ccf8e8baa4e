package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"renobroker/internal/apperr"
	"renobroker/internal/events"
	"renobroker/internal/model"
	"renobroker/internal/mq"
	"renobroker/internal/repository"
	"renobroker/internal/service/escrow"
	"renobroker/internal/service/fee"
	"renobroker/internal/service/settings"
	"renobroker/pkg/metrics"
	"renobroker/pkg/rbac"
)

// Result is the outcome of a completed selection saga: the matched project
// plus the money documents the run opened.
type Result struct {
	Project *model.Project        `json:"project"`
	Escrow  *model.Escrow         `json:"escrow"`
	Fee     *model.FeeTransaction `json:"fee"`
}

// ProjectLedger is the slice of the project service the orchestrator drives.
type ProjectLedger interface {
	Get(ctx context.Context, projectID string) (*model.Project, error)
	GetBid(ctx context.Context, projectID, bidID string) (*model.Bid, error)
	SelectBid(ctx context.Context, projectID, bidID string) (*model.Bid, error)
	UnselectBid(ctx context.Context, projectID, bidID string) (*model.Bid, error)
	TransitionStatus(ctx context.Context, projectID string, target model.ProjectStatus, mutate func(*model.Project)) (*model.Project, error)
	RevertMatch(ctx context.Context, projectID string) (*model.Project, error)
}

// EscrowLedger is the slice of the escrow service the orchestrator drives.
type EscrowLedger interface {
	Create(ctx context.Context, in escrow.CreateInput) (*model.Escrow, error)
	GetByProject(ctx context.Context, projectID string) (*model.Escrow, error)
	ConfirmDeposit(ctx context.Context, adminID, escrowID, note string) (*model.Escrow, error)
	Release(ctx context.Context, adminID, escrowID, note string) (*model.Escrow, error)
	Refund(ctx context.Context, adminID, escrowID, reason string) (*model.Escrow, error)
	Cancel(ctx context.Context, adminID, escrowID, reason string) (*model.Escrow, error)
	CreateMilestones(ctx context.Context, escrowID string, defs []model.MilestoneDef) ([]*model.Milestone, error)
}

// FeeLedger is the slice of the fee service the orchestrator drives.
type FeeLedger interface {
	Create(ctx context.Context, in fee.CreateInput) (*model.FeeTransaction, error)
	Cancel(ctx context.Context, adminID, feeID, reason string) (*model.FeeTransaction, error)
	ListByProject(ctx context.Context, projectID string) ([]*model.FeeTransaction, error)
}

// PolicyProvider resolves the brokerage policy in force.
type PolicyProvider interface {
	Policy(ctx context.Context) settings.Policy
}

// RunStore is the durable saga log.
type RunStore interface {
	Upsert(ctx context.Context, run *model.MatchRun) error
	Get(ctx context.Context, projectID string) (*model.MatchRun, error)
	ListByState(ctx context.Context, state string, limit int) ([]*model.MatchRun, error)
}

// Service orchestrates the bid-selection saga and the post-match lifecycle.
// Every money-creating step uses a deterministic id derived from the
// (project, bid) pair, so a crashed or retried run converges instead of
// double-charging.
type Service struct {
	projects ProjectLedger
	escrows  EscrowLedger
	fees     FeeLedger
	policy   PolicyProvider
	runs     RunStore
	events   events.Sink
	locks    *keyedMutex
	logger   *zap.Logger
}

func NewService(projects ProjectLedger, escrows EscrowLedger, fees FeeLedger, policy PolicyProvider, runs RunStore, sink events.Sink, logger *zap.Logger) *Service {
	return &Service{
		projects: projects,
		escrows:  escrows,
		fees:     fees,
		policy:   policy,
		runs:     runs,
		events:   sink,
		locks:    newKeyedMutex(),
		logger:   logger,
	}
}

// escrowID and winFeeID derive stable ids from the match pair.
func escrowID(projectID, bidID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("escrow:"+projectID+":"+bidID)).String()
}

func winFeeID(projectID, bidID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("winfee:"+projectID+":"+bidID)).String()
}

// SelectBid is the homeowner picking a winner on a BIDDING_CLOSED project.
// It runs the full saga: bid SELECTED, project MATCHED, escrow opened, win
// fee recorded.
func (s *Service) SelectBid(ctx context.Context, ownerID, projectID, bidID string) (*Result, error) {
	unlock := s.locks.Lock(projectID)
	defer unlock()

	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, apperr.New(apperr.CodeProjectNotOwner, "project belongs to another user")
	}

	switch p.Status {
	case model.ProjectBiddingClosed:
		// normal path
	case model.ProjectMatched:
		if p.SelectedBidID != bidID {
			return nil, apperr.New(apperr.CodeProjectInvalidStatus, "project is already matched to another bid")
		}
		// retry of an interrupted run, fall through and converge
	default:
		return nil, apperr.New(apperr.CodeProjectInvalidStatus,
			fmt.Sprintf("bids can only be selected on a bidding-closed project, status is %s", p.Status))
	}

	b, err := s.projects.GetBid(ctx, projectID, bidID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BidApproved && b.Status != model.BidSelected {
		return nil, apperr.New(apperr.CodeBidInvalidStatus, "only an approved bid can be selected")
	}

	return s.runSaga(ctx, p, b)
}

// Resume picks up a saga that died mid-run, converging it to DONE. Safe to
// call on any project with a recorded run.
func (s *Service) Resume(ctx context.Context, projectID string) (*Result, error) {
	unlock := s.locks.Lock(projectID)
	defer unlock()

	run, err := s.runs.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeMatchNotFound, "no match run for this project")
		}
		return nil, s.internal("failed to load match run", err)
	}
	if run.State == model.MatchRunDone || run.State == model.MatchRunCompensated {
		return s.loadResult(ctx, projectID)
	}

	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	b, err := s.projects.GetBid(ctx, projectID, run.BidID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Resuming match run",
		zap.String("project_id", projectID),
		zap.String("last_step", run.Step),
	)
	return s.runSaga(ctx, p, b)
}

// runSaga executes the selection steps in order. Each step is re-entrant,
// and the durable run records the last completed step.
func (s *Service) runSaga(ctx context.Context, p *model.Project, b *model.Bid) (*Result, error) {
	policy := s.policy.Policy(ctx)

	// Step 1: mark the bid SELECTED.
	if _, err := s.projects.SelectBid(ctx, p.ID, b.ID); err != nil {
		return nil, s.failStep(ctx, p.ID, b.ID, model.MatchStepBidSelected, err)
	}
	s.recordStep(ctx, p.ID, b.ID, model.MatchStepBidSelected)

	// Step 2: move the project to MATCHED.
	if p.Status != model.ProjectMatched {
		now := time.Now()
		updated, err := s.projects.TransitionStatus(ctx, p.ID, model.ProjectMatched, func(p *model.Project) {
			p.SelectedBidID = b.ID
			p.MatchedAt = &now
		})
		if err != nil {
			return nil, s.failStep(ctx, p.ID, b.ID, model.MatchStepProjectMatched, err)
		}
		p = updated
	}
	s.recordStep(ctx, p.ID, b.ID, model.MatchStepProjectMatched)

	// Step 3: open the escrow for the policy amount.
	amount := policy.EscrowAmount(b.Price)
	e, err := s.escrows.Create(ctx, escrow.CreateInput{
		ID:           escrowID(p.ID, b.ID),
		ProjectID:    p.ID,
		BidID:        b.ID,
		HomeownerID:  p.OwnerID,
		ContractorID: b.ContractorID,
		Amount:       amount,
		Currency:     policy.Currency,
		ActorID:      p.OwnerID,
	})
	if err != nil {
		return nil, s.failStep(ctx, p.ID, b.ID, model.MatchStepEscrowCreated, err)
	}
	s.recordStep(ctx, p.ID, b.ID, model.MatchStepEscrowCreated)

	// Step 4: record the contractor's win fee.
	f, err := s.fees.Create(ctx, fee.CreateInput{
		ID:        winFeeID(p.ID, b.ID),
		UserID:    b.ContractorID,
		ProjectID: p.ID,
		BidID:     b.ID,
		Type:      model.FeeTypeWin,
		Amount:    policy.WinFee(b.Price),
		Currency:  policy.Currency,
	})
	if err != nil {
		return nil, s.failStep(ctx, p.ID, b.ID, model.MatchStepFeeCreated, err)
	}
	s.recordStep(ctx, p.ID, b.ID, model.MatchStepFeeCreated)

	if err := s.runs.Upsert(ctx, &model.MatchRun{
		ProjectID: p.ID,
		BidID:     b.ID,
		Step:      model.MatchStepDone,
		State:     model.MatchRunDone,
	}); err != nil {
		s.logger.Error("Failed to mark match run done", zap.Error(err))
	}
	metrics.RecordSagaStep(model.MatchStepDone, "ok")

	s.logger.Info("Project matched",
		zap.String("project_id", p.ID),
		zap.String("bid_id", b.ID),
		zap.Int64("escrow_amount", amount),
	)
	s.emitProject(ctx, p, mq.RoutingKeyProjectMatched)
	return &Result{Project: p, Escrow: e, Fee: f}, nil
}

// loadResult reassembles the selection outcome for a settled run. The escrow
// or fee may be missing when the run compensated before creating them.
func (s *Service) loadResult(ctx context.Context, projectID string) (*Result, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	res := &Result{Project: p}

	e, err := s.escrows.GetByProject(ctx, projectID)
	switch {
	case err == nil:
		res.Escrow = e
	case apperr.IsCode(err, apperr.CodeEscrowNotFound):
	default:
		return nil, err
	}

	fees, err := s.fees.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, f := range fees {
		if f.Type == model.FeeTypeWin {
			res.Fee = f
			break
		}
	}
	return res, nil
}

func (s *Service) recordStep(ctx context.Context, projectID, bidID, step string) {
	metrics.RecordSagaStep(step, "ok")
	if err := s.runs.Upsert(ctx, &model.MatchRun{
		ProjectID: projectID,
		BidID:     bidID,
		Step:      step,
		State:     model.MatchRunRunning,
	}); err != nil {
		// The saga stays correct without the log, resume just restarts
		// from the top.
		s.logger.Error("Failed to record saga step",
			zap.String("project_id", projectID),
			zap.String("step", step),
			zap.Error(err),
		)
	}
}

func (s *Service) failStep(ctx context.Context, projectID, bidID, step string, err error) error {
	metrics.RecordSagaStep(step, "failed")
	if upsertErr := s.runs.Upsert(ctx, &model.MatchRun{
		ProjectID: projectID,
		BidID:     bidID,
		Step:      step,
		State:     model.MatchRunFailed,
	}); upsertErr != nil {
		s.logger.Error("Failed to record saga failure", zap.Error(upsertErr))
	}
	s.logger.Error("Match saga step failed",
		zap.String("project_id", projectID),
		zap.String("step", step),
		zap.Error(err),
	)
	return err
}

// ApproveMatch confirms the homeowner's deposit arrived: the escrow moves
// PENDING -> HELD.
func (s *Service) ApproveMatch(ctx context.Context, adminID, projectID string) (*model.Escrow, error) {
	e, err := s.escrows.GetByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.escrows.ConfirmDeposit(ctx, adminID, e.ID, "deposit confirmed by "+adminID)
}

// RejectMatch unwinds a match before work starts: the escrow is voided or
// refunded, pending fees cancelled, the bid demoted and the project returned
// to BIDDING_CLOSED.
func (s *Service) RejectMatch(ctx context.Context, adminID, projectID, reason string) (*model.Project, error) {
	unlock := s.locks.Lock(projectID)
	defer unlock()

	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.ProjectMatched {
		return nil, apperr.New(apperr.CodeProjectInvalidStatus, "project is not matched")
	}
	bidID := p.SelectedBidID

	if err := s.unwindMoney(ctx, adminID, projectID, reason); err != nil {
		return nil, err
	}

	if bidID != "" {
		if _, err := s.projects.UnselectBid(ctx, projectID, bidID); err != nil {
			return nil, err
		}
	}

	p, err = s.projects.RevertMatch(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if err := s.runs.Upsert(ctx, &model.MatchRun{
		ProjectID: projectID,
		BidID:     bidID,
		Step:      model.MatchStepDone,
		State:     model.MatchRunCompensated,
	}); err != nil {
		s.logger.Error("Failed to mark match run compensated", zap.Error(err))
	}
	metrics.RecordSagaStep(model.MatchStepDone, "compensated")

	_ = s.events.Emit(ctx, mq.AggregateProject, projectID, mq.RoutingKeyMatchRejected, mq.MatchRejectedPayload{
		ProjectID: projectID,
		OwnerID:   p.OwnerID,
		BidID:     bidID,
		AdminID:   adminID,
		Reason:    reason,
		At:        time.Now(),
	})

	s.logger.Info("Match rejected",
		zap.String("project_id", projectID),
		zap.String("admin_id", adminID),
	)
	return p, nil
}

// unwindMoney voids or refunds the escrow and cancels pending fees.
func (s *Service) unwindMoney(ctx context.Context, adminID, projectID, reason string) error {
	e, err := s.escrows.GetByProject(ctx, projectID)
	switch {
	case err == nil:
		switch e.Status {
		case model.EscrowPending:
			if _, err := s.escrows.Cancel(ctx, adminID, e.ID, reason); err != nil {
				return err
			}
		case model.EscrowHeld, model.EscrowPartialReleased:
			if _, err := s.escrows.Refund(ctx, adminID, e.ID, reason); err != nil {
				return err
			}
		}
	case apperr.IsCode(err, apperr.CodeEscrowNotFound):
		// saga died before the escrow step, nothing to unwind
	default:
		return err
	}

	fees, err := s.fees.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, f := range fees {
		if f.Status != model.FeePending {
			continue
		}
		if _, err := s.fees.Cancel(ctx, adminID, f.ID, reason); err != nil {
			return err
		}
	}
	return nil
}

// StartProject begins the work: requires the escrow to be HELD, moves the
// project to IN_PROGRESS and lays down the default milestone plan.
func (s *Service) StartProject(ctx context.Context, ownerID, projectID string) (*model.Project, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, apperr.New(apperr.CodeProjectNotOwner, "project belongs to another user")
	}

	e, err := s.escrows.GetByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if e.Status != model.EscrowHeld {
		return nil, apperr.New(apperr.CodeEscrowNotHeld, "escrow funds are not held yet")
	}

	p, err = s.projects.TransitionStatus(ctx, projectID, model.ProjectInProgress, nil)
	if err != nil {
		return nil, err
	}

	if _, err := s.escrows.CreateMilestones(ctx, e.ID, model.DefaultMilestones()); err != nil {
		// A retry after a partial start finds the plan already in place.
		if !apperr.IsCode(err, apperr.CodeMilestoneDuplicate) {
			return nil, err
		}
	}

	s.emitProject(ctx, p, mq.RoutingKeyProjectStarted)
	return p, nil
}

// CompleteProject closes out the work and releases whatever the escrow
// still holds.
func (s *Service) CompleteProject(ctx context.Context, ownerID, projectID string) (*model.Project, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, apperr.New(apperr.CodeProjectNotOwner, "project belongs to another user")
	}

	p, err = s.projects.TransitionStatus(ctx, projectID, model.ProjectCompleted, nil)
	if err != nil {
		return nil, err
	}

	e, err := s.escrows.GetByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if e.Status == model.EscrowHeld || e.Status == model.EscrowPartialReleased {
		if _, err := s.escrows.Release(ctx, ownerID, e.ID, "project completed"); err != nil {
			return nil, err
		}
	}

	s.emitProject(ctx, p, mq.RoutingKeyProjectCompleted)
	return p, nil
}

// CancelProject aborts a project. Held funds go back to the homeowner,
// pending fees are voided. Only the owner or a match-managing admin may
// cancel.
func (s *Service) CancelProject(ctx context.Context, actorID, actorRole, projectID, reason string) (*model.Project, error) {
	unlock := s.locks.Lock(projectID)
	defer unlock()

	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actorID && !rbac.HasPermission(actorRole, rbac.PermissionManageMatch) {
		return nil, apperr.New(apperr.CodeProjectNotOwner, "project belongs to another user")
	}
	if !p.Status.CanTransitionTo(model.ProjectCancelled) {
		return nil, apperr.New(apperr.CodeProjectInvalidTransition,
			fmt.Sprintf("cannot cancel a project in status %s", p.Status))
	}

	// Unwind money first. If the escrow never existed the project just
	// transitions.
	if err := s.unwindMoney(ctx, actorID, projectID, reason); err != nil {
		return nil, err
	}

	p, err = s.projects.TransitionStatus(ctx, projectID, model.ProjectCancelled, nil)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Project cancelled",
		zap.String("project_id", projectID),
		zap.String("actor_id", actorID),
	)
	s.emitProject(ctx, p, mq.RoutingKeyProjectCancelled)
	return p, nil
}

// GetMatch returns the saga log for a project.
func (s *Service) GetMatch(ctx context.Context, projectID string) (*model.MatchRun, error) {
	run, err := s.runs.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeMatchNotFound, "no match run for this project")
		}
		return nil, s.internal("failed to load match run", err)
	}
	return run, nil
}

// ListMatches returns runs in a state, for the admin dashboard.
func (s *Service) ListMatches(ctx context.Context, state string, limit int) ([]*model.MatchRun, error) {
	runs, err := s.runs.ListByState(ctx, state, limit)
	if err != nil {
		return nil, s.internal("failed to list match runs", err)
	}
	return runs, nil
}

func (s *Service) emitProject(ctx context.Context, p *model.Project, routingKey string) {
	_ = s.events.Emit(ctx, mq.AggregateProject, p.ID, routingKey, mq.ProjectEventPayload{
		ProjectID: p.ID,
		OwnerID:   p.OwnerID,
		Status:    string(p.Status),
		At:        time.Now(),
	})
}

func (s *Service) internal(msg string, err error) error {
	s.logger.Error(msg, zap.Error(err))
	return apperr.Internal(msg)
}
