package project

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
	"renobroker/pkg/metrics"
)

// ProjectStore is the project collection of the document store.
type ProjectStore interface {
	Create(ctx context.Context, p *model.Project) error
	Get(ctx context.Context, id string) (*model.Project, error)
	Update(ctx context.Context, p *model.Project) error
	Delete(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status model.ProjectStatus, limit int) ([]*model.Project, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.Project, error)
}

// BidStore is the bid sub-collection, scoped by project id.
type BidStore interface {
	Create(ctx context.Context, b *model.Bid) error
	Get(ctx context.Context, id string) (*model.Bid, error)
	Update(ctx context.Context, b *model.Bid) error
	ListByProject(ctx context.Context, projectID string) ([]*model.Bid, error)
	CountByProject(ctx context.Context, projectID string) (int, error)
}

// Sequencer hands out persisted display-code counters.
type Sequencer interface {
	Next(ctx context.Context, scope string) (int64, error)
}

// Service is the project ledger: it owns project and bid documents and
// enforces their state machines.
type Service struct {
	projects ProjectStore
	bids     BidStore
	seq      Sequencer
	events   events.Sink
	logger   *zap.Logger
}

func NewService(projects ProjectStore, bids BidStore, seq Sequencer, sink events.Sink, logger *zap.Logger) *Service {
	return &Service{
		projects: projects,
		bids:     bids,
		seq:      seq,
		events:   sink,
		logger:   logger,
	}
}

type CreateProjectInput struct {
	Title       string
	Description string
	Category    string
	Region      string
	Budget      int64
	MaxBids     int
}

func (in *CreateProjectInput) validate() error {
	if in.Title == "" {
		return apperr.New(apperr.CodeInvalidInput, "title is required")
	}
	if in.Budget < 0 {
		return apperr.New(apperr.CodeInvalidInput, "budget must not be negative")
	}
	if in.MaxBids <= 0 {
		return apperr.New(apperr.CodeInvalidInput, "max_bids must be positive")
	}
	return nil
}

// CreateDraft creates a new project in DRAFT for the owner.
func (s *Service) CreateDraft(ctx context.Context, ownerID string, in CreateProjectInput) (*model.Project, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	seq, err := s.seq.Next(ctx, model.CodeScopeProject)
	if err != nil {
		return nil, s.internal("failed to allocate project code", err)
	}

	now := time.Now()
	p := &model.Project{
		ID:          uuid.NewString(),
		Code:        model.FormatCode(model.CodeScopeProject, seq),
		OwnerID:     ownerID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Region:      in.Region,
		Budget:      in.Budget,
		MaxBids:     in.MaxBids,
		Status:      model.ProjectDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.projects.Create(ctx, p); err != nil {
		return nil, s.internal("failed to create project", err)
	}

	s.logger.Info("Project draft created",
		zap.String("project_id", p.ID),
		zap.String("owner_id", ownerID),
	)
	return p, nil
}

// UpdateDraft edits descriptive fields. Only the owner, only in DRAFT.
func (s *Service) UpdateDraft(ctx context.Context, ownerID, projectID string, in CreateProjectInput) (*model.Project, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	p, err := s.getOwned(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.ProjectDraft {
		return nil, apperr.New(apperr.CodeProjectInvalidStatus, "only draft projects can be edited")
	}

	p.Title = in.Title
	p.Description = in.Description
	p.Category = in.Category
	p.Region = in.Region
	p.Budget = in.Budget
	p.MaxBids = in.MaxBids
	p.UpdatedAt = time.Now()

	if err := s.writeProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteDraft is the only hard delete: owners may remove a project that was
// never submitted. Anything OPEN or later is kept forever.
func (s *Service) DeleteDraft(ctx context.Context, ownerID, projectID string) error {
	p, err := s.getOwned(ctx, ownerID, projectID)
	if err != nil {
		return err
	}
	if p.Status != model.ProjectDraft {
		return apperr.New(apperr.CodeProjectInvalidStatus, "only draft projects can be deleted")
	}

	if err := s.projects.Delete(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.CodeProjectNotFound, "project not found")
		}
		return s.internal("failed to delete project", err)
	}
	return nil
}

// Submit moves a DRAFT or REJECTED project to PENDING_APPROVAL and sets the
// bidding deadline.
func (s *Service) Submit(ctx context.Context, ownerID, projectID string, bidDeadline time.Time) (*model.Project, error) {
	if !bidDeadline.After(time.Now()) {
		return nil, apperr.New(apperr.CodeInvalidInput, "bid_deadline must be in the future")
	}

	p, err := s.getOwned(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.ProjectDraft && p.Status != model.ProjectRejected {
		return nil, apperr.New(apperr.CodeProjectInvalidStatus,
			fmt.Sprintf("project in status %s cannot be submitted", p.Status))
	}

	if err := s.transition(ctx, p, model.ProjectPendingApproval, func(p *model.Project) {
		p.BidDeadline = &bidDeadline
		p.ReviewNote = ""
	}); err != nil {
		return nil, err
	}

	s.emitProject(ctx, p, mq.RoutingKeyProjectSubmitted)
	return p, nil
}

// Approve publishes a project: PENDING_APPROVAL -> OPEN.
func (s *Service) Approve(ctx context.Context, adminID, projectID, note string) (*model.Project, error) {
	p, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.ProjectPendingApproval {
		return nil, apperr.New(apperr.CodeProjectInvalidStatus, "project is not pending approval")
	}

	now := time.Now()
	if err := s.transition(ctx, p, model.ProjectOpen, func(p *model.Project) {
		p.PublishedAt = &now
		p.ReviewNote = note
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Project approved",
		zap.String("project_id", p.ID),
		zap.String("admin_id", adminID),
	)
	s.emitProject(ctx, p, mq.RoutingKeyProjectApproved)
	return p, nil
}

// Reject sends a project back to its owner: PENDING_APPROVAL -> REJECTED.
func (s *Service) Reject(ctx context.Context, adminID, projectID, note string) (*model.Project, error) {
	p, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.ProjectPendingApproval {
		return nil, apperr.New(apperr.CodeProjectInvalidStatus, "project is not pending approval")
	}

	if err := s.transition(ctx, p, model.ProjectRejected, func(p *model.Project) {
		p.ReviewNote = note
	}); err != nil {
		return nil, err
	}

	s.emitProject(ctx, p, mq.RoutingKeyProjectRejected)
	return p, nil
}

// CloseBidding moves OPEN -> BIDDING_CLOSED so the owner can select a bid.
func (s *Service) CloseBidding(ctx context.Context, ownerID, projectID string) (*model.Project, error) {
	p, err := s.getOwned(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, p, model.ProjectBiddingClosed, nil); err != nil {
		return nil, err
	}
	return p, nil
}

// ReopenBidding moves BIDDING_CLOSED back to OPEN.
func (s *Service) ReopenBidding(ctx context.Context, ownerID, projectID string) (*model.Project, error) {
	p, err := s.getOwned(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, p, model.ProjectOpen, nil); err != nil {
		return nil, err
	}
	return p, nil
}

// TransitionStatus performs a generic guarded transition. Used by the match
// orchestrator for MATCHED / IN_PROGRESS / COMPLETED / CANCELLED moves;
// mutate runs on the document before the write.
func (s *Service) TransitionStatus(ctx context.Context, projectID string, target model.ProjectStatus, mutate func(*model.Project)) (*model.Project, error) {
	p, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, p, target, mutate); err != nil {
		return nil, err
	}
	return p, nil
}

// RevertMatch is the compensation path for a rejected match: it returns a
// MATCHED project to BIDDING_CLOSED and clears the selection fields. This
// edge is not part of the forward transition table on purpose.
func (s *Service) RevertMatch(ctx context.Context, projectID string) (*model.Project, error) {
	p, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.ProjectMatched {
		return nil, apperr.New(apperr.CodeProjectInvalidStatus, "project is not matched")
	}

	from := p.Status
	p.Status = model.ProjectBiddingClosed
	p.SelectedBidID = ""
	p.MatchedAt = nil
	p.UpdatedAt = time.Now()

	if err := s.writeProject(ctx, p); err != nil {
		metrics.RecordTransition("project", string(from), string(model.ProjectBiddingClosed), "conflict")
		return nil, err
	}
	metrics.RecordTransition("project", string(from), string(model.ProjectBiddingClosed), "ok")
	return p, nil
}

func (s *Service) Get(ctx context.Context, projectID string) (*model.Project, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeProjectNotFound, "project not found")
		}
		return nil, s.internal("failed to load project", err)
	}
	return p, nil
}

func (s *Service) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.Project, error) {
	projects, err := s.projects.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, s.internal("failed to list projects", err)
	}
	return projects, nil
}

func (s *Service) ListByStatus(ctx context.Context, status model.ProjectStatus, limit int) ([]*model.Project, error) {
	projects, err := s.projects.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, s.internal("failed to list projects", err)
	}
	return projects, nil
}

// getOwned loads a project and checks ownership.
func (s *Service) getOwned(ctx context.Context, ownerID, projectID string) (*model.Project, error) {
	p, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, apperr.New(apperr.CodeProjectNotOwner, "project belongs to another user")
	}
	return p, nil
}

// transition validates the edge against the project table, applies mutate
// and writes the document under its version guard.
func (s *Service) transition(ctx context.Context, p *model.Project, target model.ProjectStatus, mutate func(*model.Project)) error {
	from := p.Status
	if !from.CanTransitionTo(target) {
		metrics.RecordTransition("project", string(from), string(target), "rejected")
		return apperr.New(apperr.CodeProjectInvalidTransition,
			fmt.Sprintf("cannot transition project from %s to %s", from, target))
	}

	p.Status = target
	if mutate != nil {
		mutate(p)
	}
	p.UpdatedAt = time.Now()

	if err := s.writeProject(ctx, p); err != nil {
		metrics.RecordTransition("project", string(from), string(target), "conflict")
		return err
	}

	metrics.RecordTransition("project", string(from), string(target), "ok")
	return nil
}

func (s *Service) writeProject(ctx context.Context, p *model.Project) error {
	err := s.projects.Update(ctx, p)
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrConflict) {
		return apperr.New(apperr.CodeConflict, "project was modified concurrently, retry")
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.CodeProjectNotFound, "project not found")
	}
	return s.internal("failed to update project", err)
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
