package project

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"renobroker/internal/apperr"
	"renobroker/internal/events"
	"renobroker/internal/model"
	"renobroker/internal/repository"
)

type memProjects struct {
	mu sync.Mutex
	m  map[string]model.Project
}

func newMemProjects() *memProjects {
	return &memProjects{m: make(map[string]model.Project)}
}

func (s *memProjects) Create(ctx context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Version = 1
	s.m[p.ID] = *p
	return nil
}

func (s *memProjects) Get(ctx context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (s *memProjects) Update(ctx context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.m[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.Version != p.Version {
		return repository.ErrConflict
	}
	p.Version++
	s.m[p.ID] = *p
	return nil
}

func (s *memProjects) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.m, id)
	return nil
}

func (s *memProjects) ListByStatus(ctx context.Context, status model.ProjectStatus, limit int) ([]*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Project
	for _, p := range s.m {
		if p.Status == status {
			cp := p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memProjects) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Project
	for _, p := range s.m {
		if p.OwnerID == ownerID {
			cp := p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memBids struct {
	mu sync.Mutex
	m  map[string]model.Bid
}

func newMemBids() *memBids {
	return &memBids{m: make(map[string]model.Bid)}
}

func (s *memBids) Create(ctx context.Context, b *model.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Version = 1
	s.m[b.ID] = *b
	return nil
}

func (s *memBids) Get(ctx context.Context, id string) (*model.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := b
	return &cp, nil
}

func (s *memBids) Update(ctx context.Context, b *model.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.m[b.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.Version != b.Version {
		return repository.ErrConflict
	}
	b.Version++
	s.m[b.ID] = *b
	return nil
}

func (s *memBids) ListByProject(ctx context.Context, projectID string) ([]*model.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Bid
	for _, b := range s.m {
		if b.ProjectID == projectID {
			cp := b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memBids) CountByProject(ctx context.Context, projectID string) (int, error) {
	bids, _ := s.ListByProject(ctx, projectID)
	return len(bids), nil
}

type memSeq struct {
	mu sync.Mutex
	m  map[string]int64
}

func newMemSeq() *memSeq {
	return &memSeq{m: make(map[string]int64)}
}

func (s *memSeq) Next(ctx context.Context, scope string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[scope]++
	return s.m[scope], nil
}

func newTestService() (*Service, *memProjects, *memBids) {
	projects := newMemProjects()
	bids := newMemBids()
	svc := NewService(projects, bids, newMemSeq(), events.NopSink{}, zap.NewNop())
	return svc, projects, bids
}

func openProject(t *testing.T, svc *Service, owner string) *model.Project {
	t.Helper()
	ctx := context.Background()

	p, err := svc.CreateDraft(ctx, owner, CreateProjectInput{
		Title:   "Kitchen remodel",
		Budget:  120_000_000,
		MaxBids: 3,
	})
	require.NoError(t, err)

	deadline := time.Now().Add(48 * time.Hour)
	p, err = svc.Submit(ctx, owner, p.ID, deadline)
	require.NoError(t, err)

	p, err = svc.Approve(ctx, "admin-1", p.ID, "looks fine")
	require.NoError(t, err)
	require.Equal(t, model.ProjectOpen, p.Status)
	return p
}

func approvedBid(t *testing.T, svc *Service, projectID, contractor string, price int64) *model.Bid {
	t.Helper()
	ctx := context.Background()

	b, err := svc.AddBid(ctx, contractor, projectID, BidInput{Price: price, TimelineDays: 30})
	require.NoError(t, err)

	b, err = svc.ApproveBid(ctx, "admin-1", projectID, b.ID, "")
	require.NoError(t, err)
	return b
}

func TestProjectLifecycle(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreateDraft(ctx, "owner-1", CreateProjectInput{Title: "Bathroom", MaxBids: 5})
	require.NoError(t, err)
	assert.Equal(t, model.ProjectDraft, p.Status)
	assert.Equal(t, "PRJ-000001", p.Code)

	// Only the owner can submit.
	_, err = svc.Submit(ctx, "intruder", p.ID, time.Now().Add(time.Hour))
	assert.True(t, apperr.IsCode(err, apperr.CodeProjectNotOwner))

	// A past deadline is rejected up front.
	_, err = svc.Submit(ctx, "owner-1", p.ID, time.Now().Add(-time.Hour))
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidInput))

	p, err = svc.Submit(ctx, "owner-1", p.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.ProjectPendingApproval, p.Status)

	// Rejected projects can be fixed and resubmitted.
	p, err = svc.Reject(ctx, "admin-1", p.ID, "needs a budget")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectRejected, p.Status)
	assert.Equal(t, "needs a budget", p.ReviewNote)

	p, err = svc.Submit(ctx, "owner-1", p.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, p.ReviewNote, "resubmission clears the review note")

	p, err = svc.Approve(ctx, "admin-1", p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectOpen, p.Status)
	assert.NotNil(t, p.PublishedAt)
}

func TestUpdateDraftOnlyInDraft(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p := openProject(t, svc, "owner-1")
	_, err := svc.UpdateDraft(ctx, "owner-1", p.ID, CreateProjectInput{Title: "New title", MaxBids: 3})
	assert.True(t, apperr.IsCode(err, apperr.CodeProjectInvalidStatus))
}

func TestDeleteDraft(t *testing.T) {
	svc, projects, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreateDraft(ctx, "owner-1", CreateProjectInput{Title: "Deck", MaxBids: 2})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDraft(ctx, "owner-1", p.ID))
	_, err = projects.Get(ctx, p.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// Published projects are never hard deleted.
	p2 := openProject(t, svc, "owner-1")
	err = svc.DeleteDraft(ctx, "owner-1", p2.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeProjectInvalidStatus))
}

func TestCloseAndReopenBidding(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p := openProject(t, svc, "owner-1")
	p, err := svc.CloseBidding(ctx, "owner-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectBiddingClosed, p.Status)

	p, err = svc.ReopenBidding(ctx, "owner-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectOpen, p.Status)
}

func TestAddBidGuards(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p := openProject(t, svc, "owner-1")

	// One active bid per contractor.
	_, err := svc.AddBid(ctx, "con-1", p.ID, BidInput{Price: 100, TimelineDays: 10})
	require.NoError(t, err)
	_, err = svc.AddBid(ctx, "con-1", p.ID, BidInput{Price: 90, TimelineDays: 10})
	assert.True(t, apperr.IsCode(err, apperr.CodeBidAlreadyActive))

	// Cap on total bids.
	_, err = svc.AddBid(ctx, "con-2", p.ID, BidInput{Price: 100, TimelineDays: 10})
	require.NoError(t, err)
	_, err = svc.AddBid(ctx, "con-3", p.ID, BidInput{Price: 100, TimelineDays: 10})
	require.NoError(t, err)
	_, err = svc.AddBid(ctx, "con-4", p.ID, BidInput{Price: 100, TimelineDays: 10})
	assert.True(t, apperr.IsCode(err, apperr.CodeBidMaxReached))

	// No bids once bidding is closed.
	_, err = svc.CloseBidding(ctx, "owner-1", p.ID)
	require.NoError(t, err)
	_, err = svc.AddBid(ctx, "con-5", p.ID, BidInput{Price: 100, TimelineDays: 10})
	assert.True(t, apperr.IsCode(err, apperr.CodeProjectNotOpen))
}

func TestAddBidAfterWithdrawAllowed(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p := openProject(t, svc, "owner-1")
	b, err := svc.AddBid(ctx, "con-1", p.ID, BidInput{Price: 100, TimelineDays: 10})
	require.NoError(t, err)

	_, err = svc.WithdrawBid(ctx, "con-1", p.ID, b.ID)
	require.NoError(t, err)

	// The withdrawn bid no longer counts as active.
	_, err = svc.AddBid(ctx, "con-1", p.ID, BidInput{Price: 95, TimelineDays: 10})
	require.NoError(t, err)
}

func TestAddBidDeadlinePassed(t *testing.T) {
	svc, projects, _ := newTestService()
	ctx := context.Background()

	p := openProject(t, svc, "owner-1")

	// Age the deadline directly in the store.
	stored, err := projects.Get(ctx, p.ID)
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute)
	stored.BidDeadline = &past
	require.NoError(t, projects.Update(ctx, stored))

	_, err = svc.AddBid(ctx, "con-1", p.ID, BidInput{Price: 100, TimelineDays: 10})
	assert.True(t, apperr.IsCode(err, apperr.CodeBidDeadlinePassed))
}

func TestReviewBid(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p := openProject(t, svc, "owner-1")
	b, err := svc.AddBid(ctx, "con-1", p.ID, BidInput{Price: 100, TimelineDays: 10})
	require.NoError(t, err)

	b, err = svc.ApproveBid(ctx, "admin-1", p.ID, b.ID, "solid proposal")
	require.NoError(t, err)
	assert.Equal(t, model.BidApproved, b.Status)
	assert.Equal(t, "admin-1", b.ReviewedBy)
	assert.NotNil(t, b.ReviewedAt)

	// Review is a one-shot decision.
	_, err = svc.RejectBid(ctx, "admin-1", p.ID, b.ID, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeBidInvalidStatus))
}

func TestWithdrawRules(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p := openProject(t, svc, "owner-1")
	b := approvedBid(t, svc, p.ID, "con-1", 100)

	// Only the bid's contractor may withdraw.
	_, err := svc.WithdrawBid(ctx, "con-2", p.ID, b.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	// A selected bid is locked in.
	_, err = svc.CloseBidding(ctx, "owner-1", p.ID)
	require.NoError(t, err)
	_, err = svc.SelectBid(ctx, p.ID, b.ID)
	require.NoError(t, err)
	_, err = svc.WithdrawBid(ctx, "con-1", p.ID, b.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeBidInvalidStatus))
}

func TestSelectBidExclusivity(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p := openProject(t, svc, "owner-1")
	b1 := approvedBid(t, svc, p.ID, "con-1", 100)
	b2 := approvedBid(t, svc, p.ID, "con-2", 90)

	_, err := svc.CloseBidding(ctx, "owner-1", p.ID)
	require.NoError(t, err)

	_, err = svc.SelectBid(ctx, p.ID, b1.ID)
	require.NoError(t, err)

	// Selecting again is a no-op, not an error.
	sel, err := svc.SelectBid(ctx, p.ID, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BidSelected, sel.Status)

	// Selecting the other bid demotes the first.
	_, err = svc.SelectBid(ctx, p.ID, b2.ID)
	require.NoError(t, err)

	selected := 0
	bids, err := svc.ListBids(ctx, p.ID)
	require.NoError(t, err)
	for _, b := range bids {
		if b.Status == model.BidSelected {
			selected++
		}
	}
	assert.Equal(t, 1, selected, "at most one bid is selected")

	got, err := svc.GetBid(ctx, p.ID, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BidApproved, got.Status)
}

func TestSelectBidRequiresApproval(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p := openProject(t, svc, "owner-1")
	b, err := svc.AddBid(ctx, "con-1", p.ID, BidInput{Price: 100, TimelineDays: 10})
	require.NoError(t, err)

	_, err = svc.SelectBid(ctx, p.ID, b.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeBidInvalidStatus))
}

func TestRevertMatch(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p := openProject(t, svc, "owner-1")
	b := approvedBid(t, svc, p.ID, "con-1", 100)

	_, err := svc.CloseBidding(ctx, "owner-1", p.ID)
	require.NoError(t, err)
	_, err = svc.SelectBid(ctx, p.ID, b.ID)
	require.NoError(t, err)

	now := time.Now()
	p, err = svc.TransitionStatus(ctx, p.ID, model.ProjectMatched, func(p *model.Project) {
		p.SelectedBidID = b.ID
		p.MatchedAt = &now
	})
	require.NoError(t, err)

	p, err = svc.RevertMatch(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectBiddingClosed, p.Status)
	assert.Empty(t, p.SelectedBidID)
	assert.Nil(t, p.MatchedAt)
}

func TestGetBidScopedToProject(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p1 := openProject(t, svc, "owner-1")
	p2 := openProject(t, svc, "owner-2")
	b, err := svc.AddBid(ctx, "con-1", p1.ID, BidInput{Price: 100, TimelineDays: 10})
	require.NoError(t, err)

	_, err = svc.GetBid(ctx, p2.ID, b.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeBidNotFound))
}

func TestStaleWriteConflicts(t *testing.T) {
	svc, projects, _ := newTestService()
	ctx := context.Background()

	p := openProject(t, svc, "owner-1")

	// A concurrent writer bumps the version underneath the service.
	stored, err := projects.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, projects.Update(ctx, stored))

	stale := *p
	stale.Status = model.ProjectBiddingClosed
	err = projects.Update(ctx, &stale)
	assert.ErrorIs(t, err, repository.ErrConflict)
}
