package escrow

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"renobroker/internal/apperr"
	"renobroker/internal/events"
	"renobroker/internal/model"
	"renobroker/internal/repository"
)

type memEscrows struct {
	mu sync.Mutex
	m  map[string]model.Escrow
}

func newMemEscrows() *memEscrows {
	return &memEscrows{m: make(map[string]model.Escrow)}
}

func (s *memEscrows) Create(ctx context.Context, e *model.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.m {
		if existing.ProjectID == e.ProjectID {
			return repository.ErrDuplicate
		}
	}
	if _, ok := s.m[e.ID]; ok {
		return repository.ErrDuplicate
	}
	e.Version = 1
	s.m[e.ID] = *e
	return nil
}

func (s *memEscrows) Get(ctx context.Context, id string) (*model.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := e
	return &cp, nil
}

func (s *memEscrows) GetByProject(ctx context.Context, projectID string) (*model.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.m {
		if e.ProjectID == projectID {
			cp := e
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memEscrows) Update(ctx context.Context, e *model.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.m[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.Version != e.Version {
		return repository.ErrConflict
	}
	e.Version++
	s.m[e.ID] = *e
	return nil
}

type memMilestones struct {
	mu sync.Mutex
	m  map[string]model.Milestone
}

func newMemMilestones() *memMilestones {
	return &memMilestones{m: make(map[string]model.Milestone)}
}

func (s *memMilestones) CreateBatch(ctx context.Context, milestones []*model.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range milestones {
		for _, existing := range s.m {
			if existing.EscrowID == m.EscrowID && existing.Percentage == m.Percentage {
				return repository.ErrDuplicate
			}
		}
	}
	for _, m := range milestones {
		m.Version = 1
		s.m[m.ID] = *m
	}
	return nil
}

func (s *memMilestones) Get(ctx context.Context, id string) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := m
	return &cp, nil
}

func (s *memMilestones) Update(ctx context.Context, m *model.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.m[m.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.Version != m.Version {
		return repository.ErrConflict
	}
	m.Version++
	s.m[m.ID] = *m
	return nil
}

func (s *memMilestones) ListByEscrow(ctx context.Context, escrowID string) ([]*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Milestone
	for _, m := range s.m {
		if m.EscrowID == escrowID {
			cp := m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Percentage < out[j].Percentage })
	return out, nil
}

type memSeq struct {
	mu sync.Mutex
	m  map[string]int64
}

func (s *memSeq) Next(ctx context.Context, scope string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[string]int64)
	}
	s.m[scope]++
	return s.m[scope], nil
}

func newTestService() (*Service, *memEscrows, *memMilestones) {
	escrows := newMemEscrows()
	milestones := newMemMilestones()
	svc := NewService(escrows, milestones, &memSeq{}, events.NopSink{}, zap.NewNop())
	return svc, escrows, milestones
}

func createHeld(t *testing.T, svc *Service, amount int64) *model.Escrow {
	t.Helper()
	ctx := context.Background()

	e, err := svc.Create(ctx, CreateInput{
		ID:           uuid.NewString(),
		ProjectID:    uuid.NewString(),
		BidID:        uuid.NewString(),
		HomeownerID:  "owner-1",
		ContractorID: "con-1",
		Amount:       amount,
		Currency:     "USD",
		ActorID:      "owner-1",
	})
	require.NoError(t, err)

	e, err = svc.ConfirmDeposit(ctx, "admin-1", e.ID, "wire received")
	require.NoError(t, err)
	require.Equal(t, model.EscrowHeld, e.Status)
	return e
}

func TestCreateEscrow(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	in := CreateInput{
		ID:          uuid.NewString(),
		ProjectID:   "proj-1",
		BidID:       "bid-1",
		HomeownerID: "owner-1",
		Amount:      10_000_000,
		Currency:    "USD",
		ActorID:     "owner-1",
	}
	e, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowPending, e.Status)
	assert.Equal(t, "ESC-000001", e.Code)
	require.Len(t, e.Transactions, 1)
	assert.Equal(t, model.EscrowTxDeposit, e.Transactions[0].Type)

	// Same (project, bid) pair converges on the existing escrow.
	again, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, e.ID, again.ID)

	// A different bid on the same project is refused.
	in2 := in
	in2.ID = uuid.NewString()
	in2.BidID = "bid-2"
	_, err = svc.Create(ctx, in2)
	assert.True(t, apperr.IsCode(err, apperr.CodeEscrowExists))
}

func TestCreateEscrowRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Create(context.Background(), CreateInput{Amount: 0})
	assert.True(t, apperr.IsCode(err, apperr.CodeEscrowInvalidAmount))
}

func TestPartialReleaseArithmetic(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e := createHeld(t, svc, 10_000_000)

	e, err := svc.PartialRelease(ctx, "admin-1", e.ID, 4_000_000, "first milestone")
	require.NoError(t, err)
	assert.Equal(t, model.EscrowPartialReleased, e.Status)
	assert.Equal(t, int64(4_000_000), e.ReleasedAmount)
	assert.Equal(t, int64(6_000_000), e.Remaining())

	// Cannot release more than remains.
	_, err = svc.PartialRelease(ctx, "admin-1", e.ID, 7_000_000, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeEscrowInvalidAmount))

	// Releasing the exact remainder closes the escrow.
	e, err = svc.PartialRelease(ctx, "admin-1", e.ID, 6_000_000, "final")
	require.NoError(t, err)
	assert.Equal(t, model.EscrowReleased, e.Status)
	assert.Equal(t, int64(0), e.Remaining())
	require.Len(t, e.Transactions, 4, "open, hold, two releases")
}

func TestReleaseRemainder(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e := createHeld(t, svc, 10_000_000)
	_, err := svc.PartialRelease(ctx, "admin-1", e.ID, 5_000_000, "")
	require.NoError(t, err)

	e, err = svc.Release(ctx, "admin-1", e.ID, "closing out")
	require.NoError(t, err)
	assert.Equal(t, model.EscrowReleased, e.Status)
	assert.Equal(t, e.Amount, e.ReleasedAmount)
}

func TestRefundLogsRemainder(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e := createHeld(t, svc, 10_000_000)
	_, err := svc.PartialRelease(ctx, "admin-1", e.ID, 5_000_000, "")
	require.NoError(t, err)

	e, err = svc.Refund(ctx, "admin-1", e.ID, "project cancelled")
	require.NoError(t, err)
	assert.Equal(t, model.EscrowRefunded, e.Status)

	last := e.Transactions[len(e.Transactions)-1]
	assert.Equal(t, model.EscrowTxRefund, last.Type)
	assert.Equal(t, int64(5_000_000), last.Amount, "only the unreleased part is refunded")
}

func TestDisputeFlow(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e := createHeld(t, svc, 10_000_000)
	e, err := svc.MarkDisputed(ctx, "owner-1", e.ID, "work stopped")
	require.NoError(t, err)
	assert.Equal(t, model.EscrowDisputed, e.Status)

	// No releases while disputed, except through resolution.
	_, err = svc.PartialRelease(ctx, "admin-1", e.ID, 1, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeEscrowInvalidTransition))

	e, err = svc.ResolveDispute(ctx, "admin-1", e.ID, ResolutionRefund, "ruled for the homeowner")
	require.NoError(t, err)
	assert.Equal(t, model.EscrowRefunded, e.Status)
}

func TestDisputeOnlyParticipants(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e := createHeld(t, svc, 10_000_000)

	// A bystander cannot freeze someone else's funds.
	_, err := svc.MarkDisputed(ctx, "rando-9", e.ID, "drive-by")
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	// The matched contractor can.
	e, err = svc.MarkDisputed(ctx, "con-1", e.ID, "payment overdue")
	require.NoError(t, err)
	assert.Equal(t, model.EscrowDisputed, e.Status)
}

func TestDisputeLogsAdjustment(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e := createHeld(t, svc, 10_000_000)
	e, err := svc.MarkDisputed(ctx, "owner-1", e.ID, "work stopped")
	require.NoError(t, err)

	last := e.Transactions[len(e.Transactions)-1]
	assert.Equal(t, model.EscrowTxAdjustment, last.Type, "disputes move no money")
	assert.Equal(t, int64(0), last.Amount)
}

func TestResolveDisputeValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e := createHeld(t, svc, 1_000_000)
	_, err := svc.ResolveDispute(ctx, "admin-1", e.ID, ResolutionRelease, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeEscrowInvalidTransition), "escrow is not disputed")

	_, err = svc.MarkDisputed(ctx, "owner-1", e.ID, "x")
	require.NoError(t, err)
	_, err = svc.ResolveDispute(ctx, "admin-1", e.ID, "SPLIT", "")
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidInput))
}

func TestCancelOnlyPending(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e, err := svc.Create(ctx, CreateInput{
		ID:          uuid.NewString(),
		ProjectID:   "proj-c",
		BidID:       "bid-c",
		HomeownerID: "owner-1",
		Amount:      1_000_000,
		Currency:    "USD",
	})
	require.NoError(t, err)

	e, err = svc.Cancel(ctx, "admin-1", e.ID, "match rejected")
	require.NoError(t, err)
	assert.Equal(t, model.EscrowCancelled, e.Status)

	last := e.Transactions[len(e.Transactions)-1]
	assert.Equal(t, model.EscrowTxAdjustment, last.Type, "voiding moves no money")
	assert.Equal(t, int64(0), last.Amount)

	held := createHeld(t, svc, 1_000_000)
	_, err = svc.Cancel(ctx, "admin-1", held.ID, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeEscrowInvalidTransition))
}

func TestCreateMilestonesValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e := createHeld(t, svc, 10_000_000)

	// Shares must sum to 100.
	_, err := svc.CreateMilestones(ctx, e.ID, []model.MilestoneDef{
		{Name: "Half", Percentage: 50, ReleasePercentage: 40},
		{Name: "Done", Percentage: 100, ReleasePercentage: 40},
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeMilestoneInvalidShares))

	// Percentages must increase.
	_, err = svc.CreateMilestones(ctx, e.ID, []model.MilestoneDef{
		{Name: "Done", Percentage: 100, ReleasePercentage: 50},
		{Name: "Half", Percentage: 50, ReleasePercentage: 50},
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidInput))

	ms, err := svc.CreateMilestones(ctx, e.ID, model.DefaultMilestones())
	require.NoError(t, err)
	require.Len(t, ms, 2)

	// Only one plan per escrow.
	_, err = svc.CreateMilestones(ctx, e.ID, model.DefaultMilestones())
	assert.True(t, apperr.IsCode(err, apperr.CodeMilestoneDuplicate))
}

func TestMilestoneOrdering(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e := createHeld(t, svc, 10_000_000)
	ms, err := svc.CreateMilestones(ctx, e.ID, model.DefaultMilestones())
	require.NoError(t, err)
	first, last := ms[0], ms[1]

	// The final milestone cannot be requested before the first is confirmed.
	_, err = svc.RequestCompletion(ctx, "con-1", last.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeMilestoneOrderViolation))

	m, err := svc.RequestCompletion(ctx, "con-1", first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneRequested, m.Status)
	assert.NotNil(t, m.RequestedAt)

	// Still blocked until confirmed.
	_, err = svc.RequestCompletion(ctx, "con-1", last.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeMilestoneOrderViolation))

	m, err = svc.ConfirmCompletion(ctx, "owner-1", first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneConfirmed, m.Status)

	m, err = svc.RequestCompletion(ctx, "con-1", last.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneRequested, m.Status)
}

func TestRequestCompletionOnlyMatchedContractor(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e := createHeld(t, svc, 10_000_000)
	ms, err := svc.CreateMilestones(ctx, e.ID, model.DefaultMilestones())
	require.NoError(t, err)

	_, err = svc.RequestCompletion(ctx, "con-2", ms[0].ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	m, err := svc.RequestCompletion(ctx, "con-1", ms[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneRequested, m.Status)
}

func TestMilestoneConfirmRules(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e := createHeld(t, svc, 10_000_000)
	ms, err := svc.CreateMilestones(ctx, e.ID, model.DefaultMilestones())
	require.NoError(t, err)
	first := ms[0]

	// Confirmation requires a request first.
	_, err = svc.ConfirmCompletion(ctx, "owner-1", first.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeMilestoneInvalidStatus))

	_, err = svc.RequestCompletion(ctx, "con-1", first.ID)
	require.NoError(t, err)

	// Only the homeowner on the escrow may confirm.
	_, err = svc.ConfirmCompletion(ctx, "someone-else", first.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))
}

func TestMilestoneDispute(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e := createHeld(t, svc, 10_000_000)
	ms, err := svc.CreateMilestones(ctx, e.ID, model.DefaultMilestones())
	require.NoError(t, err)

	_, err = svc.RequestCompletion(ctx, "con-1", ms[0].ID)
	require.NoError(t, err)

	m, err := svc.DisputeMilestone(ctx, "owner-1", ms[0].ID, "tiles are crooked")
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneDisputed, m.Status)
	assert.Equal(t, "tiles are crooked", m.DisputeReason)
}

func TestReleaseShare(t *testing.T) {
	svc, _, _ := newTestService()
	e := &model.Escrow{Amount: 10_000_000}
	m := &model.Milestone{ReleasePercentage: 50}
	assert.Equal(t, int64(5_000_000), svc.ReleaseShare(e, m))
}

func TestConfirmDepositOnlyOnce(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e := createHeld(t, svc, 1_000_000)
	_, err := svc.ConfirmDeposit(ctx, "admin-1", e.ID, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeEscrowInvalidTransition))
}
