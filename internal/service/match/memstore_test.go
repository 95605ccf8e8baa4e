package match

import (
	"context"
	"sort"
	"sync"
	"time"

	"renobroker/internal/model"
	"renobroker/internal/repository"
)

// In-memory document stores with the same version-guard semantics as the
// real repositories, so the saga's conflict handling is exercised for real.

type memProjects struct {
	mu sync.Mutex
	m  map[string]model.Project
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
	delete(s.m, id)
	return nil
}

func (s *memProjects) ListByStatus(ctx context.Context, status model.ProjectStatus, limit int) ([]*model.Project, error) {
	return nil, nil
}

func (s *memProjects) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.Project, error) {
	return nil, nil
}

type memBids struct {
	mu sync.Mutex
	m  map[string]model.Bid
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

type memEscrows struct {
	mu sync.Mutex
	m  map[string]model.Escrow
}

func (s *memEscrows) Create(ctx context.Context, e *model.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[e.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range s.m {
		if existing.ProjectID == e.ProjectID {
			return repository.ErrDuplicate
		}
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

type memFees struct {
	mu sync.Mutex
	m  map[string]model.FeeTransaction
}

func (s *memFees) Create(ctx context.Context, f *model.FeeTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[f.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range s.m {
		if existing.ProjectID == f.ProjectID && existing.BidID == f.BidID && existing.Type == f.Type {
			return repository.ErrDuplicate
		}
	}
	f.Version = 1
	s.m[f.ID] = *f
	return nil
}

func (s *memFees) Get(ctx context.Context, id string) (*model.FeeTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := f
	return &cp, nil
}

func (s *memFees) Update(ctx context.Context, f *model.FeeTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.m[f.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.Version != f.Version {
		return repository.ErrConflict
	}
	f.Version++
	s.m[f.ID] = *f
	return nil
}

func (s *memFees) ListByProject(ctx context.Context, projectID string) ([]*model.FeeTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.FeeTransaction
	for _, f := range s.m {
		if f.ProjectID == projectID {
			cp := f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memFees) ListByUser(ctx context.Context, userID string) ([]*model.FeeTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.FeeTransaction
	for _, f := range s.m {
		if f.UserID == userID {
			cp := f
			out = append(out, &cp)
		}
	}
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

type memRuns struct {
	mu sync.Mutex
	m  map[string]model.MatchRun
}

func (s *memRuns) Upsert(ctx context.Context, run *model.MatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[string]model.MatchRun)
	}
	existing, ok := s.m[run.ProjectID]
	if ok {
		run.CreatedAt = existing.CreatedAt
	} else {
		run.CreatedAt = time.Now()
	}
	run.UpdatedAt = time.Now()
	s.m[run.ProjectID] = *run
	return nil
}

func (s *memRuns) Get(ctx context.Context, projectID string) (*model.MatchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.m[projectID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := run
	return &cp, nil
}

func (s *memRuns) ListByState(ctx context.Context, state string, limit int) ([]*model.MatchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.MatchRun
	for _, run := range s.m {
		if run.State == state {
			cp := run
			out = append(out, &cp)
		}
	}
	return out, nil
}
