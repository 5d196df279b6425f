package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
	"coursegen-pipeline/internal/domain/ports/repository"
)

// --- in-memory repositories used by unit tests ---

type memJobRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Job
}

func newMemJobRepo() *memJobRepo { return &memJobRepo{store: map[string]*model.Job{}} }

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) FindByPlanID(ctx context.Context, tx repository.Tx, planID string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.store {
		if j.PlanID == planID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memJobRepo) FindActiveByEmployee(ctx context.Context, tx repository.Tx, employeeID, companyID string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.store {
		if j.EmployeeID == employeeID && j.CompanyID == companyID && j.Status == model.JobStatusRunning {
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memJobRepo) ListStale(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, j := range m.store {
		if j.Status == model.JobStatusRunning && j.UpdatedAt.Before(cutoff) {
			cp := *j
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type memPlanRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Plan
}

func newMemPlanRepo() *memPlanRepo { return &memPlanRepo{store: map[string]*model.Plan{}} }

func (m *memPlanRepo) Create(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[plan.ID]; ok {
		return domain.ErrAlreadyExists
	}
	plan.Version = 1
	cp := *plan
	m.store[plan.ID] = &cp
	return nil
}

func (m *memPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPlanRepo) Update(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[plan.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != plan.Version {
		return domain.ErrConcurrencyConflict
	}
	plan.Version++
	cp := *plan
	m.store[plan.ID] = &cp
	return nil
}

type memResearchRepo struct {
	mu    sync.RWMutex
	store map[string]*model.ResearchSession
}

func newMemResearchRepo() *memResearchRepo {
	return &memResearchRepo{store: map[string]*model.ResearchSession{}}
}

func (m *memResearchRepo) Create(ctx context.Context, tx repository.Tx, s *model.ResearchSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.PlanID == s.PlanID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *memResearchRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ResearchSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memResearchRepo) FindByPlanID(ctx context.Context, tx repository.Tx, planID string) (*model.ResearchSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.store {
		if s.PlanID == planID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

type memContentRepo struct {
	mu    sync.RWMutex
	store map[string]*model.ModuleContent
}

func newMemContentRepo() *memContentRepo {
	return &memContentRepo{store: map[string]*model.ModuleContent{}}
}

func (m *memContentRepo) Create(ctx context.Context, tx repository.Tx, c *model.ModuleContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[c.ID]; ok {
		return domain.ErrAlreadyExists
	}
	c.Version = 1
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *memContentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ModuleContent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memContentRepo) Update(ctx context.Context, tx repository.Tx, c *model.ModuleContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[c.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != c.Version {
		return domain.ErrConcurrencyConflict
	}
	c.Version++
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *memContentRepo) ListByPlan(ctx context.Context, tx repository.Tx, planID string) ([]*model.ModuleContent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ModuleContent
	for _, c := range m.store {
		if c.PlanID == planID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleIndex < out[j].ModuleIndex })
	return out, nil
}

func (m *memContentRepo) CountByPlan(ctx context.Context, tx repository.Tx, planID string) (int, error) {
	list, _ := m.ListByPlan(ctx, tx, planID)
	return len(list), nil
}

type memAssessmentRepo struct {
	mu    sync.RWMutex
	store []*model.QualityAssessment
}

func newMemAssessmentRepo() *memAssessmentRepo { return &memAssessmentRepo{} }

func (m *memAssessmentRepo) Create(ctx context.Context, tx repository.Tx, a *model.QualityAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.store = append(m.store, &cp)
	return nil
}

func (m *memAssessmentRepo) ListByContent(ctx context.Context, tx repository.Tx, contentID string) ([]*model.QualityAssessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.QualityAssessment
	for _, a := range m.store {
		if a.ContentID == contentID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attempt < out[j].Attempt })
	return out, nil
}

func (m *memAssessmentRepo) LatestByContent(ctx context.Context, tx repository.Tx, contentID string) (*model.QualityAssessment, error) {
	list, _ := m.ListByContent(ctx, tx, contentID)
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return list[len(list)-1], nil
}

type memHandoffRepo struct {
	mu    sync.RWMutex
	store []*model.HandoffRecord
}

func newMemHandoffRepo() *memHandoffRepo { return &memHandoffRepo{} }

func (m *memHandoffRepo) Append(ctx context.Context, tx repository.Tx, rec *model.HandoffRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.store = append(m.store, &cp)
	return nil
}

func (m *memHandoffRepo) Latest(ctx context.Context, tx repository.Tx, jobID string) (*model.HandoffRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.store) - 1; i >= 0; i-- {
		if m.store[i].JobID == jobID {
			cp := *m.store[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memHandoffRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.HandoffRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.HandoffRecord
	for _, r := range m.store {
		if r.JobID == jobID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memTxManager satisfies the port without a database; callbacks run with a
// nil handle which every repository accepts.
type memTxManager struct{}

func (memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// --- fakes for adapters and run manager collaborators ---

// fakeExecutor scripts one stage with a func field.
type fakeExecutor struct {
	stage model.Stage
	fn    func(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error)
	calls int
	mu    sync.Mutex
}

func (f *fakeExecutor) Stage() model.Stage { return f.stage }

func (f *fakeExecutor) Execute(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(ctx, jobID, inputRef)
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memStatusCache struct {
	mu    sync.RWMutex
	store map[string]*model.Job
}

func newMemStatusCache() *memStatusCache { return &memStatusCache{store: map[string]*model.Job{}} }

func (m *memStatusCache) Put(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memStatusCache) Get(ctx context.Context, jobID string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.store[jobID]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	jobs []*model.Job
}

func (f *fakeNotifier) NotifyRunFinished(ctx context.Context, job *model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs = append(f.jobs, &cp)
	return nil
}
