package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tokopulse/tokopulse/models"
)

// mutationCall records one platform mutation for assertions
type mutationCall struct {
	Op         MutationOp
	CampaignID int64
	Budget     *int64
}

type mutateReply struct {
	result MutationResult
	err    error
}

// fakePlatform scripts platform behavior: replies are consumed FIFO per
// mutation; once exhausted every mutation succeeds.
type fakePlatform struct {
	mu            sync.Mutex
	snaps         map[int64]CampaignSnapshot
	fetchErr      error
	fetchDelay    time.Duration
	replies       []mutateReply
	calls         []mutationCall
	panicOnMutate bool

	inflightFetches    int
	maxInflightFetches int
}

func (f *fakePlatform) FetchAllCampaigns(ctx context.Context, session *TokoSession) (map[int64]CampaignSnapshot, error) {
	f.mu.Lock()
	f.inflightFetches++
	if f.inflightFetches > f.maxInflightFetches {
		f.maxInflightFetches = f.inflightFetches
	}
	delay := f.fetchDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inflightFetches--
	f.mu.Unlock()

	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.snaps, nil
}

func (f *fakePlatform) Mutate(ctx context.Context, session *TokoSession, op MutationOp, campaignID int64, params MutationParams) (MutationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.panicOnMutate {
		panic("mutate exploded")
	}
	f.calls = append(f.calls, mutationCall{Op: op, CampaignID: campaignID, Budget: params.Budget})
	if len(f.replies) > 0 {
		reply := f.replies[0]
		f.replies = f.replies[1:]
		return reply.result, reply.err
	}
	return MutationResult{Success: true}, nil
}

func (f *fakePlatform) maxConcurrentFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflightFetches
}

func (f *fakePlatform) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakePlatform) callsCopy() []mutationCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mutationCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeSleep records requested durations without waiting
type fakeSleep struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (f *fakeSleep) sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.durations = append(f.durations, d)
	return nil
}

func (f *fakeSleep) recorded() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.durations))
	copy(out, f.durations)
	return out
}

// fakeCreds serves sessions for a fixed set of shops
type fakeCreds struct {
	sessions map[int64]*TokoSession
	err      error
}

func (f *fakeCreds) GetSession(ctx context.Context, tokoID int64) (*TokoSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[tokoID]
	if !ok {
		return nil, ErrSessionUnavailable
	}
	return s, nil
}

// fakeNotifier captures notifications
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	chats []int64
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, chatID)
	f.sent = append(f.sent, text)
	return f.err
}

func (f *fakeNotifier) sentCopy() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeLeaser scripts lease acquisition
type fakeLeaser struct {
	mu       sync.Mutex
	held     bool
	err      error
	acquires int
	releases int
}

func (f *fakeLeaser) Acquire(ctx context.Context, ruleID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	if f.err != nil {
		return false, f.err
	}
	return !f.held, nil
}

func (f *fakeLeaser) Release(ctx context.Context, ruleID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

// memLogRepo is an in-memory ExecutionLogRepository capturing saved rows
type memLogRepo struct {
	mu   sync.Mutex
	rows []*models.ExecutionLog
}

func (m *memLogRepo) Save(ctx context.Context, entity *models.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entity.ID = uint(len(m.rows) + 1)
	m.rows = append(m.rows, entity)
	return nil
}

func (m *memLogRepo) SaveBatch(ctx context.Context, entities []*models.ExecutionLog) error {
	for _, e := range entities {
		if err := m.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *memLogRepo) ByID(ctx context.Context, id uint) (*models.ExecutionLog, error) {
	return nil, nil
}

func (m *memLogRepo) ByFilter(ctx context.Context, filter models.ExecutionLogFilter, orderBy string, limit, offset int) ([]*models.ExecutionLog, error) {
	return nil, nil
}

func (m *memLogRepo) ListByRule(ctx context.Context, ruleID uint, limit, offset int) ([]*models.ExecutionLog, error) {
	return m.rowsCopy(), nil
}

func (m *memLogRepo) ListByRuleAndCampaign(ctx context.Context, ruleID uint, campaignID int64, limit, offset int) ([]*models.ExecutionLog, error) {
	return nil, nil
}

func (m *memLogRepo) CountByRuleAndStatus(ctx context.Context, ruleID uint, status models.ExecutionStatus) (int64, error) {
	var n int64
	for _, r := range m.rowsCopy() {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memLogRepo) DeleteByRule(ctx context.Context, ruleID uint) error { return nil }

func (m *memLogRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *memLogRepo) rowsCopy() []*models.ExecutionLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.ExecutionLog, len(m.rows))
	copy(out, m.rows)
	return out
}

// memRuleRepo is an in-memory RuleRepository capturing statistic increments
type memRuleRepo struct {
	mu         sync.Mutex
	increments []bool
	touched    []time.Time
}

func (m *memRuleRepo) Save(ctx context.Context, entity *models.Rule) error        { return nil }
func (m *memRuleRepo) SaveBatch(ctx context.Context, entities []*models.Rule) error { return nil }
func (m *memRuleRepo) ByID(ctx context.Context, id uint) (*models.Rule, error)    { return nil, nil }

func (m *memRuleRepo) ByFilter(ctx context.Context, filter models.RuleFilter, orderBy string, limit, offset int) ([]*models.Rule, error) {
	return nil, nil
}

func (m *memRuleRepo) ByUUID(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	return nil, nil
}

func (m *memRuleRepo) ListActive(ctx context.Context, limit, offset int) ([]*models.Rule, error) {
	return nil, nil
}

func (m *memRuleRepo) IncrementStatistics(ctx context.Context, ruleID uint, succeeded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.increments = append(m.increments, succeeded)
	return nil
}

func (m *memRuleRepo) TouchLastExecuted(ctx context.Context, ruleID uint, executedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, executedAt)
	return nil
}

func (m *memRuleRepo) Delete(ctx context.Context, ruleID uint) error { return nil }

func (m *memRuleRepo) incrementsCopy() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bool, len(m.increments))
	copy(out, m.increments)
	return out
}
