package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/repository/memory"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/stretchr/testify/require"
)

const testSecretKey = "0123456789abcdef0123456789abcdef"

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu        sync.Mutex
	calls     []models.Credentials
	fail      map[string]error
	probeFail map[string]error
	delay     time.Duration
	inFlight  map[int64]int
	overlap   bool
	onPublish func(creds models.Credentials)
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		fail:      make(map[string]error),
		probeFail: make(map[string]error),
		inFlight:  make(map[int64]int),
	}
}

func (p *fakePublisher) PublishVariant(ctx context.Context, artifactRef, caption string, creds models.Credentials) error {
	p.mu.Lock()
	p.calls = append(p.calls, creds)
	p.inFlight[creds.AccountID]++
	if p.inFlight[creds.AccountID] > 1 {
		p.overlap = true
	}
	err := p.fail[creds.Username]
	delay := p.delay
	hook := p.onPublish
	p.mu.Unlock()

	if hook != nil {
		hook(creds)
	}

	defer func() {
		p.mu.Lock()
		p.inFlight[creds.AccountID]--
		p.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *fakePublisher) ProbeAccount(_ context.Context, creds models.Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probeFail[creds.Username]
}

func (p *fakePublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeScheduler struct {
	mu  sync.Mutex
	ats []time.Time
}

func (s *fakeScheduler) SchedulePass(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ats = append(s.ats, at)
	return nil
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Upload(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

type fakeProcessor struct {
	err error
}

func (p *fakeProcessor) ProcessAsset(_ context.Context, a *models.Asset) (map[models.VariantKind]string, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[models.VariantKind]string)
	for _, k := range a.RequestedVariants() {
		out[k] = "variants/" + string(k) + ".mp4"
	}
	return out, nil
}

var errPlatform = errors.New("platform exploded")

// racingAccounts runs a hook right after selected reads, standing in for an
// operator change that lands between a read and the write that depends on it.
type racingAccounts struct {
	repository.AccountRepository
	afterListByIDs func()
	afterGet       func()
}

func (r *racingAccounts) ListByIDs(ctx context.Context, ids []int64) ([]*models.Account, error) {
	out, err := r.AccountRepository.ListByIDs(ctx, ids)
	if r.afterListByIDs != nil {
		r.afterListByIDs()
	}
	return out, err
}

func (r *racingAccounts) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	out, err := r.AccountRepository.GetByID(ctx, id)
	if r.afterGet != nil {
		r.afterGet()
	}
	return out, err
}

// blockingProcessor holds ProcessAsset until release is closed.
type blockingProcessor struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingProcessor) ProcessAsset(_ context.Context, a *models.Asset) (map[models.VariantKind]string, error) {
	close(p.started)
	<-p.release
	return map[models.VariantKind]string{models.VariantVertical: "variants/v.mp4"}, nil
}

// env wires every service against one in-memory store.
type env struct {
	store     *memory.Store
	clock     *FixedClock
	publisher *fakePublisher
	scheduler *fakeScheduler
	objects   *fakeObjects
	processor *fakeProcessor

	accounts AccountService
	assets   AssetService
	jobs     JobService
	dispatch DispatchService
	stats    StatsService
}

func newEnv(t *testing.T, opts DispatchOptions) *env {
	t.Helper()
	e := &env{
		store:     memory.NewStore(),
		clock:     NewFixedClock(t0),
		publisher: newFakePublisher(),
		scheduler: &fakeScheduler{},
		objects:   newFakeObjects(),
		processor: &fakeProcessor{},
	}
	e.store.SetNow(e.clock.Now)

	e.accounts = NewAccountService(e.store.Accounts(), e.publisher, testSecretKey)
	e.assets = NewAssetService(e.store.Assets(), e.objects, e.processor, e.clock, 30*time.Minute)
	e.jobs = NewJobService(e.store.Jobs(), e.store.Accounts(), e.store.Assets(), e.store.Attempts(),
		e.scheduler, e.clock, JobOptions{MaxRetries: 3, IntervalMinutes: 5, RetryDelay: 5 * time.Minute})
	e.dispatch = NewDispatchService(e.store.Jobs(), e.store.Accounts(), e.store.Attempts(),
		e.accounts, e.publisher, e.clock, opts)
	e.stats = NewStatsService(e.store.Stats(), e.clock, 24*time.Hour, time.UTC)
	return e
}

func (e *env) account(t *testing.T, username string) *models.Account {
	t.Helper()
	a, err := e.accounts.Register(context.Background(), &transfer.AccountCreation{Username: username, Password: "pw-" + username})
	require.NoError(t, err)
	return a
}

func (e *env) setStatus(t *testing.T, id int64, status models.AccountStatus) {
	t.Helper()
	_, err := e.accounts.Update(context.Background(), id, &transfer.AccountUpdate{Status: string(status)})
	require.NoError(t, err)
}

// processedAsset stores an asset that already has the given variants.
func (e *env) processedAsset(t *testing.T, variants map[models.VariantKind]string) *models.Asset {
	t.Helper()
	ctx := context.Background()
	a := &models.Asset{OriginalFilename: "clip.mp4", ObjectKey: "sources/clip.mp4", Caption: "hello", Status: models.AssetStatusProcessing}
	_, err := e.store.Assets().Create(ctx, a)
	require.NoError(t, err)
	ok, err := e.store.Assets().TransitionStatus(ctx, a.ID, []models.AssetStatus{models.AssetStatusProcessing}, models.AssetStatusProcessed, variants)
	require.NoError(t, err)
	require.True(t, ok)
	a.Status = models.AssetStatusProcessed
	a.Variants = variants
	return a
}

func (e *env) job(t *testing.T, id int64) *models.PostingJob {
	t.Helper()
	j, err := e.store.Jobs().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, j)
	return j
}

func intPtr(v int) *int { return &v }
