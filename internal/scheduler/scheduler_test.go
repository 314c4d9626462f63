package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/store"
)

const testTenant = "66666666-6666-6666-6666-666666666666"
const testWarehouse = "77777777-7777-7777-7777-777777777777"

type fakeEnumerator struct {
	tenants    []string
	warehouses map[string][]store.Warehouse
}

func (f *fakeEnumerator) ListActiveTenants(ctx context.Context) ([]string, error) {
	return f.tenants, nil
}

func (f *fakeEnumerator) ListActiveWarehouses(ctx context.Context, tenantID string) ([]store.Warehouse, error) {
	return f.warehouses[tenantID], nil
}

type fakeRecorder struct {
	mu   sync.Mutex
	envs []envelope.Envelope
}

func (f *fakeRecorder) AppendEvent(ctx context.Context, env envelope.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envs = append(f.envs, env)
	return nil
}

type fakeEnqueuer struct {
	mu      sync.Mutex
	batches [][]envelope.Envelope
}

func (f *fakeEnqueuer) EnqueueBatch(ctx context.Context, envs []envelope.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, envs)
	return nil
}

type fakeGC struct {
	mu     sync.Mutex
	called bool
	cutoff time.Time
}

func (f *fakeGC) GC(ctx context.Context, publishedBefore time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = true
	f.cutoff = publishedBefore
	return 3, nil
}

func newTestScheduler(jobs []Job, enum Enumerator, rec EventRecorder, enq Enqueuer, gc OutboxGC) *Scheduler {
	return New(jobs, enum, rec, enq, gc, nil)
}

func TestRunJob_FansOutPerTenantAndWarehouse(t *testing.T) {
	enum := &fakeEnumerator{
		tenants: []string{testTenant},
		warehouses: map[string][]store.Warehouse{
			testTenant: {{ID: testWarehouse, TenantID: testTenant}},
		},
	}
	rec := &fakeRecorder{}
	enq := &fakeEnqueuer{}
	s := newTestScheduler(DefaultJobs(), enum, rec, enq, &fakeGC{})

	job := Job{Name: "lot-expiry-check", EventType: "Scheduled.ExpiryCheck"}
	s.runJob(context.Background(), job)

	require.Len(t, rec.envs, 1)
	env := rec.envs[0]
	require.Equal(t, "Scheduled.ExpiryCheck", env.EventType)
	require.Equal(t, testTenant, env.TenantID)
	require.Equal(t, testWarehouse, env.WarehouseID)
	require.Equal(t, envelope.ActorSystem, env.Actor.Type)
	require.Equal(t, "scheduler", env.Actor.ID)
	require.Equal(t, "lot-expiry-check", env.Payload["job_name"])
	require.Equal(t, "scheduler", env.Payload["triggered_by"])
	require.Equal(t, testWarehouse, env.Payload["warehouse_id"])

	require.Len(t, enq.batches, 1)
	require.Len(t, enq.batches[0], 1)
}

func TestRunJob_TenantScopeSkipsEnumeration(t *testing.T) {
	enum := &fakeEnumerator{
		tenants: []string{"99999999-9999-9999-9999-999999999999"}, // should never be used
		warehouses: map[string][]store.Warehouse{
			testTenant: {{ID: testWarehouse, TenantID: testTenant}},
		},
	}
	rec := &fakeRecorder{}
	enq := &fakeEnqueuer{}
	s := newTestScheduler(nil, enum, rec, enq, &fakeGC{})

	job := Job{Name: "scoped-job", EventType: "Scheduled.ExpiryCheck", TenantScope: testTenant}
	s.runJob(context.Background(), job)

	require.Len(t, rec.envs, 1)
	require.Equal(t, testTenant, rec.envs[0].TenantID)
}

func TestRunJob_NoWarehousesEnqueuesNothing(t *testing.T) {
	enum := &fakeEnumerator{tenants: []string{testTenant}, warehouses: map[string][]store.Warehouse{}}
	rec := &fakeRecorder{}
	enq := &fakeEnqueuer{}
	s := newTestScheduler(nil, enum, rec, enq, &fakeGC{})

	s.runJob(context.Background(), Job{Name: "lot-expiry-check", EventType: "Scheduled.ExpiryCheck"})

	require.Empty(t, rec.envs)
	require.Empty(t, enq.batches)
}

func TestRunJob_InternalJobRunsGCWithoutEnvelope(t *testing.T) {
	enum := &fakeEnumerator{}
	rec := &fakeRecorder{}
	enq := &fakeEnqueuer{}
	gc := &fakeGC{}
	s := newTestScheduler(nil, enum, rec, enq, gc)

	job := Job{Name: "outbox-cleanup", EventType: "internal:outbox-cleanup"}
	s.runJob(context.Background(), job)

	require.True(t, gc.called)
	require.Empty(t, rec.envs)
	require.Empty(t, enq.batches)
	require.WithinDuration(t, time.Now().UTC().Add(-outboxGCRetention), gc.cutoff, time.Minute)
}

func TestRunJob_PayloadSkeletonIsNotMutatedAcrossRuns(t *testing.T) {
	enum := &fakeEnumerator{
		tenants: []string{testTenant},
		warehouses: map[string][]store.Warehouse{
			testTenant: {{ID: testWarehouse, TenantID: testTenant}},
		},
	}
	rec := &fakeRecorder{}
	enq := &fakeEnqueuer{}
	s := newTestScheduler(nil, enum, rec, enq, &fakeGC{})

	skeleton := map[string]interface{}{"scope": "all"}
	job := Job{Name: "abc-xyz-analysis", EventType: "Scheduled.AbcXyzAnalysis", PayloadSkeleton: skeleton}

	s.runJob(context.Background(), job)
	s.runJob(context.Background(), job)

	require.Len(t, skeleton, 1, "job's static payload skeleton must not accumulate merged fields")
	require.Len(t, rec.envs, 2)
}

func TestDefaultJobs_NamesAndCronMatchContract(t *testing.T) {
	jobs := DefaultJobs()
	require.Len(t, jobs, 5)

	byName := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		byName[j.Name] = j
	}

	require.Equal(t, "0 0 * * *", byName["lot-expiry-check"].CronExpr)
	require.Equal(t, "Scheduled.ExpiryCheck", byName["lot-expiry-check"].EventType)
	require.Equal(t, "0 2 1 * *", byName["abc-xyz-analysis"].CronExpr)
	require.Equal(t, "0 3 * * 0", byName["safety-stock-recalc"].CronExpr)
	require.Equal(t, "0 4 * * 0", byName["demand-forecast"].CronExpr)
	require.Equal(t, "internal:outbox-cleanup", byName["outbox-cleanup"].EventType)
}
