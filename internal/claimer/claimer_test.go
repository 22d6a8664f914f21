package claimer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/capacity"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/definitions"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/store"
)

// captureLogger records warnings
type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (c *captureLogger) Debug(context.Context, string, ...zap.Field) {}
func (c *captureLogger) Info(context.Context, string, ...zap.Field)  {}
func (c *captureLogger) Error(context.Context, string, ...zap.Field) {}
func (c *captureLogger) Warn(_ context.Context, msg string, _ ...zap.Field) {
	c.mu.Lock()
	c.warns = append(c.warns, msg)
	c.mu.Unlock()
}
func (c *captureLogger) With(...zap.Field) logging.Logger { return c }
func (c *captureLogger) Sync() error                      { return nil }

// spyStore wraps the memory store, records claim queries and injects failures
type spyStore struct {
	*store.MemoryStore
	mu       sync.Mutex
	queried  []string
	ubqErr   error
	fetchErr error
	failType string // UpdateByQuery / Search fail only for batches holding this type
	condErr  map[string]error
	panicOn  string
	// ConditionalUpdate panics for this id
	condPanic string
}

func newSpyStore() *spyStore { return &spyStore{MemoryStore: store.NewMemoryStore()} }

func (s *spyStore) record(q store.ClaimQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queried = append(s.queried, q.TaskTypes...)
	for _, t := range q.TaskTypes {
		if t == s.panicOn {
			panic("boom")
		}
		if s.failType != "" && t == s.failType {
			return errors.New("store unavailable")
		}
	}
	return s.ubqErr
}

func (s *spyStore) queriedTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queried...)
}

func (s *spyStore) UpdateByQuery(ctx context.Context, q store.ClaimQuery, u store.ClaimUpdate) (store.UpdateByQueryResult, error) {
	if err := s.record(q); err != nil {
		return store.UpdateByQueryResult{}, err
	}
	return s.MemoryStore.UpdateByQuery(ctx, q, u)
}

func (s *spyStore) Search(ctx context.Context, q store.ClaimQuery) ([]*model.TaskInstance, error) {
	if err := s.record(q); err != nil {
		return nil, err
	}
	return s.MemoryStore.Search(ctx, q)
}

func (s *spyStore) FetchClaimed(ctx context.Context, q store.ClaimedQuery) ([]*model.TaskInstance, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.MemoryStore.FetchClaimed(ctx, q)
}

func (s *spyStore) ConditionalUpdate(ctx context.Context, id string, version int64, u store.ClaimUpdate) (*model.TaskInstance, error) {
	if id == s.condPanic {
		panic("driver blew up")
	}
	if err := s.condErr[id]; err != nil {
		return nil, err
	}
	return s.MemoryStore.ConditionalUpdate(ctx, id, version, u)
}

type fixedPartitions struct {
	parts []int
	err   error
}

func (f fixedPartitions) Partitions(context.Context) ([]int, error) { return f.parts, f.err }

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recordingSink) Publish(_ context.Context, ev model.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

var strategies = []struct {
	name string
	fn   TaskClaimer
}{
	{string(consts.StrategyUpdateByQuery), ClaimAvailableTasksUpdateByQuery},
	{string(consts.StrategyMget), ClaimAvailableTasksMget},
}

func newOpts(st store.TaskStore, defs *definitions.Registry, acct *capacity.Accountant, node string, now time.Time) Opts {
	return Opts{
		NodeID:              node,
		Capacity:            acct.Capacity,
		ClaimOwnershipUntil: now.Add(30 * time.Second).Truncate(time.Millisecond),
		Now:                 now,
		StaleBefore:         now,
		Batches:             BuildBatches(defs, nil),
		Store:               st,
		Definitions:         defs,
		UpdateConcurrency:   4,
	}
}

func idle(id, taskType string, runAt time.Time) *model.TaskInstance {
	return &model.TaskInstance{ID: id, TaskType: taskType, Status: consts.StatusIdle, RunAt: runAt, Enabled: true}
}

func TestEmptyClaimOwnershipResult(t *testing.T) {
	r := EmptyClaimOwnershipResult()
	if r.Stats != (model.ClaimStats{}) {
		t.Fatalf("stats not zeroed: %+v", r.Stats)
	}
	if r.Docs == nil || len(r.Docs) != 0 {
		t.Fatalf("docs must be an empty sequence")
	}
	if r.Timing != nil {
		t.Fatal("empty result carries no timing")
	}
	// callers must not share state through the returned value
	r.Stats.TasksClaimed = 5
	if EmptyClaimOwnershipResult().Stats.TasksClaimed != 0 {
		t.Fatal("empty result mutated")
	}
}

func TestGetTaskClaimer(t *testing.T) {
	cl := &captureLogger{}
	logging.SetGlobalLogger(cl)
	defer logging.SetGlobalLogger(nil)
	warnedOnInvalidClaimer.Store(false)

	ptr := func(f TaskClaimer) uintptr { return reflect.ValueOf(f).Pointer() }
	ubq := ptr(ClaimAvailableTasksUpdateByQuery)

	if ptr(GetTaskClaimer("update_by_query")) != ubq {
		t.Fatal("update_by_query not selected")
	}
	if ptr(GetTaskClaimer("mget")) != ptr(ClaimAvailableTasksMget) {
		t.Fatal("mget not selected")
	}
	for i := 0; i < 3; i++ {
		if ptr(GetTaskClaimer("bogus")) != ubq {
			t.Fatalf("call %d: unknown strategy must fall back to update_by_query", i)
		}
	}
	if len(cl.warns) != 1 {
		t.Fatalf("expected exactly one warning, got %d: %v", len(cl.warns), cl.warns)
	}
	if cl.warns[0] != `Unknown task claiming strategy "bogus", falling back to update_by_query` {
		t.Fatalf("unexpected warning %q", cl.warns[0])
	}
	if ResolveStrategy("bogus") != consts.StrategyUpdateByQuery || ResolveStrategy("mget") != consts.StrategyMget {
		t.Fatal("ResolveStrategy mismatch")
	}
}

func TestBuildBatches(t *testing.T) {
	defs := definitions.NewStatic(
		definitions.Definition{Type: "report", MaxConcurrency: 2, Priority: 1},
		definitions.Definition{Type: "alert", MaxConcurrency: 1, Priority: 5},
		definitions.Definition{Type: "email"},
		definitions.Definition{Type: "sms"},
		definitions.Definition{Type: "internal:cleanup", MaxConcurrency: 1},
		definitions.Definition{Type: "internal:gc"},
	)
	got := BuildBatches(defs, []string{"internal:*"})
	want := []model.ClaimBatch{
		{Name: "limited:alert", TaskTypes: []string{"alert"}, Limited: true},
		{Name: "limited:report", TaskTypes: []string{"report"}, Limited: true},
		{Name: "unlimited", TaskTypes: []string{"email", "sms"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("batches\n got %+v\nwant %+v", got, want)
	}
}

func TestPlanBatchesNeverExceedsGlobal(t *testing.T) {
	defs := definitions.NewStatic(
		definitions.Definition{Type: "a", MaxConcurrency: 3},
		definitions.Definition{Type: "b", MaxConcurrency: 3},
		definitions.Definition{Type: "c"},
	)
	opts := Opts{
		Capacity:    capacity.New(4, map[string]int{"a": 3, "b": 0}).Capacity,
		Batches:     BuildBatches(defs, nil),
		Definitions: defs,
	}
	plan := planBatches(opts)
	total := 0
	for _, b := range plan {
		if b.Name == "limited:b" {
			t.Fatal("saturated type must not be planned")
		}
		total += b.size
	}
	if total != 4 || plan[0].size != 3 || plan[1].size != 1 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestClaimSetsOwnershipUntil(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			now := time.Now().UTC()
			st := store.NewMemoryStore()
			st.Put(idle("t1", "report", now.Add(-time.Second)))
			f := &model.TaskInstance{ID: "t2", TaskType: "report", Status: consts.StatusFailed, Attempts: 1, RunAt: now, Enabled: true}
			st.Put(f)
			defs := definitions.NewStatic(definitions.Definition{Type: "report"})
			opts := newOpts(st, defs, capacity.New(10, nil), "node-a", now)

			res := s.fn(context.Background(), opts)
			if res.Stats.TasksClaimed != 2 || len(res.Docs) != 2 {
				t.Fatalf("claimed %d docs=%d", res.Stats.TasksClaimed, len(res.Docs))
			}
			if res.Docs[0].ID != "t1" {
				t.Fatalf("overdue first, got %s", res.Docs[0].ID)
			}
			for _, d := range res.Docs {
				if d.RetryAt == nil || !d.RetryAt.Equal(opts.ClaimOwnershipUntil) {
					t.Fatalf("%s retryAt=%v want %v", d.ID, d.RetryAt, opts.ClaimOwnershipUntil)
				}
				if d.Owner != "node-a" || d.Status != consts.StatusClaiming {
					t.Fatalf("%s owner=%s status=%s", d.ID, d.Owner, d.Status)
				}
			}
			got, _ := st.Get("t2")
			if got.Attempts != 2 {
				t.Fatalf("failed instance attempts=%d want 2", got.Attempts)
			}
			if res.Timing == nil {
				t.Fatal("completed round carries timing")
			}
		})
	}
}

func TestExhaustedInstanceNeverClaimed(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			now := time.Now().UTC()
			st := store.NewMemoryStore()
			st.Put(&model.TaskInstance{ID: "done", TaskType: "report", Status: consts.StatusFailed, Attempts: 3, RunAt: now, Enabled: true})
			st.Put(&model.TaskInstance{ID: "idle-max", TaskType: "report", Status: consts.StatusIdle, Attempts: 3, RunAt: now, Enabled: true})
			st.Put(idle("fresh", "report", now))
			defs := definitions.NewStatic(definitions.Definition{Type: "report"})
			opts := newOpts(st, defs, capacity.New(10, nil), "n", now)
			opts.TaskMaxAttempts = map[string]int{"report": 3}

			res := s.fn(context.Background(), opts)
			for _, d := range res.Docs {
				if d.ID == "done" || d.ID == "idle-max" {
					t.Fatalf("exhausted instance %s claimed", d.ID)
				}
			}
			if res.Stats.TasksClaimed != 1 {
				t.Fatalf("claimed=%d want 1", res.Stats.TasksClaimed)
			}
		})
	}
}

func TestZeroCapacityTypeIssuesNoQuery(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			now := time.Now().UTC()
			st := newSpyStore()
			st.Put(idle("r1", "report", now))
			st.Put(idle("e1", "email", now))
			defs := definitions.NewStatic(
				definitions.Definition{Type: "report", MaxConcurrency: 1},
				definitions.Definition{Type: "email"},
			)
			opts := newOpts(st, defs, capacity.New(5, map[string]int{"report": 0}), "n", now)

			res := s.fn(context.Background(), opts)
			for _, q := range st.queriedTypes() {
				if q == "report" {
					t.Fatal("saturated type was queried")
				}
			}
			if res.Stats.TasksClaimed != 1 || res.Docs[0].ID != "e1" {
				t.Fatalf("unexpected result %+v", res.Stats)
			}

			st2 := newSpyStore()
			st2.Put(idle("e1", "email", now))
			opts = newOpts(st2, defs, capacity.New(0, nil), "n", now)
			s.fn(context.Background(), opts)
			if len(st2.queriedTypes()) != 0 {
				t.Fatal("zero global capacity must not query")
			}
		})
	}
}

func TestPerTypeAndGlobalCapacity(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			now := time.Now().UTC()
			st := store.NewMemoryStore()
			for i := 0; i < 4; i++ {
				st.Put(idle(fmt.Sprintf("r%d", i), "report", now))
				st.Put(idle(fmt.Sprintf("e%d", i), "email", now))
			}
			defs := definitions.NewStatic(
				definitions.Definition{Type: "report", MaxConcurrency: 2},
				definitions.Definition{Type: "email"},
			)
			opts := newOpts(st, defs, capacity.New(5, map[string]int{"report": 1}), "n", now)
			res := s.fn(context.Background(), opts)

			perType := map[string]int{}
			for _, d := range res.Docs {
				perType[d.TaskType]++
			}
			if perType["report"] != 1 || perType["email"] != 4 {
				t.Fatalf("per type claims %v", perType)
			}
			if res.Stats.TasksClaimed > 5 {
				t.Fatalf("global capacity exceeded: %d", res.Stats.TasksClaimed)
			}
		})
	}
}

func TestConcurrentClaimantsSingleWinner(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			now := time.Now().UTC()
			st := store.NewMemoryStore()
			st.Put(idle("only", "report", now))
			defs := definitions.NewStatic(definitions.Definition{Type: "report"})

			const n = 16
			results := make([]model.ClaimOwnershipResult, n)
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					opts := newOpts(st, defs, capacity.New(1, nil), fmt.Sprintf("node-%d", i), now)
					results[i] = s.fn(context.Background(), opts)
				}(i)
			}
			close(start)
			wg.Wait()

			claimed := 0
			var winner string
			for i, r := range results {
				claimed += r.Stats.TasksClaimed
				if r.Stats.TasksClaimed == 1 {
					winner = fmt.Sprintf("node-%d", i)
				}
			}
			if claimed != 1 {
				t.Fatalf("claimed=%d want exactly 1", claimed)
			}
			got, _ := st.Get("only")
			if got.Owner != winner || got.Version != 2 {
				t.Fatalf("owner=%s version=%d winner=%s", got.Owner, got.Version, winner)
			}
		})
	}
}

func TestStaleClaimReclaimed(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			now := time.Now().UTC()
			expired := now.Add(-time.Minute)
			live := now.Add(time.Minute)
			st := store.NewMemoryStore()
			st.Put(&model.TaskInstance{ID: "crashed", TaskType: "report", Status: consts.StatusClaiming, Owner: "dead", RetryAt: &expired, RunAt: now.Add(-time.Hour), Enabled: true})
			st.Put(&model.TaskInstance{ID: "busy", TaskType: "report", Status: consts.StatusRunning, Owner: "alive", RetryAt: &live, RunAt: now.Add(-time.Hour), Enabled: true})
			defs := definitions.NewStatic(definitions.Definition{Type: "report"})
			opts := newOpts(st, defs, capacity.New(10, nil), "n", now)

			res := s.fn(context.Background(), opts)
			if res.Stats.StaleTasks != 1 || res.Stats.TasksClaimed != 1 || res.Docs[0].ID != "crashed" {
				t.Fatalf("stats=%+v", res.Stats)
			}
			busy, _ := st.Get("busy")
			if busy.Owner != "alive" {
				t.Fatal("live claim must not be taken over")
			}
		})
	}
}

func TestStoreErrorReturnsPartialResult(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			now := time.Now().UTC()
			st := newSpyStore()
			st.failType = "report"
			st.Put(idle("r1", "report", now))
			st.Put(idle("e1", "email", now))
			defs := definitions.NewStatic(
				definitions.Definition{Type: "report", MaxConcurrency: 5},
				definitions.Definition{Type: "email"},
			)
			opts := newOpts(st, defs, capacity.New(10, nil), "n", now)

			res := s.fn(context.Background(), opts)
			if res.Stats.TasksErrors != 1 {
				t.Fatalf("errors=%d want 1", res.Stats.TasksErrors)
			}
			if res.Stats.TasksClaimed != 1 || res.Docs[0].ID != "e1" {
				t.Fatalf("healthy batch lost: %+v", res.Stats)
			}
		})
	}
}

func TestPanicInsideStrategyIsContained(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			now := time.Now().UTC()
			st := newSpyStore()
			st.panicOn = "report"
			st.Put(idle("r1", "report", now))
			defs := definitions.NewStatic(definitions.Definition{Type: "report"})
			res := s.fn(context.Background(), newOpts(st, defs, capacity.New(10, nil), "n", now))
			if res.Stats.TasksErrors != 1 || res.Stats.TasksClaimed != 0 {
				t.Fatalf("stats=%+v", res.Stats)
			}
		})
	}
}

func TestMgetPanicInConditionalUpdateIsContained(t *testing.T) {
	now := time.Now().UTC()
	st := newSpyStore()
	st.condPanic = "a"
	st.Put(idle("a", "report", now.Add(-2*time.Second)))
	st.Put(idle("b", "report", now.Add(-time.Second)))
	defs := definitions.NewStatic(definitions.Definition{Type: "report"})
	opts := newOpts(st, defs, capacity.New(10, nil), "n", now)
	// 单 worker: 恐慌后 inflight 必须归零, 否则派发循环会卡在 cond.Wait
	opts.UpdateConcurrency = 1

	done := make(chan model.ClaimOwnershipResult, 1)
	go func() { done <- ClaimAvailableTasksMget(context.Background(), opts) }()
	var res model.ClaimOwnershipResult
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mget round hung after a worker panic")
	}
	if res.Stats.TasksErrors != 1 || res.Stats.TasksClaimed != 0 || res.Stats.TasksLeftUnclaimed != 1 {
		t.Fatalf("stats=%+v", res.Stats)
	}
	if got, _ := st.Get("b"); got.Owner != "" {
		t.Fatal("dispatch must stop after a failed update")
	}
}

func TestFetchClaimedErrorCounted(t *testing.T) {
	now := time.Now().UTC()
	st := newSpyStore()
	st.fetchErr = errors.New("read timeout")
	st.Put(idle("r1", "report", now))
	defs := definitions.NewStatic(definitions.Definition{Type: "report"})
	res := ClaimAvailableTasksUpdateByQuery(context.Background(), newOpts(st, defs, capacity.New(10, nil), "n", now))
	if res.Stats.TasksUpdated != 1 || res.Stats.TasksClaimed != 0 || res.Stats.TasksErrors != 1 {
		t.Fatalf("stats=%+v", res.Stats)
	}
}

func TestMgetConflictsNotRetried(t *testing.T) {
	now := time.Now().UTC()
	st := newSpyStore()
	for i := 0; i < 3; i++ {
		st.Put(idle(fmt.Sprintf("t%d", i), "report", now))
	}
	st.condErr = map[string]error{"t0": store.ErrConflict, "t1": store.ErrNotFound}
	defs := definitions.NewStatic(definitions.Definition{Type: "report"})
	opts := newOpts(st, defs, capacity.New(3, nil), "n", now)
	opts.UpdateConcurrency = 1

	res := ClaimAvailableTasksMget(context.Background(), opts)
	if res.Stats.TasksConflicted != 2 || res.Stats.TasksClaimed != 1 || res.Docs[0].ID != "t2" {
		t.Fatalf("stats=%+v", res.Stats)
	}
}

func TestMgetLookaheadStopsAtCapacity(t *testing.T) {
	now := time.Now().UTC()
	st := store.NewMemoryStore()
	for i := 0; i < 5; i++ {
		st.Put(idle(fmt.Sprintf("t%d", i), "report", now))
	}
	defs := definitions.NewStatic(definitions.Definition{Type: "report"})
	opts := newOpts(st, defs, capacity.New(3, nil), "n", now)
	opts.SearchLookahead = 2

	res := ClaimAvailableTasksMget(context.Background(), opts)
	if res.Stats.TasksClaimed != 3 || res.Stats.TasksLeftUnclaimed != 2 {
		t.Fatalf("stats=%+v", res.Stats)
	}
}

func TestClaimedConflictedLeftWithinCandidates(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			now := time.Now().UTC()
			st := newSpyStore()
			const eligible = 6
			for i := 0; i < eligible; i++ {
				st.Put(idle(fmt.Sprintf("t%d", i), "report", now))
			}
			st.condErr = map[string]error{"t1": store.ErrConflict}
			defs := definitions.NewStatic(definitions.Definition{Type: "report"})
			opts := newOpts(st, defs, capacity.New(4, nil), "n", now)
			opts.SearchLookahead = 3

			res := s.fn(context.Background(), opts)
			sum := res.Stats.TasksClaimed + res.Stats.TasksConflicted + res.Stats.TasksLeftUnclaimed
			if sum > eligible {
				t.Fatalf("claimed+conflicted+left=%d exceeds %d candidates (%+v)", sum, eligible, res.Stats)
			}
			if res.Stats.TasksClaimed != 4 {
				t.Fatalf("claimed=%d want 4", res.Stats.TasksClaimed)
			}
		})
	}
}

func TestPartitionsRestrictCandidates(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			now := time.Now().UTC()
			st := store.NewMemoryStore()
			mine, theirs := 10, 11
			in := idle("in", "report", now)
			in.Partition = &mine
			out := idle("out", "report", now)
			out.Partition = &theirs
			st.Put(in)
			st.Put(out)
			defs := definitions.NewStatic(definitions.Definition{Type: "report"})
			opts := newOpts(st, defs, capacity.New(10, nil), "n", now)
			opts.Partitioner = fixedPartitions{parts: []int{mine}}

			res := s.fn(context.Background(), opts)
			if len(res.Docs) != 1 || res.Docs[0].ID != "in" {
				t.Fatalf("docs=%v", res.DocIDs())
			}

			opts.Partitioner = fixedPartitions{err: errors.New("membership down")}
			res = s.fn(context.Background(), opts)
			if res.Stats.TasksErrors != 1 || res.Stats.TasksClaimed != 0 {
				t.Fatalf("partition failure stats=%+v", res.Stats)
			}
		})
	}
}

func TestUnrecognizedTypesMarked(t *testing.T) {
	now := time.Now().UTC()
	st := store.NewMemoryStore()
	st.Put(idle("ghost", "removed-type", now))
	st.Put(idle("ok", "report", now))
	defs := definitions.NewStatic(definitions.Definition{Type: "report"})
	res := ClaimAvailableTasksMget(context.Background(), newOpts(st, defs, capacity.New(10, nil), "n", now))
	if res.Stats.TasksClaimed != 1 {
		t.Fatalf("claimed=%d", res.Stats.TasksClaimed)
	}
	ghost, _ := st.Get("ghost")
	if ghost.Status != consts.StatusUnrecognized {
		t.Fatalf("ghost status=%s", ghost.Status)
	}
}

func TestTaskClaimEventPublished(t *testing.T) {
	now := time.Now().UTC()
	st := store.NewMemoryStore()
	st.Put(idle("t1", "report", now))
	defs := definitions.NewStatic(definitions.Definition{Type: "report"})
	sink := &recordingSink{}
	opts := newOpts(st, defs, capacity.New(10, nil), "node-a", now)
	opts.Events = sink

	ClaimAvailableTasksUpdateByQuery(context.Background(), opts)
	if len(sink.events) != 1 {
		t.Fatalf("events=%d want 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Type != consts.EventTaskClaim || ev.NodeID != "node-a" || ev.Claim.Strategy != consts.StrategyUpdateByQuery {
		t.Fatalf("event=%+v", ev)
	}
	if !reflect.DeepEqual(ev.Claim.ClaimedIDs, []string{"t1"}) || ev.Claim.Stats.TasksClaimed != 1 {
		t.Fatalf("claim payload=%+v", ev.Claim)
	}
}

func TestExcludedTypesInvisible(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			now := time.Now().UTC()
			st := newSpyStore()
			st.Put(idle("x", "internal:gc", now))
			defs := definitions.NewStatic(definitions.Definition{Type: "internal:gc"}, definitions.Definition{Type: "report"})
			opts := newOpts(st, defs, capacity.New(10, nil), "n", now)
			// batches built before the exclusion took effect still skip excluded types
			opts.ExcludedTaskTypes = []string{"internal:gc"}
			res := s.fn(context.Background(), opts)
			for _, q := range st.queriedTypes() {
				if q == "internal:gc" {
					t.Fatal("excluded type reached the store")
				}
			}
			if res.Stats.TasksClaimed != 0 {
				t.Fatalf("claimed=%d", res.Stats.TasksClaimed)
			}
		})
	}
}
