package tune

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/samcharles93/autotune/internal/logger"
)

// Tuner is the cache of one identity: key -> CacheResult, the keys being benchmarked, and the
// records loaded from the Store that still await checksum validation.
type Tuner[K Key, In, Out any] struct {
	name  string
	id    string
	log   logger.Logger
	store Store
	bench Benchmarker
	exec  Executor

	mu         sync.RWMutex
	cache      map[K]CacheResult
	persisted  map[string]Record
	// autotuning maps a key being benchmarked to the claim of the caller that started it.
	autotuning map[K]uint64
	lastClaim  uint64
	// failed holds claims whose outcome had no successful candidate and whose caller has
	// not seen it yet. abandoned holds claims whose caller returned before the outcome
	// arrived; their failures are not recorded.
	failed    map[uint64]struct{}
	abandoned map[uint64]struct{}

	// results is appended to by benchmark jobs and drained by HandleResults.
	resultsMu sync.Mutex
	results   []outcome[K]

	stats tunerStats
}

type tunerStats struct {
	hits      atomic.Int64
	fallbacks atomic.Int64
	autotunes atomic.Int64
	failures  atomic.Int64
}

// outcome is the result of benchmarking every candidate for one key.
type outcome[K Key] struct {
	key      K
	claim    uint64
	checksum string
	names    []string
	timings  []time.Duration
	errs     []error
}

// winner returns the index of the fastest successful candidate, or -1.
func (o outcome[K]) winner() int {
	best := -1
	for i, err := range o.errs {
		if err != nil {
			continue
		}
		if best < 0 || o.timings[i] < o.timings[best] {
			best = i
		}
	}
	return best
}

func newTuner[K Key, In, Out any](name, id string, cfg *config) *Tuner[K, In, Out] {
	t := &Tuner[K, In, Out]{
		name:       name,
		id:         id,
		log:        cfg.log.With("tuner", name, "id", id),
		store:      cfg.store,
		bench:      cfg.bench,
		exec:       cfg.exec,
		cache:      make(map[K]CacheResult),
		persisted:  make(map[string]Record),
		autotuning: make(map[K]uint64),
		failed:     make(map[uint64]struct{}),
		abandoned:  make(map[uint64]struct{}),
	}
	if t.store != nil {
		records, err := t.store.Load(name, id)
		if err != nil {
			t.log.Warn("cannot load autotune cache, starting empty", "error", err)
		}
		for k, rec := range records {
			t.persisted[k] = rec
		}
		if len(records) > 0 {
			t.log.Debug("loaded autotune cache", "entries", len(records))
		}
	}
	return t
}

// Name returns the name of the LocalTuner that owns this Tuner.
func (t *Tuner[K, In, Out]) Name() string { return t.name }

// ID returns the identity string of the Tuner.
func (t *Tuner[K, In, Out]) ID() string { return t.id }

// Fastest returns the current state of key. It never mutates the cache.
func (t *Tuner[K, In, Out]) Fastest(key K) CacheResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lockedFastest(key)
}

// lockedFastest must be called with t.mu held (read or write).
func (t *Tuner[K, In, Out]) lockedFastest(key K) CacheResult {
	if r, ok := t.cache[key]; ok {
		return r
	}
	if _, ok := t.persisted[key.String()]; ok {
		return CacheResult{State: Unchecked}
	}
	return CacheResult{State: Miss}
}

// ValidateChecksum resolves an Unchecked key: a persisted record produced by a candidate list
// with the same checksum becomes a Hit, anything else is dropped and becomes a Miss.
// Keys that are not Unchecked are left alone.
func (t *Tuner[K, In, Out]) ValidateChecksum(key K, checksum string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lockedValidateChecksum(key, checksum)
}

func (t *Tuner[K, In, Out]) lockedValidateChecksum(key K, checksum string) {
	if _, ok := t.cache[key]; ok {
		return
	}
	ks := key.String()
	rec, ok := t.persisted[ks]
	if !ok {
		return
	}
	delete(t.persisted, ks)
	if rec.Checksum != checksum || rec.Index < 0 {
		t.log.Debug("discarding stale autotune record", "key", ks)
		t.cache[key] = CacheResult{State: Miss}
		return
	}
	t.cache[key] = HitResult(rec.Index)
}

// prepare is step one of a slow-path Execute: resolve Unchecked, and claim the benchmark of a
// Miss unless someone else already did. A non-zero claim means the caller must start it.
func (t *Tuner[K, In, Out]) prepare(key K, set *TunableSet[K, In, Out]) (CacheResult, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fastest := t.lockedFastest(key)
	if fastest.State == Unchecked {
		t.lockedValidateChecksum(key, set.ComputeChecksum())
		fastest = t.lockedFastest(key)
	}
	if fastest.State == Hit && fastest.Index >= set.Len() {
		// Corrupt record: the index points past the candidate list.
		t.cache[key] = CacheResult{State: Miss}
		fastest = CacheResult{State: Miss}
	}

	if fastest.State != Miss {
		return fastest, 0
	}
	if _, ok := t.autotuning[key]; ok {
		return fastest, 0
	}
	t.lastClaim++
	t.autotuning[key] = t.lastClaim
	return fastest, t.lastClaim
}

// ExecuteAutotune benchmarks every candidate of set for key. The key is Pending on return;
// with a blocking executor the measurements are already queued for HandleResults, otherwise
// they arrive later.
//
// It must be called without holding any tuner lock: candidates may call back into tuning.
func (t *Tuner[K, In, Out]) ExecuteAutotune(ctx context.Context, key K, in In, set *TunableSet[K, In, Out], device Device) {
	checksum := set.ComputeChecksum()

	t.mu.Lock()
	t.cache[key] = CacheResult{State: Pending}
	claim := t.autotuning[key]
	t.mu.Unlock()

	t.stats.autotunes.Add(1)
	t.log.Info("autotune started", "key", key.String(), "candidates", set.Len(), "device", device.ID(), "blocking", t.exec.Blocking())

	if !t.exec.Blocking() {
		// The caller's context ends with its call; the benchmark outlives it.
		ctx = context.WithoutCancel(ctx)
	}
	t.exec.Submit(func() {
		o := t.benchmark(ctx, key, in, set, device, checksum)
		o.claim = claim
		t.resultsMu.Lock()
		t.results = append(t.results, o)
		t.resultsMu.Unlock()
	})
}

func (t *Tuner[K, In, Out]) benchmark(ctx context.Context, key K, in In, set *TunableSet[K, In, Out], device Device, checksum string) outcome[K] {
	n := set.Len()
	o := outcome[K]{
		key:      key,
		checksum: checksum,
		names:    set.Names(),
		timings:  make([]time.Duration, n),
		errs:     make([]error, n),
	}
	for i := 0; i < n; i++ {
		op := set.Fastest(i)
		m, err := t.bench.Measure(ctx, device, Candidate{
			Index: i,
			Name:  op.Name(),
			Run: func(ctx context.Context) error {
				_, err := op.Execute(ctx, in)
				return err
			},
		})
		if err != nil {
			o.errs[i] = err
			t.log.Debug("candidate failed", "key", key.String(), "candidate", op.Name(), "error", err)
			continue
		}
		o.timings[i] = m.Duration
	}
	return o
}

// HandleResults harvests finished benchmarks without blocking.
func (t *Tuner[K, In, Out]) HandleResults() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lockedHandleResults()
}

func (t *Tuner[K, In, Out]) lockedHandleResults() {
	t.resultsMu.Lock()
	results := t.results
	t.results = nil
	t.resultsMu.Unlock()

	for _, o := range results {
		t.lockedApply(o)
	}
}

func (t *Tuner[K, In, Out]) lockedApply(o outcome[K]) {
	delete(t.autotuning, o.key)
	ks := o.key.String()
	_, abandoned := t.abandoned[o.claim]
	delete(t.abandoned, o.claim)

	w := o.winner()
	if w < 0 {
		t.stats.failures.Add(1)
		t.cache[o.key] = CacheResult{State: Miss}
		if o.claim != 0 && !abandoned {
			t.failed[o.claim] = struct{}{}
		}
		t.log.Warn("autotune failed: no candidate succeeded", "key", ks, "first_error", o.errs[0])
		return
	}

	t.cache[o.key] = HitResult(w)
	t.log.Info("autotune finished", "key", ks, "winner", o.names[w], "index", w, "duration", o.timings[w])

	if t.store == nil {
		return
	}
	timings := make([]int64, len(o.timings))
	for i, d := range o.timings {
		if o.errs[i] != nil {
			timings[i] = -1
			continue
		}
		timings[i] = d.Nanoseconds()
	}
	rec := Record{
		Index:     w,
		Checksum:  o.checksum,
		Timings:   timings,
		UpdatedAt: time.Now().UTC(),
	}
	if err := t.store.Save(t.name, t.id, ks, rec); err != nil {
		t.log.Warn("cannot persist autotune result", "key", ks, "error", err)
	}
}

// resolve is the last step of a slow-path Execute: harvest results and pick the candidate
// to run. claim is the one returned by prepare. Protocol violations panic.
func (t *Tuner[K, In, Out]) resolve(key K, claim uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lockedHandleResults()

	fastest := t.lockedFastest(key)
	switch fastest.State {
	case Hit:
		return fastest.Index
	case Pending:
		if claim != 0 {
			t.abandoned[claim] = struct{}{}
		}
		t.stats.fallbacks.Add(1)
		t.log.Debug("no winner yet, running default candidate", "key", key.String())
		return 0
	case Miss:
		if claim != 0 {
			// Our own benchmark was harvested and every candidate failed; anything else
			// means the key never went through Pending.
			if _, ok := t.failed[claim]; !ok {
				panic(errors.Errorf("tune: %s/%s key %s is still a miss after this call started autotuning", t.name, t.id, key))
			}
			delete(t.failed, claim)
		}
		t.stats.fallbacks.Add(1)
		t.log.Debug("autotune still running elsewhere, running default candidate", "key", key.String())
		return 0
	default:
		panic(errors.Errorf("tune: %s/%s key %s reached dispatch as %s", t.name, t.id, key, fastest))
	}
}

// Stats are cumulative counters of a Tuner.
type Stats struct {
	Hits      int64 `json:"hits"`
	Fallbacks int64 `json:"fallbacks"`
	Autotunes int64 `json:"autotunes"`
	Failures  int64 `json:"failures"`
}

// EntrySnapshot is one key of a Snapshot.
type EntrySnapshot struct {
	Key   string `json:"key"`
	State string `json:"state"`
	Index int    `json:"index"`
}

// Snapshot is a point-in-time copy of a Tuner, for reporting.
type Snapshot struct {
	Name      string          `json:"name"`
	ID        string          `json:"id"`
	Entries   []EntrySnapshot `json:"entries"`
	InFlight  int             `json:"in_flight"`
	Unchecked int             `json:"unchecked"`
	Stats     Stats           `json:"stats"`
}

// Snapshot copies the tuner state. Entries are sorted by key.
func (t *Tuner[K, In, Out]) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{
		Name:      t.name,
		ID:        t.id,
		Entries:   make([]EntrySnapshot, 0, len(t.cache)),
		InFlight:  len(t.autotuning),
		Unchecked: len(t.persisted),
		Stats: Stats{
			Hits:      t.stats.hits.Load(),
			Fallbacks: t.stats.fallbacks.Load(),
			Autotunes: t.stats.autotunes.Load(),
			Failures:  t.stats.failures.Load(),
		},
	}
	for k, r := range t.cache {
		e := EntrySnapshot{Key: k.String(), State: r.State.String(), Index: -1}
		if r.State == Hit {
			e.Index = r.Index
		}
		s.Entries = append(s.Entries, e)
	}
	slices.SortFunc(s.Entries, func(a, b EntrySnapshot) int {
		return strings.Compare(a.Key, b.Key)
	})
	return s
}
