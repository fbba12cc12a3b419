package tune

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// LocalTuner is the process-wide registry of Tuners (one per identity) and TunableSets (one
// per recipe tag) for a task family with input In and output Out.
//
// Declare one per family as a package-level variable:
//
//	var gemmTuner = tune.NewLocalTuner[GemmKey, string, GemmInput, *Mat]("tensor/gemm")
type LocalTuner[K Key, ID comparable, In, Out any] struct {
	name string
	cfg  config

	mu     sync.RWMutex
	tuners map[ID]*Tuner[K, In, Out]

	setsMu sync.RWMutex
	sets   map[string]*TunableSet[K, In, Out]
}

// NewLocalTuner returns an empty LocalTuner. name namespaces persisted records.
func NewLocalTuner[K Key, ID comparable, In, Out any](name string, opts ...Option) *LocalTuner[K, ID, In, Out] {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.resolve()
	return &LocalTuner[K, ID, In, Out]{
		name:   name,
		cfg:    cfg,
		tuners: make(map[ID]*Tuner[K, In, Out]),
		sets:   make(map[string]*TunableSet[K, In, Out]),
	}
}

// Name returns the tuner name.
func (lt *LocalTuner[K, ID, In, Out]) Name() string { return lt.name }

// Blocking reports whether Execute benchmarks synchronously.
func (lt *LocalTuner[K, ID, In, Out]) Blocking() bool { return lt.cfg.blocking }

// Executor returns the executor benchmarks are submitted to.
func (lt *LocalTuner[K, ID, In, Out]) Executor() Executor { return lt.cfg.exec }

// Init returns the set registered under tag, calling build to create it the first time.
// build runs exactly once per tag, under the sets lock: it must not call Init on the same
// LocalTuner.
func (lt *LocalTuner[K, ID, In, Out]) Init(tag string, build func() *TunableSet[K, In, Out]) *TunableSet[K, In, Out] {
	lt.setsMu.RLock()
	set, ok := lt.sets[tag]
	lt.setsMu.RUnlock()
	if ok {
		return set
	}

	lt.setsMu.Lock()
	defer lt.setsMu.Unlock()
	if set, ok := lt.sets[tag]; ok {
		return set
	}
	set = build()
	if set == nil {
		panic(errors.Errorf("tune: %s: builder for set %q returned nil", lt.name, tag))
	}
	lt.sets[tag] = set
	return set
}

// Clear drops every Tuner, forcing new benchmarks (or a reload from the Store). Registered
// sets are kept. Benchmarks still running finish into the dropped Tuners.
func (lt *LocalTuner[K, ID, In, Out]) Clear() {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.tuners = make(map[ID]*Tuner[K, In, Out])
}

// Tuner returns the Tuner of id, if it exists.
func (lt *LocalTuner[K, ID, In, Out]) Tuner(id ID) (*Tuner[K, In, Out], bool) {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	t, ok := lt.tuners[id]
	return t, ok
}

// Snapshots returns a Snapshot of every Tuner, sorted by id.
func (lt *LocalTuner[K, ID, In, Out]) Snapshots() []Snapshot {
	lt.mu.RLock()
	tuners := make([]*Tuner[K, In, Out], 0, len(lt.tuners))
	for _, t := range lt.tuners {
		tuners = append(tuners, t)
	}
	lt.mu.RUnlock()

	out := make([]Snapshot, 0, len(tuners))
	for _, t := range tuners {
		out = append(out, t.Snapshot())
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// tunerFor returns the Tuner of id, creating it if needed.
func (lt *LocalTuner[K, ID, In, Out]) tunerFor(id ID) *Tuner[K, In, Out] {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if t, ok := lt.tuners[id]; ok {
		return t
	}
	t := newTuner[K, In, Out](lt.name, fmt.Sprint(id), &lt.cfg)
	lt.tuners[id] = t
	return t
}

// Execute runs the fastest known candidate of set for in, as if it had been called directly.
//
// On a cache hit the winner runs right away. Otherwise the first caller for a key benchmarks
// all candidates (blocking, or in the background in non-blocking mode) and every caller that
// finds no winner yet runs candidate 0.
func (lt *LocalTuner[K, ID, In, Out]) Execute(ctx context.Context, id ID, device Device, set *TunableSet[K, In, Out], in In) (Out, error) {
	key := set.GenerateKey(in)

	// Fast path: shared locks only, no cache mutation.
	lt.mu.RLock()
	tuner, ok := lt.tuners[id]
	lt.mu.RUnlock()
	if ok {
		if fastest := tuner.Fastest(key); fastest.State == Hit {
			tuner.stats.hits.Add(1)
			return lt.runChecked(ctx, set, key, fastest.Index, in)
		}
	}

	// Slow path. The tuner pointer is kept for the whole call so a concurrent Clear cannot
	// pull the state from under us.
	tuner = lt.tunerFor(id)
	fastest, claim := tuner.prepare(key, set)

	// No lock may be held from here on: candidates can re-enter Execute.
	switch fastest.State {
	case Hit:
		tuner.stats.hits.Add(1)
		return lt.runChecked(ctx, set, key, fastest.Index, in)
	case Miss:
		if claim != 0 {
			tuner.ExecuteAutotune(ctx, key, in, set, device)
		}
	case Pending:
	default:
		panic(errors.Errorf("tune: %s/%v key %s reached dispatch as %s", lt.name, id, key, fastest))
	}

	index := tuner.resolve(key, claim)
	return lt.runChecked(ctx, set, key, index, in)
}

func (lt *LocalTuner[K, ID, In, Out]) runChecked(ctx context.Context, set *TunableSet[K, In, Out], key K, index int, in In) (Out, error) {
	if lt.cfg.checks {
		if err := lt.check(ctx, set, key, in); err != nil {
			var zero Out
			return zero, err
		}
	}
	return set.Fastest(index).Execute(ctx, in)
}
