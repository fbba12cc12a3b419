package tunecache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/autotune/internal/logger"
	"github.com/samcharles93/autotune/internal/tune"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return must.M1(New(t.TempDir(), logger.Discard()))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	empty, err := s.Load("matmul", "cpu-avx2")
	require.NoError(t, err)
	assert.Empty(t, empty)

	rec := tune.Record{
		Index:     2,
		Checksum:  "abc",
		Timings:   []int64{5, -1, 3},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, s.Save("matmul", "cpu-avx2", "128x128x128", rec))
	require.NoError(t, s.Save("matmul", "cpu-avx2", "64x64x64", tune.Record{Index: 0, Checksum: "abc"}))

	// A second Store over the same directory sees both records.
	other := must.M1(New(s.Dir(), logger.Discard()))
	got, err := other.Load("matmul", "cpu-avx2")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rec, got["128x128x128"])

	f, err := ReadFile(s.path("matmul", "cpu-avx2"))
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, f.Version)
	assert.Equal(t, "matmul", f.Name)
	assert.Equal(t, s.Session(), f.Session)
	assert.NotEqual(t, s.Session(), other.Session())
}

func TestLoadCorruptFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	path := s.path("matmul", "cpu")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := s.Load("matmul", "cpu")
	assert.ErrorIs(t, err, ErrCorruptCache)

	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"entries":{}}`), 0o644))
	_, err = s.Load("matmul", "cpu")
	assert.ErrorIs(t, err, ErrCorruptCache)

	// Save replaces a corrupt file.
	require.NoError(t, s.Save("matmul", "cpu", "k", tune.Record{Index: 1, Checksum: "x"}))
	got, err := s.Load("matmul", "cpu")
	require.NoError(t, err)
	assert.Equal(t, 1, got["k"].Index)
}

func TestListAndClear(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Save("matmul/gemm", "cpu:0", "a", tune.Record{Checksum: "x"}))
	require.NoError(t, s.Save("matmul/gemm", "cpu:0", "b", tune.Record{Checksum: "x"}))
	require.NoError(t, s.Save("matmul/gemm", "cpu:1", "a", tune.Record{Checksum: "x"}))
	require.NoError(t, s.Save("reduce", "cpu:0", "a", tune.Record{Checksum: "x"}))

	infos, err := s.List()
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "matmul/gemm", infos[0].Name)
	assert.Equal(t, "cpu:0", infos[0].ID)
	assert.Equal(t, 2, infos[0].Entries)
	assert.Equal(t, "cpu:1", infos[1].ID)
	assert.Equal(t, "reduce", infos[2].Name)
	assert.Positive(t, infos[0].Size)

	n, err := s.Clear("matmul/gemm")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	infos, err = s.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "reduce", infos[0].Name)

	n, err = s.Clear("")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	infos, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestConcurrentSaves(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Save("matmul", "cpu", fmt.Sprintf("key%d", i), tune.Record{Index: i, Checksum: "x"}))
		}()
	}
	wg.Wait()

	got, err := s.Load("matmul", "cpu")
	require.NoError(t, err)
	assert.Len(t, got, 16)
	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(s.path("matmul", "cpu")), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestSanitize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "matmul_gemm", sanitize("matmul/gemm"))
	assert.Equal(t, "cpu_0", sanitize("cpu:0"))
	assert.Equal(t, "__", sanitize(".."))
	assert.Equal(t, "_", sanitize(""))
	assert.Equal(t, "v1.2-rc", sanitize("v1.2-rc"))
	assert.NotEqual(t, component("cpu:0"), component("cpu_0"))
	assert.Equal(t, component("cpu:0"), component("cpu:0"))
}

func TestIdentitiesThatSanitizeAlike(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Save("matmul", "gpu/0", "1x1x1", tune.Record{Index: 3, Checksum: "x"}))

	for _, id := range []string{"gpu_0", "gpu:0"} {
		assert.NotEqual(t, s.path("matmul", "gpu/0"), s.path("matmul", id))
		got, err := s.Load("matmul", id)
		require.NoError(t, err)
		assert.Empty(t, got, id)
	}
	require.NoError(t, s.Save("matmul", "gpu_0", "1x1x1", tune.Record{Index: 1, Checksum: "x"}))

	got, err := s.Load("matmul", "gpu/0")
	require.NoError(t, err)
	assert.Equal(t, 3, got["1x1x1"].Index)
	got, err = s.Load("matmul", "gpu_0")
	require.NoError(t, err)
	assert.Equal(t, 1, got["1x1x1"].Index)

	infos, err := s.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "gpu/0", infos[0].ID)
	assert.Equal(t, "gpu_0", infos[1].ID)
}

// A file written for one identity, found at another identity's path, is not trusted.
func TestLoadChecksStoredIdentity(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Save("matmul", "cpu:0", "k", tune.Record{Index: 2, Checksum: "x"}))
	other := s.path("matmul", "cpu:1")
	data, err := os.ReadFile(s.path("matmul", "cpu:0"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(other, data, 0o644))

	got, err := s.Load("matmul", "cpu:1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Save("matmul", "cpu:1", "j", tune.Record{Index: 1, Checksum: "x"}))
	f, err := ReadFile(other)
	require.NoError(t, err)
	assert.Equal(t, "cpu:1", f.ID)
	assert.Len(t, f.Entries, 1)
}

func TestDefaultDirFromEnv(t *testing.T) {
	t.Setenv(EnvDir, "/tmp/autotune-test-cache")
	assert.Equal(t, "/tmp/autotune-test-cache", DefaultDir())
}

type intKey int

func (k intKey) String() string { return fmt.Sprintf("%d", int(k)) }

type cpu struct{}

func (cpu) ID() string { return "cpu" }

// countingBench makes candidate 1 the winner and counts measurements.
type countingBench struct{ calls int }

func (b *countingBench) Measure(ctx context.Context, _ tune.Device, c tune.Candidate) (tune.Measurement, error) {
	b.calls++
	if err := c.Run(ctx); err != nil {
		return tune.Measurement{}, err
	}
	return tune.Measurement{Duration: time.Duration(10 - c.Index)}, nil
}

func TestWinnersSurviveRestart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	set := tune.NewTunableSet(func(n int) intKey { return intKey(n) },
		tune.NewOperation("a", func(context.Context, int) (int, error) { return 1, nil }),
		tune.NewOperation("b", func(context.Context, int) (int, error) { return 2, nil }),
	)

	run := func() (int, *countingBench) {
		bench := &countingBench{}
		lt := tune.NewLocalTuner[intKey, string, int, int]("restart",
			tune.WithStore(must.M1(New(dir, logger.Discard()))),
			tune.WithBenchmarker(bench),
			tune.WithLogger(logger.Discard()))
		out, err := lt.Execute(context.Background(), "cpu", cpu{}, set, 7)
		require.NoError(t, err)
		return out, bench
	}

	out, bench := run()
	assert.Equal(t, 2, out)
	assert.Equal(t, 2, bench.calls)

	out, bench = run()
	assert.Equal(t, 2, out)
	assert.Zero(t, bench.calls, "the persisted winner is reused")
}
