package tensor

import (
	"testing"
)

func randMats(m, k, n int) (A, B Mat) {
	A = NewMat(m, k)
	B = NewMat(k, n)
	FillRand(&A, 1)
	FillRand(&B, 2)
	return A, B
}

func TestKernelsMatchNaive(t *testing.T) {
	shapes := [][3]int{{50, 70, 45}, {1, 1, 1}, {64, 128, 33}, {7, 200, 9}}
	for _, s := range shapes {
		A, B := randMats(s[0], s[1], s[2])
		want := NewMat(s[0], s[2])
		GemmNaive(&want, &A, &B)

		got := NewMat(s[0], s[2])
		GemmTransposed(&got, &A, &B, nil)
		if d := MaxAbsDiff(&want, &got); d > 1e-5 {
			t.Fatalf("%v transposed: max abs diff %g", s, d)
		}

		for _, cfg := range CandidateConfigs(SelectGemmConfig(s[0], s[1], s[2])) {
			got := NewMat(s[0], s[2])
			GemmBlocked(cfg, &got, &A, &B, 1, 0)
			if d := MaxAbsDiff(&want, &got); d > 1e-5 {
				t.Fatalf("%v blocked %s: max abs diff %g", s, cfg, d)
			}

			got = NewMat(s[0], s[2])
			GemmPar(cfg, &got, &A, &B, 1, 0, 4)
			if d := MaxAbsDiff(&want, &got); d > 1e-5 {
				t.Fatalf("%v par %s: max abs diff %g", s, cfg, d)
			}
		}
	}
}

func TestGemmAlphaBeta(t *testing.T) {
	A, B := randMats(20, 30, 10)
	ab := NewMat(20, 10)
	GemmNaive(&ab, &A, &B)

	for _, cfg := range []GemmConfig{DefaultGemmConfig(), {TileM: 8, TileN: 8, TileK: 8, Pack: true}} {
		C := NewMat(20, 10)
		for i := range C.Data {
			C.Data[i] = 1
		}
		GemmPar(cfg, &C, &A, &B, 2, 0.5, 3)
		for i := range C.Data {
			want := 2*ab.Data[i] + 0.5
			if d := C.Data[i] - want; d > 1e-5 || d < -1e-5 {
				t.Fatalf("%s: C[%d] = %g, want %g", cfg, i, C.Data[i], want)
			}
		}
	}
}

func TestGemmDimensionMismatchPanics(t *testing.T) {
	A := NewMat(2, 3)
	B := NewMat(4, 2)
	C := NewMat(2, 2)
	defer func() {
		if r := recover(); r != errDimMismatch {
			t.Fatalf("recovered %v, want %v", r, errDimMismatch)
		}
	}()
	GemmBlocked(DefaultGemmConfig(), &C, &A, &B, 1, 0)
}

func TestGemmParNoAllocs(t *testing.T) {
	A, B := randMats(16, 16, 16)
	C := NewMat(16, 16)

	cfg := DefaultGemmConfig()
	allocs := testing.AllocsPerRun(100, func() {
		GemmPar(cfg, &C, &A, &B, 1, 0, 2)
	})

	if allocs != 0 {
		t.Fatalf("unexpected allocs: %v", allocs)
	}
}

func TestCandidateConfigs(t *testing.T) {
	cfgs := CandidateConfigs(DefaultGemmConfig())
	want := []string{"tile32x32x16", "tile32x32x8", "tile32x32x32", "tile32x32x24", "tile32x32x16+pack"}
	if len(cfgs) != len(want) {
		t.Fatalf("got %d configs %v, want %v", len(cfgs), cfgs, want)
	}
	for i, c := range cfgs {
		if c.String() != want[i] {
			t.Fatalf("config %d = %s, want %s", i, c, want[i])
		}
	}

	if got := SelectGemmConfig(256, 256, 256).TileK; got != 32 {
		t.Fatalf("TileK for k=256 = %d, want 32", got)
	}
	if got := SelectGemmConfig(64, 100, 64).TileK; got != 24 {
		t.Fatalf("TileK for k=100 = %d, want 24", got)
	}
	if got := (GemmConfig{TileM: 0, TileN: 500, TileK: 3}).normalized(); got != (GemmConfig{TileM: 1, TileN: maxTileN, TileK: 3}) {
		t.Fatalf("normalized = %+v", got)
	}
}

func TestMatHelpers(t *testing.T) {
	m, err := NewMatFromData(2, 3, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}
	if m.Row(1)[2] != 6 {
		t.Fatalf("m[1][2] = %g", m.Row(1)[2])
	}
	if _, err := NewMatFromData(2, 2, []float32{1}); err != errDataSizeMismatch {
		t.Fatalf("err = %v", err)
	}

	mt := NewMat(3, 2)
	TransposeInto(&mt, &m)
	if mt.Row(2)[1] != 6 || mt.Row(0)[1] != 4 {
		t.Fatalf("transpose = %v", mt.Data)
	}

	c := m.Clone()
	c.Data[0] = 9
	if m.Data[0] != 1 {
		t.Fatal("Clone shares storage")
	}

	a, b := NewMat(4, 4), NewMat(4, 4)
	FillRand(&a, 7)
	FillRand(&b, 7)
	if MaxAbsDiff(&a, &b) != 0 {
		t.Fatal("FillRand is not reproducible")
	}
	if d := MaxAbsDiff(&a, &mt); d <= 1e9 {
		t.Fatalf("shape mismatch diff = %g, want +Inf", d)
	}
}
