package tensor

import (
	"fmt"
	"runtime"
	"slices"
	"sync"
)

// Tuned for the benchmark shape (256^3).
const (
	defaultTileM = 32
	defaultTileN = 32
	defaultTileK = 16

	maxTileM = 64
	maxTileN = 64
	maxTileK = 64
)

// GemmConfig is the blocking of the tiled kernels. Pack copies each B tile into a
// contiguous buffer before use.
type GemmConfig struct {
	TileM, TileN, TileK int
	Pack                bool
}

// DefaultGemmConfig returns the fixed default tiles.
func DefaultGemmConfig() GemmConfig {
	return GemmConfig{TileM: defaultTileM, TileN: defaultTileN, TileK: defaultTileK}
}

// SelectGemmConfig picks tiles for an m x k x n product from a static heuristic.
func SelectGemmConfig(m, k, n int) GemmConfig {
	cfg := DefaultGemmConfig()
	switch {
	case k >= 192:
		cfg.TileK = 32
	case k >= 96:
		cfg.TileK = 24
	}
	return cfg.normalized()
}

func (c GemmConfig) normalized() GemmConfig {
	c.TileM = clampTile(c.TileM, maxTileM)
	c.TileN = clampTile(c.TileN, maxTileN)
	c.TileK = clampTile(c.TileK, maxTileK)
	return c
}

// String names the config, e.g. "tile32x32x16" or "tile32x32x16+pack".
func (c GemmConfig) String() string {
	s := fmt.Sprintf("tile%dx%dx%d", c.TileM, c.TileN, c.TileK)
	if c.Pack {
		s += "+pack"
	}
	return s
}

// CandidateConfigs varies TileK around base, then adds a packed copy of base.
// The result is deduplicated and starts with base.
func CandidateConfigs(base GemmConfig) []GemmConfig {
	base = base.normalized()
	var out []GemmConfig
	for _, tk := range []int{
		base.TileK,
		base.TileK / 2,
		base.TileK * 2,
		24,
		32,
	} {
		if tk <= 0 {
			continue
		}
		cfg := base
		cfg.TileK = clampTile(tk, maxTileK)
		if !slices.Contains(out, cfg) {
			out = append(out, cfg)
		}
	}
	packed := base
	packed.Pack = true
	if !slices.Contains(out, packed) {
		out = append(out, packed)
	}
	return out
}

func clampTile(value, max int) int {
	if value < 1 {
		return 1
	}
	if value > max {
		return max
	}
	return value
}

func checkGemmDims(C, A, B *Mat) {
	if A.C != B.R || C.R != A.R || C.C != B.C {
		panic(errDimMismatch)
	}
}

// GemmNaive computes C = A*B with the textbook triple loop. It accepts any shape and is
// the reference the other kernels are checked against.
func GemmNaive(C, A, B *Mat) {
	checkGemmDims(C, A, B)
	for i := 0; i < A.R; i++ {
		aRow := A.Row(i)
		cRow := C.Row(i)
		for j := 0; j < B.C; j++ {
			var sum float32
			for kk := 0; kk < A.C; kk++ {
				sum += aRow[kk] * B.Data[kk*B.Stride+j]
			}
			cRow[j] = sum
		}
	}
}

// GemmTransposed computes C = A*B as row-by-row dot products against the transpose of B.
// bt is scratch space of shape B.C x B.R; pass nil to allocate it.
func GemmTransposed(C, A, B, bt *Mat) {
	checkGemmDims(C, A, B)
	if bt == nil {
		m := NewMat(B.C, B.R)
		bt = &m
	}
	TransposeInto(bt, B)
	for i := 0; i < A.R; i++ {
		aRow := A.Row(i)
		cRow := C.Row(i)
		for j := range cRow {
			cRow[j] = Dot(aRow, bt.Row(j))
		}
	}
}

var packPool = sync.Pool{
	New: func() any {
		buf := make([]float32, maxTileK*maxTileN)
		return &buf
	},
}

// GemmBlocked computes C = alpha*A*B + beta*C on the calling goroutine using cfg's tiles.
func GemmBlocked(cfg GemmConfig, C, A, B *Mat, alpha, beta float32) {
	checkGemmDims(C, A, B)
	if C.R == 0 || C.C == 0 {
		return
	}
	cfg = cfg.normalized()
	var packB []float32
	if cfg.Pack {
		buf := packPool.Get().(*[]float32)
		defer packPool.Put(buf)
		packB = *buf
	}
	gemmRangeRows(C, A, B, alpha, beta, 0, C.R, packB, cfg)
}

type gemmTask struct {
	C, A, B     *Mat
	alpha, beta float32
	rs, re      int
	cfg         GemmConfig
	done        chan struct{}
}

type gemmPool struct {
	size      int
	tasks     chan gemmTask
	doneSlots chan chan struct{}
}

func newGemmPool() *gemmPool {
	size := runtime.GOMAXPROCS(0)
	if size < 1 {
		size = 1
	}
	p := &gemmPool{
		size:      size,
		tasks:     make(chan gemmTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.doneSlots <- make(chan struct{}, 1)
	}
	for w := 0; w < size; w++ {
		packB := make([]float32, maxTileK*maxTileN)
		go func(packB []float32) {
			for task := range p.tasks {
				gemmRangeRows(task.C, task.A, task.B, task.alpha, task.beta, task.rs, task.re, packB, task.cfg)
				task.done <- struct{}{}
			}
		}(packB)
	}
	return p
}

var gemmWorkPool = newGemmPool()

// PoolSize returns the number of workers available to GemmPar.
func PoolSize() int { return gemmWorkPool.size }

// GemmPar computes the matrix product C = alpha*A*B + beta*C using a
// blocked algorithm and parallelising across ranges of output rows.
func GemmPar(cfg GemmConfig, C, A, B *Mat, alpha, beta float32, workers int) {
	checkGemmDims(C, A, B)
	if C.R == 0 || C.C == 0 {
		return
	}
	cfg = cfg.normalized()

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > C.R {
		workers = C.R
	}
	if workers > gemmWorkPool.size {
		workers = gemmWorkPool.size
	}
	if workers <= 1 {
		GemmBlocked(cfg, C, A, B, alpha, beta)
		return
	}

	chunk := (C.R + workers - 1) / workers

	done := <-gemmWorkPool.doneSlots
	sent := 0
	for rs := 0; rs < C.R; rs += chunk {
		gemmWorkPool.tasks <- gemmTask{
			C:     C,
			A:     A,
			B:     B,
			alpha: alpha,
			beta:  beta,
			rs:    rs,
			re:    min(rs+chunk, C.R),
			cfg:   cfg,
			done:  done,
		}
		sent++
	}
	for i := 0; i < sent; i++ {
		<-done
	}
	gemmWorkPool.doneSlots <- done
}

// gemmRangeRows performs a blocked GEMM on a contiguous range of rows of C.
func gemmRangeRows(C, A, B *Mat, alpha, beta float32, rs, re int, packB []float32, cfg GemmConfig) {
	n := C.C
	cStride := C.Stride
	if beta == 0 {
		for i := rs; i < re; i++ {
			base := i * cStride
			clear(C.Data[base : base+n])
		}
	} else if beta != 1 {
		for i := rs; i < re; i++ {
			base := i * cStride
			for j := 0; j < n; j++ {
				C.Data[base+j] *= beta
			}
		}
	}

	tm, tn, tk := cfg.TileM, cfg.TileN, cfg.TileK
	if cfg.Pack && len(packB) >= tk*tn {
		gemmRangeRowsPacked(C, A, B, alpha, rs, re, packB, tm, tn, tk)
		return
	}

	k := A.C
	aStride := A.Stride
	bStride := B.Stride

	for i0 := rs; i0 < re; i0 += tm {
		iMax := min(i0+tm, re)
		for k0 := 0; k0 < k; k0 += tk {
			kMax := min(k0+tk, k)
			for j0 := 0; j0 < n; j0 += tn {
				jMax := min(j0+tn, n)
				if alpha == 1 {
					blockUpdateAlpha1(C.Data, A.Data, B.Data, cStride, aStride, bStride, i0, iMax, j0, jMax, k0, kMax)
				} else {
					blockUpdateGeneric(C.Data, A.Data, B.Data, cStride, aStride, bStride, alpha, i0, iMax, j0, jMax, k0, kMax)
				}
			}
		}
	}
}

func gemmRangeRowsPacked(C, A, B *Mat, alpha float32, rs, re int, packB []float32, tm, tn, tk int) {
	n := C.C
	k := A.C
	for k0 := 0; k0 < k; k0 += tk {
		kMax := min(k0+tk, k)
		for j0 := 0; j0 < n; j0 += tn {
			jMax := min(j0+tn, n)
			packBTile(packB, B.Data, B.Stride, k0, kMax, j0, jMax)
			for i0 := rs; i0 < re; i0 += tm {
				iMax := min(i0+tm, re)
				blockUpdatePacked(C.Data, A.Data, packB, C.Stride, A.Stride, alpha, i0, iMax, j0, jMax-j0, k0, kMax-k0)
			}
		}
	}
}

func packBTile(dst []float32, bData []float32, bStride int, k0, kMax, j0, jMax int) {
	width := jMax - j0
	kInner := kMax - k0
	if width <= 0 || kInner <= 0 {
		return
	}
	if width > maxTileN || kInner > maxTileK {
		panic("packBTile exceeds max tile size")
	}
	for kk := 0; kk < kInner; kk++ {
		srcOff := (k0+kk)*bStride + j0
		copy(dst[kk*width:(kk+1)*width], bData[srcOff:srcOff+width])
	}
}

func blockUpdateGeneric(cData, aData, bData []float32, cStride, aStride, bStride int, alpha float32, i0, iMax, j0, jMax, k0, kMax int) {
	width := jMax - j0
	for i := i0; i < iMax; i++ {
		aRow := aData[i*aStride:]
		cOff := i*cStride + j0
		cRow := cData[cOff : cOff+width]

		for kk := k0; kk < kMax; kk++ {
			aik := aRow[kk] * alpha
			bOff := kk*bStride + j0
			bRow := bData[bOff : bOff+width]

			j := 0
			for ; j+7 < width; j += 8 {
				cRow[j+0] += aik * bRow[j+0]
				cRow[j+1] += aik * bRow[j+1]
				cRow[j+2] += aik * bRow[j+2]
				cRow[j+3] += aik * bRow[j+3]
				cRow[j+4] += aik * bRow[j+4]
				cRow[j+5] += aik * bRow[j+5]
				cRow[j+6] += aik * bRow[j+6]
				cRow[j+7] += aik * bRow[j+7]
			}
			for ; j < width; j++ {
				cRow[j] += aik * bRow[j]
			}
		}
	}
}

func blockUpdateAlpha1(cData, aData, bData []float32, cStride, aStride, bStride int, i0, iMax, j0, jMax, k0, kMax int) {
	width := jMax - j0
	for i := i0; i < iMax; i++ {
		aRow := aData[i*aStride:]
		cOff := i*cStride + j0
		cRow := cData[cOff : cOff+width]

		for kk := k0; kk < kMax; kk++ {
			aik := aRow[kk]
			bOff := kk*bStride + j0
			bRow := bData[bOff : bOff+width]

			j := 0
			for ; j+3 < width; j += 4 {
				cRow[j+0] += aik * bRow[j+0]
				cRow[j+1] += aik * bRow[j+1]
				cRow[j+2] += aik * bRow[j+2]
				cRow[j+3] += aik * bRow[j+3]
			}
			for ; j < width; j++ {
				cRow[j] += aik * bRow[j]
			}
		}
	}
}

// blockUpdatePacked uses a packed B tile with contiguous rows.
// packB is arranged as kInner rows of length width.
func blockUpdatePacked(cData, aData, packB []float32, cStride, aStride int, alpha float32, i0, iMax, j0, width, k0, kInner int) {
	if width <= 0 || kInner <= 0 {
		return
	}
	for i := i0; i < iMax; i++ {
		aRow := aData[i*aStride+k0 : i*aStride+k0+kInner]
		cOff := i*cStride + j0
		cRow := cData[cOff : cOff+width]

		for kk, a := range aRow {
			aik := a * alpha
			bRow := packB[kk*width : kk*width+width]
			j := 0
			for ; j+3 < width; j += 4 {
				cRow[j+0] += aik * bRow[j+0]
				cRow[j+1] += aik * bRow[j+1]
				cRow[j+2] += aik * bRow[j+2]
				cRow[j+3] += aik * bRow[j+3]
			}
			for ; j < width; j++ {
				cRow[j] += aik * bRow[j]
			}
		}
	}
}
