// Package device describes the compute handles matmul candidates run on.
package device

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// CPU is the host processor as seen by the kernels: architecture, the instruction set
// extensions they may care about, and the worker count of the parallel kernels.
//
// CPU runs synchronously, so it does not implement tune.Syncer.
type CPU struct {
	arch     string
	features []string
	workers  int
}

// NewCPU detects the host features. workers <= 0 means GOMAXPROCS.
func NewCPU(workers int) *CPU {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &CPU{
		arch:     runtime.GOARCH,
		features: detectFeatures(),
		workers:  workers,
	}
}

// ID is stable for a given machine and worker count, and is used as the tuner identity.
// Example: "cpu/amd64/avx+avx2+fma+sse4/w8".
func (c *CPU) ID() string {
	feats := "generic"
	if len(c.features) > 0 {
		feats = strings.Join(c.features, "+")
	}
	return fmt.Sprintf("cpu/%s/%s/w%d", c.arch, feats, c.workers)
}

// Workers is the number of goroutines parallel kernels may use.
func (c *CPU) Workers() int { return c.workers }

// Arch returns runtime.GOARCH.
func (c *CPU) Arch() string { return c.arch }

// Features returns the detected extensions, sorted.
func (c *CPU) Features() []string {
	return append([]string(nil), c.features...)
}

func (c *CPU) String() string { return c.ID() }

// detectFeatures lists the extensions relevant to dense kernels, in alphabetical order.
func detectFeatures() []string {
	var out []string
	add := func(ok bool, name string) {
		if ok {
			out = append(out, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasAVX512F, "avx512f")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasSSE41 || cpu.X86.HasSSE42, "sse4")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasFP, "fp")
		add(cpu.ARM64.HasSVE, "sve")
	}
	return out
}

// Info is the JSON view of a CPU printed by `autotune device`.
type Info struct {
	ID        string   `json:"id"`
	GoVersion string   `json:"go_version"`
	GoOS      string   `json:"go_os"`
	GoArch    string   `json:"go_arch"`
	CPUs      int      `json:"cpus"`
	Workers   int      `json:"workers"`
	Features  []string `json:"features"`
}

func (c *CPU) Info() Info {
	return Info{
		ID:        c.ID(),
		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    c.arch,
		CPUs:      runtime.NumCPU(),
		Workers:   c.workers,
		Features:  c.Features(),
	}
}
