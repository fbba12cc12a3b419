package device

import (
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCPUID(t *testing.T) {
	t.Parallel()
	c := NewCPU(3)
	assert.Equal(t, 3, c.Workers())
	assert.Equal(t, runtime.GOARCH, c.Arch())
	assert.True(t, strings.HasPrefix(c.ID(), "cpu/"+runtime.GOARCH+"/"))
	assert.True(t, strings.HasSuffix(c.ID(), "/w3"))
	assert.Equal(t, c.ID(), NewCPU(3).ID(), "ID must be stable")
	assert.NotEqual(t, c.ID(), NewCPU(4).ID())
	assert.True(t, slices.IsSorted(c.Features()))
}

func TestCPUDefaultWorkers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, runtime.GOMAXPROCS(0), NewCPU(0).Workers())
}

func TestGenericID(t *testing.T) {
	t.Parallel()
	c := &CPU{arch: "wasm", workers: 1}
	assert.Equal(t, "cpu/wasm/generic/w1", c.ID())
}

func TestInfo(t *testing.T) {
	t.Parallel()
	c := NewCPU(2)
	info := c.Info()
	assert.Equal(t, c.ID(), info.ID)
	assert.Equal(t, runtime.NumCPU(), info.CPUs)
	assert.Equal(t, 2, info.Workers)
	assert.Equal(t, c.Features(), info.Features)
}
