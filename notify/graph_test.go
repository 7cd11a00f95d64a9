package notify_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-loop/stateflow/notify"
)

func TestGraph_ReadIsLazy(t *testing.T) {
	g := notify.NewGraph(nil)
	assert.Equal(t, uint64(0), g.Read("a"))
	assert.Equal(t, uint64(0), g.Read("a"))
}

func TestGraph_WriteBumpsObservedPaths(t *testing.T) {
	g := notify.NewGraph(nil)

	// Never read, never tracked.
	g.Write("ghost")
	assert.Equal(t, uint64(0), g.Read("ghost"))

	require.Equal(t, uint64(0), g.Read("a"))
	g.Write("a")
	g.Write("a")
	assert.Equal(t, uint64(2), g.Read("a"))
}

func TestGraph_FanOutToDependents(t *testing.T) {
	g := notify.NewGraph(map[notify.Path][]notify.Path{
		"summary": {"count", "status"},
		"banner":  {"status"},
	})

	assert.ElementsMatch(t, []notify.Path{"summary"}, g.Dependents("count"))
	assert.ElementsMatch(t, []notify.Path{"summary", "banner"}, g.Dependents("status"))

	g.Read("status")
	g.Read("summary")
	g.Read("banner")

	g.Write("status")
	assert.Equal(t, uint64(1), g.Read("status"))
	assert.Equal(t, uint64(1), g.Read("summary"))
	assert.Equal(t, uint64(1), g.Read("banner"))

	g.Write("count")
	assert.Equal(t, uint64(2), g.Read("summary"), "fan-out is one level per source write")
	assert.Equal(t, uint64(1), g.Read("banner"))
}

func TestGraph_ConcurrentWrites(t *testing.T) {
	g := notify.NewGraph(nil)
	g.Read("n")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g.Write("n")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(800), g.Read("n"))
}

func TestGraph_DumpTree(t *testing.T) {
	g := notify.NewGraph(map[notify.Path][]notify.Path{
		"summary": {"count"},
	})
	rendered := g.DumpTree("count")
	assert.True(t, strings.Contains(rendered, "count"))
	assert.True(t, strings.Contains(rendered, "summary"))
}
