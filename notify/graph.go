// Package notify tracks which slices of state changed, as monotonically
// increasing version counters keyed by path. Observers remember the version
// they last saw for a path and re-read only when it moves.
package notify

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Path is a stable identifier for an observable slice of state. Identical
// state fields must always yield identical paths; how they are derived
// (field name, generated constant) is up to the state owner.
type Path string

const numShards = 16

type shard struct {
	mu       sync.Mutex
	versions map[Path]uint64
}

// Graph maps paths to version counters, lazily populated on first read, plus
// a precomputed one-level fan-out from a source path to the paths whose
// externally visible value derives from it.
type Graph struct {
	shards [numShards]shard
	fanout map[Path][]Path
}

// NewGraph builds a graph from the derived-path table of a state type:
// derived maps each computed path to the source paths it reads. The table is
// inverted once here so that a write to a source path can fan out to its
// dependents without re-derivation at write time.
func NewGraph(derived map[Path][]Path) *Graph {
	g := &Graph{fanout: make(map[Path][]Path, len(derived))}
	for i := range g.shards {
		g.shards[i].versions = make(map[Path]uint64)
	}
	for computed, sources := range derived {
		for _, source := range sources {
			g.fanout[source] = append(g.fanout[source], computed)
		}
	}
	return g
}

func (g *Graph) shardOf(p Path) *shard {
	return &g.shards[xxhash.Sum64String(string(p))%numShards]
}

// Read returns the current version of p, creating its counter on first use.
func (g *Graph) Read(p Path) uint64 {
	s := g.shardOf(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[p]; !ok {
		s.versions[p] = 0
	}
	return s.versions[p]
}

// Write bumps p's version if anyone has read it, then bumps every dependent
// path the same way. Paths nobody observes stay absent and cost nothing.
func (g *Graph) Write(p Path) {
	g.bump(p)
	for _, dependent := range g.fanout[p] {
		g.bump(dependent)
	}
}

func (g *Graph) bump(p Path) {
	s := g.shardOf(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[p]; ok {
		s.versions[p]++
	}
}

// Dependents returns the paths whose value derives from p.
func (g *Graph) Dependents(p Path) []Path {
	return g.fanout[p]
}
