package dispatch

import (
	"github.com/open-loop/stateflow/notify"
)

// Lens addresses one observable slice of a state type: a stable path plus
// typed accessors. Declare lenses once per state type; the dispatcher never
// discovers paths at runtime.
type Lens[S any, V comparable] struct {
	Path notify.Path
	Get  func(*S) V
	Set  func(*S, V)
}

// Field builds a lens, panicking on missing accessors.
func Field[S any, V comparable](
	path notify.Path,
	get func(*S) V,
	set func(*S, V),
) Lens[S, V] {
	if get == nil || set == nil {
		panic("dispatch: lens requires both accessors")
	}
	return Lens[S, V]{Path: path, Get: get, Set: set}
}

// Mutation is the scoped write context handed to a transition function. It
// is valid only for the duration of that call: writes apply immediately (so
// later reads in the same transition observe them) and touched paths are
// recorded, coalesced per path, for the notification pass that follows.
type Mutation[S any] struct {
	state   *S
	touched []notify.Path
	seen    map[notify.Path]struct{}
	sealed  bool
}

func newMutation[S any](state *S) *Mutation[S] {
	return &Mutation[S]{
		state: state,
		seen:  make(map[notify.Path]struct{}),
	}
}

// seal invalidates the mutation once its transition returns.
func (m *Mutation[S]) seal() { m.sealed = true }

func (m *Mutation[S]) touch(p notify.Path) {
	if _, ok := m.seen[p]; ok {
		return
	}
	m.seen[p] = struct{}{}
	m.touched = append(m.touched, p)
}

// Read returns the current value under the lens, including writes made
// earlier in the same transition.
func Read[S any, V comparable](m *Mutation[S], l Lens[S, V]) V {
	if m.sealed {
		panic("dispatch: mutation used outside its transition")
	}
	return l.Get(m.state)
}

// Write stores v under the lens. Writing a value equal to the stored one is
// deliberately a no-op: no write is recorded and no version moves.
func Write[S any, V comparable](m *Mutation[S], l Lens[S, V], v V) {
	if m.sealed {
		panic("dispatch: mutation used outside its transition")
	}
	if l.Get(m.state) == v {
		return
	}
	l.Set(m.state, v)
	m.touch(l.Path)
}
