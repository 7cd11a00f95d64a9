package notify

import (
	"github.com/m1gwings/treedrawer/tree"
)

// DumpTree renders the fan-out rooted at p as an ASCII tree, for debugging
// dependency tables. Not intended for hot paths.
func (g *Graph) DumpTree(p Path) string {
	t := tree.NewTree(tree.NodeString(string(p)))
	for _, dependent := range g.fanout[p] {
		t.AddChild(tree.NodeString(string(dependent)))
	}
	return t.String()
}
