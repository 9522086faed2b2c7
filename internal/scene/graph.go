package scene

import "github.com/danmuck/scenebridge/internal/coords"

// TreeNode is one node of a materialised scene graph.
type TreeNode struct {
	Name     string
	Record   NodeRecord
	Kind     NodeKind
	// World is the accumulated transform in remote convention (column
	// vectors, as carried on the wire).
	World    coords.Mat4
	Children []*TreeNode
}

// Walk visits t and its descendants depth first.
func (t *TreeNode) Walk(fn func(*TreeNode)) {
	fn(t)
	for _, c := range t.Children {
		c.Walk(fn)
	}
}

// BuildForest resolves child name references in one pass. Roots are nodes no
// other node lists as a child, visited in order. Unknown children are skipped
// and a node already on the current path is not entered again.
func BuildForest(nodes map[string]NodeRecord, order []string) []*TreeNode {
	notRoot := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		for _, c := range n.Children {
			if c != n.UniqueName {
				notRoot[c] = struct{}{}
			}
		}
	}

	var forest []*TreeNode
	for _, name := range order {
		rec, ok := nodes[name]
		if !ok {
			continue
		}
		if _, child := notRoot[name]; child {
			continue
		}
		onPath := map[string]bool{}
		forest = append(forest, buildTree(nodes, rec, coords.Identity(), onPath))
	}
	return forest
}

func buildTree(nodes map[string]NodeRecord, rec NodeRecord, parent coords.Mat4, onPath map[string]bool) *TreeNode {
	onPath[rec.UniqueName] = true
	defer delete(onPath, rec.UniqueName)

	t := &TreeNode{
		Name:   rec.UniqueName,
		Record: rec,
		Kind:   rec.Kind(),
		World:  parent.Mul(rec.Transform),
	}
	for _, c := range rec.Children {
		child, ok := nodes[c]
		if !ok || onPath[c] {
			continue
		}
		t.Children = append(t.Children, buildTree(nodes, child, t.World, onPath))
	}
	return t
}

// CountNodes returns the number of tree nodes in forest.
func CountNodes(forest []*TreeNode) int {
	n := 0
	for _, root := range forest {
		root.Walk(func(*TreeNode) { n++ })
	}
	return n
}
