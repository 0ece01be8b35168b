// Package tree validates hierarchical entities before they are saved.
//
// Catalog entities such as roles or organization units point at a parent
// of their own type. Processors handling their create and update events use
// HasCycle and WouldCycle to reject parent assignments that loop back, and
// HasDuplicateName to keep sibling names unique. All functions are pure and
// safe for concurrent use.
package tree

// Node is an entity that may have a parent of the same type.
type Node[N any] interface {
	// Key identifies the node. Two nodes with equal keys are the same node.
	Key() string

	// ParentNode returns the parent, or false for a root.
	ParentNode() (N, bool)
}

// Named is an entity with a display name, unique among its siblings.
type Named interface {
	Key() string
	Name() string
}

// HasCycle reports whether following parent links from start revisits a
// node. It walks the chain iteratively and stops at the first repeat.
func HasCycle[N Node[N]](start N) bool {
	visited := make(map[string]bool)
	cur := start
	for {
		key := cur.Key()
		if visited[key] {
			return true
		}
		visited[key] = true

		parent, ok := cur.ParentNode()
		if !ok {
			return false
		}
		cur = parent
	}
}

// WouldCycle reports whether making parent the parent of node creates a
// cycle, i.e. node is parent itself or one of its ancestors. A parent chain
// that already loops counts as a cycle.
func WouldCycle[N Node[N]](node, parent N) bool {
	key := node.Key()
	visited := make(map[string]bool)
	cur := parent
	for {
		k := cur.Key()
		if k == key || visited[k] {
			return true
		}
		visited[k] = true

		next, ok := cur.ParentNode()
		if !ok {
			return false
		}
		cur = next
	}
}

// Depth returns the number of ancestors of n, or -1 if its parent chain
// loops.
func Depth[N Node[N]](n N) int {
	visited := map[string]bool{n.Key(): true}
	depth := 0
	cur := n
	for {
		parent, ok := cur.ParentNode()
		if !ok {
			return depth
		}
		if visited[parent.Key()] {
			return -1
		}
		visited[parent.Key()] = true
		depth++
		cur = parent
	}
}

// HasDuplicateName reports whether candidate's name equals the name of a
// sibling. A sibling with the candidate's key is the candidate itself and
// is ignored, so renaming a node to its current name is allowed.
func HasDuplicateName[N Named](siblings []N, candidate N) bool {
	return HasDuplicateNameFunc(siblings, candidate, func(a, b string) bool { return a == b })
}

// HasDuplicateNameFunc is HasDuplicateName with a custom name comparison,
// e.g. strings.EqualFold.
func HasDuplicateNameFunc[N Named](siblings []N, candidate N, equal func(a, b string) bool) bool {
	key, name := candidate.Key(), candidate.Name()
	for _, s := range siblings {
		if s.Key() == key {
			continue
		}
		if equal(s.Name(), name) {
			return true
		}
	}
	return false
}

// DuplicateNames returns each name shared by more than one sibling, in order
// of first repetition.
func DuplicateNames[N Named](siblings []N) []string {
	seen := make(map[string]int, len(siblings))
	var dups []string
	for _, s := range siblings {
		seen[s.Name()]++
		if seen[s.Name()] == 2 {
			dups = append(dups, s.Name())
		}
	}
	return dups
}
