package bindgraph

import "iter"

// PreOrder returns a depth-first pre-order traversal of the tree rooted at
// root: the root is visited first, then each child's subtree in children
// order.
//
// Every hierarchy-aggregating query on a graph goes through this one
// function so they all observe the same deterministic order.
func PreOrder[T any](root T, children func(T) []T) iter.Seq[T] {
	return func(yield func(T) bool) {
		visit(root, children, yield)
	}
}

func visit[T any](node T, children func(T) []T, yield func(T) bool) bool {
	if !yield(node) {
		return false
	}
	for _, child := range children(node) {
		if !visit(child, children, yield) {
			return false
		}
	}
	return true
}
