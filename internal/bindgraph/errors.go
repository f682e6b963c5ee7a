package bindgraph

import (
	"fmt"
	"slices"
	"strings"
)

// DuplicateSubgraphsError reports sibling subgraphs that resolve the same
// component type. It indicates a bug in the resolution algorithm, not bad
// user input, and carries the colliding graphs for diagnostics.
type DuplicateSubgraphsError struct {
	Duplicates map[TypeRef][]*BindingGraph
}

func (e *DuplicateSubgraphsError) Error() string {
	types := make([]string, 0, len(e.Duplicates))
	for ref, graphs := range e.Duplicates {
		types = append(types, fmt.Sprintf("%s (%d graphs)", ref, len(graphs)))
	}
	slices.Sort(types)
	return "duplicate subcomponents resolved for " + strings.Join(types, ", ")
}

// PreconditionError reports a graph query whose precondition did not hold,
// eg. requesting factory-method parameters on a graph without a factory
// method. It signals a caller bug in the surrounding tool.
type PreconditionError struct {
	Call        string
	Requirement string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Call, e.Requirement)
}
