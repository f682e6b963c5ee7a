// Package bindgraph is the canonical representation of a fully-resolved
// binding graph for one component and its subcomponents.
//
// A BindingGraph is assembled bottom-up by the analysis layer: bindings are
// resolved for each component, child graphs are built first, then the parent
// graph is created referencing them. Once created a graph is never mutated;
// derived values such as the component requirement set are computed lazily
// from the immutable state and cached, so a completed graph may be read from
// multiple goroutines.
//
// The graph distinguishes two failure kinds. Duplicate component types among
// sibling subgraphs are an invariant violation, reported at construction as a
// DuplicateSubgraphsError, and indicate a bug in the resolution algorithm.
// Querying factory-method parameters on a graph without a factory method, or
// possibly-necessary requirements on a non-subcomponent, is a caller error
// reported as a PreconditionError.
package bindgraph
