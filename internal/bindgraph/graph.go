package bindgraph

import (
	"cmp"
	"hash/fnv"
	"iter"
	"slices"
	"sync/atomic"

	"github.com/alecthomas/errors"
)

// BindingGraph is the resolved graph node for one component: its resolved
// bindings, the modules it owns, its child graphs, and the requirement sets
// derived from them.
//
// Graphs are immutable once created. Derived values are computed on first
// access and cached; racing first accesses may recompute redundantly but
// always produce identical results, so no locking is needed.
type BindingGraph struct {
	component         *ComponentDescriptor
	contributions     map[Key]*ResolvedBindings
	membersInjections map[Key]*ResolvedBindings
	subgraphs         []*BindingGraph
	ownedModules      []*ModuleDescriptor
	factoryMethod     *FactoryMethod
	full              bool

	ownedModuleTypes  atomic.Pointer[map[TypeRef]bool]
	requirements      atomic.Pointer[map[ComponentRequirement]bool]
	possiblyNecessary atomic.Pointer[map[ComponentRequirement]bool]
	descriptors       atomic.Pointer[[]*ComponentDescriptor]
	hash              atomic.Pointer[uint64]
}

// New creates a graph from already-resolved state.
//
// Child graphs must be fully built before their parent. Sibling subgraphs
// resolving the same component type fail with a DuplicateSubgraphsError;
// deeper duplicates were already checked when the children were created.
func New(
	component *ComponentDescriptor,
	contributions map[Key]*ResolvedBindings,
	membersInjections map[Key]*ResolvedBindings,
	subgraphs []*BindingGraph,
	ownedModules []*ModuleDescriptor,
	factoryMethod *FactoryMethod,
	fullBindingGraph bool,
) (*BindingGraph, error) {
	if err := checkForDuplicates(subgraphs); err != nil {
		return nil, errors.WithStack(err)
	}
	return &BindingGraph{
		component:         component,
		contributions:     contributions,
		membersInjections: membersInjections,
		subgraphs:         subgraphs,
		ownedModules:      ownedModules,
		factoryMethod:     factoryMethod,
		full:              fullBindingGraph,
	}, nil
}

func checkForDuplicates(subgraphs []*BindingGraph) error {
	byType := map[TypeRef][]*BindingGraph{}
	for _, subgraph := range subgraphs {
		ref := subgraph.component.Type
		byType[ref] = append(byType[ref], subgraph)
	}
	duplicates := map[TypeRef][]*BindingGraph{}
	for ref, graphs := range byType {
		if len(graphs) > 1 {
			duplicates[ref] = graphs
		}
	}
	if len(duplicates) > 0 {
		return &DuplicateSubgraphsError{Duplicates: duplicates}
	}
	return nil
}

// Component returns the descriptor this graph resolves.
func (g *BindingGraph) Component() *ComponentDescriptor { return g.component }

// Subgraphs returns the child graphs in declaration order.
func (g *BindingGraph) Subgraphs() []*BindingGraph { return g.subgraphs }

// OwnedModules returns the modules this graph, not an ancestor, is
// responsible for instantiating, whether or not any of their bindings are
// used.
func (g *BindingGraph) OwnedModules() []*ModuleDescriptor { return g.ownedModules }

// FactoryMethod returns the method on the parent component that creates
// this subcomponent, or nil for root components and builder-created
// subcomponents.
func (g *BindingGraph) FactoryMethod() *FactoryMethod { return g.factoryMethod }

// IsFullBindingGraph reports whether the graph contains every installed
// binding rather than only those reachable from an entry point.
func (g *BindingGraph) IsFullBindingGraph() bool { return g.full }

// ResolvedBindingsFor returns the resolved bindings for a request.
// Members-injection requests resolve in their own namespace. A false return
// means the key is not part of this graph; it is never an error.
func (g *BindingGraph) ResolvedBindingsFor(request BindingRequest) (*ResolvedBindings, bool) {
	var resolved *ResolvedBindings
	if request.IsMembersInjection() {
		resolved = g.membersInjections[request.Key]
	} else {
		resolved = g.contributions[request.Key]
	}
	return resolved, resolved != nil
}

// AllResolvedBindings iterates over every ResolvedBindings in the graph,
// members-injection and contribution alike, in no particular order. It is a
// transient view, not a copy.
func (g *BindingGraph) AllResolvedBindings() iter.Seq[*ResolvedBindings] {
	return func(yield func(*ResolvedBindings) bool) {
		for _, resolved := range g.membersInjections {
			if !yield(resolved) {
				return
			}
		}
		for _, resolved := range g.contributions {
			if !yield(resolved) {
				return
			}
		}
	}
}

// OwnedModuleTypes returns the set of type references of the owned modules.
func (g *BindingGraph) OwnedModuleTypes() map[TypeRef]bool {
	if cached := g.ownedModuleTypes.Load(); cached != nil {
		return *cached
	}
	owned := make(map[TypeRef]bool, len(g.ownedModules))
	for _, module := range g.ownedModules {
		owned[module.Type] = true
	}
	g.ownedModuleTypes.CompareAndSwap(nil, &owned)
	return *g.ownedModuleTypes.Load()
}

// FactoryMethodParameters returns the factory method's parameters in
// declaration order, each corresponding to one module requirement. It fails
// with a PreconditionError if the graph has no factory method.
func (g *BindingGraph) FactoryMethodParameters() ([]FactoryParameter, error) {
	if g.factoryMethod == nil {
		return nil, errors.WithStack(&PreconditionError{
			Call:        "FactoryMethodParameters",
			Requirement: "graph has no subcomponent factory method",
		})
	}
	return g.factoryMethod.Parameters, nil
}

// ComponentRequirements returns the set of external inputs the component
// needs to be constructed: owned modules with instance-requiring bindings
// used anywhere in the subtree, factory-method parameters, declared
// component dependencies, and the builder's bound instances.
//
// The returned set is cached; callers must not mutate it.
func (g *BindingGraph) ComponentRequirements() map[ComponentRequirement]bool {
	if cached := g.requirements.Load(); cached != nil {
		return *cached
	}
	requirements := g.deriveRequirements(g.subtreeResolvedBindings())
	g.requirements.CompareAndSwap(nil, &requirements)
	return *g.requirements.Load()
}

// PossiblyNecessaryRequirements returns the inputs the subcomponent may
// need depending on how it is resolved in a parent: computed like
// ComponentRequirements but over every binding declared in owned modules,
// reachable or not, since an ancestor may demand a module instance this
// graph never uses. It fails with a PreconditionError on a root component.
//
// The returned set is cached; callers must not mutate it.
func (g *BindingGraph) PossiblyNecessaryRequirements() (map[ComponentRequirement]bool, error) {
	if !g.component.Subcomponent {
		return nil, errors.WithStack(&PreconditionError{
			Call:        "PossiblyNecessaryRequirements",
			Requirement: "graph must resolve a subcomponent",
		})
	}
	if cached := g.possiblyNecessary.Load(); cached != nil {
		return *cached, nil
	}
	requirements := g.deriveRequirements(g.subtreeDeclaredBindings())
	g.possiblyNecessary.CompareAndSwap(nil, &requirements)
	return *g.possiblyNecessary.Load(), nil
}

// deriveRequirements computes the requirement set from a lazy sequence of
// contribution bindings. Both public derivations share it; they differ only
// in the binding source.
func (g *BindingGraph) deriveRequirements(bindings iter.Seq[Binding]) map[ComponentRequirement]bool {
	owned := g.OwnedModuleTypes()
	requirements := map[ComponentRequirement]bool{}
	for binding := range bindings {
		if !binding.RequiresModuleInstance() {
			continue
		}
		module := binding.ContributingModule()
		if module == "" || !owned[module] {
			continue
		}
		requirements[ModuleRequirement(module)] = true
	}
	if g.factoryMethod != nil {
		// Parameters are added unconditionally, with no cross-check against
		// owned modules; validating the declaration is the parser's job.
		for _, parameter := range g.factoryMethod.Parameters {
			requirements[parameter.Requirement()] = true
		}
	}
	for _, dependency := range g.component.Dependencies {
		requirements[DependencyRequirement(dependency)] = true
	}
	if creator := g.component.Creator; creator != nil {
		for _, requirement := range creator.BoundInstanceRequirements() {
			requirements[requirement] = true
		}
	}
	return requirements
}

// subtreeResolvedBindings iterates over every contribution binding resolved
// in this graph and its descendants, in traversal order.
func (g *BindingGraph) subtreeResolvedBindings() iter.Seq[Binding] {
	return func(yield func(Binding) bool) {
		for graph := range PreOrder(g, (*BindingGraph).Subgraphs) {
			for _, resolved := range graph.contributions {
				for _, binding := range resolved.Bindings {
					if !yield(binding) {
						return
					}
				}
			}
		}
	}
}

// subtreeDeclaredBindings iterates over every binding declared in the owned
// modules of this graph and its descendants, whether or not it was resolved.
func (g *BindingGraph) subtreeDeclaredBindings() iter.Seq[Binding] {
	return func(yield func(Binding) bool) {
		for graph := range PreOrder(g, (*BindingGraph).Subgraphs) {
			for _, module := range graph.ownedModules {
				for _, binding := range module.Bindings {
					if !yield(binding) {
						return
					}
				}
			}
		}
	}
}

// ComponentDescriptors returns the descriptors of this component and every
// descendant subcomponent, deduplicated, in traversal order.
func (g *BindingGraph) ComponentDescriptors() []*ComponentDescriptor {
	if cached := g.descriptors.Load(); cached != nil {
		return *cached
	}
	seen := map[TypeRef]bool{}
	var descriptors []*ComponentDescriptor
	for graph := range PreOrder(g, (*BindingGraph).Subgraphs) {
		if seen[graph.component.Type] {
			continue
		}
		seen[graph.component.Type] = true
		descriptors = append(descriptors, graph.component)
	}
	g.descriptors.CompareAndSwap(nil, &descriptors)
	return *g.descriptors.Load()
}

// Hash returns a structural hash of the graph: its component type, resolved
// keys, owned module types and subgraph hashes. Equal graphs hash equally;
// the value is deterministic across processes.
func (g *BindingGraph) Hash() uint64 {
	if cached := g.hash.Load(); cached != nil {
		return *cached
	}
	h := fnv.New64a()
	h.Write([]byte(g.component.Type))
	if g.full {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	for _, key := range sortedKeys(g.contributions) {
		h.Write([]byte(key.String()))
	}
	h.Write([]byte{0})
	for _, key := range sortedKeys(g.membersInjections) {
		h.Write([]byte(key.String()))
	}
	h.Write([]byte{0})
	for _, module := range g.ownedModules {
		h.Write([]byte(module.Type))
	}
	var buf [8]byte
	for _, subgraph := range g.subgraphs {
		sub := subgraph.Hash()
		for i := range buf {
			buf[i] = byte(sub >> (8 * i))
		}
		h.Write(buf[:])
	}
	sum := h.Sum64()
	g.hash.CompareAndSwap(nil, &sum)
	return *g.hash.Load()
}

func sortedKeys(bindings map[Key]*ResolvedBindings) []Key {
	keys := make([]Key, 0, len(bindings))
	for key := range bindings {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.Qualifier, b.Qualifier)
	})
	return keys
}
