package analysis

import (
	"log/slog"
	"slices"

	"github.com/alecthomas/errors"

	"github.com/smmousavi8872/dagger/internal/bindgraph"
)

// resolver assembles binding graphs bottom-up: bindings are resolved for
// each component against its inherited scope, child graphs are built first,
// then the parent graph is created referencing them.
type resolver struct {
	decls   *declarations
	logger  *slog.Logger
	full    bool
	missing map[bindgraph.TypeRef][]bindgraph.Key
	// Components on the current resolution path, to reject cycles.
	resolving []bindgraph.TypeRef
}

// scope is the set of bindings visible to a component: everything its
// ancestors installed plus its own modules, constructors and bound
// instances.
type scope map[bindgraph.Key][]bindgraph.Binding

func (s scope) install(binding bindgraph.Binding) scope {
	key := binding.BindingKey()
	// Copy on append so sibling subcomponents never share backing arrays.
	s[key] = append(slices.Clone(s[key]), binding)
	return s
}

func (s scope) clone() scope {
	out := make(scope, len(s))
	for key, bindings := range s {
		out[key] = bindings
	}
	return out
}

func (r *resolver) resolveRoots() ([]*bindgraph.BindingGraph, error) {
	var roots []bindgraph.TypeRef
	for ref, component := range r.decls.components {
		if !component.subcomponent {
			roots = append(roots, ref)
		}
	}
	slices.Sort(roots)

	graphs := make([]*bindgraph.BindingGraph, 0, len(roots))
	for _, root := range roots {
		base := scope{}
		for _, inject := range r.decls.injects {
			base.install(inject)
		}
		graph, err := r.resolveComponent(root, map[bindgraph.TypeRef]bool{}, base, nil)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		graphs = append(graphs, graph)
	}
	return graphs, nil
}

func (r *resolver) resolveComponent(
	ref bindgraph.TypeRef,
	ancestorOwned map[bindgraph.TypeRef]bool,
	inherited scope,
	factory *bindgraph.FactoryMethod,
) (*bindgraph.BindingGraph, error) {
	decl, ok := r.decls.components[ref]
	if !ok {
		return nil, errors.Errorf("unknown component %s", ref)
	}
	if slices.Contains(r.resolving, ref) {
		return nil, errors.Errorf("subcomponent cycle: %s installs itself via %v", ref, r.resolving)
	}
	r.resolving = append(r.resolving, ref)
	defer func() { r.resolving = r.resolving[:len(r.resolving)-1] }()
	descriptor := decl.descriptor

	// I3: a root owns its full transitive module set; a subcomponent owns
	// the transitive modules no ancestor already owns.
	var owned []*bindgraph.ModuleDescriptor
	for _, module := range descriptor.Modules {
		if !ancestorOwned[module.Type] {
			owned = append(owned, module)
		}
	}

	visible := inherited.clone()
	for _, module := range owned {
		for _, binding := range module.Bindings {
			visible.install(binding)
		}
	}
	if creator := descriptor.Creator; creator != nil {
		for _, setter := range creator.Setters {
			visible.install(&bindgraph.BoundInstanceBinding{Key: setter.Key, Setter: setter.Name, Position: creator.Position})
		}
	}
	// Provision methods on declared component dependencies contribute
	// bindings satisfied by the dependency instance at runtime.
	for _, dependency := range descriptor.Dependencies {
		depDecl, ok := r.decls.components[dependency]
		if !ok {
			return nil, errors.Errorf("%s: unknown component dependency %s", ref, dependency)
		}
		for _, entryPoint := range depDecl.descriptor.EntryPoints {
			if entryPoint.Request.IsMembersInjection() {
				continue
			}
			visible.install(&bindgraph.DependencyBinding{
				Key:        entryPoint.Request.Key,
				Dependency: dependency,
				Method:     entryPoint.Name,
				Position:   depDecl.descriptor.Position,
			})
		}
	}

	contributions := map[bindgraph.Key]*bindgraph.ResolvedBindings{}
	membersInjections := map[bindgraph.Key]*bindgraph.ResolvedBindings{}

	// Mark the transitive closure of keys requested by entry points.
	var queue []bindgraph.Key
	for _, entryPoint := range descriptor.EntryPoints {
		if entryPoint.Request.IsMembersInjection() {
			key := entryPoint.Request.Key
			binding, ok := r.decls.members[key.Type]
			if !ok {
				r.missing[ref] = append(r.missing[ref], key)
				continue
			}
			membersInjections[key] = &bindgraph.ResolvedBindings{
				Key:      key,
				Owner:    ref,
				Bindings: []bindgraph.Binding{binding},
			}
			queue = append(queue, binding.Dependencies()...)
			continue
		}
		queue = append(queue, entryPoint.Request.Key)
	}

	reachable := map[bindgraph.Key]bool{}
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		if reachable[key] {
			continue
		}
		reachable[key] = true

		bindings := visible[key]
		if len(bindings) == 0 {
			r.missing[ref] = append(r.missing[ref], key)
			r.logger.Debug("missing binding", "component", ref, "key", key)
			continue
		}
		contributions[key] = &bindgraph.ResolvedBindings{Key: key, Owner: ref, Bindings: bindings}
		for _, binding := range bindings {
			queue = append(queue, binding.Dependencies()...)
		}
	}

	if r.full {
		// A full binding graph carries every binding installed in the
		// component, reachable or not.
		for _, module := range descriptor.Modules {
			for _, binding := range module.Bindings {
				key := binding.BindingKey()
				if contributions[key] == nil {
					contributions[key] = &bindgraph.ResolvedBindings{Key: key, Owner: ref, Bindings: visible[key]}
				}
			}
		}
		if creator := descriptor.Creator; creator != nil {
			for _, key := range creator.BoundInstances() {
				if contributions[key] == nil {
					contributions[key] = &bindgraph.ResolvedBindings{Key: key, Owner: ref, Bindings: visible[key]}
				}
			}
		}
	}

	childOwned := map[bindgraph.TypeRef]bool{}
	for module := range ancestorOwned {
		childOwned[module] = true
	}
	for _, module := range owned {
		childOwned[module.Type] = true
	}

	subgraphs := make([]*bindgraph.BindingGraph, 0, len(decl.subcomponents))
	for _, child := range decl.subcomponents {
		subgraph, err := r.resolveComponent(child, childOwned, visible, descriptor.FactoryFor(child))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		subgraphs = append(subgraphs, subgraph)
	}

	r.logger.Debug("resolved component", "component", ref,
		"bindings", len(contributions), "subcomponents", len(subgraphs), "ownedModules", len(owned))
	graph, err := bindgraph.New(descriptor, contributions, membersInjections, subgraphs, owned, factory, r.full)
	if err != nil {
		return nil, errors.Errorf("failed to assemble binding graph for %s: %w", ref, err)
	}
	return graph, nil
}
