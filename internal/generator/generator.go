// Package generator emits component implementations for resolved binding
// graphs.
package generator

import (
	"fmt"
	"hash/fnv"
	"io"
	"slices"
	"strings"

	"github.com/alecthomas/errors"

	"github.com/smmousavi8872/dagger/internal/analysis"
	"github.com/smmousavi8872/dagger/internal/bindgraph"
	"github.com/smmousavi8872/dagger/internal/codewriter"
)

type generatorOptions struct {
	tags []string
}

type Option func(*generatorOptions)

// WithTags adds build tags to the generated code.
func WithTags(tags ...string) Option {
	return func(o *generatorOptions) {
		o.tags = append(o.tags, tags...)
	}
}

// Generate writes the component implementations for every resolved graph in
// the analysis.
func Generate(out io.Writer, a *analysis.Analysis, options ...Option) error {
	opts := &generatorOptions{}
	for _, opt := range options {
		opt(opts)
	}
	g := &generator{
		dest:      a.Dest.Path(),
		w:         codewriter.New(a.Dest.Name()),
		usedNames: map[string]bool{},
	}
	for _, graph := range a.Graphs {
		root := g.buildNodes(graph, nil)
		if err := g.emitNode(root); err != nil {
			return errors.WithStack(err)
		}
	}

	fmt.Fprintf(out, "// Code generated by dagger. DO NOT EDIT.\n\n")
	if len(opts.tags) > 0 {
		fmt.Fprintf(out, "//go:build %s\n\n", strings.Join(opts.tags, " && "))
	}
	_, err := out.Write(g.w.Bytes())
	return errors.WithStack(err)
}

type generator struct {
	dest      string
	w         *codewriter.Writer
	usedNames map[string]bool
}

// node is one graph in the hierarchy being emitted, with the chain back to
// its root.
type node struct {
	graph    *bindgraph.BindingGraph
	parent   *node
	children []*node
	impl     string
}

func (g *generator) buildNodes(graph *bindgraph.BindingGraph, parent *node) *node {
	n := &node{
		graph:  graph,
		parent: parent,
		impl:   g.uniqueName("dagger" + baseName(graph.Component().Type) + "Impl"),
	}
	for _, subgraph := range graph.Subgraphs() {
		n.children = append(n.children, g.buildNodes(subgraph, n))
	}
	return n
}

func (g *generator) uniqueName(name string) string {
	candidate := name
	for i := 2; g.usedNames[candidate]; i++ {
		candidate = fmt.Sprintf("%s%d", name, i)
	}
	g.usedNames[candidate] = true
	return candidate
}

func (g *generator) emitNode(n *node) error {
	component := n.graph.Component()
	requirements := sortedRequirements(n.graph.ComponentRequirements())

	iface := g.typeExpr(component.Type)
	g.w.L("// %s implements %s.", n.impl, iface.ref)
	g.w.L("type %s struct {", n.impl)
	g.w.In(func(w *codewriter.Writer) {
		if n.parent != nil {
			w.L("parent *%s", n.parent.impl)
		}
		for _, requirement := range requirements {
			expr := g.typeExpr(requirement.Type)
			w.L("%s %s", fieldName(requirement), expr.ref)
		}
	})
	g.w.L("}")
	g.w.L("")

	if n.parent == nil {
		if component.Creator != nil {
			g.emitBuilder(n, requirements)
		} else {
			g.emitConstructor(n, requirements)
		}
	}

	for _, entryPoint := range component.EntryPoints {
		if err := g.emitEntryPoint(n, entryPoint); err != nil {
			return errors.WithStack(err)
		}
	}
	for _, factory := range component.ChildFactories {
		if err := g.emitFactory(n, factory); err != nil {
			return errors.WithStack(err)
		}
	}
	if err := g.emitProviders(n); err != nil {
		return errors.WithStack(err)
	}

	for _, child := range n.children {
		if err := g.emitNode(child); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// emitConstructor emits the New<Component> function taking one argument per
// component requirement, in sorted order.
func (g *generator) emitConstructor(n *node, requirements []bindgraph.ComponentRequirement) {
	component := n.graph.Component()
	iface := g.typeExpr(component.Type)
	name := "New" + baseName(component.Type)
	g.w.L("// %s constructs %s from its external requirements.", name, iface.ref)
	g.w.Indent()
	g.w.W("func %s(", name)
	for i, requirement := range requirements {
		expr := g.typeExpr(requirement.Type)
		if i > 0 {
			g.w.W(", ")
		}
		g.w.W("p%d %s", i, expr.ref)
	}
	g.w.W(") %s {\n", iface.ref)
	g.w.In(func(w *codewriter.Writer) {
		w.L("return &%s{", n.impl)
		w.In(func(w *codewriter.Writer) {
			for i, requirement := range requirements {
				w.L("%s: p%d,", fieldName(requirement), i)
			}
		})
		w.L("}")
	})
	g.w.L("}")
	g.w.L("")
}

// TODO(builders): support setters for component dependencies and module
// instances, not just bound instances.
func (g *generator) emitBuilder(n *node, requirements []bindgraph.ComponentRequirement) {
	component := n.graph.Component()
	creator := component.Creator
	builderIface := g.typeExpr(creator.Type)
	builderImpl := g.uniqueName("dagger" + baseName(creator.Type) + "Impl")

	g.w.L("// %s implements %s.", builderImpl, builderIface.ref)
	g.w.L("type %s struct {", builderImpl)
	g.w.In(func(w *codewriter.Writer) {
		for _, setter := range creator.Setters {
			expr := g.typeExpr(setter.Key.Type)
			w.L("%s %s", fieldName(bindgraph.BoundInstanceRequirement(setter.Key)), expr.ref)
		}
	})
	g.w.L("}")
	g.w.L("")

	g.w.L("func New%s() %s {", baseName(creator.Type), builderIface.ref)
	g.w.In(func(w *codewriter.Writer) {
		w.L("return &%s{}", builderImpl)
	})
	g.w.L("}")
	g.w.L("")

	for _, setter := range creator.Setters {
		expr := g.typeExpr(setter.Key.Type)
		field := fieldName(bindgraph.BoundInstanceRequirement(setter.Key))
		if setter.Fluent {
			g.w.L("func (b *%s) %s(value %s) %s {", builderImpl, setter.Name, expr.ref, builderIface.ref)
			g.w.In(func(w *codewriter.Writer) {
				w.L("b.%s = value", field)
				w.L("return b")
			})
		} else {
			g.w.L("func (b *%s) %s(value %s) {", builderImpl, setter.Name, expr.ref)
			g.w.In(func(w *codewriter.Writer) {
				w.L("b.%s = value", field)
			})
		}
		g.w.L("}")
		g.w.L("")
	}

	iface := g.typeExpr(component.Type)
	g.w.L("func (b *%s) %s() %s {", builderImpl, creator.BuildMethod, iface.ref)
	g.w.In(func(w *codewriter.Writer) {
		w.L("return &%s{", n.impl)
		w.In(func(w *codewriter.Writer) {
			for _, requirement := range requirements {
				// Modules default to their zero value.
				if requirement.Kind != bindgraph.BoundInstanceKind {
					continue
				}
				w.L("%s: b.%s,", fieldName(requirement), fieldName(requirement))
			}
		})
		w.L("}")
	})
	g.w.L("}")
	g.w.L("")
}

func (g *generator) emitEntryPoint(n *node, entryPoint bindgraph.EntryPoint) error {
	if entryPoint.Request.IsMembersInjection() {
		return g.emitMembersInjection(n, entryPoint)
	}
	expr, err := g.providerExpr(n, entryPoint.Request.Key)
	if err != nil {
		return errors.WithStack(err)
	}
	result := g.typeExpr(entryPoint.Request.Key.Type)
	g.w.L("func (c *%s) %s() %s {", n.impl, entryPoint.Name, result.ref)
	g.w.In(func(w *codewriter.Writer) {
		w.L("return %s", expr)
	})
	g.w.L("}")
	g.w.L("")
	return nil
}

func (g *generator) emitMembersInjection(n *node, entryPoint bindgraph.EntryPoint) error {
	resolved, ok := n.graph.ResolvedBindingsFor(entryPoint.Request)
	if !ok {
		return errors.Errorf("%s: no members-injection binding for %s", n.graph.Component().Type, entryPoint.Request.Key)
	}
	binding, ok := resolved.Bindings[0].(*bindgraph.MembersInjectionBinding)
	if !ok {
		return errors.Errorf("%s: %s is not a members-injection binding", n.graph.Component().Type, entryPoint.Request.Key)
	}
	target := g.typeExpr("*" + entryPoint.Request.Key.Type)
	lines := make([]string, 0, len(binding.Fields))
	for _, field := range binding.Fields {
		expr, err := g.providerExpr(n, field.Key)
		if err != nil {
			return errors.WithStack(err)
		}
		lines = append(lines, fmt.Sprintf("target.%s = %s", field.Name, expr))
	}
	g.w.L("func (c *%s) %s(target %s) {", n.impl, entryPoint.Name, target.ref)
	g.w.In(func(w *codewriter.Writer) {
		for _, line := range lines {
			w.L("%s", line)
		}
	})
	g.w.L("}")
	g.w.L("")
	return nil
}

func (g *generator) emitFactory(n *node, factory *bindgraph.FactoryMethod) error {
	var child *node
	for _, candidate := range n.children {
		if candidate.graph.Component().Type == factory.Subcomponent {
			child = candidate
		}
	}
	if child == nil {
		return errors.Errorf("%s: no subgraph for factory method %s", n.graph.Component().Type, factory.Name)
	}

	iface := g.typeExpr(factory.Subcomponent)
	g.w.Indent()
	g.w.W("func (c *%s) %s(", n.impl, factory.Name)
	for i, parameter := range factory.Parameters {
		expr := g.typeExpr(parameter.Module)
		if i > 0 {
			g.w.W(", ")
		}
		g.w.W("p%d %s", i, expr.ref)
	}
	g.w.W(") %s {\n", iface.ref)
	g.w.In(func(w *codewriter.Writer) {
		w.L("return &%s{", child.impl)
		w.In(func(w *codewriter.Writer) {
			w.L("parent: c,")
			for i, parameter := range factory.Parameters {
				w.L("%s: p%d,", fieldName(parameter.Requirement()), i)
			}
		})
		w.L("}")
	})
	g.w.L("}")
	g.w.L("")
	return nil
}

func (g *generator) emitProviders(n *node) error {
	var resolved []*bindgraph.ResolvedBindings
	for bindings := range n.graph.AllResolvedBindings() {
		if _, ok := bindings.Bindings[0].(*bindgraph.MembersInjectionBinding); ok {
			continue
		}
		resolved = append(resolved, bindings)
	}
	slices.SortFunc(resolved, func(a, b *bindgraph.ResolvedBindings) int {
		return strings.Compare(a.Key.String(), b.Key.String())
	})

	for _, bindings := range resolved {
		if err := g.emitProvider(n, bindings); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (g *generator) emitProvider(n *node, resolved *bindgraph.ResolvedBindings) error {
	binding := resolved.Bindings[0]
	result := g.typeExpr(resolved.Key.Type)

	var body string
	switch binding := binding.(type) {
	case *bindgraph.ProvidesBinding:
		receiver, err := g.moduleExpr(n, binding)
		if err != nil {
			return errors.WithStack(err)
		}
		args, err := g.argExprs(n, binding.Requires)
		if err != nil {
			return errors.WithStack(err)
		}
		body = fmt.Sprintf("%s.%s(%s)", receiver, methodName(binding.Function), strings.Join(args, ", "))

	case *bindgraph.BindsBinding:
		expr, err := g.providerExpr(n, binding.Delegate)
		if err != nil {
			return errors.WithStack(err)
		}
		body = expr

	case *bindgraph.InjectionBinding:
		args, err := g.argExprs(n, binding.Requires)
		if err != nil {
			return errors.WithStack(err)
		}
		body = fmt.Sprintf("%s(%s)", g.functionExpr(binding.Function), strings.Join(args, ", "))

	case *bindgraph.DependencyBinding:
		expr, err := g.requirementExpr(n, bindgraph.DependencyRequirement(binding.Dependency))
		if err != nil {
			return errors.WithStack(err)
		}
		body = fmt.Sprintf("%s.%s()", expr, binding.Method)

	case *bindgraph.BoundInstanceBinding:
		expr, err := g.requirementExpr(n, bindgraph.BoundInstanceRequirement(resolved.Key))
		if err != nil {
			return errors.WithStack(err)
		}
		body = expr

	case *bindgraph.MembersInjectionBinding:
		return errors.Errorf("members-injection binding %s emitted as a provider", resolved.Key)
	}

	g.w.L("func (c *%s) %s() %s {", n.impl, provideName(resolved.Key), result.ref)
	g.w.In(func(w *codewriter.Writer) {
		w.L("return %s", body)
	})
	g.w.L("}")
	g.w.L("")
	return nil
}

// moduleExpr returns the expression a provider method is invoked on: the
// owning graph's module field for instance-requiring bindings, a throwaway
// instance for static ones.
func (g *generator) moduleExpr(n *node, binding *bindgraph.ProvidesBinding) (string, error) {
	if !binding.RequiresModuleInstance() {
		expr := g.typeExpr(binding.Module)
		return fmt.Sprintf("new(%s)", expr.ref), nil
	}
	return g.requirementExpr(n, bindgraph.ModuleRequirement(binding.Module))
}

func (g *generator) argExprs(n *node, keys []bindgraph.Key) ([]string, error) {
	args := make([]string, 0, len(keys))
	for _, key := range keys {
		expr, err := g.providerExpr(n, key)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		args = append(args, expr)
	}
	return args, nil
}

// providerExpr returns a call to the provide method for key on the nearest
// graph, from n upwards, that resolved it.
func (g *generator) providerExpr(n *node, key bindgraph.Key) (string, error) {
	path := "c"
	request := bindgraph.BindingRequest{Key: key, Kind: bindgraph.InstanceRequest}
	for current := n; current != nil; current = current.parent {
		if _, ok := current.graph.ResolvedBindingsFor(request); ok {
			return fmt.Sprintf("%s.%s()", path, provideName(key)), nil
		}
		path += ".parent"
	}
	return "", errors.Errorf("%s: no resolved binding for %s", n.graph.Component().Type, key)
}

// requirementExpr returns the field access for a requirement on the nearest
// graph, from n upwards, that carries it.
func (g *generator) requirementExpr(n *node, requirement bindgraph.ComponentRequirement) (string, error) {
	path := "c"
	for current := n; current != nil; current = current.parent {
		if current.graph.ComponentRequirements()[requirement] {
			return fmt.Sprintf("%s.%s", path, fieldName(requirement)), nil
		}
		path += ".parent"
	}
	return "", errors.Errorf("%s: no component holds requirement %s", n.graph.Component().Type, requirement)
}

// typeExpr is a Go source reference to a type. Any import it needs is
// registered with the writer as a side effect.
type typeExpr struct {
	ref string
}

func (g *generator) typeExpr(ref bindgraph.TypeRef) typeExpr {
	s := string(ref)
	prefix := ""
	for {
		if rest, ok := strings.CutPrefix(s, "*"); ok {
			prefix, s = prefix+"*", rest
			continue
		}
		if rest, ok := strings.CutPrefix(s, "[]"); ok {
			prefix, s = prefix+"[]", rest
			continue
		}
		break
	}
	dot := strings.LastIndex(s, ".")
	if dot < 0 || dot < strings.LastIndex(s, "/") {
		return typeExpr{ref: prefix + s}
	}
	path, name := s[:dot], s[dot+1:]
	if path == g.dest {
		return typeExpr{ref: prefix + name}
	}
	alias := importAlias(path)
	g.w.Import(fmt.Sprintf("%s %q", alias, path))
	return typeExpr{ref: prefix + alias + "." + name}
}

// functionExpr resolves a fully-qualified function reference such as
// github.com/example/app.NewLogger to a call target relative to the
// destination package.
func (g *generator) functionExpr(ref string) string {
	dot := strings.LastIndex(ref, ".")
	if dot < 0 || dot < strings.LastIndex(ref, "/") {
		return ref
	}
	path, name := ref[:dot], ref[dot+1:]
	if path == g.dest {
		return name
	}
	alias := importAlias(path)
	g.w.Import(fmt.Sprintf("%s %q", alias, path))
	return alias + "." + name
}

// methodName strips any package qualification from a provider method
// reference, leaving the bare method name.
func methodName(ref string) string {
	if dot := strings.LastIndex(ref, "."); dot >= 0 {
		return ref[dot+1:]
	}
	return ref
}

func importAlias(path string) string {
	h := fnv.New64a()
	h.Write([]byte(path))
	return fmt.Sprintf("imp%x", h.Sum64())
}

func baseName(ref bindgraph.TypeRef) string {
	s := strings.TrimLeft(string(ref), "*")
	if dot := strings.LastIndex(s, "."); dot >= 0 {
		s = s[dot+1:]
	}
	return s
}

func hash(s string) string {
	h := fnv.New64a()
	h.Write([]byte(s))
	return fmt.Sprintf("%x", h.Sum64())
}

func fieldName(requirement bindgraph.ComponentRequirement) string {
	var prefix string
	switch requirement.Kind {
	case bindgraph.ModuleKind:
		prefix = "module"
	case bindgraph.DependencyKind:
		prefix = "dep"
	case bindgraph.BoundInstanceKind:
		prefix = "bound"
	}
	return prefix + hash(requirement.String())
}

func provideName(key bindgraph.Key) string {
	return "provide" + hash(key.String())
}

func sortedRequirements(requirements map[bindgraph.ComponentRequirement]bool) []bindgraph.ComponentRequirement {
	out := make([]bindgraph.ComponentRequirement, 0, len(requirements))
	for requirement := range requirements {
		out = append(out, requirement)
	}
	slices.SortFunc(out, func(a, b bindgraph.ComponentRequirement) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}
