package analysis

import (
	"go/ast"
	"go/token"
	"go/types"
	"log/slog"
	"reflect"
	"slices"
	"strings"

	"github.com/alecthomas/errors"
	"golang.org/x/tools/go/packages"

	"github.com/smmousavi8872/dagger/internal/bindgraph"
	"github.com/smmousavi8872/dagger/internal/directiveparser"
)

func typeRef(t types.Type) bindgraph.TypeRef {
	return bindgraph.TypeRef(types.TypeString(t, nil))
}

// baseRef strips one level of pointer before computing the reference, so
// *app.DBModule and app.DBModule identify the same module.
func baseRef(t types.Type) bindgraph.TypeRef {
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	return typeRef(t)
}

type componentDecl struct {
	ref          bindgraph.TypeRef
	named        *types.Named
	iface        *types.Interface
	subcomponent bool
	modules      []string // unresolved directive references
	deps         []string
	position     token.Position

	descriptor    *bindgraph.ComponentDescriptor // built by link
	subcomponents []bindgraph.TypeRef            // declared subcomponents, in order
}

type moduleDecl struct {
	descriptor    *bindgraph.ModuleDescriptor
	named         *types.Named
	includes      []string // unresolved directive references
	subcomponents []string
}

type builderDecl struct {
	ref      bindgraph.TypeRef
	forRef   string
	named    *types.Named
	iface    *types.Interface
	position token.Position
}

// declarations indexes every dagger-annotated declaration found across the
// loaded packages, before references between them are resolved.
type declarations struct {
	fset   *token.FileSet
	logger *slog.Logger

	components map[bindgraph.TypeRef]*componentDecl
	modules    map[bindgraph.TypeRef]*moduleDecl
	builders   []*builderDecl
	injects    []*bindgraph.InjectionBinding
	members    map[bindgraph.TypeRef]*bindgraph.MembersInjectionBinding
}

func newDeclarations(fset *token.FileSet, logger *slog.Logger) *declarations {
	return &declarations{
		fset:       fset,
		logger:     logger,
		components: map[bindgraph.TypeRef]*componentDecl{},
		modules:    map[bindgraph.TypeRef]*moduleDecl{},
		members:    map[bindgraph.TypeRef]*bindgraph.MembersInjectionBinding{},
	}
}

func (d *declarations) scanTypes(pkg *packages.Package) error {
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			genDecl, ok := decl.(*ast.GenDecl)
			if !ok {
				continue
			}
			directive, err := parseDirective(genDecl.Doc)
			if err != nil {
				return errors.Errorf("%s: %w", d.fset.Position(genDecl.Pos()), err)
			} else if directive == nil {
				continue
			}
			for _, spec := range genDecl.Specs {
				typeSpec, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				if err := d.scanTypeSpec(pkg, typeSpec, directive); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (d *declarations) scanTypeSpec(pkg *packages.Package, spec *ast.TypeSpec, directive directiveparser.Directive) error {
	position := d.fset.Position(spec.Pos())
	obj := pkg.TypesInfo.TypeOf(spec.Name)
	if obj == nil {
		return errors.Errorf("%s: failed to resolve type %s", position, spec.Name.Name)
	}
	named, ok := obj.(*types.Named)
	if !ok {
		return errors.Errorf("%s: %s is not a named type", position, spec.Name.Name)
	}
	ref := typeRef(named)

	switch directive := directive.(type) {
	case *directiveparser.DirectiveComponent:
		iface, ok := named.Underlying().(*types.Interface)
		if !ok {
			return errors.Errorf("%s: //dagger:component is only valid on interfaces", position)
		}
		d.components[ref] = &componentDecl{
			ref:      ref,
			named:    named,
			iface:    iface,
			modules:  directive.Modules,
			deps:     directive.Deps,
			position: position,
		}
		d.logger.Debug("found component", "type", ref)

	case *directiveparser.DirectiveSubcomponent:
		iface, ok := named.Underlying().(*types.Interface)
		if !ok {
			return errors.Errorf("%s: //dagger:subcomponent is only valid on interfaces", position)
		}
		d.components[ref] = &componentDecl{
			ref:          ref,
			named:        named,
			iface:        iface,
			subcomponent: true,
			modules:      directive.Modules,
			position:     position,
		}
		d.logger.Debug("found subcomponent", "type", ref)

	case *directiveparser.DirectiveModule:
		if _, ok := named.Underlying().(*types.Struct); !ok {
			return errors.Errorf("%s: //dagger:module is only valid on structs", position)
		}
		d.modules[ref] = &moduleDecl{
			descriptor:    &bindgraph.ModuleDescriptor{Type: ref, Position: position},
			named:         named,
			includes:      directive.Includes,
			subcomponents: directive.Subcomponents,
		}
		d.logger.Debug("found module", "type", ref)

	case *directiveparser.DirectiveBuilder:
		iface, ok := named.Underlying().(*types.Interface)
		if !ok {
			return errors.Errorf("%s: //dagger:builder is only valid on interfaces", position)
		}
		d.builders = append(d.builders, &builderDecl{
			ref:      ref,
			forRef:   directive.For,
			named:    named,
			iface:    iface,
			position: position,
		})

	case *directiveparser.DirectiveMembers:
		strct, ok := named.Underlying().(*types.Struct)
		if !ok {
			return errors.Errorf("%s: //dagger:members is only valid on structs", position)
		}
		binding := &bindgraph.MembersInjectionBinding{
			Key:      bindgraph.TypeKey(ref),
			Position: position,
		}
		for i := range strct.NumFields() {
			field := strct.Field(i)
			tag := reflect.StructTag(strct.Tag(i))
			if tag.Get("dagger") != "inject" {
				continue
			}
			binding.Fields = append(binding.Fields, bindgraph.MemberField{
				Name: field.Name(),
				Key:  bindgraph.TypeKey(typeRef(field.Type())),
			})
		}
		if len(binding.Fields) == 0 {
			return errors.Errorf("%s: //dagger:members struct %s has no fields tagged `dagger:\"inject\"`", position, ref)
		}
		d.members[ref] = binding

	default:
		return errors.Errorf("%s: directive %s is not valid on a type", position, directive)
	}
	return nil
}

func (d *declarations) scanFunctions(pkg *packages.Package) error {
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok {
				continue
			}
			directive, err := parseDirective(fn.Doc)
			if err != nil {
				return errors.Errorf("%s: %w", d.fset.Position(fn.Pos()), err)
			} else if directive == nil {
				continue
			}
			if err := d.scanFuncDecl(pkg, fn, directive); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *declarations) scanFuncDecl(pkg *packages.Package, fn *ast.FuncDecl, directive directiveparser.Directive) error {
	position := d.fset.Position(fn.Pos())
	obj := pkg.TypesInfo.ObjectOf(fn.Name)
	funcObj, ok := obj.(*types.Func)
	if !ok {
		return errors.Errorf("%s: failed to resolve function %s", position, fn.Name.Name)
	}
	sig := funcObj.Signature()

	switch directive := directive.(type) {
	case *directiveparser.DirectiveProvides:
		module, err := d.receiverModule(position, sig)
		if err != nil {
			return errors.WithStack(err)
		}
		provided, err := singleResult(position, sig, "provider method")
		if err != nil {
			return errors.WithStack(err)
		}
		binding := &bindgraph.ProvidesBinding{
			Key:      bindgraph.QualifiedKey(typeRef(provided), directive.Qualifier),
			Module:   module.descriptor.Type,
			Function: fn.Name.Name,
			Static:   directive.Static,
			Requires: paramKeys(sig),
			Position: position,
		}
		module.descriptor.Bindings = append(module.descriptor.Bindings, binding)
		d.logger.Debug("found provider", "key", binding.Key, "module", binding.Module)

	case *directiveparser.DirectiveBinds:
		module, err := d.receiverModule(position, sig)
		if err != nil {
			return errors.WithStack(err)
		}
		if sig.Params().Len() != 1 {
			return errors.Errorf("%s: binds method %s must take exactly one implementation parameter", position, fn.Name.Name)
		}
		bound, err := singleResult(position, sig, "binds method")
		if err != nil {
			return errors.WithStack(err)
		}
		binding := &bindgraph.BindsBinding{
			Key:      bindgraph.QualifiedKey(typeRef(bound), directive.Qualifier),
			Module:   module.descriptor.Type,
			Delegate: bindgraph.TypeKey(typeRef(sig.Params().At(0).Type())),
			Position: position,
		}
		module.descriptor.Bindings = append(module.descriptor.Bindings, binding)

	case *directiveparser.DirectiveInject:
		if sig.Recv() != nil {
			return errors.Errorf("%s: //dagger:inject is only valid on functions, not methods", position)
		}
		provided, err := singleResult(position, sig, "inject constructor")
		if err != nil {
			return errors.WithStack(err)
		}
		d.injects = append(d.injects, &bindgraph.InjectionBinding{
			Key:      bindgraph.QualifiedKey(typeRef(provided), directive.Qualifier),
			Function: funcObj.Pkg().Path() + "." + funcObj.Name(),
			Requires: paramKeys(sig),
			Position: position,
		})

	default:
		return errors.Errorf("%s: directive %s is not valid on a function", position, directive)
	}
	return nil
}

func (d *declarations) receiverModule(position token.Position, sig *types.Signature) (*moduleDecl, error) {
	recv := sig.Recv()
	if recv == nil {
		return nil, errors.Errorf("%s: directive requires a module method, not a free function", position)
	}
	ref := baseRef(recv.Type())
	module, ok := d.modules[ref]
	if !ok {
		return nil, errors.Errorf("%s: receiver %s is not a //dagger:module", position, ref)
	}
	return module, nil
}

func singleResult(position token.Position, sig *types.Signature, what string) (types.Type, error) {
	if sig.Results().Len() != 1 {
		return nil, errors.Errorf("%s: %s must return exactly one value", position, what)
	}
	return sig.Results().At(0).Type(), nil
}

func paramKeys(sig *types.Signature) []bindgraph.Key {
	params := sig.Params()
	keys := make([]bindgraph.Key, 0, params.Len())
	for i := range params.Len() {
		keys = append(keys, bindgraph.TypeKey(typeRef(params.At(i).Type())))
	}
	return keys
}

// matchRef reports whether a directive reference such as "DBModule" or
// "db.Module" or a full type reference identifies ref.
func matchRef(ref bindgraph.TypeRef, name string) bool {
	s := string(ref)
	if s == name {
		return true
	}
	if strings.HasSuffix(s, "/"+name) {
		return true
	}
	return !strings.Contains(name, ".") && strings.HasSuffix(s, "."+name)
}

func resolveRef[T any](index map[bindgraph.TypeRef]T, name, what string) (bindgraph.TypeRef, error) {
	var candidates []bindgraph.TypeRef
	for ref := range index {
		if matchRef(ref, name) {
			candidates = append(candidates, ref)
		}
	}
	switch len(candidates) {
	case 0:
		return "", errors.Errorf("unknown %s %q", what, name)
	case 1:
		return candidates[0], nil
	}
	slices.Sort(candidates)
	refs := make([]string, 0, len(candidates))
	for _, ref := range candidates {
		refs = append(refs, string(ref))
	}
	return "", errors.Errorf("ambiguous %s %q: matches %s", what, name, strings.Join(refs, ", "))
}

// link resolves the by-name references between declarations and builds the
// final component descriptors.
func (d *declarations) link() error {
	for _, module := range d.modules {
		for _, include := range module.includes {
			ref, err := resolveRef(d.modules, include, "module")
			if err != nil {
				return errors.Errorf("%s: %w", module.descriptor.Position, err)
			}
			module.descriptor.Includes = append(module.descriptor.Includes, ref)
		}
		for _, sub := range module.subcomponents {
			ref, err := resolveRef(d.components, sub, "subcomponent")
			if err != nil {
				return errors.Errorf("%s: %w", module.descriptor.Position, err)
			}
			if !d.components[ref].subcomponent {
				return errors.Errorf("%s: %s is a root component, not a subcomponent", module.descriptor.Position, ref)
			}
			module.descriptor.Subcomponents = append(module.descriptor.Subcomponents, ref)
		}
	}

	creators := map[bindgraph.TypeRef]*bindgraph.CreatorDescriptor{}
	for _, builder := range d.builders {
		component, err := resolveRef(d.components, builder.forRef, "component")
		if err != nil {
			return errors.Errorf("%s: %w", builder.position, err)
		}
		creator, err := d.creatorDescriptor(builder, component)
		if err != nil {
			return errors.WithStack(err)
		}
		if _, ok := creators[component]; ok {
			return errors.Errorf("%s: component %s already has a builder", builder.position, component)
		}
		creators[component] = creator
	}

	for _, component := range d.components {
		if err := d.buildDescriptor(component, creators[component.ref]); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// transitiveModules expands the declared module references of a component
// through module includes, depth-first in declaration order.
func (d *declarations) transitiveModules(component *componentDecl) ([]*bindgraph.ModuleDescriptor, error) {
	var out []*bindgraph.ModuleDescriptor
	seen := map[bindgraph.TypeRef]bool{}
	var expand func(ref bindgraph.TypeRef) error
	expand = func(ref bindgraph.TypeRef) error {
		if seen[ref] {
			return nil
		}
		seen[ref] = true
		module, ok := d.modules[ref]
		if !ok {
			return errors.Errorf("unknown module %s", ref)
		}
		out = append(out, module.descriptor)
		for _, include := range module.descriptor.Includes {
			if err := expand(include); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range component.modules {
		ref, err := resolveRef(d.modules, name, "module")
		if err != nil {
			return nil, errors.Errorf("%s: %w", component.position, err)
		}
		if err := expand(ref); err != nil {
			return nil, errors.Errorf("%s: %w", component.position, err)
		}
	}
	return out, nil
}

func (d *declarations) buildDescriptor(component *componentDecl, creator *bindgraph.CreatorDescriptor) error {
	modules, err := d.transitiveModules(component)
	if err != nil {
		return errors.WithStack(err)
	}

	var deps []bindgraph.TypeRef
	for _, name := range component.deps {
		ref, err := resolveRef(d.components, name, "component dependency")
		if err != nil {
			return errors.Errorf("%s: %w", component.position, err)
		}
		deps = append(deps, ref)
	}

	// Subcomponents installed by modules come first, then factory-method
	// targets, preserving declaration order.
	var subcomponents []bindgraph.TypeRef
	seen := map[bindgraph.TypeRef]bool{}
	for _, module := range modules {
		for _, sub := range module.Subcomponents {
			if !seen[sub] {
				seen[sub] = true
				subcomponents = append(subcomponents, sub)
			}
		}
	}

	var entryPoints []bindgraph.EntryPoint
	var factories []*bindgraph.FactoryMethod
	for i := range component.iface.NumExplicitMethods() {
		method := component.iface.ExplicitMethod(i)
		sig := method.Signature()
		params, results := sig.Params(), sig.Results()

		if results.Len() == 1 {
			resultRef := baseRef(results.At(0).Type())
			if child, ok := d.components[resultRef]; ok && child.subcomponent {
				factory, err := d.factoryMethod(component, method, resultRef)
				if err != nil {
					return errors.WithStack(err)
				}
				factories = append(factories, factory)
				if !seen[resultRef] {
					seen[resultRef] = true
					subcomponents = append(subcomponents, resultRef)
				}
				continue
			}
			if params.Len() == 0 {
				entryPoints = append(entryPoints, bindgraph.EntryPoint{
					Name: method.Name(),
					Request: bindgraph.BindingRequest{
						Key:  bindgraph.TypeKey(typeRef(results.At(0).Type())),
						Kind: bindgraph.InstanceRequest,
					},
				})
				continue
			}
		}

		if results.Len() == 0 && params.Len() == 1 {
			target := baseRef(params.At(0).Type())
			if _, ok := d.members[target]; ok {
				entryPoints = append(entryPoints, bindgraph.EntryPoint{
					Name: method.Name(),
					Request: bindgraph.BindingRequest{
						Key:  bindgraph.TypeKey(target),
						Kind: bindgraph.MembersInjectionRequest,
					},
				})
				continue
			}
		}

		return errors.Errorf("%s: unsupported component method %s.%s: expected a provision method, a members-injection method or a subcomponent factory",
			component.position, component.ref, method.Name())
	}

	component.subcomponents = subcomponents
	component.descriptor = &bindgraph.ComponentDescriptor{
		Type:           component.ref,
		Subcomponent:   component.subcomponent,
		Modules:        modules,
		Dependencies:   deps,
		Creator:        creator,
		EntryPoints:    entryPoints,
		ChildFactories: factories,
		Position:       component.position,
	}
	return nil
}

func (d *declarations) factoryMethod(component *componentDecl, method *types.Func, child bindgraph.TypeRef) (*bindgraph.FactoryMethod, error) {
	sig := method.Signature()
	params := sig.Params()
	factory := &bindgraph.FactoryMethod{
		Name:         method.Name(),
		Subcomponent: child,
	}
	for i := range params.Len() {
		param := params.At(i)
		ref := baseRef(param.Type())
		if _, ok := d.modules[ref]; !ok {
			return nil, errors.Errorf("%s: factory method %s.%s parameter %s must be a module, not %s",
				component.position, component.ref, method.Name(), param.Name(), ref)
		}
		factory.Parameters = append(factory.Parameters, bindgraph.FactoryParameter{
			Name:   param.Name(),
			Module: ref,
		})
	}
	return factory, nil
}

func (d *declarations) creatorDescriptor(builder *builderDecl, component bindgraph.TypeRef) (*bindgraph.CreatorDescriptor, error) {
	creator := &bindgraph.CreatorDescriptor{
		Type:     builder.ref,
		Position: builder.position,
	}
	for i := range builder.iface.NumExplicitMethods() {
		method := builder.iface.ExplicitMethod(i)
		sig := method.Signature()
		params, results := sig.Params(), sig.Results()
		switch {
		case params.Len() == 0 && results.Len() == 1 && typeRef(results.At(0).Type()) == component:
			if creator.BuildMethod != "" {
				return nil, errors.Errorf("%s: builder %s has multiple build methods", builder.position, builder.ref)
			}
			creator.BuildMethod = method.Name()
		case params.Len() == 1:
			fluent := results.Len() == 1 && typeRef(results.At(0).Type()) == builder.ref
			creator.Setters = append(creator.Setters, bindgraph.CreatorSetter{
				Name:   method.Name(),
				Key:    bindgraph.TypeKey(typeRef(params.At(0).Type())),
				Fluent: fluent,
			})
		default:
			return nil, errors.Errorf("%s: unsupported builder method %s.%s: expected a one-argument setter or a build method",
				builder.position, builder.ref, method.Name())
		}
	}
	if creator.BuildMethod == "" {
		return nil, errors.Errorf("%s: builder %s has no method returning %s", builder.position, builder.ref, component)
	}
	return creator, nil
}
