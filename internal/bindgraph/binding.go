package bindgraph

import (
	"go/token"
	"iter"
)

// Binding is a single resolved way to produce a value for a Key.
//
// The graph itself only cares whether a binding must be invoked on a module
// instance and which module contributes it; everything else on the concrete
// variants exists for resolution and code generation.
//
//sumtype:decl
type Binding interface {
	// BindingKey returns the key this binding satisfies.
	BindingKey() Key
	// RequiresModuleInstance reports whether producing the value needs an
	// instance of the contributing module.
	RequiresModuleInstance() bool
	// ContributingModule returns the type of the module contributing this
	// binding, or "" if the binding has no single owning module.
	ContributingModule() TypeRef
	// Dependencies returns the keys this binding requires to produce its
	// value.
	Dependencies() []Key
	// binding is a sealed interface
	binding()
}

// ProvidesBinding is a provider method declared on a module, or a free
// provider function installed by a module.
type ProvidesBinding struct {
	Key      Key
	Module   TypeRef
	Function string
	// Static is true when the provider does not need a module instance,
	// eg. a free function or a method on an empty module.
	Static   bool
	Requires []Key
	Position token.Position
}

func (b *ProvidesBinding) BindingKey() Key { return b.Key }
func (b *ProvidesBinding) RequiresModuleInstance() bool {
	return !b.Static && b.Module != ""
}
func (b *ProvidesBinding) ContributingModule() TypeRef { return b.Module }
func (b *ProvidesBinding) Dependencies() []Key         { return b.Requires }
func (*ProvidesBinding) binding()                      {}

// BindsBinding delegates an interface key to a concrete implementation key.
// It never needs a module instance.
type BindsBinding struct {
	Key      Key
	Module   TypeRef
	Delegate Key
	Position token.Position
}

func (b *BindsBinding) BindingKey() Key              { return b.Key }
func (b *BindsBinding) RequiresModuleInstance() bool { return false }
func (b *BindsBinding) ContributingModule() TypeRef  { return b.Module }
func (b *BindsBinding) Dependencies() []Key          { return []Key{b.Delegate} }
func (*BindsBinding) binding()                       {}

// InjectionBinding is an annotated constructor function. It has no
// contributing module.
type InjectionBinding struct {
	Key      Key
	Function string
	Requires []Key
	Position token.Position
}

func (b *InjectionBinding) BindingKey() Key              { return b.Key }
func (b *InjectionBinding) RequiresModuleInstance() bool { return false }
func (b *InjectionBinding) ContributingModule() TypeRef  { return "" }
func (b *InjectionBinding) Dependencies() []Key          { return b.Requires }
func (*InjectionBinding) binding()                       {}

// BoundInstanceBinding is a value supplied through a component builder
// rather than produced by the graph.
type BoundInstanceBinding struct {
	Key Key
	// Setter is the builder method that supplies the value.
	Setter   string
	Position token.Position
}

func (b *BoundInstanceBinding) BindingKey() Key              { return b.Key }
func (b *BoundInstanceBinding) RequiresModuleInstance() bool { return false }
func (b *BoundInstanceBinding) ContributingModule() TypeRef  { return "" }
func (b *BoundInstanceBinding) Dependencies() []Key          { return nil }
func (*BoundInstanceBinding) binding()                       {}

// DependencyBinding is a value exposed by a provision method on a declared
// component dependency.
type DependencyBinding struct {
	Key Key
	// Dependency is the component interface exposing the value.
	Dependency TypeRef
	// Method is the provision method on the dependency interface.
	Method   string
	Position token.Position
}

func (b *DependencyBinding) BindingKey() Key              { return b.Key }
func (b *DependencyBinding) RequiresModuleInstance() bool { return false }
func (b *DependencyBinding) ContributingModule() TypeRef  { return "" }
func (b *DependencyBinding) Dependencies() []Key          { return nil }
func (*DependencyBinding) binding()                       {}

// MemberField is one injected field of a members-injection target.
type MemberField struct {
	Name string
	Key  Key
}

// MembersInjectionBinding injects the tagged dependency fields of an
// existing value. Its key lives in the members-injection namespace.
type MembersInjectionBinding struct {
	Key      Key
	Fields   []MemberField
	Position token.Position
}

func (b *MembersInjectionBinding) BindingKey() Key              { return b.Key }
func (b *MembersInjectionBinding) RequiresModuleInstance() bool { return false }
func (b *MembersInjectionBinding) ContributingModule() TypeRef  { return "" }
func (b *MembersInjectionBinding) Dependencies() []Key {
	keys := make([]Key, 0, len(b.Fields))
	for _, field := range b.Fields {
		keys = append(keys, field.Key)
	}
	return keys
}
func (*MembersInjectionBinding) binding() {}

// ResolvedBindings is the set of bindings resolved for one key within one
// graph, plus the component that owns the resolution.
type ResolvedBindings struct {
	Key      Key
	Owner    TypeRef
	Bindings []Binding
}

// Contributions iterates over the bindings aggregated for the key.
func (r *ResolvedBindings) Contributions() iter.Seq[Binding] {
	return func(yield func(Binding) bool) {
		for _, binding := range r.Bindings {
			if !yield(binding) {
				return
			}
		}
	}
}
