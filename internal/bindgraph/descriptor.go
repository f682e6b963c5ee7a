package bindgraph

import "go/token"

// ModuleDescriptor is a declared module: its type, the bindings it
// contributes, the modules it includes and the subcomponents it installs.
type ModuleDescriptor struct {
	Type          TypeRef
	Bindings      []Binding
	Includes      []TypeRef
	Subcomponents []TypeRef
	Position      token.Position
}

// EntryPoint is a provision or members-injection method declared on a
// component interface.
type EntryPoint struct {
	Name    string
	Request BindingRequest
}

// FactoryParameter is one parameter of a subcomponent factory method,
// always a module instance.
type FactoryParameter struct {
	Name   string
	Module TypeRef
}

// Requirement returns the module requirement the parameter corresponds to.
func (p FactoryParameter) Requirement() ComponentRequirement {
	return ModuleRequirement(p.Module)
}

// FactoryMethod is a method on a parent component interface that creates a
// subcomponent. Parameters are in declaration order, one per module
// argument.
type FactoryMethod struct {
	Name         string
	Subcomponent TypeRef
	Parameters   []FactoryParameter
}

// CreatorSetter is one setter method on a builder, declaring one bound
// instance.
type CreatorSetter struct {
	Name string
	Key  Key
	// Fluent is true when the setter returns the builder for chaining.
	Fluent bool
}

// CreatorDescriptor is a declared builder for a component.
type CreatorDescriptor struct {
	Type        TypeRef
	Setters     []CreatorSetter
	BuildMethod string
	Position    token.Position
}

// BoundInstances returns the bound-instance keys the builder declares, in
// declaration order.
func (c *CreatorDescriptor) BoundInstances() []Key {
	out := make([]Key, 0, len(c.Setters))
	for _, setter := range c.Setters {
		out = append(out, setter.Key)
	}
	return out
}

// BoundInstanceRequirements returns one requirement per declared bound
// instance, in declaration order.
func (c *CreatorDescriptor) BoundInstanceRequirements() []ComponentRequirement {
	out := make([]ComponentRequirement, 0, len(c.Setters))
	for _, setter := range c.Setters {
		out = append(out, BoundInstanceRequirement(setter.Key))
	}
	return out
}

// ComponentDescriptor is the declared shape of one component or
// subcomponent.
type ComponentDescriptor struct {
	Type TypeRef
	// Subcomponent is true when the component is created by a parent
	// component rather than standalone.
	Subcomponent bool
	// Modules is the transitively-closed set of modules installed on the
	// component, in declaration order.
	Modules []*ModuleDescriptor
	// Dependencies are the declared component dependency types.
	Dependencies []TypeRef
	// Creator is the component's builder, if one is declared.
	Creator *CreatorDescriptor
	// EntryPoints are the provision and members-injection methods declared
	// on the component interface.
	EntryPoints []EntryPoint
	// ChildFactories are the subcomponent factory methods declared on the
	// component interface.
	ChildFactories []*FactoryMethod
	Position       token.Position
}

// ModuleTypes returns the types of the component's transitive modules, in
// declaration order.
func (c *ComponentDescriptor) ModuleTypes() []TypeRef {
	out := make([]TypeRef, 0, len(c.Modules))
	for _, module := range c.Modules {
		out = append(out, module.Type)
	}
	return out
}

// FactoryFor returns the factory method declared on this component for the
// given subcomponent type, or nil.
func (c *ComponentDescriptor) FactoryFor(subcomponent TypeRef) *FactoryMethod {
	for _, factory := range c.ChildFactories {
		if factory.Subcomponent == subcomponent {
			return factory
		}
	}
	return nil
}
