package bindgraph

import "fmt"

// RequirementKind discriminates the kinds of external input a component
// constructor can need.
type RequirementKind int

const (
	// ModuleKind is an instance of a module with instance-requiring bindings.
	ModuleKind RequirementKind = iota
	// DependencyKind is an instance of a declared component dependency.
	DependencyKind
	// BoundInstanceKind is a value supplied through the component's builder.
	BoundInstanceKind
)

func (k RequirementKind) String() string {
	switch k {
	case ModuleKind:
		return "module"
	case DependencyKind:
		return "dependency"
	case BoundInstanceKind:
		return "bound instance"
	}
	return fmt.Sprintf("RequirementKind(%d)", int(k))
}

// ComponentRequirement is one external input a component needs to be
// instantiated. Requirements compare by kind and underlying type, so they
// can be collected in a map-backed set.
type ComponentRequirement struct {
	Kind      RequirementKind
	Type      TypeRef
	Qualifier string // set only for bound instances
}

// ModuleRequirement returns the requirement for an instance of a module type.
func ModuleRequirement(module TypeRef) ComponentRequirement {
	return ComponentRequirement{Kind: ModuleKind, Type: module}
}

// DependencyRequirement returns the requirement for a declared component
// dependency.
func DependencyRequirement(dependency TypeRef) ComponentRequirement {
	return ComponentRequirement{Kind: DependencyKind, Type: dependency}
}

// BoundInstanceRequirement returns the requirement for a builder-supplied
// value.
func BoundInstanceRequirement(key Key) ComponentRequirement {
	return ComponentRequirement{Kind: BoundInstanceKind, Type: key.Type, Qualifier: key.Qualifier}
}

func (r ComponentRequirement) String() string {
	if r.Qualifier != "" {
		return fmt.Sprintf("%s %s[%s]", r.Kind, r.Type, r.Qualifier)
	}
	return fmt.Sprintf("%s %s", r.Kind, r.Type)
}
