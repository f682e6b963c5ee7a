package bindgraph

import "fmt"

// TypeRef is the canonical reference to a Go type, as produced by
// types.TypeString with no qualifier.
//
// eg. *github.com/example/app.Database
type TypeRef string

// Key identifies a requested value: a type plus an optional qualifier.
//
// Two providers of the same type with different qualifiers satisfy different
// keys.
type Key struct {
	Type      TypeRef
	Qualifier string
}

// TypeKey returns the unqualified key for a type.
func TypeKey(ref TypeRef) Key { return Key{Type: ref} }

// QualifiedKey returns the key for a type with a qualifier.
func QualifiedKey(ref TypeRef, qualifier string) Key {
	return Key{Type: ref, Qualifier: qualifier}
}

func (k Key) String() string {
	if k.Qualifier == "" {
		return string(k.Type)
	}
	return fmt.Sprintf("%s[%s]", k.Type, k.Qualifier)
}

// RequestKind describes how a key is requested.
type RequestKind int

const (
	// InstanceRequest requests a value of the key's type.
	InstanceRequest RequestKind = iota
	// ProviderRequest requests a function producing the key's type.
	ProviderRequest
	// LazyRequest requests a lazily-initialised value of the key's type.
	LazyRequest
	// MembersInjectionRequest requests field injection into an existing
	// value. Members-injection keys resolve in their own namespace, never
	// against contribution bindings.
	MembersInjectionRequest
)

func (k RequestKind) String() string {
	switch k {
	case InstanceRequest:
		return "instance"
	case ProviderRequest:
		return "provider"
	case LazyRequest:
		return "lazy"
	case MembersInjectionRequest:
		return "members-injection"
	}
	return fmt.Sprintf("RequestKind(%d)", int(k))
}

// BindingRequest is a request for the resolved bindings of a key.
type BindingRequest struct {
	Key  Key
	Kind RequestKind
}

// IsMembersInjection reports whether the request resolves against the
// members-injection namespace.
func (r BindingRequest) IsMembersInjection() bool {
	return r.Kind == MembersInjectionRequest
}
