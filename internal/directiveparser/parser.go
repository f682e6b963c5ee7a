// Package directiveparser implements a parser for dagger compiler directives.
package directiveparser

import (
	"strings"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	annotationParser = participle.MustBuild[annotation](
		participle.Lexer(directiveLexer),
		participle.Union[Directive](
			&DirectiveComponent{}, &DirectiveSubcomponent{}, &DirectiveModule{},
			&DirectiveProvides{}, &DirectiveBinds{}, &DirectiveBuilder{},
			&DirectiveInject{}, &DirectiveMembers{},
		),
		participle.Elide("Whitespace"),
		participle.Unquote("String"),
	)
	directiveLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Reference", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*(?:[./][a-zA-Z0-9_]+)*`},
		{Name: "String", Pattern: `"(\\.|[^"])*"`},
		{Name: "Punct", Pattern: `[=,:]`},
		{Name: "Whitespace", Pattern: `\s+`},
	})
)

type annotation struct {
	Directive Directive `parser:"'dagger' ':' @@"`
}

type Directive interface {
	directive()
	// Validate the directive.
	Validate() error
	String() string
}

// DirectiveComponent declares a root component interface.
//
//	//dagger:component modules=DBModule,CacheModule deps=NetworkComponent
type DirectiveComponent struct {
	Modules []string `parser:"'component' (  'modules' '=' @Reference (',' @Reference)*"`
	Deps    []string `parser:"             | 'deps' '=' @Reference (',' @Reference)*)*"`
}

func (d *DirectiveComponent) directive() {}
func (d *DirectiveComponent) String() string {
	out := "dagger:component"
	if len(d.Modules) > 0 {
		out += " modules=" + strings.Join(d.Modules, ",")
	}
	if len(d.Deps) > 0 {
		out += " deps=" + strings.Join(d.Deps, ",")
	}
	return out
}
func (d *DirectiveComponent) Validate() error { return nil }

// DirectiveSubcomponent declares a subcomponent interface, created by a
// parent component via a factory method or builder.
//
//	//dagger:subcomponent modules=RequestModule
type DirectiveSubcomponent struct {
	Modules []string `parser:"'subcomponent' ('modules' '=' @Reference (',' @Reference)*)?"`
}

func (d *DirectiveSubcomponent) directive() {}
func (d *DirectiveSubcomponent) String() string {
	out := "dagger:subcomponent"
	if len(d.Modules) > 0 {
		out += " modules=" + strings.Join(d.Modules, ",")
	}
	return out
}
func (d *DirectiveSubcomponent) Validate() error { return nil }

// DirectiveModule declares a module struct contributing bindings.
//
//	//dagger:module includes=SharedModule subcomponents=RequestComponent
type DirectiveModule struct {
	Includes      []string `parser:"'module' (  'includes' '=' @Reference (',' @Reference)*"`
	Subcomponents []string `parser:"          | 'subcomponents' '=' @Reference (',' @Reference)*)*"`
}

func (d *DirectiveModule) directive() {}
func (d *DirectiveModule) String() string {
	out := "dagger:module"
	if len(d.Includes) > 0 {
		out += " includes=" + strings.Join(d.Includes, ",")
	}
	if len(d.Subcomponents) > 0 {
		out += " subcomponents=" + strings.Join(d.Subcomponents, ",")
	}
	return out
}
func (d *DirectiveModule) Validate() error { return nil }

// DirectiveProvides declares a provider method on a module. Static
// providers do not need a module instance.
//
//	//dagger:provides static qualifier=primary
type DirectiveProvides struct {
	Static    bool   `parser:"'provides' (  @'static'"`
	Qualifier string `parser:"            | 'qualifier' '=' @(Reference | String))*"`
}

func (d *DirectiveProvides) directive() {}
func (d *DirectiveProvides) String() string {
	out := "dagger:provides"
	if d.Static {
		out += " static"
	}
	if d.Qualifier != "" {
		out += " qualifier=" + d.Qualifier
	}
	return out
}
func (d *DirectiveProvides) Validate() error { return nil }

// DirectiveBinds declares an interface binding on a module: the method's
// single parameter type is bound to its result type.
//
//	//dagger:binds qualifier=fallback
type DirectiveBinds struct {
	Qualifier string `parser:"'binds' ('qualifier' '=' @(Reference | String))?"`
}

func (d *DirectiveBinds) directive() {}
func (d *DirectiveBinds) String() string {
	out := "dagger:binds"
	if d.Qualifier != "" {
		out += " qualifier=" + d.Qualifier
	}
	return out
}
func (d *DirectiveBinds) Validate() error { return nil }

// DirectiveBuilder declares a builder interface for a component. Setter
// methods with one parameter declare bound instances; the no-argument
// method returning the component builds it.
//
//	//dagger:builder for=AppComponent
type DirectiveBuilder struct {
	For string `parser:"'builder' 'for' '=' @Reference"`
}

func (d *DirectiveBuilder) directive()     {}
func (d *DirectiveBuilder) String() string { return "dagger:builder for=" + d.For }
func (d *DirectiveBuilder) Validate() error {
	if d.For == "" {
		return errors.Errorf("builder directive requires for=COMPONENT")
	}
	return nil
}

// DirectiveInject declares an injectable constructor function.
//
//	//dagger:inject
type DirectiveInject struct {
	Qualifier string `parser:"'inject' ('qualifier' '=' @(Reference | String))?"`
}

func (d *DirectiveInject) directive() {}
func (d *DirectiveInject) String() string {
	out := "dagger:inject"
	if d.Qualifier != "" {
		out += " qualifier=" + d.Qualifier
	}
	return out
}
func (d *DirectiveInject) Validate() error { return nil }

// DirectiveMembers registers a struct for members injection. Fields tagged
// `dagger:"inject"` are populated from the graph.
//
//	//dagger:members
type DirectiveMembers struct {
	Marker bool `parser:"@'members'"`
}

func (d *DirectiveMembers) directive()      {}
func (d *DirectiveMembers) String() string  { return "dagger:members" }
func (d *DirectiveMembers) Validate() error { return nil }

// Parse a dagger compiler directive.
func Parse(directive string) (Directive, error) {
	if directive == "" {
		return nil, errors.Errorf("empty directive")
	}

	result, err := annotationParser.ParseString("", directive)
	if err != nil {
		return nil, errors.Errorf("failed to parse directive: %w", err)
	}
	if err := result.Directive.Validate(); err != nil {
		return nil, errors.WithStack(err)
	}

	return result.Directive, nil
}
