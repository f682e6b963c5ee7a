package analysis

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/smmousavi8872/dagger/internal/bindgraph"
)

func TestAnalyseSimpleComponent(t *testing.T) {
	testCode := `
package main

//dagger:component modules=AppModule
type App interface {
	Greeting() string
}

//dagger:module
type AppModule struct{}

//dagger:provides
func (m *AppModule) ProvideGreeting() string {
	return "hello"
}
`
	a := analyseTestCode(t, testCode)
	assert.Equal(t, 1, len(a.Graphs))
	assert.Equal(t, 0, len(a.Missing))

	graph := a.Graphs[0]
	assert.Equal(t, bindgraph.TypeRef("test.App"), graph.Component().Type)
	assert.False(t, graph.IsFullBindingGraph())

	resolved, ok := graph.ResolvedBindingsFor(instanceRequest("string"))
	assert.True(t, ok)
	provides, ok := resolved.Bindings[0].(*bindgraph.ProvidesBinding)
	assert.True(t, ok)
	assert.Equal(t, bindgraph.TypeRef("test.AppModule"), provides.Module)
	assert.True(t, provides.RequiresModuleInstance())

	// The module has an instance-requiring binding, so it is a requirement.
	requirements := graph.ComponentRequirements()
	assert.True(t, requirements[bindgraph.ModuleRequirement("test.AppModule")])
}

func TestAnalyseStaticProvider(t *testing.T) {
	testCode := `
package main

//dagger:component modules=AppModule
type App interface {
	Greeting() string
}

//dagger:module
type AppModule struct{}

//dagger:provides static
func (m *AppModule) ProvideGreeting() string {
	return "hello"
}
`
	a := analyseTestCode(t, testCode)
	graph := a.Graphs[0]
	resolved, ok := graph.ResolvedBindingsFor(instanceRequest("string"))
	assert.True(t, ok)
	assert.False(t, resolved.Bindings[0].RequiresModuleInstance())
	assert.Equal(t, 0, len(graph.ComponentRequirements()))
}

func TestAnalyseProviderDependencies(t *testing.T) {
	testCode := `
package main

import "database/sql"

type Config struct {
	URL string
}

//dagger:component modules=DBModule
type App interface {
	DB() *sql.DB
}

//dagger:module
type DBModule struct{}

//dagger:provides static
func (m *DBModule) ProvideConfig() Config {
	return Config{}
}

//dagger:provides static
func (m *DBModule) ProvideDB(config Config) *sql.DB {
	return nil
}
`
	a := analyseTestCode(t, testCode)
	graph := a.Graphs[0]
	resolved, ok := graph.ResolvedBindingsFor(instanceRequest("*database/sql.DB"))
	assert.True(t, ok)
	assert.Equal(t, []bindgraph.Key{{Type: "test.Config"}}, resolved.Bindings[0].Dependencies())

	// The dependency was pulled into the graph transitively.
	_, ok = graph.ResolvedBindingsFor(instanceRequest("test.Config"))
	assert.True(t, ok)
}

func TestAnalyseMissingBinding(t *testing.T) {
	testCode := `
package main

//dagger:component modules=AppModule
type App interface {
	Greeting() string
}

//dagger:module
type AppModule struct{}
`
	a := analyseTestCode(t, testCode)
	missing, ok := a.Missing["test.App"]
	assert.True(t, ok)
	assert.Equal(t, []bindgraph.Key{{Type: "string"}}, missing)
}

func TestAnalyseModuleIncludes(t *testing.T) {
	testCode := `
package main

//dagger:component modules=AppModule
type App interface {
	Greeting() string
}

//dagger:module includes=GreetingModule
type AppModule struct{}

//dagger:module
type GreetingModule struct{}

//dagger:provides static
func (m *GreetingModule) ProvideGreeting() string {
	return "hello"
}
`
	a := analyseTestCode(t, testCode)
	graph := a.Graphs[0]
	owned := graph.OwnedModuleTypes()
	assert.True(t, owned["test.AppModule"])
	assert.True(t, owned["test.GreetingModule"])
	_, ok := graph.ResolvedBindingsFor(instanceRequest("string"))
	assert.True(t, ok)
}

func TestAnalyseBinds(t *testing.T) {
	testCode := `
package main

type Greeter interface {
	Greet() string
}

type EnglishGreeter struct{}

func (g *EnglishGreeter) Greet() string { return "hello" }

//dagger:component modules=AppModule
type App interface {
	Greeter() Greeter
}

//dagger:module
type AppModule struct{}

//dagger:provides static
func (m *AppModule) ProvideEnglishGreeter() *EnglishGreeter {
	return &EnglishGreeter{}
}

//dagger:binds
func (m *AppModule) BindGreeter(impl *EnglishGreeter) Greeter {
	return impl
}
`
	a := analyseTestCode(t, testCode)
	graph := a.Graphs[0]
	resolved, ok := graph.ResolvedBindingsFor(instanceRequest("test.Greeter"))
	assert.True(t, ok)
	binds, ok := resolved.Bindings[0].(*bindgraph.BindsBinding)
	assert.True(t, ok)
	assert.Equal(t, bindgraph.Key{Type: "*test.EnglishGreeter"}, binds.Delegate)
	// The delegate resolves too.
	_, ok = graph.ResolvedBindingsFor(instanceRequest("*test.EnglishGreeter"))
	assert.True(t, ok)
}

func TestAnalyseInjectConstructor(t *testing.T) {
	testCode := `
package main

type Logger struct{}

//dagger:inject
func NewLogger() *Logger {
	return &Logger{}
}

//dagger:component
type App interface {
	Logger() *Logger
}
`
	a := analyseTestCode(t, testCode)
	graph := a.Graphs[0]
	resolved, ok := graph.ResolvedBindingsFor(instanceRequest("*test.Logger"))
	assert.True(t, ok)
	inject, ok := resolved.Bindings[0].(*bindgraph.InjectionBinding)
	assert.True(t, ok)
	assert.Equal(t, "test.NewLogger", inject.Function)
}

func TestAnalyseSubcomponentOwnedModules(t *testing.T) {
	testCode := `
package main

//dagger:component modules=ParentModule
type Parent interface {
	Greeting() string
	Session(module SessionModule) Session
}

//dagger:subcomponent modules=ParentModule,SessionModule
type Session interface {
	Page() int
}

//dagger:module
type ParentModule struct{}

//dagger:provides static
func (m *ParentModule) ProvideGreeting() string {
	return "hello"
}

//dagger:module
type SessionModule struct{}

//dagger:provides
func (m *SessionModule) ProvidePage(greeting string) int {
	return len(greeting)
}
`
	a := analyseTestCode(t, testCode)
	assert.Equal(t, 1, len(a.Graphs))
	graph := a.Graphs[0]
	assert.Equal(t, 1, len(graph.Subgraphs()))
	subgraph := graph.Subgraphs()[0]

	// The parent owns ParentModule, so the subcomponent owns only
	// SessionModule even though it installs both.
	owned := subgraph.OwnedModuleTypes()
	assert.True(t, owned["test.SessionModule"])
	assert.False(t, owned["test.ParentModule"])

	factory := subgraph.FactoryMethod()
	assert.NotZero(t, factory)
	assert.Equal(t, "Session", factory.Name)
	parameters, err := subgraph.FactoryMethodParameters()
	assert.NoError(t, err)
	assert.Equal(t, 1, len(parameters))
	assert.Equal(t, bindgraph.TypeRef("test.SessionModule"), parameters[0].Module)

	// The subcomponent's page provider needs a SessionModule instance.
	requirements := subgraph.ComponentRequirements()
	assert.True(t, requirements[bindgraph.ModuleRequirement("test.SessionModule")])
}

func TestAnalyseSubcomponentViaModule(t *testing.T) {
	testCode := `
package main

//dagger:component modules=AppModule
type App interface {
	Greeting() string
}

//dagger:subcomponent modules=SessionModule
type Session interface {
	Page() int
}

//dagger:module subcomponents=Session
type AppModule struct{}

//dagger:provides static
func (m *AppModule) ProvideGreeting() string {
	return "hello"
}

//dagger:module
type SessionModule struct{}

//dagger:provides static
func (m *SessionModule) ProvidePage() int {
	return 0
}
`
	a := analyseTestCode(t, testCode)
	graph := a.Graphs[0]
	assert.Equal(t, 1, len(graph.Subgraphs()))
	subgraph := graph.Subgraphs()[0]
	assert.Equal(t, bindgraph.TypeRef("test.Session"), subgraph.Component().Type)
	// Installed through a module, not a factory method.
	assert.Zero(t, subgraph.FactoryMethod())
}

func TestAnalysePossiblyNecessaryRequirements(t *testing.T) {
	testCode := `
package main

//dagger:component modules=AppModule
type App interface {
	Session() Session
}

//dagger:subcomponent modules=SessionModule
type Session interface {
	Page() int
}

//dagger:module
type AppModule struct{}

//dagger:module
type SessionModule struct{}

//dagger:provides static
func (m *SessionModule) ProvidePage() int {
	return 0
}

//dagger:provides
func (m *SessionModule) ProvideUnused() string {
	return ""
}
`
	a := analyseTestCode(t, testCode)
	subgraph := a.Graphs[0].Subgraphs()[0]

	// ProvideUnused is unreachable, so the module is not a component
	// requirement, but a parent could still demand it.
	moduleRequirement := bindgraph.ModuleRequirement("test.SessionModule")
	assert.False(t, subgraph.ComponentRequirements()[moduleRequirement])
	possible, err := subgraph.PossiblyNecessaryRequirements()
	assert.NoError(t, err)
	assert.True(t, possible[moduleRequirement])

	_, err = a.Graphs[0].PossiblyNecessaryRequirements()
	assert.Error(t, err)
}

func TestAnalyseBuilderBoundInstances(t *testing.T) {
	testCode := `
package main

type Config struct {
	URL string
}

//dagger:component
type App interface {
	Config() Config
}

//dagger:builder for=App
type AppBuilder interface {
	Config(config Config) AppBuilder
	Build() App
}
`
	a := analyseTestCode(t, testCode)
	graph := a.Graphs[0]
	resolved, ok := graph.ResolvedBindingsFor(instanceRequest("test.Config"))
	assert.True(t, ok)
	bound, ok := resolved.Bindings[0].(*bindgraph.BoundInstanceBinding)
	assert.True(t, ok)
	assert.Equal(t, "Config", bound.Setter)

	requirement := bindgraph.BoundInstanceRequirement(bindgraph.Key{Type: "test.Config"})
	assert.True(t, graph.ComponentRequirements()[requirement])
}

func TestAnalyseComponentDependencies(t *testing.T) {
	testCode := `
package main

//dagger:component modules=CoreModule
type Core interface {
	Greeting() string
}

//dagger:component deps=Core
type App interface {
	Shout() string
}

//dagger:module
type CoreModule struct{}

//dagger:provides static
func (m *CoreModule) ProvideGreeting() string {
	return "hello"
}
`
	a := analyseTestCode(t, testCode)
	assert.Equal(t, 2, len(a.Graphs))

	var app *bindgraph.BindingGraph
	for _, graph := range a.Graphs {
		if graph.Component().Type == "test.App" {
			app = graph
		}
	}
	assert.NotZero(t, app)

	resolved, ok := app.ResolvedBindingsFor(instanceRequest("string"))
	assert.True(t, ok)
	dependency, ok := resolved.Bindings[0].(*bindgraph.DependencyBinding)
	assert.True(t, ok)
	assert.Equal(t, bindgraph.TypeRef("test.Core"), dependency.Dependency)
	assert.Equal(t, "Greeting", dependency.Method)
	assert.True(t, app.ComponentRequirements()[bindgraph.DependencyRequirement("test.Core")])
}

func TestAnalyseMembersInjection(t *testing.T) {
	testCode := `
package main

type Logger struct{}

//dagger:inject
func NewLogger() *Logger {
	return &Logger{}
}

//dagger:members
type Page struct {
	Log   *Logger ` + "`dagger:\"inject\"`" + `
	Title string
}

//dagger:component
type App interface {
	InjectPage(page *Page)
}
`
	a := analyseTestCode(t, testCode)
	graph := a.Graphs[0]
	request := bindgraph.BindingRequest{
		Key:  bindgraph.Key{Type: "test.Page"},
		Kind: bindgraph.MembersInjectionRequest,
	}
	resolved, ok := graph.ResolvedBindingsFor(request)
	assert.True(t, ok)
	members, ok := resolved.Bindings[0].(*bindgraph.MembersInjectionBinding)
	assert.True(t, ok)
	assert.Equal(t, []bindgraph.MemberField{{Name: "Log", Key: bindgraph.Key{Type: "*test.Logger"}}}, members.Fields)

	// Field dependencies resolve in the contribution namespace.
	_, ok = graph.ResolvedBindingsFor(instanceRequest("*test.Logger"))
	assert.True(t, ok)
	// The members-injection key does not satisfy instance requests.
	_, ok = graph.ResolvedBindingsFor(instanceRequest("test.Page"))
	assert.False(t, ok)
}

func TestAnalyseQualifiers(t *testing.T) {
	testCode := `
package main

//dagger:component modules=AppModule
type App interface {
	Greeting() string
}

//dagger:module
type AppModule struct{}

//dagger:provides static qualifier=greeting
func (m *AppModule) ProvideGreeting() string {
	return "hello"
}
`
	a := analyseTestCode(t, testCode)
	graph := a.Graphs[0]
	// The unqualified entry point does not match the qualified binding.
	missing, ok := a.Missing["test.App"]
	assert.True(t, ok)
	assert.Equal(t, 1, len(missing))
	_, ok = graph.ResolvedBindingsFor(instanceRequest("string"))
	assert.False(t, ok)
}

func TestAnalyseFullBindingGraph(t *testing.T) {
	testCode := `
package main

//dagger:component modules=AppModule
type App interface {
	Greeting() string
}

//dagger:module
type AppModule struct{}

//dagger:provides static
func (m *AppModule) ProvideGreeting() string {
	return "hello"
}

//dagger:provides static
func (m *AppModule) ProvideUnused() int {
	return 0
}
`
	a, err := analyseTestCodeWithError(t, testCode, WithFullBindingGraph(true))
	assert.NoError(t, err)
	graph := a.Graphs[0]
	assert.True(t, graph.IsFullBindingGraph())
	_, ok := graph.ResolvedBindingsFor(instanceRequest("int"))
	assert.True(t, ok)

	a = analyseTestCode(t, testCode)
	_, ok = a.Graphs[0].ResolvedBindingsFor(instanceRequest("int"))
	assert.False(t, ok)
}

func TestAnalyseDuplicateSiblingSubcomponents(t *testing.T) {
	testCode := `
package main

//dagger:component modules=AModule,BModule
type App interface {
	Greeting() string
}

//dagger:subcomponent
type Session interface {
	Page() int
}

//dagger:module subcomponents=Session
type AModule struct{}

//dagger:provides static
func (m *AModule) ProvideGreeting() string {
	return "hello"
}

//dagger:module subcomponents=Session
type BModule struct{}
`
	// Both modules install Session, but installation is deduplicated, so
	// the graph builds with a single subgraph.
	a := analyseTestCode(t, testCode)
	assert.Equal(t, 1, len(a.Graphs[0].Subgraphs()))
}

func TestAnalyseUnknownModule(t *testing.T) {
	testCode := `
package main

//dagger:component modules=NoSuchModule
type App interface {
	Greeting() string
}
`
	_, err := analyseTestCodeWithError(t, testCode)
	assert.Error(t, err)
}

func TestAnalyseInvalidComponentMethod(t *testing.T) {
	testCode := `
package main

//dagger:component
type App interface {
	Greeting(prefix string) string
}
`
	_, err := analyseTestCodeWithError(t, testCode)
	assert.Error(t, err)
}

func instanceRequest(ref string) bindgraph.BindingRequest {
	return bindgraph.BindingRequest{
		Key:  bindgraph.Key{Type: bindgraph.TypeRef(ref)},
		Kind: bindgraph.InstanceRequest,
	}
}

func analyseTestCode(t *testing.T, code string, options ...Option) *Analysis {
	t.Helper()
	a, err := analyseTestCodeWithError(t, code, options...)
	assert.NoError(t, err)
	return a
}

func analyseTestCodeWithError(t *testing.T, code string, options ...Option) (*Analysis, error) {
	t.Helper()
	return analyseCodeString(t.Context(), t.TempDir(), code, options...)
}

func analyseCodeString(ctx context.Context, tmpDir, code string, options ...Option) (*Analysis, error) {
	goMod := `module test
go 1.24
`
	err := os.WriteFile(filepath.Join(tmpDir, "go.mod"), []byte(goMod), 0600)
	if err != nil {
		return nil, err
	}
	err = os.WriteFile(filepath.Join(tmpDir, "main.go"), []byte(code), 0600) //nolint
	if err != nil {
		return nil, err
	}

	oldDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	err = os.Chdir(tmpDir)
	if err != nil {
		return nil, err
	}
	defer os.Chdir(oldDir) //nolint:errcheck

	return Analyse(ctx, ".", WithOptions(options...))
}
