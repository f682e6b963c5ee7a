package directiveparser

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		directive string
		want      Directive
		wantErr   bool
	}{
		{
			name:      "Empty",
			directive: "",
			wantErr:   true,
		},
		{
			name:      "Unknown",
			directive: "dagger:unknown",
			wantErr:   true,
		},
		{
			name:      "BareComponent",
			directive: "dagger:component",
			want:      &DirectiveComponent{},
		},
		{
			name:      "ComponentWithModulesAndDeps",
			directive: "dagger:component modules=DBModule,CacheModule deps=NetworkComponent",
			want: &DirectiveComponent{
				Modules: []string{"DBModule", "CacheModule"},
				Deps:    []string{"NetworkComponent"},
			},
		},
		{
			name:      "ComponentWithQualifiedReferences",
			directive: "dagger:component modules=github.com/example/app/db.Module",
			want: &DirectiveComponent{
				Modules: []string{"github.com/example/app/db.Module"},
			},
		},
		{
			name:      "Subcomponent",
			directive: "dagger:subcomponent modules=RequestModule",
			want: &DirectiveSubcomponent{
				Modules: []string{"RequestModule"},
			},
		},
		{
			name:      "BareSubcomponent",
			directive: "dagger:subcomponent",
			want:      &DirectiveSubcomponent{},
		},
		{
			name:      "Module",
			directive: "dagger:module includes=SharedModule subcomponents=RequestComponent,AdminComponent",
			want: &DirectiveModule{
				Includes:      []string{"SharedModule"},
				Subcomponents: []string{"RequestComponent", "AdminComponent"},
			},
		},
		{
			name:      "Provides",
			directive: "dagger:provides",
			want:      &DirectiveProvides{},
		},
		{
			name:      "StaticQualifiedProvides",
			directive: "dagger:provides static qualifier=primary",
			want: &DirectiveProvides{
				Static:    true,
				Qualifier: "primary",
			},
		},
		{
			name:      "Binds",
			directive: "dagger:binds qualifier=fallback",
			want: &DirectiveBinds{
				Qualifier: "fallback",
			},
		},
		{
			name:      "Builder",
			directive: "dagger:builder for=AppComponent",
			want: &DirectiveBuilder{
				For: "AppComponent",
			},
		},
		{
			name:      "BuilderWithoutComponent",
			directive: "dagger:builder",
			wantErr:   true,
		},
		{
			name:      "Inject",
			directive: "dagger:inject",
			want:      &DirectiveInject{},
		},
		{
			name:      "Members",
			directive: "dagger:members",
			want:      &DirectiveMembers{Marker: true},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			directive, err := Parse(test.directive)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, test.want, directive)
		})
	}
}

func TestDirectiveString(t *testing.T) {
	for _, text := range []string{
		"dagger:component modules=DBModule,CacheModule deps=NetworkComponent",
		"dagger:subcomponent modules=RequestModule",
		"dagger:module includes=SharedModule subcomponents=RequestComponent",
		"dagger:provides static qualifier=primary",
		"dagger:binds qualifier=fallback",
		"dagger:builder for=AppComponent",
		"dagger:inject",
		"dagger:members",
	} {
		directive, err := Parse(text)
		assert.NoError(t, err)
		assert.Equal(t, text, directive.String())
	}
}
