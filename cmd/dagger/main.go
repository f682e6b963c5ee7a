package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	"github.com/kballard/go-shellquote"
	"github.com/lmittmann/tint"

	"github.com/smmousavi8872/dagger/internal/analysis"
	"github.com/smmousavi8872/dagger/internal/bindgraph"
	"github.com/smmousavi8872/dagger/internal/generator"
)

var cli struct {
	Version    kong.VersionFlag   `help:"Print the version and exit."`
	Chdir      kong.ChangeDirFlag `help:"Change to this directory before running." placeholder:"DIR" short:"C"`
	Debug      bool               `help:"Enable debug logging."`
	Tags       []string           `help:"Tags to enable during type analysis (will also be read from $GOFLAGS)." placeholder:"TAG"`
	OutputTags []string           `help:"Tags to add to generated code."`
	Full       bool               `help:"Build full binding graphs, including bindings unreachable from entry points." xor:"action"`
	List       bool               `help:"List each component hierarchy and its requirements." xor:"action"`
	Dest       string             `help:"Destination package directory for generated files." arg:"" type:"existingdir"`
	Patterns   []string           `help:"Additional package patterns to scan." arg:"" optional:""`
}

func main() {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		version = info.Main.Version
	}
	kctx := kong.Parse(&cli,
		kong.Vars{"version": version},
		kong.Configuration(kongtoml.Loader, ".dagger.toml", "dagger.toml"),
	)

	extraOptions := []analysis.Option{}
	if cli.Debug {
		logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: "15:04:05",
		}))
		extraOptions = append(extraOptions, analysis.WithLogger(logger))
	}

	// Combine explicit tags and tags from GOFLAGS
	tags := append(cli.Tags, parseGoTags()...)

	a, err := analysis.Analyse(context.Background(), cli.Dest,
		analysis.WithPatterns(cli.Patterns...),
		analysis.WithTags(tags...),
		analysis.WithFullBindingGraph(cli.Full),
		analysis.WithOptions(extraOptions...),
	)
	kctx.FatalIfErrorf(err)

	if len(a.Missing) > 0 {
		for component, missing := range a.Missing {
			missingStr := []string{}
			for _, key := range missing {
				missingStr = append(missingStr, key.String())
			}
			kctx.Errorf("%s is missing a binding for %s", component, strings.Join(missingStr, ", "))
		}
		kctx.Exit(1)
	}

	if cli.List {
		for _, graph := range a.Graphs {
			listGraph(graph, "")
		}
		kctx.Exit(0)
	}
	if cli.Full {
		// Full graphs are for validation only; nothing to generate.
		kctx.Exit(0)
	}

	w, err := os.Create(filepath.Join(cli.Dest, "dagger.go"))
	kctx.FatalIfErrorf(err)
	err = generator.Generate(w, a, generator.WithTags(cli.OutputTags...))
	_ = w.Close()
	kctx.FatalIfErrorf(err)
}

func listGraph(graph *bindgraph.BindingGraph, indent string) {
	fmt.Printf("%s%s\n", indent, graph.Component().Type)
	requirements := make([]string, 0, len(graph.ComponentRequirements()))
	for requirement := range graph.ComponentRequirements() {
		requirements = append(requirements, requirement.String())
	}
	slices.Sort(requirements)
	for _, requirement := range requirements {
		fmt.Printf("%s  requires %s\n", indent, requirement)
	}
	for _, subgraph := range graph.Subgraphs() {
		listGraph(subgraph, indent+"  ")
	}
}

func parseGoTags() []string {
	goFlags := os.Getenv("GOFLAGS")
	words, err := shellquote.Split(goFlags)
	if err != nil {
		return nil
	}
	tags := []string{}
	for _, word := range words {
		if strings.HasPrefix(word, "-tags=") {
			tags = append(tags, strings.Split(word[6:], ",")...)
		} else if strings.HasPrefix(word, "--tags=") {
			tags = append(tags, strings.Split(word[7:], ",")...)
		}
	}
	return tags
}
