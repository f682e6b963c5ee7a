// Package analysis statically loads Go packages, collects //dagger:...
// directives, and assembles the resolved binding graph for each declared
// root component, bottom-up (children before parents).
package analysis

import (
	"context"
	"go/ast"
	"go/token"
	"go/types"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/alecthomas/errors"
	"golang.org/x/mod/modfile"
	"golang.org/x/tools/go/packages"

	"github.com/smmousavi8872/dagger/internal/bindgraph"
	"github.com/smmousavi8872/dagger/internal/directiveparser"
)

type analysisOptions struct {
	// Additional package patterns to search for directives.
	patterns []string
	// Build tags passed to the loader.
	tags []string
	// Build full binding graphs (every installed binding, for validation)
	// instead of entry-point-reachable graphs.
	full   bool
	logger *slog.Logger
}

type Option func(*analysisOptions) error

// WithPatterns adds additional package patterns to search for directives.
func WithPatterns(patterns ...string) Option {
	return func(o *analysisOptions) error {
		o.patterns = append(o.patterns, patterns...)
		return nil
	}
}

// WithTags sets build tags to enable during type analysis.
func WithTags(tags ...string) Option {
	return func(o *analysisOptions) error {
		o.tags = append(o.tags, tags...)
		return nil
	}
}

// WithFullBindingGraph includes every installed binding in each graph,
// whether or not it is reachable from an entry point.
func WithFullBindingGraph(enable bool) Option {
	return func(o *analysisOptions) error {
		o.full = enable
		return nil
	}
}

// WithLogger enables debug logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *analysisOptions) error {
		o.logger = logger
		return nil
	}
}

func WithOptions(options ...Option) Option {
	return func(o *analysisOptions) error {
		for _, opt := range options {
			err := opt(o)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}
}

// Analysis is the result of analysing a destination package: one resolved
// binding graph per root component, plus the keys that could not be
// resolved.
type Analysis struct {
	// Dest is the package generated code will be written to.
	Dest *types.Package
	// Graphs holds the resolved graph for each root component, ordered by
	// component type reference.
	Graphs []*bindgraph.BindingGraph
	// Missing maps a component type to the keys requested in its graph for
	// which no binding exists.
	Missing map[bindgraph.TypeRef][]bindgraph.Key
}

// Analyse loads the destination package and any extra patterns, collects
// //dagger:... directives, and builds the resolved binding graph for every
// root component found.
func Analyse(ctx context.Context, dest string, options ...Option) (*Analysis, error) {
	opts := &analysisOptions{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range options {
		if err := opt(opts); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	destImport, err := importPathForDir(dest)
	if err != nil {
		return nil, errors.Errorf("failed to determine import path for destination directory %s: %w", dest, err)
	}

	fset := token.NewFileSet()
	cfg := &packages.Config{
		Context: ctx,
		Fset:    fset,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedImports | packages.NeedTypes | packages.NeedSyntax |
			packages.NeedTypesInfo,
	}
	if len(opts.tags) > 0 {
		cfg.BuildFlags = []string{"-tags=" + strings.Join(opts.tags, ",")}
	}
	pkgs, err := packages.Load(cfg, append(opts.patterns, dest)...)
	if err != nil {
		return nil, errors.Errorf("failed to load packages: %w", err)
	}

	decls := newDeclarations(fset, opts.logger)
	var destPkg *types.Package
	for _, pkg := range pkgs {
		if pkg.PkgPath == destImport {
			destPkg = pkg.Types
		}
		if err := decls.scanTypes(pkg); err != nil {
			return nil, err
		}
	}
	// Provider and constructor functions can only be attached once every
	// module declaration has been seen, so functions are scanned second.
	for _, pkg := range pkgs {
		if err := decls.scanFunctions(pkg); err != nil {
			return nil, err
		}
	}
	if destPkg == nil {
		return nil, errors.Errorf("destination package %q not found", destImport)
	}

	if err := decls.link(); err != nil {
		return nil, err
	}

	r := &resolver{
		decls:   decls,
		logger:  opts.logger,
		full:    opts.full,
		missing: map[bindgraph.TypeRef][]bindgraph.Key{},
	}
	graphs, err := r.resolveRoots()
	if err != nil {
		return nil, err
	}
	if len(graphs) == 0 {
		return nil, errors.Errorf("no //dagger:component declarations found")
	}

	return &Analysis{Dest: destPkg, Graphs: graphs, Missing: r.missing}, nil
}

// Parse a directive from a comment. Will return (nil, nil) if a directive
// is not found.
func parseDirective(doc *ast.CommentGroup) (directiveparser.Directive, error) {
	if doc == nil {
		return nil, nil
	}
	for _, comment := range doc.List {
		if strings.HasPrefix(comment.Text, "//dagger:") {
			return directiveparser.Parse(comment.Text[2:])
		}
	}
	return nil, nil
}

func importPathForDir(dir string) (string, error) {
	if !modfile.IsDirectoryPath(dir) {
		return dir, nil
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Errorf("failed to get absolute path for directory %s: %w", dir, err)
	}
	dir = root
	// Search up directories for go.mod file
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			break
		}
		if root == "/" {
			return "", errors.Errorf("couldn't find a go.mod file above %s", dir)
		}
		root = filepath.Dir(root)
	}
	dir, err = filepath.Rel(root, dir)
	if err != nil {
		return "", errors.Errorf("failed to get relative path for directory %s: %w", dir, err)
	}
	goModPath := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(goModPath) //nolint
	if err != nil {
		return "", errors.Errorf("failed to read go.mod file at %s: %w", goModPath, err)
	}
	mod, err := modfile.Parse(goModPath, data, nil)
	if err != nil {
		return "", errors.Errorf("failed to parse go.mod file at %s: %w", goModPath, err)
	}
	return path.Join(mod.Module.Mod.Path, dir), nil
}
