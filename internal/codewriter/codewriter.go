// Package codewriter incrementally builds formatted Go source.
package codewriter

import (
	"fmt"
	"slices"
	"strings"
)

// Writer accumulates the body of a generated Go file and the imports it
// needs, and renders them as a complete file.
type Writer struct {
	pkg     string
	imports map[string]bool
	body    strings.Builder
	indent  string
}

// New creates a Writer for a file in package pkg.
func New(pkg string) *Writer {
	return &Writer{pkg: pkg, imports: map[string]bool{}}
}

// Import records an import for the file header. The spec may be a bare
// path or an aliased `alias "path"` pair.
func (w *Writer) Import(spec string) {
	if spec != "" {
		w.imports[spec] = true
	}
}

// L writes a formatted line at the current indent.
func (w *Writer) L(format string, args ...any) {
	w.body.WriteString(w.indent)
	fmt.Fprintf(&w.body, format, args...)
	w.body.WriteString("\n")
}

// W writes formatted text without indentation or a trailing newline.
func (w *Writer) W(format string, args ...any) {
	fmt.Fprintf(&w.body, format, args...)
}

// Indent writes the current indent, for use before W.
func (w *Writer) Indent() {
	w.body.WriteString(w.indent)
}

// In runs fn with the indent level increased by one.
func (w *Writer) In(fn func(w *Writer)) {
	w.indent += "\t"
	fn(w)
	w.indent = w.indent[:len(w.indent)-1]
}

// Bytes renders the complete file: package clause, sorted imports, body.
func (w *Writer) Bytes() []byte {
	var out strings.Builder
	fmt.Fprintf(&out, "package %s\n\n", w.pkg)
	if len(w.imports) > 0 {
		imports := make([]string, 0, len(w.imports))
		for spec := range w.imports {
			imports = append(imports, spec)
		}
		slices.Sort(imports)
		out.WriteString("import (\n")
		for _, spec := range imports {
			if strings.Contains(spec, `"`) {
				fmt.Fprintf(&out, "\t%s\n", spec)
			} else {
				fmt.Fprintf(&out, "\t%q\n", spec)
			}
		}
		out.WriteString(")\n\n")
	}
	out.WriteString(w.body.String())
	return []byte(out.String())
}

func (w *Writer) String() string { return string(w.Bytes()) }
