package codewriter

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestWriter(t *testing.T) {
	w := New("main")
	w.Import("fmt")
	w.Import(`impabc "database/sql"`)
	w.L("func main() {")
	w.In(func(w *Writer) {
		w.L(`fmt.Println(%q)`, "hello")
	})
	w.L("}")

	assert.Equal(t, `package main

import (
	"fmt"
	impabc "database/sql"
)

func main() {
	fmt.Println("hello")
}
`, w.String())
}

func TestWriterNoImports(t *testing.T) {
	w := New("main")
	w.L("var x = 1")
	assert.Equal(t, "package main\n\nvar x = 1\n", w.String())
}
