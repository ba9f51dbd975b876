// Package quickjs provides the QuickJS-on-WASM guest runtime. Scripts are
// plain JavaScript; the embedded bootstrap exposes exactly three primitives
// inside the sandbox (host.<ns>.<method>(args), the context object, and
// progress(text)) and speaks the frame protocol over stderr/stdin.
package quickjs

import (
	_ "embed"

	quickjswasi "github.com/paralin/go-quickjs-wasi"
)

//go:embed stdlib.js
var stdlib string

// QuickJS implements the engine.Runtime interface.
type QuickJS struct{}

// New returns the QuickJS runtime adapter.
func New() *QuickJS {
	return &QuickJS{}
}

// Name returns "quickjs".
func (q *QuickJS) Name() string {
	return "quickjs"
}

// Module returns the QuickJS WASM binary.
func (q *QuickJS) Module() []byte {
	return quickjswasi.QuickJSWASM
}

// WrapScript seeds the session snapshot, prepends the bootstrap, and wraps
// the user script in the async entry point. A syntax error anywhere in the
// script surfaces as a guest-level failure, outside the entry point.
func (q *QuickJS) WrapScript(script string, seed []byte) string {
	if len(seed) == 0 {
		seed = []byte("{}")
	}
	return "globalThis.__seed = " + string(seed) + ";\n" +
		stdlib + "\n" +
		"__main(async () => {\n" + script + "\n});\n"
}

// Args returns the command-line arguments for the QuickJS interpreter.
func (q *QuickJS) Args(wrapped string) []string {
	return []string{"qjs", "--std", "-e", wrapped}
}
