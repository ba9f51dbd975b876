// Package engine abstracts the isolated runtime a script executes in.
package engine

// Runtime describes a WASM-based guest runtime. The execution host compiles
// Module once, wraps the caller's script with the runtime's bootstrap, and
// starts one fresh instance per invocation.
type Runtime interface {
	// Name returns a unique identifier, used as the compilation cache key.
	Name() string

	// Module returns the WASM binary for the guest interpreter.
	Module() []byte

	// WrapScript embeds the user script and the session seed (a JSON object)
	// into a complete guest program: bootstrap, runtime surface, and the
	// async entry point that reports done or fatal over the message channel.
	WrapScript(script string, seed []byte) string

	// Args returns the command-line arguments for the guest interpreter.
	Args(wrapped string) []string
}
