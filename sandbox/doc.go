// Package sandbox executes untrusted scripts in an isolated WASM guest
// against a capability-limited host surface.
//
// # Overview
//
// A [Host] owns the WASM runtime and compiled-module cache. Each call to
// [Host.Execute] starts one fresh guest, seeded with a session snapshot, and
// settles exactly once: on script completion, an uncaught script error, a
// guest-level failure, or the timeout, whichever fires first. All failure
// paths are encoded in the returned [Result]; Execute never returns a Go
// error.
//
// # Basic Usage
//
//	host, _ := sandbox.New(quickjs.New())
//	defer host.Close()
//
//	table := dispatch.NewTable()
//	table.Register("tasks", "list", listTasks)
//
//	result := host.Execute(ctx, `return 1+1;`, sandbox.Capabilities{
//	    Table:   table,
//	    Session: session.NewStore(),
//	})
//	// result.OK == true, result.Value == 2
//
// # Runtime surface
//
// Inside the guest, exactly three primitives are reachable:
//
//	await host.tasks.list({project: "inbox"})  // dispatch-table call
//	context.cursor = "page-2"                  // mirrored to the session store
//	progress("halfway there")                  // streamed to the caller
//
// No other host capability, filesystem, or network access exists in the
// guest. Unknown operations fail closed with the list of registered keys.
package sandbox
