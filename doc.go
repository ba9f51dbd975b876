// Package scriptbox provides a WebAssembly-based sandbox for executing
// untrusted JavaScript with host-mediated capabilities.
//
// # Overview
//
// scriptbox runs each script in an isolated QuickJS guest with zero default
// capabilities. Scripts cannot touch the filesystem, network, or clock;
// everything they reach goes through host operations registered in a
// dispatch table, rate limited per invocation, and carried over an explicit
// message channel.
//
// # Basic Usage
//
//	host, _ := sandbox.New(quickjs.New())
//	defer host.Close()
//
//	table := dispatch.NewTable()
//	table.Register("math", "add", func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	})
//
//	result := host.Execute(ctx, `
//	    const sum = await host.math.add({a: 2, b: 3});
//	    return sum;
//	`, sandbox.Capabilities{Table: table})
//	fmt.Println(result.Value) // 5
//
// # Persistent State
//
//	store := session.NewStore()
//	caps := sandbox.Capabilities{Table: table, Session: store}
//	host.Execute(ctx, `context.cursor = "page-2";`, caps)
//	host.Execute(ctx, `return context.cursor;`, caps) // "page-2"
//
// See the [sandbox], [dispatch], [session], and [hostops] packages for
// detailed API documentation.
package scriptbox
