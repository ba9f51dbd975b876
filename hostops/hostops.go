// Package hostops provides ready-made dispatch-table namespaces for hosts
// that do not bring their own domain operations: an in-memory key-value
// store, allow-listed HTTP access, and clock access. Each namespace is
// registered explicitly; nothing is reachable from a script unless the host
// installs it.
package hostops

import (
	"context"
	"time"

	"github.com/scriptbox-dev/scriptbox/dispatch"
)

// RegisterTime installs time.now, returning unix seconds as a float.
func RegisterTime(table *dispatch.Table) {
	table.Register("time", "now", func(ctx context.Context, args map[string]any) (any, error) {
		return float64(time.Now().UnixNano()) / 1e9, nil
	})
}
