//go:build !unix

package cla

import (
	"context"
	"net"
)

// Listen opens a plain TCP listener on addr. SO_REUSEADDR tuning
// (listener_unix.go) is a unix-only socket option.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}
