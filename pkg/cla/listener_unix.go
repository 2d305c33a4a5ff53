//go:build unix

package cla

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenConfig is a net.ListenConfig that sets SO_REUSEADDR on every CLA
// listening socket, the way facebook-time's PTP listeners tune their raw
// sockets via unix.SetsockoptInt before binding. This lets a CLA instance
// rebind its configured address immediately after a restart instead of
// waiting out TIME_WAIT.
var ListenConfig = net.ListenConfig{
	Control: func(network, address string, c syscall.RawConn) error {
		var sockErr error
		if err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		}); err != nil {
			return err
		}
		return sockErr
	},
}

// Listen opens a TCP listener on addr with SO_REUSEADDR set.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	return ListenConfig.Listen(ctx, "tcp", addr)
}
