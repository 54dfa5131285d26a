// Package acceptor implements the connection acceptor (C6): a TCP
// listener with explicit address reuse, handing each accepted socket
// to a detached worker goroutine.
package acceptor

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// documentedBacklog records the listen backlog the design calls for.
// net.ListenConfig does not expose the listen() backlog argument for
// overriding, so the OS's socket-level default (commonly bounded by
// net.core.somaxconn) applies in practice; this constant exists so
// callers can log the intended figure alongside the actual bind.
const documentedBacklog = 100

// ConnHandler processes one accepted connection to completion. It
// must not block the acceptor; acceptor.Run spawns one goroutine per
// call.
type ConnHandler func(net.Conn)

// Acceptor owns the listening socket and the admission limiter gating
// how many accepted connections are handled concurrently.
type Acceptor struct {
	Addr    string
	Handle  ConnHandler
	Limiter *Limiter

	listener net.Listener
}

// Listen binds Addr with SO_REUSEADDR set explicitly via the raw
// socket, rather than relying on net's platform default.
func (a *Acceptor) Listen(ctx context.Context) error {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	ln, err := lc.Listen(ctx, "tcp", a.Addr)
	if err != nil {
		return fmt.Errorf("acceptor: listening on %s: %w", a.Addr, err)
	}
	a.listener = ln
	return nil
}

// Run accepts connections until the listener is closed, handing each
// one to a detached goroutine running Handle. Shutdown is cooperative:
// closing the listener (via Close) makes Accept return an error and
// Run returns; in-flight workers are not waited on.
func (a *Acceptor) Run() error {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			return err
		}

		if a.Limiter != nil {
			if !a.Limiter.Acquire() {
				conn.Close()
				continue
			}
			go func() {
				defer a.Limiter.Release()
				a.Handle(conn)
			}()
			continue
		}

		go a.Handle(conn)
	}
}

// Close stops accepting new connections. In-flight workers continue
// until their own I/O timeouts expire.
func (a *Acceptor) Close() error {
	if a.listener == nil {
		return nil
	}
	return a.listener.Close()
}

// Backlog reports the listen backlog the design calls for (see
// documentedBacklog).
func Backlog() int { return documentedBacklog }
