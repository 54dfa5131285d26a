package handler

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"forwardproxy/internal/events"
	"forwardproxy/internal/metrics"
)

// relay is the opaque bidirectional byte tunnel for CONNECT: it never
// parses either side's bytes. Each direction runs in its own
// goroutine with its own 5-second idle tick; a clean EOF from either
// side closes both sockets, and any other error closes both sockets
// and raises RELAY_ERROR.
func relay(client, upstream net.Conn, id events.ConnID, sink *events.Sink) {
	done := make(chan struct{}, 2)

	go pump(upstream, client, "client_to_upstream", id, sink, done)
	go pump(client, upstream, "upstream_to_client", id, sink, done)

	<-done
	client.Close()
	upstream.Close()
	<-done
}

// pump copies from src to dst in 4 KiB chunks, using a rolling
// 5-second read deadline on src as an idle tick; a timeout simply
// loops back around rather than ending the tunnel, so an idle tunnel
// stays open until either side closes or errors.
func pump(dst, src net.Conn, direction string, id events.ConnID, sink *events.Sink, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	buf := make([]byte, relayChunk)
	for {
		src.SetReadDeadline(time.Now().Add(ioTimeout))
		n, err := src.Read(buf)
		if n > 0 {
			dst.SetWriteDeadline(time.Now().Add(ioTimeout))
			if werr := writeAll(dst, buf[:n]); werr != nil {
				metrics.RelayError()
				sink.Emit(events.RelayError, events.Warn, id, fmt.Sprintf("relay write error (%s): %v", direction, werr))
				return
			}
			metrics.RelayBytes(direction, n)
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !errors.Is(err, io.EOF) {
				metrics.RelayError()
				sink.Emit(events.RelayError, events.Warn, id, fmt.Sprintf("relay read error (%s): %v", direction, err))
			}
			return
		}
	}
}

func writeAll(dst net.Conn, b []byte) error {
	_, err := dst.Write(b)
	return err
}
