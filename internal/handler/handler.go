// Package handler implements the per-connection request handling
// state machine (C5): HTTP forward-with-cache and HTTPS CONNECT
// tunneling, over raw sockets.
package handler

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"forwardproxy/internal/cache"
	"forwardproxy/internal/config"
	"forwardproxy/internal/events"
	"forwardproxy/internal/metrics"
)

const maxCacheableBody = 1_000_000

// Handler wires the request state machine to the cache and blacklist
// it depends on, and to the sink every event is emitted through.
type Handler struct {
	Blacklist *config.Blacklist
	Cache     *cache.LRU
	Sink      *events.Sink

	// DialUpstream overrides how handleHTTP reaches the origin server.
	// Left nil, production always dials destHost:80; tests substitute a
	// loopback stand-in to exercise streaming and cache admission.
	DialUpstream func(destHost string) (net.Conn, error)
}

func (h *Handler) dialUpstream(destHost string) (net.Conn, error) {
	if h.DialUpstream != nil {
		return h.DialUpstream(destHost)
	}
	return net.DialTimeout("tcp", net.JoinHostPort(destHost, "80"), ioTimeout)
}

// Handle services one accepted connection end to end. It never
// returns an error to its caller: any failure is converted into a
// HANDLER_ERROR event and the connection is closed, matching the
// acceptor's "a worker never takes the acceptor down with it"
// contract.
func (h *Handler) Handle(conn net.Conn) {
	id := events.NextConnID()
	start := time.Now()
	mode := "unknown"

	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerError()
			h.Sink.Emit(events.HandlerError, events.Error, id, fmt.Sprintf("handler panic: %v", r))
		}
		conn.Close()
		elapsed := time.Since(start)
		metrics.ConnClosed(mode, elapsed)
		h.Sink.Emit(events.ConnClose, events.Debug, id, fmt.Sprintf("connection closed (%s, %s)", mode, elapsed.Round(time.Millisecond)))
	}()

	metrics.ConnOpened()
	h.Sink.Emit(events.ConnOpen, events.Info, id, fmt.Sprintf("New connection from %s", conn.RemoteAddr()))

	head, complete, err := readHead(conn)
	if err != nil || len(head) == 0 {
		return
	}

	line, ok := parseRequestLine(head)
	if !ok || !complete {
		writeStatus(conn, 400, "Bad Request", "Malformed Request")
		return
	}

	if line.Method == "CONNECT" {
		mode = "TUNNEL"
		h.handleConnect(conn, id, line)
		return
	}

	mode = "HTTP"
	h.handleHTTP(conn, id, head, line)
}

func (h *Handler) handleHTTP(conn net.Conn, id events.ConnID, head []byte, line requestLine) {
	host, ok := headerValue(head, "Host")
	if !ok || host == "" {
		writeStatus(conn, 400, "Bad Request", "Missing Host Header")
		return
	}

	destHost := hostOnly(host)
	key := cache.Normalize(host, line.Target)

	if h.Blacklist.IsBlocked(destHost) {
		metrics.Blocked("http")
		h.Sink.Emit(events.BlockedHTTP, events.Warn, id, fmt.Sprintf("[Blocked] Attempted access to %s", destHost))
		writeStatus(conn, 403, "Forbidden", "Blocked by Proxy")
		return
	}

	if body, hit := h.Cache.Get(key); hit {
		metrics.CacheHit()
		h.Sink.Emit(events.CacheHit, events.Info, id, fmt.Sprintf("[Cache HIT] %s", key))
		conn.SetWriteDeadline(time.Now().Add(ioTimeout))
		conn.Write(body)
		return
	}
	metrics.CacheMiss()
	h.Sink.Emit(events.CacheMiss, events.Info, id, fmt.Sprintf("[Cache MISS] %s", key))

	upstream, err := h.dialUpstream(destHost)
	if err != nil {
		h.Sink.Emit(events.UpstreamTimeout, events.Error, id, fmt.Sprintf("upstream dial failed for %s: %v", destHost, err))
		metrics.UpstreamTimeout()
		return
	}
	defer upstream.Close()

	upstream.SetWriteDeadline(time.Now().Add(ioTimeout))
	if _, err := upstream.Write(head); err != nil {
		metrics.UpstreamTimeout()
		h.Sink.Emit(events.UpstreamTimeout, events.Error, id, fmt.Sprintf("sending request to %s: %v", destHost, err))
		writeStatus(conn, 504, "Gateway Timeout", "")
		return
	}

	start := time.Now()
	response, statusLine, timedOut, clean := streamResponse(conn, upstream)
	if timedOut {
		metrics.UpstreamTimeout()
		if len(response) == 0 {
			h.Sink.Emit(events.UpstreamTimeout, events.Warn, id, fmt.Sprintf("upstream %s timed out before first byte", destHost))
			writeStatus(conn, 504, "Gateway Timeout", "")
			return
		}
		h.Sink.Emit(events.UpstreamTimeout, events.Warn, id, fmt.Sprintf("upstream %s timed out mid-response", destHost))
	}

	if len(response) < maxCacheableBody && clean {
		h.Cache.Set(key, response)
	}

	if statusLine != "" {
		metrics.UpstreamStatus(statusClass(statusLine))
		h.Sink.Emit(events.UpstreamStatus, events.Debug, id, statusLine)
	}
	h.Sink.Emit(events.HTTPReq, events.Info, id,
		fmt.Sprintf("%s %s -> %s (%s, %d bytes)", line.Method, key, destHost, time.Since(start).Round(time.Millisecond), len(response)))
}

// streamResponse reads upstream in 4 KiB chunks, writing each chunk to
// client as it arrives while also accumulating a copy to offer to the
// cache. It returns once upstream closes cleanly, a read times out, or
// an error occurs; clean is true only when upstream reached EOF and
// every chunk was written to the client.
func streamResponse(client net.Conn, upstream net.Conn) (body []byte, statusLine string, timedOut bool, clean bool) {
	buf := make([]byte, relayChunk)
	for {
		upstream.SetReadDeadline(time.Now().Add(ioTimeout))
		n, err := upstream.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
			client.SetWriteDeadline(time.Now().Add(ioTimeout))
			if _, werr := client.Write(buf[:n]); werr != nil {
				return body, firstLine(body), false, false
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return body, firstLine(body), true, false
			}
			// EOF or any other error ends the stream; only EOF is a
			// clean close, and neither is a timeout.
			return body, firstLine(body), false, err == io.EOF
		}
	}
}

func firstLine(body []byte) string {
	line, _, ok := cutLine(body)
	if !ok {
		return ""
	}
	return line
}

func (h *Handler) handleConnect(conn net.Conn, id events.ConnID, line requestLine) {
	host, port, ok := splitHostPort(line.Target)
	if !ok {
		writeStatus(conn, 400, "Bad Request", "Malformed CONNECT Target")
		return
	}

	if h.Blacklist.IsBlocked(host) {
		metrics.Blocked("https")
		h.Sink.Emit(events.BlockedHTTPS, events.Warn, id, fmt.Sprintf("[Blocked HTTPS] Attempted access to %s", host))
		writeStatus(conn, 403, "Forbidden", "Blocked by Proxy")
		return
	}

	upstream, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), ioTimeout)
	if err != nil {
		h.Sink.Emit(events.UpstreamTimeout, events.Error, id, fmt.Sprintf("upstream dial failed for %s: %v", host, err))
		metrics.UpstreamTimeout()
		return
	}
	defer upstream.Close()

	conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if _, err := conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}

	relay(conn, upstream, id, h.Sink)
}

func hostOnly(hostHeader string) string {
	if h, _, err := net.SplitHostPort(hostHeader); err == nil {
		return toLower(h)
	}
	return toLower(hostHeader)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func writeStatus(conn net.Conn, code int, reason, body string) {
	resp := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s", code, reason, len(body), body)
	conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	conn.Write([]byte(resp))
}
