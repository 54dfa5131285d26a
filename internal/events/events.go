// Package events implements the structured event sink (C2): a full
// log of every event and a filtered ring-buffer log the dashboard
// tails, plus a per-connection correlation id (ConnID).
package events

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Severity mirrors the event severities named in the data model.
type Severity int

const (
	Debug Severity = iota
	Info
	Warn
	Error
)

func (s Severity) zerolog() zerolog.Level {
	switch s {
	case Debug:
		return zerolog.DebugLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Kind enumerates the event classes raised while handling connections.
type Kind int

const (
	ConnOpen Kind = iota
	ConnClose
	HTTPReq
	CacheHit
	CacheMiss
	BlockedHTTP
	BlockedHTTPS
	UpstreamStatus
	UpstreamTimeout
	RelayError
	HandlerError
)

// dashboardRelevant is the set of event kinds that also appear in the
// filtered ring-buffer log, grounded on the dashboard log handler's
// message-pattern filter.
var dashboardRelevant = map[Kind]bool{
	ConnOpen:     true,
	BlockedHTTP:  true,
	BlockedHTTPS: true,
	CacheHit:     true,
	CacheMiss:    true,
	RelayError:   true,
	HandlerError: true,
}

// ConnID correlates every event raised while servicing one accepted
// socket, replacing the per-HTTP-request identifier a header-based
// protocol would carry.
type ConnID uint64

var connIDSeq uint64

// NextConnID returns a fresh, process-unique connection id.
func NextConnID() ConnID {
	return ConnID(atomic.AddUint64(&connIDSeq, 1))
}

// Sink is the process-wide event sink: a full log through zerolog and
// a filtered ring buffer for the dashboard.
type Sink struct {
	logger zerolog.Logger
	closer func() error
	ring   *ringLog
}

// NewSink opens logPath (full log) and dashPath (filtered ring buffer,
// capped at 15 lines) and returns a Sink ready to receive events.
func NewSink(logPath, dashPath string) (*Sink, error) {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("events: opening %s: %w", logPath, err)
	}

	cw := zerolog.ConsoleWriter{
		Out:        f,
		NoColor:    true,
		TimeFormat: "2006-01-02 15:04:05,000",
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			zerolog.MessageFieldName,
		},
		FormatLevel: func(i interface{}) string {
			lvl, _ := i.(string)
			return "[" + levelLabel(lvl) + "]"
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("%s", i)
		},
	}

	ring, err := newRingLog(dashPath, 15)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Sink{
		logger: zerolog.New(cw).With().Timestamp().Logger(),
		closer: f.Close,
		ring:   ring,
	}, nil
}

func levelLabel(lvl string) string {
	switch lvl {
	case "debug":
		return "DEBUG"
	case "warn":
		return "WARNING"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// Close releases the full-log file handle.
func (s *Sink) Close() error {
	return s.closer()
}

// Emit records one event: it always reaches the full log, and, when
// kind is dashboard-relevant, it is also appended to the filtered
// ring buffer.
func (s *Sink) Emit(kind Kind, sev Severity, conn ConnID, message string) {
	line := fmt.Sprintf("[conn %d] %s", conn, message)
	s.logger.WithLevel(sev.zerolog()).Msg(line)
	if dashboardRelevant[kind] {
		s.ring.append(formatForRing(sev, line))
	}
}

func formatForRing(sev Severity, line string) string {
	return fmt.Sprintf("%s [%s] %s", time.Now().Format("2006-01-02 15:04:05,000"), levelLabel(sev.zerologLabel()), line)
}

func (s Severity) zerologLabel() string {
	switch s {
	case Debug:
		return "debug"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}
