package events

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmitWritesFullLogForEveryEvent(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "proxy.log")
	dashPath := filepath.Join(dir, "dash.log")

	sink, err := NewSink(logPath, dashPath)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	defer sink.Close()

	sink.Emit(UpstreamStatus, Debug, ConnID(1), "HTTP/1.1 200 OK")

	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading full log: %v", err)
	}
	if !strings.Contains(string(raw), "HTTP/1.1 200 OK") {
		t.Fatalf("expected full log to contain the event message, got %q", raw)
	}
}

func TestEmitOnlyAppendsDashboardRelevantKindsToRingLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "proxy.log")
	dashPath := filepath.Join(dir, "dash.log")

	sink, err := NewSink(logPath, dashPath)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	defer sink.Close()

	sink.Emit(UpstreamStatus, Debug, ConnID(1), "HTTP/1.1 200 OK")
	raw, err := os.ReadFile(dashPath)
	if err != nil {
		t.Fatalf("reading dashboard log: %v", err)
	}
	if strings.TrimSpace(string(raw)) != "" {
		t.Fatalf("expected dashboard log untouched by a non-relevant kind, got %q", raw)
	}

	sink.Emit(CacheHit, Info, ConnID(1), "[Cache HIT] http://example.com/a")
	raw, err = os.ReadFile(dashPath)
	if err != nil {
		t.Fatalf("reading dashboard log: %v", err)
	}
	if !strings.Contains(string(raw), "Cache HIT") {
		t.Fatalf("expected dashboard log to contain the cache hit line, got %q", raw)
	}
}

func TestRingLogCapsAtFifteenLines(t *testing.T) {
	dir := t.TempDir()
	dashPath := filepath.Join(dir, "dash.log")

	ring, err := newRingLog(dashPath, 15)
	if err != nil {
		t.Fatalf("newRingLog: %v", err)
	}
	for i := 0; i < 20; i++ {
		ring.append("line")
	}

	raw, err := os.ReadFile(dashPath)
	if err != nil {
		t.Fatalf("reading ring log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 15 {
		t.Fatalf("expected 15 lines, got %d", len(lines))
	}
}

func TestNextConnIDIsMonotonic(t *testing.T) {
	a := NextConnID()
	b := NextConnID()
	if b <= a {
		t.Fatalf("expected increasing connection ids, got %d then %d", a, b)
	}
}
