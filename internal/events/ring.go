package events

import (
	"fmt"
	"os"
	"sync"
)

// ringLog keeps the newest `cap` lines and rewrites the whole file on
// every append. zerolog has no writer mode that truncates to a fixed
// line count, so this is implemented directly over os.File; see
// DESIGN.md for why this one piece stays on the standard library.
type ringLog struct {
	path string
	cap  int

	mu    sync.Mutex
	lines []string
}

func newRingLog(path string, capLines int) (*ringLog, error) {
	r := &ringLog{path: path, cap: capLines}
	// Start from an empty buffer; the dashboard only needs the latest
	// window going forward, not history from a previous process.
	if err := r.rewrite(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ringLog) append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = append(r.lines, line)
	if len(r.lines) > r.cap {
		r.lines = r.lines[len(r.lines)-r.cap:]
	}
	if err := r.rewriteLocked(); err != nil {
		fmt.Fprintf(os.Stderr, "events: rewriting dashboard log: %v\n", err)
	}
}

func (r *ringLog) rewrite() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rewriteLocked()
}

func (r *ringLog) rewriteLocked() error {
	tmp := r.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	for _, line := range r.lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
