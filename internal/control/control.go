// Package control implements the control surface (C7): a read-only
// cache snapshot, blacklist mutation with a signaled reload, and
// cache clearing, exposed both as a plain Go API and as a small
// loopback HTTP mux.
package control

import (
	"os"
	"syscall"

	"forwardproxy/internal/cache"
	"forwardproxy/internal/config"
)

// Surface mediates every operation the external dashboard performs
// against the running proxy.
type Surface struct {
	Cache      *cache.LRU
	Store      *cache.Store
	ConfigPath string

	// Reload is invoked after a successful WriteBlacklist. If nil, it
	// defaults to signaling the running process with SIGHUP, which
	// main's signal loop treats as a config reload request.
	Reload func() error
}

// CacheSnapshot returns the cache's current contents for display.
func (s *Surface) CacheSnapshot() []cache.Entry {
	return s.Cache.Snapshot()
}

// ClearCache empties the cache and rewrites its snapshot file.
func (s *Surface) ClearCache() error {
	s.Cache.Clear()
	return s.Store.Persist()
}

// ReadBlacklist returns the blacklist patterns currently on disk.
func (s *Surface) ReadBlacklist() ([]string, error) {
	fc, err := config.Load(s.ConfigPath)
	if err != nil {
		return nil, err
	}
	return fc.Blacklist.Patterns(), nil
}

// WriteBlacklist durably replaces the blacklist patterns and signals
// the process to reload, unifying the dashboard's mutation path with
// the config-file reload mechanism.
func (s *Surface) WriteBlacklist(patterns []string) error {
	if err := config.WriteBlacklist(s.ConfigPath, patterns); err != nil {
		return err
	}
	if s.Reload != nil {
		return s.Reload()
	}
	return signalReload()
}

func signalReload() error {
	return syscall.Kill(os.Getpid(), syscall.SIGHUP)
}
