package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != defaultHost || cfg.Port != defaultPort || cfg.CacheLimit != defaultCacheLimit {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if len(cfg.Blacklist.Patterns()) != 0 {
		t.Fatalf("expected empty blacklist, got %v", cfg.Blacklist.Patterns())
	}
}

func TestLoadAppliesPartialOverrides(t *testing.T) {
	path := writeSettings(t, map[string]any{"port": 9000})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("expected overridden port 9000, got %d", cfg.Port)
	}
	if cfg.Host != defaultHost {
		t.Fatalf("expected default host, got %q", cfg.Host)
	}
}

func TestReloadSwapsBlacklist(t *testing.T) {
	path := writeSettings(t, map[string]any{"blacklist": []string{"ads\\.example"}})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Blacklist.IsBlocked("ads.example.com") {
		t.Fatalf("expected ads.example.com to be blocked")
	}

	writeSettingsAt(t, path, map[string]any{"blacklist": []string{"tracker\\.net"}})
	if err := cfg.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if cfg.Blacklist.IsBlocked("ads.example.com") {
		t.Fatalf("expected ads.example.com to no longer be blocked after reload")
	}
	if !cfg.Blacklist.IsBlocked("tracker.net") {
		t.Fatalf("expected tracker.net to be blocked after reload")
	}
}

func TestBlacklistIsCaseInsensitiveAndUnanchored(t *testing.T) {
	bl, err := NewBlacklist([]string{"ads"})
	if err != nil {
		t.Fatalf("NewBlacklist: %v", err)
	}
	if !bl.IsBlocked("ADS.example.com") {
		t.Fatalf("expected case-insensitive match")
	}
	if !bl.IsBlocked("cdn.ads-network.com") {
		t.Fatalf("expected unanchored substring match")
	}
	if bl.IsBlocked("example.com") {
		t.Fatalf("expected no match for unrelated host")
	}
}

func writeSettings(t *testing.T, v map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	writeSettingsAt(t, path, v)
	return path
}

func writeSettingsAt(t *testing.T, path string, v map[string]any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
