package control

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// cacheRow is the wire shape of one GET /cache entry.
type cacheRow struct {
	Key  string `json:"key"`
	Size int    `json:"size"`
}

type blacklistBody struct {
	Patterns []string `json:"patterns"`
}

// Mux returns the loopback-only control API: GET/DELETE /cache,
// GET/PUT /blacklist, and GET /metrics for Prometheus scraping.
// Callers are expected to bind this to a loopback address only; it
// carries no authentication.
func (s *Surface) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cache", s.handleCache)
	mux.HandleFunc("/blacklist", s.handleBlacklist)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Surface) handleCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries := s.CacheSnapshot()
		rows := make([]cacheRow, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, cacheRow{Key: string(e.Key), Size: e.Size})
		}
		writeJSON(w, http.StatusOK, rows)
	case http.MethodDelete:
		if err := s.ClearCache(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Surface) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		patterns, err := s.ReadBlacklist()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, blacklistBody{Patterns: patterns})
	case http.MethodPut:
		var body blacklistBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.WriteBlacklist(body.Patterns); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
