package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger is implemented by *sql.DB and the database wrapper
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health reports whether the store is reachable. db may be nil when the
// engine runs on the in-memory store.
func Health(db Pinger, service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "service": service}

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				status["status"] = "degraded"
				status["database"] = err.Error()
				writeJSON(w, http.StatusServiceUnavailable, status)
				return
			}
		}

		writeJSON(w, http.StatusOK, status)
	}
}
