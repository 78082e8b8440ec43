package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rhuss/digsite/pkg/transport"
)

// readyTimeout bounds all readiness checks of one probe.
const readyTimeout = 2 * time.Second

// Check is a named readiness probe, typically a store or Redis ping.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyHandler runs every check concurrently and answers 503 when any of
// them fails. Failure detail goes to the log only.
func readyHandler(checks []Check) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		results := make(map[string]string, len(checks))
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, c := range checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				status := "ok"
				if err := c.Probe(ctx); err != nil {
					status = "unavailable"
					slog.Warn("readiness check failed", "check", c.Name, "error", err)
				}
				mu.Lock()
				results[c.Name] = status
				mu.Unlock()
			}()
		}
		wg.Wait()

		code, overall := http.StatusOK, "ready"
		for _, s := range results {
			if s != "ok" {
				code, overall = http.StatusServiceUnavailable, "unavailable"
				break
			}
		}
		transport.WriteJSON(w, code, map[string]any{"status": overall, "checks": results})
	})
}
