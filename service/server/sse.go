package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/soltrack/service/metrics"
	natspkg "github.com/brojonat/soltrack/service/nats"
)

// keepaliveInterval is how often an idle SSE stream sends a comment line.
var keepaliveInterval = 10 * time.Second

// handleStreamReports streams report snapshot events for one wallet as Server-Sent Events.
// GET /api/v1/stream/reports/{address}
func handleStreamReports(subscriber natspkg.Subscriber, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		flusher, _ := w.(http.Flusher)
		flush := func() {
			if flusher != nil {
				flusher.Flush()
			}
		}

		events, err := subscriber.Subscribe(r.Context(), address)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to subscribe",
				"wallet", address,
				"error", err,
			)
			writeError(w, "failed to subscribe", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		m.RecordSSEConnectionChange(address, 1)
		defer m.RecordSSEConnectionChange(address, -1)

		logger.DebugContext(r.Context(), "SSE client connected",
			"wallet", address,
			"remote_addr", r.RemoteAddr,
		)

		fmt.Fprintf(w, "event: connected\ndata: {\"wallet\":%q}\n\n", address)
		flush()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case event, ok := <-events:
				if !ok {
					// Subscription ended
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal event", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: report\ndata: %s\n\n", data)
				flush()

				logger.DebugContext(r.Context(), "sent report event",
					"wallet", address,
					"report_id", event.ReportID,
				)

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"wallet", address,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
