package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/soltrack/service/config"
	"github.com/brojonat/soltrack/service/db"
	"github.com/brojonat/soltrack/service/report"
	"github.com/brojonat/soltrack/service/temporal"
	solanago "github.com/gagliardetto/solana-go"
)

const (
	maxRequestBodySize   = 1 << 20 // 1MB - plenty for a watch request
	maxAddressLength     = 100     // Solana addresses are 44 chars, give buffer
	maxWatchInterval     = 24 * time.Hour
	defaultSnapshotLimit = 50
	maxSnapshotLimit     = 1000
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// handleGetReport returns a handler that builds a wallet report.
// GET /api/v1/wallets/{address}/report?source={source}&limit={n}
func handleGetReport(builder ReportBuilder, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		query := r.URL.Query()

		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit, err := parseLimit(query.Get("limit"), 0, config.MaxSignatureLimit)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		rep, err := builder.Build(r.Context(), report.Request{
			Address: address,
			Source:  query.Get("source"),
			Limit:   limit,
		})
		if err != nil {
			if isRequestError(err) {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.Error("failed to build report", "address", address, "error", err)
			writeError(w, "failed to fetch transactions: "+err.Error(), http.StatusBadGateway)
			return
		}

		logger.Debug("report built", "address", address, "transfers", len(rep.Transfers))
		writeJSON(w, rep, http.StatusOK)
	})
}

// handleListSnapshots returns a handler that lists stored report snapshots for a wallet.
// GET /api/v1/wallets/{address}/snapshots?limit={n}
func handleListSnapshots(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, "snapshot history is not configured", http.StatusServiceUnavailable)
			return
		}

		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit, err := parseLimit(r.URL.Query().Get("limit"), defaultSnapshotLimit, maxSnapshotLimit)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		snaps, err := store.ListSnapshots(r.Context(), address, limit)
		if err != nil {
			logger.Error("failed to list snapshots", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if snaps == nil {
			snaps = []*report.Snapshot{}
		}

		writeJSON(w, map[string]interface{}{
			"address":   address,
			"snapshots": snaps,
			"count":     len(snaps),
		}, http.StatusOK)
	})
}

// watchResponse is the JSON response format for a watch.
type watchResponse struct {
	Address   string     `json:"address"`
	Source    string     `json:"source"`
	Interval  string     `json:"interval"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func watchToResponse(w *db.Watch) watchResponse {
	return watchResponse{
		Address:   w.Address,
		Source:    w.Source,
		Interval:  w.Interval.String(),
		CreatedAt: &w.CreatedAt,
		UpdatedAt: &w.UpdatedAt,
	}
}

// handleCreateWatch returns a handler that creates or updates the Temporal schedule
// that snapshots a wallet, recording the watch when a store is configured.
// POST /api/v1/watches
func handleCreateWatch(builder ReportBuilder, store Store, scheduler temporal.Scheduler, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if scheduler == nil {
			writeError(w, "scheduling is not configured", http.StatusServiceUnavailable)
			return
		}

		// Limit request body size to prevent memory exhaustion
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Address  string `json:"address"`
			Source   string `json:"source"`
			Interval string `json:"interval"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode watch request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.Address); err != nil {
			logger.Debug("invalid address", "address", req.Address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		source, err := resolveSource(builder, cfg, req.Source)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		interval := cfg.DefaultWatchInterval
		if req.Interval != "" {
			interval, err = time.ParseDuration(req.Interval)
			if err != nil {
				logger.Debug("invalid interval", "interval", req.Interval, "error", err)
				writeError(w, "invalid interval: must be a duration like 30s, 5m or 1h", http.StatusBadRequest)
				return
			}
		}
		if err := validateInterval(interval, cfg.MinWatchInterval); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := scheduler.UpsertWatchSchedule(r.Context(), req.Address, source, interval); err != nil {
			logger.Error("failed to upsert schedule", "address", req.Address, "source", source, "error", err)
			writeError(w, "failed to schedule watch", http.StatusInternalServerError)
			return
		}

		resp := watchResponse{Address: req.Address, Source: source, Interval: interval.String()}
		if store != nil {
			watch, err := store.UpsertWatch(r.Context(), req.Address, source, interval)
			if err != nil {
				// The schedule exists; repeating the request reconciles the record.
				logger.Error("failed to record watch", "address", req.Address, "source", source, "error", err)
				writeError(w, "failed to record watch", http.StatusInternalServerError)
				return
			}
			resp = watchToResponse(watch)
		}

		logger.Info("watch scheduled",
			"address", req.Address,
			"source", source,
			"interval", interval,
		)
		writeJSON(w, resp, http.StatusCreated)
	})
}

// handleListWatches returns a handler that lists recorded watches.
// GET /api/v1/watches
func handleListWatches(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, "watch records are not configured", http.StatusServiceUnavailable)
			return
		}

		watches, err := store.ListWatches(r.Context())
		if err != nil {
			logger.Error("failed to list watches", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]watchResponse, len(watches))
		for i, watch := range watches {
			resp[i] = watchToResponse(watch)
		}

		writeJSON(w, map[string]interface{}{
			"watches": resp,
		}, http.StatusOK)
	})
}

// handleDeleteWatch returns a handler that deletes a wallet's schedule and its record.
// DELETE /api/v1/watches/{address}?source={source}
func handleDeleteWatch(builder ReportBuilder, store Store, scheduler temporal.Scheduler, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if scheduler == nil {
			writeError(w, "scheduling is not configured", http.StatusServiceUnavailable)
			return
		}

		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		source, err := resolveSource(builder, cfg, r.URL.Query().Get("source"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Delete the schedule first. If this fails the record stays.
		if err := scheduler.DeleteWatchSchedule(r.Context(), address, source); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "not found") {
				writeError(w, "watch not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to delete schedule", "address", address, "source", source, "error", err)
			writeError(w, "failed to delete schedule for watch", http.StatusInternalServerError)
			return
		}

		if store != nil {
			if err := store.DeleteWatch(r.Context(), address, source); err != nil && !errors.Is(err, db.ErrNotFound) {
				logger.Error("failed to delete watch record", "address", address, "source", source, "error", err)
				writeError(w, "failed to delete watch", http.StatusInternalServerError)
				return
			}
		}

		logger.Info("watch deleted", "address", address, "source", source)
		w.WriteHeader(http.StatusNoContent)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// isRequestError reports whether a build failed because of the request rather than a source.
func isRequestError(err error) bool {
	return errors.Is(err, report.ErrInvalidAddress) ||
		errors.Is(err, report.ErrUnknownSource) ||
		errors.Is(err, report.ErrInvalidLimit)
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	if _, err := solanago.PublicKeyFromBase58(address); err != nil {
		return errorf("invalid address: not a valid Solana public key")
	}

	return nil
}

// validateInterval validates a watch interval for reasonable bounds.
func validateInterval(interval, minInterval time.Duration) error {
	if interval <= 0 {
		return errorf("interval must be positive")
	}

	if interval < minInterval {
		return errorf("interval must be at least %v", minInterval)
	}

	if interval > maxWatchInterval {
		return errorf("interval cannot exceed %v", maxWatchInterval)
	}

	return nil
}

// resolveSource applies the configured default and checks the source is available.
func resolveSource(builder ReportBuilder, cfg *config.Config, source string) (string, error) {
	if source == "" {
		source = cfg.DefaultSource
	}
	if available := builder.Sources(); !slices.Contains(available, source) {
		return "", errorf("unknown source %q: available sources are %v", source, available)
	}
	return source, nil
}

// parseLimit parses an optional limit query parameter.
func parseLimit(raw string, defaultLimit, maxLimit int) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errorf("invalid limit parameter: must be an integer")
	}
	if limit < 1 {
		return 0, errorf("limit must be at least 1")
	}
	if limit > maxLimit {
		return 0, errorf("limit cannot exceed %d", maxLimit)
	}
	return limit, nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
