package serverapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"sql-autoapi/internal/executor"
	"sql-autoapi/internal/logging"
	"sql-autoapi/internal/observability"
	"sql-autoapi/internal/registry"
)

// endpointHandler serves one generated table endpoint. Each request runs a
// fresh bounded SELECT against the backing table.
func endpointHandler(endpoint registry.Endpoint, metrics *observability.APIMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		// A non-positive limit falls back to the default inside the executor;
		// only a value that is not an integer at all is a client error.
		limit := executor.DefaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q: must be an integer", raw))
				return
			}
			limit = parsed
		}

		rows, err := executor.Fetch(r.Context(), endpoint, limit)
		if err != nil {
			logger := logging.FromContext(r.Context())
			var backendErr *executor.BackendError
			if errors.As(err, &backendErr) {
				logger.Error("backend query failed",
					slog.String("route", endpoint.Route),
					slog.String("source", backendErr.Source),
					slog.String("table", backendErr.Table),
					slog.String("error", err.Error()),
				)
			} else {
				logger.Error("query failed",
					slog.String("route", endpoint.Route),
					slog.String("error", err.Error()),
				)
			}
			writeJSONError(w, http.StatusInternalServerError, "failed to query table")
			return
		}

		if metrics != nil {
			metrics.RecordRowsReturned(r.Context(), endpoint.Route, int64(len(rows)))
		}

		if rows == nil {
			rows = []executor.Row{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rows); err != nil {
			logging.FromContext(r.Context()).Warn("failed to write response",
				slog.String("route", endpoint.Route),
				slog.String("error", err.Error()),
			)
		}
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
