package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sqlassist/sqlassist/internal/completion"
	"github.com/sqlassist/sqlassist/internal/gateway"
	"github.com/sqlassist/sqlassist/internal/journal"
	"github.com/sqlassist/sqlassist/internal/observability"
)

const (
	msgGenerateFailed = "Failed to generate SQL."
	msgExecuteFailed  = "Failed to execute SQL."
	msgInvalidBody    = "Invalid request body."

	maxRequestBodyBytes = 1 << 20
)

type Dependencies struct {
	Logger    *slog.Logger
	Completer completion.Completer
	Executor  gateway.Executor
	// Journal is optional; nil disables recording.
	Journal journal.Recorder
	UI      http.Handler
}

func NewHandler(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate_sql", func(w http.ResponseWriter, r *http.Request) {
		handleGenerateSQL(deps, w, r)
	})
	mux.HandleFunc("POST /execute_sql", func(w http.ResponseWriter, r *http.Request) {
		handleExecuteSQL(deps, w, r)
	})
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	return chain(mux,
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
		observability.LoggingMiddleware(deps.Logger),
	)
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// decodeBody reads a JSON object into dst. An empty body leaves dst at its
// zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func record(ctx context.Context, deps Dependencies, entry journal.Entry) {
	if deps.Journal == nil {
		return
	}
	entry.TraceID = observability.TraceIDFromContext(ctx)
	deps.Journal.Record(entry)
}

type errorResponse struct {
	Error string `json:"error"`
}
