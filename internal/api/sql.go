package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sqlassist/sqlassist/internal/completion"
	"github.com/sqlassist/sqlassist/internal/gateway"
	"github.com/sqlassist/sqlassist/internal/journal"
	"github.com/sqlassist/sqlassist/internal/observability"
	"github.com/sqlassist/sqlassist/internal/sqltext"
)

var (
	errCompleterMissing = errors.New("completion client is not configured")
	errExecutorMissing  = errors.New("database gateway is not configured")
	errQueryMissing     = errors.New("request has no query")
)

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	SQL string `json:"sql"`
}

// Query is a pointer so an absent field is told apart from an empty string.
type executeRequest struct {
	Query *string `json:"query"`
}

type executeResponse struct {
	Result []gateway.Row `json:"result"`
}

func handleGenerateSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req generateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	start := time.Now()
	fail := func(err error) {
		elapsed := time.Since(start)
		attrs := []any{
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Any("error", err),
		}
		var upstream *completion.UpstreamError
		if errors.As(err, &upstream) && upstream.StatusCode != 0 {
			attrs = append(attrs, slog.Int("upstream_status", upstream.StatusCode), slog.String("upstream_body", upstream.Body))
		}
		deps.Logger.ErrorContext(ctx, "generate sql failed", attrs...)
		observability.ObserveGenerate(observability.OutcomeError, elapsed, false)
		record(ctx, deps, journal.Entry{
			Kind:       journal.KindGenerate,
			Input:      req.Prompt,
			Outcome:    observability.OutcomeError,
			Error:      err.Error(),
			DurationMs: elapsed.Milliseconds(),
		})
		writeError(w, http.StatusInternalServerError, msgGenerateFailed)
	}

	if deps.Completer == nil {
		fail(errCompleterMissing)
		return
	}
	content, err := deps.Completer.Complete(ctx, req.Prompt)
	if err != nil {
		fail(err)
		return
	}
	sqlText := sqltext.Extract(content)
	elapsed := time.Since(start)

	fellBack := sqlText == strings.TrimSpace(content) && content != completion.NoSQLReturned
	deps.Logger.DebugContext(ctx, "generated sql",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("sql", sqlText),
		slog.Bool("fence_found", !fellBack),
	)
	observability.ObserveGenerate(observability.OutcomeOK, elapsed, fellBack)
	record(ctx, deps, journal.Entry{
		Kind:       journal.KindGenerate,
		Input:      req.Prompt,
		Output:     sqlText,
		Outcome:    observability.OutcomeOK,
		DurationMs: elapsed.Milliseconds(),
	})
	writeJSON(w, http.StatusOK, generateResponse{SQL: sqlText})
}

func handleExecuteSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req executeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	var query string
	if req.Query != nil {
		query = *req.Query
	}
	sanitized, removed := sqltext.SanitizeReport(query)
	traceID := observability.TraceIDFromContext(ctx)
	deps.Logger.DebugContext(ctx, "executing sql",
		slog.String("trace_id", traceID),
		slog.String("original_sql", query),
		slog.String("sanitized_sql", sanitized),
		slog.Int("removed_lines", removed),
	)

	start := time.Now()
	var (
		rows []gateway.Row
		err  error
	)
	switch {
	case req.Query == nil:
		err = errQueryMissing
	case deps.Executor == nil:
		err = errExecutorMissing
	default:
		rows, err = deps.Executor.Execute(ctx, sanitized)
	}
	elapsed := time.Since(start)

	if err != nil {
		deps.Logger.ErrorContext(ctx, "execute sql failed",
			slog.String("trace_id", traceID),
			slog.String("sql", sanitized),
			slog.Any("error", err),
		)
		observability.ObserveExecute(observability.OutcomeError, elapsed, 0, removed)
		record(ctx, deps, journal.Entry{
			Kind:       journal.KindExecute,
			Input:      query,
			Output:     sanitized,
			Outcome:    observability.OutcomeError,
			Error:      err.Error(),
			DurationMs: elapsed.Milliseconds(),
		})
		writeError(w, http.StatusInternalServerError, msgExecuteFailed)
		return
	}

	if rows == nil {
		rows = []gateway.Row{}
	}
	observability.ObserveExecute(observability.OutcomeOK, elapsed, len(rows), removed)
	record(ctx, deps, journal.Entry{
		Kind:       journal.KindExecute,
		Input:      query,
		Output:     sanitized,
		RowCount:   len(rows),
		Outcome:    observability.OutcomeOK,
		DurationMs: elapsed.Milliseconds(),
	})
	writeJSON(w, http.StatusOK, executeResponse{Result: rows})
}
