package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// AuditLog is the read side of the audit store.
type AuditLog interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AuditHandler lists audit log entries.
type AuditHandler struct {
	log    AuditLog
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(log AuditLog, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{log: log, logger: logger}
}

type auditEntryResponse struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// List returns the newest entries first.
// GET /api/audit?event=policy.updated&limit=50&offset=0&since=2025-01-01T00:00:00Z&until=...
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := domain.ListOpts{Limit: parseLimit(r), Event: q.Get("event")}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		opts.Offset = n
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &opts.Since}, {"until", &opts.Until}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, p.name+" must be an RFC 3339 timestamp")
			return
		}
		*p.dst = &t
	}

	entries, err := h.log.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list audit", err)
		return
	}
	out := make([]auditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = auditEntryResponse(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
