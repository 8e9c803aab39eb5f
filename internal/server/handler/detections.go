package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// DetectionHandler serves persisted detections, the audit log and the
// archive listing.
type DetectionHandler struct {
	store  domain.DetectionStore
	audit  domain.AuditStore
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewDetectionHandler creates a DetectionHandler. audit and blobs may be nil,
// in which case their endpoints answer 404.
func NewDetectionHandler(store domain.DetectionStore, audit domain.AuditStore, blobs domain.BlobReader, logger *slog.Logger) *DetectionHandler {
	return &DetectionHandler{
		store:  store,
		audit:  audit,
		blobs:  blobs,
		logger: logger.With(slog.String("handler", "detections")),
	}
}

// ListDetections returns recent order_flow rows, newest first. An optional
// ticker parameter filters by symbol.
// GET /api/detections
func (h *DetectionHandler) ListDetections(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time range: "+err.Error())
		return
	}

	opts.Ticker = strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))

	records, err := h.store.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list detections failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list detections")
		return
	}

	if records == nil {
		records = []domain.FlowRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"detections": records,
		"count":      len(records),
	})
}

// ListAudit returns audit log entries, newest first.
// GET /api/audit
func (h *DetectionHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit log not configured")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time range: "+err.Error())
		return
	}
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ListArchives returns the archived JSONL objects.
// GET /api/archives
func (h *DetectionHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusNotFound, "archive storage not configured")
		return
	}
	infos, err := h.blobs.List(r.Context(), "archive/order_flow/")
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archives failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to list archives")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}
