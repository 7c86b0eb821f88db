package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/waterfall"
)

// EngineHandler exposes the waterfall engine on caller-supplied inputs.
// Nothing is persisted.
type EngineHandler struct {
	sec    SecuritisationService
	logger *slog.Logger
}

// NewEngineHandler creates an EngineHandler.
func NewEngineHandler(sec SecuritisationService, logger *slog.Logger) *EngineHandler {
	return &EngineHandler{sec: sec, logger: logger}
}

// Simulate runs one waterfall.
// POST /api/waterfall
func (h *EngineHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var in domain.WaterfallInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, h.logger, "simulate", err)
		return
	}
	res, err := h.sec.Simulate(in)
	if err != nil {
		writeServiceError(w, r, h.logger, "simulate", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type sweepRequest struct {
	domain.WaterfallInput
	LossRates   []float64 `json:"loss_rates,omitempty"`
	PrepayRates []float64 `json:"prepay_rates,omitempty"`
}

type sweepResponse struct {
	Cells   []domain.GridCell            `json:"cells"`
	Summary map[waterfall.GridStatus]int `json:"summary"`
	Cached  bool                         `json:"cached"`
}

// StressGrid sweeps loss and prepayment rates over one input. The input's
// own scenario rates are ignored.
// POST /api/stress-grid
func (h *EngineHandler) StressGrid(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "stress grid", err)
		return
	}
	cells, cached, err := h.sec.Sweep(r.Context(), req.WaterfallInput, req.LossRates, req.PrepayRates)
	if err != nil {
		writeServiceError(w, r, h.logger, "stress grid", err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Cells: cells, Summary: waterfall.Summary(cells), Cached: cached})
}
