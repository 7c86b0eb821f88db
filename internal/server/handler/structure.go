package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/service"
)

// SecuritisationService defines what the structure and engine handlers need
// from the service layer.
type SecuritisationService interface {
	CreateStructure(ctx context.Context, portfolioID string, st domain.SecuritisationStructure) (domain.SecuritisationStructure, error)
	GetStructure(ctx context.Context, id string) (domain.SecuritisationStructure, error)
	ListStructures(ctx context.Context, portfolioID string) ([]domain.SecuritisationStructure, error)
	UpdateStructure(ctx context.Context, id string, upd domain.SecuritisationStructure) (domain.SecuritisationStructure, error)
	FinaliseStructure(ctx context.Context, id string) (domain.SecuritisationStructure, error)
	RunWaterfall(ctx context.Context, structureID string, req service.WaterfallRequest) (service.WaterfallRun, error)
	RunStressGrid(ctx context.Context, structureID string, req service.GridRequest) (service.GridRun, error)
	Simulate(in domain.WaterfallInput) (domain.WaterfallResult, error)
	Sweep(ctx context.Context, base domain.WaterfallInput, lossRates, prepayRates []float64) ([]domain.GridCell, bool, error)
	GetRun(ctx context.Context, id string) (domain.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

// StructureHandler serves securitisation structures and the runs made
// against them.
type StructureHandler struct {
	sec    SecuritisationService
	logger *slog.Logger
}

// NewStructureHandler creates a StructureHandler.
func NewStructureHandler(sec SecuritisationService, logger *slog.Logger) *StructureHandler {
	return &StructureHandler{sec: sec, logger: logger}
}

// structureRequest is the editable part of a structure.
type structureRequest struct {
	SeniorPct                float64 `json:"senior_pct"`
	MezzaninePct             float64 `json:"mezzanine_pct"`
	EquityPct                float64 `json:"equity_pct"`
	OverCollateralisationPct float64 `json:"over_collateralisation_pct"`
	SeniorCoupon             float64 `json:"senior_coupon"`
	MezzanineCoupon          float64 `json:"mezzanine_coupon"`
}

func (s structureRequest) structure() domain.SecuritisationStructure {
	return domain.SecuritisationStructure{
		SeniorPct:                s.SeniorPct,
		MezzaninePct:             s.MezzaninePct,
		EquityPct:                s.EquityPct,
		OverCollateralisationPct: s.OverCollateralisationPct,
		SeniorCoupon:             s.SeniorCoupon,
		MezzanineCoupon:          s.MezzanineCoupon,
	}
}

// Create stores a draft structure for the portfolio.
// POST /api/portfolios/{id}/structures
func (h *StructureHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req structureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "create structure", err)
		return
	}
	st, err := h.sec.CreateStructure(r.Context(), pathParam(r, "id"), req.structure())
	if err != nil {
		writeServiceError(w, r, h.logger, "create structure", err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

type listStructuresResponse struct {
	Structures []domain.SecuritisationStructure `json:"structures"`
}

// List returns the portfolio's structures.
// GET /api/portfolios/{id}/structures
func (h *StructureHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.sec.ListStructures(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list structures", err)
		return
	}
	if list == nil {
		list = []domain.SecuritisationStructure{}
	}
	writeJSON(w, http.StatusOK, listStructuresResponse{Structures: list})
}

// Get returns one structure.
// GET /api/structures/{id}
func (h *StructureHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.sec.GetStructure(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get structure", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Update edits a draft structure. Finalised structures answer 409.
// PUT /api/structures/{id}
func (h *StructureHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req structureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "update structure", err)
		return
	}
	st, err := h.sec.UpdateStructure(r.Context(), pathParam(r, "id"), req.structure())
	if err != nil {
		writeServiceError(w, r, h.logger, "update structure", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Finalise freezes a structure.
// POST /api/structures/{id}/finalise
func (h *StructureHandler) Finalise(w http.ResponseWriter, r *http.Request) {
	st, err := h.sec.FinaliseStructure(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "finalise structure", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Waterfall runs one scenario against the structure's portfolio.
// POST /api/structures/{id}/waterfall
func (h *StructureHandler) Waterfall(w http.ResponseWriter, r *http.Request) {
	var req service.WaterfallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "waterfall", err)
		return
	}
	out, err := h.sec.RunWaterfall(r.Context(), pathParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "waterfall", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// StressGrid sweeps loss and prepayment rates for the structure.
// POST /api/structures/{id}/stress-grid
func (h *StructureHandler) StressGrid(w http.ResponseWriter, r *http.Request) {
	var req service.GridRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "stress grid", err)
		return
	}
	out, err := h.sec.RunStressGrid(r.Context(), pathParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "stress grid", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetRun returns a stored run.
// GET /api/runs/{id}
func (h *StructureHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.sec.GetRun(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type listRunsResponse struct {
	Runs []domain.RunRecord `json:"runs"`
}

// ListRuns returns the newest runs.
// GET /api/runs?limit=50
func (h *StructureHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.sec.ListRuns(r.Context(), parseLimit(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list runs", err)
		return
	}
	if runs == nil {
		runs = []domain.RunRecord{}
	}
	writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs})
}
