package handler

import (
	"context"
	"log/slog"
	"mime"
	"net/http"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/pipeline"
)

// PortfolioService defines what the portfolio handler needs from the
// service layer.
type PortfolioService interface {
	ImportLoans(ctx context.Context, portfolioID string, loans []domain.LoanRecord) (domain.Portfolio, error)
	MergeLoans(ctx context.Context, portfolioID string, loans []domain.LoanRecord) (domain.Portfolio, error)
	PoolMetrics(ctx context.Context, portfolioID string, filter *domain.PoolFilter) (domain.PoolMetrics, error)
	Policy(ctx context.Context, portfolioID string) (domain.ProvisioningPolicy, error)
	UpdatePolicy(ctx context.Context, p domain.ProvisioningPolicy) (domain.ProvisioningPolicy, error)
	Report(ctx context.Context, portfolioID string, opts domain.ReportOptions) (domain.PortfolioReport, error)
}

// PortfolioHandler serves loan tapes, provisioning policies and reports.
type PortfolioHandler struct {
	portfolios PortfolioService
	exporter   domain.Exporter
	logger     *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler. exporter may be nil, in
// which case report export requests are rejected.
func NewPortfolioHandler(portfolios PortfolioService, exporter domain.Exporter, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolios: portfolios, exporter: exporter, logger: logger}
}

type importLoansRequest struct {
	Loans []domain.LoanRecord `json:"loans"`
}

// ImportLoans replaces the portfolio's loan tape, or with ?mode=merge upserts
// into it. The body is either JSON ({"loans": [...]}) or, with Content-Type
// text/csv, a CSV loan tape.
// POST /api/portfolios/{id}/loans
func (h *PortfolioHandler) ImportLoans(w http.ResponseWriter, r *http.Request) {
	var loans []domain.LoanRecord
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "text/csv" {
		parsed, err := pipeline.ParseLoanTape(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeServiceError(w, r, h.logger, "import loans", err)
			return
		}
		loans = parsed
	} else {
		var req importLoansRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, r, h.logger, "import loans", err)
			return
		}
		loans = req.Loans
	}

	importFn := h.portfolios.ImportLoans
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "replace":
	case "merge":
		importFn = h.portfolios.MergeLoans
	default:
		writeError(w, http.StatusBadRequest, "mode must be replace or merge")
		return
	}

	p, err := importFn(r.Context(), pathParam(r, "id"), loans)
	if err != nil {
		writeServiceError(w, r, h.logger, "import loans", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// PoolMetrics returns the pool aggregates of the whole tape.
// GET /api/portfolios/{id}/pool
func (h *PortfolioHandler) PoolMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.portfolios.PoolMetrics(r.Context(), pathParam(r, "id"), nil)
	if err != nil {
		writeServiceError(w, r, h.logger, "pool metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// reportResponse carries the report and, when exported, its object path.
type reportResponse struct {
	domain.PortfolioReport
	ExportPath string `json:"export_path,omitempty"`
}

// Report computes the portfolio analytics report.
// GET /api/portfolios/{id}/report?scenario=base&periods=12&facility=5000000&export=true
func (h *PortfolioHandler) Report(w http.ResponseWriter, r *http.Request) {
	opts, err := reportOptions(r)
	if err != nil {
		writeServiceError(w, r, h.logger, "report", err)
		return
	}
	h.report(w, r, opts)
}

// FilteredReport computes the report for the loans selected by a pool
// filter in the body.
// POST /api/portfolios/{id}/report
func (h *PortfolioHandler) FilteredReport(w http.ResponseWriter, r *http.Request) {
	var opts domain.ReportOptions
	if err := decodeJSON(w, r, &opts); err != nil {
		writeServiceError(w, r, h.logger, "report", err)
		return
	}
	h.report(w, r, opts)
}

func (h *PortfolioHandler) report(w http.ResponseWriter, r *http.Request, opts domain.ReportOptions) {
	export := r.URL.Query().Get("export") == "true"
	if export && h.exporter == nil {
		writeError(w, http.StatusBadRequest, "report export is not configured")
		return
	}
	rep, err := h.portfolios.Report(r.Context(), pathParam(r, "id"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "report", err)
		return
	}
	resp := reportResponse{PortfolioReport: rep}
	if export {
		if resp.ExportPath, err = h.exporter.ExportReport(r.Context(), rep); err != nil {
			writeServiceError(w, r, h.logger, "export report", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func reportOptions(r *http.Request) (domain.ReportOptions, error) {
	periods, err := queryInt(r, "periods", 0)
	if err != nil {
		return domain.ReportOptions{}, err
	}
	facility, err := queryFloat(r, "facility", 0)
	if err != nil {
		return domain.ReportOptions{}, err
	}
	return domain.ReportOptions{
		Scenario:       r.URL.Query().Get("scenario"),
		Periods:        periods,
		FacilityAmount: facility,
	}, nil
}

// GetPolicy returns the portfolio's provisioning policy.
// GET /api/portfolios/{id}/provisioning
func (h *PortfolioHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.portfolios.Policy(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get policy", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type policyRequest struct {
	NBFI   domain.RuleSet `json:"nbfi"`
	Lender domain.RuleSet `json:"lender"`
}

// PutPolicy replaces both rule sets of the portfolio's policy.
// PUT /api/portfolios/{id}/provisioning
func (h *PortfolioHandler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "update policy", err)
		return
	}
	p, err := h.portfolios.UpdatePolicy(r.Context(), domain.ProvisioningPolicy{
		PortfolioID: pathParam(r, "id"),
		NBFI:        req.NBFI,
		Lender:      req.Lender,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "update policy", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
