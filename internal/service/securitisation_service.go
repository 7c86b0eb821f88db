package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/waterfall"
)

// PoolSource supplies the pool aggregates a structure is run against.
type PoolSource interface {
	PoolMetrics(ctx context.Context, portfolioID string, filter *domain.PoolFilter) (domain.PoolMetrics, error)
}

// EventSink receives run events for out-of-band delivery (chat alerts).
type EventSink interface {
	NotifyEvent(ctx context.Context, ev domain.RunEvent) error
}

// SecuritisationConfig holds the sweep defaults.
type SecuritisationConfig struct {
	LossRates    []float64
	PrepayRates  []float64
	Periods      int
	SweepWorkers int
	LockTTL      time.Duration
}

// SecuritisationDeps groups the collaborators of SecuritisationService.
// Everything except Structures, Runs and Pools is optional.
type SecuritisationDeps struct {
	Structures domain.StructureStore
	Runs       domain.RunStore
	Pools      PoolSource
	Cache      domain.GridCache
	Locks      domain.LockManager
	Bus        domain.SignalBus
	Exporter   domain.Exporter
	Audit      domain.AuditStore
	Sink       EventSink
}

// SecuritisationService manages structures and runs the waterfall and the
// stress grid against stored portfolios.
type SecuritisationService struct {
	deps   SecuritisationDeps
	cfg    SecuritisationConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewSecuritisationService creates a SecuritisationService.
func NewSecuritisationService(deps SecuritisationDeps, cfg SecuritisationConfig, logger *slog.Logger) *SecuritisationService {
	if cfg.Periods <= 0 {
		cfg.Periods = domain.DefaultPeriods
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &SecuritisationService{
		deps:   deps,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "securitisation_service")),
	}
}

// WaterfallRequest runs one scenario against a stored structure.
type WaterfallRequest struct {
	Scenario domain.WaterfallScenario `json:"scenario"`
	Filter   *domain.PoolFilter       `json:"filter,omitempty"`
}

// WaterfallRun is the outcome of RunWaterfall.
type WaterfallRun struct {
	Run        domain.RunRecord       `json:"run"`
	Input      domain.WaterfallInput  `json:"input"`
	Result     domain.WaterfallResult `json:"result"`
	ExportPath string                 `json:"export_path,omitempty"`
}

// GridRequest sweeps a stored structure. Empty lists use the configured
// defaults.
type GridRequest struct {
	LossRates   []float64          `json:"loss_rates,omitempty"`
	PrepayRates []float64          `json:"prepay_rates,omitempty"`
	Periods     int                `json:"periods,omitempty"`
	Filter      *domain.PoolFilter `json:"filter,omitempty"`
}

// GridRun is the outcome of a stress grid.
type GridRun struct {
	Run        domain.RunRecord             `json:"run"`
	Cells      []domain.GridCell            `json:"cells"`
	Summary    map[waterfall.GridStatus]int `json:"summary"`
	Cached     bool                         `json:"cached"`
	ExportPath string                       `json:"export_path,omitempty"`
}

// ---------------------------------------------------------------------------
// Structures
// ---------------------------------------------------------------------------

// CreateStructure validates st and stores it as a draft under portfolioID.
func (s *SecuritisationService) CreateStructure(ctx context.Context, portfolioID string, st domain.SecuritisationStructure) (domain.SecuritisationStructure, error) {
	if portfolioID == "" {
		return domain.SecuritisationStructure{}, fmt.Errorf("securitisation_service: create structure: empty portfolio id: %w", domain.ErrInvalidInput)
	}
	if err := waterfall.ValidateStructure(st); err != nil {
		return domain.SecuritisationStructure{}, fmt.Errorf("securitisation_service: create structure: %w", err)
	}
	now := s.now()
	st.ID = uuid.NewString()
	st.PortfolioID = portfolioID
	st.Finalised = false
	st.FinalisedAt = nil
	st.CreatedAt = now
	st.UpdatedAt = now
	if err := s.deps.Structures.Create(ctx, st); err != nil {
		return domain.SecuritisationStructure{}, fmt.Errorf("securitisation_service: create structure: %w", err)
	}
	s.logger.InfoContext(ctx, "structure created",
		slog.String("structure_id", st.ID),
		slog.String("portfolio_id", portfolioID),
	)
	return st, nil
}

// GetStructure returns a structure by id.
func (s *SecuritisationService) GetStructure(ctx context.Context, id string) (domain.SecuritisationStructure, error) {
	st, err := s.deps.Structures.GetByID(ctx, id)
	if err != nil {
		return domain.SecuritisationStructure{}, fmt.Errorf("securitisation_service: get structure %s: %w", id, err)
	}
	return st, nil
}

// ListStructures returns a portfolio's structures.
func (s *SecuritisationService) ListStructures(ctx context.Context, portfolioID string) ([]domain.SecuritisationStructure, error) {
	out, err := s.deps.Structures.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("securitisation_service: list structures %s: %w", portfolioID, err)
	}
	return out, nil
}

// UpdateStructure replaces the tranche parameters of a draft structure.
func (s *SecuritisationService) UpdateStructure(ctx context.Context, id string, upd domain.SecuritisationStructure) (domain.SecuritisationStructure, error) {
	st, err := s.GetStructure(ctx, id)
	if err != nil {
		return domain.SecuritisationStructure{}, err
	}
	if st.Finalised {
		return domain.SecuritisationStructure{}, fmt.Errorf("securitisation_service: update structure %s: %w", id, domain.ErrStructureFinalised)
	}
	if err := waterfall.ValidateStructure(upd); err != nil {
		return domain.SecuritisationStructure{}, fmt.Errorf("securitisation_service: update structure %s: %w", id, err)
	}
	st.SeniorPct = upd.SeniorPct
	st.MezzaninePct = upd.MezzaninePct
	st.EquityPct = upd.EquityPct
	st.OverCollateralisationPct = upd.OverCollateralisationPct
	st.SeniorCoupon = upd.SeniorCoupon
	st.MezzanineCoupon = upd.MezzanineCoupon
	st.UpdatedAt = s.now()
	if err := s.deps.Structures.Update(ctx, st); err != nil {
		return domain.SecuritisationStructure{}, fmt.Errorf("securitisation_service: update structure %s: %w", id, err)
	}
	return st, nil
}

// FinaliseStructure freezes a structure. The structure lock keeps two
// callers from finalising concurrently.
func (s *SecuritisationService) FinaliseStructure(ctx context.Context, id string) (domain.SecuritisationStructure, error) {
	if s.deps.Locks != nil {
		unlock, err := s.deps.Locks.Acquire(ctx, "structure:"+id, s.cfg.LockTTL)
		if err != nil {
			return domain.SecuritisationStructure{}, fmt.Errorf("securitisation_service: finalise %s: %w", id, err)
		}
		defer unlock()
	}

	st, err := s.GetStructure(ctx, id)
	if err != nil {
		return domain.SecuritisationStructure{}, err
	}
	if st.Finalised {
		return domain.SecuritisationStructure{}, fmt.Errorf("securitisation_service: finalise %s: %w", id, domain.ErrStructureFinalised)
	}
	at := s.now()
	if err := s.deps.Structures.Finalise(ctx, id, at); err != nil {
		return domain.SecuritisationStructure{}, fmt.Errorf("securitisation_service: finalise %s: %w", id, err)
	}
	st.Finalised = true
	st.FinalisedAt = &at
	st.UpdatedAt = at

	if s.deps.Audit != nil {
		if err := s.deps.Audit.Log(ctx, domain.AuditStructureFinalised, map[string]any{
			"structure_id": id,
			"portfolio_id": st.PortfolioID,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	s.logger.InfoContext(ctx, "structure finalised", slog.String("structure_id", id))
	return st, nil
}

// ---------------------------------------------------------------------------
// Stateless engine calls
// ---------------------------------------------------------------------------

// Simulate runs one waterfall on caller-supplied inputs. Zero periods means
// the configured default.
func (s *SecuritisationService) Simulate(in domain.WaterfallInput) (domain.WaterfallResult, error) {
	if in.Scenario.Periods == 0 {
		in.Scenario.Periods = s.cfg.Periods
	}
	res, err := waterfall.Simulate(in)
	if err != nil {
		return domain.WaterfallResult{}, fmt.Errorf("securitisation_service: simulate: %w", err)
	}
	return res, nil
}

// Sweep runs the stress grid on caller-supplied inputs, reading through the
// grid cache when one is configured. The bool reports a cache hit.
func (s *SecuritisationService) Sweep(ctx context.Context, base domain.WaterfallInput, lossRates, prepayRates []float64) ([]domain.GridCell, bool, error) {
	if len(lossRates) == 0 {
		lossRates = s.cfg.LossRates
	}
	if len(prepayRates) == 0 {
		prepayRates = s.cfg.PrepayRates
	}
	if base.Scenario.Periods == 0 {
		base.Scenario.Periods = s.cfg.Periods
	}

	var key string
	if s.deps.Cache != nil {
		k, err := waterfall.SweepKey(base, lossRates, prepayRates)
		if err != nil {
			return nil, false, fmt.Errorf("securitisation_service: sweep: %w", err)
		}
		key = k
		cells, err := s.deps.Cache.Get(ctx, key)
		switch {
		case err == nil:
			return cells, true, nil
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "grid cache get failed", slog.String("error", err.Error()))
		}
	}

	cells, err := waterfall.SweepWithLimit(ctx, base, lossRates, prepayRates, s.cfg.SweepWorkers)
	if err != nil {
		return nil, false, fmt.Errorf("securitisation_service: sweep: %w", err)
	}

	if key != "" {
		if err := s.deps.Cache.Set(ctx, key, cells); err != nil {
			s.logger.WarnContext(ctx, "grid cache set failed", slog.String("error", err.Error()))
		}
	}
	return cells, false, nil
}

// ---------------------------------------------------------------------------
// Runs against stored structures
// ---------------------------------------------------------------------------

// baseInput assembles the waterfall input for a stored structure.
func (s *SecuritisationService) baseInput(ctx context.Context, structureID string, filter *domain.PoolFilter) (domain.SecuritisationStructure, domain.WaterfallInput, error) {
	st, err := s.GetStructure(ctx, structureID)
	if err != nil {
		return st, domain.WaterfallInput{}, err
	}
	pool, err := s.deps.Pools.PoolMetrics(ctx, st.PortfolioID, filter)
	if err != nil {
		return st, domain.WaterfallInput{}, fmt.Errorf("securitisation_service: pool for %s: %w", structureID, err)
	}
	return st, domain.WaterfallInput{
		PoolBalance: pool.TotalBalance,
		AvgRate:     pool.AvgRate,
		Structure:   st,
	}, nil
}

// RunWaterfall simulates one scenario against a stored structure, persists
// the run, publishes it and exports it when an exporter is configured.
func (s *SecuritisationService) RunWaterfall(ctx context.Context, structureID string, req WaterfallRequest) (WaterfallRun, error) {
	st, in, err := s.baseInput(ctx, structureID, req.Filter)
	if err != nil {
		return WaterfallRun{}, err
	}
	in.Scenario = req.Scenario
	if in.Scenario.Periods == 0 {
		in.Scenario.Periods = s.cfg.Periods
	}
	res, err := s.Simulate(in)
	if err != nil {
		return WaterfallRun{}, err
	}

	run, err := s.newRun(domain.RunWaterfall, st, in, res, WaterfallSummary(res))
	if err != nil {
		return WaterfallRun{}, err
	}
	if err := s.deps.Runs.Insert(ctx, run); err != nil {
		return WaterfallRun{}, fmt.Errorf("securitisation_service: store run: %w", err)
	}

	out := WaterfallRun{Run: run, Input: in, Result: res}
	if s.deps.Exporter != nil {
		if path, err := s.deps.Exporter.ExportRun(ctx, run); err != nil {
			s.logger.WarnContext(ctx, "export run failed", slog.String("run_id", run.ID), slog.String("error", err.Error()))
		} else {
			out.ExportPath = path
		}
	}

	s.emit(ctx, run, domain.ChannelRunCompleted)
	if waterfall.Classify(res) == waterfall.GridSeniorImpaired {
		s.emit(ctx, run, domain.ChannelAlertSeniorImpaired)
	}
	return out, nil
}

// RunStressGrid sweeps a stored structure, persists the run and raises an
// alert when any cell impairs the senior tranche.
func (s *SecuritisationService) RunStressGrid(ctx context.Context, structureID string, req GridRequest) (GridRun, error) {
	st, in, err := s.baseInput(ctx, structureID, req.Filter)
	if err != nil {
		return GridRun{}, err
	}
	in.Scenario.Periods = req.Periods
	cells, cached, err := s.Sweep(ctx, in, req.LossRates, req.PrepayRates)
	if err != nil {
		return GridRun{}, err
	}
	summary := waterfall.Summary(cells)

	params := struct {
		Input       domain.WaterfallInput `json:"input"`
		LossRates   []float64             `json:"loss_rates"`
		PrepayRates []float64             `json:"prepay_rates"`
	}{in, gridAxis(cells, true), gridAxis(cells, false)}
	run, err := s.newRun(domain.RunStressGrid, st, params, cells, GridSummary(summary))
	if err != nil {
		return GridRun{}, err
	}
	if err := s.deps.Runs.Insert(ctx, run); err != nil {
		return GridRun{}, fmt.Errorf("securitisation_service: store run: %w", err)
	}

	out := GridRun{Run: run, Cells: cells, Summary: summary, Cached: cached}
	if s.deps.Exporter != nil {
		if path, err := s.deps.Exporter.ExportGrid(ctx, run.ID, cells); err != nil {
			s.logger.WarnContext(ctx, "export grid failed", slog.String("run_id", run.ID), slog.String("error", err.Error()))
		} else {
			out.ExportPath = path
		}
	}

	s.emit(ctx, run, domain.ChannelRunCompleted)
	if summary[waterfall.GridSeniorImpaired] > 0 {
		s.emit(ctx, run, domain.ChannelAlertSeniorImpaired)
	}
	return out, nil
}

// GetRun returns a stored run.
func (s *SecuritisationService) GetRun(ctx context.Context, id string) (domain.RunRecord, error) {
	r, err := s.deps.Runs.GetByID(ctx, id)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("securitisation_service: get run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns the newest runs.
func (s *SecuritisationService) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	out, err := s.deps.Runs.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("securitisation_service: list runs: %w", err)
	}
	return out, nil
}

func (s *SecuritisationService) newRun(kind domain.RunKind, st domain.SecuritisationStructure, params, result any, summary string) (domain.RunRecord, error) {
	p, err := json.Marshal(params)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("securitisation_service: marshal params: %w", err)
	}
	r, err := json.Marshal(result)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("securitisation_service: marshal result: %w", err)
	}
	return domain.RunRecord{
		ID:          uuid.NewString(),
		PortfolioID: st.PortfolioID,
		StructureID: st.ID,
		Kind:        kind,
		Summary:     summary,
		Params:      p,
		Result:      r,
		CreatedAt:   s.now(),
	}, nil
}

// emit publishes a run event on the bus and hands it to the sink. Delivery
// failures are logged; the run itself has already been stored.
func (s *SecuritisationService) emit(ctx context.Context, run domain.RunRecord, channel string) {
	ev := domain.RunEvent{
		Type:        channel,
		RunID:       run.ID,
		Kind:        run.Kind,
		PortfolioID: run.PortfolioID,
		StructureID: run.StructureID,
		Summary:     run.Summary,
		At:          s.now(),
	}
	if s.deps.Bus != nil {
		if err := s.deps.Bus.PublishEvent(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "publish event failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.deps.Sink != nil {
		if err := s.deps.Sink.NotifyEvent(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "notify event failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}
}

// WaterfallSummary is the one-line description stored with a waterfall run.
func WaterfallSummary(r domain.WaterfallResult) string {
	parts := make([]string, 0, len(r.Tranches))
	for _, t := range r.Tranches {
		if t.Tranche == domain.TrancheEquity {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s", strings.ToLower(string(t.Tranche)), t.Status))
	}
	return fmt.Sprintf("loss %g%% prepay %g%%: %s, shortfall %.0f",
		r.LossRate, r.PrepayRate, strings.Join(parts, ", "), r.TotalShortfall())
}

// GridSummary is the one-line description stored with a stress grid run.
func GridSummary(counts map[waterfall.GridStatus]int) string {
	return fmt.Sprintf("%d all ok, %d mezzanine stressed, %d senior impaired",
		counts[waterfall.GridAllOK], counts[waterfall.GridMezzanineStressed], counts[waterfall.GridSeniorImpaired])
}

// gridAxis recovers the distinct loss (or prepay) rates of a grid in order.
func gridAxis(cells []domain.GridCell, loss bool) []float64 {
	var out []float64
	seen := make(map[float64]bool)
	for _, c := range cells {
		v := c.PrepayRate
		if loss {
			v = c.LossRate
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
