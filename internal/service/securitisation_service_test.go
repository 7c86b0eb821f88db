package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/waterfall"
)

type staticPool struct {
	m   domain.PoolMetrics
	err error
}

func (p staticPool) PoolMetrics(context.Context, string, *domain.PoolFilter) (domain.PoolMetrics, error) {
	return p.m, p.err
}

func draft() domain.SecuritisationStructure {
	return domain.SecuritisationStructure{
		SeniorPct: 70, MezzaninePct: 20, EquityPct: 10,
		OverCollateralisationPct: 10, SeniorCoupon: 8, MezzanineCoupon: 14,
	}
}

type secFixture struct {
	svc        *SecuritisationService
	structures *memStructures
	runs       *memRuns
	cache      *memGridCache
	locks      *memLocks
	bus        *memBus
	sink       *memSink
	audit      *memAudit
	exporter   *memExporter
}

func newSecFixture(t *testing.T) *secFixture {
	t.Helper()
	f := &secFixture{
		structures: newMemStructures(),
		runs:       &memRuns{},
		cache:      newMemGridCache(),
		locks:      newMemLocks(),
		bus:        &memBus{},
		sink:       &memSink{},
		audit:      &memAudit{},
		exporter:   &memExporter{},
	}
	f.svc = NewSecuritisationService(SecuritisationDeps{
		Structures: f.structures,
		Runs:       f.runs,
		Pools:      staticPool{m: domain.PoolMetrics{TotalBalance: 100_000_000, AvgRate: 15}},
		Cache:      f.cache,
		Locks:      f.locks,
		Bus:        f.bus,
		Exporter:   f.exporter,
		Audit:      f.audit,
		Sink:       f.sink,
	}, SecuritisationConfig{
		LossRates:    waterfall.DefaultLossRates(),
		PrepayRates:  waterfall.DefaultPrepayRates(),
		SweepWorkers: 2,
	}, discardLogger())
	return f
}

func TestStructureLifecycle(t *testing.T) {
	f := newSecFixture(t)
	ctx := context.Background()

	st, err := f.svc.CreateStructure(ctx, "pf", draft())
	require.NoError(t, err)
	assert.NotEmpty(t, st.ID)
	assert.Equal(t, "pf", st.PortfolioID)
	assert.False(t, st.Finalised)

	upd := draft()
	upd.SeniorPct, upd.MezzaninePct = 75, 15
	st, err = f.svc.UpdateStructure(ctx, st.ID, upd)
	require.NoError(t, err)
	assert.Equal(t, 75.0, st.SeniorPct)

	list, err := f.svc.ListStructures(ctx, "pf")
	require.NoError(t, err)
	require.Len(t, list, 1)

	fin, err := f.svc.FinaliseStructure(ctx, st.ID)
	require.NoError(t, err)
	assert.True(t, fin.Finalised)
	require.NotNil(t, fin.FinalisedAt)
	assert.Equal(t, []string{"structure:" + st.ID}, f.locks.keys)
	assert.Empty(t, f.locks.held, "lock released")
	assert.Equal(t, []string{domain.AuditStructureFinalised}, f.audit.events)

	_, err = f.svc.UpdateStructure(ctx, st.ID, draft())
	assert.ErrorIs(t, err, domain.ErrStructureFinalised)
	_, err = f.svc.FinaliseStructure(ctx, st.ID)
	assert.ErrorIs(t, err, domain.ErrStructureFinalised)
}

func TestCreateStructureValidates(t *testing.T) {
	f := newSecFixture(t)
	bad := draft()
	bad.EquityPct = 20
	_, err := f.svc.CreateStructure(context.Background(), "pf", bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.CreateStructure(context.Background(), "", draft())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, f.structures.byID)
}

func TestFinaliseStructureLockHeld(t *testing.T) {
	f := newSecFixture(t)
	ctx := context.Background()
	st, err := f.svc.CreateStructure(ctx, "pf", draft())
	require.NoError(t, err)

	unlock, err := f.locks.Acquire(ctx, "structure:"+st.ID, 0)
	require.NoError(t, err)
	defer unlock()

	_, err = f.svc.FinaliseStructure(ctx, st.ID)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestGetStructureNotFound(t *testing.T) {
	f := newSecFixture(t)
	_, err := f.svc.GetStructure(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSimulateDefaultsPeriods(t *testing.T) {
	f := newSecFixture(t)
	in := domain.WaterfallInput{PoolBalance: 100_000_000, AvgRate: 15, Structure: draft()}
	res, err := f.svc.Simulate(in)
	require.NoError(t, err)

	in.Scenario.Periods = 12
	want, err := waterfall.Simulate(in)
	require.NoError(t, err)
	assert.Equal(t, want, res)

	in.Scenario.Periods = -1
	_, err = f.svc.Simulate(in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSweepReadsThroughCache(t *testing.T) {
	f := newSecFixture(t)
	ctx := context.Background()
	base := domain.WaterfallInput{PoolBalance: 100_000_000, AvgRate: 15, Structure: draft()}

	cells, cached, err := f.svc.Sweep(ctx, base, nil, nil)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Len(t, cells, 20)
	assert.Equal(t, 1, f.cache.sets)

	again, cached, err := f.svc.Sweep(ctx, base, nil, nil)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, cells, again)
	assert.Equal(t, 1, f.cache.sets)

	_, _, err = f.svc.Sweep(ctx, base, []float64{120}, []float64{0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRunWaterfallPersistsAndPublishes(t *testing.T) {
	f := newSecFixture(t)
	ctx := context.Background()
	st, err := f.svc.CreateStructure(ctx, "pf", draft())
	require.NoError(t, err)

	out, err := f.svc.RunWaterfall(ctx, st.ID, WaterfallRequest{
		Scenario: domain.WaterfallScenario{LossRatePct: 6, PrepayRatePct: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 12, out.Input.Scenario.Periods)
	assert.Equal(t, domain.RunWaterfall, out.Run.Kind)
	assert.Equal(t, "pf", out.Run.PortfolioID)
	assert.Equal(t, st.ID, out.Run.StructureID)
	assert.Equal(t, "reports/"+out.Run.ID+".json", out.ExportPath)
	assert.Contains(t, out.Run.Summary, "senior ok")

	stored, err := f.svc.GetRun(ctx, out.Run.ID)
	require.NoError(t, err)
	var res domain.WaterfallResult
	require.NoError(t, json.Unmarshal(stored.Result, &res))
	assert.Equal(t, out.Result, res)

	assert.Equal(t, []string{domain.ChannelRunCompleted}, f.bus.types())
	require.Len(t, f.sink.events, 1)
	assert.Equal(t, out.Run.ID, f.sink.events[0].RunID)
}

func TestRunWaterfallAlertsOnSeniorImpairment(t *testing.T) {
	f := newSecFixture(t)
	ctx := context.Background()
	st, err := f.svc.CreateStructure(ctx, "pf", draft())
	require.NoError(t, err)

	out, err := f.svc.RunWaterfall(ctx, st.ID, WaterfallRequest{
		Scenario: domain.WaterfallScenario{LossRatePct: 50, Periods: 12},
	})
	require.NoError(t, err)
	assert.Equal(t, waterfall.GridSeniorImpaired, waterfall.Classify(out.Result))
	assert.Equal(t, []string{domain.ChannelRunCompleted, domain.ChannelAlertSeniorImpaired}, f.bus.types())
}

func TestRunWaterfallSinkFailureDoesNotFailRun(t *testing.T) {
	f := newSecFixture(t)
	f.sink.err = errors.New("telegram down")
	ctx := context.Background()
	st, err := f.svc.CreateStructure(ctx, "pf", draft())
	require.NoError(t, err)

	_, err = f.svc.RunWaterfall(ctx, st.ID, WaterfallRequest{})
	require.NoError(t, err)
	assert.Len(t, f.runs.runs, 1)
}

func TestRunWaterfallPoolError(t *testing.T) {
	f := newSecFixture(t)
	ctx := context.Background()
	st, err := f.svc.CreateStructure(ctx, "pf", draft())
	require.NoError(t, err)

	f.svc.deps.Pools = staticPool{err: domain.ErrNotFound}
	_, err = f.svc.RunWaterfall(ctx, st.ID, WaterfallRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.runs.runs)
}

func TestRunStressGrid(t *testing.T) {
	f := newSecFixture(t)
	ctx := context.Background()
	st, err := f.svc.CreateStructure(ctx, "pf", draft())
	require.NoError(t, err)

	out, err := f.svc.RunStressGrid(ctx, st.ID, GridRequest{LossRates: []float64{3, 50}, PrepayRates: []float64{0, 20}})
	require.NoError(t, err)
	assert.Len(t, out.Cells, 4)
	assert.False(t, out.Cached)
	assert.Equal(t, 4, out.Summary[waterfall.GridAllOK]+out.Summary[waterfall.GridMezzanineStressed]+out.Summary[waterfall.GridSeniorImpaired])
	assert.Positive(t, out.Summary[waterfall.GridSeniorImpaired])
	assert.Equal(t, domain.RunStressGrid, out.Run.Kind)
	assert.Equal(t, []string{out.Run.ID}, f.exporter.grids)

	var params struct {
		LossRates   []float64 `json:"loss_rates"`
		PrepayRates []float64 `json:"prepay_rates"`
	}
	require.NoError(t, json.Unmarshal(out.Run.Params, &params))
	assert.Equal(t, []float64{3, 50}, params.LossRates)
	assert.Equal(t, []float64{0, 20}, params.PrepayRates)
	assert.Contains(t, f.bus.types(), domain.ChannelAlertSeniorImpaired)

	again, err := f.svc.RunStressGrid(ctx, st.ID, GridRequest{LossRates: []float64{3, 50}, PrepayRates: []float64{0, 20}})
	require.NoError(t, err)
	assert.True(t, again.Cached)

	recent, err := f.svc.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, again.Run.ID, recent[0].ID)
}

func TestGridSummary(t *testing.T) {
	s := GridSummary(map[waterfall.GridStatus]int{
		waterfall.GridAllOK: 12, waterfall.GridMezzanineStressed: 5, waterfall.GridSeniorImpaired: 3,
	})
	assert.Equal(t, "12 all ok, 5 mezzanine stressed, 3 senior impaired", s)
}
