package waterfall

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// DefaultLossRates is the default annual loss sweep, in percent.
func DefaultLossRates() []float64 { return []float64{3, 6, 9, 12, 15} }

// DefaultPrepayRates is the default annual prepayment sweep, in percent.
func DefaultPrepayRates() []float64 { return []float64{0, 10, 20, 30} }

// GridStatus is the heat-map reduction of one grid cell.
type GridStatus string

const (
	GridAllOK             GridStatus = "All OK"
	GridMezzanineStressed GridStatus = "Mezzanine stressed"
	GridSeniorImpaired    GridStatus = "Senior impaired"
)

// Classify reduces a result to its senior/mezzanine heat-map status. Any
// senior shortfall outranks mezzanine stress.
func Classify(r domain.WaterfallResult) GridStatus {
	if t, ok := r.Tranche(domain.TrancheSenior); ok && t.Status != domain.TrancheOK {
		return GridSeniorImpaired
	}
	if t, ok := r.Tranche(domain.TrancheMezzanine); ok && t.Status != domain.TrancheOK {
		return GridMezzanineStressed
	}
	return GridAllOK
}

// Sweep runs Simulate for every (loss, prepay) pair of base with its
// scenario rates replaced. Empty lists fall back to the defaults. Cells are
// returned loss-major, prepay-minor. Inputs are validated up front so an
// invalid pair rejects the whole sweep before any simulation starts.
func Sweep(ctx context.Context, base domain.WaterfallInput, lossRates, prepayRates []float64) ([]domain.GridCell, error) {
	return SweepWithLimit(ctx, base, lossRates, prepayRates, runtime.GOMAXPROCS(0))
}

// SweepWithLimit is Sweep with at most limit simulations in flight.
func SweepWithLimit(ctx context.Context, base domain.WaterfallInput, lossRates, prepayRates []float64, limit int) ([]domain.GridCell, error) {
	if len(lossRates) == 0 {
		lossRates = DefaultLossRates()
	}
	if len(prepayRates) == 0 {
		prepayRates = DefaultPrepayRates()
	}
	if base.Scenario.Periods == 0 {
		base.Scenario.Periods = domain.DefaultPeriods
	}
	if n := len(lossRates) * len(prepayRates); n > domain.MaxGridCells {
		return nil, fmt.Errorf("waterfall: sweep of %d cells exceeds %d: %w", n, domain.MaxGridCells, domain.ErrInvalidInput)
	}

	inputs := make([]domain.WaterfallInput, 0, len(lossRates)*len(prepayRates))
	var errs []error
	for _, lr := range lossRates {
		for _, pr := range prepayRates {
			in := base
			in.Scenario.LossRatePct = lr
			in.Scenario.PrepayRatePct = pr
			if err := Validate(in); err != nil {
				errs = append(errs, fmt.Errorf("waterfall: sweep cell loss=%v prepay=%v: %w", lr, pr, err))
				continue
			}
			inputs = append(inputs, in)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	cells := make([]domain.GridCell, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := Simulate(in)
			if err != nil {
				return err
			}
			cells[i] = domain.GridCell{
				LossRate:   in.Scenario.LossRatePct,
				PrepayRate: in.Scenario.PrepayRatePct,
				Result:     res,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("waterfall: sweep: %w", err)
	}
	return cells, nil
}

// SweepKey fingerprints a sweep's inputs for caching. Identity fields and
// timestamps on the structure do not affect the key.
func SweepKey(base domain.WaterfallInput, lossRates, prepayRates []float64) (string, error) {
	if len(lossRates) == 0 {
		lossRates = DefaultLossRates()
	}
	if len(prepayRates) == 0 {
		prepayRates = DefaultPrepayRates()
	}
	if base.Scenario.Periods == 0 {
		base.Scenario.Periods = domain.DefaultPeriods
	}
	s := base.Structure
	payload := struct {
		Pool    float64   `json:"pool"`
		Rate    float64   `json:"rate"`
		Periods int       `json:"periods"`
		Tranche []float64 `json:"tranche"`
		Loss    []float64 `json:"loss"`
		Prepay  []float64 `json:"prepay"`
	}{
		Pool:    base.PoolBalance,
		Rate:    base.AvgRate,
		Periods: base.Scenario.Periods,
		Tranche: []float64{s.SeniorPct, s.MezzaninePct, s.EquityPct, s.OverCollateralisationPct, s.SeniorCoupon, s.MezzanineCoupon},
		Loss:    lossRates,
		Prepay:  prepayRates,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("waterfall: sweep key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Summary counts grid cells per status.
func Summary(cells []domain.GridCell) map[GridStatus]int {
	out := map[GridStatus]int{GridAllOK: 0, GridMezzanineStressed: 0, GridSeniorImpaired: 0}
	for _, c := range cells {
		out[Classify(c.Result)]++
	}
	return out
}
