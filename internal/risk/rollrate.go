package risk

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/money"
)

// rowTolerance absorbs float noise in rows that are meant to sum to 1.
const rowTolerance = 1e-9

// TransitionMatrix holds from-bucket → to-bucket migration probabilities.
// Rows may be sub-stochastic; the missing mass leaves the pool.
type TransitionMatrix [domain.NumBuckets][domain.NumBuckets]float64

// Scenario names accepted by ScenarioMatrix.
const (
	ScenarioBase   = "base"
	ScenarioStress = "stress"
	ScenarioSevere = "severe"
)

// BaseMatrix is the through-the-cycle migration matrix, with cure paths.
func BaseMatrix() TransitionMatrix {
	return TransitionMatrix{
		{0.94, 0.06, 0, 0, 0, 0},
		{0.45, 0.30, 0.25, 0, 0, 0},
		{0.10, 0.15, 0.40, 0.35, 0, 0},
		{0, 0.05, 0.10, 0.45, 0.40, 0},
		{0, 0, 0, 0.05, 0.35, 0.60},
		{0, 0, 0, 0, 0, 1},
	}
}

// StressMatrix shifts mass towards deeper delinquency.
func StressMatrix() TransitionMatrix {
	return TransitionMatrix{
		{0.90, 0.10, 0, 0, 0, 0},
		{0.30, 0.30, 0.40, 0, 0, 0},
		{0.05, 0.10, 0.35, 0.50, 0, 0},
		{0, 0, 0.05, 0.30, 0.65, 0},
		{0, 0, 0, 0, 0.25, 0.75},
		{0, 0, 0, 0, 0, 1},
	}
}

// SevereMatrix is the downturn case with almost no cures past 30 days.
func SevereMatrix() TransitionMatrix {
	return TransitionMatrix{
		{0.85, 0.15, 0, 0, 0, 0},
		{0.20, 0.25, 0.55, 0, 0, 0},
		{0, 0.05, 0.25, 0.70, 0, 0},
		{0, 0, 0, 0.20, 0.80, 0},
		{0, 0, 0, 0, 0.15, 0.85},
		{0, 0, 0, 0, 0, 1},
	}
}

// ScenarioMatrix returns the named built-in matrix.
func ScenarioMatrix(name string) (TransitionMatrix, error) {
	switch name {
	case ScenarioBase, "":
		return BaseMatrix(), nil
	case ScenarioStress:
		return StressMatrix(), nil
	case ScenarioSevere:
		return SevereMatrix(), nil
	default:
		return TransitionMatrix{}, fmt.Errorf("risk: unknown scenario %q: %w", name, domain.ErrInvalidInput)
	}
}

// MatrixFromLabels builds a matrix from label-keyed rows, e.g. decoded JSON
// or TOML. Absent cells are zero.
func MatrixFromLabels(rows map[string]map[string]float64) (TransitionMatrix, error) {
	var m TransitionMatrix
	for fromLabel, row := range rows {
		from, err := domain.ParseBucket(fromLabel)
		if err != nil {
			return TransitionMatrix{}, fmt.Errorf("risk: matrix row: %w", err)
		}
		for toLabel, p := range row {
			to, err := domain.ParseBucket(toLabel)
			if err != nil {
				return TransitionMatrix{}, fmt.Errorf("risk: matrix column: %w", err)
			}
			m[from][to] = p
		}
	}
	if err := m.Validate(); err != nil {
		return TransitionMatrix{}, err
	}
	return m, nil
}

// Validate rejects negative probabilities and rows summing above one.
func (m TransitionMatrix) Validate() error {
	var errs []error
	for from, row := range m {
		var sum float64
		for to, p := range row {
			if p < 0 {
				errs = append(errs, fmt.Errorf("risk: transition %s→%s is negative: %w",
					domain.Bucket(from), domain.Bucket(to), domain.ErrInvalidInput))
			}
			sum += p
		}
		if sum > 1+rowTolerance {
			errs = append(errs, fmt.Errorf("risk: row %s sums to %v: %w",
				domain.Bucket(from), sum, domain.ErrInvalidInput))
		}
	}
	return errors.Join(errs...)
}

// DistributionFromLoans sums current balance per bucket.
func DistributionFromLoans(loans []domain.LoanRecord) (domain.Distribution, error) {
	var d domain.Distribution
	buckets, err := classifyLoans(loans)
	if err != nil {
		return d, err
	}
	for i, l := range loans {
		d[buckets[i]] += l.CurrentBalance
	}
	return d, nil
}

// Step applies one period of migration.
func (m TransitionMatrix) Step(cur domain.Distribution) domain.Distribution {
	var next domain.Distribution
	for from, bal := range cur {
		if bal == 0 {
			continue
		}
		for to, p := range m[from] {
			next[to] += bal * p
		}
	}
	return next
}

// Project returns periods+1 distributions: the observed start followed by
// each projected period. Values are unrounded.
func Project(start domain.Distribution, m TransitionMatrix, periods int) ([]domain.Distribution, error) {
	if periods < 0 || periods > domain.MaxPeriods {
		return nil, fmt.Errorf("risk: project %d periods outside [0,%d]: %w", periods, domain.MaxPeriods, domain.ErrInvalidInput)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("risk: project: %w", err)
	}
	out := make([]domain.Distribution, 0, periods+1)
	out = append(out, start)
	cur := start
	for p := 0; p < periods; p++ {
		cur = m.Step(cur)
		out = append(out, cur)
	}
	return out, nil
}

// RoundProjection labels and rounds a projection for reporting. Period 0 is
// "Current" and period k is "Month k".
func RoundProjection(snapshots []domain.Distribution) []domain.ProjectionRow {
	rows := make([]domain.ProjectionRow, len(snapshots))
	for i, snap := range snapshots {
		label := "Current"
		if i > 0 {
			label = "Month " + strconv.Itoa(i)
		}
		var rounded domain.Distribution
		for b, v := range snap {
			rounded[b] = money.Round(v)
		}
		rows[i] = domain.ProjectionRow{Period: label, Balances: rounded}
	}
	return rows
}

// ProjectLoans is the convenience path from a loan tape to reported rows.
func ProjectLoans(loans []domain.LoanRecord, m TransitionMatrix, periods int) ([]domain.ProjectionRow, error) {
	start, err := DistributionFromLoans(loans)
	if err != nil {
		return nil, fmt.Errorf("risk: project loans: %w", err)
	}
	snaps, err := Project(start, m, periods)
	if err != nil {
		return nil, err
	}
	return RoundProjection(snaps), nil
}

// ScenarioNames lists the built-in matrices from mildest to harshest.
func ScenarioNames() []string {
	return []string{ScenarioBase, ScenarioStress, ScenarioSevere}
}
