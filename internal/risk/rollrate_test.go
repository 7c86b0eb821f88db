package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

func TestScenarioMatricesAreValidAndAbsorbing(t *testing.T) {
	for _, name := range ScenarioNames() {
		m, err := ScenarioMatrix(name)
		require.NoError(t, err, name)
		require.NoError(t, m.Validate(), name)
		assert.Equal(t, 1.0, m[domain.Bucket180Plus][domain.Bucket180Plus], name)
		for from := range m {
			var sum float64
			for _, p := range m[from] {
				sum += p
			}
			assert.InDelta(t, 1.0, sum, 1e-9, "%s row %s", name, domain.Bucket(from))
		}
	}
	_, err := ScenarioMatrix("apocalypse")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDistributionFromLoans(t *testing.T) {
	d, err := DistributionFromLoans(sampleBook())
	require.NoError(t, err)
	assert.Equal(t, domain.Distribution{100_000, 50_000, 40_000, 20_000, 10_000, 30_000}, d)
}

func TestProjectReturnsPeriodsPlusOne(t *testing.T) {
	start := domain.Distribution{1_000_000}
	snaps, err := Project(start, BaseMatrix(), 3)
	require.NoError(t, err)
	require.Len(t, snaps, 4)
	assert.Equal(t, start, snaps[0])

	// One step of the base matrix from an all-current pool.
	assert.InDelta(t, 940_000, snaps[1][domain.BucketCurrent], 1e-6)
	assert.InDelta(t, 60_000, snaps[1][domain.Bucket1To30], 1e-6)

	none, err := Project(start, BaseMatrix(), 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.Distribution{start}, none)
}

func TestProjectAbsorbingMassIsMonotone(t *testing.T) {
	start, err := DistributionFromLoans(sampleBook())
	require.NoError(t, err)

	for _, name := range ScenarioNames() {
		m, err := ScenarioMatrix(name)
		require.NoError(t, err)
		snaps, err := Project(start, m, 24)
		require.NoError(t, err)
		for k := 1; k < len(snaps); k++ {
			assert.GreaterOrEqual(t, snaps[k][domain.Bucket180Plus], snaps[k-1][domain.Bucket180Plus],
				"%s period %d", name, k)
		}
	}
}

func TestProjectConservesMassForStochasticRows(t *testing.T) {
	start, err := DistributionFromLoans(sampleBook())
	require.NoError(t, err)
	snaps, err := Project(start, StressMatrix(), 12)
	require.NoError(t, err)
	for _, s := range snaps {
		assert.InDelta(t, start.Total(), s.Total(), 1e-6)
	}
}

func TestProjectSubStochasticRowLeaksMass(t *testing.T) {
	var m TransitionMatrix
	m[domain.BucketCurrent][domain.BucketCurrent] = 0.5
	m[domain.Bucket180Plus][domain.Bucket180Plus] = 1
	snaps, err := Project(domain.Distribution{100}, m, 2)
	require.NoError(t, err)
	assert.InDelta(t, 25, snaps[2].Total(), 1e-9)
}

func TestProjectRejectsBadInput(t *testing.T) {
	_, err := Project(domain.Distribution{}, BaseMatrix(), -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	for _, periods := range []int{domain.MaxPeriods + 1, math.MaxInt} {
		_, err = Project(domain.Distribution{}, BaseMatrix(), periods)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "periods %d", periods)
	}
	got, err := Project(domain.Distribution{}, BaseMatrix(), domain.MaxPeriods)
	require.NoError(t, err)
	assert.Len(t, got, domain.MaxPeriods+1)

	over := BaseMatrix()
	over[domain.BucketCurrent][domain.Bucket1To30] = 0.2
	_, err = Project(domain.Distribution{}, over, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	neg := BaseMatrix()
	neg[domain.Bucket1To30][domain.Bucket180Plus] = -0.1
	_, err = Project(domain.Distribution{}, neg, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRoundProjection(t *testing.T) {
	snaps := []domain.Distribution{{100.4, 0.5}, {99.5}}
	rows := RoundProjection(snaps)
	require.Len(t, rows, 2)
	assert.Equal(t, "Current", rows[0].Period)
	assert.Equal(t, "Month 1", rows[1].Period)
	assert.Equal(t, 100.0, rows[0].Balances[domain.BucketCurrent])
	assert.Equal(t, 1.0, rows[0].Balances[domain.Bucket1To30])
	assert.Equal(t, 100.0, rows[1].Balances[domain.BucketCurrent])
}

func TestProjectionKeepsEmptyBuckets(t *testing.T) {
	rows, err := ProjectLoans([]domain.LoanRecord{{ID: "1", CurrentBalance: 1_000}}, BaseMatrix(), 2)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	raw, err := rows[0].Balances.MarshalJSON()
	require.NoError(t, err)
	for _, b := range domain.Buckets() {
		assert.Contains(t, string(raw), `"`+b.String()+`"`)
	}
}

func TestMatrixFromLabels(t *testing.T) {
	m, err := MatrixFromLabels(map[string]map[string]float64{
		"Current": {"Current": 0.9, "1-30": 0.1},
		"180+":    {"180+": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.9, m[domain.BucketCurrent][domain.BucketCurrent])
	assert.Equal(t, 1.0, m[domain.Bucket180Plus][domain.Bucket180Plus])

	_, err = MatrixFromLabels(map[string]map[string]float64{"Current": {"Current": 0.8, "1-30": 0.3}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
