package risk

import (
	"fmt"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// Stage1Ratio is the fixed share of lifetime ECL reported as 12-month ECL.
const Stage1Ratio = 0.12

// Engine evaluates fixed-table loss measures. The loss table is injected so
// alternative severities can be used without touching package state.
type Engine struct {
	lossRates LossRateTable
}

// NewEngine creates an Engine over rates.
func NewEngine(rates LossRateTable) (*Engine, error) {
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	return &Engine{lossRates: rates}, nil
}

// LossRates returns the table the engine was built with.
func (e *Engine) LossRates() LossRateTable {
	return e.lossRates
}

// EstimateLoss returns Σ balance × severity and its ratio to total balance.
func (e *Engine) EstimateLoss(loans []domain.LoanRecord) (domain.LossEstimate, error) {
	amount, total, err := e.expectedLoss(loans)
	if err != nil {
		return domain.LossEstimate{}, fmt.Errorf("risk: estimate loss: %w", err)
	}
	var rate float64
	if total > 0 {
		rate = amount / total
	}
	return domain.LossEstimate{Amount: amount, Rate: rate}, nil
}

// ComputeECL returns lifetime ECL from the loss table and a 12-month figure
// taken as Stage1Ratio of it.
func (e *Engine) ComputeECL(loans []domain.LoanRecord) (domain.ECL, error) {
	lifetime, total, err := e.expectedLoss(loans)
	if err != nil {
		return domain.ECL{}, fmt.Errorf("risk: compute ecl: %w", err)
	}
	return domain.ECL{
		ECL12m:       lifetime * Stage1Ratio,
		ECLLifetime:  lifetime,
		TotalBalance: total,
	}, nil
}

func (e *Engine) expectedLoss(loans []domain.LoanRecord) (amount, total float64, err error) {
	buckets, err := classifyLoans(loans)
	if err != nil {
		return 0, 0, err
	}
	for i, l := range loans {
		total += l.CurrentBalance
		amount += l.CurrentBalance * e.lossRates.Rate(buckets[i])
	}
	return amount, total, nil
}
