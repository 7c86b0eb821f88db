package risk

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// FinancialSummary aggregates loss, recovery and overdue figures. Provisions
// use the flat lender rates per bucket.
func FinancialSummary(loans []domain.LoanRecord) (domain.FinancialSummary, error) {
	buckets, err := classifyLoans(loans)
	if err != nil {
		return domain.FinancialSummary{}, fmt.Errorf("risk: financial summary: %w", err)
	}
	provRates := LenderProvisionRates()

	var s domain.FinancialSummary
	var weightedRate float64
	for i, l := range loans {
		s.TotalBalance += l.CurrentBalance
		s.Recovery += l.RecoveryAfterWriteOff
		s.TotalOverdue += l.TotalOverdue
		s.Provisions += l.CurrentBalance * provRates.Rate(buckets[i])
		weightedRate += l.InterestRate * l.CurrentBalance
		if l.WrittenOff {
			s.GrossLoss += l.CurrentBalance
			s.WriteOffCount++
		}
	}
	s.NetLoss = s.GrossLoss - s.Recovery
	if s.TotalBalance > 0 {
		s.AvgInterest = weightedRate / s.TotalBalance
		s.OverdueRatio = s.TotalOverdue / s.TotalBalance * 100
	}
	if len(loans) > 0 {
		s.WriteOffRate = float64(s.WriteOffCount) / float64(len(loans)) * 100
	}
	if s.GrossLoss > 0 {
		s.RecoveryRate = s.Recovery / s.GrossLoss * 100
	}
	return s, nil
}

// ComputeCureRate reports the share of delinquent balance still within 30
// days past due.
func ComputeCureRate(loans []domain.LoanRecord) (domain.CureRate, error) {
	var c domain.CureRate
	for _, l := range loans {
		if l.DPD < 0 {
			return domain.CureRate{}, fmt.Errorf("risk: cure rate: loan %q dpd %d: %w", l.ID, l.DPD, domain.ErrInvalidInput)
		}
		if l.DPD == 0 {
			continue
		}
		c.DelinquentBalance += l.CurrentBalance
		if l.DPD <= 30 {
			c.CuredBalance += l.CurrentBalance
		}
	}
	if c.DelinquentBalance > 0 {
		c.Rate = c.CuredBalance / c.DelinquentBalance * 100
	}
	return c, nil
}

// ComputeCNL is (charge-offs − recoveries) / origination volume, in percent.
func ComputeCNL(loans []domain.LoanRecord) domain.CNLSummary {
	var c domain.CNLSummary
	for _, l := range loans {
		c.OriginationVolume += l.DisbursedAmount
		c.Recoveries += l.RecoveryAfterWriteOff
		if l.WrittenOff {
			c.ChargeOffs += l.CurrentBalance
		}
	}
	if c.OriginationVolume > 0 {
		c.CNL = (c.ChargeOffs - c.Recoveries) / c.OriginationVolume * 100
	}
	return c
}

// ComputeCDR annualises the share of pool balance more than 90 days past due
// and not yet written off: CDR = 1 − (1 − monthly)^12.
func ComputeCDR(loans []domain.LoanRecord) (domain.CDRSummary, error) {
	var c domain.CDRSummary
	for _, l := range loans {
		if l.DPD < 0 {
			return domain.CDRSummary{}, fmt.Errorf("risk: cdr: loan %q dpd %d: %w", l.ID, l.DPD, domain.ErrInvalidInput)
		}
		c.PoolBalance += l.CurrentBalance
		if l.DPD > 90 && !l.WrittenOff {
			c.NewDefaults += l.CurrentBalance
		}
	}
	var monthly float64
	if c.PoolBalance > 0 {
		monthly = c.NewDefaults / c.PoolBalance
	}
	c.MonthlyDefault = monthly * 100
	c.CDR = (1 - math.Pow(1-monthly, 12)) * 100
	return c, nil
}
