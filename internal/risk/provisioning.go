package risk

import (
	"errors"
	"fmt"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/money"
)

// DefaultNBFIRules is the originator's standard provisioning policy.
func DefaultNBFIRules() domain.RuleSet {
	return domain.RuleSet{
		{Class: domain.ClassNormal, DPDMin: 0, DPDMax: 30, ProvisionPercent: 1},
		{Class: domain.ClassWatch, DPDMin: 31, DPDMax: 60, ProvisionPercent: 5},
		{Class: domain.ClassSubstandard, DPDMin: 61, DPDMax: 90, ProvisionPercent: 25},
		{Class: domain.ClassDoubtful, DPDMin: 91, DPDMax: 180, ProvisionPercent: 50},
		{Class: domain.ClassLoss, DPDMin: 181, DPDMax: domain.DPDSentinel, ProvisionPercent: 100},
	}
}

// DefaultLenderRules is the lender's stricter provisioning policy.
func DefaultLenderRules() domain.RuleSet {
	return domain.RuleSet{
		{Class: domain.ClassNormal, DPDMin: 0, DPDMax: 30, ProvisionPercent: 1},
		{Class: domain.ClassWatch, DPDMin: 31, DPDMax: 60, ProvisionPercent: 10},
		{Class: domain.ClassSubstandard, DPDMin: 61, DPDMax: 90, ProvisionPercent: 50},
		{Class: domain.ClassDoubtful, DPDMin: 91, DPDMax: 120, ProvisionPercent: 75},
		{Class: domain.ClassLoss, DPDMin: 121, DPDMax: domain.DPDSentinel, ProvisionPercent: 100},
	}
}

// ValidateRules checks that rules partition [0, ∞): the first rule starts
// at zero, each rule begins one day after the previous one ends, and the
// last rule reaches the sentinel. All problems are reported together.
func ValidateRules(rules domain.RuleSet) error {
	if len(rules) == 0 {
		return fmt.Errorf("risk: rule set is empty: %w", domain.ErrInvalidInput)
	}
	var errs []error
	if rules[0].DPDMin != 0 {
		errs = append(errs, fmt.Errorf("risk: first rule starts at dpd %d, want 0: %w",
			rules[0].DPDMin, domain.ErrInvalidInput))
	}
	for i, r := range rules {
		if r.DPDMax < r.DPDMin {
			errs = append(errs, fmt.Errorf("risk: rule %d (%s) has max %d below min %d: %w",
				i, r.Class, r.DPDMax, r.DPDMin, domain.ErrInvalidInput))
		}
		if r.ProvisionPercent < 0 || r.ProvisionPercent > 100 {
			errs = append(errs, fmt.Errorf("risk: rule %d (%s) provision %v%% outside [0,100]: %w",
				i, r.Class, r.ProvisionPercent, domain.ErrInvalidInput))
		}
		if i > 0 && rules[i-1].DPDMax+1 != r.DPDMin {
			errs = append(errs, fmt.Errorf("risk: rule %d (%s) starts at %d, want %d: %w",
				i, r.Class, r.DPDMin, rules[i-1].DPDMax+1, domain.ErrInvalidInput))
		}
	}
	if last := rules[len(rules)-1]; last.DPDMax < domain.DPDSentinel {
		errs = append(errs, fmt.Errorf("risk: last rule ends at %d, want >= %d: %w",
			last.DPDMax, domain.DPDSentinel, domain.ErrInvalidInput))
	}
	return errors.Join(errs...)
}

// MatchRule returns the index of the first rule containing dpd. A DPD past
// the last rule's max falls into the last rule. rules must already be valid.
func MatchRule(rules domain.RuleSet, dpd int) (int, error) {
	if dpd < 0 {
		return 0, fmt.Errorf("risk: match rule for dpd %d: %w", dpd, domain.ErrInvalidInput)
	}
	for i, r := range rules {
		if dpd >= r.DPDMin && dpd <= r.DPDMax {
			return i, nil
		}
	}
	if len(rules) == 0 {
		return 0, fmt.Errorf("risk: match rule: empty rule set: %w", domain.ErrInvalidInput)
	}
	return len(rules) - 1, nil
}

// ComputeProvisions sums balance × provision% over the first matching rule
// for each loan.
func ComputeProvisions(loans []domain.LoanRecord, rules domain.RuleSet) (float64, error) {
	rows, err := ProvisionTable(loans, rules)
	if err != nil {
		return 0, err
	}
	return provisionTotal(rows), nil
}

func provisionTotal(rows []domain.ProvisionBucketRow) float64 {
	amounts := make([]float64, len(rows))
	for i, r := range rows {
		amounts[i] = r.ProvisionAmount
	}
	return money.Sum(amounts...)
}

// ProvisionTable returns one row per rule, in rule order, with the loans it
// captured. Rules that match nothing still appear with zero counts.
func ProvisionTable(loans []domain.LoanRecord, rules domain.RuleSet) ([]domain.ProvisionBucketRow, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	rows := make([]domain.ProvisionBucketRow, len(rules))
	for i, r := range rules {
		rows[i] = domain.ProvisionBucketRow{
			Class:            r.Class,
			DPDMin:           r.DPDMin,
			DPDMax:           r.DPDMax,
			ProvisionPercent: r.ProvisionPercent,
		}
	}
	for _, l := range loans {
		idx, err := MatchRule(rules, l.DPD)
		if err != nil {
			return nil, fmt.Errorf("risk: provision loan %q: %w", l.ID, err)
		}
		rows[idx].LoanCount++
		rows[idx].TotalBalance += l.CurrentBalance
		rows[idx].ProvisionAmount += l.CurrentBalance * rules[idx].ProvisionPercent / 100
	}
	return rows, nil
}

// CompareProvisioning runs both policies over the same pool. Delta is
// lender minus NBFI.
func CompareProvisioning(loans []domain.LoanRecord, nbfi, lender domain.RuleSet) (domain.ProvisionComparison, error) {
	nbfiRows, err := ProvisionTable(loans, nbfi)
	if err != nil {
		return domain.ProvisionComparison{}, fmt.Errorf("risk: nbfi policy: %w", err)
	}
	lenderRows, err := ProvisionTable(loans, lender)
	if err != nil {
		return domain.ProvisionComparison{}, fmt.Errorf("risk: lender policy: %w", err)
	}
	out := domain.ProvisionComparison{
		NBFI:        nbfiRows,
		Lender:      lenderRows,
		NBFITotal:   provisionTotal(nbfiRows),
		LenderTotal: provisionTotal(lenderRows),
	}
	out.Delta = money.Sum(out.LenderTotal, -out.NBFITotal)
	return out, nil
}
