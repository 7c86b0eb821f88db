package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// Loan-tape column headers. Required columns must be present in the header
// row; optional ones may be missing or blank.
const (
	colLoanID        = "loan_id"
	colApplicationID = "application_id"
	colDPD           = "dpd_as_of_reporting_date"
	colBalance       = "current_balance"
	colDisbursed     = "loan_disbursed_amount"
	colOverdue       = "total_overdue_amount"
	colDisbursedDate = "loan_disbursed_date"
	colInterestRate  = "interest_rate"
	colWrittenOff    = "loan_written_off"
	colRepossessed   = "repossession"
	colRecovery      = "recovery_after_writeoff"
	colGeography     = "geography"
	colProduct       = "product"
	colSegment       = "segment"
	colBorrower      = "borrower_name"
	colTenure        = "residual_tenure_months"
)

var requiredColumns = []string{
	colLoanID, colDPD, colBalance, colDisbursed, colOverdue,
	colDisbursedDate, colInterestRate, colWrittenOff, colRepossessed, colRecovery,
}

// ParseLoanTape reads a CSV loan tape with a header row. Header names are
// matched case-insensitively. Every malformed cell is reported; no records
// are returned when any row fails.
func ParseLoanTape(r io.Reader) ([]domain.LoanRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("pipeline: loan tape is empty: %w", domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: reading header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing columns %s: %w", strings.Join(missing, ", "), domain.ErrInvalidInput)
	}

	var (
		loans []domain.LoanRecord
		errs  []error
	)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pipeline: line %d: %w", line, err)
		}
		if blankRow(row) {
			continue
		}
		p := rowParser{row: row, idx: idx}
		l := domain.LoanRecord{
			ID:                    p.text(colLoanID),
			ApplicationID:         p.text(colApplicationID),
			DPD:                   p.integer(colDPD),
			CurrentBalance:        p.decimal(colBalance),
			DisbursedAmount:       p.decimal(colDisbursed),
			TotalOverdue:          p.decimal(colOverdue),
			DisbursedDate:         p.date(colDisbursedDate),
			InterestRate:          p.decimal(colInterestRate),
			WrittenOff:            p.boolean(colWrittenOff),
			Repossessed:           p.boolean(colRepossessed),
			RecoveryAfterWriteOff: p.decimal(colRecovery),
			Geography:             p.text(colGeography),
			Product:               p.text(colProduct),
			Segment:               p.text(colSegment),
			BorrowerName:          p.text(colBorrower),
			ResidualTenureMonths:  p.optionalInt(colTenure),
		}
		if err := errors.Join(p.errs...); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		loans = append(loans, l)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("pipeline: loan tape: %w", errors.Join(domain.ErrInvalidInput, err))
	}
	return loans, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// rowParser converts the cells of one row, collecting every failure.
type rowParser struct {
	row  []string
	idx  map[string]int
	errs []error
}

func (p *rowParser) text(col string) string {
	i, ok := p.idx[col]
	if !ok || i >= len(p.row) {
		return ""
	}
	return strings.TrimSpace(p.row[i])
}

func (p *rowParser) fail(col, v string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s %q: %w", col, v, err))
}

func (p *rowParser) decimal(col string) float64 {
	v := strings.ReplaceAll(p.text(col), ",", "")
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(col, v, err)
	}
	return f
}

func (p *rowParser) integer(col string) int {
	v := p.text(col)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(col, v, err)
	}
	return n
}

func (p *rowParser) optionalInt(col string) *int {
	if p.text(col) == "" {
		return nil
	}
	n := p.integer(col)
	return &n
}

func (p *rowParser) boolean(col string) bool {
	switch v := strings.ToLower(p.text(col)); v {
	case "", "false", "no", "n", "0":
		return false
	case "true", "yes", "y", "1":
		return true
	default:
		p.fail(col, v, errors.New("not a boolean"))
		return false
	}
}

var tapeDateLayouts = []string{"2006-01-02", "02/01/2006", time.RFC3339}

func (p *rowParser) date(col string) time.Time {
	v := p.text(col)
	if v == "" {
		p.fail(col, v, errors.New("required"))
		return time.Time{}
	}
	for _, layout := range tapeDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	p.fail(col, v, errors.New("want YYYY-MM-DD"))
	return time.Time{}
}
