package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memLoans struct {
	mu    sync.Mutex
	tapes map[string][]domain.LoanRecord
}

func newMemLoans() *memLoans { return &memLoans{tapes: map[string][]domain.LoanRecord{}} }

func (m *memLoans) InsertBatch(_ context.Context, pf string, loans []domain.LoanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range loans {
		replaced := false
		for i, cur := range m.tapes[pf] {
			if cur.ID == l.ID {
				m.tapes[pf][i] = l
				replaced = true
				break
			}
		}
		if !replaced {
			m.tapes[pf] = append(m.tapes[pf], l)
		}
	}
	return nil
}

func (m *memLoans) ReplacePortfolio(_ context.Context, pf string, loans []domain.LoanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tapes[pf] = append([]domain.LoanRecord(nil), loans...)
	return nil
}

func (m *memLoans) ListByPortfolio(_ context.Context, pf string) ([]domain.LoanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LoanRecord(nil), m.tapes[pf]...), nil
}

func (m *memLoans) CountByPortfolio(_ context.Context, pf string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.tapes[pf])), nil
}

type memPolicies struct {
	policies map[string]domain.ProvisioningPolicy
}

func newMemPolicies() *memPolicies {
	return &memPolicies{policies: map[string]domain.ProvisioningPolicy{}}
}

func (m *memPolicies) Get(_ context.Context, pf string) (domain.ProvisioningPolicy, error) {
	p, ok := m.policies[pf]
	if !ok {
		return domain.ProvisioningPolicy{}, fmt.Errorf("mem: policy %s: %w", pf, domain.ErrNotFound)
	}
	return p, nil
}

func (m *memPolicies) Upsert(_ context.Context, p domain.ProvisioningPolicy) error {
	m.policies[p.PortfolioID] = p
	return nil
}

type memStructures struct {
	mu   sync.Mutex
	byID map[string]domain.SecuritisationStructure
}

func newMemStructures() *memStructures {
	return &memStructures{byID: map[string]domain.SecuritisationStructure{}}
}

func (m *memStructures) Create(_ context.Context, s domain.SecuritisationStructure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.byID[s.ID] = s
	return nil
}

func (m *memStructures) Update(_ context.Context, s domain.SecuritisationStructure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[s.ID]
	switch {
	case !ok:
		return domain.ErrNotFound
	case cur.Finalised:
		return domain.ErrStructureFinalised
	}
	m.byID[s.ID] = s
	return nil
}

func (m *memStructures) Finalise(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[id]
	switch {
	case !ok:
		return domain.ErrNotFound
	case cur.Finalised:
		return domain.ErrStructureFinalised
	}
	cur.Finalised = true
	cur.FinalisedAt = &at
	m.byID[id] = cur
	return nil
}

func (m *memStructures) GetByID(_ context.Context, id string) (domain.SecuritisationStructure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return domain.SecuritisationStructure{}, fmt.Errorf("mem: structure %s: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

func (m *memStructures) ListByPortfolio(_ context.Context, pf string) ([]domain.SecuritisationStructure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SecuritisationStructure
	for _, s := range m.byID {
		if s.PortfolioID == pf {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memRuns struct {
	mu   sync.Mutex
	runs []domain.RunRecord
}

func (m *memRuns) Insert(_ context.Context, r domain.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

func (m *memRuns) GetByID(_ context.Context, id string) (domain.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.RunRecord{}, fmt.Errorf("mem: run %s: %w", id, domain.ErrNotFound)
}

func (m *memRuns) ListRecent(_ context.Context, limit int) ([]domain.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RunRecord, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		out = append(out, m.runs[i])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRuns) ListBefore(context.Context, time.Time, int) ([]domain.RunRecord, error) {
	return nil, nil
}

func (m *memRuns) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memGridCache struct {
	mu    sync.Mutex
	cells map[string][]domain.GridCell
	sets  int
}

func newMemGridCache() *memGridCache {
	return &memGridCache{cells: map[string][]domain.GridCell{}}
}

func (m *memGridCache) Get(_ context.Context, fp string) ([]domain.GridCell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[fp]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (m *memGridCache) Set(_ context.Context, fp string, cells []domain.GridCell) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[fp] = cells
	m.sets++
	return nil
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
	keys []string
}

func newMemLocks() *memLocks { return &memLocks{held: map[string]bool{}} }

func (m *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, fmt.Errorf("mem: %s: %w", key, domain.ErrLockHeld)
	}
	m.held[key] = true
	m.keys = append(m.keys, key)
	return func() {
		m.mu.Lock()
		delete(m.held, key)
		m.mu.Unlock()
	}, nil
}

// memBus records published events; the other SignalBus methods are unused.
type memBus struct {
	mu     sync.Mutex
	events []domain.RunEvent
}

func (m *memBus) Publish(context.Context, string, []byte) error { return nil }

func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (m *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (m *memBus) PublishEvent(_ context.Context, ev domain.RunEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memBus) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Type
	}
	return out
}

type memSink struct {
	events []domain.RunEvent
	err    error
}

func (m *memSink) NotifyEvent(_ context.Context, ev domain.RunEvent) error {
	m.events = append(m.events, ev)
	return m.err
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memExporter struct {
	runs  []string
	grids []string
}

func (m *memExporter) ExportRun(_ context.Context, r domain.RunRecord) (string, error) {
	m.runs = append(m.runs, r.ID)
	return "reports/" + r.ID + ".json", nil
}

func (m *memExporter) ExportGrid(_ context.Context, runID string, _ []domain.GridCell) (string, error) {
	m.grids = append(m.grids, runID)
	return "reports/grids/" + runID + ".jsonl", nil
}

func (m *memExporter) ExportReport(_ context.Context, rep domain.PortfolioReport) (string, error) {
	return "reports/" + rep.PortfolioID + "/report.json", nil
}
