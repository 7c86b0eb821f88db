package domain

import (
	"encoding/json"
	"time"
)

// RunKind identifies what produced a run record.
type RunKind string

const (
	RunWaterfall  RunKind = "waterfall"
	RunStressGrid RunKind = "stress_grid"
	RunReport     RunKind = "report"
)

// RunRecord is a persisted engine invocation. Params and Result hold the
// JSON form of the inputs and outputs so runs can be replayed or exported.
type RunRecord struct {
	ID          string          `json:"id"`
	PortfolioID string          `json:"portfolio_id,omitempty"`
	StructureID string          `json:"structure_id,omitempty"`
	Kind        RunKind         `json:"kind"`
	Summary     string          `json:"summary"`
	Params      json.RawMessage `json:"params"`
	Result      json.RawMessage `json:"result"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Event channels published on the SignalBus.
const (
	ChannelRunCompleted        = "run.completed"
	ChannelAlertSeniorImpaired = "alert.senior_impaired"
)

// RunEventStream is the durable history of every published run event.
const RunEventStream = "stream:run_events"

// RunEvent is the payload published when a run finishes or raises an alert.
type RunEvent struct {
	Type        string    `json:"type"`
	RunID       string    `json:"run_id"`
	Kind        RunKind   `json:"kind"`
	PortfolioID string    `json:"portfolio_id,omitempty"`
	StructureID string    `json:"structure_id,omitempty"`
	Summary     string    `json:"summary"`
	At          time.Time `json:"at"`
}
