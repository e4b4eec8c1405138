package model

import (
	"encoding/json"
	"time"
)

// RunStatus represents the state of an experiment run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded experiment.
type Run struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Params    json.RawMessage `json:"params"`
	Status    RunStatus       `json:"status"`
	Effects   []EffectSummary `json:"effects,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RunStage records the row counts entering and leaving one pipeline stage.
type RunStage struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	RowsIn    int       `json:"rows_in"`
	RowsOut   int       `json:"rows_out"`
	CreatedAt time.Time `json:"created_at"`
}
