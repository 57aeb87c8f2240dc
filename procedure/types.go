// Package procedure interprets ordered read/write/condition/wait/loop
// step lists against a Tag Service.
package procedure

import "time"

// StepKind identifies one of the five step types a procedure may use.
type StepKind string

const (
	StepRead      StepKind = "read"
	StepWrite     StepKind = "write"
	StepCondition StepKind = "condition"
	StepWait      StepKind = "wait"
	StepLoop      StepKind = "loop"
)

// Step is one entry in a procedure's step list. Only the fields
// relevant to Kind are populated; Load validates well-formedness once
// so the executor never has to.
type Step struct {
	Name string   `yaml:"name"`
	Kind StepKind `yaml:"type"`

	PLCID    string `yaml:"plc_id,omitempty"`
	Register string `yaml:"register,omitempty"`
	StoreAs  string `yaml:"store_as,omitempty"`
	Value    any    `yaml:"value,omitempty"`

	Condition string `yaml:"condition,omitempty"`
	IfTrue    string `yaml:"if_true,omitempty"`
	IfFalse   string `yaml:"if_false,omitempty"`

	Seconds float64 `yaml:"seconds,omitempty"`

	MaxIterations int     `yaml:"max_iterations,omitempty"`
	DelaySeconds  float64 `yaml:"delay_seconds,omitempty"`
}

// Definition is a named, ordered, load-time-validated step list.
type Definition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// ExecutionStatus is a procedure run's terminal (or in-flight) state.
type ExecutionStatus string

const (
	Running   ExecutionStatus = "running"
	Completed ExecutionStatus = "completed"
	Failed    ExecutionStatus = "failed"
	Aborted   ExecutionStatus = "aborted"
)

// StepResult records one executed step's outcome.
type StepResult struct {
	StepName        string        `json:"step_name"`
	StepType        StepKind      `json:"step_type"`
	Status          string        `json:"status"`
	Data            any           `json:"data,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	ExecutionTime   time.Duration `json:"-"`
	ExecutionTimeMs int64         `json:"execution_time_ms"`
}

// ExecutionResult is the summary returned once a procedure run ends.
type ExecutionResult struct {
	ProcedureName   string          `json:"procedure_name"`
	CorrelationID   string          `json:"correlation_id"`
	Status          ExecutionStatus `json:"status"`
	TotalSteps      int             `json:"total_steps"`
	SuccessfulSteps int             `json:"successful_steps"`
	FailedSteps     int             `json:"failed_steps"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	StepResults     []StepResult    `json:"step_results"`
	ErrorMessage    string          `json:"error_message,omitempty"`
}
