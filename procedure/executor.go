package procedure

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atharvakhole/modgate/gwerr"
	"github.com/atharvakhole/modgate/logging"
	"github.com/atharvakhole/modgate/tagsvc"
)

// tagService is the subset of *tagsvc.Service the executor needs,
// factored out so it can be faked in tests without a real Connection
// Manager.
type tagService interface {
	ReadTag(ctx context.Context, plcID, tagName string) tagsvc.TagReadResult
	WriteTag(ctx context.Context, plcID, tagName string, value any) tagsvc.TagWriteResult
}

// Executor interprets a validated Definition's steps against a Tag
// Service, one step at a time, the way
// original_source/app/core/procedure_execution_engine.py's
// ProcedureExecutionEngine.execute_procedure drives its step list —
// sequential advancement by default, condition steps overriding the
// next index by step name, wait/loop suspending between polls.
type Executor struct {
	svc tagService
	dbg *logging.DebugLogger
}

// NewExecutor builds an Executor dispatching tag reads/writes through
// svc.
func NewExecutor(svc tagService, dbg *logging.DebugLogger) *Executor {
	return &Executor{svc: svc, dbg: dbg}
}

// Execute runs def from its first step to completion, failure or
// external cancellation. Load must have already validated def; Execute
// assumes every field it reads is present and every jump target
// resolves.
func (e *Executor) Execute(ctx context.Context, def *Definition) ExecutionResult {
	start := time.Now()
	corrID := uuid.NewString()

	index := make(map[string]int, len(def.Steps))
	for i, s := range def.Steps {
		index[s.Name] = i
	}

	vars := make(map[string]any)
	results := make([]StepResult, 0, len(def.Steps))
	status := Running

	i := 0
	for i < len(def.Steps) {
		if err := ctx.Err(); err != nil {
			status = Aborted
			e.dbg.Log("procedure", "%s[%s] aborted before step %q: %v", def.Name, corrID, def.Steps[i].Name, err)
			return e.summarize(def, corrID, status, "", results, start)
		}

		step := def.Steps[i]
		result, next, stepErr := e.runStep(ctx, step, index, vars)
		results = append(results, result)

		if stepErr != nil {
			if gwerr.Is(stepErr, gwerr.Cancelled) {
				status = Aborted
			} else {
				status = Failed
			}
			return e.summarize(def, corrID, status, stepErr.Error(), results, start)
		}

		if next >= 0 {
			i = next
			continue
		}
		i++
	}

	status = Completed
	return e.summarize(def, corrID, status, "", results, start)
}

func (e *Executor) summarize(def *Definition, corrID string, status ExecutionStatus, errMsg string, results []StepResult, start time.Time) ExecutionResult {
	successful, failed := 0, 0
	for _, r := range results {
		if r.Status == "error" {
			failed++
		} else {
			successful++
		}
	}
	return ExecutionResult{
		ProcedureName:   def.Name,
		CorrelationID:   corrID,
		Status:          status,
		TotalSteps:      len(results),
		SuccessfulSteps: successful,
		FailedSteps:     failed,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		StepResults:     results,
		ErrorMessage:    errMsg,
	}
}

// runStep executes one step, returning its result, the next step index
// (-1 for "advance sequentially") and a non-nil error only when the
// step's failure must abort the whole procedure.
func (e *Executor) runStep(ctx context.Context, step Step, index map[string]int, vars map[string]any) (StepResult, int, error) {
	started := time.Now()

	switch step.Kind {
	case StepRead:
		return e.runRead(ctx, step, vars, started)
	case StepWrite:
		return e.runWrite(ctx, step, started)
	case StepCondition:
		return e.runCondition(ctx, step, index, started)
	case StepWait:
		return e.runWait(ctx, step, started)
	case StepLoop:
		return e.runLoop(ctx, step, started)
	default:
		err := gwerr.New(gwerr.Unknown, fmt.Sprintf("unsupported step type %q", step.Kind))
		return errorResult(step, err, started), -1, err
	}
}

func (e *Executor) runRead(ctx context.Context, step Step, vars map[string]any, started time.Time) (StepResult, int, error) {
	result := e.svc.ReadTag(ctx, step.PLCID, step.Register)
	if result.Status != tagsvc.StatusSuccess {
		err := gwerr.New(kindFromString(result.ErrorKind), result.ErrorMessage)
		return errorResult(step, err, started), -1, err
	}
	if step.StoreAs != "" {
		vars[step.StoreAs] = result.Value
	}
	return StepResult{
		StepName:        step.Name,
		StepType:        step.Kind,
		Status:          "success",
		Data:            result.Value,
		ExecutionTime:   time.Since(started),
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}, -1, nil
}

func (e *Executor) runWrite(ctx context.Context, step Step, started time.Time) (StepResult, int, error) {
	result := e.svc.WriteTag(ctx, step.PLCID, step.Register, step.Value)
	if result.Status != tagsvc.StatusSuccess {
		err := gwerr.New(kindFromString(result.ErrorKind), result.ErrorMessage)
		return errorResult(step, err, started), -1, err
	}
	return StepResult{
		StepName:        step.Name,
		StepType:        step.Kind,
		Status:          "success",
		Data:            step.Value,
		ExecutionTime:   time.Since(started),
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}, -1, nil
}

func (e *Executor) runCondition(ctx context.Context, step Step, index map[string]int, started time.Time) (StepResult, int, error) {
	pc, err := parseCondition(step.Condition)
	if err != nil {
		return errorResult(step, err, started), -1, err
	}

	result := e.svc.ReadTag(ctx, step.PLCID, pc.Register)
	if result.Status != tagsvc.StatusSuccess {
		readErr := gwerr.New(kindFromString(result.ErrorKind), result.ErrorMessage)
		return errorResult(step, readErr, started), -1, readErr
	}

	ok, err := pc.evaluate(result.Value)
	if err != nil {
		return errorResult(step, err, started), -1, err
	}

	next := step.IfFalse
	if ok {
		next = step.IfTrue
	}

	return StepResult{
		StepName:        step.Name,
		StepType:        step.Kind,
		Status:          "success",
		Data:            ok,
		ExecutionTime:   time.Since(started),
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}, index[next], nil
}

func (e *Executor) runWait(ctx context.Context, step Step, started time.Time) (StepResult, int, error) {
	if err := sleepCtx(ctx, secondsToDuration(step.Seconds)); err != nil {
		return errorResult(step, err, started), -1, err
	}
	return StepResult{
		StepName:        step.Name,
		StepType:        step.Kind,
		Status:          "success",
		Data:            step.Seconds,
		ExecutionTime:   time.Since(started),
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}, -1, nil
}

// runLoop polls step's condition up to max_iterations times, sleeping
// delay_seconds (default 1) between attempts, returning success on the
// first true evaluation and a step failure if the budget is exhausted.
func (e *Executor) runLoop(ctx context.Context, step Step, started time.Time) (StepResult, int, error) {
	pc, err := parseCondition(step.Condition)
	if err != nil {
		return errorResult(step, err, started), -1, err
	}

	delay := step.DelaySeconds
	if delay <= 0 {
		delay = 1
	}

	for attempt := 0; attempt < step.MaxIterations; attempt++ {
		result := e.svc.ReadTag(ctx, step.PLCID, pc.Register)
		if result.Status != tagsvc.StatusSuccess {
			readErr := gwerr.New(kindFromString(result.ErrorKind), result.ErrorMessage)
			return errorResult(step, readErr, started), -1, readErr
		}

		ok, err := pc.evaluate(result.Value)
		if err != nil {
			return errorResult(step, err, started), -1, err
		}
		if ok {
			return StepResult{
				StepName:        step.Name,
				StepType:        step.Kind,
				Status:          "success",
				Data:            result.Value,
				ExecutionTime:   time.Since(started),
				ExecutionTimeMs: time.Since(started).Milliseconds(),
			}, -1, nil
		}

		if attempt == step.MaxIterations-1 {
			break
		}
		if err := sleepCtx(ctx, secondsToDuration(delay)); err != nil {
			return errorResult(step, err, started), -1, err
		}
	}

	err = gwerr.New(gwerr.Timeout, fmt.Sprintf("loop %q exhausted %d iterations without condition %q becoming true", step.Name, step.MaxIterations, step.Condition))
	return errorResult(step, err, started), -1, err
}

func errorResult(step Step, err error, started time.Time) StepResult {
	return StepResult{
		StepName:        step.Name,
		StepType:        step.Kind,
		Status:          "error",
		ErrorMessage:    err.Error(),
		ExecutionTime:   time.Since(started),
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}
}

// sleepCtx suspends for d or returns a Cancelled error if ctx ends
// first, the suspension-point contract spec.md §5 requires of every
// wait/loop/backoff interval.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return gwerr.Wrap(gwerr.Cancelled, ctx.Err(), "suspended step cancelled")
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// kindFromString maps a TagReadResult/TagWriteResult's string error
// kind back to a gwerr.Kind so step failures carry the same
// classification the Tag Service reported.
func kindFromString(s string) gwerr.Kind {
	switch s {
	case "ConfigurationError":
		return gwerr.Configuration
	case "ValidationError":
		return gwerr.Validation
	case "AddressResolutionError":
		return gwerr.AddressResolution
	case "EncodingError":
		return gwerr.Encoding
	case "ConnectionError":
		return gwerr.Connection
	case "ProtocolError":
		return gwerr.Protocol
	case "Timeout":
		return gwerr.Timeout
	case "Cancelled":
		return gwerr.Cancelled
	default:
		return gwerr.Unknown
	}
}
