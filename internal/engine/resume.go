package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chazuruo/drover/internal/errs"
	"github.com/chazuruo/drover/internal/runstore"
)

// ResumeRun restarts an existing run at fromStepID. The plan must carry the
// same document the run was recorded against; any drift in the raw bytes is
// refused, because the persisted step records would no longer describe the
// steps about to execute.
//
// Records before the resume point keep their persisted outcomes, artifacts
// included. The resumed step and everything after it are reset to pending
// and re-executed.
func (e *Engine) ResumeRun(ctx context.Context, runID, fromStepID string, plan Plan) (*runstore.RunState, error) {
	state, err := e.store.LoadRunState(runID)
	if errs.IsNotFound(err) {
		return nil, &errs.ResumeError{RunID: runID, Err: err}
	}
	if err != nil {
		return nil, err
	}

	if plan.DefinitionHash != state.DefinitionHash {
		return nil, &errs.ResumeError{RunID: runID, Err: errs.ErrDrift}
	}

	idx := state.StepIndex(fromStepID)
	if idx < 0 {
		return nil, &errs.ResumeError{
			RunID: runID,
			Err:   fmt.Errorf("step %q: %w", fromStepID, errs.ErrNotFound),
		}
	}

	for j := idx; j < len(state.Steps); j++ {
		state.Steps[j] = runstore.StepRecord{
			StepID: state.Steps[j].StepID,
			Type:   state.Steps[j].Type,
			Status: runstore.StepPending,
		}
	}
	state.Status = runstore.RunRunning
	if err := e.store.SaveRunState(state); err != nil {
		return nil, err
	}
	e.log.Debug("resuming run",
		slog.String("run_id", runID),
		slog.String("from", fromStepID),
		slog.Int("index", idx))

	return e.drive(ctx, plan, state, idx)
}
