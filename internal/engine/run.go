package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chazuruo/drover/internal/errs"
	"github.com/chazuruo/drover/internal/policy"
	"github.com/chazuruo/drover/internal/runstore"
	"github.com/chazuruo/drover/internal/workflow"
)

// Run executes the plan's workflow from the first step. The run is created
// in the store before anything executes; the returned state reflects every
// transition that was durably recorded.
//
// The returned error is nil only when every step succeeded. A policy breach
// returns *errs.PolicyViolationError, a step failure *errs.ExecutionError, a
// store failure *errs.PersistenceError; an interrupted run returns
// errs.ErrCanceled and stays resumable on disk.
func (e *Engine) Run(ctx context.Context, plan Plan) (*runstore.RunState, error) {
	def := plan.Definition
	now := e.clock()

	state := &runstore.RunState{
		RunID:          runstore.NewRunID(def.Name, plan.DefinitionHash, now),
		WorkflowName:   def.Name,
		WorkflowPath:   plan.WorkflowPath,
		DefinitionHash: plan.DefinitionHash,
		Model:          def.Model,
		CreatedAt:      now,
		Status:         runstore.RunRunning,
		Steps:          make([]runstore.StepRecord, len(def.Steps)),
	}
	for i, step := range def.Steps {
		state.Steps[i] = runstore.StepRecord{
			StepID: step.ID,
			Type:   step.Type,
			Status: runstore.StepPending,
		}
	}

	if err := e.store.CreateRun(state); err != nil {
		return nil, err
	}
	e.log.Debug("run created",
		slog.String("run_id", state.RunID),
		slog.String("workflow", def.Name),
		slog.Int("steps", len(def.Steps)))
	return e.drive(ctx, plan, state, 0)
}

// drive executes steps start..end sequentially, persisting every transition
// before moving past it. Both Run and ResumeRun funnel through here.
func (e *Engine) drive(ctx context.Context, plan Plan, state *runstore.RunState, start int) (*runstore.RunState, error) {
	def := plan.Definition

	logw, err := e.store.EventLog(state.RunID)
	if err != nil {
		return state, err
	}
	defer logw.Close()
	runLog := slog.New(slog.NewJSONHandler(logw, nil))

	if def.Env != nil && def.Env.MaxRuntimeSeconds > 0 {
		var cancel context.CancelFunc
		deadline := e.clock().Add(time.Duration(def.Env.MaxRuntimeSeconds) * time.Second)
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	e.emit(Event{Type: EventRunStarted, RunID: state.RunID})
	runLog.Info("run_started",
		slog.String("run_id", state.RunID),
		slog.String("workflow", state.WorkflowName),
		slog.Int("steps", len(state.Steps)),
		slog.Int("from", start))

	var failErr error
	for i := start; i < len(def.Steps); i++ {
		step := def.Steps[i]
		rec := &state.Steps[i]

		if failErr != nil {
			rec.Status = runstore.StepSkipped
			if err := e.store.SaveRunState(state); err != nil {
				return state, err
			}
			e.emit(Event{Type: EventStepCompleted, RunID: state.RunID, StepID: step.ID, StepIndex: i, Status: string(rec.Status)})
			runLog.Info("step_skipped", slog.String("step", step.ID))
			continue
		}

		started := e.clock()
		rec.Status = runstore.StepRunning
		rec.StartedAt = &started
		rec.ArtifactDir = runstore.StepDirName(i, step.ID)
		if err := e.store.SaveRunState(state); err != nil {
			return state, err
		}
		e.emit(Event{Type: EventStepStarted, RunID: state.RunID, StepID: step.ID, StepIndex: i, Status: string(rec.Status)})
		runLog.Info("step_started", slog.String("step", step.ID), slog.String("type", string(step.Type)))

		if err := e.executeStep(ctx, state, step, rec); err != nil {
			// Store failure: the run must not continue without durability.
			return state, err
		}

		completed := e.clock()
		rec.CompletedAt = &completed

		switch rec.Status {
		case runstore.StepPolicyViolation:
			failErr = &errs.PolicyViolationError{
				StepID:    step.ID,
				Dimension: string(rec.Violation.Dimension),
				Limit:     rec.Violation.Limit,
				Actual:    rec.Violation.Actual,
			}
		case runstore.StepFailed:
			exit := 0
			if rec.ExitCode != nil {
				exit = *rec.ExitCode
			}
			failErr = &errs.ExecutionError{StepID: step.ID, ExitCode: exit, Err: errors.New(rec.Error)}
		}

		if err := e.store.SaveRunState(state); err != nil {
			return state, err
		}

		evType := EventStepCompleted
		if rec.Status == runstore.StepPolicyViolation {
			evType = EventPolicyViolation
		}
		msg := rec.Error
		if rec.FailureNoted {
			msg = fmt.Sprintf("exit %d noted, continuing", *rec.ExitCode)
		}
		e.emit(Event{Type: evType, RunID: state.RunID, StepID: step.ID, StepIndex: i, Status: string(rec.Status), Message: msg})
		runLog.Info("step_completed",
			slog.String("step", step.ID),
			slog.String("status", string(rec.Status)),
			slog.String("detail", msg))

		if errors.Is(ctx.Err(), context.Canceled) {
			if i == len(def.Steps)-1 && rec.Status == runstore.StepSucceeded {
				// The final step already landed; let the run complete.
				continue
			}
			// Leave the run non-terminal so it can be resumed from here.
			runLog.Info("run_interrupted", slog.String("run_id", state.RunID))
			return state, fmt.Errorf("run %s: %w", state.RunID, errs.ErrCanceled)
		}
	}

	state.Status = runstore.RunSucceeded
	if failErr != nil {
		state.Status = runstore.RunFailed
	}
	if err := e.store.SaveRunState(state); err != nil {
		return state, err
	}
	e.emit(Event{Type: EventRunCompleted, RunID: state.RunID, Status: string(state.Status)})
	runLog.Info("run_completed", slog.String("run_id", state.RunID), slog.String("status", string(state.Status)))
	return state, failErr
}

// executeStep dispatches to the type-specific executor and records the
// outcome on rec. It returns an error only for store failures; executor
// failures are expressed through rec.Status.
func (e *Engine) executeStep(ctx context.Context, state *runstore.RunState, step workflow.Step, rec *runstore.StepRecord) error {
	switch step.Type {
	case workflow.StepPrompt:
		return e.runAgentStep(ctx, state, step, rec, nil)
	case workflow.StepAgent:
		return e.runAgentStep(ctx, state, step, rec, step.Policy)
	case workflow.StepCmd:
		return e.runCmdStep(ctx, state, step, rec)
	case workflow.StepApplyDiff:
		return e.runDiffStep(ctx, state, step, rec)
	default:
		rec.Status = runstore.StepFailed
		rec.Error = fmt.Sprintf("unknown step type %q", step.Type)
		return nil
	}
}

func (e *Engine) runCmdStep(ctx context.Context, state *runstore.RunState, step workflow.Step, rec *runstore.StepRecord) error {
	if e.cmd == nil {
		rec.Status = runstore.StepFailed
		rec.Error = "no command runner configured"
		return nil
	}

	start := e.clock()
	res, err := e.cmd.Run(ctx, step.Command)

	elapsed := e.clock().Sub(start)
	if res != nil && res.Duration > 0 {
		elapsed = res.Duration
	}
	rec.Metrics = &policy.Metrics{
		FilesTouched:   []string{},
		ElapsedSeconds: elapsed.Seconds(),
		Commands:       []string{step.Command},
	}
	if werr := e.store.WriteMetrics(state.RunID, rec.ArtifactDir, rec.Metrics); werr != nil {
		return werr
	}
	if res != nil && len(res.Output) > 0 {
		if werr := e.store.WriteTranscript(state.RunID, rec.ArtifactDir, res.Output); werr != nil {
			return werr
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		rec.Status = runstore.StepFailed
		rec.Error = "run deadline exceeded"
		return nil
	}
	if err != nil {
		rec.Status = runstore.StepFailed
		rec.Error = err.Error()
		return nil
	}

	code := res.ExitCode
	rec.ExitCode = &code
	switch {
	case code == 0:
		rec.Status = runstore.StepSucceeded
	case step.OnError == workflow.OnErrorContinue:
		// The failure is recorded, but sequencing treats the step as done.
		rec.Status = runstore.StepSucceeded
		rec.FailureNoted = true
	default:
		rec.Status = runstore.StepFailed
		rec.Error = fmt.Sprintf("command exited %d", code)
	}
	return nil
}

// runAgentStep drives both prompt and agent steps; the latter carry a
// policy, which is enforced live on every reported event.
func (e *Engine) runAgentStep(ctx context.Context, state *runstore.RunState, step workflow.Step, rec *runstore.StepRecord, pol *workflow.Policy) error {
	if e.agent == nil {
		rec.Status = runstore.StepFailed
		rec.Error = "no agent runner configured"
		return nil
	}

	if pol != nil {
		if err := e.store.WritePolicySnapshot(state.RunID, rec.ArtifactDir, pol); err != nil {
			return err
		}
	}

	stepCtx := ctx
	if pol != nil {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, time.Duration(pol.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	counters := policy.NewCounters(e.clock)
	var violation *policy.Violation
	onEvent := func(ev AgentEvent) error {
		switch ev.Type {
		case AgentFileTouched:
			counters.TouchFile(ev.Path)
		case AgentEditApplied:
			counters.RecordEdit(ev.Path)
		case AgentCommand:
			if len(ev.Argv) > 0 {
				counters.RecordCommand(ev.Argv[0])
			}
		}
		if pol == nil {
			return nil
		}
		if v := policy.Check(pol, counters); v != nil {
			violation = v
			return fmt.Errorf("%s: %w", v.Message(), errs.ErrCanceled)
		}
		return nil
	}

	req := AgentRequest{
		StepID:      step.ID,
		Model:       state.Model,
		PromptFile:  step.PromptFile,
		Tools:       step.AvailableTools,
		InputFilter: step.InputFilter,
		Policy:      pol,
	}
	res, err := e.agent.Run(stepCtx, req, onEvent)

	rec.Metrics = counters.Snapshot()
	if werr := e.store.WriteMetrics(state.RunID, rec.ArtifactDir, rec.Metrics); werr != nil {
		return werr
	}
	if res != nil && len(res.Transcript) > 0 {
		if werr := e.store.WriteTranscript(state.RunID, rec.ArtifactDir, res.Transcript); werr != nil {
			return werr
		}
	}
	if res != nil && len(res.Diff) > 0 {
		if werr := e.store.WriteProposedDiff(state.RunID, rec.ArtifactDir, res.Diff); werr != nil {
			return werr
		}
	}

	// The per-event checks see usage as it happens; one more pass after the
	// executor returns catches a breach in the final accounting, including
	// the step's own deadline firing.
	if violation == nil && pol != nil {
		violation = policy.Check(pol, counters)
	}
	if violation == nil && pol != nil &&
		errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		limit := time.Duration(pol.TimeoutSeconds) * time.Second
		violation = &policy.Violation{
			Dimension: policy.DimTimeout,
			Limit:     limit.String(),
			Actual:    counters.Elapsed().Truncate(time.Millisecond).String(),
		}
	}
	if violation != nil {
		rec.Status = runstore.StepPolicyViolation
		rec.Violation = violation
		rec.Error = violation.Message()
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		rec.Status = runstore.StepFailed
		rec.Error = "run deadline exceeded"
		return nil
	}
	if err != nil {
		rec.Status = runstore.StepFailed
		rec.Error = err.Error()
		return nil
	}

	code := res.ExitCode
	rec.ExitCode = &code
	if code != 0 {
		rec.Status = runstore.StepFailed
		rec.Error = fmt.Sprintf("agent exited %d", code)
		return nil
	}
	rec.Status = runstore.StepSucceeded
	return nil
}

// runDiffStep applies the proposed diff from the nearest preceding agent
// step that produced one.
func (e *Engine) runDiffStep(ctx context.Context, state *runstore.RunState, step workflow.Step, rec *runstore.StepRecord) error {
	if e.differ == nil {
		rec.Status = runstore.StepFailed
		rec.Error = "no diff applier configured"
		return nil
	}

	idx := state.StepIndex(step.ID)
	diffPath := ""
	for j := idx - 1; j >= 0; j-- {
		prior := state.Steps[j]
		if prior.Type != workflow.StepAgent || prior.ArtifactDir == "" {
			continue
		}
		if path, ok := e.store.ProposedDiffPath(state.RunID, prior.ArtifactDir); ok {
			diffPath = path
			break
		}
	}
	if diffPath == "" {
		rec.Status = runstore.StepFailed
		rec.Error = "no proposed diff from a prior agent step"
		return nil
	}

	res, err := e.differ.Apply(ctx, DiffRequest{StepID: step.ID, DiffPath: diffPath, Approve: step.Approve})
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		rec.Status = runstore.StepFailed
		rec.Error = "run deadline exceeded"
		return nil
	}
	if err != nil {
		rec.Status = runstore.StepFailed
		rec.Error = err.Error()
		return nil
	}

	summary := res.Reason
	if summary == "" && res.Applied {
		summary = "diff applied"
	}
	if werr := e.store.WriteTranscript(state.RunID, rec.ArtifactDir, []byte(summary+"\n")); werr != nil {
		return werr
	}

	if !res.Applied {
		rec.Status = runstore.StepFailed
		rec.Error = res.Reason
		if rec.Error == "" {
			rec.Error = "diff not applied"
		}
		return nil
	}
	rec.Status = runstore.StepSucceeded
	return nil
}
