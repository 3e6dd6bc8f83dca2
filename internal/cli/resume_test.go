// Package cli provides tests for CLI commands.
package cli

import (
	"testing"

	"github.com/chazuruo/drover/internal/runstore"
	"github.com/chazuruo/drover/internal/workflow"
)

func TestSeedRows(t *testing.T) {
	state := &runstore.RunState{
		RunID: "r1",
		Steps: []runstore.StepRecord{
			{StepID: "ask", Type: workflow.StepPrompt, Status: runstore.StepSucceeded},
			{StepID: "build", Type: workflow.StepCmd, Status: runstore.StepFailed},
			{StepID: "review", Type: workflow.StepApplyDiff, Status: runstore.StepSkipped},
		},
	}

	rows := seedRows(state, "build")
	if len(rows) != 3 {
		t.Fatalf("seedRows() returned %d rows, want 3", len(rows))
	}
	if rows[0].Status != runstore.StepSucceeded {
		t.Errorf("rows[0].Status = %s, want %s", rows[0].Status, runstore.StepSucceeded)
	}
	if rows[1].Status != runstore.StepPending {
		t.Errorf("rows[1].Status = %s, want %s", rows[1].Status, runstore.StepPending)
	}
	if rows[2].Status != runstore.StepPending {
		t.Errorf("rows[2].Status = %s, want %s", rows[2].Status, runstore.StepPending)
	}
	if rows[0].ID != "ask" || rows[0].Type != workflow.StepPrompt {
		t.Errorf("rows[0] = %+v, want id ask type prompt", rows[0])
	}
}

func TestSeedRows_UnknownStep(t *testing.T) {
	state := &runstore.RunState{
		Steps: []runstore.StepRecord{
			{StepID: "ask", Type: workflow.StepPrompt, Status: runstore.StepSucceeded},
		},
	}

	if rows := seedRows(state, "nope"); rows != nil {
		t.Errorf("seedRows(unknown) = %v, want nil", rows)
	}
}
