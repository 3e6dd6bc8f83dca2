// Package cli provides tests for CLI commands.
package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazuruo/drover/internal/workflow"
)

func TestWriteScaffold(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "workflow.yaml")

	opts := &InitOptions{Name: "demo", Model: "${MODEL_ID}", Out: out, WithReview: true}
	if err := writeScaffold(opts); err != nil {
		t.Fatalf("writeScaffold() = %v, want nil", err)
	}

	// The scaffold must validate with the same pass `drover validate` uses.
	wf, err := workflow.Load(out)
	if err != nil {
		t.Fatalf("scaffolded document failed validation: %v", err)
	}
	if wf.Name != "demo" {
		t.Errorf("Name = %q, want %q", wf.Name, "demo")
	}
	if len(wf.Steps) != 4 {
		t.Fatalf("len(Steps) = %d, want 4", len(wf.Steps))
	}
	last := wf.Steps[len(wf.Steps)-1]
	if last.Type != workflow.StepApplyDiff || !last.Approve {
		t.Errorf("last step = %+v, want approved apply_diff", last)
	}

	if _, err := os.Stat(filepath.Join(tmp, "prompts", "task.md")); err != nil {
		t.Errorf("prompt file not written: %v", err)
	}
}

func TestWriteScaffold_NoReview(t *testing.T) {
	out := filepath.Join(t.TempDir(), "workflow.yaml")

	opts := &InitOptions{Name: "demo", Model: "test-model", Out: out, WithReview: false}
	if err := writeScaffold(opts); err != nil {
		t.Fatalf("writeScaffold() = %v, want nil", err)
	}

	wf, err := workflow.Load(out)
	if err != nil {
		t.Fatalf("scaffolded document failed validation: %v", err)
	}
	for _, step := range wf.Steps {
		if step.Type == workflow.StepApplyDiff {
			t.Errorf("scaffold should not contain an apply_diff step, got %+v", step)
		}
	}
}

func TestWriteScaffold_RefusesOverwrite(t *testing.T) {
	out := filepath.Join(t.TempDir(), "workflow.yaml")
	if err := os.WriteFile(out, []byte("existing"), 0644); err != nil {
		t.Fatal(err)
	}

	opts := &InitOptions{Name: "demo", Model: "test-model", Out: out}
	err := writeScaffold(opts)
	if err == nil {
		t.Fatal("writeScaffold() expected error for existing file, got nil")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("error should mention the existing file, got: %v", err)
	}

	opts.Force = true
	if err := writeScaffold(opts); err != nil {
		t.Fatalf("writeScaffold(--force) = %v, want nil", err)
	}
}

func TestRunInitNonInteractive_RequiresName(t *testing.T) {
	opts := &InitOptions{Out: filepath.Join(t.TempDir(), "workflow.yaml")}

	err := runInitNonInteractive(opts)
	if err == nil {
		t.Fatal("runInitNonInteractive() expected error without --name, got nil")
	}
	if !strings.Contains(err.Error(), "--name") {
		t.Errorf("error should mention --name, got: %v", err)
	}
}
