package runstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazuruo/drover/internal/errs"
	"github.com/chazuruo/drover/internal/policy"
	"github.com/chazuruo/drover/internal/workflow"
)

func testState(runID string, created time.Time) *RunState {
	return &RunState{
		RunID:          runID,
		WorkflowName:   "Nightly refactor",
		WorkflowPath:   "workflow.yaml",
		DefinitionHash: "deadbeefdeadbeef",
		Model:          "anthropic.claude-3-5-sonnet",
		CreatedAt:      created,
		Status:         RunRunning,
		Steps: []StepRecord{
			{StepID: "gather", Type: workflow.StepPrompt, Status: StepPending},
			{StepID: "refactor", Type: workflow.StepAgent, Status: StepPending},
		},
	}
}

func TestCreateAndLoadRunState(t *testing.T) {
	store := New(t.TempDir())
	created := time.Date(2025, 3, 10, 14, 22, 33, 0, time.UTC)
	state := testState("run-1", created)

	if err := store.CreateRun(state); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	loaded, err := store.LoadRunState("run-1")
	if err != nil {
		t.Fatalf("LoadRunState: %v", err)
	}
	if loaded.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", loaded.RunID)
	}
	if !loaded.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", loaded.CreatedAt, created)
	}
	if len(loaded.Steps) != 2 {
		t.Fatalf("Steps = %d, want 2", len(loaded.Steps))
	}
	if loaded.Steps[0].Status != StepPending {
		t.Errorf("Steps[0].Status = %q, want pending", loaded.Steps[0].Status)
	}
}

func TestLoadRunStateNotFound(t *testing.T) {
	store := New(t.TempDir())

	_, err := store.LoadRunState("no-such-run")
	if !errs.IsNotFound(err) {
		t.Fatalf("LoadRunState err = %v, want ErrNotFound", err)
	}
}

func TestLoadRunStateCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	runDir := filepath.Join(dir, "bad-run")
	if err := os.MkdirAll(runDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "run-state.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := store.LoadRunState("bad-run")
	if _, ok := errs.AsPersistenceError(err); !ok {
		t.Fatalf("LoadRunState err = %v, want PersistenceError", err)
	}
}

func TestSaveRunStateLeavesNoTempFiles(t *testing.T) {
	store := New(t.TempDir())
	state := testState("run-1", time.Now().UTC())

	if err := store.CreateRun(state); err != nil {
		t.Fatal(err)
	}
	state.Status = RunSucceeded
	if err := store.SaveRunState(state); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(store.RunDir("run-1"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".run-state-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}

	loaded, err := store.LoadRunState("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != RunSucceeded {
		t.Errorf("Status = %q, want succeeded", loaded.Status)
	}
}

func TestStepDirName(t *testing.T) {
	tests := []struct {
		index  int
		stepID string
		want   string
	}{
		{0, "gather", "01-gather"},
		{1, "refactor", "02-refactor"},
		{11, "land", "12-land"},
	}
	for _, tt := range tests {
		if got := StepDirName(tt.index, tt.stepID); got != tt.want {
			t.Errorf("StepDirName(%d, %q) = %q, want %q", tt.index, tt.stepID, got, tt.want)
		}
	}
}

func TestStepArtifacts(t *testing.T) {
	store := New(t.TempDir())
	state := testState("run-1", time.Now().UTC())
	if err := store.CreateRun(state); err != nil {
		t.Fatal(err)
	}

	dirName := StepDirName(1, "refactor")

	if err := store.WriteTranscript("run-1", dirName, []byte("hello\n")); err != nil {
		t.Fatalf("WriteTranscript: %v", err)
	}
	got, err := store.ReadTranscript("run-1", dirName)
	if err != nil {
		t.Fatalf("ReadTranscript: %v", err)
	}
	if string(got) != "hello\n" {
		t.Errorf("transcript = %q", got)
	}

	pol := &workflow.Policy{
		TimeoutSeconds: 60,
		MaxFiles:       2,
		MaxEdits:       1,
		AllowedPaths:   []string{"src/**"},
	}
	if err := store.WritePolicySnapshot("run-1", dirName, pol); err != nil {
		t.Fatalf("WritePolicySnapshot: %v", err)
	}
	snapData, err := os.ReadFile(filepath.Join(store.RunDir("run-1"), dirName, "policy.json"))
	if err != nil {
		t.Fatal(err)
	}
	var snap workflow.Policy
	if err := json.Unmarshal(snapData, &snap); err != nil {
		t.Fatalf("policy.json is not valid JSON: %v", err)
	}
	if snap.MaxFiles != 2 {
		t.Errorf("snapshot MaxFiles = %d, want 2", snap.MaxFiles)
	}

	c := policy.NewCounters(nil)
	c.RecordEdit("src/a.go")
	if err := store.WriteMetrics("run-1", dirName, c.Snapshot()); err != nil {
		t.Fatalf("WriteMetrics: %v", err)
	}
	metricsData, err := os.ReadFile(filepath.Join(store.RunDir("run-1"), dirName, "metrics.json"))
	if err != nil {
		t.Fatal(err)
	}
	var m policy.Metrics
	if err := json.Unmarshal(metricsData, &m); err != nil {
		t.Fatalf("metrics.json is not valid JSON: %v", err)
	}
	if m.EditsApplied != 1 {
		t.Errorf("metrics EditsApplied = %d, want 1", m.EditsApplied)
	}
}

func TestReadTranscriptNotFound(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.ReadTranscript("run-1", "01-gather")
	if !errs.IsNotFound(err) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEventLogAppends(t *testing.T) {
	store := New(t.TempDir())

	w, err := store.EventLog("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("{\"event\":\"run_started\"}\n")); err != nil {
		t.Fatal(err)
	}
	w.Close()

	w, err = store.EventLog("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("{\"event\":\"run_completed\"}\n")); err != nil {
		t.Fatal(err)
	}
	w.Close()

	data, err := os.ReadFile(filepath.Join(store.RunDir("run-1"), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("events.jsonl has %d lines, want 2", len(lines))
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	older := testState("run-older", time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC))
	newer := testState("run-newer", time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	newer.Steps[0].Status = StepSucceeded
	newer.Steps[1].Status = StepRunning

	for _, st := range []*RunState{older, newer} {
		if err := store.CreateRun(st); err != nil {
			t.Fatal(err)
		}
	}

	// A stray directory without run-state.json is not a run.
	if err := os.MkdirAll(filepath.Join(dir, "lost+found"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d runs, want 2", len(got))
	}
	if got[0].RunID != "run-newer" || got[1].RunID != "run-older" {
		t.Errorf("order = [%s, %s], want newest first", got[0].RunID, got[1].RunID)
	}
	if got[0].StepsDone != 1 {
		t.Errorf("StepsDone = %d, want 1 (running steps are not done)", got[0].StepsDone)
	}
	if got[0].StepsTotal != 2 {
		t.Errorf("StepsTotal = %d, want 2", got[0].StepsTotal)
	}
}

func TestListEmptyRoot(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "never-created"))
	got, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("List = %v, want empty", got)
	}
}
