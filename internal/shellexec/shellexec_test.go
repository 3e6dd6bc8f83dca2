package shellexec

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell tests are posix-only")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not available: %v", err)
	}
}

func TestRunCapturesOutput(t *testing.T) {
	requireShell(t)
	r := New(WithShell("sh"))

	res, err := r.Run(context.Background(), "echo hello; echo world")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit = %d, want 0", res.ExitCode)
	}
	if got := string(res.Output); got != "hello\nworld\n" {
		t.Errorf("output = %q", got)
	}
	if res.Duration <= 0 {
		t.Errorf("duration = %v", res.Duration)
	}
}

func TestRunNonzeroExitIsNotAnError(t *testing.T) {
	requireShell(t)
	r := New(WithShell("sh"))

	res, err := r.Run(context.Background(), "echo failing >&2; exit 3")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(string(res.Output), "failing") {
		t.Errorf("stderr not captured: %q", res.Output)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	r := New()
	if _, err := r.Run(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestRunStreamsLines(t *testing.T) {
	requireShell(t)
	var lines []string
	r := New(WithShell("sh"), WithLineHandler(func(line string) {
		lines = append(lines, line)
	}))

	if _, err := r.Run(context.Background(), "echo one; echo two"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %v", lines)
	}
}

func TestRunHonorsDirAndEnv(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	r := New(WithShell("sh"), WithDir(dir), WithEnv(map[string]string{"DROVER_TEST_VAR": "wired"}))

	res, err := r.Run(context.Background(), "pwd; printf '%s\\n' \"$DROVER_TEST_VAR\"")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := string(res.Output)
	// Compare the tail component; on some systems TempDir is a symlink.
	if !strings.Contains(out, filepath.Base(dir)) {
		t.Errorf("cwd not honored: %q", out)
	}
	if !strings.Contains(out, "wired") {
		t.Errorf("env not honored: %q", out)
	}
}

func TestRunKilledOnCancel(t *testing.T) {
	requireShell(t)
	r := New(WithShell("sh"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := r.Run(ctx, "sleep 30")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode >= 0 {
		t.Errorf("exit = %d, want negative (killed)", res.ExitCode)
	}
}
