// Package testutil provides helper functions for testing.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WriteWorkflow writes a workflow document into a fresh temp directory and
// returns its path. The file is deleted when the test completes.
func WriteWorkflow(t *testing.T, content string) string {
	t.Helper()
	return WriteFile(t, t.TempDir(), "workflow.yaml", content)
}

// WriteFile writes content under dir, creating parent directories as
// needed, and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// ValidWorkflowYAML returns a minimal document that passes validation:
// one prompt step and one cmd step under the given name.
func ValidWorkflowYAML(name string) string {
	return fmt.Sprintf(`schema_version: 1
name: %s
model: test-model
steps:
  - id: ask
    type: prompt
    prompt_file: prompts/task.md
  - id: check
    type: cmd
    command: "true"
`, name)
}
