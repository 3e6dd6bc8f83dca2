// Package diffapply lands proposed diffs in the working tree via git,
// optionally behind a confirmation gate.
package diffapply

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/chazuruo/drover/internal/engine"
)

// GitError wraps a failed git invocation.
type GitError struct {
	Args     []string
	Output   string
	ExitCode int
	Err      error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), e.Err)
}

func (e *GitError) Unwrap() error { return e.Err }

// Applier applies unified diffs with `git apply`. It implements
// engine.DiffApplier.
type Applier struct {
	repoDir string
	confirm func(summary string) (bool, error)
}

// Option configures an Applier.
type Option func(*Applier)

// WithConfirm installs the confirmation gate used when a step does not
// carry approve: true. Without one, unapproved diffs are never applied.
func WithConfirm(fn func(summary string) (bool, error)) Option {
	return func(a *Applier) { a.confirm = fn }
}

// New creates an applier operating on the repository at repoDir.
func New(repoDir string, opts ...Option) *Applier {
	a := &Applier{repoDir: repoDir}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply validates the diff against the working tree, passes the
// confirmation gate if required, and lands it. A diff that cannot land is
// reported through DiffResult rather than an error; errors are reserved
// for a broken gate or an unreadable diff file.
func (a *Applier) Apply(ctx context.Context, req engine.DiffRequest) (*engine.DiffResult, error) {
	data, err := os.ReadFile(req.DiffPath)
	if err != nil {
		return nil, fmt.Errorf("reading diff: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &engine.DiffResult{Applied: false, Reason: "empty diff"}, nil
	}
	summary := Summarize(data)

	if _, err := a.git(ctx, "apply", "--check", req.DiffPath); err != nil {
		return &engine.DiffResult{
			Applied: false,
			Reason:  "diff does not apply: " + firstLine(gitOutput(err)),
		}, nil
	}

	if !req.Approve {
		if a.confirm == nil {
			return &engine.DiffResult{Applied: false, Reason: "not approved and no confirmation available"}, nil
		}
		ok, cerr := a.confirm(summary)
		if cerr != nil {
			return nil, fmt.Errorf("confirmation: %w", cerr)
		}
		if !ok {
			return &engine.DiffResult{Applied: false, Reason: "declined by operator"}, nil
		}
	}

	if _, err := a.git(ctx, "apply", req.DiffPath); err != nil {
		return &engine.DiffResult{
			Applied: false,
			Reason:  "apply failed: " + firstLine(gitOutput(err)),
		}, nil
	}
	return &engine.DiffResult{Applied: true, Reason: "applied " + summary}, nil
}

// git runs a git command in the repository directory.
func (a *Applier) git(ctx context.Context, args ...string) (string, error) {
	cmdArgs := args
	if a.repoDir != "" {
		cmdArgs = append([]string{"-C", a.repoDir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", cmdArgs...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitCode int
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return "", &GitError{
			Args:     cmdArgs,
			Output:   string(output),
			ExitCode: exitCode,
			Err:      err,
		}
	}
	return string(output), nil
}

// Summarize renders a short description of a unified diff for the
// confirmation gate and the step transcript.
func Summarize(diff []byte) string {
	files := 0
	hunks := 0
	for _, line := range strings.Split(string(diff), "\n") {
		switch {
		case strings.HasPrefix(line, "+++ "):
			files++
		case strings.HasPrefix(line, "@@"):
			hunks++
		}
	}
	return fmt.Sprintf("%d file(s), %d hunk(s)", files, hunks)
}

func gitOutput(err error) string {
	if ge, ok := err.(*GitError); ok && strings.TrimSpace(ge.Output) != "" {
		return ge.Output
	}
	return err.Error()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
