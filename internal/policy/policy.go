// Package policy enforces the budget attached to agent steps: elapsed time,
// files touched, edits applied, path scope, and command scope.
//
// The engine accumulates observed usage into a Counters and calls Check on
// every executor event; the first breach of any dimension is returned as a
// Violation and the in-flight executor call is canceled. A violation is a
// governance boundary, not a task failure, and is never continued past.
package policy

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/chazuruo/drover/internal/workflow"
)

// Dimension names one budget axis of a policy.
type Dimension string

const (
	DimTimeout      Dimension = "timeout_seconds"
	DimMaxFiles     Dimension = "max_files"
	DimMaxEdits     Dimension = "max_edits"
	DimAllowedPaths Dimension = "allowed_paths"
	DimCmdAllowlist Dimension = "cmd_allowlist"
)

// Violation describes a budget breach: which dimension failed, the declared
// limit, and the observed value, all rendered for display and audit.
type Violation struct {
	Dimension Dimension `json:"dimension"`
	Limit     string    `json:"limit"`
	Actual    string    `json:"actual"`
}

// Message renders the violation for logs and error messages.
func (v *Violation) Message() string {
	return string(v.Dimension) + " exceeded (limit " + v.Limit + ", got " + v.Actual + ")"
}

// Counters accumulates the observable resource usage of one step execution.
// It is not safe for concurrent use; the engine updates it from a single
// event loop.
type Counters struct {
	start time.Time
	now   func() time.Time
	seen  map[string]struct{}
	files []string // distinct touched paths, in first-touch order
	edits int
	cmds  []string // invoked executables, in order
}

// NewCounters starts a counter window at now(). A nil clock uses time.Now.
func NewCounters(now func() time.Time) *Counters {
	if now == nil {
		now = time.Now
	}
	return &Counters{
		start: now(),
		now:   now,
		seen:  make(map[string]struct{}),
	}
}

// TouchFile records that the step read or wrote path. Repeated touches of
// the same path count once.
func (c *Counters) TouchFile(path string) {
	if _, ok := c.seen[path]; ok {
		return
	}
	c.seen[path] = struct{}{}
	c.files = append(c.files, path)
}

// RecordEdit records an applied edit. An edit always touches its file.
func (c *Counters) RecordEdit(path string) {
	c.edits++
	c.TouchFile(path)
}

// RecordCommand records an invoked executable (argv[0]).
func (c *Counters) RecordCommand(executable string) {
	c.cmds = append(c.cmds, executable)
}

// FilesTouched returns the distinct touched paths in first-touch order.
func (c *Counters) FilesTouched() []string { return c.files }

// EditsApplied returns the number of edits recorded so far.
func (c *Counters) EditsApplied() int { return c.edits }

// Elapsed returns the time since the counter window started.
func (c *Counters) Elapsed() time.Duration { return c.now().Sub(c.start) }

// Metrics is the persisted snapshot of a Counters.
type Metrics struct {
	FilesTouched   []string `json:"files_touched"`
	EditsApplied   int      `json:"edits_applied"`
	ElapsedSeconds float64  `json:"elapsed_seconds"`
	Commands       []string `json:"commands,omitempty"`
}

// Snapshot captures the counters for the step's metrics artifact.
func (c *Counters) Snapshot() *Metrics {
	files := make([]string, len(c.files))
	copy(files, c.files)
	cmds := make([]string, len(c.cmds))
	copy(cmds, c.cmds)
	return &Metrics{
		FilesTouched:   files,
		EditsApplied:   c.edits,
		ElapsedSeconds: c.Elapsed().Seconds(),
		Commands:       cmds,
	}
}

// Check evaluates the accumulated counters against the policy and returns
// the first breach found, or nil if the step is within budget. Dimensions
// are checked in a fixed order so identical usage always reports the same
// violation.
func Check(p *workflow.Policy, c *Counters) *Violation {
	limit := time.Duration(p.TimeoutSeconds) * time.Second
	if elapsed := c.Elapsed(); elapsed > limit {
		return &Violation{
			Dimension: DimTimeout,
			Limit:     limit.String(),
			Actual:    elapsed.Truncate(time.Millisecond).String(),
		}
	}

	if len(c.files) > p.MaxFiles {
		return &Violation{
			Dimension: DimMaxFiles,
			Limit:     strconv.Itoa(p.MaxFiles),
			Actual:    strconv.Itoa(len(c.files)),
		}
	}

	if c.edits > p.MaxEdits {
		return &Violation{
			Dimension: DimMaxEdits,
			Limit:     strconv.Itoa(p.MaxEdits),
			Actual:    strconv.Itoa(c.edits),
		}
	}

	for _, path := range c.files {
		if !pathAllowed(p.AllowedPaths, path) {
			return &Violation{
				Dimension: DimAllowedPaths,
				Limit:     strings.Join(p.AllowedPaths, ", "),
				Actual:    path,
			}
		}
	}

	for _, cmd := range c.cmds {
		if !commandAllowed(p.CmdAllowlist, cmd) {
			rendered := "(none)"
			if len(p.CmdAllowlist) > 0 {
				rendered = strings.Join(p.CmdAllowlist, ", ")
			}
			return &Violation{
				Dimension: DimCmdAllowlist,
				Limit:     rendered,
				Actual:    filepath.Base(cmd),
			}
		}
	}

	return nil
}

// pathAllowed reports whether path matches any allowed glob. `**` crosses
// directory boundaries; `*` does not.
func pathAllowed(globs []string, path string) bool {
	clean := strings.TrimPrefix(filepath.ToSlash(path), "./")
	for _, g := range globs {
		if ok, err := doublestar.Match(g, clean); err == nil && ok {
			return true
		}
	}
	return false
}

// commandAllowed matches the executable's base name against the allowlist.
// An empty allowlist permits nothing.
func commandAllowed(allow []string, executable string) bool {
	base := filepath.Base(executable)
	for _, a := range allow {
		if a == base {
			return true
		}
	}
	return false
}
