// Package cli provides Cobra command definitions for drover.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/chazuruo/drover/internal/agentproc"
	"github.com/chazuruo/drover/internal/config"
	"github.com/chazuruo/drover/internal/diffapply"
	"github.com/chazuruo/drover/internal/engine"
	"github.com/chazuruo/drover/internal/errs"
	"github.com/chazuruo/drover/internal/runstore"
	"github.com/chazuruo/drover/internal/shellexec"
	"github.com/chazuruo/drover/internal/tui"
	"github.com/chazuruo/drover/internal/workflow"
)

// RunOptions contains the options for the run command.
type RunOptions struct {
	ConfigPath string
	Vars       map[string]string
	RunsDir    string
	Cwd        string
	Yes        bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow",
		Long: `Validate a workflow document and execute its steps in order.

Placeholders like ${TICKET} are resolved from --var values first, then
from the environment; a run never starts with unresolved placeholders.
Every step transition is persisted before the run advances, so an
interrupted run can be picked up later with 'drover resume'.

Exit codes: 0 (succeeded), 13 (interrupted), 20 (step failed),
21 (invalid document or unresolved variables), 22 (policy violation).

Examples:
  drover run workflow.yaml
  drover run workflow.yaml --var TICKET=OPS-123 --var MODEL_ID=anthropic.claude-sonnet-4-20250514-v1:0
  drover run workflow.yaml --yes           # apply diffs without asking
  drover run workflow.yaml --no-tui        # plain line output`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to config file")
	cmd.Flags().StringToStringVar(&opts.Vars, "var", nil, "placeholder value as NAME=value (repeatable)")
	cmd.Flags().StringVar(&opts.RunsDir, "runs-dir", "", "runs directory (default: document, then config)")
	cmd.Flags().StringVar(&opts.Cwd, "cwd", "", "working directory for executed steps")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "apply proposed diffs without confirmation")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions, path string) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger := buildLogger(cfg)

	wf, hash, err := loadDefinition(path)
	if err != nil {
		if ve, ok := errs.AsValidationError(err); ok {
			fmt.Printf("%s %s is not a valid workflow:\n", errorStyle.Render("✗"), path)
			printIssues(ve)
		}
		return err
	}

	resolved, err := workflow.Resolve(wf, lookupFrom(opts.Vars))
	if err != nil {
		if ce, ok := errs.AsConfigError(err); ok && len(ce.Missing) > 0 {
			fmt.Printf("%s unresolved variables: %s\n",
				errorStyle.Render("✗"), joinPlaceholders(ce.Missing))
			fmt.Println(dimStyle.Render("  pass them with --var NAME=value or export them"))
		}
		return err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve document path: %w", err)
	}
	plan := engine.Plan{Definition: resolved, WorkflowPath: absPath, DefinitionHash: hash}

	root, err := pickRunsRoot(opts.RunsDir, resolved, cfg)
	if err != nil {
		return err
	}
	store := runstore.New(root)

	exec := executionEnv{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		root:    root,
		workDir: pickWorkDir(opts.Cwd, cfg),
		yes:     opts.Yes,
	}
	return exec.execute(cmd.Context(), resolved, func(eng *engine.Engine, ctx context.Context) (*runstore.RunState, error) {
		return eng.Run(ctx, plan)
	})
}

// pickWorkDir resolves the step working directory: the flag wins, then the
// configured default, then the process directory.
func pickWorkDir(flagDir string, cfg *config.Config) string {
	if flagDir != "" {
		return flagDir
	}
	return cfg.Runner.WorkDir
}

// executionEnv bundles what run and resume both need to drive the engine.
type executionEnv struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *runstore.Store
	root    string
	workDir string
	yes     bool
	// initialRows pre-seeds the TUI display; resume uses it to show the
	// recorded outcomes of steps before the resume point.
	initialRows []tui.StepRow
}

// driveFunc starts the engine; run and resume differ only here.
type driveFunc func(eng *engine.Engine, ctx context.Context) (*runstore.RunState, error)

// execute builds the executors and drives the engine, with the TUI when the
// terminal allows it and plain line output otherwise.
func (x executionEnv) execute(ctx context.Context, wf *workflow.Workflow, drive driveFunc) error {
	useTUI := x.cfg.TUI.Enabled && !IsNoTUI() && isatty.IsTerminal(os.Stdout.Fd())

	shellOpts := []shellexec.Option{shellexec.WithShell(x.cfg.Runner.Shell)}
	if x.workDir != "" {
		shellOpts = append(shellOpts, shellexec.WithDir(x.workDir))
	}
	if !useTUI && x.cfg.Runner.StreamOutput {
		shellOpts = append(shellOpts, shellexec.WithLineHandler(func(line string) {
			fmt.Println(dimStyle.Render("  │ " + line))
		}))
	}
	cmdRunner := shellexec.New(shellOpts...)

	agentOpts := []agentproc.Option{agentproc.WithLogger(x.logger)}
	if x.workDir != "" {
		agentOpts = append(agentOpts, agentproc.WithDir(x.workDir))
	}
	agentRunner, err := agentproc.New(x.cfg.Agent.Command, agentOpts...)
	if err != nil {
		return err
	}

	repoDir := x.workDir
	if repoDir == "" {
		repoDir = "."
	}
	applier := diffapply.New(repoDir, diffapply.WithConfirm(x.confirmFunc(useTUI)))

	engOpts := []engine.Option{
		engine.WithCommandRunner(cmdRunner),
		engine.WithAgentRunner(agentRunner),
		engine.WithDiffApplier(applier),
		engine.WithLogger(x.logger),
	}

	if useTUI {
		return x.executeTUI(ctx, wf, engOpts, drive)
	}
	return x.executePlain(ctx, engOpts, drive)
}

// confirmFunc picks the apply_diff confirmation gate. --yes approves
// everything; an interactive plain terminal asks; otherwise there is no gate
// and only steps with approve: true apply.
func (x executionEnv) confirmFunc(useTUI bool) func(summary string) (bool, error) {
	if x.yes {
		return func(string) (bool, error) { return true, nil }
	}
	if useTUI || IsNoTUI() || !isatty.IsTerminal(os.Stdin.Fd()) {
		return nil
	}
	return func(summary string) (bool, error) {
		approve := false
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Apply proposed diff?").
					Description(summary).
					Value(&approve),
			),
		)
		if err := form.Run(); err != nil {
			return false, fmt.Errorf("form error: %w", err)
		}
		return approve, nil
	}
}

// executeTUI drives the engine in a goroutine and renders progress with
// Bubble Tea. The final summary is the model's; nothing is printed after.
func (x executionEnv) executeTUI(ctx context.Context, wf *workflow.Workflow, engOpts []engine.Option, drive driveFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.NewRunModel(wf.Name, wf.Steps, x.root, cancel)
	if x.initialRows != nil {
		model.Rows = x.initialRows
	}
	p := tea.NewProgram(model)

	engOpts = append(engOpts, engine.WithEvents(func(ev engine.Event) {
		p.Send(tui.EventMsg(ev))
	}))
	eng := engine.New(x.store, engOpts...)

	go func() {
		state, err := drive(eng, ctx)
		p.Send(tui.DoneMsg{State: state, Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	fm, ok := final.(tui.RunModel)
	if !ok {
		return fmt.Errorf("unexpected model type %T", final)
	}
	return fm.RunErr()
}

// executePlain drives the engine on the calling goroutine with line output.
// SIGINT and SIGTERM cancel the run; the engine persists the interrupted
// state before returning.
func (x executionEnv) executePlain(ctx context.Context, engOpts []engine.Option, drive driveFunc) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engOpts = append(engOpts, engine.WithEvents(printEvent))
	eng := engine.New(x.store, engOpts...)

	state, err := drive(eng, ctx)
	x.printOutcome(state, err)
	return err
}

// printEvent renders one engine event as a line.
func printEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventRunStarted:
		fmt.Printf("%s run %s\n", runningStyle.Render("▶"), ev.RunID)
	case engine.EventStepStarted:
		fmt.Printf("  %s %s\n", runningStyle.Render("▶"), ev.StepID)
	case engine.EventStepCompleted:
		switch runstore.StepStatus(ev.Status) {
		case runstore.StepSucceeded:
			line := fmt.Sprintf("  %s %s", successStyle.Render("✓"), ev.StepID)
			if ev.Message != "" {
				line += " " + warnStyle.Render("("+ev.Message+")")
			}
			fmt.Println(line)
		case runstore.StepSkipped:
			fmt.Printf("  %s %s skipped\n", dimStyle.Render("-"), ev.StepID)
		default:
			fmt.Printf("  %s %s: %s\n", errorStyle.Render("✗"), ev.StepID, ev.Message)
		}
	case engine.EventPolicyViolation:
		fmt.Printf("  %s %s: %s\n", warnStyle.Render("⚠"), ev.StepID, ev.Message)
	}
}

// printOutcome renders the final run summary for plain output.
func (x executionEnv) printOutcome(state *runstore.RunState, err error) {
	if state == nil {
		return
	}

	switch {
	case err == nil:
		fmt.Printf("%s run %s succeeded\n", successStyle.Render("✓"), state.RunID)
	case errs.IsCanceled(err):
		fmt.Printf("%s run %s interrupted\n", warnStyle.Render("⚠"), state.RunID)
		for _, rec := range state.Steps {
			if rec.Status != runstore.StepSucceeded {
				fmt.Println(dimStyle.Render(fmt.Sprintf("  resume with: drover resume %s --from %s", state.RunID, rec.StepID)))
				break
			}
		}
	default:
		fmt.Printf("%s run %s failed: %v\n", errorStyle.Render("✗"), state.RunID, err)
	}
	fmt.Println(dimStyle.Render("  artifacts: " + x.store.RunDir(state.RunID)))
}

// joinPlaceholders renders variable names as ${NAME}, comma separated.
func joinPlaceholders(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "${" + n + "}"
	}
	return strings.Join(out, ", ")
}
