package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexanderramin/kanban/internal/service"
	"github.com/spf13/cobra"
)

// Options are the global flags handed to App.Init.
type Options struct {
	ConfigPath string
	Verbose    bool
}

// App holds the engine services the command tree calls.
type App struct {
	Items     service.ItemService
	Workflow  service.WorkflowService
	Worktrees service.WorktreeService
	Epics     service.EpicService
	Releases  service.ReleaseService
	Boards    service.BoardService

	// DefaultTeam is used when --team is not given.
	DefaultTeam string

	// Init wires the services once the global flags are parsed. Tests leave
	// it nil and fill the services directly.
	Init func(ctx context.Context, opts Options) error
	// Close runs after every command, successful or not.
	Close func() error

	// Watch blocks calling fn with the team of every board that is written,
	// by this process or any other. Nil when the backend cannot be watched.
	Watch func(ctx context.Context, fn func(team string)) error

	// IsInteractive reports whether prompts can be shown.
	IsInteractive func() bool
	// Confirm asks a yes/no question. Defaults to a huh confirmation.
	Confirm func(title string) (bool, error)
	// Now is the clock used for rendering relative dates and parsing due dates.
	Now func() time.Time
	// Getwd locates the caller's checkout for run.
	Getwd func() (string, error)

	team     string
	jsonOut  bool
	opts     Options
	initDone bool
}

func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "kanban",
		Short:         "Multi-team kanban board for humans and coding agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Init == nil || app.initDone {
				return nil
			}
			app.initDone = true
			return app.Init(cmd.Context(), app.opts)
		},
	}

	root.PersistentFlags().StringVarP(&app.team, "team", "t", "", "Team board to operate on (default: default_team from config)")
	root.PersistentFlags().StringVar(&app.opts.ConfigPath, "config", "", "Config file (default ~/.kanban/config.yaml or $KANBAN_CONFIG)")
	root.PersistentFlags().BoolVar(&app.jsonOut, "json", false, "Print results as JSON")
	root.PersistentFlags().BoolVarP(&app.opts.Verbose, "verbose", "v", false, "Log engine operations to stderr")

	root.AddCommand(
		newItemCmd(app),
		newSubCmd(app),
		newEpicCmd(app),
		newReleaseCmd(app),
		newBoardCmd(app),
		newWorktreeCmd(app),
		newRunCmd(app),
		newPickCmd(app),
	)
	root.AddCommand(newWorkflowCmds(app)...)

	return root
}

// Execute runs the command tree and then App.Close.
func Execute(ctx context.Context, app *App, args []string) error {
	root := NewRootCmd(app)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if app.Close != nil {
		if cerr := app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// teamName returns --team, falling back to the configured default. The
// engine rejects an empty team.
func (a *App) teamName() string {
	if a.team != "" {
		return a.team
	}
	return a.DefaultTeam
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// emit prints v as indented JSON under --json, otherwise the rendered text.
func (a *App) emit(cmd *cobra.Command, v any, render func() string) error {
	out := cmd.OutOrStdout()
	if a.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(out, render())
	return err
}

// say prints a one-line confirmation. It is suppressed under --json so the
// output stays machine-readable.
func (a *App) say(cmd *cobra.Command, format string, args ...any) {
	if a.jsonOut {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
}
