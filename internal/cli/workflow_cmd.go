package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexanderramin/kanban/internal/cli/formatter"
	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/service"
	"github.com/spf13/cobra"
)

// newWorkflowCmds returns the top-level status commands. Each accepts an
// item id (WEB-001) or a subitem id (WEB-001.2).
func newWorkflowCmds(app *App) []*cobra.Command {
	return []*cobra.Command{
		newStartCmd(app),
		newPauseCmd(app),
		newResumeCmd(app),
		newStopCmd(app),
		newCompleteCmd(app),
		newReopenCmd(app),
		newCancelCmd(app),
		newPhaseCmd(app),
	}
}

func (a *App) printCard(cmd *cobra.Command, c *domain.Card, err error, verb string) error {
	if err != nil {
		return err
	}
	a.say(cmd, "%s %s %s", verb, c.ID, formatter.StatusPill(c.Status))
	return a.emit(cmd, c, func() string { return formatter.FormatCard(c, a.now()) })
}

func (a *App) printStop(cmd *cobra.Command, res *service.StopResult, err error) error {
	if err != nil {
		return err
	}
	a.say(cmd, "Stopped %s after %s (total %s)", res.Card.ID,
		formatter.FormatWorked(res.Elapsed.Milliseconds()), formatter.FormatWorked(res.Card.TimeWorkedMs))
	return a.emit(cmd, map[string]any{
		"card":      res.Card,
		"elapsedMs": res.Elapsed.Milliseconds(),
	}, func() string { return formatter.FormatCard(res.Card, a.now()) })
}

func newStartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start work on an item or subitem (todo or paused)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Workflow.Start(cmd.Context(), app.teamName(), args[0])
			return app.printCard(cmd, c, err, "Started")
		},
	}
}

func newPauseCmd(app *App) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "pause <id> [reason]",
		Short: "Pause an in-progress item or subitem",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				reason = strings.Join(args[1:], " ")
			}
			c, err := app.Workflow.Pause(cmd.Context(), app.teamName(), args[0], reason)
			return app.printCard(cmd, c, err, "Paused")
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why work is paused")

	return cmd
}

func newResumeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a paused item or subitem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Workflow.Resume(cmd.Context(), app.teamName(), args[0])
			return app.printCard(cmd, c, err, "Resumed")
		},
	}
}

func newStopCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <id>",
		Short: "Close the open work session and add its time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app.Workflow.Stop(cmd.Context(), app.teamName(), args[0])
			return app.printStop(cmd, res, err)
		},
	}
}

func newCompleteCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "complete <id>",
		Aliases: []string{"done"},
		Short:   "Complete an item or subitem",
		Long: "Complete an item or subitem. An item with open subitems is refused unless\n" +
			"--force is given; a forced completion is recorded in the item's audit trail.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Workflow.Complete(cmd.Context(), app.teamName(), args[0], force)
			var inc *domain.IncompleteSubitemsError
			if errors.As(err, &inc) && !app.jsonOut {
				rows := make([][]string, 0, len(inc.Blocking))
				for _, s := range inc.Blocking {
					rows = append(rows, []string{s.ID, s.Title, formatter.StatusPill(s.Status)})
				}
				fmt.Fprintln(cmd.ErrOrStderr(), formatter.RenderTable([]string{"OPEN SUBITEM", "TITLE", "STATUS"}, rows))
			}
			return app.printCard(cmd, c, err, "Completed")
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Complete even with open subitems")

	return cmd
}

func newReopenCmd(app *App) *cobra.Command {
	var followUp string

	cmd := &cobra.Command{
		Use:   "reopen <id> [follow-up title]",
		Short: "Reopen a completed item or subitem",
		Long: "Reopen a completed item or subitem. An item whose subitems are all closed\n" +
			"needs a follow-up: the reason for reopening becomes a new subitem.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				followUp = strings.Join(args[1:], " ")
			}
			res, err := app.Workflow.Reopen(cmd.Context(), app.teamName(), args[0], followUp)
			if err != nil {
				return err
			}
			if res.FollowUp != nil {
				app.say(cmd, "Reopened %s with follow-up %s %s", res.Card.ID, res.FollowUp.ID, formatter.Bold(res.FollowUp.Title))
			} else {
				app.say(cmd, "Reopened %s", res.Card.ID)
			}
			return app.emit(cmd, res, func() string { return formatter.FormatCard(res.Card, app.now()) })
		},
	}
	cmd.Flags().StringVar(&followUp, "follow-up", "", "Title of the follow-up subitem")

	return cmd
}

func newCancelCmd(app *App) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <id> [reason]",
		Short: "Cancel an item or subitem; it stays on the board",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				reason = strings.Join(args[1:], " ")
			}
			c, err := app.Workflow.Cancel(cmd.Context(), app.teamName(), args[0], reason)
			return app.printCard(cmd, c, err, "Cancelled")
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the work was dropped")

	return cmd
}

func newPhaseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "phase <id> <planning|coding|testing|committing>",
		Short: "Label the phase of in-progress work",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePhase(args[1])
			if err != nil {
				return err
			}
			c, err := app.Workflow.SetPhase(cmd.Context(), app.teamName(), args[0], p)
			return app.printCard(cmd, c, err, "Phase "+string(p)+" for")
		},
	}
}
