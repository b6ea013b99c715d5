package cli

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/kanban/internal/cli/formatter"
	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/spf13/cobra"
)

func newSubCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sub",
		Aliases: []string{"subitem"},
		Short:   "Manage subitems (ids like WEB-001.2)",
	}

	cmd.AddCommand(
		newSubAddCmd(app),
		newSubListCmd(app),
		newSubRemoveCmd(app),
		newSubStartCmd(app),
		newSubStopCmd(app),
		newSubCompleteCmd(app),
	)

	return cmd
}

// requireSubitemID rejects item ids where a subitem is expected.
func requireSubitemID(id string) error {
	if _, _, ok := domain.SplitSubitemID(id); !ok {
		return fmt.Errorf("%w: %q is not a subitem id (expected <item>.<n>)", domain.ErrValidation, id)
	}
	return nil
}

func newSubAddCmd(app *App) *cobra.Command {
	var priority string

	cmd := &cobra.Command{
		Use:   "add <item-id> <title>",
		Short: "Add a subitem to an item",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePriorityFlag(priority)
			if err != nil {
				return err
			}
			sub, err := app.Items.AddSubitem(cmd.Context(), app.teamName(), args[0], strings.Join(args[1:], " "), p)
			if err != nil {
				return err
			}
			app.say(cmd, "Added %s %s", sub.ID, formatter.Bold(sub.Title))
			return app.emit(cmd, sub, func() string { return formatter.FormatCard(&sub.Card, app.now()) })
		},
	}
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Priority (default: the parent's)")

	return cmd
}

func newSubListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list <item-id>",
		Aliases: []string{"ls"},
		Short:   "List the subitems of an item",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := app.Items.ListSubitems(cmd.Context(), app.teamName(), args[0])
			if err != nil {
				return err
			}
			if subs == nil {
				subs = []*domain.Subitem{}
			}
			if len(subs) == 0 && !app.jsonOut {
				app.say(cmd, "No subitems.")
				return nil
			}
			return app.emit(cmd, subs, func() string { return formatter.FormatSubitemList(subs, app.now()) })
		},
	}
}

func newSubRemoveCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "remove <subitem-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a subitem created by mistake",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSubitemID(args[0]); err != nil {
				return err
			}
			if err := app.confirm(cmd, yes, fmt.Sprintf("Delete subitem %s?", strings.ToUpper(args[0]))); err != nil {
				return err
			}
			sub, err := app.Items.RemoveSubitem(cmd.Context(), app.teamName(), args[0])
			if err != nil {
				return err
			}
			app.say(cmd, "Removed %s %s", sub.ID, sub.Title)
			if app.jsonOut {
				return app.emit(cmd, sub, nil)
			}
			return nil
		},
	}
	addYesFlag(cmd, &yes)

	return cmd
}

func newSubStartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "start <subitem-id>",
		Short: "Start work on a subitem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSubitemID(args[0]); err != nil {
				return err
			}
			c, err := app.Workflow.Start(cmd.Context(), app.teamName(), args[0])
			return app.printCard(cmd, c, err, "Started")
		},
	}
}

func newSubStopCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <subitem-id>",
		Short: "Close the work session of a subitem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSubitemID(args[0]); err != nil {
				return err
			}
			res, err := app.Workflow.Stop(cmd.Context(), app.teamName(), args[0])
			return app.printStop(cmd, res, err)
		},
	}
}

func newSubCompleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "complete <subitem-id>",
		Aliases: []string{"done"},
		Short:   "Complete a subitem",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSubitemID(args[0]); err != nil {
				return err
			}
			c, err := app.Workflow.Complete(cmd.Context(), app.teamName(), args[0], false)
			return app.printCard(cmd, c, err, "Completed")
		},
	}
}
