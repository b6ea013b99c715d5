package cli

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/kanban/internal/cli/formatter"
	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/service"
	"github.com/spf13/cobra"
)

func newEpicCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "epic",
		Aliases: []string{"epics"},
		Short:   "Group items into epics",
	}

	cmd.AddCommand(
		newEpicCreateCmd(app),
		newEpicListCmd(app),
		newEpicShowCmd(app),
		newEpicAddItemCmd(app),
		newEpicRemoveItemCmd(app),
		newEpicUpdateCmd(app),
		newEpicDeleteCmd(app),
	)

	return cmd
}

func newEpicCreateCmd(app *App) *cobra.Command {
	var id, desc, priority, due, owner string

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create an epic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePriorityFlag(priority)
			if err != nil {
				return err
			}
			dueDate, err := parseDue(due, app.now())
			if err != nil {
				return err
			}
			e, err := app.Epics.Create(cmd.Context(), app.teamName(), service.EpicInput{
				ID:          id,
				Title:       strings.Join(args, " "),
				Description: desc,
				Priority:    p,
				DueDate:     dueDate,
				Owner:       owner,
			})
			if err != nil {
				return err
			}
			app.say(cmd, "Created epic %s %s", e.ID, formatter.Bold(e.Title))
			return app.emit(cmd, e, func() string {
				return formatter.FormatEpic(e, domain.EpicProgress{}, nil, app.now())
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Custom id (default EPIC-NN)")
	cmd.Flags().StringVarP(&desc, "desc", "d", "", "Description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Priority")
	cmd.Flags().StringVar(&due, "due", "", "Due date")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner")

	return cmd
}

func newEpicListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List epics with progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			epics, err := app.Epics.List(cmd.Context(), app.teamName())
			if err != nil {
				return err
			}
			if epics == nil {
				epics = []service.EpicSummary{}
			}
			if len(epics) == 0 && !app.jsonOut {
				app.say(cmd, "No epics found.")
				return nil
			}
			return app.emit(cmd, epics, func() string {
				rows := make([]formatter.EpicRow, 0, len(epics))
				for _, e := range epics {
					rows = append(rows, formatter.EpicRow{Epic: e.Epic, Progress: e.Progress})
				}
				return formatter.FormatEpicList(rows, app.now())
			})
		},
	}
}

func newEpicShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <epic-id>",
		Short: "Show an epic and its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := app.Epics.Get(cmd.Context(), app.teamName(), args[0])
			if err != nil {
				return err
			}
			return app.emit(cmd, d, func() string {
				return formatter.FormatEpic(d.Epic, d.Progress, d.Items, app.now())
			})
		},
	}
}

func newEpicAddItemCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "add-item <epic-id> <item-id>",
		Short: "Add an item to an epic",
		Long:  "Add an item to an epic. An item belongs to at most one epic; an item in\nanother epic is refused until it is removed there.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, changed, err := app.Epics.AddItem(cmd.Context(), app.teamName(), args[0], args[1])
			if err != nil {
				return err
			}
			if changed {
				app.say(cmd, "Added %s to %s", strings.ToUpper(args[1]), e.ID)
			} else {
				app.say(cmd, "%s is already in %s", strings.ToUpper(args[1]), e.ID)
			}
			if app.jsonOut {
				return app.emit(cmd, map[string]any{"epic": e, "changed": changed}, nil)
			}
			return nil
		},
	}
}

func newEpicRemoveItemCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-item <epic-id> <item-id>",
		Short: "Remove an item from an epic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.Epics.RemoveItem(cmd.Context(), app.teamName(), args[0], args[1])
			if err != nil {
				return err
			}
			app.say(cmd, "Removed %s from %s", strings.ToUpper(args[1]), e.ID)
			if app.jsonOut {
				return app.emit(cmd, e, nil)
			}
			return nil
		},
	}
}

func newEpicUpdateCmd(app *App) *cobra.Command {
	var title, desc, status, priority, due, owner string
	var clearDue bool

	cmd := &cobra.Command{
		Use:   "update <epic-id>",
		Short: "Change an epic's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch service.EpicPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("desc") {
				patch.Description = &desc
			}
			if cmd.Flags().Changed("status") {
				st, err := domain.ParseEpicStatus(status)
				if err != nil {
					return err
				}
				patch.Status = &st
			}
			if cmd.Flags().Changed("priority") {
				p, err := domain.ParsePriority(priority)
				if err != nil {
					return err
				}
				patch.Priority = &p
			}
			if cmd.Flags().Changed("due") {
				d, err := parseDue(due, app.now())
				if err != nil {
					return err
				}
				patch.DueDate = d
			}
			patch.ClearDue = clearDue
			if cmd.Flags().Changed("owner") {
				patch.Owner = &owner
			}

			e, err := app.Epics.Update(cmd.Context(), app.teamName(), args[0], patch)
			if err != nil {
				return err
			}
			app.say(cmd, "Updated %s", e.ID)
			if app.jsonOut {
				return app.emit(cmd, e, nil)
			}
			d, err := app.Epics.Get(cmd.Context(), app.teamName(), e.ID)
			if err != nil {
				return err
			}
			return app.emit(cmd, d, func() string { return formatter.FormatEpic(d.Epic, d.Progress, d.Items, app.now()) })
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVarP(&desc, "desc", "d", "", "New description")
	cmd.Flags().StringVar(&status, "status", "", "planning, active, completed, on_hold, cancelled")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "New priority")
	cmd.Flags().StringVar(&due, "due", "", "New due date")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "Remove the due date")
	cmd.Flags().StringVar(&owner, "owner", "", "New owner")

	return cmd
}

func newEpicDeleteCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <epic-id>",
		Short: "Delete an epic; its items stay on the board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.confirm(cmd, yes, fmt.Sprintf("Delete epic %s?", strings.ToUpper(args[0]))); err != nil {
				return err
			}
			e, err := app.Epics.Delete(cmd.Context(), app.teamName(), args[0])
			if err != nil {
				return err
			}
			app.say(cmd, "Deleted epic %s (%d items released)", e.ID, len(e.ItemIDs))
			if app.jsonOut {
				return app.emit(cmd, e, nil)
			}
			return nil
		},
	}
	addYesFlag(cmd, &yes)

	return cmd
}
