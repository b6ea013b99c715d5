package cli

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/kanban/internal/cli/formatter"
	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/service"
	"github.com/spf13/cobra"
)

func newItemCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "item",
		Aliases: []string{"items"},
		Short:   "Manage board items",
	}

	cmd.AddCommand(
		newItemAddCmd(app),
		newItemListCmd(app),
		newItemShowCmd(app),
		newItemModifyCmd(app),
		newItemRemoveCmd(app),
		newItemPriorityCmd(app),
		newItemTagCmd(app),
		newItemDueCmd(app),
		newItemCollapseCmd(app),
	)

	return cmd
}

// parsePriorityFlag returns "" for an empty flag so the engine default applies.
func parsePriorityFlag(s string) (domain.Priority, error) {
	if s == "" {
		return "", nil
	}
	return domain.ParsePriority(s)
}

func newItemAddCmd(app *App) *cobra.Command {
	var id, desc, priority, due, issue, epic string
	var tags []string

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add an item to the board",
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

			it, err := app.Items.Add(cmd.Context(), app.teamName(), service.ItemInput{
				ID:          id,
				Title:       strings.Join(args, " "),
				Description: desc,
				Priority:    p,
				Tags:        tags,
				DueDate:     dueDate,
				IssueRef:    issue,
				EpicID:      epic,
			})
			if err != nil {
				return err
			}

			app.say(cmd, "Added %s %s", it.ID, formatter.Bold(it.Title))
			return app.emit(cmd, it, func() string { return formatter.FormatItem(it, app.now()) })
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Custom id (e.g. WEB-LOGIN); default allocates <PREFIX>-NNN")
	cmd.Flags().StringVarP(&desc, "desc", "d", "", "Description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "critical, high, medium (default), low, paused-pending")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringVar(&due, "due", "", "Due date: 2026-03-01, 3d, 2w or \"next friday\"")
	cmd.Flags().StringVar(&issue, "issue", "", "Issue tracker reference")
	cmd.Flags().StringVar(&epic, "epic", "", "Epic to add the item to")

	return cmd
}

func newItemListCmd(app *App) *cobra.Command {
	var status, priority, tag, epic, release string
	var open bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List items ordered by priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.ItemFilter{Tag: tag, EpicID: epic, Release: release, Open: open}
			if status != "" {
				st, err := domain.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = st
			}
			p, err := parsePriorityFlag(priority)
			if err != nil {
				return err
			}
			filter.Priority = p

			items, err := app.Items.List(cmd.Context(), app.teamName(), filter)
			if err != nil {
				return err
			}
			if items == nil {
				items = []*domain.Item{}
			}
			if len(items) == 0 && !app.jsonOut {
				app.say(cmd, "No items found.")
				return nil
			}
			return app.emit(cmd, items, func() string { return formatter.FormatItemList(items, app.now()) })
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Filter by priority")
	cmd.Flags().StringVar(&tag, "tag", "", "Filter by tag")
	cmd.Flags().StringVar(&epic, "epic", "", "Filter by epic")
	cmd.Flags().StringVar(&release, "release", "", "Filter by release")
	cmd.Flags().BoolVar(&open, "open", false, "Hide completed and cancelled items")

	return cmd
}

func newItemShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "show <id>",
		Aliases: []string{"inspect"},
		Short:   "Show an item or subitem",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, isSub := domain.SplitSubitemID(args[0]); isSub {
				c, err := app.Items.GetCard(cmd.Context(), app.teamName(), args[0])
				if err != nil {
					return err
				}
				return app.emit(cmd, c, func() string { return formatter.FormatCard(c, app.now()) })
			}
			it, err := app.Items.Get(cmd.Context(), app.teamName(), args[0])
			if err != nil {
				return err
			}
			return app.emit(cmd, it, func() string { return formatter.FormatItem(it, app.now()) })
		},
	}
}

// modifyCard applies patch and prints the result.
func modifyCard(cmd *cobra.Command, app *App, id string, patch service.CardPatch, verb string) error {
	c, err := app.Items.Modify(cmd.Context(), app.teamName(), id, patch)
	if err != nil {
		return err
	}
	app.say(cmd, "%s %s", verb, c.ID)
	return app.emit(cmd, c, func() string { return formatter.FormatCard(c, app.now()) })
}

func newItemModifyCmd(app *App) *cobra.Command {
	var title, desc, priority, due, issue, scm string
	var clearDue bool

	cmd := &cobra.Command{
		Use:     "modify <id>",
		Aliases: []string{"update", "edit"},
		Short:   "Change the fields of an item or subitem",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch service.CardPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("desc") {
				patch.Description = &desc
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
				patch.ClearDue = d == nil
			}
			if clearDue {
				patch.ClearDue = true
			}
			if cmd.Flags().Changed("issue") {
				patch.IssueRef = &issue
			}
			if cmd.Flags().Changed("scm-issue") {
				patch.SCMIssue = &scm
			}
			return modifyCard(cmd, app, args[0], patch, "Updated")
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVarP(&desc, "desc", "d", "", "New description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "New priority")
	cmd.Flags().StringVar(&due, "due", "", "New due date")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "Remove the due date")
	cmd.Flags().StringVar(&issue, "issue", "", "Issue tracker reference")
	cmd.Flags().StringVar(&scm, "scm-issue", "", "Source control issue reference")

	return cmd
}

func newItemRemoveCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an item created by mistake",
		Long: "Delete an item created by mistake. Finished work should be completed or\n" +
			"cancelled instead so the board keeps its history.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.confirm(cmd, yes, fmt.Sprintf("Delete %s and its subitems?", strings.ToUpper(args[0]))); err != nil {
				return err
			}
			it, err := app.Items.Remove(cmd.Context(), app.teamName(), args[0])
			if err != nil {
				return err
			}
			app.say(cmd, "Removed %s %s", it.ID, it.Title)
			if app.jsonOut {
				return app.emit(cmd, it, nil)
			}
			return nil
		},
	}
	addYesFlag(cmd, &yes)

	return cmd
}

func newItemPriorityCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "priority <id> <priority>",
		Short: "Set the priority of an item or subitem",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePriority(args[1])
			if err != nil {
				return err
			}
			return modifyCard(cmd, app, args[0], service.CardPatch{Priority: &p}, "Reprioritized")
		},
	}
}

func newItemTagCmd(app *App) *cobra.Command {
	var add, remove []string

	cmd := &cobra.Command{
		Use:   "tag <id> [tag...]",
		Short: "Add or remove tags",
		Long:  "Add or remove tags. Positional tags are added; use --remove to drop tags.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			add = append(add, args[1:]...)
			if len(add) == 0 && len(remove) == 0 {
				return fmt.Errorf("%w: give tags to add or --remove", domain.ErrValidation)
			}
			c, err := app.Items.Tag(cmd.Context(), app.teamName(), args[0], add, remove)
			if err != nil {
				return err
			}
			app.say(cmd, "Tagged %s %s", c.ID, formatter.Tags(c.Tags))
			return app.emit(cmd, c, func() string { return formatter.FormatCard(c, app.now()) })
		},
	}
	cmd.Flags().StringSliceVar(&add, "add", nil, "Tag to add (repeatable)")
	cmd.Flags().StringSliceVar(&remove, "remove", nil, "Tag to remove (repeatable)")

	return cmd
}

func newItemDueCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "due <id> <when|none>",
		Short: "Set or clear a due date",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args[1:], " ")
			var patch service.CardPatch
			if strings.EqualFold(raw, "none") || strings.EqualFold(raw, "clear") {
				patch.ClearDue = true
			} else {
				d, err := parseDue(raw, app.now())
				if err != nil {
					return err
				}
				patch.DueDate = d
			}
			return modifyCard(cmd, app, args[0], patch, "Rescheduled")
		},
	}
}

func newItemCollapseCmd(app *App) *cobra.Command {
	var expand bool

	cmd := &cobra.Command{
		Use:   "collapse <id>",
		Short: "Hide (or with --expand show) an item's subitems on the board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Items.SetCollapsed(cmd.Context(), app.teamName(), args[0], !expand); err != nil {
				return err
			}
			state := "Collapsed"
			if expand {
				state = "Expanded"
			}
			app.say(cmd, "%s %s", state, strings.ToUpper(args[0]))
			if app.jsonOut {
				return app.emit(cmd, map[string]any{"id": strings.ToUpper(args[0]), "collapsed": !expand}, nil)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&expand, "expand", false, "Show the subitems again")

	return cmd
}
