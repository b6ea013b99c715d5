package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/alexanderramin/kanban/internal/cli/formatter"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func kanbanHuhTheme() *huh.Theme {
	t := huh.ThemeBase()
	t.Focused.Title = lipgloss.NewStyle().Foreground(formatter.ColorHeader).Bold(true)
	t.Focused.FocusedButton = lipgloss.NewStyle().Foreground(formatter.ColorFg).Background(formatter.ColorHeader).Padding(0, 1)
	t.Focused.BlurredButton = lipgloss.NewStyle().Foreground(formatter.ColorDim).Padding(0, 1)
	t.Blurred = t.Focused
	return t
}

func huhConfirm(title string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(kanbanHuhTheme()).WithShowHelp(false).Run()
	return ok, err
}

func stdinIsTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// confirm asks before a destructive command. --yes skips the prompt; without
// a terminal the command refuses rather than guessing.
func (a *App) confirm(cmd *cobra.Command, yes bool, title string) error {
	if yes {
		return nil
	}
	interactive := a.IsInteractive
	if interactive == nil {
		interactive = stdinIsTerminal
	}
	if !interactive() {
		return fmt.Errorf("%s: refusing without a terminal; pass --yes", title)
	}
	ask := a.Confirm
	if ask == nil {
		ask = huhConfirm
	}
	ok, err := ask(title)
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	return nil
}

var errAborted = errors.New("aborted")

// addYesFlag registers the --yes flag shared by destructive commands.
func addYesFlag(cmd *cobra.Command, yes *bool) {
	cmd.Flags().BoolVarP(yes, "yes", "y", false, "Do not ask for confirmation")
}
