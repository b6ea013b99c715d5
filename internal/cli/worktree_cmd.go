package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexanderramin/kanban/internal/cli/formatter"
	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/service"
	"github.com/spf13/cobra"
)

// checkout describes the git checkout containing a directory.
type checkout struct {
	Root string
	// Linked is true for a `git worktree add` checkout, whose .git is a file.
	Linked bool
	Branch string
}

// detectCheckout walks up from dir to the nearest .git entry. ok is false
// outside a repository.
func detectCheckout(dir string) (co checkout, ok bool) {
	for d := dir; ; d = filepath.Dir(d) {
		fi, err := os.Stat(filepath.Join(d, ".git"))
		if err == nil {
			co.Root = d
			gitDir := filepath.Join(d, ".git")
			if !fi.IsDir() {
				co.Linked = true
				gitDir = linkedGitDir(d)
			}
			co.Branch = headBranch(gitDir)
			return co, true
		}
		if parent := filepath.Dir(d); parent == d {
			return checkout{}, false
		}
	}
}

// linkedGitDir reads the "gitdir: <path>" pointer of a linked worktree.
func linkedGitDir(root string) string {
	data, err := os.ReadFile(filepath.Join(root, ".git"))
	if err != nil {
		return ""
	}
	dir, ok := strings.CutPrefix(strings.TrimSpace(string(data)), "gitdir:")
	if !ok {
		return ""
	}
	dir = strings.TrimSpace(dir)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return dir
}

func headBranch(gitDir string) string {
	if gitDir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return ""
	}
	ref, ok := strings.CutPrefix(strings.TrimSpace(string(data)), "ref: refs/heads/")
	if !ok {
		return ""
	}
	return ref
}

func (a *App) workingDir() (string, error) {
	if a.Getwd != nil {
		return a.Getwd()
	}
	return os.Getwd()
}

func newWorktreeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "worktree",
		Aliases: []string{"wt"},
		Short:   "Link items to git worktrees and agent sessions",
	}
	cmd.AddCommand(newWorktreeLinkCmd(app), newWorktreeUnlinkCmd(app))
	return cmd
}

func newWorktreeLinkCmd(app *App) *cobra.Command {
	var path, branch, session string
	var override bool

	cmd := &cobra.Command{
		Use:   "link <id>",
		Short: "Record the worktree, branch and session working on an item",
		Long: "Record the worktree, branch and session working on an item. Path and branch\n" +
			"default to the checkout containing the current directory. Replacing a\n" +
			"different linkage needs --override and is recorded in the audit trail.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" || branch == "" {
				dir, err := app.workingDir()
				if err != nil {
					return err
				}
				if co, ok := detectCheckout(dir); ok {
					if path == "" {
						path = co.Root
					}
					if branch == "" {
						branch = co.Branch
					}
				}
			}

			res, err := app.Worktrees.Link(cmd.Context(), app.teamName(), args[0], service.LinkRequest{
				Path:      path,
				Branch:    branch,
				SessionID: session,
				Override:  override,
			})
			var conflict *domain.WorktreeConflictError
			if errors.As(err, &conflict) {
				return fmt.Errorf("%w (pass --override to replace it)", err)
			}
			if err != nil {
				return err
			}

			if res.Replaced != nil {
				app.say(cmd, "%s replaced worktree %s", formatter.StyleYellow.Render("!"), res.Replaced.Existing.Path)
			}
			wt := res.Item.Worktree
			app.say(cmd, "Linked %s to %s (%s, session %s)", res.Item.ID, wt.Path, wt.Branch, wt.SessionID)
			return app.emit(cmd, res.Item, func() string { return formatter.FormatItem(res.Item, app.now()) })
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Worktree path (default: current checkout)")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch (default: the checkout's branch)")
	cmd.Flags().StringVar(&session, "session", "", "Session id (default: generated)")
	cmd.Flags().BoolVar(&override, "override", false, "Replace an existing, different linkage")

	return cmd
}

func newWorktreeUnlinkCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <id>",
		Short: "Clear an item's worktree linkage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it, prev, err := app.Worktrees.Unlink(cmd.Context(), app.teamName(), args[0])
			if err != nil {
				return err
			}
			if prev.Empty() {
				app.say(cmd, "%s had no worktree linked", it.ID)
			} else {
				app.say(cmd, "Unlinked %s from %s", it.ID, prev.Path)
			}
			return app.emit(cmd, it, func() string { return formatter.FormatItem(it, app.now()) })
		},
	}
}

func newRunCmd(app *App) *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Start an item and link a worktree for it",
		Long: "Start an item. When run from the main checkout and no worktree is linked,\n" +
			"a worktree path and branch are recorded under the configured worktree root.\n" +
			"Run from inside a linked worktree, only the status changes.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := service.RunOptions{SessionID: session}
			if dir, err := app.workingDir(); err == nil {
				if co, ok := detectCheckout(dir); ok {
					opts.InWorktree = co.Linked
				}
			}

			res, err := app.Worktrees.Run(cmd.Context(), app.teamName(), args[0], opts)
			if err != nil {
				return err
			}
			switch {
			case res.Started && res.Linked:
				app.say(cmd, "Started %s in %s (%s)", res.Item.ID, res.Item.Worktree.Path, res.Item.Worktree.Branch)
			case res.Started:
				app.say(cmd, "Started %s", res.Item.ID)
			case res.Linked:
				app.say(cmd, "Linked %s to %s", res.Item.ID, res.Item.Worktree.Path)
			default:
				app.say(cmd, "%s is already running", res.Item.ID)
			}
			return app.emit(cmd, res, func() string { return formatter.FormatItem(res.Item, app.now()) })
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "Session id for the linkage")

	return cmd
}

func newPickCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "pick <id>",
		Short: "Start an item or subitem without touching its worktree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, started, err := app.Worktrees.Pick(cmd.Context(), app.teamName(), args[0])
			if err != nil {
				return err
			}
			verb := "Picked"
			if !started {
				verb = "Already working on"
			}
			return app.printCard(cmd, c, nil, verb)
		},
	}
}
