package cli

import (
	"errors"
	"strings"

	"github.com/alexanderramin/kanban/internal/cli/formatter"
	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/service"
	"github.com/spf13/cobra"
)

func newReleaseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "release",
		Aliases: []string{"releases", "rel"},
		Short:   "Plan releases and promote them through environments",
	}

	cmd.AddCommand(
		newReleaseCreateCmd(app),
		newReleaseListCmd(app),
		newReleaseShowCmd(app),
		newReleaseAssignCmd(app),
		newReleaseUnassignCmd(app),
		newReleasePromoteCmd(app),
		newReleaseVersionCmd(app),
		newReleaseStatusCmd(app),
		newReleaseVerifyCmd(app),
		newReleaseResyncCmd(app),
	)

	return cmd
}

func newReleaseCreateCmd(app *App) *cobra.Command {
	var id, typ, target, desc string
	var platforms []string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a release; every platform starts at DEV",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := service.ReleaseInput{
				ID:          id,
				Name:        strings.Join(args, " "),
				Platforms:   platforms,
				Description: desc,
			}
			if typ != "" {
				t, err := domain.ParseReleaseType(typ)
				if err != nil {
					return err
				}
				in.Type = t
			}
			d, err := parseDue(target, app.now())
			if err != nil {
				return err
			}
			in.TargetDate = d

			r, err := app.Releases.Create(cmd.Context(), app.teamName(), in)
			if err != nil {
				return err
			}
			app.say(cmd, "Created release %s %s", r.ID, formatter.Bold(r.Name))
			return app.emit(cmd, r, func() string {
				return formatter.FormatRelease(r, nil, domain.ManifestDiff{ReleaseID: r.ID}, app.now())
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Custom id (default REL-NN)")
	cmd.Flags().StringVar(&typ, "type", "", "feature (default), bugfix, hotfix, maintenance")
	cmd.Flags().StringSliceVar(&platforms, "platform", nil, "Platform (repeatable, e.g. --platform ios --platform android)")
	cmd.Flags().StringVar(&target, "target", "", "Target date")
	cmd.Flags().StringVarP(&desc, "desc", "d", "", "Description")
	_ = cmd.MarkFlagRequired("platform")

	return cmd
}

func newReleaseListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List releases",
		RunE: func(cmd *cobra.Command, args []string) error {
			releases, err := app.Releases.List(cmd.Context(), app.teamName())
			if err != nil {
				return err
			}
			if releases == nil {
				releases = []*domain.Release{}
			}
			if len(releases) == 0 && !app.jsonOut {
				app.say(cmd, "No releases found.")
				return nil
			}
			return app.emit(cmd, releases, func() string { return formatter.FormatReleaseList(releases, app.now()) })
		},
	}
}

func newReleaseShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <release-id>",
		Short: "Show a release, its platforms and its manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := app.Releases.Get(cmd.Context(), app.teamName(), args[0])
			if err != nil {
				return err
			}
			return app.emit(cmd, d, func() string {
				return formatter.FormatRelease(d.Release, d.Manifest, d.Diff, app.now())
			})
		},
	}
}

func newReleaseAssignCmd(app *App) *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "assign <item-id> <release-id>",
		Short: "Assign an item to a release platform",
		Long: "Assign an item to a release platform. The board and the release manifest\n" +
			"are written together. Items of another team's board cannot be assigned.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app.Releases.Assign(cmd.Context(), app.teamName(), args[0], args[1], platform)
			if err != nil {
				return err
			}
			app.say(cmd, "Assigned %s to %s (%s)", res.Item.ID, res.Release.ID, res.Item.Release.Platform)
			return app.emit(cmd, res, func() string {
				return formatter.FormatRelease(res.Release, res.Manifest, domain.ManifestDiff{ReleaseID: res.Release.ID}, app.now())
			})
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "Release platform the item ships on")
	_ = cmd.MarkFlagRequired("platform")

	return cmd
}

func newReleaseUnassignCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <item-id>",
		Short: "Remove an item from its release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app.Releases.Unassign(cmd.Context(), app.teamName(), args[0])
			if err != nil {
				return err
			}
			if res.Release == nil {
				app.say(cmd, "Unassigned %s", res.Item.ID)
				return app.emit(cmd, res, func() string { return formatter.FormatItem(res.Item, app.now()) })
			}
			app.say(cmd, "Unassigned %s from %s", res.Item.ID, res.Release.ID)
			return app.emit(cmd, res, func() string {
				return formatter.FormatRelease(res.Release, res.Manifest, domain.ManifestDiff{ReleaseID: res.Release.ID}, app.now())
			})
		},
	}
}

func newReleasePromoteCmd(app *App) *cobra.Command {
	var to, note string

	cmd := &cobra.Command{
		Use:   "promote <release-id> <platform>",
		Short: "Move a platform one environment up (DEV › QA › ALPHA › BETA › GAMMA › PROD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target domain.Environment
			if to != "" {
				env, err := domain.ParseEnvironment(to)
				if err != nil {
					return err
				}
				target = env
			}
			res, err := app.Releases.Promote(cmd.Context(), app.teamName(), args[0], args[1], target, note)
			if err != nil {
				return err
			}
			app.say(cmd, "Promoted %s %s: %s → %s", res.Release.ID, domain.NormalizePlatform(args[1]),
				formatter.EnvBadge(res.Promotion.From), formatter.EnvBadge(res.Promotion.To))
			return app.emit(cmd, res, func() string {
				return formatter.Ladder(res.Promotion.To)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Expected target environment (must be the next rung)")
	cmd.Flags().StringVar(&note, "note", "", "Note recorded in the environment history")

	return cmd
}

func newReleaseVersionCmd(app *App) *cobra.Command {
	var build int

	cmd := &cobra.Command{
		Use:   "version <release-id> <platform> [version]",
		Short: "Set the version and build number of a platform",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			version := ""
			if len(args) == 3 {
				version = args[2]
			}
			r, err := app.Releases.SetVersion(cmd.Context(), app.teamName(), args[0], args[1], version, build)
			if err != nil {
				return err
			}
			ps, _ := r.Platform(args[1])
			app.say(cmd, "%s %s is %s build %d", r.ID, domain.NormalizePlatform(args[1]), ps.Version, ps.BuildNumber)
			return app.emit(cmd, r, func() string {
				return formatter.FormatRelease(r, nil, domain.ManifestDiff{ReleaseID: r.ID}, app.now())
			})
		},
	}
	cmd.Flags().IntVar(&build, "build", 0, "Build number")

	return cmd
}

func newReleaseStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status <release-id> <planning|in_progress|completed|archived>",
		Short: "Set a release's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseReleaseStatus(args[1])
			if err != nil {
				return err
			}
			r, err := app.Releases.SetStatus(cmd.Context(), app.teamName(), args[0], st)
			if err != nil {
				return err
			}
			app.say(cmd, "%s is %s", r.ID, formatter.ReleaseStatusPill(r.Status))
			if app.jsonOut {
				return app.emit(cmd, r, nil)
			}
			return nil
		},
	}
}

func newReleaseVerifyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Compare every release manifest with the board; exit non-zero on divergence",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := app.Releases.Verify(cmd.Context(), app.teamName())
			var div *domain.DivergenceError
			if err != nil && !errors.As(err, &div) {
				return err
			}
			if perr := app.emit(cmd, report, func() string {
				return formatter.FormatManifestDiffs("verify "+report.Team, report.Diffs)
			}); perr != nil {
				return perr
			}
			return err
		},
	}
}

func newReleaseResyncCmd(app *App) *cobra.Command {
	var allTeams bool

	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Rewrite release manifests from the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			var reports []*service.ResyncReport
			if allTeams {
				var err error
				reports, err = app.Releases.ResyncAll(cmd.Context(), nil)
				if err != nil {
					return err
				}
			} else {
				r, err := app.Releases.Resync(cmd.Context(), app.teamName())
				if err != nil {
					return err
				}
				reports = []*service.ResyncReport{r}
			}
			return app.emit(cmd, reports, func() string {
				var b strings.Builder
				for _, r := range reports {
					b.WriteString(formatter.FormatManifestDiffs("resync "+r.Team, r.Corrected))
				}
				return strings.TrimRight(b.String(), "\n")
			})
		},
	}
	cmd.Flags().BoolVar(&allTeams, "all-teams", false, "Resync every board")

	return cmd
}
