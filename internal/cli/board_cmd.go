package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alexanderramin/kanban/internal/cli/formatter"
	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newBoardCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show, export and watch a team board",
	}
	cmd.AddCommand(
		newBoardShowCmd(app),
		newBoardExportCmd(app),
		newBoardWatchCmd(app),
		newBoardTeamsCmd(app),
	)
	return cmd
}

func newBoardShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Render the board as status columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := app.Boards.Get(cmd.Context(), app.teamName())
			if err != nil {
				return err
			}
			return app.emit(cmd, b, func() string { return formatter.FormatBoard(b, app.now()) })
		},
	}
}

func newBoardExportCmd(app *App) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the complete board document to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := app.Boards.Get(cmd.Context(), app.teamName())
			if err != nil {
				return err
			}
			switch strings.ToLower(format) {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(b)
			case "yaml", "yml":
				return exportYAML(cmd.OutOrStdout(), b)
			default:
				return fmt.Errorf("%w: unknown export format %q (json, yaml)", domain.ErrValidation, format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml or json")

	return cmd
}

// exportYAML re-encodes the board's JSON document as block-style YAML. Going
// through the JSON form keeps the stored member names, their order, and any
// members this version does not model.
func exportYAML(w io.Writer, b *domain.Board) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("converting board to yaml: %w", err)
	}
	blockStyle(&doc)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func newBoardWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Redraw the board whenever another process changes it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Watch == nil {
				return fmt.Errorf("board watch needs the file backend")
			}
			team := strings.ToLower(app.teamName())
			draw := func() {
				b, err := app.Boards.Get(cmd.Context(), team)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), formatter.StyleRed.Render("reload failed: "+err.Error()))
					return
				}
				if !app.jsonOut {
					fmt.Fprint(cmd.OutOrStdout(), "\033[H\033[2J")
				}
				_ = app.emit(cmd, b, func() string { return formatter.FormatBoard(b, app.now()) })
			}

			if _, err := app.Boards.Get(cmd.Context(), team); err != nil {
				return err
			}
			draw()
			return app.Watch(cmd.Context(), func(changed string) {
				if changed == team {
					draw()
				}
			})
		},
	}
}

func newBoardTeamsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "List configured teams and teams with a stored board",
		RunE: func(cmd *cobra.Command, args []string) error {
			teams, err := app.Boards.Teams(cmd.Context())
			if err != nil {
				return err
			}
			if teams == nil {
				teams = []string{}
			}
			return app.emit(cmd, teams, func() string {
				if len(teams) == 0 {
					return formatter.Dim("No teams configured.")
				}
				return strings.Join(teams, "\n")
			})
		},
	}
}
