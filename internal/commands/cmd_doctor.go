package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/mend/internal/core/doctor"
	"github.com/colonyops/mend/internal/data/stores"
	"github.com/colonyops/mend/internal/merge"
	"github.com/colonyops/mend/pkg/iojson"
)

var (
	doctorTitle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7")).Bold(true)
	doctorHeading = lipgloss.NewStyle().Bold(true)
	doctorMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	doctorPass    = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a"))
	doctorWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68"))
	doctorFail    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e"))
)

type DoctorCmd struct {
	flags   *Flags
	app     *merge.App
	format  string
	autofix bool
}

func NewDoctorCmd(flags *Flags, app *merge.App) *DoctorCmd {
	return &DoctorCmd{flags: flags, app: app}
}

func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "doctor",
		Usage:       "Run health checks on your mend setup",
		UsageText:   "mend doctor [options]",
		Description: "Runs diagnostic checks on configuration, tools, the database schema, and stored sessions.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "autofix",
				Usage:       "automatically fix issues (e.g., delete orphaned sessions)",
				Destination: &cmd.autofix,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	results := doctor.RunAll(ctx, []doctor.Check{
		doctor.NewConfigCheck(cmd.app.Config, cmd.flags.ConfigPath),
		doctor.NewToolsCheck(cmd.app.Config.GitPath),
		doctor.NewDatabaseCheck(cmd.app.DB),
		doctor.NewSessionsCheck(stores.NewSessionStore(cmd.app.DB), cmd.autofix),
	})

	if cmd.format == "json" {
		return cmd.outputJSON(c, results)
	}

	return cmd.outputText(results)
}

func (cmd *DoctorCmd) outputJSON(c *cli.Command, results []doctor.Result) error {
	passed, warned, failed := doctor.Summary(results)

	out := struct {
		Healthy bool            `json:"healthy"`
		Summary summaryJSON     `json:"summary"`
		Checks  []doctor.Result `json:"checks"`
	}{
		Healthy: failed == 0,
		Summary: summaryJSON{Passed: passed, Warned: warned, Failed: failed},
		Checks:  results,
	}

	return iojson.WriteWith(c.Root().Writer, os.Stderr, out)
}

type summaryJSON struct {
	Passed int `json:"passed"`
	Warned int `json:"warned"`
	Failed int `json:"failed"`
}

func (cmd *DoctorCmd) outputText(results []doctor.Result) error {
	w := os.Stderr
	divider := doctorMuted.Render(strings.Repeat("─", 40))

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, doctorTitle.Render("Mend Doctor"))
	_, _ = fmt.Fprintln(w, divider)
	_, _ = fmt.Fprintln(w)

	for _, result := range results {
		_, _ = fmt.Fprintln(w, doctorHeading.Render(result.Name))

		for _, item := range result.Items {
			var detail string
			if item.Detail != "" {
				detail = " " + doctorMuted.Render(item.Detail)
			}

			var icon string
			switch item.Status {
			case doctor.StatusPass:
				icon = doctorPass.Render("✔")
			case doctor.StatusWarn:
				icon = doctorWarn.Render("●")
			case doctor.StatusFail:
				icon = doctorFail.Render("✘")
			}

			_, _ = fmt.Fprintf(w, "  %s %s%s\n", icon, item.Label, detail)
		}

		_, _ = fmt.Fprintln(w)
	}

	passed, warned, failed := doctor.Summary(results)
	summary := fmt.Sprintf("%s  %s  %s",
		doctorPass.Render(fmt.Sprintf("%d passed", passed)),
		doctorWarn.Render(fmt.Sprintf("%d warnings", warned)),
		doctorFail.Render(fmt.Sprintf("%d failed", failed)),
	)
	_, _ = fmt.Fprintln(w, summary)

	if !cmd.autofix {
		fixable := doctor.CountFixable(results)
		if fixable > 0 {
			_, _ = fmt.Fprintln(w)
			hint := doctorMuted.Render(fmt.Sprintf("Run 'mend doctor --autofix' to fix %d issue(s)", fixable))
			_, _ = fmt.Fprintln(w, hint)
		}
	}

	if failed > 0 {
		return cli.Exit("", 1)
	}

	return nil
}
