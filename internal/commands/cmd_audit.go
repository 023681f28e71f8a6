package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/mend/internal/core/audit"
	"github.com/colonyops/mend/internal/merge"
	"github.com/colonyops/mend/pkg/iojson"
)

type AuditCmd struct {
	flags *Flags
	app   *merge.App

	// flags
	jsonOutput bool
	action     string
	user       string
	limit      int
}

// NewAuditCmd creates a new audit command
func NewAuditCmd(flags *Flags, app *merge.App) *AuditCmd {
	return &AuditCmd{flags: flags, app: app}
}

// Register adds the audit command to the application
func (cmd *AuditCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "audit",
		Usage: "Inspect the audit trail",
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List recorded actions, newest first",
				UsageText: "mend audit ls [--action a] [--user u] [--limit n] [--json]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "action",
						Usage:       "only list this action (e.g. commit.failed)",
						Destination: &cmd.action,
					},
					&cli.StringFlag{
						Name:        "for-user",
						Usage:       "only list actions of this user",
						Destination: &cmd.user,
					},
					&cli.IntFlag{
						Name:        "limit",
						Usage:       "maximum number of entries",
						Value:       50,
						Destination: &cmd.limit,
					},
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output as JSON lines",
						Destination: &cmd.jsonOutput,
					},
				},
				Action: cmd.runList,
			},
		},
	})
	return app
}

func (cmd *AuditCmd) runList(ctx context.Context, c *cli.Command) error {
	entries, err := cmd.app.Audit.List(ctx, audit.ListFilter{
		Action: audit.Action(cmd.action),
		UserID: cmd.user,
		Limit:  cmd.limit,
	})
	if err != nil {
		return fmt.Errorf("list audit entries: %w", err)
	}

	if len(entries) == 0 {
		if !cmd.jsonOutput {
			fmt.Fprintf(os.Stderr, "No audit entries found\n")
		}
		return nil
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		for _, e := range entries {
			if err := iojson.WriteLine(out, e); err != nil {
				return fmt.Errorf("encode entry: %w", err)
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tUSER\tACTION\tDESCRIPTION")
	for _, e := range entries {
		user := e.UserID
		if user == "" {
			user = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime), user, e.Action, e.Description)
	}
	return w.Flush()
}
