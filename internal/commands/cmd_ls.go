package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/mend/internal/core/session"
	"github.com/colonyops/mend/internal/merge"
	"github.com/colonyops/mend/pkg/iojson"
)

type LsCmd struct {
	flags *Flags
	app   *merge.App

	// flags
	jsonOutput bool
	all        bool
	state      string
}

// NewLsCmd creates a new ls command
func NewLsCmd(flags *Flags, app *merge.App) *LsCmd {
	return &LsCmd{flags: flags, app: app}
}

// Register adds the ls command to the application
func (cmd *LsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "ls",
		Usage:     "List conflict sessions",
		UsageText: "mend ls [--all] [--state s] [--json]",
		Description: `Displays a table of the sessions of the current repository with their file,
state, and progress.

Use --all to list sessions of every repository.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.jsonOutput,
			},
			&cli.BoolFlag{
				Name:        "all",
				Usage:       "list sessions of all repositories",
				Destination: &cmd.all,
			},
			&cli.StringFlag{
				Name:        "state",
				Usage:       "only list sessions in this state",
				Destination: &cmd.state,
			},
		},
		Action: cmd.run,
	})

	return app
}

// sessionInfo is the JSON output format for mend ls --json.
type sessionInfo struct {
	ID         string `json:"id"`
	Repository string `json:"repository"`
	Path       string `json:"path"`
	State      string `json:"state"`
	Resolved   int    `json:"resolved"`
	Regions    int    `json:"regions"`
}

func (cmd *LsCmd) run(ctx context.Context, c *cli.Command) error {
	var filter session.ListFilter

	if cmd.state != "" {
		st, err := session.ParseState(cmd.state)
		if err != nil {
			return err
		}
		filter.State = st
	}

	if !cmd.all {
		repo, err := repoFor(ctx, cmd.app, "")
		if err != nil {
			return err
		}
		filter.RepositoryID = repo
	}

	sessions, err := cmd.app.Sessions.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(sessions) == 0 {
		if !cmd.jsonOutput {
			fmt.Fprintf(os.Stderr, "No sessions found\n")
		}
		return nil
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		for _, s := range sessions {
			info := sessionInfo{
				ID:         s.ID,
				Repository: s.RepositoryID,
				Path:       s.FilePath,
				State:      string(s.State),
				Resolved:   s.ResolvedCount(),
				Regions:    s.Count(),
			}
			if err := iojson.WriteLine(out, info); err != nil {
				return fmt.Errorf("encode session: %w", err)
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if cmd.all {
		_, _ = fmt.Fprintln(w, "ID\tREPO\tPATH\tSTATE\tRESOLVED")
	} else {
		_, _ = fmt.Fprintln(w, "ID\tPATH\tSTATE\tRESOLVED")
	}

	for _, s := range sessions {
		progress := fmt.Sprintf("%d/%d", s.ResolvedCount(), s.Count())
		if cmd.all {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.RepositoryID, s.FilePath, s.State, progress)
		} else {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.FilePath, s.State, progress)
		}
	}

	return w.Flush()
}
