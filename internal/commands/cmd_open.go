package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/mend/internal/merge"
	"github.com/colonyops/mend/internal/printer"
	"github.com/colonyops/mend/pkg/iojson"
)

type OpenCmd struct {
	flags *Flags
	app   *merge.App

	// flags
	repo       string
	jsonOutput bool
}

// NewOpenCmd creates a new open command
func NewOpenCmd(flags *Flags, app *merge.App) *OpenCmd {
	return &OpenCmd{flags: flags, app: app}
}

// Register adds the open command to the application
func (cmd *OpenCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "open",
		Usage:     "Start resolving a conflicted file",
		UsageText: "mend open [--repo dir] [--json] <path>",
		Description: `Parses the conflict markers in <path> and opens a session for it.

Opening a file that already has a session returns that session, unless the
file changed since; then the old session is discarded and a new one opened.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "repo",
				Usage:       "repository directory (defaults to the current directory)",
				Destination: &cmd.repo,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

// openOutput is the JSON output format for mend open.
type openOutput struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Regions int    `json:"regions"`
	State   string `json:"state"`
}

func (cmd *OpenCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one path")
	}

	repo, err := repoFor(ctx, cmd.app, cmd.repo)
	if err != nil {
		return err
	}
	rel, err := relPath(repo, c.Args().First())
	if err != nil {
		return err
	}

	sess, err := cmd.app.Sessions.OpenSession(ctx, repo, rel)
	if err != nil {
		return err
	}

	if cmd.jsonOutput {
		return iojson.WriteLine(c.Root().Writer, openOutput{
			ID:      sess.ID,
			Path:    sess.FilePath,
			Regions: sess.Count(),
			State:   string(sess.State),
		})
	}

	p := printer.Ctx(ctx)
	p.Successf("Opened %s with %d conflict(s)", sess.FilePath, sess.Count())
	p.Printf("Session: %s", sess.ID)
	return nil
}
