package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/mend/internal/data/stores"
	"github.com/colonyops/mend/internal/merge"
	"github.com/colonyops/mend/internal/printer"
	"github.com/colonyops/mend/pkg/iojson"
)

type CommitCmd struct {
	flags *Flags
	app   *merge.App

	// flags
	jsonOutput bool
}

// NewCommitCmd creates the commit and discard commands
func NewCommitCmd(flags *Flags, app *merge.App) *CommitCmd {
	return &CommitCmd{flags: flags, app: app}
}

// Register adds the commit and discard commands to the application
func (cmd *CommitCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "commit",
			Usage:     "Write and stage a resolved file",
			UsageText: "mend commit [--json] <session|path>",
			Description: `Writes the resolved file and stages it. When it was the last conflicted
file of the merge, the merge commit is created with both parents.

The file must not have changed since the session was opened; otherwise the
session is discarded and nothing is written. Requires the commit_code
permission for --user.`,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:        "json",
					Usage:       "output as JSON",
					Destination: &cmd.jsonOutput,
				},
			},
			ShellComplete: SessionCompleter(cmd.app),
			Action:        cmd.runCommit,
		},
		&cli.Command{
			Name:          "discard",
			Usage:         "Abandon a session without writing anything",
			UsageText:     "mend discard <session|path>",
			ShellComplete: SessionCompleter(cmd.app),
			Action:        cmd.runDiscard,
		},
	)

	return app
}

// commitOutput is the JSON output format for mend commit.
type commitOutput struct {
	merge.CommitResult
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (cmd *CommitCmd) runCommit(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one session")
	}

	sess, err := resolveSession(ctx, cmd.app, c.Args().First())
	if err != nil {
		return err
	}

	result, err := cmd.app.Sessions.CommitSession(ctx, sess.ID, cmd.flags.User)

	if cmd.jsonOutput {
		out := commitOutput{CommitResult: result}
		if err != nil {
			out.Error = err.Error()
			var commitErr *merge.CommitError
			out.Retryable = errors.As(err, &commitErr) && commitErr.Retryable()
		}
		if writeErr := iojson.WriteLine(c.Root().Writer, out); writeErr != nil {
			return writeErr
		}
		if err != nil {
			return cli.Exit("", 1)
		}
		return nil
	}

	p := printer.Ctx(ctx)
	if result.BlobID != "" {
		p.Successf("Staged %s (%s)", sess.FilePath, shortID(result.BlobID))
	}

	if err != nil {
		return explainCommitError(p, err)
	}

	switch {
	case result.CommitID != "":
		p.Successf("Created merge commit %s", shortID(result.CommitID))
	case len(result.Pending) > 0:
		p.Infof("%d file(s) still conflicted:", len(result.Pending))
		for _, path := range result.Pending {
			p.Printf("  %s", path)
		}
	}
	return nil
}

func (cmd *CommitCmd) runDiscard(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one session")
	}

	sess, err := resolveSession(ctx, cmd.app, c.Args().First())
	if err != nil {
		return err
	}

	if err := cmd.app.Sessions.DiscardSession(ctx, sess.ID); err != nil {
		return err
	}

	printer.Ctx(ctx).Successf("Discarded session for %s", sess.FilePath)
	return nil
}

func explainCommitError(p *printer.Printer, err error) error {
	switch {
	case errors.Is(err, merge.ErrStale):
		p.Errorf("The file changed after the session was opened; the session was discarded")
		p.Printf("  Run 'mend open' on the file again")
	case errors.Is(err, merge.ErrPermissionDenied):
		p.Errorf("Permission denied: %v", err)
	case stores.IsBusyError(err):
		p.Errorf("The session database is locked by another mend process")
		p.Printf("  Wait for it to finish and run the command again")
	case errors.Is(err, merge.ErrStorageFailure):
		p.Errorf("%v", err)
		p.Printf("  This can be retried; use 'mend merge finish' if the file was already staged")
	default:
		return err
	}
	return cli.Exit("", 1)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
