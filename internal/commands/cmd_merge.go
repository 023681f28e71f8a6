package commands

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/mend/internal/core/git"
	"github.com/colonyops/mend/internal/core/mergeset"
	"github.com/colonyops/mend/internal/merge"
	"github.com/colonyops/mend/internal/printer"
	"github.com/colonyops/mend/pkg/iojson"
)

type MergeCmd struct {
	flags *Flags
	app   *merge.App

	// flags
	repo       string
	jsonOutput bool
}

// NewMergeCmd creates a new merge command
func NewMergeCmd(flags *Flags, app *merge.App) *MergeCmd {
	return &MergeCmd{flags: flags, app: app}
}

// Register adds the merge command to the application
func (cmd *MergeCmd) Register(app *cli.Command) *cli.Command {
	repoFlag := &cli.StringFlag{
		Name:        "repo",
		Usage:       "repository directory (defaults to the current directory)",
		Destination: &cmd.repo,
	}
	jsonFlag := &cli.BoolFlag{
		Name:        "json",
		Usage:       "output as JSON",
		Destination: &cmd.jsonOutput,
	}

	app.Commands = append(app.Commands, &cli.Command{
		Name:  "merge",
		Usage: "Inspect and finish the merge in progress",
		Description: `Commands for the merge as a whole rather than a single file.

Use 'mend merge status' to see which files are still conflicted.`,
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show staged and pending files of the merge",
				Flags:  []cli.Flag{repoFlag, jsonFlag},
				Action: cmd.runStatus,
			},
			{
				Name:  "finish",
				Usage: "Create the merge commit",
				Description: `Creates the merge commit once every conflicted file is staged. Use it when
the commit failed after the last file was staged.`,
				Flags:  []cli.Flag{repoFlag, jsonFlag},
				Action: cmd.runFinish,
			},
		},
	})
	return app
}

// statusOutput is the JSON output format for mend merge status.
type statusOutput struct {
	mergeset.MergeSet
	Pending []string       `json:"pending"`
	Stats   []git.FileStat `json:"stats,omitempty"`
}

func (cmd *MergeCmd) runStatus(ctx context.Context, c *cli.Command) error {
	repo, err := repoFor(ctx, cmd.app, cmd.repo)
	if err != nil {
		return err
	}

	p := printer.Ctx(ctx)

	set, err := cmd.app.Sessions.Coordinator().Track(ctx, repo)
	if errors.Is(err, mergeset.ErrNotFound) {
		if cmd.jsonOutput {
			return iojson.WriteLine(c.Root().Writer, map[string]any{"merging": false})
		}
		p.Infof("No merge in progress")
		return nil
	}
	if err != nil {
		return err
	}

	stats, err := cmd.app.Git.StagedStats(ctx, repo)
	if err != nil {
		p.Warnf("could not read staged changes: %v", err)
	}

	if cmd.jsonOutput {
		return iojson.WriteLine(c.Root().Writer, statusOutput{MergeSet: set, Pending: set.Pending(), Stats: stats})
	}

	p.Infof("Merging %s into %s", shortID(set.Parents.Incoming), shortID(set.Parents.Current))

	byPath := make(map[string]git.FileStat, len(stats))
	for _, s := range stats {
		byPath[s.Path] = s
	}

	for _, f := range set.Files {
		if !f.Staged {
			p.Warnf("%s", f.Path)
			continue
		}
		if s, ok := byPath[f.Path]; ok && !s.Binary {
			p.Successf("%s (+%d -%d)", f.Path, s.Added, s.Deleted)
		} else {
			p.Successf("%s", f.Path)
		}
	}

	if pending := set.Pending(); len(pending) > 0 {
		p.Printf("")
		p.Infof("%d of %d file(s) still conflicted", len(pending), len(set.Files))
	} else {
		p.Printf("")
		p.Infof("All files staged; run 'mend merge finish' to commit")
	}
	return nil
}

func (cmd *MergeCmd) runFinish(ctx context.Context, c *cli.Command) error {
	repo, err := repoFor(ctx, cmd.app, cmd.repo)
	if err != nil {
		return err
	}

	result, err := cmd.app.Sessions.Finalize(ctx, cmd.flags.User, repo)

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
	if errors.Is(err, merge.ErrIncompleteMergeSet) {
		p.Errorf("Merge is not finished")
		for _, path := range result.Pending {
			p.Printf("  %s", path)
		}
		return cli.Exit("", 1)
	}
	if err != nil {
		return explainCommitError(p, err)
	}

	p.Successf("Created merge commit %s", shortID(result.CommitID))
	return nil
}

