package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/mend/internal/core/conflict"
	"github.com/colonyops/mend/internal/core/session"
	"github.com/colonyops/mend/internal/merge"
	"github.com/colonyops/mend/internal/printer"
	"github.com/colonyops/mend/pkg/iojson"
)

type ShowCmd struct {
	flags *Flags
	app   *merge.App

	// flags
	jsonOutput bool
}

// NewShowCmd creates a new show command
func NewShowCmd(flags *Flags, app *merge.App) *ShowCmd {
	return &ShowCmd{flags: flags, app: app}
}

// Register adds the show command to the application
func (cmd *ShowCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "show",
		Usage:     "Show the regions of a session",
		UsageText: "mend show [--json] <session|path> [index]",
		Description: `Prints the current, base, and incoming side of each conflict region.

With an index only that region is shown. Resolved regions are marked with the
resolution applied to them.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.jsonOutput,
			},
		},
		ShellComplete: SessionCompleter(cmd.app),
		Action:        cmd.run,
	})

	return app
}

// regionOutput is the JSON output format for mend show.
type regionOutput struct {
	conflict.RegionView
	Resolution string `json:"resolution,omitempty"`
}

func (cmd *ShowCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() < 1 || c.Args().Len() > 2 {
		return fmt.Errorf("expected a session and an optional region index")
	}

	sess, err := resolveSession(ctx, cmd.app, c.Args().First())
	if err != nil {
		return err
	}

	indices := make([]int, 0, sess.Count())
	if c.Args().Len() == 2 {
		idx, err := strconv.Atoi(c.Args().Get(1))
		if err != nil {
			return fmt.Errorf("invalid region index %q", c.Args().Get(1))
		}
		indices = append(indices, idx)
	} else {
		for i := range sess.Count() {
			indices = append(indices, i)
		}
	}

	p := printer.Ctx(ctx)
	if !cmd.jsonOutput {
		p.Infof("%s: %s (%d of %d resolved)", sess.FilePath, sess.State, sess.ResolvedCount(), sess.Count())
	}

	for _, idx := range indices {
		view, err := cmd.app.Sessions.GetRegionView(ctx, sess.ID, idx)
		if err != nil {
			return err
		}

		kind := resolutionKind(sess, idx)
		if cmd.jsonOutput {
			if err := iojson.WriteLine(c.Root().Writer, regionOutput{RegionView: view, Resolution: kind}); err != nil {
				return fmt.Errorf("encode region: %w", err)
			}
			continue
		}

		printRegion(p, view, kind)
	}

	return nil
}

func resolutionKind(sess *session.Session, idx int) string {
	r, ok := sess.Resolution(idx)
	if !ok {
		return ""
	}
	return string(r.Kind())
}

func printRegion(p *printer.Printer, view conflict.RegionView, kind string) {
	p.Printf("")
	header := fmt.Sprintf("Region %d/%d at line %d", view.Index, view.Count-1, view.StartLine)
	if kind != "" {
		p.Successf("%s [%s]", header, kind)
	} else {
		p.Warnf("%s [unresolved]", header)
	}

	p.Mutedf("current %s", view.CurrentLabel)
	p.Lines("  < ", view.Current)
	if view.HasBase {
		p.Mutedf("base %s", view.BaseLabel)
		p.Lines("  | ", view.Base)
	}
	p.Mutedf("incoming %s", view.IncomingLabel)
	p.Lines("  > ", view.Incoming)
}
