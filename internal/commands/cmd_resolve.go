package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/mend/internal/core/conflict"
	"github.com/colonyops/mend/internal/core/session"
	"github.com/colonyops/mend/internal/merge"
	"github.com/colonyops/mend/internal/printer"
)

type ResolveCmd struct {
	flags *Flags
	app   *merge.App

	// flags
	text     string
	textFile string
	all      bool
}

// NewResolveCmd creates the apply and clear commands
func NewResolveCmd(flags *Flags, app *merge.App) *ResolveCmd {
	return &ResolveCmd{flags: flags, app: app}
}

// Register adds the apply and clear commands to the application
func (cmd *ResolveCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "apply",
			Usage:     "Resolve a conflict region",
			UsageText: "mend apply <session|path> <index> <current|incoming|both|custom> [--text s | --text-file f]\n   mend apply --all <session|path> <current|incoming|both>",
			Description: `Applies a resolution to one region. Applying again replaces the earlier choice.

Custom text comes from --text, or from --text-file ("-" reads stdin). Text
containing a conflict marker line is rejected and the session is unchanged.`,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:        "text",
					Usage:       "replacement text for a custom resolution",
					Destination: &cmd.text,
				},
				&cli.StringFlag{
					Name:        "text-file",
					Usage:       "read custom text from a file, - for stdin",
					Destination: &cmd.textFile,
				},
				&cli.BoolFlag{
					Name:        "all",
					Usage:       "apply to every unresolved region",
					Destination: &cmd.all,
				},
			},
			ShellComplete: SessionCompleter(cmd.app),
			Action:        cmd.runApply,
		},
		&cli.Command{
			Name:          "clear",
			Usage:         "Remove the resolution of a region",
			UsageText:     "mend clear <session|path> <index>",
			ShellComplete: SessionCompleter(cmd.app),
			Action:        cmd.runClear,
		},
	)

	return app
}

func (cmd *ResolveCmd) runApply(ctx context.Context, c *cli.Command) error {
	args := c.Args().Slice()

	want := 3
	if cmd.all {
		want = 2
	}
	if len(args) != want {
		return fmt.Errorf("expected %d arguments, got %d", want, len(args))
	}

	sess, err := resolveSession(ctx, cmd.app, args[0])
	if err != nil {
		return err
	}

	kind, err := conflict.ParseKind(args[len(args)-1])
	if err != nil {
		return err
	}

	text, err := cmd.customText(kind)
	if err != nil {
		return err
	}

	r, err := conflict.ParseResolution(kind, text)
	if err != nil {
		return err
	}

	var state session.State
	if cmd.all {
		state, err = cmd.app.Sessions.ApplyAll(ctx, sess.ID, r)
	} else {
		idx, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			return fmt.Errorf("invalid region index %q", args[1])
		}
		state, err = cmd.app.Sessions.ApplyResolution(ctx, sess.ID, idx, r)
	}
	if err != nil {
		return err
	}

	reportState(printer.Ctx(ctx), sess, state)
	return nil
}

func (cmd *ResolveCmd) runClear(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("expected a session and a region index")
	}

	sess, err := resolveSession(ctx, cmd.app, c.Args().First())
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("invalid region index %q", c.Args().Get(1))
	}

	state, err := cmd.app.Sessions.Clear(ctx, sess.ID, idx)
	if err != nil {
		return err
	}

	reportState(printer.Ctx(ctx), sess, state)
	return nil
}

func (cmd *ResolveCmd) customText(kind conflict.Kind) (string, error) {
	if kind != conflict.KindCustom {
		if cmd.text != "" || cmd.textFile != "" {
			return "", fmt.Errorf("--text and --text-file only apply to custom resolutions")
		}
		return "", nil
	}

	switch {
	case cmd.text != "" && cmd.textFile != "":
		return "", fmt.Errorf("use either --text or --text-file")
	case cmd.textFile == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	case cmd.textFile != "":
		data, err := os.ReadFile(cmd.textFile)
		if err != nil {
			return "", fmt.Errorf("read text file: %w", err)
		}
		return string(data), nil
	default:
		return cmd.text, nil
	}
}

func reportState(p *printer.Printer, sess *session.Session, state session.State) {
	switch state {
	case session.StateResolved:
		p.Successf("%s is resolved; run 'mend commit %s' to write it", sess.FilePath, sess.ID)
	default:
		p.Infof("%s: %s", sess.FilePath, state)
	}
}
