package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/mend/internal/core/eventbus"
	"github.com/colonyops/mend/internal/core/logging"
	"github.com/colonyops/mend/internal/merge"
	"github.com/colonyops/mend/internal/printer"
)

type WatchCmd struct {
	flags *Flags
	app   *merge.App

	// flags
	repo     string
	debounce time.Duration
}

// NewWatchCmd creates a new watch command
func NewWatchCmd(flags *Flags, app *merge.App) *WatchCmd {
	return &WatchCmd{flags: flags, app: app}
}

// Register adds the watch command to the application
func (cmd *WatchCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "watch",
		Usage: "Discard sessions as soon as their files change",
		Description: `Watches the files of the repository's open sessions. When one is changed by
another tool, its session is discarded right away instead of at commit time.

Runs until interrupted.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "repo",
				Usage:       "repository directory (defaults to the current directory)",
				Destination: &cmd.repo,
			},
			&cli.DurationFlag{
				Name:        "debounce",
				Usage:       "wait this long after the last change before checking (defaults to merge.watch_debounce)",
				Destination: &cmd.debounce,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *WatchCmd) run(ctx context.Context, c *cli.Command) error {
	repo, err := repoFor(ctx, cmd.app, cmd.repo)
	if err != nil {
		return err
	}

	debounce := cmd.debounce
	if debounce == 0 {
		debounce = cmd.app.Config.Merge.WatchDebounce
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := printer.Ctx(ctx)

	cmd.app.Bus.SubscribeSessionStale(func(e eventbus.SessionStalePayload) {
		p.Warnf("%s changed; session %s discarded", e.Session.FilePath, e.Session.ID)
	})

	p.Infof("Watching %s (Ctrl+C to stop)", repo)

	w := merge.NewWatcher(cmd.app.Sessions, repo, debounce, logging.Component("watch"))
	return w.Run(ctx, nil)
}
