package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/mend/internal/core/session"
	"github.com/colonyops/mend/internal/merge"
)

// SessionCompleter returns a ShellCompleteFunc that suggests the IDs of open
// sessions as positional completions. Set this as the ShellComplete field on
// any cli.Command that accepts a session as its first argument.
//
// When the user's last typed argument starts with "-", it falls back to the
// default flag completion behavior.
func SessionCompleter(app *merge.App) cli.ShellCompleteFunc {
	return func(ctx context.Context, cmd *cli.Command) {
		// Delegate to default flag completion when typing a flag
		if args := cmd.Args(); args.Present() {
			last := args.Slice()[args.Len()-1]
			if len(last) > 0 && last[0] == '-' {
				cli.DefaultCompleteWithFlags(ctx, cmd)
				return
			}
		}

		if app == nil || app.Sessions == nil {
			return
		}

		sessions, err := app.Sessions.List(ctx, session.ListFilter{})
		if err != nil {
			return
		}

		w := cmd.Root().Writer
		for _, s := range sessions {
			if s.State.Terminal() {
				continue
			}
			_, _ = fmt.Fprintf(w, "%s:%s\n", s.ID, s.FilePath)
		}
	}
}
