package commands

import (
	"context"
	"fmt"

	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/mend/internal/core/conflict"
	"github.com/colonyops/mend/internal/merge"
	"github.com/colonyops/mend/pkg/iojson"
)

type BatchCmd struct {
	flags *Flags
	app   *merge.App
	fr    *iojson.FileReader[BatchInput]
}

func NewBatchCmd(flags *Flags, app *merge.App) *BatchCmd {
	return &BatchCmd{
		flags: flags,
		app:   app,
		fr:    &iojson.FileReader[BatchInput]{},
	}
}

func (cmd *BatchCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "batch",
		Usage: "Apply several resolutions from JSON input",
		UsageText: `mend batch [options] <session|path>

Read from stdin:
  echo '{"resolutions":[{"index":0,"kind":"current"}]}' | mend batch main.go

Read from file:
  mend batch -f resolutions.json main.go`,
		Description: `Applies resolutions to the regions of one session, in input order.

The whole input is validated first; nothing is applied when it is invalid.
Processing stops after 3 failures. Resolutions not attempted are marked as
skipped.

Input JSON schema:
  {
    "resolutions": [
      {"index": 0, "kind": "current|incoming|both|custom", "text": "custom only"}
    ]
  }

Output is JSON with the final session state and a result per resolution.`,
		Flags: []cli.Flag{
			cmd.fr.Flag(),
		},
		ShellComplete: SessionCompleter(cmd.app),
		Action:        cmd.run,
	})

	return app
}

func (cmd *BatchCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return iojson.WriteError("expected exactly one session", nil)
	}

	sess, err := resolveSession(ctx, cmd.app, c.Args().First())
	if err != nil {
		return iojson.WriteError(err.Error(), nil)
	}

	input, err := cmd.fr.Read()
	if err != nil {
		return iojson.WriteError(fmt.Sprintf("read input: %s", err), nil)
	}

	if err := input.Validate(cmd.app.Config.Merge.MarkerSize); err != nil {
		return iojson.WriteError(fmt.Sprintf("invalid input: %s", err), nil)
	}

	output := BatchOutput{
		SessionID: sess.ID,
		Results:   make([]BatchResult, 0, len(input.Resolutions)),
	}

	failures := 0
	for i, item := range input.Resolutions {
		if failures >= maxFailures {
			for j := i; j < len(input.Resolutions); j++ {
				output.Results = append(output.Results, BatchResult{
					Index:  input.Resolutions[j].Index,
					Status: StatusSkipped,
				})
			}
			break
		}

		result := cmd.apply(ctx, sess.ID, item)
		output.Results = append(output.Results, result)
		if result.Status == StatusFailed {
			failures++
		}
	}

	if latest, err := cmd.app.Sessions.Lookup(ctx, sess.ID); err == nil {
		output.State = string(latest.State)
	}

	return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, output)
}

func (cmd *BatchCmd) apply(ctx context.Context, sessionID string, item BatchResolution) BatchResult {
	r, err := item.Resolution()
	if err != nil {
		return BatchResult{Index: item.Index, Status: StatusFailed, Error: err.Error()}
	}

	if _, err := cmd.app.Sessions.ApplyResolution(ctx, sessionID, item.Index, r); err != nil {
		return BatchResult{Index: item.Index, Status: StatusFailed, Error: err.Error()}
	}

	return BatchResult{Index: item.Index, Status: StatusApplied}
}

const (
	StatusApplied = "applied" // StatusApplied indicates the resolution was applied.
	StatusFailed  = "failed"  // StatusFailed indicates the resolution was rejected.
	StatusSkipped = "skipped" // StatusSkipped indicates the resolution was not attempted due to failure threshold.
	maxFailures   = 3         // maxFailures is the number of failures before stopping batch processing.
)

// BatchInput is the JSON input schema for batch resolution.
type BatchInput struct {
	Resolutions []BatchResolution `json:"resolutions"`
}

// Validate checks the batch input for errors using criterio. Custom text is
// checked against markers of the default size and of markerSize.
func (b BatchInput) Validate(markerSize int) error {
	if len(b.Resolutions) == 0 {
		return criterio.NewFieldErrors("resolutions", fmt.Errorf("array is empty"))
	}

	var errs criterio.FieldErrorsBuilder
	seen := make(map[int]bool)

	for i, item := range b.Resolutions {
		field := fmt.Sprintf("resolutions[%d]", i)

		if item.Index < 0 {
			errs = errs.Append(field+".index", fmt.Errorf("must not be negative"))
			continue
		}

		if seen[item.Index] {
			errs = errs.Append(field+".index", fmt.Errorf("duplicate index %d", item.Index))
			continue
		}
		seen[item.Index] = true

		if _, err := item.Resolution(); err != nil {
			errs = errs.Append(field+".kind", err)
			continue
		}

		if err := conflict.ValidateCustom(item.Text, markerSize); err != nil {
			errs = errs.Append(field+".text", err)
		}
	}

	return errs.ToError()
}

// BatchResolution is one region's resolution.
type BatchResolution struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
	Text  string `json:"text,omitempty"`
}

// Resolution parses the kind and text.
func (b BatchResolution) Resolution() (conflict.Resolution, error) {
	kind, err := conflict.ParseKind(b.Kind)
	if err != nil {
		return nil, err
	}
	return conflict.ParseResolution(kind, b.Text)
}

// BatchResult is the output for a single resolution attempt.
type BatchResult struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// BatchOutput is the JSON output schema.
type BatchOutput struct {
	SessionID string        `json:"session_id"`
	State     string        `json:"state"`
	Results   []BatchResult `json:"results"`
}
