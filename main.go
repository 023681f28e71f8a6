package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/mend/internal/commands"
	"github.com/colonyops/mend/internal/core/config"
	"github.com/colonyops/mend/internal/core/eventbus"
	"github.com/colonyops/mend/internal/core/git"
	"github.com/colonyops/mend/internal/core/logging"
	"github.com/colonyops/mend/internal/data/db"
	"github.com/colonyops/mend/internal/data/stores"
	"github.com/colonyops/mend/internal/merge"
	"github.com/colonyops/mend/internal/printer"
	"github.com/colonyops/mend/pkg/executil"
	"github.com/colonyops/mend/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, init() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	// When installed via `go install module@version`, ldflags aren't set
	// so version remains "dev". Fall back to runtime/debug.BuildInfo which
	// Go populates automatically with the module version and VCS metadata.
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	var (
		logCloser func()
		mendApp   = &merge.App{}
		database  *db.DB
		busCancel context.CancelFunc
		busDone   chan struct{}
	)

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "mend",
		Usage:     "Resolve merge conflicts one region at a time",
		UsageText: "mend [global options] command [command options]",
		Description: `Mend turns the conflict markers of a git merge into sessions you resolve
region by region, then writes, stages, and commits the result.

Run 'mend open <file>' to start, 'mend show' to inspect the regions,
'mend apply' to resolve them, and 'mend commit' to write the file. The merge
commit is created once every conflicted file is committed.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("MEND_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/mend.log)",
				Sources:     cli.EnvVars("MEND_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("MEND_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("MEND_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
			&cli.StringFlag{
				Name:        "user",
				Aliases:     []string{"u"},
				Usage:       "user ID for permission checks and the audit trail",
				Sources:     cli.EnvVars("MEND_USER"),
				Value:       commands.DefaultUser(),
				Destination: &flags.User,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			// Always log to a file; use explicit path or default to <datadir>/mend.log
			logFile := flags.LogFile
			if logFile == "" {
				logFile = cfg.LogFile()
			}

			logger, closer, err := logutils.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger.Hook(logging.ContextHook{})
			logCloser = closer

			dbOpts := db.OpenOptions{
				MaxOpenConns: cfg.Database.MaxOpenConns,
				MaxIdleConns: cfg.Database.MaxIdleConns,
				BusyTimeout:  cfg.Database.BusyTimeout,
			}
			database, err = db.Open(cfg.DataDir, dbOpts)
			if err != nil && stores.IsCorruptionError(err) {
				log.Warn().Err(err).Str("data_dir", cfg.DataDir).Msg("database corrupt, moving it aside")
				if rerr := stores.RecoverFromCorruption(cfg.DataDir); rerr != nil {
					return ctx, fmt.Errorf("recover database: %w", rerr)
				}
				database, err = db.Open(cfg.DataDir, dbOpts)
			}
			if err != nil {
				return ctx, fmt.Errorf("open database: %w", err)
			}

			bus := eventbus.New(cfg.Audit.BufferSize)
			eventbus.RegisterDebugLogger(bus, logging.Component("eventbus"))

			busCtx, cancel := context.WithCancel(context.Background())
			busCancel = cancel
			busDone = make(chan struct{})
			go func() {
				defer close(busDone)
				bus.Start(busCtx)
			}()

			var (
				exec    = &executil.RealExecutor{}
				gitExec = git.NewExecutor(cfg.GitPath, exec)
			)

			built, err := merge.NewApp(cfg, database, gitExec, bus, logging.Component("mend"))
			if err != nil {
				return ctx, err
			}

			// Populate the pre-allocated App struct (commands already hold a pointer to it)
			*mendApp = *built

			ctx = logging.WithUserID(ctx, flags.User)
			ctx = printer.NewContext(ctx, printer.New(os.Stderr))
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			// Deliver queued audit entries before the database closes
			if busCancel != nil {
				busCancel()
				<-busDone
			}

			if database != nil {
				if err := database.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close database")
					return err
				}
			}

			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	app = commands.NewOpenCmd(flags, mendApp).Register(app)
	app = commands.NewShowCmd(flags, mendApp).Register(app)
	app = commands.NewResolveCmd(flags, mendApp).Register(app)
	app = commands.NewBatchCmd(flags, mendApp).Register(app)
	app = commands.NewCommitCmd(flags, mendApp).Register(app)
	app = commands.NewLsCmd(flags, mendApp).Register(app)
	app = commands.NewMergeCmd(flags, mendApp).Register(app)
	app = commands.NewWatchCmd(flags, mendApp).Register(app)
	app = commands.NewAuditCmd(flags, mendApp).Register(app)
	app = commands.NewDoctorCmd(flags, mendApp).Register(app)
	app = commands.NewConfigValidateCmd(flags).Register(app)

	exitCode := 0
	runErr := app.Run(ctx, os.Args)
	if runErr != nil {
		fmt.Println()
		fmt.Println(runErr.Error())
		exitCode = 1
	}

	os.Exit(exitCode)
}
