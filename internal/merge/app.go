package merge

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/colonyops/mend/internal/core/audit"
	"github.com/colonyops/mend/internal/core/authz"
	"github.com/colonyops/mend/internal/core/config"
	"github.com/colonyops/mend/internal/core/eventbus"
	"github.com/colonyops/mend/internal/core/git"
	"github.com/colonyops/mend/internal/data/db"
	"github.com/colonyops/mend/internal/data/stores"
)

// App is the central entry point for all mend operations.
// Commands consume App instead of cherry-picking raw dependencies.
type App struct {
	Sessions *Service
	Audit    audit.Store
	Git      git.Git
	Bus      *eventbus.EventBus
	Config   *config.Config
	DB       *db.DB
}

// NewApp wires stores, the authorizer, and the services on top of database.
func NewApp(
	cfg *config.Config,
	database *db.DB,
	gitClient git.Git,
	bus *eventbus.EventBus,
	log zerolog.Logger,
) (*App, error) {
	authorizer, err := authz.NewStatic(cfg.Grants())
	if err != nil {
		return nil, fmt.Errorf("permissions: %w", err)
	}

	auditStore := stores.NewAuditStore(database)

	var auditLog audit.Logger = audit.Nop{}
	if cfg.AuditEnabled() {
		auditLog = eventbus.NewAuditLogger(bus)
		PersistAudit(bus, auditStore, log)
	}

	coord := NewCoordinator(
		gitClient,
		authorizer,
		stores.NewMergeSetStore(database),
		cfg,
		auditLog,
		bus,
		log,
	)

	svc := NewService(
		stores.NewSessionStore(database),
		gitClient,
		coord,
		cfg,
		auditLog,
		bus,
		log,
	)

	return &App{
		Sessions: svc,
		Audit:    auditStore,
		Git:      gitClient,
		Bus:      bus,
		Config:   cfg,
		DB:       database,
	}, nil
}
