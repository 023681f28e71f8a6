package doctor

import (
	"context"
	"fmt"
)

// SchemaVersioner reports the applied and known schema versions.
type SchemaVersioner interface {
	SchemaVersion(ctx context.Context) (current, latest int, err error)
}

// DatabaseCheck verifies the session database is readable and on the schema
// this binary expects.
type DatabaseCheck struct {
	db SchemaVersioner
}

// NewDatabaseCheck creates a new database check.
func NewDatabaseCheck(db SchemaVersioner) *DatabaseCheck {
	return &DatabaseCheck{db: db}
}

func (c *DatabaseCheck) Name() string {
	return "Database"
}

func (c *DatabaseCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	current, latest, err := c.db.SchemaVersion(ctx)
	item := CheckItem{Label: "schema"}
	switch {
	case err != nil:
		item.Status = StatusFail
		item.Detail = err.Error()
	case current > latest:
		item.Status = StatusWarn
		item.Detail = fmt.Sprintf("version %d was written by a newer mend (this one knows %d)", current, latest)
	case current < latest:
		item.Status = StatusFail
		item.Detail = fmt.Sprintf("version %d, expected %d", current, latest)
	default:
		item.Status = StatusPass
		item.Detail = fmt.Sprintf("version %d", current)
	}

	result.Items = append(result.Items, item)
	return result
}
