package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/colonyops/mend/internal/core/session"
)

// SessionsCheck finds stored sessions whose repository or file no longer
// exists. With autofix they are deleted.
type SessionsCheck struct {
	store   session.Store
	autofix bool
}

// NewSessionsCheck creates a new sessions check.
func NewSessionsCheck(store session.Store, autofix bool) *SessionsCheck {
	return &SessionsCheck{store: store, autofix: autofix}
}

func (c *SessionsCheck) Name() string {
	return "Sessions"
}

func (c *SessionsCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	sessions, err := c.store.List(ctx, session.ListFilter{})
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "database",
			Status: StatusFail,
			Detail: fmt.Sprintf("list sessions: %v", err),
		})
		return result
	}

	orphaned := 0
	for _, s := range sessions {
		reason := orphanReason(s)
		if reason == "" {
			continue
		}
		orphaned++

		item := CheckItem{
			Label:   s.FilePath,
			Status:  StatusWarn,
			Detail:  reason,
			Fixable: true,
		}

		if c.autofix {
			if err := c.store.Delete(ctx, s.ID); err != nil {
				item.Detail = fmt.Sprintf("%s; delete failed: %v", reason, err)
			} else {
				item.Status = StatusPass
				item.Detail = reason + "; session deleted"
			}
		}

		result.Items = append(result.Items, item)
	}

	result.Items = append(result.Items, CheckItem{
		Label:  "sessions",
		Status: StatusPass,
		Detail: fmt.Sprintf("%d stored, %d orphaned", len(sessions), orphaned),
	})

	return result
}

func orphanReason(s *session.Session) string {
	info, err := os.Stat(s.RepositoryID)
	if err != nil || !info.IsDir() {
		return "repository " + s.RepositoryID + " does not exist"
	}
	if _, err := os.Stat(filepath.Join(s.RepositoryID, filepath.FromSlash(s.FilePath))); os.IsNotExist(err) {
		return "file no longer exists"
	}
	return ""
}
