// Package authz answers whether a user may perform a privileged action.
package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PermissionCommitCode gates writing resolved files and merge commits.
const PermissionCommitCode = "commit_code"

// Static grants permissions from a fixed table of user patterns. Patterns use
// doublestar syntax, so "*" matches any user and "team/**" matches every user
// ID under "team/". Unknown permissions and empty user IDs are denied.
type Static struct {
	grants map[string][]string
}

// NewStatic validates the patterns and returns an authorizer.
func NewStatic(grants map[string][]string) (*Static, error) {
	copied := make(map[string][]string, len(grants))
	for perm, patterns := range grants {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("permission %s: invalid user pattern %q", perm, p)
			}
		}
		copied[perm] = append([]string(nil), patterns...)
	}
	return &Static{grants: copied}, nil
}

// HasPermission reports whether userID holds permission.
func (s *Static) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}

	for _, p := range s.grants[permission] {
		ok, err := doublestar.Match(p, userID)
		if err != nil {
			return false, fmt.Errorf("match %q: %w", p, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
