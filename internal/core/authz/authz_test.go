package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_HasPermission(t *testing.T) {
	az, err := NewStatic(map[string][]string{
		PermissionCommitCode: {"alice", "release/*", "ci/**"},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		user string
		perm string
		want bool
	}{
		{"exact match", "alice", PermissionCommitCode, true},
		{"single segment glob", "release/bob", PermissionCommitCode, true},
		{"single segment glob does not cross", "release/bob/x", PermissionCommitCode, false},
		{"double star", "ci/github/actions", PermissionCommitCode, true},
		{"not granted", "mallory", PermissionCommitCode, false},
		{"empty user", "", PermissionCommitCode, false},
		{"unknown permission", "alice", "delete_repo", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := az.HasPermission(context.Background(), tt.user, tt.perm)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatic_Wildcard(t *testing.T) {
	az, err := NewStatic(map[string][]string{PermissionCommitCode: {"*"}})
	require.NoError(t, err)

	ok, err := az.HasPermission(context.Background(), "anyone", PermissionCommitCode)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStatic_EmptyDeniesAll(t *testing.T) {
	az, err := NewStatic(nil)
	require.NoError(t, err)

	ok, err := az.HasPermission(context.Background(), "alice", PermissionCommitCode)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewStatic_InvalidPattern(t *testing.T) {
	_, err := NewStatic(map[string][]string{PermissionCommitCode: {"[unclosed"}})
	assert.Error(t, err)
}

func TestStatic_CancelledContext(t *testing.T) {
	az, err := NewStatic(map[string][]string{PermissionCommitCode: {"*"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := az.HasPermission(ctx, "alice", PermissionCommitCode)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}
