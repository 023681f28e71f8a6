package stores

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/colonyops/mend/internal/core/conflict"
	"github.com/colonyops/mend/internal/core/session"
	"github.com/colonyops/mend/internal/data/db"
)

// SessionStore implements session.Store using SQLite.
type SessionStore struct {
	db *db.DB
}

var _ session.Store = (*SessionStore)(nil)

// NewSessionStore creates a new SQLite-backed session store.
func NewSessionStore(db *db.DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `id, repository_id, file_path, fingerprint, state, raw, marker_size, created_at, updated_at`

// Save creates or replaces a session together with its resolutions.
func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	snap := sess.Snapshot()

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (`+sessionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				fingerprint = excluded.fingerprint,
				state       = excluded.state,
				raw         = excluded.raw,
				marker_size = excluded.marker_size,
				updated_at  = excluded.updated_at`,
			snap.ID,
			snap.RepositoryID,
			snap.FilePath,
			string(snap.Fingerprint),
			string(snap.State),
			[]byte(snap.Raw),
			snap.MarkerSize,
			snap.CreatedAt.UnixNano(),
			snap.UpdatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM session_resolutions WHERE session_id = ?`, snap.ID); err != nil {
			return fmt.Errorf("clear resolutions: %w", err)
		}

		for _, r := range snap.Resolutions {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO session_resolutions (session_id, region_index, kind, text) VALUES (?, ?, ?, ?)`,
				snap.ID, r.Index, string(r.Kind), r.Text,
			)
			if err != nil {
				return fmt.Errorf("insert resolution %d: %w", r.Index, err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// Get returns a session by ID. Returns ErrNotFound if not found.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.Conn().QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	sess, err := s.load(ctx, row)
	if IsNotFoundError(err) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return sess, nil
}

// FindOpen returns the newest non-terminal session for a file.
func (s *SessionStore) FindOpen(ctx context.Context, repoID, path string) (*session.Session, error) {
	row := s.db.Conn().QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE repository_id = ? AND file_path = ? AND state IN (?, ?, ?)
		ORDER BY created_at DESC
		LIMIT 1`,
		repoID, path,
		string(session.StateUnresolved), string(session.StatePartiallyResolved), string(session.StateResolved),
	)

	sess, err := s.load(ctx, row)
	if IsNotFoundError(err) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open session: %w", err)
	}

	return sess, nil
}

// List returns sessions matching the filter, newest first.
func (s *SessionStore) List(ctx context.Context, filter session.ListFilter) ([]*session.Session, error) {
	var (
		where []string
		args  []any
	)
	if filter.RepositoryID != "" {
		where = append(where, "repository_id = ?")
		args = append(args, filter.RepositoryID)
	}
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(filter.State))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	// Resolutions are loaded with a second query per session, which must not
	// run while rows holds the connection.
	var snaps []session.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*session.Session, 0, len(snaps))
	for _, snap := range snaps {
		sess, err := s.restore(ctx, snap)
		if err != nil {
			return nil, fmt.Errorf("failed to convert session: %w", err)
		}
		sessions = append(sessions, sess)
	}

	return sessions, nil
}

// Delete removes a session by ID. Returns ErrNotFound if not found.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.Conn().ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return session.ErrNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SessionStore) load(ctx context.Context, row scanner) (*session.Session, error) {
	snap, err := scanSnapshot(row)
	if err != nil {
		return nil, err
	}
	return s.restore(ctx, snap)
}

func (s *SessionStore) restore(ctx context.Context, snap session.Snapshot) (*session.Session, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT region_index, kind, text FROM session_resolutions
		WHERE session_id = ?
		ORDER BY region_index`, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			r    session.StoredResolution
			kind string
		)
		if err := rows.Scan(&r.Index, &kind, &r.Text); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		r.Kind = conflict.Kind(kind)
		snap.Resolutions = append(snap.Resolutions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read resolutions: %w", err)
	}

	return session.Restore(snap)
}

func scanSnapshot(row scanner) (session.Snapshot, error) {
	var (
		snap               session.Snapshot
		fingerprint, state string
		raw                []byte
		created, updated   int64
	)

	err := row.Scan(
		&snap.ID,
		&snap.RepositoryID,
		&snap.FilePath,
		&fingerprint,
		&state,
		&raw,
		&snap.MarkerSize,
		&created,
		&updated,
	)
	if err != nil {
		return session.Snapshot{}, err
	}

	snap.Fingerprint = session.Fingerprint(fingerprint)
	snap.State = session.State(state)
	snap.Raw = string(raw)
	snap.CreatedAt = time.Unix(0, created)
	snap.UpdatedAt = time.Unix(0, updated)

	return snap, nil
}
