package stores

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/colonyops/mend/internal/core/mergeset"
	"github.com/colonyops/mend/internal/data/db"
)

// MergeSetStore implements mergeset.Store using SQLite.
type MergeSetStore struct {
	db *db.DB
}

var _ mergeset.Store = (*MergeSetStore)(nil)

// NewMergeSetStore creates a new SQLite-backed merge set store.
func NewMergeSetStore(db *db.DB) *MergeSetStore {
	return &MergeSetStore{db: db}
}

// Create persists a new merge set and its files.
func (s *MergeSetStore) Create(ctx context.Context, m *mergeset.MergeSet) error {
	now := time.Now()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.State == "" {
		m.State = mergeset.StateOpen
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO merge_sets (id, repository_id, current_parent, incoming_parent, message, commit_id, state, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID,
			m.RepositoryID,
			m.Parents.Current,
			m.Parents.Incoming,
			m.Message,
			m.CommitID,
			string(m.State),
			m.CreatedAt.UnixNano(),
			m.UpdatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert merge set: %w", err)
		}

		for _, f := range m.Files {
			if err := insertFile(ctx, tx, m.ID, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create merge set: %w", err)
	}

	return nil
}

// GetOpen returns the open merge set of a repository.
func (s *MergeSetStore) GetOpen(ctx context.Context, repoID string) (mergeset.MergeSet, error) {
	var (
		m                mergeset.MergeSet
		state            string
		created, updated int64
	)

	err := s.db.Conn().QueryRowContext(ctx, `
		SELECT id, repository_id, current_parent, incoming_parent, message, commit_id, state, created_at, updated_at
		FROM merge_sets
		WHERE repository_id = ? AND state = ?`,
		repoID, string(mergeset.StateOpen),
	).Scan(
		&m.ID,
		&m.RepositoryID,
		&m.Parents.Current,
		&m.Parents.Incoming,
		&m.Message,
		&m.CommitID,
		&state,
		&created,
		&updated,
	)
	if IsNotFoundError(err) {
		return mergeset.MergeSet{}, mergeset.ErrNotFound
	}
	if err != nil {
		return mergeset.MergeSet{}, fmt.Errorf("failed to get merge set: %w", err)
	}

	m.State = mergeset.State(state)
	m.CreatedAt = time.Unix(0, created)
	m.UpdatedAt = time.Unix(0, updated)

	files, err := s.files(ctx, m.ID)
	if err != nil {
		return mergeset.MergeSet{}, err
	}
	m.Files = files

	return m, nil
}

// AddFile adds an unstaged path. Adding a path twice is a no-op.
func (s *MergeSetStore) AddFile(ctx context.Context, id, path string) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := insertFile(ctx, tx, id, mergeset.File{Path: path}); err != nil {
			return err
		}
		return touch(ctx, tx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to add file: %w", err)
	}
	return nil
}

// MarkStaged records the blob staged for path.
func (s *MergeSetStore) MarkStaged(ctx context.Context, id, path, blobID string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE merge_set_files SET blob_id = ?, staged = 1 WHERE merge_set_id = ? AND path = ?`,
			blobID, id, path,
		)
		if err != nil {
			return fmt.Errorf("failed to mark staged: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to mark staged: %w", err)
		} else if n == 0 {
			return fmt.Errorf("mark staged %s: %w", path, mergeset.ErrUnknownFile)
		}
		return touch(ctx, tx, id)
	})
}

// MarkCommitted closes the merge set.
func (s *MergeSetStore) MarkCommitted(ctx context.Context, id, commitID string) error {
	if err := s.close(ctx, id, mergeset.StateCommitted, commitID); err != nil {
		return fmt.Errorf("failed to mark committed: %w", err)
	}
	return nil
}

// Abandon closes the merge set without a commit.
func (s *MergeSetStore) Abandon(ctx context.Context, id string) error {
	if err := s.close(ctx, id, mergeset.StateAbandoned, ""); err != nil {
		return fmt.Errorf("failed to abandon merge set: %w", err)
	}
	return nil
}

func (s *MergeSetStore) close(ctx context.Context, id string, state mergeset.State, commitID string) error {
	res, err := s.db.Conn().ExecContext(ctx,
		`UPDATE merge_sets SET state = ?, commit_id = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(state), commitID, time.Now().UnixNano(), id, string(mergeset.StateOpen),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mergeset.ErrNotFound
	}
	return nil
}

func (s *MergeSetStore) files(ctx context.Context, id string) ([]mergeset.File, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT path, blob_id, staged FROM merge_set_files WHERE merge_set_id = ? ORDER BY path`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list merge set files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []mergeset.File
	for rows.Next() {
		var f mergeset.File
		if err := rows.Scan(&f.Path, &f.BlobID, &f.Staged); err != nil {
			return nil, fmt.Errorf("failed to scan merge set file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func insertFile(ctx context.Context, tx *sql.Tx, id string, f mergeset.File) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO merge_set_files (merge_set_id, path, blob_id, staged)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(merge_set_id, path) DO NOTHING`,
		id, f.Path, f.BlobID, f.Staged,
	)
	if err != nil {
		return fmt.Errorf("insert merge set file %s: %w", f.Path, err)
	}
	return nil
}

func touch(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE merge_sets SET updated_at = ? WHERE id = ?`, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("touch merge set: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return mergeset.ErrNotFound
	}
	return nil
}
