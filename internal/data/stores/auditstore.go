package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/colonyops/mend/internal/core/audit"
	"github.com/colonyops/mend/internal/data/db"
)

// AuditStore implements audit.Store using SQLite.
type AuditStore struct {
	db *db.DB
}

var _ audit.Store = (*AuditStore)(nil)

// NewAuditStore creates a new SQLite-backed audit store.
func NewAuditStore(db *db.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Append saves an entry and returns its ID.
func (s *AuditStore) Append(ctx context.Context, e audit.Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	data := []byte("{}")
	if len(e.Data) > 0 {
		var err error
		data, err = json.Marshal(e.Data)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal audit data: %w", err)
		}
	}

	res, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO audit_log (action, description, data, user_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(e.Action), e.Description, string(data), e.UserID, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append audit entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read audit entry id: %w", err)
	}
	return id, nil
}

// List returns entries matching the filter, newest first.
func (s *AuditStore) List(ctx context.Context, filter audit.ListFilter) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}

	query := `SELECT id, action, description, data, user_id, created_at FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []audit.Entry{}
	for rows.Next() {
		var (
			e       audit.Entry
			action  string
			data    string
			created int64
		)
		if err := rows.Scan(&e.ID, &action, &e.Description, &data, &e.UserID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if data != "" && data != "{}" {
			if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit data: %w", err)
			}
		}
		e.Action = audit.Action(action)
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
