// Package sqlite is the reference persistence.Store implementation,
// grounded on internal/auth/store.go and internal/schedule/store.go:
// a modernc.org/sqlite (pure Go, no CGO) database under a data directory,
// migrated with an idempotent CREATE TABLE IF NOT EXISTS on open, wrapped
// by plain database/sql calls.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/persistence"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed persistence.Store.
type Store struct {
	db *sql.DB
}

var _ persistence.Store = (*Store)(nil)

// New opens (creating if necessary) a sessions.db under dataDir and runs
// its migration.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "sessions.db")
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		parent_id TEXT,
		depth INTEGER NOT NULL DEFAULT 0,
		architecture TEXT NOT NULL,
		profile_id TEXT NOT NULL,
		lifecycle TEXT NOT NULL,
		status_text TEXT,
		sandbox_json TEXT NOT NULL DEFAULT '{}',
		session_options_json TEXT NOT NULL DEFAULT '{}',
		labels_json TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		last_activity DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_lifecycle ON sessions(lifecycle);

	CREATE TABLE IF NOT EXISTS transcripts (
		session_id TEXT NOT NULL,
		subagent_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, subagent_id),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS workspace_files (
		session_id TEXT NOT NULL,
		path TEXT NOT NULL,
		content TEXT,
		has_content INTEGER NOT NULL DEFAULT 1,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, path),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		profile_json TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSessionRecord inserts a session record; re-inserting an existing
// id is a no-op (idempotent per spec).
func (s *Store) CreateSessionRecord(ctx context.Context, record blocks.SessionRecord) error {
	sandboxJSON, err := json.Marshal(record.Sandbox)
	if err != nil {
		return fmt.Errorf("marshal sandbox state: %w", err)
	}
	labelsJSON, err := json.Marshal(record.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, parent_id, depth, architecture, profile_id, lifecycle, status_text,
			sandbox_json, session_options_json, labels_json, created_at, updated_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '{}', ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		record.ID, record.ParentID, record.Depth, string(record.Architecture), record.ProfileID,
		string(record.Lifecycle), record.StatusText, string(sandboxJSON), string(labelsJSON),
		record.CreatedAt, record.UpdatedAt, record.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("insert session record: %w", err)
	}
	return nil
}

// UpdateSessionRecord merges patch into the stored record.
func (s *Store) UpdateSessionRecord(ctx context.Context, id string, patch persistence.SessionRecordPatch) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now()}

	if patch.LastActivity != nil {
		sets = append(sets, "last_activity = ?")
		args = append(args, *patch.LastActivity)
	}
	if patch.Lifecycle != nil {
		sets = append(sets, "lifecycle = ?")
		args = append(args, string(*patch.Lifecycle))
	}
	if patch.StatusText != nil {
		sets = append(sets, "status_text = ?")
		args = append(args, *patch.StatusText)
	}
	if patch.Sandbox != nil {
		b, err := json.Marshal(*patch.Sandbox)
		if err != nil {
			return fmt.Errorf("marshal sandbox state: %w", err)
		}
		sets = append(sets, "sandbox_json = ?")
		args = append(args, string(b))
	}
	if patch.SessionOptions != nil {
		b, err := json.Marshal(patch.SessionOptions)
		if err != nil {
			return fmt.Errorf("marshal session options: %w", err)
		}
		sets = append(sets, "session_options_json = ?")
		args = append(args, string(b))
	}

	query := "UPDATE sessions SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = ?"
	args = append(args, id)

	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session record: %w", err)
	}
	return nil
}

// LoadSession returns the full persisted session state for id.
func (s *Store) LoadSession(ctx context.Context, id string) (persistence.LoadedSession, bool, error) {
	var (
		record      blocks.SessionRecord
		architecture, lifecycle, sandboxJSON, labelsJSON string
		statusText  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, parent_id, depth, architecture, profile_id, lifecycle, status_text,
			sandbox_json, labels_json, created_at, updated_at, last_activity
		FROM sessions WHERE id = ?`, id,
	).Scan(&record.ID, &record.ParentID, &record.Depth, &architecture, &record.ProfileID, &lifecycle,
		&statusText, &sandboxJSON, &labelsJSON, &record.CreatedAt, &record.UpdatedAt, &record.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.LoadedSession{}, false, nil
	}
	if err != nil {
		return persistence.LoadedSession{}, false, fmt.Errorf("load session record: %w", err)
	}

	record.Architecture = blocks.Architecture(architecture)
	record.Lifecycle = blocks.SessionLifecycle(lifecycle)
	record.StatusText = statusText.String
	if err := json.Unmarshal([]byte(sandboxJSON), &record.Sandbox); err != nil {
		return persistence.LoadedSession{}, false, fmt.Errorf("unmarshal sandbox state: %w", err)
	}
	if labelsJSON != "" {
		_ = json.Unmarshal([]byte(labelsJSON), &record.Labels)
	}

	loaded := persistence.LoadedSession{Record: record, SubagentRaw: make(map[string]string)}

	rows, err := s.db.QueryContext(ctx, `SELECT subagent_id, content FROM transcripts WHERE session_id = ?`, id)
	if err != nil {
		return persistence.LoadedSession{}, false, fmt.Errorf("load transcripts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var subagentID, content string
		if err := rows.Scan(&subagentID, &content); err != nil {
			return persistence.LoadedSession{}, false, fmt.Errorf("scan transcript row: %w", err)
		}
		if subagentID == "" {
			loaded.RawTranscript = content
		} else {
			loaded.SubagentRaw[subagentID] = content
		}
	}

	fileRows, err := s.db.QueryContext(ctx, `SELECT path, content, has_content FROM workspace_files WHERE session_id = ?`, id)
	if err != nil {
		return persistence.LoadedSession{}, false, fmt.Errorf("load workspace files: %w", err)
	}
	defer func() { _ = fileRows.Close() }()
	for fileRows.Next() {
		var path string
		var content sql.NullString
		var hasContent bool
		if err := fileRows.Scan(&path, &content, &hasContent); err != nil {
			return persistence.LoadedSession{}, false, fmt.Errorf("scan workspace file row: %w", err)
		}
		wf := blocks.WorkspaceFile{Path: path}
		if hasContent && content.Valid {
			c := content.String
			wf.Content = &c
		}
		loaded.WorkspaceFiles = append(loaded.WorkspaceFiles, wf)
	}

	return loaded, true, nil
}

// LoadAgentProfile returns a stored profile by reference.
func (s *Store) LoadAgentProfile(ctx context.Context, ref string) (*blocks.AgentProfile, bool, error) {
	var profileJSON string
	err := s.db.QueryRowContext(ctx, `SELECT profile_json FROM profiles WHERE id = ?`, ref).Scan(&profileJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load profile: %w", err)
	}
	var profile blocks.AgentProfile
	if err := json.Unmarshal([]byte(profileJSON), &profile); err != nil {
		return nil, false, fmt.Errorf("unmarshal profile: %w", err)
	}
	return &profile, true, nil
}

// SaveAgentProfile upserts a profile. Not part of the persistence.Store
// interface (profiles are typically seeded out of band), but exposed for
// test fixtures and admin tooling.
func (s *Store) SaveAgentProfile(ctx context.Context, profile blocks.AgentProfile) error {
	b, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, profile_json) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET profile_json = excluded.profile_json`,
		profile.ID, string(b),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// ListAllSessions returns list-view records for every known session.
func (s *Store) ListAllSessions(ctx context.Context) ([]blocks.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, depth, architecture, profile_id, lifecycle, status_text,
			sandbox_json, labels_json, created_at, updated_at, last_activity
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []blocks.SessionRecord
	for rows.Next() {
		var record blocks.SessionRecord
		var architecture, lifecycle, sandboxJSON, labelsJSON string
		var statusText sql.NullString
		if err := rows.Scan(&record.ID, &record.ParentID, &record.Depth, &architecture, &record.ProfileID,
			&lifecycle, &statusText, &sandboxJSON, &labelsJSON, &record.CreatedAt, &record.UpdatedAt, &record.LastActivity); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		record.Architecture = blocks.Architecture(architecture)
		record.Lifecycle = blocks.SessionLifecycle(lifecycle)
		record.StatusText = statusText.String
		_ = json.Unmarshal([]byte(sandboxJSON), &record.Sandbox)
		if labelsJSON != "" {
			_ = json.Unmarshal([]byte(labelsJSON), &record.Labels)
		}
		out = append(out, record)
	}
	return out, nil
}

// SaveTranscript overwrites the named transcript blob.
func (s *Store) SaveTranscript(ctx context.Context, id, subagentID, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (session_id, subagent_id, content, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, subagent_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		id, subagentID, content, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// SaveWorkspaceFile upserts a workspace file by (id, path).
func (s *Store) SaveWorkspaceFile(ctx context.Context, id string, file persistence.WorkspaceFileUpsert) error {
	hasContent := file.Content != nil
	var content any
	if hasContent {
		content = *file.Content
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_files (session_id, path, content, has_content, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, path) DO UPDATE SET content = excluded.content, has_content = excluded.has_content, updated_at = excluded.updated_at`,
		id, file.Path, content, hasContent, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save workspace file: %w", err)
	}
	return nil
}

// DestroySessionRecord removes a session record and its children.
func (s *Store) DestroySessionRecord(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"workspace_files", "transcripts"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", table), id); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return tx.Commit()
}
