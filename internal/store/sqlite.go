package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prbarcelon/astrbotctl/internal/protocol"

	_ "github.com/mattn/go-sqlite3"
)

const defaultProfile = "default"

// ErrNoCredentials is returned by LoadCredentials before the first login.
var ErrNoCredentials = errors.New("no saved credentials; run `astrbot login` first")

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS credentials (
	profile TEXT PRIMARY KEY,
	server_url TEXT NOT NULL,
	username TEXT NOT NULL,
	token TEXT NOT NULL,
	updated_at_utc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS request_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at_utc TEXT NOT NULL,
	method TEXT NOT NULL,
	path TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	success INTEGER NOT NULL,
	error TEXT,
	duration_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_request_history_at ON request_history(at_utc, id);
CREATE INDEX IF NOT EXISTS idx_request_history_path_at ON request_history(path, at_utc, id);
`)
	if err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

func (s *Store) LoadCredentials() (protocol.Credentials, error) {
	var creds protocol.Credentials
	err := s.db.QueryRow(`SELECT server_url, username, token FROM credentials WHERE profile = ?`, defaultProfile).
		Scan(&creds.ServerURL, &creds.Username, &creds.Token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return protocol.Credentials{}, ErrNoCredentials
		}
		return protocol.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	if creds.Token == "" {
		return protocol.Credentials{}, ErrNoCredentials
	}
	return creds, nil
}

func (s *Store) SaveCredentials(creds protocol.Credentials) error {
	if creds.Token == "" {
		return fmt.Errorf("token is required")
	}
	if creds.ServerURL == "" {
		return fmt.Errorf("server url is required")
	}
	_, err := s.db.Exec(`
INSERT INTO credentials (profile, server_url, username, token, updated_at_utc)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(profile) DO UPDATE SET
	server_url=excluded.server_url,
	username=excluded.username,
	token=excluded.token,
	updated_at_utc=excluded.updated_at_utc
`, defaultProfile, creds.ServerURL, creds.Username, creds.Token, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// DeleteCredentials reports whether a saved login existed.
func (s *Store) DeleteCredentials() (bool, error) {
	res, err := s.db.Exec(`DELETE FROM credentials WHERE profile = ?`, defaultProfile)
	if err != nil {
		return false, fmt.Errorf("delete credentials: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete credentials: %w", err)
	}
	return n > 0, nil
}

func (s *Store) InsertHistory(item protocol.HistoryItem) error {
	_, err := s.db.Exec(`
INSERT INTO request_history (at_utc, method, path, status_code, success, error, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		item.At.UTC().Format(time.RFC3339Nano),
		item.Method,
		item.Path,
		item.StatusCode,
		boolToInt(item.Success),
		item.Error,
		item.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListHistory returns the newest limit entries, oldest first.
func (s *Store) ListHistory(pathFilter string, limit int) ([]protocol.HistoryItem, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := `SELECT at_utc, method, path, status_code, success, error, duration_ms FROM request_history`
	args := make([]any, 0, 2)
	if pathFilter != "" {
		query += " WHERE path = ?"
		args = append(args, pathFilter)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := make([]protocol.HistoryItem, 0, limit)
	for rows.Next() {
		var atUTC string
		var item protocol.HistoryItem
		var success int
		var errText sql.NullString
		if err := rows.Scan(&atUTC, &item.Method, &item.Path, &item.StatusCode, &success, &errText, &item.DurationMs); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, atUTC)
		if err != nil {
			at = time.Now().UTC()
		}
		item.At = at
		item.Success = success == 1
		if errText.Valid {
			item.Error = errText.String
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	for left, right := 0, len(out)-1; left < right; left, right = left+1, right-1 {
		out[left], out[right] = out[right], out[left]
	}

	return out, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
