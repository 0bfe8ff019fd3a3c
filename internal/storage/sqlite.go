package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	SessionActive   = "active"
	SessionEnded    = "ended"
	SessionComplete = "complete"
)

const (
	VerifyPending = "pending"
	VerifyPassed  = "passed"
	VerifyFlagged = "flagged"
	VerifyFailed  = "failed"
)

type Session struct {
	ID          string     `json:"id"`
	Speaker     string     `json:"speaker"`
	PromptsPath string     `json:"prompts_path"`
	OutputDir   string     `json:"output_dir"`
	Seed        uint64     `json:"seed"`
	Total       int        `json:"total"`
	Done        int        `json:"done"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Status      string     `json:"status"`
}

type Take struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	PromptID     string    `json:"prompt_id"`
	AudioFile    string    `json:"audio_file"`
	AudioPath    string    `json:"-"`
	Text         string    `json:"text"`
	Samples      int       `json:"samples"`
	Duration     float64   `json:"duration_seconds"`
	Peak         float64   `json:"peak"`
	SavedAt      time.Time `json:"saved_at"`
	VerifyStatus string    `json:"verify_status,omitempty"`
	Heard        string    `json:"heard,omitempty"`
	Score        float64   `json:"score,omitempty"`
}

type Skip struct {
	SessionID string    `json:"session_id"`
	PromptID  string    `json:"prompt_id"`
	At        time.Time `json:"at"`
}

// SQLiteStore is the session journal. It indexes sessions, saved takes and
// skips; the text ledgers in the output tree remain authoritative.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "voice-dataset.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"sessions", `
			CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				speaker TEXT NOT NULL,
				prompts_path TEXT NOT NULL,
				output_dir TEXT NOT NULL,
				seed TEXT NOT NULL DEFAULT '0',
				total INTEGER NOT NULL DEFAULT 0,
				done INTEGER NOT NULL DEFAULT 0,
				started_at TEXT NOT NULL,
				ended_at TEXT,
				status TEXT NOT NULL
			);`},
		{"takes", `
			CREATE TABLE IF NOT EXISTS takes (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL,
				prompt_id TEXT NOT NULL,
				audio_file TEXT NOT NULL,
				audio_path TEXT NOT NULL,
				text TEXT NOT NULL,
				samples INTEGER NOT NULL,
				duration REAL NOT NULL,
				peak REAL NOT NULL,
				saved_at TEXT NOT NULL,
				verify_status TEXT NOT NULL DEFAULT '',
				heard TEXT NOT NULL DEFAULT '',
				score REAL NOT NULL DEFAULT 0,
				FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
			);`},
		{"skips", `
			CREATE TABLE IF NOT EXISTS skips (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL,
				prompt_id TEXT NOT NULL,
				at TEXT NOT NULL,
				FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
			);`},
	}
	for _, t := range tables {
		if _, err := s.db.Exec(t.ddl); err != nil {
			return fmt.Errorf("create %s table: %w", t.name, err)
		}
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)"); err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_takes_session_id ON takes(session_id, prompt_id)"); err != nil {
		return fmt.Errorf("create takes index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// CreateSession inserts sess as active and returns its id, generating one
// when sess.ID is empty.
func (s *SQLiteStore) CreateSession(sess Session) (string, error) {
	if strings.TrimSpace(sess.Speaker) == "" {
		return "", errors.New("session speaker is required")
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions(id, speaker, prompts_path, output_dir, seed, total, done, started_at, status)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.Speaker,
		sess.PromptsPath,
		sess.OutputDir,
		strconv.FormatUint(sess.Seed, 10),
		sess.Total,
		sess.Done,
		formatTime(sess.StartedAt),
		SessionActive,
	)
	if err != nil {
		return "", fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return sess.ID, nil
}

func (s *SQLiteStore) UpdateProgress(id string, done int) error {
	return s.execOne(fmt.Sprintf("update progress for session %s", id),
		`UPDATE sessions SET done = ? WHERE id = ?`, done, id)
}

func (s *SQLiteStore) EndSession(id string, endedAt time.Time, status string) error {
	return s.execOne(fmt.Sprintf("end session %s", id),
		`UPDATE sessions SET ended_at = ?, status = ? WHERE id = ?`, formatTime(endedAt), status, id)
}

// RecordTake stores a saved take and returns its row id.
func (s *SQLiteStore) RecordTake(t Take) (int64, error) {
	if t.SavedAt.IsZero() {
		t.SavedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO takes(session_id, prompt_id, audio_file, audio_path, text, samples, duration, peak, saved_at, verify_status)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID,
		t.PromptID,
		t.AudioFile,
		t.AudioPath,
		t.Text,
		t.Samples,
		t.Duration,
		t.Peak,
		formatTime(t.SavedAt),
		t.VerifyStatus,
	)
	if err != nil {
		return 0, fmt.Errorf("record take %s for session %s: %w", t.PromptID, t.SessionID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record take last insert id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) RecordSkip(sessionID, promptID string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO skips(session_id, prompt_id, at) VALUES(?, ?, ?)`,
		sessionID,
		promptID,
		formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("record skip %s for session %s: %w", promptID, sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateVerification(takeID int64, status, heard string, score float64) error {
	return s.execOne(fmt.Sprintf("update verification for take %d", takeID),
		`UPDATE takes SET verify_status = ?, heard = ?, score = ? WHERE id = ?`, status, heard, score, takeID)
}

func (s *SQLiteStore) ListSessions() ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]Session, 0, 16)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions rows: %w", err)
	}

	return sessions, nil
}

func (s *SQLiteStore) GetSession(id string) (Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	return sess, nil
}

func (s *SQLiteStore) GetTakes(sessionID string) ([]Take, error) {
	rows, err := s.db.Query(
		`SELECT `+takeColumns+` FROM takes WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query takes for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	takes := make([]Take, 0, 32)
	for rows.Next() {
		t, err := scanTake(rows)
		if err != nil {
			return nil, fmt.Errorf("scan take for session %s: %w", sessionID, err)
		}
		takes = append(takes, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate take rows for session %s: %w", sessionID, err)
	}

	return takes, nil
}

// GetTake returns the most recent take of promptID in the session.
func (s *SQLiteStore) GetTake(sessionID, promptID string) (Take, error) {
	row := s.db.QueryRow(
		`SELECT `+takeColumns+` FROM takes WHERE session_id = ? AND prompt_id = ? ORDER BY id DESC LIMIT 1`,
		sessionID,
		promptID,
	)
	t, err := scanTake(row)
	if err != nil {
		return Take{}, fmt.Errorf("query take %s for session %s: %w", promptID, sessionID, err)
	}
	return t, nil
}

func (s *SQLiteStore) GetSkips(sessionID string) ([]Skip, error) {
	rows, err := s.db.Query(
		`SELECT session_id, prompt_id, at FROM skips WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query skips for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var skips []Skip
	for rows.Next() {
		var sk Skip
		var at string
		if err := rows.Scan(&sk.SessionID, &sk.PromptID, &at); err != nil {
			return nil, fmt.Errorf("scan skip for session %s: %w", sessionID, err)
		}
		if sk.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse skip time for session %s: %w", sessionID, err)
		}
		skips = append(skips, sk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skip rows for session %s: %w", sessionID, err)
	}

	return skips, nil
}

func (s *SQLiteStore) execOne(op, query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const sessionColumns = `id, speaker, prompts_path, output_dir, seed, total, done, started_at, ended_at, status`

const takeColumns = `id, session_id, prompt_id, audio_file, audio_path, text, samples, duration, peak, saved_at, verify_status, heard, score`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var seed, startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&sess.ID, &sess.Speaker, &sess.PromptsPath, &sess.OutputDir, &seed,
		&sess.Total, &sess.Done, &startedAt, &endedAt, &sess.Status); err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}

	var err error
	if sess.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return Session{}, fmt.Errorf("parse seed: %w", err)
	}
	if sess.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Session{}, fmt.Errorf("parse started_at: %w", err)
	}
	if endedAt.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return Session{}, fmt.Errorf("parse ended_at: %w", err)
		}
		sess.EndedAt = &parsedEnd
	}

	return sess, nil
}

func scanTake(row scanner) (Take, error) {
	var t Take
	var savedAt string
	if err := row.Scan(&t.ID, &t.SessionID, &t.PromptID, &t.AudioFile, &t.AudioPath, &t.Text,
		&t.Samples, &t.Duration, &t.Peak, &savedAt, &t.VerifyStatus, &t.Heard, &t.Score); err != nil {
		return Take{}, err
	}

	parsed, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return Take{}, fmt.Errorf("parse saved_at: %w", err)
	}
	t.SavedAt = parsed

	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
