// Package store persists transcription sessions and their moderation
// verdicts in SQLite, keyed by session id.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"speech-moderation-gateway/internal/models"
)

// Limits for history pagination.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Config holds store configuration.
type Config struct {
	Path string
}

// DefaultConfig returns the default database location.
func DefaultConfig() Config {
	return Config{Path: "./data/transcriptions.db"}
}

// Update is one partial write against a session's log. Nil fields leave
// the stored value untouched.
type Update struct {
	ModelID              *string
	Content              *string
	Workflow             string // streaming replaces content, buffered appends
	LatencyMs            *float64
	ModerationLabel      *string
	ModerationConfidence *float64
	IsFlagged            *bool
	DetectedKeywords     []string
}

// Store is a SQLite-backed transcription log store.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database and ensures the schema.
// An empty path falls back to the default location.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg = DefaultConfig()
	}
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// NewMemory opens a private in-memory store, used by tests.
func NewMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The pool must stay on one connection or each would see its own
	// empty in-memory database.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcription_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL UNIQUE,
		model_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		latency_ms REAL NOT NULL DEFAULT 0,
		moderation_label TEXT,
		moderation_confidence REAL,
		is_flagged INTEGER,
		detected_keywords TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_logs_created_at ON transcription_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_logs_model_id ON transcription_logs(model_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert merges an update into the session's log, creating the row on
// first write. Streaming content replaces, buffered content appends,
// latency keeps the maximum seen, and keyword lists are unioned. The
// merge is last-writer-wins across concurrent sessions.
func (s *Store) Upsert(ctx context.Context, sessionID string, u Update) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	existing, err := getLog(ctx, tx, sessionID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read log for %q: %w", sessionID, err)
	}

	if err == sql.ErrNoRows {
		row := models.TranscriptionLog{SessionID: sessionID}
		applyUpdate(&row, u)
		keywords, kerr := marshalKeywords(row.DetectedKeywords)
		if kerr != nil {
			return kerr
		}
		// created_at is written explicitly in the same canonical
		// RFC3339 UTC form the date filters use; CURRENT_TIMESTAMP's
		// space-separated text would break the lexicographic range
		// comparison.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transcription_logs
				(session_id, model_id, content, latency_ms, moderation_label, moderation_confidence, is_flagged, detected_keywords, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, row.ModelID, row.Content, row.LatencyMs,
			row.ModerationLabel, row.ModerationConfidence, boolPtrToInt(row.IsFlagged), keywords,
			time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert log for %q: %w", sessionID, err)
		}
		return tx.Commit()
	}

	applyUpdate(existing, u)
	keywords, err := marshalKeywords(existing.DetectedKeywords)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE transcription_logs
		SET model_id = ?, content = ?, latency_ms = ?,
			moderation_label = ?, moderation_confidence = ?, is_flagged = ?, detected_keywords = ?
		WHERE session_id = ?`,
		existing.ModelID, existing.Content, existing.LatencyMs,
		existing.ModerationLabel, existing.ModerationConfidence, boolPtrToInt(existing.IsFlagged), keywords,
		sessionID)
	if err != nil {
		return fmt.Errorf("update log for %q: %w", sessionID, err)
	}
	return tx.Commit()
}

func applyUpdate(row *models.TranscriptionLog, u Update) {
	if u.ModelID != nil {
		row.ModelID = *u.ModelID
	}
	if u.Content != nil {
		switch {
		case row.Content == "" || u.Workflow != models.WorkflowBuffered:
			row.Content = *u.Content
		case *u.Content != "":
			row.Content = row.Content + " " + *u.Content
		}
	}
	if u.LatencyMs != nil && *u.LatencyMs > row.LatencyMs {
		row.LatencyMs = *u.LatencyMs
	}
	if u.ModerationLabel != nil {
		row.ModerationLabel = u.ModerationLabel
	}
	if u.ModerationConfidence != nil {
		row.ModerationConfidence = u.ModerationConfidence
	}
	if u.IsFlagged != nil {
		row.IsFlagged = u.IsFlagged
	}
	if len(u.DetectedKeywords) > 0 {
		row.DetectedKeywords = unionKeywords(row.DetectedKeywords, u.DetectedKeywords)
	}
}

func unionKeywords(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, kw := range existing {
		if _, ok := seen[kw]; !ok {
			seen[kw] = struct{}{}
			merged = append(merged, kw)
		}
	}
	for _, kw := range incoming {
		if _, ok := seen[kw]; !ok {
			seen[kw] = struct{}{}
			merged = append(merged, kw)
		}
	}
	return merged
}

// Get returns the log for one session.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.TranscriptionLog, error) {
	row, err := getLog(ctx, s.db, sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return row, err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getLog(ctx context.Context, q querier, sessionID string) (*models.TranscriptionLog, error) {
	var (
		row      models.TranscriptionLog
		flagged  sql.NullInt64
		keywords sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, session_id, model_id, content, latency_ms,
			moderation_label, moderation_confidence, is_flagged, detected_keywords, created_at
		FROM transcription_logs WHERE session_id = ?`, sessionID).
		Scan(&row.ID, &row.SessionID, &row.ModelID, &row.Content, &row.LatencyMs,
			&row.ModerationLabel, &row.ModerationConfidence, &flagged, &keywords, &row.CreatedAt)
	if err != nil {
		return nil, err
	}
	if flagged.Valid {
		b := flagged.Int64 != 0
		row.IsFlagged = &b
	}
	if keywords.Valid && keywords.String != "" {
		if err := json.Unmarshal([]byte(keywords.String), &row.DetectedKeywords); err != nil {
			return nil, fmt.Errorf("decode keywords for %q: %w", sessionID, err)
		}
	}
	return &row, nil
}

// List returns one page of logs matching the filter, newest first,
// along with the total match count.
func (s *Store) List(ctx context.Context, f models.HistoryFilter) ([]models.TranscriptionLog, int, error) {
	where, args := buildFilter(f)

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transcription_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count logs: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	query := `
		SELECT id, session_id, model_id, content, latency_ms,
			moderation_label, moderation_confidence, is_flagged, detected_keywords, created_at
		FROM transcription_logs` + where + `
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	logs := make([]models.TranscriptionLog, 0, limit)
	for rows.Next() {
		var (
			row      models.TranscriptionLog
			flagged  sql.NullInt64
			keywords sql.NullString
		)
		if err := rows.Scan(&row.ID, &row.SessionID, &row.ModelID, &row.Content, &row.LatencyMs,
			&row.ModerationLabel, &row.ModerationConfidence, &flagged, &keywords, &row.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan log: %w", err)
		}
		if flagged.Valid {
			b := flagged.Int64 != 0
			row.IsFlagged = &b
		}
		if keywords.Valid && keywords.String != "" {
			if err := json.Unmarshal([]byte(keywords.String), &row.DetectedKeywords); err != nil {
				return nil, 0, fmt.Errorf("decode keywords: %w", err)
			}
		}
		logs = append(logs, row)
	}
	return logs, total, rows.Err()
}

func buildFilter(f models.HistoryFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Search != "" {
		clauses = append(clauses, "(content LIKE ? OR session_id LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	if f.ModelID != "" {
		clauses = append(clauses, "model_id = ?")
		args = append(args, f.ModelID)
	}
	if f.MinLatency != nil {
		clauses = append(clauses, "latency_ms >= ?")
		args = append(args, *f.MinLatency)
	}
	if f.MaxLatency != nil {
		clauses = append(clauses, "latency_ms <= ?")
		args = append(args, *f.MaxLatency)
	}
	if f.StartDate != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.StartDate.UTC().Format(time.RFC3339))
	}
	if f.EndDate != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.EndDate.UTC().Format(time.RFC3339))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func marshalKeywords(keywords []string) (any, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		return nil, fmt.Errorf("encode keywords: %w", err)
	}
	return string(data), nil
}

func boolPtrToInt(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}
