package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jarvis-homelab/jarvis/internal/models"
)

// SQLiteStore implements Store on top of an embedded SQLite database in
// WAL mode, matching the on-disk layout in spec.md §6
// (<dataDir>/jarvis.db). It uses the pure-Go modernc.org/sqlite driver
// so the JARVIS container image needs no cgo toolchain.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) the database at path,
// applies WAL journaling, synchronous=NORMAL, and a 64MiB page cache,
// and creates the schema if missing.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-65536", // 64 MiB, negative = KiB
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: pragma %q: %w", p, err)
		}
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS messages (
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	model      TEXT,
	ts         INTEGER NOT NULL,
	tokens_in  INTEGER,
	tokens_out INTEGER,
	cost_usd   REAL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, ts);

CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	node       TEXT,
	detail     TEXT,
	resolved   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_type_time ON events(type, created_at);

CREATE TABLE IF NOT EXISTS memories (
	tier             TEXT NOT NULL,
	category         TEXT NOT NULL,
	key              TEXT NOT NULL,
	content          TEXT NOT NULL,
	source           TEXT,
	session_id       TEXT,
	created_at       INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL,
	PRIMARY KEY (category, key)
);

CREATE TABLE IF NOT EXISTS preferences (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cost_ledger (
	provider   TEXT NOT NULL,
	tokens_in  INTEGER NOT NULL,
	tokens_out INTEGER NOT NULL,
	usd        REAL NOT NULL,
	ts         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_ts ON cost_ledger(ts);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, msg models.ChatMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, model, ts, tokens_in, tokens_out, cost_usd)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content, msg.Model, msg.Timestamp.UnixNano(),
		msg.TokensIn, msg.TokensOut, msg.CostUSD)
	return err
}

func (s *SQLiteStore) GetSessionMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, role, content, model, ts, tokens_in, tokens_out, cost_usd
		 FROM messages WHERE session_id = ? ORDER BY ts ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var ts int64
		var model sql.NullString
		var tokensIn, tokensOut sql.NullInt64
		var cost sql.NullFloat64
		if err := rows.Scan(&m.SessionID, &m.Role, &m.Content, &model, &ts, &tokensIn, &tokensOut, &cost); err != nil {
			return nil, err
		}
		m.Timestamp = time.Unix(0, ts)
		m.Model = model.String
		m.TokensIn = int(tokensIn.Int64)
		m.TokensOut = int(tokensOut.Int64)
		m.CostUSD = cost.Float64
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveEvent(ctx context.Context, ev Event) error {
	resolved := 0
	if ev.Resolved {
		resolved = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, type, node, detail, resolved, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Type, ev.Node, ev.Detail, resolved, ev.CreatedAt.UnixNano())
	return err
}

func (s *SQLiteStore) GetEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	query := `SELECT id, type, node, detail, resolved, created_at FROM events WHERE 1=1`
	var args []any
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	if filter.Node != "" {
		query += ` AND node = ?`
		args = append(args, filter.Node)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UnixNano())
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var resolved int
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Node, &ev.Detail, &resolved, &createdAt); err != nil {
			return nil, err
		}
		ev.Resolved = resolved != 0
		ev.CreatedAt = time.Unix(0, createdAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertMemory(ctx context.Context, mem models.Memory) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (tier, category, key, content, source, session_id, created_at, last_accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(category, key) DO UPDATE SET
			tier=excluded.tier, content=excluded.content, source=excluded.source,
			session_id=excluded.session_id, last_accessed_at=excluded.last_accessed_at`,
		mem.Tier, mem.Category, mem.Key, mem.Content, mem.Source, mem.SessionID,
		mem.CreatedAt.UnixNano(), now.UnixNano())
	return err
}

func (s *SQLiteStore) SearchMemories(ctx context.Context, query string, limit int) ([]models.Memory, error) {
	like := "%" + query + "%"
	q := `SELECT tier, category, key, content, source, session_id, created_at, last_accessed_at
	      FROM memories WHERE content LIKE ? OR key LIKE ? ORDER BY last_accessed_at DESC`
	args := []any{like, like}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Memory
	for rows.Next() {
		var m models.Memory
		var createdAt, lastAccessed int64
		var session sql.NullString
		if err := rows.Scan(&m.Tier, &m.Category, &m.Key, &m.Content, &m.Source, &session, &createdAt, &lastAccessed); err != nil {
			return nil, err
		}
		m.SessionID = session.String
		m.CreatedAt = time.Unix(0, createdAt)
		m.LastAccessedAt = time.Unix(0, lastAccessed)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetPreference(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (s *SQLiteStore) SetPreference(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

func (s *SQLiteStore) AppendCost(ctx context.Context, entry models.CostEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cost_ledger (provider, tokens_in, tokens_out, usd, ts) VALUES (?, ?, ?, ?, ?)`,
		entry.Provider, entry.TokensIn, entry.TokensOut, entry.USD, entry.Timestamp.UnixNano())
	return err
}

func (s *SQLiteStore) SummarizeCost(ctx context.Context, rangeName string) (CostSummary, error) {
	cutoff, err := rangeCutoff(rangeName)
	if err != nil {
		return CostSummary{}, err
	}
	sum := CostSummary{Range: rangeName}
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(usd),0), COALESCE(SUM(tokens_in),0), COALESCE(SUM(tokens_out),0)
		 FROM cost_ledger WHERE ts >= ?`, cutoff.UnixNano()).
		Scan(&sum.TotalUSD, &sum.TokensIn, &sum.TokensOut)
	return sum, err
}

func (s *SQLiteStore) ExpireEpisodicMemories(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE tier = ? AND last_accessed_at < ?`,
		models.MemoryEpisodic, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
