// Package memory implements the keyed-entry + full-text-search memory
// store and conversation-transcript persistence. The search index is
// backed by SQLite FTS5 (via the pure-Go modernc.org/sqlite driver)
// standing in for the original Rust implementation's tantivy+jieba
// index — neither has a Go port available; FTS5 fills the same
// structural role (a
// relational table plus a rebuildable inverted-index sidecar keyed by a
// recorded tokenizer name). See DESIGN.md for the full justification.
package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Category is the MemoryEntry classification tag.
type Category string

const (
	CategoryCore         Category = "core"
	CategoryDaily        Category = "daily"
	CategoryConversation Category = "conversation"
)

// CategoryCustom builds a Category for an arbitrary custom tag.
func CategoryCustom(tag string) Category { return Category("custom:" + tag) }

// Entry is a single stored memory entry.
type Entry struct {
	Key            string
	Content        string
	Category       Category
	CreatedAt      time.Time
	UpdatedAt      time.Time
	RelevanceScore float32
}

// HistoryRecord is one serialized ConversationMessage row, forward
// compatible by construction: the payload is opaque JSON the caller
// (agent package) decodes, so this package never needs to know the
// message schema.
type HistoryRecord struct {
	SessionID string
	Seq       int
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Tokenizer selects the FTS5 tokenizer used for memories.content, chosen
// from the interface language the way original_source/src/memory/sqlite.rs
// does (en_stem there, unicode61 here; zh there uses jieba, a trigram
// tokenizer here since no Go jieba port exists in the pack).
type Tokenizer string

const (
	TokenizerEN Tokenizer = "en"
	TokenizerZH Tokenizer = "zh"
)

func ftsTokenizerClause(t Tokenizer) string {
	switch t {
	case TokenizerZH:
		return "tokenize='trigram'"
	default:
		return "tokenize='unicode61'"
	}
}

// Store is the SQLite-backed memory store. All write operations serialize
// internally through writeMu; reads do not take writeMu, but the pool is
// limited to one connection, so every statement runs one at a time.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// Open opens (creating if necessary) the SQLite database at path,
// initializes schema, and reconciles the search index against tokenizer.
// If the recorded tokenizer differs from the requested one, the FTS index
// is dropped and rebuilt from memories (the relational rows survive).
func Open(path string, tokenizer Tokenizer) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer, matches our own writeMu discipline

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.reconcileTokenizer(tokenizer); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenInMemory opens a RAM-only database, for tests.
func OpenInMemory(tokenizer Tokenizer) (*Store, error) {
	return Open("file::memory:?cache=shared", tokenizer)
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			key TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(session_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_history_session ON conversation_history(session_id)`,
		`CREATE TABLE IF NOT EXISTS search_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) reconcileTokenizer(tokenizer Tokenizer) error {
	var recorded string
	err := s.db.QueryRow(`SELECT value FROM search_meta WHERE key = 'tokenizer'`).Scan(&recorded)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read search_meta: %w", err)
	}

	needsRebuild := err == sql.ErrNoRows || recorded != string(tokenizer)
	if needsRebuild {
		if _, err := s.db.Exec(`DROP TABLE IF EXISTS memories_fts`); err != nil {
			return fmt.Errorf("drop stale fts index: %w", err)
		}
	}

	createFTS := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(key UNINDEXED, content, category UNINDEXED, %s)`,
		ftsTokenizerClause(tokenizer),
	)
	if _, err := s.db.Exec(createFTS); err != nil {
		return fmt.Errorf("create fts index: %w", err)
	}

	if needsRebuild {
		if err := s.rebuildIndexFromRelational(); err != nil {
			return err
		}
		if _, err := s.db.Exec(
			`INSERT INTO search_meta(key, value) VALUES ('tokenizer', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, string(tokenizer),
		); err != nil {
			return fmt.Errorf("record tokenizer: %w", err)
		}
	}
	return nil
}

func (s *Store) rebuildIndexFromRelational() error {
	rows, err := s.db.Query(`SELECT key, content, category FROM memories`)
	if err != nil {
		return fmt.Errorf("scan memories for rebuild: %w", err)
	}
	defer rows.Close()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for rows.Next() {
		var key, content, category string
		if err := rows.Scan(&key, &content, &category); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`INSERT INTO memories_fts(key, content, category) VALUES (?, ?, ?)`, key, content, category); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := rows.Err(); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// StoreEntry upserts key/content/category in the relational table and the
// search index, as one atomic commit of the index write (delete-by-key
// then re-add).
func (s *Store) StoreEntry(key, content string, category Category) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO memories(key, content, category, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET content = excluded.content, category = excluded.category, updated_at = excluded.updated_at`,
		key, content, string(category), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert memory: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM memories_fts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete stale fts row: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO memories_fts(key, content, category) VALUES (?, ?, ?)`, key, content, string(category)); err != nil {
		return fmt.Errorf("insert fts row: %w", err)
	}
	return tx.Commit()
}

// Recall parses query as a ranked full-text search over content and
// returns up to limit entries with RelevanceScore populated. Empty
// results are valid (not an error).
func (s *Store) Recall(query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(
		`SELECT m.key, m.content, m.category, m.created_at, m.updated_at, bm25(memories_fts) AS rank
		 FROM memories_fts
		 JOIN memories m ON m.key = memories_fts.key
		 WHERE memories_fts MATCH ?
		 ORDER BY rank LIMIT ?`,
		ftsQuery(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recall query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var category, createdAt, updatedAt string
		var rank float64
		if err := rows.Scan(&e.Key, &e.Content, &category, &createdAt, &updatedAt, &rank); err != nil {
			return nil, err
		}
		e.Category = Category(category)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		// bm25() is negative and more-negative-is-better; map to a
		// positive 0..1-ish relevance score for model-facing display.
		e.RelevanceScore = float32(1.0 / (1.0 + (-rank)))
		out = append(out, e)
	}
	return out, rows.Err()
}

// ftsQuery quotes query terms defensively so arbitrary user text (which
// may contain FTS5 query-syntax characters like '"', '*', '-') doesn't
// break the MATCH expression; a bare phrase match is sufficient for
// a natural-language ranked query.
func ftsQuery(query string) string {
	escaped := ""
	for _, r := range query {
		if r == '"' {
			escaped += `""`
		} else {
			escaped += string(r)
		}
	}
	return `"` + escaped + `"`
}

// Forget deletes key from both tables and reports whether a row existed.
func (s *Store) Forget(key string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.Exec(`DELETE FROM memories WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if _, err := s.db.Exec(`DELETE FROM memories_fts WHERE key = ?`, key); err != nil {
		return false, fmt.Errorf("delete fts row: %w", err)
	}
	return n > 0, nil
}

// Count returns the relational row count.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

// SaveConversationHistory deletes all rows for sessionID then inserts each
// message serialized with its seq index, in one transaction.
func (s *Store) SaveConversationHistory(sessionID string, payloads []json.RawMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM conversation_history WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear conversation history: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for seq, payload := range payloads {
		if _, err := tx.Exec(
			`INSERT INTO conversation_history(session_id, seq, payload, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, seq, string(payload), now,
		); err != nil {
			return fmt.Errorf("insert history row %d: %w", seq, err)
		}
	}
	return tx.Commit()
}

// LoadConversationHistory selects rows for sessionID ordered by seq.
// Deserialization of the payload is the caller's responsibility; this
// only returns raw rows, forward-compatible by construction.
func (s *Store) LoadConversationHistory(sessionID string) ([]HistoryRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, seq, payload, created_at FROM conversation_history WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		var createdAt string
		var payload string
		if err := rows.Scan(&rec.SessionID, &rec.Seq, &payload, &createdAt); err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// coreKnowledgeEntries are the four hard-coded system-knowledge entries
// SeedCoreKnowledge upserts, so recall can answer meta-questions about the
// assistant itself.
var coreKnowledgeEntries = []struct {
	key     string
	content string
}{
	{"core:identity", "I am a local-first, security-oriented AI assistant. I run tool calls under a configurable autonomy policy and screen tool output for prompt injection before it re-enters my context."},
	{"core:autonomy", "My autonomy level is one of read_only, supervised, or full. Read-only forbids all side-effecting tools. Supervised requires confirmation before side-effecting tools run. Full runs them without confirmation."},
	{"core:tools", "My tool set includes shell, file read/write, git, http_request, memory store/recall/forget, config, self_info, skill, and routine, each gated by the same security policy."},
	{"core:memory", "My memory store keeps keyed entries with full-text recall plus a verbatim conversation transcript per session, persisted to a local SQLite database."},
}

// SeedCoreKnowledge upserts the four entries above. Idempotent: repeated
// calls converge to the same fixed entry set and content.
func (s *Store) SeedCoreKnowledge() error {
	for _, e := range coreKnowledgeEntries {
		if err := s.StoreEntry(e.key, e.content, CategoryCore); err != nil {
			return fmt.Errorf("seed %s: %w", e.key, err)
		}
	}
	return nil
}
