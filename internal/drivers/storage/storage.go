// Package storage implements the storage.apply_index driver: a SQLite-
// backed key-value namespace, an FTS5 full-text index, and a fact store,
// matching the persisted-state layout of spec.md §6 and grounded in
// original_source/n3_drivers/storage/sqlite_driver.py.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noema/noema/internal/state"
)

// Driver wraps a single SQLite connection. The connection is safe for
// concurrent access from multiple session workers via the Driver's own
// mutex, per spec.md §5's shared-resource policy ("storage connection
// must be safe for concurrent access").
type Driver struct {
	mu    sync.Mutex
	db    *sql.DB
	log   *zap.SugaredLogger
	group singleflight.Group
}

// Open opens (or creates) the SQLite database at path and ensures the kv,
// fts index, and fact-store schema exist on first use.
func Open(path string, log *zap.SugaredLogger) (*Driver, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	d := &Driver{db: db, log: log}
	if err := d.ensureSchema(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (namespace TEXT NOT NULL, key TEXT NOT NULL, value TEXT, seq INTEGER, PRIMARY KEY(namespace, key))`,
		`CREATE TABLE IF NOT EXISTS counters (namespace TEXT NOT NULL, key TEXT NOT NULL, value INTEGER DEFAULT 0, PRIMARY KEY(namespace, key))`,
		`CREATE TABLE IF NOT EXISTS links (namespace TEXT NOT NULL, from_key TEXT NOT NULL, to_key TEXT NOT NULL, rel TEXT NOT NULL, PRIMARY KEY(namespace, from_key, to_key, rel))`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_index USING fts5(doc_id UNINDEXED, text)`,
		`CREATE TABLE IF NOT EXISTS facts (thread_id TEXT NOT NULL, k_raw TEXT, v_raw TEXT, k_norm TEXT NOT NULL, created_at INTEGER, PRIMARY KEY(thread_id, k_norm))`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// ApplyIndexStorage implements runtime.Drivers' storage handler: applies
// put/inc/link ops under a namespace and indexes documents into FTS5,
// matching spec.md §6's storage.apply_index contract.
func (d *Driver) ApplyIndexStorage(frame state.Tree) state.Tree {
	d.mu.Lock()
	defer d.mu.Unlock()

	namespace := frame.GetString("namespace")
	applyOps := frame.GetSlice("apply")
	indexOps := frame.GetSlice("index")

	appliedOps, applyOK := d.applyOps(namespace, applyOps)
	indexedDocs, indexOK := d.indexDocs(indexOps)

	return state.Tree{
		"type": "storage",
		"ok":   applyOK && indexOK,
		"apply": state.Tree{"ok": applyOK, "ops": appliedOps},
		"index": state.Tree{"ok": indexOK, "queue": indexedDocs},
	}
}

func (d *Driver) applyOps(namespace string, ops []any) ([]any, bool) {
	applied := make([]any, 0, len(ops))
	ok := true
	for _, raw := range ops {
		op, good := asTree(raw)
		if !good {
			continue
		}
		var err error
		switch op.GetString("op") {
		case "put":
			valBytes, _ := json.Marshal(op.Get("value"))
			_, err = d.db.Exec(`INSERT INTO kv(namespace, key, value, seq) VALUES(?,?,?,?)
				ON CONFLICT(namespace, key) DO UPDATE SET value=excluded.value, seq=excluded.seq`,
				namespace, op.GetString("key"), string(valBytes), op.GetInt64("seq"))
		case "inc":
			_, err = d.db.Exec(`INSERT INTO counters(namespace, key, value) VALUES(?,?,?)
				ON CONFLICT(namespace, key) DO UPDATE SET value = value + excluded.value`,
				namespace, op.GetString("key"), op.GetInt64("delta"))
		case "link":
			_, err = d.db.Exec(`INSERT OR IGNORE INTO links(namespace, from_key, to_key, rel) VALUES(?,?,?,?)`,
				namespace, op.GetString("from"), op.GetString("to"), op.GetString("rel"))
		default:
			continue
		}
		if err != nil {
			d.log.Errorw("apply op failed", "op", op.GetString("op"), "err", err)
			ok = false
			continue
		}
		applied = append(applied, op)
	}
	return applied, ok
}

func (d *Driver) indexDocs(docs []any) ([]any, bool) {
	indexed := make([]any, 0, len(docs))
	ok := true
	for _, raw := range docs {
		doc, good := asTree(raw)
		if !good {
			continue
		}
		_, err := d.db.Exec(`INSERT INTO fts_index(doc_id, text) VALUES(?,?)`, doc.GetString("id"), doc.GetString("text"))
		if err != nil {
			d.log.Errorw("index doc failed", "id", doc.GetString("id"), "err", err)
			ok = false
			continue
		}
		indexed = append(indexed, doc)
	}
	return indexed, ok
}

// SearchFTS runs a BM25-ranked full-text query, the source of
// memory.retrieval_candidates for b3memory.Retriever. Identical
// concurrent queries (common when several session workers retrieve
// against the same hot phrase in the same tick) are collapsed into one
// database round trip via singleflight.
func (d *Driver) SearchFTS(query string, limit int) ([]state.Tree, error) {
	key := fmt.Sprintf("%s|%d", query, limit)
	v, err, _ := d.group.Do(key, func() (any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		rows, err := d.db.Query(
			`SELECT doc_id, text, bm25(fts_index) AS rank FROM fts_index WHERE fts_index MATCH ? ORDER BY rank LIMIT ?`,
			query, limit)
		if err != nil {
			return nil, fmt.Errorf("search fts: %w", err)
		}
		defer rows.Close()
		var out []state.Tree
		for rows.Next() {
			var docID, text string
			var rank float64
			if err := rows.Scan(&docID, &text, &rank); err != nil {
				return nil, err
			}
			out = append(out, state.Tree{"id": docID, "text": text, "score": -rank})
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return v.([]state.Tree), nil
}

// UpsertFact writes a normalized answer-override fact for quick lookup.
func (d *Driver) UpsertFact(threadID, kRaw, vRaw, kNorm string, createdAt int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`INSERT INTO facts(thread_id, k_raw, v_raw, k_norm, created_at) VALUES(?,?,?,?,?)
		ON CONFLICT(thread_id, k_norm) DO UPDATE SET k_raw=excluded.k_raw, v_raw=excluded.v_raw, created_at=excluded.created_at`,
		threadID, kRaw, vRaw, kNorm, createdAt)
	return err
}

// GetFact looks up a fact by its normalized key.
func (d *Driver) GetFact(threadID, kNorm string) (state.Tree, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	row := d.db.QueryRow(`SELECT k_raw, v_raw, created_at FROM facts WHERE thread_id=? AND k_norm=?`, threadID, kNorm)
	var kRaw, vRaw string
	var createdAt int64
	if err := row.Scan(&kRaw, &vRaw, &createdAt); err != nil {
		return nil, false
	}
	return state.Tree{"k_raw": kRaw, "v_raw": vRaw, "created_at": createdAt}, true
}

// Close releases the underlying database connection.
func (d *Driver) Close() error {
	return d.db.Close()
}

func asTree(v any) (state.Tree, bool) {
	switch t := v.(type) {
	case state.Tree:
		return t, true
	case map[string]any:
		return state.Tree(t), true
	default:
		return nil, false
	}
}
