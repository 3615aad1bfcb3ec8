package evidence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

var payloadKeyRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// SQLiteBackend keeps one collection in a local sqlite file. Vectors are stored
// as blobs and ranked in process.
type SQLiteBackend struct {
	db         *sql.DB
	collection string

	mu   sync.Mutex
	dims map[string]int
}

func OpenSQLite(dbPath, collection string) (*SQLiteBackend, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{db: db, collection: collection}
	if err := b.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := b.loadDims(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) initSchema() error {
	stmts := []string{
		"PRAGMA busy_timeout=5000",
		`CREATE TABLE IF NOT EXISTS collection_vectors (
			collection TEXT NOT NULL,
			name TEXT NOT NULL,
			size INTEGER NOT NULL,
			PRIMARY KEY (collection, name)
		)`,
		`CREATE TABLE IF NOT EXISTS points (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (collection, id)
		)`,
		`CREATE TABLE IF NOT EXISTS point_vectors (
			collection TEXT NOT NULL,
			point_id TEXT NOT NULL,
			name TEXT NOT NULL,
			vector BLOB NOT NULL,
			PRIMARY KEY (collection, point_id, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_point_vectors_name ON point_vectors(collection, name)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (b *SQLiteBackend) loadDims() error {
	rows, err := b.db.Query(`SELECT name, size FROM collection_vectors WHERE collection = ?`, b.collection)
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	defer rows.Close()

	dims := map[string]int{}
	for rows.Next() {
		var name string
		var size int
		if err := rows.Scan(&name, &size); err != nil {
			return fmt.Errorf("scan collection: %w", err)
		}
		dims[name] = size
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	b.mu.Lock()
	b.dims = dims
	b.mu.Unlock()
	return nil
}

func (b *SQLiteBackend) EnsureCollection(ctx context.Context, schema Schema, recreate bool) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM collection_vectors WHERE collection = ?`, b.collection).Scan(&existing); err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if existing > 0 && !recreate {
		return nil
	}
	for _, stmt := range []string{
		`DELETE FROM point_vectors WHERE collection = ?`,
		`DELETE FROM points WHERE collection = ?`,
		`DELETE FROM collection_vectors WHERE collection = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, b.collection); err != nil {
			return fmt.Errorf("reset collection: %w", err)
		}
	}
	for _, v := range schema.Vectors {
		if _, err := tx.ExecContext(ctx, `INSERT INTO collection_vectors(collection, name, size) VALUES (?, ?, ?)`, b.collection, v.Name, v.Size); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return b.loadDims()
}

// Upsert replaces each point whole, vectors included.
func (b *SQLiteBackend) Upsert(ctx context.Context, points ...Point) error {
	b.mu.Lock()
	dims := b.dims
	b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, p := range points {
		fields := p.Payload
		if fields == nil {
			fields = map[string]any{}
		}
		payload, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encode payload %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO points(collection, id, payload, updated_at) VALUES (?, ?, ?, datetime('now'))`,
			b.collection, p.ID, string(payload)); err != nil {
			return fmt.Errorf("upsert point %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM point_vectors WHERE collection = ? AND point_id = ?`, b.collection, p.ID); err != nil {
			return fmt.Errorf("clear vectors %s: %w", p.ID, err)
		}
		for name, vec := range p.Vectors {
			if want, ok := dims[name]; len(dims) > 0 && (!ok || want != len(vec)) {
				return fmt.Errorf("upsert point %s: vector %s has dimension %d, collection expects %d", p.ID, name, len(vec), want)
			}
			blob, err := encodeVector(vec)
			if err != nil {
				return fmt.Errorf("upsert point %s: %w", p.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO point_vectors(collection, point_id, name, vector) VALUES (?, ?, ?, ?)`,
				b.collection, p.ID, name, blob); err != nil {
				return fmt.Errorf("insert vector %s/%s: %w", p.ID, name, err)
			}
		}
	}
	return tx.Commit()
}

// Query scores every stored vector of the name against vector. Rows that
// cannot be scored are skipped.
func (b *SQLiteBackend) Query(ctx context.Context, vectorName string, vector []float32, limit int) ([]Hit, error) {
	if zeroNorm(vector) {
		return nil, fmt.Errorf("query %s: zero vector", vectorName)
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT p.id, p.payload, v.vector
		FROM point_vectors v
		JOIN points p ON p.collection = v.collection AND p.id = v.point_id
		WHERE v.collection = ? AND v.name = ?
	`, b.collection, vectorName)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", vectorName, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var id, payload string
		var blob []byte
		if err := rows.Scan(&id, &payload, &blob); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		stored, err := decodeVector(blob)
		if err != nil {
			log.Printf("[evidence] skip point %s in %s: %v", id, vectorName, err)
			continue
		}
		score, err := cosine(vector, stored)
		if err != nil {
			log.Printf("[evidence] skip point %s in %s: %v", id, vectorName, err)
			continue
		}
		hit := Hit{ID: id, Score: score}
		if err := json.Unmarshal([]byte(payload), &hit.Payload); err != nil {
			return nil, fmt.Errorf("decode payload %s: %w", id, err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", vectorName, err)
	}
	return topHits(hits, limit), nil
}

// Scroll returns points matching every filter condition, ordered by id.
func (b *SQLiteBackend) Scroll(ctx context.Context, filter Filter, limit int) ([]Hit, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, payload FROM points WHERE collection = ?`)
	args := []any{b.collection}

	keys := make([]string, 0, len(filter.Must))
	for k := range filter.Must {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !payloadKeyRe.MatchString(k) {
			return nil, fmt.Errorf("scroll: invalid payload key %q", k)
		}
		query.WriteString(` AND json_extract(payload, ?) = ?`)
		args = append(args, "$."+k, filter.Must[k])
	}
	query.WriteString(` ORDER BY id`)
	if limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := b.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		var payload string
		if err := rows.Scan(&hit.ID, &payload); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &hit.Payload); err != nil {
			return nil, fmt.Errorf("decode payload %s: %w", hit.ID, err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}
	return hits, nil
}

// Count reports how many points the collection holds.
func (b *SQLiteBackend) Count(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points WHERE collection = ?`, b.collection).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("count points: %w", err)
	}
	return n, nil
}

func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *SQLiteBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
