package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const indexSchema = `
CREATE TABLE IF NOT EXISTS kb_meta (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	fingerprint  TEXT NOT NULL,
	embedder     TEXT NOT NULL,
	dimension    INTEGER NOT NULL,
	chunk_count  INTEGER NOT NULL,
	built_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS kb_chunks (
	chunk_id     TEXT PRIMARY KEY,
	ordinal      INTEGER NOT NULL,
	source       TEXT NOT NULL,
	page         INTEGER NOT NULL,
	char_offset  INTEGER NOT NULL,
	text         TEXT NOT NULL,
	embedding    BLOB NOT NULL
);
`

// #endregion schema

// #region index-store

// IndexStore persists an index together with its fingerprint so a restart can skip
// rebuilding unchanged sources.
type IndexStore interface {
	Load(ctx context.Context) (*Index, error) // nil, nil when nothing is stored
	Save(ctx context.Context, idx *Index) error
}

// SQLiteIndexStore keeps the index in a SQLite database.
type SQLiteIndexStore struct {
	db *sql.DB
}

// NewSQLiteIndexStore opens (or creates) the index database at path.
func NewSQLiteIndexStore(path string) (*SQLiteIndexStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index db: %w", err)
	}
	return &SQLiteIndexStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteIndexStore) Close() error {
	return s.db.Close()
}

// #endregion index-store

// #region save

// Save replaces the stored index in one transaction.
func (s *SQLiteIndexStore) Save(ctx context.Context, idx *Index) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kb_chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM kb_meta`); err != nil {
		return fmt.Errorf("clear meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO kb_chunks (chunk_id, ordinal, source, page, char_offset, text, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range idx.chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, i, c.Source, c.Page, c.Offset, c.Text, encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO kb_meta (id, fingerprint, embedder, dimension, chunk_count, built_at)
		 VALUES (1, ?, ?, ?, ?, ?)`,
		idx.fingerprint, idx.embedder, idx.dimension, len(idx.chunks), idx.builtAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}
	return tx.Commit()
}

// #endregion save

// #region load

// Load reads the stored index, or returns nil when none has been saved.
func (s *SQLiteIndexStore) Load(ctx context.Context) (*Index, error) {
	var fp, embedder, builtStr string
	var dimension, count int
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, embedder, dimension, chunk_count, built_at FROM kb_meta WHERE id = 1`,
	).Scan(&fp, &embedder, &dimension, &count, &builtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, source, page, char_offset, text, embedding FROM kb_chunks ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]PolicyChunk, 0, count)
	for rows.Next() {
		var c PolicyChunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Source, &c.Page, &c.Offset, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = decodeVector(blob)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(chunks) != count {
		return nil, fmt.Errorf("stored index is incomplete: meta says %d chunks, found %d", count, len(chunks))
	}

	builtAt, _ := time.Parse(time.RFC3339Nano, builtStr)
	idx, err := NewIndex(fp, embedder, builtAt, chunks)
	if err != nil {
		return nil, fmt.Errorf("stored index: %w", err)
	}
	if idx.dimension != dimension {
		return nil, fmt.Errorf("stored index: %w (meta %d, vectors %d)", ErrDimension, dimension, idx.dimension)
	}
	return idx, nil
}

// #endregion load

// #region vector-encoding
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// #endregion vector-encoding
