package task

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
	"github.com/danielpatrickdp/brand-guardian/internal/verdict"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id          TEXT PRIMARY KEY,
	url              TEXT NOT NULL,
	status           TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	terminal_at      TEXT,
	progress         TEXT NOT NULL,
	step             INTEGER NOT NULL,
	total_steps      INTEGER NOT NULL,
	warnings_json    TEXT,
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	result_json      TEXT,
	error_json       TEXT
);

CREATE TABLE IF NOT EXISTS task_transitions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id      TEXT NOT NULL,
	from_status  TEXT,
	to_status    TEXT NOT NULL,
	note         TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_transitions_task ON task_transitions(task_id, id);
`

// #endregion schema

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region store-struct

// SQLiteStore keeps tasks in SQLite. The transition log is never evicted, so the
// provenance of an audit outlives its task record.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex // serializes read-modify-write cycles
	now func() time.Time
}

// NewSQLiteStore opens a SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// #endregion store-struct

// #region create

// Create inserts a new QUEUED task and its first transition.
func (s *SQLiteStore) Create(t Task) error {
	if err := validateNew(t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM tasks WHERE task_id = ?`, t.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check task: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrExists, t.ID)
	}
	if err := writeTask(tx, t, true); err != nil {
		return err
	}
	if err := writeTransition(tx, Transition{TaskID: t.ID, To: StatusQueued, Note: t.Progress, At: t.CreatedAt}); err != nil {
		return err
	}
	return tx.Commit()
}

// #endregion create

// #region read

const selectTask = `SELECT task_id, url, status, created_at, updated_at, terminal_at, progress,
	step, total_steps, warnings_json, cancel_requested, result_json, error_json FROM tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var status, created, updated string
	var terminal, warnings, result, failure sql.NullString
	var cancel int
	err := row.Scan(&t.ID, &t.URL, &status, &created, &updated, &terminal, &t.Progress,
		&t.Step, &t.TotalSteps, &warnings, &cancel, &result, &failure)
	if err != nil {
		return Task{}, err
	}
	t.Status = Status(status)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	if terminal.Valid {
		t.TerminalAt, _ = time.Parse(time.RFC3339Nano, terminal.String)
	}
	t.CancelRequested = cancel != 0
	if warnings.Valid {
		if err := json.Unmarshal([]byte(warnings.String), &t.Warnings); err != nil {
			return Task{}, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	if result.Valid {
		var v verdict.Verdict
		if err := json.Unmarshal([]byte(result.String), &v); err != nil {
			return Task{}, fmt.Errorf("unmarshal result: %w", err)
		}
		t.Result = &v
	}
	if failure.Valid {
		var f Failure
		if err := json.Unmarshal([]byte(failure.String), &f); err != nil {
			return Task{}, fmt.Errorf("unmarshal error: %w", err)
		}
		t.Error = &f
	}
	return t, nil
}

// Get returns the stored task.
func (s *SQLiteStore) Get(id string) (Task, error) {
	t, err := scanTask(s.db.QueryRow(selectTask+` WHERE task_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, auditerr.New(auditerr.KindNotFound, "task %s not found", id)
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// List returns every stored task, oldest first.
func (s *SQLiteStore) List() ([]Task, error) {
	rows, err := s.db.Query(selectTask + ` ORDER BY created_at, task_id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Transitions returns the provenance log of a task, including evicted ones.
func (s *SQLiteStore) Transitions(id string) ([]Transition, error) {
	rows, err := s.db.Query(
		`SELECT task_id, from_status, to_status, note, created_at FROM task_transitions
		 WHERE task_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("read transitions: %w", err)
	}
	defer rows.Close()
	var out []Transition
	for rows.Next() {
		var tr Transition
		var from, note sql.NullString
		var to, at string
		if err := rows.Scan(&tr.TaskID, &from, &to, &note, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.From = Status(from.String)
		tr.To = Status(to)
		tr.Note = note.String
		tr.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, auditerr.New(auditerr.KindNotFound, "task %s not found", id)
	}
	return out, nil
}

// #endregion read

// #region update

// Update applies fn in a transaction and logs the transition, if any.
func (s *SQLiteStore) Update(id string, fn func(*Task) error) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Task{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cur, err := scanTask(tx.QueryRow(selectTask+` WHERE task_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, auditerr.New(auditerr.KindNotFound, "task %s not found", id)
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task %s: %w", id, err)
	}

	next, tr, err := applyUpdate(cur, fn, s.now())
	if err != nil {
		return Task{}, err
	}
	if err := writeTask(tx, next, false); err != nil {
		return Task{}, err
	}
	if tr != nil {
		if err := writeTransition(tx, *tr); err != nil {
			return Task{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

// #endregion update

// #region evict

// EvictExpired deletes terminal tasks whose TerminalAt is at least ttl before now.
// Their transitions are kept.
func (s *SQLiteStore) EvictExpired(now time.Time, ttl time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(selectTask + ` WHERE status IN ('DONE', 'FAILED') ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("scan terminal tasks: %w", err)
	}
	var ids []string
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if expired(t, now, ttl) {
			ids = append(ids, t.ID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := s.db.Exec(`DELETE FROM tasks WHERE task_id = ?`, id); err != nil {
			return nil, fmt.Errorf("evict %s: %w", id, err)
		}
	}
	return ids, nil
}

// #endregion evict

// #region helpers

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func writeTask(db execer, t Task, insert bool) error {
	warnings, err := marshalOrNull(t.Warnings, len(t.Warnings) > 0)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	result, err := marshalOrNull(t.Result, t.Result != nil)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	failure, err := marshalOrNull(t.Error, t.Error != nil)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	var terminal any
	if !t.TerminalAt.IsZero() {
		terminal = t.TerminalAt.UTC().Format(timeLayout)
	}
	cancel := 0
	if t.CancelRequested {
		cancel = 1
	}

	if insert {
		_, err = db.Exec(
			`INSERT INTO tasks (task_id, url, status, created_at, updated_at, terminal_at, progress,
			 step, total_steps, warnings_json, cancel_requested, result_json, error_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.URL, string(t.Status), t.CreatedAt.UTC().Format(timeLayout), t.UpdatedAt.UTC().Format(timeLayout),
			terminal, t.Progress, t.Step, t.TotalSteps, warnings, cancel, result, failure,
		)
	} else {
		_, err = db.Exec(
			`UPDATE tasks SET status = ?, updated_at = ?, terminal_at = ?, progress = ?, step = ?,
			 total_steps = ?, warnings_json = ?, cancel_requested = ?, result_json = ?, error_json = ?
			 WHERE task_id = ?`,
			string(t.Status), t.UpdatedAt.UTC().Format(timeLayout), terminal, t.Progress, t.Step,
			t.TotalSteps, warnings, cancel, result, failure, t.ID,
		)
	}
	if err != nil {
		return fmt.Errorf("write task %s: %w", t.ID, err)
	}
	return nil
}

func writeTransition(db execer, tr Transition) error {
	_, err := db.Exec(
		`INSERT INTO task_transitions (task_id, from_status, to_status, note, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		tr.TaskID, nullIfEmpty(string(tr.From)), string(tr.To), nullIfEmpty(tr.Note), tr.At.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("log transition: %w", err)
	}
	return nil
}

func marshalOrNull(v any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
