package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/wtsi-hgi/shepherd/model"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var sqliteSchema string

// SQLiteStore is a SQLite-backed Store, the development/test persistence
// backend. Connection setup (single-writer pool sizing, WAL mode,
// pragma set) and the createTables/upsert patterns are grounded directly
// on the teacher's graph/store/sqlite.go.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serialises the attempts-table lock, which SQLite has no native row-lock primitive for
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path.
// Use ":memory:" for ephemeral test stores.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Bootstrap(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type sqliteTx struct {
	tx     *sql.Tx
	unlock func()
}

func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

// lockAttempts emulates Postgres's table-level exclusive lock with an
// in-process mutex, since SQLite already serialises writers (one
// connection, MaxOpenConns=1) but attempt() needs its read-then-insert
// sequence to be atomic with respect to other goroutines sharing this
// *SQLiteStore in tests and single-process deployments.
func (s *SQLiteStore) lockAttempts() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

func (t *sqliteTx) LockAttempts(ctx context.Context) error {
	// The mutex is taken by SQLiteStore.Attempt itself for its
	// select-then-insert and released when Attempt returns; nothing
	// further to do per-transaction here.
	return nil
}

func (t *sqliteTx) Commit() error {
	if t.unlock != nil {
		defer t.unlock()
	}
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	if t.unlock != nil {
		defer t.unlock()
	}
	return t.tx.Rollback()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, tx Tx, client string, maxAttempts int) (int64, error) {
	t := tx.(*sqliteTx).tx
	res, err := t.ExecContext(ctx, `INSERT INTO jobs (client, max_attempts) VALUES (?, ?)`, client, maxAttempts)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetJob(ctx context.Context, id int64) (model.Job, error) {
	var j model.Job
	j.ID = id
	err := s.db.QueryRowContext(ctx, `SELECT client, max_attempts FROM jobs WHERE id = ?`, id).
		Scan(&j.Client, &j.MaxAttempts)
	return j, err
}

func (s *SQLiteStore) SetMaxAttempts(ctx context.Context, tx Tx, job int64, maxAttempts int) error {
	t := tx.(*sqliteTx).tx
	_, err := t.ExecContext(ctx, `UPDATE jobs SET max_attempts = ? WHERE id = ?`, maxAttempts, job)
	return err
}

func (s *SQLiteStore) SetMetadata(ctx context.Context, tx Tx, job int64, key, value string) error {
	t := tx.(*sqliteTx).tx
	_, err := t.ExecContext(ctx, `
		INSERT INTO job_metadata (job, key, value) VALUES (?, ?, ?)
		ON CONFLICT (job, key) DO UPDATE SET value = excluded.value`,
		job, key, value)
	return err
}

func (s *SQLiteStore) GetMetadata(ctx context.Context, job int64, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM job_metadata WHERE job = ? AND key = ?`, job, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	return value, err == nil, err
}

func (s *SQLiteStore) PhaseInit(ctx context.Context, tx Tx, job int64, phase model.Phase) error {
	t := tx.(*sqliteTx).tx
	_, err := t.ExecContext(ctx, `
		INSERT INTO job_timestamps (job, phase, start) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (job, phase) DO UPDATE SET start = COALESCE(job_timestamps.start, CURRENT_TIMESTAMP)`,
		job, phase)
	return err
}

func (s *SQLiteStore) PhaseStop(ctx context.Context, tx Tx, job int64, phase model.Phase) error {
	t := tx.(*sqliteTx).tx
	_, err := t.ExecContext(ctx, `
		UPDATE job_timestamps SET finish = COALESCE(finish, CURRENT_TIMESTAMP)
		WHERE job = ? AND phase = ?`,
		job, phase)
	return err
}

func (s *SQLiteStore) PhaseStatus(ctx context.Context, job int64, phase model.Phase) (model.JobTimestamp, error) {
	var ts model.JobTimestamp
	ts.Job = job
	ts.Phase = phase
	var start, finish sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT start, finish FROM job_timestamps WHERE job = ? AND phase = ?`, job, phase).
		Scan(&start, &finish)
	if err == sql.ErrNoRows {
		return ts, nil
	}
	if err != nil {
		return ts, err
	}
	if start.Valid {
		ts.Start = &start.Time
	}
	if finish.Valid {
		ts.Finish = &finish.Time
	}
	return ts, nil
}

func (s *SQLiteStore) UpsertFilesystem(ctx context.Context, tx Tx, job int64, name string, maxConcurrency int) (int64, error) {
	t := tx.(*sqliteTx).tx
	_, err := t.ExecContext(ctx, `
		INSERT INTO filesystems (job, name, max_concurrency) VALUES (?, ?, ?)
		ON CONFLICT (job, name) DO UPDATE SET max_concurrency = excluded.max_concurrency`,
		job, name, maxConcurrency)
	if err != nil {
		return 0, err
	}
	var id int64
	err = t.QueryRowContext(ctx, `SELECT id FROM filesystems WHERE job = ? AND name = ?`, job, name).Scan(&id)
	return id, err
}

func (s *SQLiteStore) InsertData(ctx context.Context, tx Tx, filesystem int64, address string) (int64, error) {
	t := tx.(*sqliteTx).tx
	res, err := t.ExecContext(ctx, `INSERT INTO data (filesystem, address) VALUES (?, ?)`, filesystem, address)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SetSize is write-once per data id: if a size row already exists, the
// persisted value is returned unchanged.
func (s *SQLiteStore) SetSize(ctx context.Context, tx Tx, data int64, bytes int64) (int64, error) {
	t := tx.(*sqliteTx).tx
	var existing int64
	err := t.QueryRowContext(ctx, `SELECT bytes FROM size WHERE data = ?`, data).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	if _, err := t.ExecContext(ctx, `INSERT INTO size (data, bytes) VALUES (?, ?)`, data, bytes); err != nil {
		return 0, err
	}
	return bytes, nil
}

// SetChecksum is write-once per (data, algorithm): if already persisted,
// the cached value is returned (e.g. because this data id was a prior
// step's target and has since been aliased as the next step's source).
func (s *SQLiteStore) SetChecksum(ctx context.Context, tx Tx, data int64, algorithm, value string) (string, error) {
	t := tx.(*sqliteTx).tx
	var existing string
	err := t.QueryRowContext(ctx, `SELECT value FROM checksums WHERE data = ? AND algorithm = ?`, data, algorithm).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}
	if _, err := t.ExecContext(ctx, `INSERT INTO checksums (data, algorithm, value) VALUES (?, ?, ?)`, data, algorithm, value); err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLiteStore) GetData(ctx context.Context, data int64) (model.Data, error) {
	var d model.Data
	err := s.db.QueryRowContext(ctx, `SELECT id, filesystem, address FROM data WHERE id = ?`, data).
		Scan(&d.ID, &d.Filesystem, &d.Address)
	return d, err
}

func (s *SQLiteStore) GetFilesystem(ctx context.Context, filesystem int64) (model.Filesystem, error) {
	var f model.Filesystem
	err := s.db.QueryRowContext(ctx, `SELECT id, job, name, max_concurrency FROM filesystems WHERE id = ?`, filesystem).
		Scan(&f.ID, &f.Job, &f.Name, &f.MaxConcurrency)
	return f, err
}

func (s *SQLiteStore) GetExitCode(ctx context.Context, attempt int64) (*int, error) {
	var code sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT exit_code FROM attempts WHERE id = ?`, attempt).Scan(&code)
	if err != nil {
		return nil, err
	}
	if !code.Valid {
		return nil, nil
	}
	v := int(code.Int64)
	return &v, nil
}

func (s *SQLiteStore) InsertTask(ctx context.Context, tx Tx, job int64, source, target int64, script string, dependency *int64) (int64, error) {
	t := tx.(*sqliteTx).tx
	res, err := t.ExecContext(ctx, `
		INSERT INTO tasks (job, source, target, script, dependency) VALUES (?, ?, ?, ?, ?)`,
		job, source, target, script, dependency)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Attempt implements job.attempt(time_limit): under the attempts-table
// lock, select the first ready task (optionally bounded by a predicted
// duration), insert a sentinel attempt row, and return it. Grounded on
// PGAttempt/PGJob.attempt in the original implementation.
func (s *SQLiteStore) Attempt(ctx context.Context, tx Tx, job int64, timeLimit *time.Duration) (model.Attempt, model.Task, error) {
	unlock := s.lockAttempts()
	defer unlock()

	t := tx.(*sqliteTx).tx

	query := `SELECT task FROM todo WHERE job = ? ORDER BY task LIMIT 1`
	args := []any{job}
	if timeLimit != nil {
		// A per-route mean-throughput time estimate: join the task's
		// source size against job_throughput's bytes-per-second for its
		// (source fs, target fs) pair.
		query = `
			SELECT td.task FROM todo td
			JOIN tasks tk ON tk.id = td.task
			JOIN data sd ON sd.id = tk.source
			JOIN filesystems sf ON sf.id = sd.filesystem
			JOIN data dd ON dd.id = tk.target
			JOIN filesystems df ON df.id = dd.filesystem
			LEFT JOIN size sz ON sz.data = tk.source
			LEFT JOIN job_throughput jt ON jt.job = td.job AND jt.source_fs = sf.name AND jt.target_fs = df.name
			WHERE td.job = ?
			  AND (jt.total_bytes IS NULL OR jt.total_seconds IS NULL OR jt.total_seconds = 0
			       OR (COALESCE(sz.bytes, 0) / (jt.total_bytes / jt.total_seconds)) <= ?)
			ORDER BY td.task LIMIT 1`
		args = append(args, timeLimit.Seconds())
	}

	var taskID int64
	if err := t.QueryRowContext(ctx, query, args...).Scan(&taskID); err != nil {
		if err == sql.ErrNoRows {
			return model.Attempt{}, model.Task{}, errNoTasksAvailable
		}
		return model.Attempt{}, model.Task{}, err
	}

	res, err := t.ExecContext(ctx, `INSERT INTO attempts (task, start, finish, exit_code) VALUES (?, NULL, NULL, NULL)`, taskID)
	if err != nil {
		return model.Attempt{}, model.Task{}, err
	}
	attemptID, err := res.LastInsertId()
	if err != nil {
		return model.Attempt{}, model.Task{}, err
	}

	var task model.Task
	var dep sql.NullInt64
	err = t.QueryRowContext(ctx, `SELECT id, job, source, target, script, dependency FROM tasks WHERE id = ?`, taskID).
		Scan(&task.ID, &task.Job, &task.Source, &task.Target, &task.Script, &dep)
	if err != nil {
		return model.Attempt{}, model.Task{}, err
	}
	if dep.Valid {
		d := dep.Int64
		task.Dependency = &d
	}

	return model.Attempt{ID: attemptID, Task: taskID}, task, nil
}

func (s *SQLiteStore) StartAttempt(ctx context.Context, tx Tx, attempt int64) error {
	t := tx.(*sqliteTx).tx
	_, err := t.ExecContext(ctx, `UPDATE attempts SET start = CURRENT_TIMESTAMP WHERE id = ? AND start IS NULL`, attempt)
	return err
}

func (s *SQLiteStore) FinishAttempt(ctx context.Context, tx Tx, attempt int64, exitCode int) error {
	t := tx.(*sqliteTx).tx
	_, err := t.ExecContext(ctx, `
		UPDATE attempts SET finish = COALESCE(finish, CURRENT_TIMESTAMP), exit_code = ?
		WHERE id = ?`, exitCode, attempt)
	return err
}

// ForciblyTerminateInFlight is the force_restart recovery step: every
// in-flight attempt for the job is rewritten to
// (start=coalesce(start,now), finish=now, exit_code=ForciblyTerminated).
func (s *SQLiteStore) ForciblyTerminateInFlight(ctx context.Context, tx Tx, job int64) (int, error) {
	t := tx.(*sqliteTx).tx
	res, err := t.ExecContext(ctx, `
		UPDATE attempts SET
			start = COALESCE(start, CURRENT_TIMESTAMP),
			finish = CURRENT_TIMESTAMP,
			exit_code = ?
		WHERE exit_code IS NULL AND task IN (SELECT id FROM tasks WHERE job = ?)`,
		model.ForciblyTerminated, job)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) JobCounts(ctx context.Context, job int64) (model.JobCounts, error) {
	var c model.JobCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(pending,0), COALESCE(running,0), COALESCE(succeeded,0), COALESCE(failed,0)
		FROM job_status WHERE job = ?`, job).
		Scan(&c.Pending, &c.Running, &c.Succeeded, &c.Failed)
	if err == sql.ErrNoRows {
		return model.JobCounts{}, nil
	}
	return c, err
}

func (s *SQLiteStore) Throughput(ctx context.Context, job int64, sourceFS, targetFS string) (float64, float64, error) {
	var totalBytes, totalSeconds, failureProb sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT total_bytes, total_seconds, failure_probability FROM job_throughput
		WHERE job = ? AND source_fs = ? AND target_fs = ?`, job, sourceFS, targetFS).
		Scan(&totalBytes, &totalSeconds, &failureProb)
	if err == sql.ErrNoRows || !totalBytes.Valid || !totalSeconds.Valid || totalSeconds.Float64 == 0 {
		return 0, 0, errNoThroughputData
	}
	if err != nil {
		return 0, 0, err
	}
	return totalBytes.Float64 / totalSeconds.Float64, failureProb.Float64, nil
}
