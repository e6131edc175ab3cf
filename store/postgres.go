package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wtsi-hgi/shepherd/model"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore is the production Store backend. It replaces the
// teacher's MySQL backend (same role: a networked SQL store alongside
// the embedded SQLite one) with jackc/pgx/v5, since the external
// interfaces design names Postgres-specific environment variables
// explicitly. Pool construction follows the AfterConnect session-tuning
// pattern demonstrated in the retrieval pack's pgx bulk-COPY pipeline
// (pool size matched to expected concurrent worker count, session-level
// timeouts applied per connection).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PostgresConfig carries the connection parameters named by the external
// interfaces design (PG_HOST, PG_PORT, PG_DATABASE, PG_USERNAME,
// PG_PASSWORD).
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// MaxConns bounds the pool; it should be sized to the number of
	// transfer workers that will share this process's connections.
	MaxConns int32
}

// NewPostgresStore opens a connection pool against the given Postgres
// configuration.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET statement_timeout = '30s'; SET lock_timeout = '10s'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Bootstrap(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &postgresTx{tx: tx}, nil
}

// LockAttempts takes the table-level exclusive lock job.attempt() needs,
// matching the original's `with c.lock("attempts")`.
func (t *postgresTx) LockAttempts(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `LOCK TABLE attempts IN EXCLUSIVE MODE`)
	return err
}

func (t *postgresTx) Commit() error   { return t.tx.Commit(context.Background()) }
func (t *postgresTx) Rollback() error { return t.tx.Rollback(context.Background()) }

func (s *PostgresStore) CreateJob(ctx context.Context, tx Tx, client string, maxAttempts int) (int64, error) {
	t := tx.(*postgresTx).tx
	var id int64
	err := t.QueryRow(ctx, `INSERT INTO jobs (client, max_attempts) VALUES ($1, $2) RETURNING id`, client, maxAttempts).Scan(&id)
	return id, err
}

func (s *PostgresStore) GetJob(ctx context.Context, id int64) (model.Job, error) {
	var j model.Job
	j.ID = id
	err := s.pool.QueryRow(ctx, `SELECT client, max_attempts FROM jobs WHERE id = $1`, id).Scan(&j.Client, &j.MaxAttempts)
	return j, err
}

func (s *PostgresStore) SetMaxAttempts(ctx context.Context, tx Tx, job int64, maxAttempts int) error {
	t := tx.(*postgresTx).tx
	_, err := t.Exec(ctx, `UPDATE jobs SET max_attempts = $1 WHERE id = $2`, maxAttempts, job)
	return err
}

func (s *PostgresStore) SetMetadata(ctx context.Context, tx Tx, job int64, key, value string) error {
	t := tx.(*postgresTx).tx
	_, err := t.Exec(ctx, `
		INSERT INTO job_metadata (job, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (job, key) DO UPDATE SET value = excluded.value`,
		job, key, value)
	return err
}

func (s *PostgresStore) GetMetadata(ctx context.Context, job int64, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM job_metadata WHERE job = $1 AND key = $2`, job, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	return value, err == nil, err
}

func (s *PostgresStore) PhaseInit(ctx context.Context, tx Tx, job int64, phase model.Phase) error {
	t := tx.(*postgresTx).tx
	_, err := t.Exec(ctx, `
		INSERT INTO job_timestamps (job, phase, start) VALUES ($1, $2, now())
		ON CONFLICT (job, phase) DO UPDATE SET start = COALESCE(job_timestamps.start, now())`,
		job, phase)
	return err
}

func (s *PostgresStore) PhaseStop(ctx context.Context, tx Tx, job int64, phase model.Phase) error {
	t := tx.(*postgresTx).tx
	_, err := t.Exec(ctx, `
		UPDATE job_timestamps SET finish = COALESCE(finish, now())
		WHERE job = $1 AND phase = $2`, job, phase)
	return err
}

func (s *PostgresStore) PhaseStatus(ctx context.Context, job int64, phase model.Phase) (model.JobTimestamp, error) {
	var ts model.JobTimestamp
	ts.Job = job
	ts.Phase = phase
	err := s.pool.QueryRow(ctx, `SELECT start, finish FROM job_timestamps WHERE job = $1 AND phase = $2`, job, phase).
		Scan(&ts.Start, &ts.Finish)
	if errors.Is(err, pgx.ErrNoRows) {
		return ts, nil
	}
	return ts, err
}

func (s *PostgresStore) UpsertFilesystem(ctx context.Context, tx Tx, job int64, name string, maxConcurrency int) (int64, error) {
	t := tx.(*postgresTx).tx
	var id int64
	err := t.QueryRow(ctx, `
		INSERT INTO filesystems (job, name, max_concurrency) VALUES ($1, $2, $3)
		ON CONFLICT (job, name) DO UPDATE SET max_concurrency = excluded.max_concurrency
		RETURNING id`, job, name, maxConcurrency).Scan(&id)
	return id, err
}

func (s *PostgresStore) InsertData(ctx context.Context, tx Tx, filesystem int64, address string) (int64, error) {
	t := tx.(*postgresTx).tx
	var id int64
	err := t.QueryRow(ctx, `INSERT INTO data (filesystem, address) VALUES ($1, $2) RETURNING id`, filesystem, address).Scan(&id)
	return id, err
}

func (s *PostgresStore) SetSize(ctx context.Context, tx Tx, data int64, bytes int64) (int64, error) {
	t := tx.(*postgresTx).tx
	var existing int64
	err := t.QueryRow(ctx, `SELECT bytes FROM size WHERE data = $1`, data).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	if _, err := t.Exec(ctx, `INSERT INTO size (data, bytes) VALUES ($1, $2)`, data, bytes); err != nil {
		return 0, err
	}
	return bytes, nil
}

func (s *PostgresStore) SetChecksum(ctx context.Context, tx Tx, data int64, algorithm, value string) (string, error) {
	t := tx.(*postgresTx).tx
	var existing string
	err := t.QueryRow(ctx, `SELECT value FROM checksums WHERE data = $1 AND algorithm = $2`, data, algorithm).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	if _, err := t.Exec(ctx, `INSERT INTO checksums (data, algorithm, value) VALUES ($1, $2, $3)`, data, algorithm, value); err != nil {
		return "", err
	}
	return value, nil
}

func (s *PostgresStore) GetData(ctx context.Context, data int64) (model.Data, error) {
	var d model.Data
	err := s.pool.QueryRow(ctx, `SELECT id, filesystem, address FROM data WHERE id = $1`, data).
		Scan(&d.ID, &d.Filesystem, &d.Address)
	return d, err
}

func (s *PostgresStore) GetFilesystem(ctx context.Context, filesystem int64) (model.Filesystem, error) {
	var f model.Filesystem
	err := s.pool.QueryRow(ctx, `SELECT id, job, name, max_concurrency FROM filesystems WHERE id = $1`, filesystem).
		Scan(&f.ID, &f.Job, &f.Name, &f.MaxConcurrency)
	return f, err
}

func (s *PostgresStore) GetExitCode(ctx context.Context, attempt int64) (*int, error) {
	var code *int
	err := s.pool.QueryRow(ctx, `SELECT exit_code FROM attempts WHERE id = $1`, attempt).Scan(&code)
	return code, err
}

func (s *PostgresStore) InsertTask(ctx context.Context, tx Tx, job int64, source, target int64, script string, dependency *int64) (int64, error) {
	t := tx.(*postgresTx).tx
	var id int64
	err := t.QueryRow(ctx, `
		INSERT INTO tasks (job, source, target, script, dependency) VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, job, source, target, script, dependency).Scan(&id)
	return id, err
}

func (s *PostgresStore) Attempt(ctx context.Context, tx Tx, job int64, timeLimit *time.Duration) (model.Attempt, model.Task, error) {
	t := tx.(*postgresTx).tx

	if err := tx.LockAttempts(ctx); err != nil {
		return model.Attempt{}, model.Task{}, err
	}

	query := `SELECT task FROM todo WHERE job = $1 ORDER BY task LIMIT 1`
	args := []any{job}
	if timeLimit != nil {
		query = `
			SELECT td.task FROM todo td
			JOIN tasks tk ON tk.id = td.task
			JOIN data sd ON sd.id = tk.source
			JOIN filesystems sf ON sf.id = sd.filesystem
			JOIN data dd ON dd.id = tk.target
			JOIN filesystems df ON df.id = dd.filesystem
			LEFT JOIN size sz ON sz.data = tk.source
			LEFT JOIN job_throughput jt ON jt.job = td.job AND jt.source_fs = sf.name AND jt.target_fs = df.name
			WHERE td.job = $1
			  AND (jt.total_bytes IS NULL OR jt.total_seconds IS NULL OR jt.total_seconds = 0
			       OR (COALESCE(sz.bytes, 0) / (jt.total_bytes / jt.total_seconds)) <= $2)
			ORDER BY td.task LIMIT 1`
		args = append(args, timeLimit.Seconds())
	}

	var taskID int64
	if err := t.QueryRow(ctx, query, args...).Scan(&taskID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Attempt{}, model.Task{}, errNoTasksAvailable
		}
		return model.Attempt{}, model.Task{}, err
	}

	var attemptID int64
	err := t.QueryRow(ctx, `INSERT INTO attempts (task, start, finish, exit_code) VALUES ($1, NULL, NULL, NULL) RETURNING id`, taskID).Scan(&attemptID)
	if err != nil {
		return model.Attempt{}, model.Task{}, err
	}

	var task model.Task
	err = t.QueryRow(ctx, `SELECT id, job, source, target, script, dependency FROM tasks WHERE id = $1`, taskID).
		Scan(&task.ID, &task.Job, &task.Source, &task.Target, &task.Script, &task.Dependency)
	if err != nil {
		return model.Attempt{}, model.Task{}, err
	}

	return model.Attempt{ID: attemptID, Task: taskID}, task, nil
}

func (s *PostgresStore) StartAttempt(ctx context.Context, tx Tx, attempt int64) error {
	t := tx.(*postgresTx).tx
	_, err := t.Exec(ctx, `UPDATE attempts SET start = now() WHERE id = $1 AND start IS NULL`, attempt)
	return err
}

func (s *PostgresStore) FinishAttempt(ctx context.Context, tx Tx, attempt int64, exitCode int) error {
	t := tx.(*postgresTx).tx
	_, err := t.Exec(ctx, `
		UPDATE attempts SET finish = COALESCE(finish, now()), exit_code = $1
		WHERE id = $2`, exitCode, attempt)
	return err
}

func (s *PostgresStore) ForciblyTerminateInFlight(ctx context.Context, tx Tx, job int64) (int, error) {
	t := tx.(*postgresTx).tx
	tag, err := t.Exec(ctx, `
		UPDATE attempts SET
			start = COALESCE(start, now()),
			finish = now(),
			exit_code = $1
		WHERE exit_code IS NULL AND task IN (SELECT id FROM tasks WHERE job = $2)`,
		model.ForciblyTerminated, job)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) JobCounts(ctx context.Context, job int64) (model.JobCounts, error) {
	var c model.JobCounts
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(pending,0), COALESCE(running,0), COALESCE(succeeded,0), COALESCE(failed,0)
		FROM job_status WHERE job = $1`, job).
		Scan(&c.Pending, &c.Running, &c.Succeeded, &c.Failed)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.JobCounts{}, nil
	}
	return c, err
}

func (s *PostgresStore) Throughput(ctx context.Context, job int64, sourceFS, targetFS string) (float64, float64, error) {
	var totalBytes, totalSeconds, failureProb *float64
	err := s.pool.QueryRow(ctx, `
		SELECT total_bytes, total_seconds, failure_probability FROM job_throughput
		WHERE job = $1 AND source_fs = $2 AND target_fs = $3`, job, sourceFS, targetFS).
		Scan(&totalBytes, &totalSeconds, &failureProb)
	if errors.Is(err, pgx.ErrNoRows) || totalBytes == nil || totalSeconds == nil || *totalSeconds == 0 {
		return 0, 0, errNoThroughputData
	}
	if err != nil {
		return 0, 0, err
	}
	fp := 0.0
	if failureProb != nil {
		fp = *failureProb
	}
	return *totalBytes / *totalSeconds, fp, nil
}
