// Package store persists tasks, driver artifacts and attempt logs in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store manages the SQLite database holding tasks, artifacts and attempt
// logs. It is the only mutable shared state in the system; the tick accesses
// it with plain read-modify-write since only one task is in flight at a time.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a Store and initializes the database schema.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout must come first so subsequent pragmas wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a SQL statement with exponential backoff on
// "database is locked" errors that can occur during concurrent
// initialization of the same database file.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const taskColumns = `id, name, source_payload, protocol_text, target_language, status,
	attempt_count, max_attempts, artifact_id, last_error, created_at, updated_at`

// eligibleWhere matches tasks that qualify for tick pickup: queued, or
// failed with attempt budget remaining.
const eligibleWhere = `(status = 'queued' OR (status = 'failed' AND attempt_count < max_attempts))`

// AddTask inserts a new task.
func (s *Store) AddTask(ctx context.Context, task models.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("validate task: %w", err)
	}

	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Name,
		task.SourcePayload,
		nullString(task.ProtocolText),
		task.TargetLanguage,
		task.Status,
		task.AttemptCount,
		task.MaxAttempts,
		nullString(task.ArtifactID),
		nullString(task.LastError),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTask persists a task snapshot over the stored row.
func (s *Store) UpdateTask(ctx context.Context, task models.Task) error {
	query := `UPDATE tasks SET name = ?, source_payload = ?, protocol_text = ?,
		target_language = ?, status = ?, attempt_count = ?, max_attempts = ?,
		artifact_id = ?, last_error = ?, updated_at = ?
		WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query,
		task.Name,
		task.SourcePayload,
		nullString(task.ProtocolText),
		task.TargetLanguage,
		task.Status,
		task.AttemptCount,
		task.MaxAttempts,
		nullString(task.ArtifactID),
		nullString(task.LastError),
		task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update task %s: %w", task.ID, ErrNotFound)
	}
	return nil
}

// GetTask retrieves a task by id. Returns ErrNotFound if it does not exist.
func (s *Store) GetTask(ctx context.Context, id string) (models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// NextEligibleTask returns the oldest-created task eligible for pickup, or
// ErrNotFound when the queue has no work.
func (s *Store) NextEligibleTask(ctx context.Context) (models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE ` + eligibleWhere + `
		ORDER BY created_at ASC, id ASC
		LIMIT 1`
	row := s.db.QueryRowContext(ctx, query)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("next eligible task: %w", err)
	}
	return task, nil
}

// HasEligibleTasks reports whether any task qualifies for pickup.
func (s *Store) HasEligibleTasks(ctx context.Context) (bool, error) {
	n, err := s.CountEligible(ctx)
	return n > 0, err
}

// CountEligible returns how many tasks currently qualify for pickup.
func (s *Store) CountEligible(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE `+eligibleWhere).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count eligible tasks: %w", err)
	}
	return n, nil
}

// ListTasks returns one page of tasks ordered oldest-first, optionally
// filtered by status. Page numbers start at 1.
func (s *Store) ListTasks(ctx context.Context, page, pageSize int, statusFilter string) ([]models.Task, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []interface{}{}
	if statusFilter != "" {
		query += ` WHERE status = ?`
		args = append(args, statusFilter)
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return tasks, nil
}

// CountByStatus returns the number of tasks, optionally filtered by status.
func (s *Store) CountByStatus(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM tasks`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// TasksInProcessing returns tasks stranded in the transient Processing
// state, oldest first. Used by the recovery sweep.
func (s *Store) TasksInProcessing(ctx context.Context) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status = 'processing'
		ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query processing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return tasks, nil
}

// SaveArtifact stores the task's current driver artifact, replacing any
// previous one wholesale (no artifact history is kept).
func (s *Store) SaveArtifact(ctx context.Context, art models.DriverArtifact) error {
	query := `INSERT INTO artifacts (id, task_id, content, version, validated, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			id = excluded.id,
			content = excluded.content,
			version = excluded.version,
			validated = excluded.validated,
			fingerprint = excluded.fingerprint,
			created_at = excluded.created_at`
	_, err := s.db.ExecContext(ctx, query,
		art.ID, art.TaskID, art.Content, art.Version, art.Validated, art.Fingerprint, art.CreatedAt)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

// GetArtifactForTask returns the task's current driver artifact.
func (s *Store) GetArtifactForTask(ctx context.Context, taskID string) (models.DriverArtifact, error) {
	query := `SELECT id, task_id, content, version, validated, fingerprint, created_at
		FROM artifacts WHERE task_id = ?`
	var art models.DriverArtifact
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&art.ID, &art.TaskID, &art.Content, &art.Version, &art.Validated, &art.Fingerprint, &art.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DriverArtifact{}, fmt.Errorf("artifact for task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return models.DriverArtifact{}, fmt.Errorf("get artifact: %w", err)
	}
	return art, nil
}

// AddAttemptLog appends an attempt record. Logs are append-only and never
// mutated afterwards.
func (s *Store) AddAttemptLog(ctx context.Context, log *models.AttemptLog) error {
	testedJSON := "[]"
	if len(log.TestedRegs) > 0 {
		data, err := json.Marshal(log.TestedRegs)
		if err != nil {
			return fmt.Errorf("marshal tested registers: %w", err)
		}
		testedJSON = string(data)
	}

	query := `INSERT INTO attempt_logs
		(task_id, attempt_number, success, error_kind, error_message, expected_bytes,
		 actual_bytes, error_byte_position, tested_registers, sub_attempts, confidence,
		 duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query,
		log.TaskID,
		log.AttemptNumber,
		log.Success,
		nullString(log.ErrorKind),
		nullString(log.ErrorMessage),
		nullString(log.ExpectedBytes),
		nullString(log.ActualBytes),
		log.ErrorBytePos,
		testedJSON,
		nullString(log.SubAttempts),
		log.Confidence,
		log.DurationMs,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get attempt log id: %w", err)
	}
	log.ID = id
	return nil
}

// RecentFailuresForTask returns the task's most recent failed attempts,
// newest first, up to n entries.
func (s *Store) RecentFailuresForTask(ctx context.Context, taskID string, n int) ([]models.AttemptLog, error) {
	query := attemptLogSelect + ` WHERE task_id = ? AND success = 0 ORDER BY id DESC LIMIT ?`
	return s.queryAttemptLogs(ctx, query, taskID, n)
}

// RecentFailuresGlobal returns the most recent failed attempts across all
// tasks except the given one, newest first, up to n entries. Pass an empty
// excludeTaskID to include every task.
func (s *Store) RecentFailuresGlobal(ctx context.Context, excludeTaskID string, n int) ([]models.AttemptLog, error) {
	query := attemptLogSelect + ` WHERE success = 0 AND task_id != ? ORDER BY id DESC LIMIT ?`
	return s.queryAttemptLogs(ctx, query, excludeTaskID, n)
}

// AttemptLogsForTask returns every attempt for a task, oldest first.
func (s *Store) AttemptLogsForTask(ctx context.Context, taskID string) ([]models.AttemptLog, error) {
	query := attemptLogSelect + ` WHERE task_id = ? ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("query attempt logs: %w", err)
	}
	defer rows.Close()
	return scanAttemptLogs(rows)
}

const attemptLogSelect = `SELECT id, task_id, attempt_number, success, error_kind, error_message,
	expected_bytes, actual_bytes, error_byte_position, tested_registers, sub_attempts,
	confidence, duration_ms, created_at
	FROM attempt_logs`

func (s *Store) queryAttemptLogs(ctx context.Context, query string, args ...interface{}) ([]models.AttemptLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempt logs: %w", err)
	}
	defer rows.Close()
	return scanAttemptLogs(rows)
}

func scanAttemptLogs(rows *sql.Rows) ([]models.AttemptLog, error) {
	var logs []models.AttemptLog
	for rows.Next() {
		var log models.AttemptLog
		var errorKind, errorMessage, expected, actual, tested, subAttempts sql.NullString
		err := rows.Scan(
			&log.ID,
			&log.TaskID,
			&log.AttemptNumber,
			&log.Success,
			&errorKind,
			&errorMessage,
			&expected,
			&actual,
			&log.ErrorBytePos,
			&tested,
			&subAttempts,
			&log.Confidence,
			&log.DurationMs,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attempt log row: %w", err)
		}
		log.ErrorKind = errorKind.String
		log.ErrorMessage = errorMessage.String
		log.ExpectedBytes = expected.String
		log.ActualBytes = actual.String
		log.SubAttempts = subAttempts.String
		if tested.Valid && tested.String != "" && tested.String != "[]" {
			if err := json.Unmarshal([]byte(tested.String), &log.TestedRegs); err != nil {
				return nil, fmt.Errorf("unmarshal tested registers: %w", err)
			}
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt log rows: %w", err)
	}
	return logs, nil
}

// scanner abstracts sql.Row and sql.Rows for task scanning.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (models.Task, error) {
	var task models.Task
	var protocolText, artifactID, lastError sql.NullString
	err := row.Scan(
		&task.ID,
		&task.Name,
		&task.SourcePayload,
		&protocolText,
		&task.TargetLanguage,
		&task.Status,
		&task.AttemptCount,
		&task.MaxAttempts,
		&artifactID,
		&lastError,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return models.Task{}, err
	}
	task.ProtocolText = protocolText.String
	task.ArtifactID = artifactID.String
	task.LastError = lastError.String
	return task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
