/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (TaskStore, UserStore, AuditLog)
  using SQLite.

INTERFACES IMPLEMENTED:
  works.TaskStore: Capital-works task rows
  works.UserStore: Portal accounts
  works.AuditLog:  Audit events

KEY TABLES:
  tasks:        One row per task; inputs and derived fields
  users:        Accounts (never deleted, only deactivated)
  audit_events: Append-only record of who did what when

PRECISION:
  Amounts are stored as TEXT in decimal.Decimal's canonical form so no
  binary floating point is ever involved between input and presentation.

SNO:
  tasks.sno is INTEGER PRIMARY KEY AUTOINCREMENT, so an sno is never handed
  out again after its row is deleted.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Mutations hold the write lock, so a
  ListTasks observes every mutation that returned before it started.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

ERRORS:
  Driver failures are wrapped with works.Backend, so callers can test them
  with works.IsBackendUnreachable.

USAGE:
  store, err := sqlite.New("./data/works.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := works.NewService(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - works/store.go: Interface definitions
  - works/store/memory.go: In-memory implementation for testing
  - backup/backup.go: Uses Snapshot
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/rkv/capital-works/works"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return works.Backend("ping", s.db.PingContext(ctx))
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Tasks
	CREATE TABLE IF NOT EXISTS tasks (
		sno INTEGER PRIMARY KEY AUTOINCREMENT,
		sub_division TEXT NOT NULL,
		account_code TEXT NOT NULL CHECK (account_code IN ('Spill', 'New')),
		number_of_works INTEGER NOT NULL,
		estimate_amount TEXT NOT NULL,
		agreement_amount TEXT NOT NULL,
		exp_upto_31_03_2025 TEXT NOT NULL,
		balance_amount_as_on_01_04_2025 TEXT NOT NULL,
		exp_upto_last_month TEXT NOT NULL,
		exp_during_this_month TEXT NOT NULL,
		total_exp_during_year TEXT NOT NULL,
		total_value_work_done_from_beginning TEXT NOT NULL,
		works_completed INTEGER NOT NULL,
		balance_works INTEGER NOT NULL,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_created_by
		ON tasks(created_by);

	-- Users
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('admin', 'user')),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		last_login_at TEXT
	);

	-- Audit events (append-only)
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		action TEXT NOT NULL,
		actor TEXT NOT NULL,
		role TEXT,
		status TEXT NOT NULL,
		metadata_json TEXT,
		trace_id TEXT,
		ip TEXT,
		user_agent TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_actor
		ON audit_events(actor, at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TASK STORE (works.TaskStore interface)
// =============================================================================

const taskColumns = `sno, sub_division, account_code, number_of_works,
	estimate_amount, agreement_amount, exp_upto_31_03_2025,
	balance_amount_as_on_01_04_2025, exp_upto_last_month, exp_during_this_month,
	total_exp_during_year, total_value_work_done_from_beginning,
	works_completed, balance_works, created_by, created_at`

// CreateTask inserts t and returns it with its assigned sno.
func (s *Store) CreateTask(ctx context.Context, t works.Task) (works.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO tasks
		(sub_division, account_code, number_of_works, estimate_amount, agreement_amount,
		 exp_upto_31_03_2025, balance_amount_as_on_01_04_2025, exp_upto_last_month,
		 exp_during_this_month, total_exp_during_year, total_value_work_done_from_beginning,
		 works_completed, balance_works, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		t.SubDivision,
		string(t.AccountCode),
		t.NumberOfWorks,
		t.EstimateAmount.String(),
		t.AgreementAmount.String(),
		t.ExpUpto31032025.String(),
		t.BalanceAmount.String(),
		t.ExpUptoLastMonth.String(),
		t.ExpDuringThisMonth.String(),
		t.TotalExpDuringYear.String(),
		t.TotalValueWorkDone.String(),
		t.WorksCompleted,
		t.BalanceWorks,
		t.CreatedBy,
		formatTime(t.CreatedAt),
	)
	if err != nil {
		return works.Task{}, works.Backend("create task", err)
	}

	sno, err := res.LastInsertId()
	if err != nil {
		return works.Task{}, works.Backend("create task", err)
	}
	t.SNo = sno
	return t, nil
}

// GetTask retrieves a task by sno.
func (s *Store) GetTask(ctx context.Context, sno int64) (works.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getTask(ctx, sno)
}

func (s *Store) getTask(ctx context.Context, sno int64) (works.Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE sno = ?", sno)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return works.Task{}, works.ErrTaskNotFound
	}
	if err != nil {
		return works.Task{}, works.Backend("get task", err)
	}
	return t, nil
}

// UpdateTask replaces the inputs and derived fields of a stored task.
func (s *Store) UpdateTask(ctx context.Context, t works.Task) (works.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE tasks SET
			sub_division = ?,
			account_code = ?,
			number_of_works = ?,
			estimate_amount = ?,
			agreement_amount = ?,
			exp_upto_31_03_2025 = ?,
			balance_amount_as_on_01_04_2025 = ?,
			exp_upto_last_month = ?,
			exp_during_this_month = ?,
			total_exp_during_year = ?,
			total_value_work_done_from_beginning = ?,
			works_completed = ?,
			balance_works = ?
		WHERE sno = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		t.SubDivision,
		string(t.AccountCode),
		t.NumberOfWorks,
		t.EstimateAmount.String(),
		t.AgreementAmount.String(),
		t.ExpUpto31032025.String(),
		t.BalanceAmount.String(),
		t.ExpUptoLastMonth.String(),
		t.ExpDuringThisMonth.String(),
		t.TotalExpDuringYear.String(),
		t.TotalValueWorkDone.String(),
		t.WorksCompleted,
		t.BalanceWorks,
		t.SNo,
	)
	if err != nil {
		return works.Task{}, works.Backend("update task", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return works.Task{}, works.Backend("update task", err)
	} else if n == 0 {
		return works.Task{}, works.ErrTaskNotFound
	}

	return s.getTask(ctx, t.SNo)
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, sno int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE sno = ?", sno)
	if err != nil {
		return works.Backend("delete task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return works.Backend("delete task", err)
	}
	if n == 0 {
		return works.ErrTaskNotFound
	}
	return nil
}

// ListTasks returns every task ordered by sno.
func (s *Store) ListTasks(ctx context.Context) ([]works.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+taskColumns+" FROM tasks ORDER BY sno ASC")
	if err != nil {
		return nil, works.Backend("list tasks", err)
	}
	defer rows.Close()

	tasks := []works.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, works.Backend("list tasks", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, works.Backend("list tasks", err)
	}
	return tasks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (works.Task, error) {
	var (
		t           works.Task
		accountCode string
		amounts     [8]string
		createdAt   string
	)

	err := row.Scan(
		&t.SNo, &t.SubDivision, &accountCode, &t.NumberOfWorks,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3],
		&amounts[4], &amounts[5], &amounts[6], &amounts[7],
		&t.WorksCompleted, &t.BalanceWorks, &t.CreatedBy, &createdAt,
	)
	if err != nil {
		return t, err
	}

	t.AccountCode = works.AccountCode(accountCode)
	dst := []*decimal.Decimal{
		&t.EstimateAmount, &t.AgreementAmount, &t.ExpUpto31032025, &t.BalanceAmount,
		&t.ExpUptoLastMonth, &t.ExpDuringThisMonth, &t.TotalExpDuringYear, &t.TotalValueWorkDone,
	}
	for i, text := range amounts {
		d, err := decimal.NewFromString(text)
		if err != nil {
			return t, fmt.Errorf("task %d: bad amount %q: %w", t.SNo, text, err)
		}
		*dst[i] = d
	}
	t.CreatedAt = parseTime(createdAt)
	return t, nil
}

// =============================================================================
// USER STORE (works.UserStore interface)
// =============================================================================

const userColumns = `id, username, password_hash, role, is_active, created_at, last_login_at`

// CreateUser inserts a new account.
func (s *Store) CreateUser(ctx context.Context, u works.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var lastLogin sql.NullString
	if u.LastLoginAt != nil {
		lastLogin = nullString(formatTime(*u.LastLoginAt))
	}

	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Username, u.PasswordHash, string(u.Role), u.IsActive,
		formatTime(u.CreatedAt), lastLogin,
	)
	if isUniqueConstraintError(err) {
		return works.ErrDuplicateUsername
	}
	return works.Backend("create user", err)
}

// GetUser retrieves an account by username.
func (s *Store) GetUser(ctx context.Context, username string) (works.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return works.User{}, works.ErrUserNotFound
	}
	if err != nil {
		return works.User{}, works.Backend("get user", err)
	}
	return u, nil
}

// ListUsers returns accounts passing f, ordered by username.
func (s *Store) ListUsers(ctx context.Context, f works.UserFilter) ([]works.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.Query != "" {
		where = append(where, "instr(lower(username), lower(?)) > 0")
		args = append(args, f.Query)
	}
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, string(f.Role))
	}
	if f.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *f.IsActive)
	}

	query := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY username"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, works.Backend("list users", err)
	}
	defer rows.Close()

	users := []works.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, works.Backend("list users", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, works.Backend("list users", err)
	}
	return users, nil
}

// SetUserActive enables or disables an account.
func (s *Store) SetUserActive(ctx context.Context, username string, active bool) error {
	return s.updateUser(ctx, "set user active", "UPDATE users SET is_active = ? WHERE username = ?", active, username)
}

// SetUserPassword replaces an account's password hash.
func (s *Store) SetUserPassword(ctx context.Context, username, passwordHash string) error {
	return s.updateUser(ctx, "set user password", "UPDATE users SET password_hash = ? WHERE username = ?", passwordHash, username)
}

// RecordLogin stamps last_login_at.
func (s *Store) RecordLogin(ctx context.Context, username string, at time.Time) error {
	return s.updateUser(ctx, "record login", "UPDATE users SET last_login_at = ? WHERE username = ?", formatTime(at), username)
}

func (s *Store) updateUser(ctx context.Context, op, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return works.Backend(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return works.Backend(op, err)
	}
	if n == 0 {
		return works.ErrUserNotFound
	}
	return nil
}

func scanUser(row scanner) (works.User, error) {
	var (
		u         works.User
		role      string
		createdAt string
		lastLogin sql.NullString
	)

	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.IsActive, &createdAt, &lastLogin); err != nil {
		return u, err
	}

	u.Role = works.Role(role)
	u.CreatedAt = parseTime(createdAt)
	if lastLogin.Valid {
		t := parseTime(lastLogin.String)
		u.LastLoginAt = &t
	}
	return u, nil
}

// =============================================================================
// AUDIT LOG (works.AuditLog interface)
// =============================================================================

// Append records an audit event.
func (s *Store) Append(ctx context.Context, e works.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON sql.NullString
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
		metadataJSON = nullString(string(b))
	}

	query := `
		INSERT INTO audit_events
		(id, at, action, actor, role, status, metadata_json, trace_id, ip, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		formatTime(e.At),
		string(e.Action),
		e.Actor,
		nullString(string(e.Role)),
		string(e.Status),
		metadataJSON,
		nullString(e.TraceID),
		nullString(e.IP),
		nullString(e.UserAgent),
	)
	return works.Backend("append audit event", err)
}

// Recent returns up to limit events, newest first. A limit <= 0 means no
// limit; an empty actor matches everyone.
func (s *Store) Recent(ctx context.Context, actor string, limit int) ([]works.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}

	query := `
		SELECT id, at, action, actor, role, status, metadata_json, trace_id, ip, user_agent
		FROM audit_events
		WHERE (? = '' OR actor = ?)
		ORDER BY at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, actor, actor, limit)
	if err != nil {
		return nil, works.Backend("list audit events", err)
	}
	defer rows.Close()

	events := []works.AuditEvent{}
	for rows.Next() {
		var (
			e                  works.AuditEvent
			at, action, status string
			role, metadataJSON sql.NullString
			traceID, ip, ua    sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &action, &e.Actor, &role, &status, &metadataJSON, &traceID, &ip, &ua); err != nil {
			return nil, works.Backend("list audit events", err)
		}
		e.At = parseTime(at)
		e.Action = works.AuditAction(action)
		e.Role = works.Role(role.String)
		e.Status = works.AuditStatus(status)
		e.TraceID = traceID.String
		e.IP = ip.String
		e.UserAgent = ua.String
		if metadataJSON.Valid && metadataJSON.String != "" {
			json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, works.Backend("list audit events", err)
	}
	return events, nil
}

// =============================================================================
// BACKUP
// =============================================================================

// Snapshot writes a consistent copy of the database to path. The file must
// not exist yet.
func (s *Store) Snapshot(ctx context.Context, path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path)
	return works.Backend("snapshot", err)
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique
}
