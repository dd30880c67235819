/*
store.go - Persistence interfaces for tasks, users and audit events

PURPOSE:
  Defines the interface between the works engine and the record store.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  TaskStore: Create / read / update / delete / list of task rows
  UserStore: Accounts (never deleted, only deactivated)
  AuditLog:  Append-only record of who did what when

CONTRACT REQUIRED BY THE ENGINE:
  - Read-your-writes: a ListTasks issued after a mutation observes it.
  - Atomic single-record mutation: an update or delete is all-or-nothing.
  - ListTasks returns a consistent, fully materialized snapshot ordered by sno.
  - sno is assigned by CreateTask, unique, and never reused, even after a
    delete.

ERRORS:
  Lookups of unknown records return ErrTaskNotFound / ErrUserNotFound.
  Store failures are wrapped with Backend() so they unwrap to
  ErrBackendUnreachable.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - works/store/memory.go:  In-memory for testing

SEE ALSO:
  - service.go: Uses TaskStore
*/
package works

import (
	"context"
	"time"
)

// =============================================================================
// TASK STORE
// =============================================================================

// TaskStore persists task rows.
type TaskStore interface {
	// CreateTask stores t with a newly assigned sno and returns the stored row.
	CreateTask(ctx context.Context, t Task) (Task, error)

	// GetTask returns the task with the given sno.
	GetTask(ctx context.Context, sno int64) (Task, error)

	// UpdateTask replaces the inputs and derived fields of the task with t.SNo.
	// sno, created_by and created_at are never changed.
	UpdateTask(ctx context.Context, t Task) (Task, error)

	// DeleteTask removes the task with the given sno.
	DeleteTask(ctx context.Context, sno int64) error

	// ListTasks returns every task ordered by sno.
	ListTasks(ctx context.Context) ([]Task, error)
}

// =============================================================================
// USER STORE
// =============================================================================

// UserStore persists accounts.
type UserStore interface {
	// CreateUser stores u. Returns ErrDuplicateUsername if the name is taken.
	CreateUser(ctx context.Context, u User) error

	// GetUser returns the user with the given username.
	GetUser(ctx context.Context, username string) (User, error)

	// ListUsers returns users passing f, ordered by username.
	ListUsers(ctx context.Context, f UserFilter) ([]User, error)

	// SetUserActive enables or disables an account.
	SetUserActive(ctx context.Context, username string, active bool) error

	// SetUserPassword replaces the stored password hash.
	SetUserPassword(ctx context.Context, username, passwordHash string) error

	// RecordLogin stamps last_login_at.
	RecordLogin(ctx context.Context, username string, at time.Time) error
}

// =============================================================================
// AUDIT LOG - Separate from the records, tracks who did what when
// =============================================================================

// AuditLog stores audit events. Append-only.
type AuditLog interface {
	Append(ctx context.Context, e AuditEvent) error

	// Recent returns up to limit events, newest first, optionally narrowed to
	// one actor.
	Recent(ctx context.Context, actor string, limit int) ([]AuditEvent, error)
}
