// Package store provides in-memory works store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rkv/capital-works/works"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements works.TaskStore, works.UserStore and works.AuditLog.
type Memory struct {
	mu      sync.RWMutex
	tasks   []works.Task // ordered by sno
	lastSNo int64
	users   map[string]works.User
	audit   []works.AuditEvent
}

func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]works.User),
	}
}

// -----------------------------------------------------------------------------
// Tasks
// -----------------------------------------------------------------------------

// CreateTask assigns the next sno. Deleted snos are never handed out again.
func (m *Memory) CreateTask(_ context.Context, t works.Task) (works.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastSNo++
	t.SNo = m.lastSNo
	m.tasks = append(m.tasks, t)
	return t, nil
}

func (m *Memory) GetTask(_ context.Context, sno int64) (works.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.indexLocked(sno)
	if !ok {
		return works.Task{}, works.ErrTaskNotFound
	}
	return m.tasks[i], nil
}

func (m *Memory) UpdateTask(_ context.Context, t works.Task) (works.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.indexLocked(t.SNo)
	if !ok {
		return works.Task{}, works.ErrTaskNotFound
	}
	stored := m.tasks[i]
	stored.Inputs = t.Inputs
	stored.Derived = t.Derived
	m.tasks[i] = stored
	return stored, nil
}

func (m *Memory) DeleteTask(_ context.Context, sno int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.indexLocked(sno)
	if !ok {
		return works.ErrTaskNotFound
	}
	m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
	return nil
}

func (m *Memory) ListTasks(_ context.Context) ([]works.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]works.Task, len(m.tasks))
	copy(result, m.tasks)
	return result, nil
}

// indexLocked finds sno by binary search; tasks are kept in sno order.
func (m *Memory) indexLocked(sno int64) (int, bool) {
	i := sort.Search(len(m.tasks), func(i int) bool {
		return m.tasks[i].SNo >= sno
	})
	return i, i < len(m.tasks) && m.tasks[i].SNo == sno
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

func (m *Memory) CreateUser(_ context.Context, u works.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[u.Username]; exists {
		return works.ErrDuplicateUsername
	}
	m.users[u.Username] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, username string) (works.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[username]
	if !ok {
		return works.User{}, works.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) ListUsers(_ context.Context, f works.UserFilter) ([]works.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []works.User
	for _, u := range m.users {
		if f.Match(u) {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return strings.Compare(result[i].Username, result[j].Username) < 0
	})
	return result, nil
}

func (m *Memory) SetUserActive(_ context.Context, username string, active bool) error {
	return m.updateUser(username, func(u *works.User) { u.IsActive = active })
}

func (m *Memory) SetUserPassword(_ context.Context, username, passwordHash string) error {
	return m.updateUser(username, func(u *works.User) { u.PasswordHash = passwordHash })
}

func (m *Memory) RecordLogin(_ context.Context, username string, at time.Time) error {
	return m.updateUser(username, func(u *works.User) { u.LastLoginAt = &at })
}

func (m *Memory) updateUser(username string, fn func(*works.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[username]
	if !ok {
		return works.ErrUserNotFound
	}
	fn(&u)
	m.users[username] = u
	return nil
}

// -----------------------------------------------------------------------------
// Audit
// -----------------------------------------------------------------------------

func (m *Memory) Append(_ context.Context, e works.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) Recent(_ context.Context, actor string, limit int) ([]works.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []works.AuditEvent
	for i := len(m.audit) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		if actor != "" && m.audit[i].Actor != actor {
			continue
		}
		result = append(result, m.audit[i])
	}
	return result, nil
}
