package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkv/capital-works/store/sqlite"
	"github.com/rkv/capital-works/works"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTask(sub string) works.Task {
	in := works.Inputs{
		SubDivision:        sub,
		AccountCode:        works.AccountSpill,
		NumberOfWorks:      10,
		EstimateAmount:     decimal.RequireFromString("1000.005"),
		AgreementAmount:    decimal.RequireFromString("900"),
		ExpUpto31032025:    decimal.RequireFromString("400.333"),
		ExpUptoLastMonth:   decimal.RequireFromString("100"),
		ExpDuringThisMonth: decimal.RequireFromString("50"),
		WorksCompleted:     4,
	}
	return works.Task{
		Inputs:    in,
		Derived:   works.Derive(in),
		CreatedBy: "alice",
		CreatedAt: time.Date(2025, 6, 30, 23, 59, 59, 123_000_000, time.UTC),
	}
}

// =============================================================================
// TASKS
// =============================================================================

func TestStore_TaskRoundTripKeepsPrecision(t *testing.T) {
	// GIVEN: A task with amounts beyond two decimal places
	ctx := context.Background()
	store := newTestStore(t)

	// WHEN: Storing and reading it back
	created, err := store.CreateTask(ctx, sampleTask("North Zone"))
	require.NoError(t, err)
	got, err := store.GetTask(ctx, created.SNo)
	require.NoError(t, err)

	// THEN: Every amount and timestamp survives exactly
	assert.Equal(t, int64(1), got.SNo)
	assert.Equal(t, "1000.005", got.EstimateAmount.String())
	assert.Equal(t, "499.667", got.BalanceAmount.String())
	assert.Equal(t, works.AccountSpill, got.AccountCode)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, int64(6), got.BalanceWorks)
}

func TestStore_UpdateTask(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created, err := store.CreateTask(ctx, sampleTask("North Zone"))
	require.NoError(t, err)

	created.SubDivision = "South Zone"
	created.CreatedBy = "mallory"
	updated, err := store.UpdateTask(ctx, created)
	require.NoError(t, err)

	assert.Equal(t, "South Zone", updated.SubDivision)
	assert.Equal(t, "alice", updated.CreatedBy, "created_by is never changed")

	_, err = store.UpdateTask(ctx, works.Task{SNo: 99})
	assert.ErrorIs(t, err, works.ErrTaskNotFound)
}

func TestStore_DeleteNeverReusesSNo(t *testing.T) {
	// GIVEN: Two tasks, the second deleted
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateTask(ctx, sampleTask("A"))
	require.NoError(t, err)
	second, err := store.CreateTask(ctx, sampleTask("B"))
	require.NoError(t, err)
	require.NoError(t, store.DeleteTask(ctx, second.SNo))

	// WHEN: Creating another task
	third, err := store.CreateTask(ctx, sampleTask("C"))
	require.NoError(t, err)

	// THEN: It gets a fresh sno
	assert.Equal(t, int64(3), third.SNo)

	_, err = store.GetTask(ctx, second.SNo)
	assert.ErrorIs(t, err, works.ErrTaskNotFound)
	assert.ErrorIs(t, store.DeleteTask(ctx, second.SNo), works.ErrTaskNotFound)

	all, err := store.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].SNo)
	assert.Equal(t, int64(3), all[1].SNo)
}

func TestStore_ListTasksEmpty(t *testing.T) {
	store := newTestStore(t)

	all, err := store.ListTasks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestStore_ClosedIsBackendUnreachable(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.ListTasks(context.Background())
	assert.True(t, works.IsBackendUnreachable(err))
	assert.False(t, works.IsClientError(err))
}

// =============================================================================
// USERS
// =============================================================================

func TestStore_Users(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	admin := works.User{ID: "u1", Username: "admin", PasswordHash: "h1", Role: works.RoleAdmin, IsActive: true, CreatedAt: time.Now()}
	clerk := works.User{ID: "u2", Username: "Clerk", PasswordHash: "h2", Role: works.RoleUser, IsActive: true, CreatedAt: time.Now()}
	require.NoError(t, store.CreateUser(ctx, admin))
	require.NoError(t, store.CreateUser(ctx, clerk))

	dup := clerk
	dup.ID = "u3"
	assert.ErrorIs(t, store.CreateUser(ctx, dup), works.ErrDuplicateUsername)

	// Only the username constraint maps to a duplicate; an id clash does not.
	clash := works.User{ID: "u1", Username: "fresh", PasswordHash: "h3", Role: works.RoleUser, IsActive: true, CreatedAt: time.Now()}
	err := store.CreateUser(ctx, clash)
	require.Error(t, err)
	assert.NotErrorIs(t, err, works.ErrDuplicateUsername)

	// Deactivate and reset password.
	require.NoError(t, store.SetUserActive(ctx, "Clerk", false))
	require.NoError(t, store.SetUserPassword(ctx, "Clerk", "h2b"))
	at := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordLogin(ctx, "Clerk", at))

	got, err := store.GetUser(ctx, "Clerk")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "h2b", got.PasswordHash)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, at.Equal(*got.LastLoginAt))

	active := true
	list, err := store.ListUsers(ctx, works.UserFilter{IsActive: &active})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "admin", list[0].Username)

	list, err = store.ListUsers(ctx, works.UserFilter{Query: "clerk"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Clerk", list[0].Username)

	_, err = store.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, works.ErrUserNotFound)
	assert.ErrorIs(t, store.SetUserActive(ctx, "nobody", true), works.ErrUserNotFound)
}

// =============================================================================
// AUDIT
// =============================================================================

func TestStore_AuditRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	events := []works.AuditEvent{
		{ID: "e1", At: base, Action: works.AuditLoginSuccess, Actor: "alice", Status: works.AuditSuccess},
		{ID: "e2", At: base.Add(time.Second), Action: works.AuditTaskCreate, Actor: "bob", Status: works.AuditSuccess,
			Metadata: map[string]any{"sno": 1}},
		{ID: "e3", At: base.Add(500 * time.Millisecond), Action: works.AuditTaskDelete, Actor: "alice", Status: works.AuditSuccess},
	}
	for _, e := range events {
		require.NoError(t, store.Append(ctx, e))
	}

	all, err := store.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "e2", all[0].ID)
	assert.Equal(t, "e3", all[1].ID)
	assert.Equal(t, "e1", all[2].ID)
	assert.Equal(t, float64(1), all[0].Metadata["sno"])

	alice, err := store.Recent(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, "e3", alice[0].ID)
}

// =============================================================================
// BACKUP
// =============================================================================

func TestStore_Snapshot(t *testing.T) {
	// GIVEN: A store with one task
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.CreateTask(ctx, sampleTask("North Zone"))
	require.NoError(t, err)

	// WHEN: Snapshotting to a file
	path := filepath.Join(t.TempDir(), "snap.db")
	require.NoError(t, store.Snapshot(ctx, path))

	// THEN: The snapshot opens as a store holding the same task
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	copied, err := sqlite.New(path)
	require.NoError(t, err)
	defer copied.Close()

	tasks, err := copied.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "North Zone", tasks[0].SubDivision)
}
