package works_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkv/capital-works/works"
	"github.com/rkv/capital-works/works/store"
)

func newTestService(t *testing.T) *works.Service {
	t.Helper()
	svc := works.NewService(store.NewMemory())
	svc.Now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	created, err := svc.Create(ctx, validRaw(), "alice")
	require.NoError(t, err)

	assert.Equal(t, int64(1), created.SNo)
	assert.Equal(t, "alice", created.CreatedBy)
	assert.Equal(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), created.CreatedAt)
	assert.Equal(t, int64(6), created.BalanceWorks)

	got, err := svc.Get(ctx, created.SNo)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestService_CreateInvalidStoresNothing(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Create(ctx, works.RawTask{}, "alice")
	require.Error(t, err)
	assert.True(t, works.IsClientError(err))

	page, err := svc.List(ctx, works.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.TotalItems)
}

func TestService_UpdateKeepsOmittedFields(t *testing.T) {
	// GIVEN: A stored task
	ctx := context.Background()
	svc := newTestService(t)
	created, err := svc.Create(ctx, validRaw(), "alice")
	require.NoError(t, err)

	// WHEN: Patching only exp_during_this_month
	updated, err := svc.Update(ctx, created.SNo, works.RawTask{
		ExpDuringThisMonth: works.Raw("80"),
	})
	require.NoError(t, err)

	// THEN: Other inputs keep their stored values and derived fields follow
	assert.Equal(t, "RKV SubDiv-1", updated.SubDivision)
	assert.Equal(t, int64(10), updated.NumberOfWorks)
	assert.True(t, updated.AgreementAmount.Equal(dec("900")))
	assert.True(t, updated.TotalExpDuringYear.Equal(dec("180")))
	assert.True(t, updated.TotalValueWorkDone.Equal(dec("580")))

	// AND: Identity and provenance are unchanged
	assert.Equal(t, created.SNo, updated.SNo)
	assert.Equal(t, created.CreatedBy, updated.CreatedBy)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
}

func TestService_UpdateCrossFieldUsesStoredValues(t *testing.T) {
	// GIVEN: A stored task with number_of_works = 10
	ctx := context.Background()
	svc := newTestService(t)
	created, err := svc.Create(ctx, validRaw(), "alice")
	require.NoError(t, err)

	// WHEN: Patching works_completed above the stored number_of_works
	_, err = svc.Update(ctx, created.SNo, works.RawTask{WorksCompleted: works.Raw("11")})

	// THEN: The merged record fails and the store is untouched
	var verrs works.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	msg, ok := verrs.On(works.FieldWorksCompleted)
	require.True(t, ok)
	assert.Equal(t, works.MsgCompletedExceedsWorks, msg)

	got, err := svc.Get(ctx, created.SNo)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.WorksCompleted)
}

func TestService_NotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Get(ctx, 42)
	assert.ErrorIs(t, err, works.ErrTaskNotFound)

	_, err = svc.Update(ctx, 42, works.RawTask{WorksCompleted: works.Raw("1")})
	assert.ErrorIs(t, err, works.ErrTaskNotFound)

	err = svc.Delete(ctx, 42)
	assert.True(t, works.IsNotFound(err))
}

func TestService_DeleteNeverReusesSNo(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	first, err := svc.Create(ctx, validRaw(), "alice")
	require.NoError(t, err)
	second, err := svc.Create(ctx, validRaw(), "alice")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, second.SNo))

	third, err := svc.Create(ctx, validRaw(), "alice")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.SNo)
	assert.Equal(t, int64(3), third.SNo)
}

func TestService_ReadYourWrites(t *testing.T) {
	// GIVEN: Two tasks in different sub-divisions
	ctx := context.Background()
	svc := newTestService(t)

	raw := validRaw()
	_, err := svc.Create(ctx, raw, "alice")
	require.NoError(t, err)
	raw.SubDivision = works.Raw("RKV SubDiv-2")
	second, err := svc.Create(ctx, raw, "bob")
	require.NoError(t, err)

	// WHEN: Summarizing, deleting one, summarizing again
	before, err := svc.Summarize(ctx, works.Filter{})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, second.SNo))
	after, err := svc.Summarize(ctx, works.Filter{})
	require.NoError(t, err)

	// THEN: The second summary observes the delete
	assert.Equal(t, int64(20), before.GrandTotals.NumberOfWorks)
	assert.Equal(t, int64(10), after.GrandTotals.NumberOfWorks)
	assert.Len(t, after.BySubDivision, 1)

	rows, err := svc.Select(ctx, works.Filter{Owner: "alice"}, works.FieldSNo, works.OrderDesc)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
