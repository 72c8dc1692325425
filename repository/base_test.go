/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/repopattern/datacontext"
	"github.com/tomoncle/repopattern/types"
)

func TestGetManyFilterThenOrder(t *testing.T) {
	db, _, repo := newTestRepository(t)
	seed(t, db)
	ctx := context.Background()

	got, err := repo.GetMany(WithFilters(Where("?TableAlias.id > ?", 1))).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids(got))
	assert.Equal(t, "B", got[0].Name)
	assert.Equal(t, "C", got[1].Name)

	got, err = repo.GetMany(
		WithFilters(Where("?TableAlias.id > ?", 1)),
		WithOrderBy(Desc("id")),
	).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, ids(got))
	assert.Equal(t, "C", got[0].Name)
}

func TestGetManyEmpty(t *testing.T) {
	_, _, repo := newTestRepository(t)

	got, err := repo.GetMany().All(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFiltersCombineWithAnd(t *testing.T) {
	db, _, repo := newTestRepository(t)
	seed(t, db)

	got, err := repo.GetMany(
		WithFilters(Where("?TableAlias.id > ?", 1), Where("?TableAlias.name <> ?", "C")),
		WithFilters(FromQueryFilter(nil)),
	).All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(got))
}

func TestIncludesDoNotChangeRowsOrOrder(t *testing.T) {
	db, _, repo := newTestRepository(t)
	seed(t, db)
	ctx := context.Background()

	filter := WithFilters(Where("?TableAlias.id > ?", 1))
	order := WithOrderBy(Desc("id"))

	plain, err := repo.GetMany(filter, order, WithoutTracking()).All(ctx)
	require.NoError(t, err)
	included, err := repo.GetMany(filter, order, WithoutTracking(),
		WithIncludes(Path("Related"), Path("Featured").Then("Inside")),
	).All(ctx)
	require.NoError(t, err)

	assert.Equal(t, ids(plain), ids(included))
	assert.Nil(t, plain[0].Featured)
	require.NotNil(t, included[0].Featured)
	assert.Equal(t, "r3", included[0].Featured.Name)
	require.NotNil(t, included[0].Featured.Inside)
	assert.Equal(t, "inside", included[0].Featured.Inside.Label)
	assert.Len(t, included[1].Related, 2)

	n, err := repo.GetMany(filter, WithIncludes(Path("Featured"))).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIncludePath(t *testing.T) {
	base := Path("Featured")
	nested := base.Then("Inside")

	assert.Equal(t, "Featured", base.String())
	assert.Equal(t, "Featured.Inside", nested.String())
	assert.Equal(t, "Featured.Inside.Owner", nested.Then("Owner").String())
	assert.Equal(t, "Featured.Other", base.Then("Other").String())
}

func TestGetOne(t *testing.T) {
	db, _, repo := newTestRepository(t)
	seed(t, db)
	ctx := context.Background()

	got, err := repo.GetOne(ctx, WithFilters(Where("?TableAlias.name = ?", "B")))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.ID)

	got, err = repo.GetOne(ctx, WithOrderBy(Desc("id")))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)

	got, err = repo.GetOne(ctx, WithFilters(Where("?TableAlias.id = ?", 99)))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRemoveWhereNotFoundAsymmetry(t *testing.T) {
	_, _, repo := newTestRepository(t)
	ctx := context.Background()
	byID := []Filter{Where("?TableAlias.id = ?", 1)}

	removed, err := repo.RemoveOneWhere(ctx, byID, true)
	assert.Nil(t, removed)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	var nf *types.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "testEntity", nf.Entity)
	assert.Equal(t, "filters", nf.Param)

	assert.NoError(t, repo.RemoveManyWhere(ctx, byID, true))
}

func TestRemoveWhere(t *testing.T) {
	db, _, repo := newTestRepository(t)
	seed(t, db)
	ctx := context.Background()

	removed, err := repo.RemoveOneWhere(ctx, []Filter{Where("?TableAlias.id >= ?", 2)}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed.ID)
	assert.Equal(t, []string{"A", "B", "C"}, storedNames(t, db))

	n, err := repo.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"A", "C"}, storedNames(t, db))

	require.NoError(t, repo.RemoveManyWhere(ctx, []Filter{Where("?TableAlias.id > ?", 0)}, true))
	assert.Empty(t, storedNames(t, db))
}

func TestSaveSemantics(t *testing.T) {
	db, _, repo := newTestRepository(t)
	ctx := context.Background()

	n, err := repo.Save(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	staged, err := repo.AddOne(ctx, &testEntity{Name: "staged"}, false)
	require.NoError(t, err)
	assert.Zero(t, staged.ID)
	assert.Empty(t, storedNames(t, db))

	saved, err := repo.AddOne(ctx, &testEntity{Name: "saved"}, true)
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	// saving flushes everything staged in the context
	assert.Equal(t, []string{"staged", "saved"}, storedNames(t, db))

	n, err = repo.Save(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddUpdateRemoveMany(t *testing.T) {
	db, dc, repo := newTestRepository(t)
	ctx := context.Background()

	batch := []*testEntity{{Name: "x"}, {Name: "y"}, {Name: "z"}}
	require.NoError(t, repo.AddMany(ctx, batch, true))
	assert.Equal(t, []string{"x", "y", "z"}, storedNames(t, db))

	batch[0].Name = "x2"
	batch[2].Name = "z2"
	require.NoError(t, repo.UpdateMany(ctx, []*testEntity{batch[0], batch[2]}, true))
	assert.Equal(t, []string{"x2", "y", "z2"}, storedNames(t, db))

	updated, err := repo.UpdateOne(ctx, batch[1], false)
	require.NoError(t, err)
	assert.Same(t, batch[1], updated)
	assert.Equal(t, datacontext.Modified, dc.Tracker().State(batch[1]))

	require.NoError(t, repo.RemoveMany(ctx, batch[:2], true))
	assert.Equal(t, []string{"z2"}, storedNames(t, db))

	removed, err := repo.RemoveOne(ctx, batch[2], true)
	require.NoError(t, err)
	assert.Same(t, batch[2], removed)
	assert.Empty(t, storedNames(t, db))
}

func TestNilEntityLeavesTrackerUntouched(t *testing.T) {
	_, dc, repo := newTestRepository(t)
	ctx := context.Background()

	err := repo.AddMany(ctx, []*testEntity{{Name: "ok"}, nil}, false)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	assert.Empty(t, dc.Tracker().Entries())

	_, err = repo.UpdateOne(ctx, nil, false)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = repo.RemoveOne(ctx, nil, false)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestCancelledContext(t *testing.T) {
	db, dc, repo := newTestRepository(t)
	seed(t, db)
	ctx := cancelled()
	filters := []Filter{Where("?TableAlias.id = ?", 1)}

	_, err := repo.AddOne(ctx, &testEntity{Name: "never"}, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, repo.AddMany(ctx, []*testEntity{{Name: "never"}}, true), context.Canceled)
	_, err = repo.UpdateOne(ctx, &testEntity{ID: 1, Name: "never"}, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, repo.UpdateMany(ctx, []*testEntity{{ID: 1}}, true), context.Canceled)
	_, err = repo.RemoveOne(ctx, &testEntity{ID: 1}, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, repo.RemoveMany(ctx, []*testEntity{{ID: 1}}, true), context.Canceled)
	_, err = repo.RemoveOneWhere(ctx, filters, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, repo.RemoveManyWhere(ctx, filters, true), context.Canceled)
	assert.ErrorIs(t, repo.Upsert(ctx, []string{"name"}, nil, &testEntity{ID: 1}), context.Canceled)
	_, err = repo.Save(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = repo.GetOne(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	q := repo.GetMany()
	_, err = q.All(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = q.Count(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = q.Exists(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = q.Page(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	for _, err := range q.Iter(ctx) {
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Empty(t, dc.Tracker().Entries())
	assert.Equal(t, []string{"A", "B", "C"}, storedNames(t, db))
}

func TestClosedContext(t *testing.T) {
	db, dc, repo := newTestRepository(t)
	seed(t, db)
	ctx := context.Background()
	q := repo.GetMany()
	require.NoError(t, dc.Close())

	_, err := q.All(ctx)
	assert.ErrorIs(t, err, datacontext.ErrClosed)
	_, err = repo.GetOne(ctx)
	assert.ErrorIs(t, err, datacontext.ErrClosed)
	_, err = q.Count(ctx)
	assert.ErrorIs(t, err, datacontext.ErrClosed)
	_, err = q.Exists(ctx)
	assert.ErrorIs(t, err, datacontext.ErrClosed)
	_, err = q.Page(ctx, nil)
	assert.ErrorIs(t, err, datacontext.ErrClosed)
	_, err = repo.AddOne(ctx, &testEntity{Name: "late"}, false)
	assert.ErrorIs(t, err, datacontext.ErrClosed)
	assert.ErrorIs(t, repo.Upsert(ctx, []string{"name"}, nil, &testEntity{ID: 1}), datacontext.ErrClosed)

	assert.Empty(t, dc.Tracker().Entries())
	assert.Equal(t, []string{"A", "B", "C"}, storedNames(t, db))
}

func TestTrackedEntityChangesAreSaved(t *testing.T) {
	db, _, repo := newTestRepository(t)
	seed(t, db)
	ctx := context.Background()

	e, err := repo.GetOne(ctx, WithFilters(Where("?TableAlias.id = ?", 1)))
	require.NoError(t, err)
	e.Name = "A2"

	n, err := repo.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"A2", "B", "C"}, storedNames(t, db))
}

func TestDetachedEntityChangesAreNotSaved(t *testing.T) {
	db, _, repo := newTestRepository(t)
	seed(t, db)
	ctx := context.Background()

	e, err := repo.GetOne(ctx, WithoutTracking(), WithFilters(Where("?TableAlias.id = ?", 1)))
	require.NoError(t, err)
	e.Name = "A2"

	n, err := repo.Save(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{"A", "B", "C"}, storedNames(t, db))
}

func TestTrackingDisabledByContext(t *testing.T) {
	db, dc, repo := newTestRepository(t, datacontext.WithTrackingDisabled(true))
	seed(t, db)
	ctx := context.Background()

	_, err := repo.GetMany().All(ctx)
	require.NoError(t, err)
	assert.Empty(t, dc.Tracker().Entries())

	_, err = repo.GetMany(WithTracking()).All(ctx)
	require.NoError(t, err)
	assert.Len(t, dc.Tracker().Entries(), 3)
}

func TestIdentityResolution(t *testing.T) {
	db, _, repo := newTestRepository(t)
	seed(t, db)
	ctx := context.Background()
	byID := WithFilters(Where("?TableAlias.id = ?", 2))

	first, err := repo.GetOne(ctx, byID)
	require.NoError(t, err)
	assert.Nil(t, first.Featured)

	second, err := repo.GetOne(ctx, byID, WithIncludes(Path("Featured")))
	require.NoError(t, err)
	assert.Same(t, first, second)
	require.NotNil(t, first.Featured)
	assert.Equal(t, "r2", first.Featured.Name)

	detached, err := repo.GetOne(ctx, byID, WithoutTracking())
	require.NoError(t, err)
	assert.NotSame(t, first, detached)
}

func TestAddThenRemoveNeverReachesStore(t *testing.T) {
	db, dc, repo := newTestRepository(t)
	ctx := context.Background()

	e, err := repo.AddOne(ctx, &testEntity{Name: "temp"}, false)
	require.NoError(t, err)
	_, err = repo.RemoveOne(ctx, e, false)
	require.NoError(t, err)

	assert.Equal(t, datacontext.Detached, dc.Tracker().State(e))
	n, err := repo.Save(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, storedNames(t, db))
}

func TestUpsert(t *testing.T) {
	db, dc, repo := newTestRepository(t)
	seed(t, db)
	ctx := context.Background()

	assert.ErrorIs(t, repo.Upsert(ctx, nil, nil, &testEntity{ID: 1}), types.ErrInvalidArgument)
	require.NoError(t, repo.Upsert(ctx, []string{"name"}, nil))

	e := &testEntity{ID: 1, Name: "A2", FeaturedID: 1}
	require.NoError(t, repo.Upsert(ctx, []string{"name"}, []string{"id"}, e))
	assert.Equal(t, []string{"A2", "B", "C"}, storedNames(t, db))
	assert.Equal(t, datacontext.Unchanged, dc.Tracker().State(e))
}
