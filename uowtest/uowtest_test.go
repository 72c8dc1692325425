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

package uowtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/repopattern/repository"
	"github.com/tomoncle/repopattern/types"
	"github.com/tomoncle/repopattern/unitofwork"
)

type invoice struct {
	ID     int64
	Number string
}

// archiveInvoices is the kind of application code the doubles stand in for.
func archiveInvoices(ctx context.Context, u unitofwork.UnitOfWork) (int, error) {
	repo := unitofwork.Repository[invoice](u)
	err := unitofwork.WithTransaction(ctx, u, func(ctx context.Context) error {
		return repo.RemoveManyWhere(ctx, []repository.Filter{repository.Where("paid = ?", true)}, false)
	})
	if err != nil {
		return 0, err
	}
	return u.Save(ctx)
}

func TestFakeStateMachine(t *testing.T) {
	u := NewUnitOfWork()
	ctx := context.Background()

	assert.ErrorIs(t, u.Commit(ctx), types.ErrInvalidOperation)
	assert.ErrorIs(t, u.CreateSavepoint(ctx, "x"), types.ErrInvalidOperation)
	assert.False(t, u.SupportsSavepoints())

	require.NoError(t, u.BeginTransaction(ctx, false))
	first := u.TransactionID()
	assert.ErrorIs(t, u.BeginTransaction(ctx, false), types.ErrInvalidOperation)
	assert.Equal(t, first, u.TransactionID())

	require.NoError(t, u.BeginTransaction(ctx, true))
	assert.NotEqual(t, first, u.TransactionID())
	assert.Equal(t, []string{first}, u.Discarded)

	require.NoError(t, u.CreateSavepoint(ctx, "x"))
	assert.Equal(t, []string{"x"}, u.ActiveSavepoints())
	assert.Error(t, u.ReleaseSavepoint(ctx, "y"))
	require.NoError(t, u.RollbackToSavepoint(ctx, "x"))
	assert.False(t, u.InTransaction())

	require.NoError(t, u.BeginTransaction(ctx, false))
	require.NoError(t, u.Commit(ctx))
	assert.Equal(t, 3, u.Begins)
	assert.Equal(t, 1, u.Commits)
	assert.Equal(t, 1, u.Rollbacks)

	require.NoError(t, u.BeginTransaction(ctx, false))
	require.NoError(t, u.Close())
	assert.True(t, u.Closed())
	assert.False(t, u.InTransaction())
	assert.Equal(t, 2, u.Rollbacks)
}

func TestFakeWithoutSavepointSupport(t *testing.T) {
	u := NewUnitOfWork()
	u.Savepoints = false
	ctx := context.Background()

	require.NoError(t, u.BeginTransaction(ctx, false))
	assert.False(t, u.SupportsSavepoints())
	assert.Error(t, u.CreateSavepoint(ctx, "x"))
	assert.True(t, u.InTransaction())
}

func TestFakeCancellation(t *testing.T) {
	u := NewUnitOfWork()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, u.BeginTransaction(ctx, false), context.Canceled)
	_, err := u.Save(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, u.Saves)
}

func TestMockRepositoryThroughUnitOfWork(t *testing.T) {
	ctx := context.Background()
	u := NewUnitOfWork()
	u.SaveFunc = func(context.Context) (int, error) { return 2, nil }

	repo := &MockRepository[invoice]{}
	repo.On("RemoveManyWhere", mock.Anything, mock.Anything, false).Return(nil).Once()
	Register[invoice](u, repo)

	n, err := archiveInvoices(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, u.Commits)
	repo.AssertExpectations(t)
}

func TestMockRepositoryFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	u := NewUnitOfWork()
	boom := errors.New("boom")

	repo := &MockRepository[invoice]{}
	repo.On("RemoveManyWhere", mock.Anything, mock.Anything, false).Return(boom)
	Register[invoice](u, repo)

	_, err := archiveInvoices(ctx, u)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, u.Rollbacks)
	assert.Zero(t, u.Saves)
}

func TestMockRepositoryQueries(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepository[invoice]{}
	items := []*invoice{{ID: 1, Number: "I-1"}, {ID: 2, Number: "I-2"}}

	repo.On("GetMany", mock.Anything).Return(repository.FromSlice(items))
	repo.On("GetOne", mock.Anything, mock.Anything).Return(nil, nil)
	repo.On("RemoveOneWhere", mock.Anything, mock.Anything, true).
		Return(nil, types.NewNotFoundError("invoice", "filters"))

	all, err := repo.GetMany().All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := repo.GetOne(ctx)
	require.NoError(t, err)
	assert.Nil(t, one)

	_, err = repo.RemoveOneWhere(ctx, nil, true)
	assert.ErrorIs(t, err, types.ErrNotFound)
	repo.AssertNumberOfCalls(t, "GetMany", 1)
}

func TestUnregisteredRepositoryFails(t *testing.T) {
	ctx := context.Background()
	u := NewUnitOfWork()

	repo := unitofwork.Repository[invoice](u)
	_, err := repo.GetMany().All(ctx)
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
	_, err = repo.AddOne(ctx, &invoice{Number: "I-9"}, true)
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
}
