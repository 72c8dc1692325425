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

	"github.com/stretchr/testify/mock"
	"github.com/tomoncle/repopattern/repository"
)

// MockRepository is a testify mock of repository.Repository. Query options
// and filters are passed to Called as slices.
type MockRepository[T any] struct {
	mock.Mock
}

var _ repository.Repository[struct{}] = (*MockRepository[struct{}])(nil)

func (m *MockRepository[T]) GetMany(opts ...repository.QueryOption) repository.Query[T] {
	args := m.Called(opts)
	if q, ok := args.Get(0).(repository.Query[T]); ok {
		return q
	}
	return repository.FromSlice[T](nil)
}

func (m *MockRepository[T]) GetOne(ctx context.Context, opts ...repository.QueryOption) (*T, error) {
	args := m.Called(ctx, opts)
	return entity[T](args, 0), args.Error(1)
}

func (m *MockRepository[T]) AddOne(ctx context.Context, e *T, save bool) (*T, error) {
	args := m.Called(ctx, e, save)
	return entity[T](args, 0), args.Error(1)
}

func (m *MockRepository[T]) AddMany(ctx context.Context, es []*T, save bool) error {
	return m.Called(ctx, es, save).Error(0)
}

func (m *MockRepository[T]) UpdateOne(ctx context.Context, e *T, save bool) (*T, error) {
	args := m.Called(ctx, e, save)
	return entity[T](args, 0), args.Error(1)
}

func (m *MockRepository[T]) UpdateMany(ctx context.Context, es []*T, save bool) error {
	return m.Called(ctx, es, save).Error(0)
}

func (m *MockRepository[T]) RemoveOne(ctx context.Context, e *T, save bool) (*T, error) {
	args := m.Called(ctx, e, save)
	return entity[T](args, 0), args.Error(1)
}

func (m *MockRepository[T]) RemoveOneWhere(ctx context.Context, filters []repository.Filter, save bool) (*T, error) {
	args := m.Called(ctx, filters, save)
	return entity[T](args, 0), args.Error(1)
}

func (m *MockRepository[T]) RemoveMany(ctx context.Context, es []*T, save bool) error {
	return m.Called(ctx, es, save).Error(0)
}

func (m *MockRepository[T]) RemoveManyWhere(ctx context.Context, filters []repository.Filter, save bool) error {
	return m.Called(ctx, filters, save).Error(0)
}

func (m *MockRepository[T]) Upsert(ctx context.Context, fields []string, conflictKeys []string, es ...*T) error {
	return m.Called(ctx, fields, conflictKeys, es).Error(0)
}

func (m *MockRepository[T]) Save(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func entity[T any](args mock.Arguments, i int) *T {
	if e, ok := args.Get(i).(*T); ok {
		return e
	}
	return nil
}
