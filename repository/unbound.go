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
	"iter"

	"github.com/tomoncle/repopattern/types"
)

// unboundRepository is resolved for T from a registry that has no data
// context and no registered repository for T. Every operation fails.
type unboundRepository[T any] struct {
	err error
}

func newUnboundRepository[T any]() Repository[T] {
	return &unboundRepository[T]{err: &types.StateError{
		Op:     "use the " + EntityName[T]() + " repository",
		Reason: "No repository is registered for it and the registry has no data context.",
	}}
}

func (r *unboundRepository[T]) GetMany(...QueryOption) Query[T] {
	return failedQuery[T]{err: r.err}
}

func (r *unboundRepository[T]) GetOne(context.Context, ...QueryOption) (*T, error) {
	return nil, r.err
}

func (r *unboundRepository[T]) AddOne(context.Context, *T, bool) (*T, error) { return nil, r.err }

func (r *unboundRepository[T]) AddMany(context.Context, []*T, bool) error { return r.err }

func (r *unboundRepository[T]) UpdateOne(context.Context, *T, bool) (*T, error) { return nil, r.err }

func (r *unboundRepository[T]) UpdateMany(context.Context, []*T, bool) error { return r.err }

func (r *unboundRepository[T]) RemoveOne(context.Context, *T, bool) (*T, error) { return nil, r.err }

func (r *unboundRepository[T]) RemoveOneWhere(context.Context, []Filter, bool) (*T, error) {
	return nil, r.err
}

func (r *unboundRepository[T]) RemoveMany(context.Context, []*T, bool) error { return r.err }

func (r *unboundRepository[T]) RemoveManyWhere(context.Context, []Filter, bool) error { return r.err }

func (r *unboundRepository[T]) Upsert(context.Context, []string, []string, ...*T) error { return r.err }

func (r *unboundRepository[T]) Save(context.Context) (int, error) { return 0, r.err }

type failedQuery[T any] struct {
	err error
}

func (q failedQuery[T]) All(context.Context) ([]*T, error) { return nil, q.err }

func (q failedQuery[T]) Iter(context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) { yield(nil, q.err) }
}

func (q failedQuery[T]) First(context.Context) (*T, error) { return nil, q.err }

func (q failedQuery[T]) Count(context.Context) (int, error) { return 0, q.err }

func (q failedQuery[T]) Exists(context.Context) (bool, error) { return false, q.err }

func (q failedQuery[T]) Page(context.Context, *types.PageRequest) (*types.Pagination[T], error) {
	return nil, q.err
}
