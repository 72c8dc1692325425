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
	"github.com/uptrace/bun"
)

// Filter narrows a select query. Filters given together are applied one
// after the other and therefore combine with AND.
type Filter func(*bun.SelectQuery) *bun.SelectQuery

// OrderBy orders a select query.
type OrderBy func(*bun.SelectQuery) *bun.SelectQuery

// Query is a lazily evaluated result set. Nothing runs against the store
// until one of its methods is called, and each call runs the query again in
// the current transaction of the owning unit of work.
type Query[T any] interface {
	All(ctx context.Context) ([]*T, error)
	Iter(ctx context.Context) iter.Seq2[*T, error]
	First(ctx context.Context) (*T, error)
	Count(ctx context.Context) (int, error)
	Exists(ctx context.Context) (bool, error)
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository is the data access contract for one entity type. Write
// operations stage changes in the data context and persist them only when
// save is true or Save is called.
type Repository[T any] interface {
	// GetMany describes a query; it never fails for empty results.
	GetMany(opts ...QueryOption) Query[T]
	// GetOne returns the first match, or nil without error when nothing
	// matches.
	GetOne(ctx context.Context, opts ...QueryOption) (*T, error)

	AddOne(ctx context.Context, entity *T, save bool) (*T, error)
	AddMany(ctx context.Context, entities []*T, save bool) error

	UpdateOne(ctx context.Context, entity *T, save bool) (*T, error)
	UpdateMany(ctx context.Context, entities []*T, save bool) error

	RemoveOne(ctx context.Context, entity *T, save bool) (*T, error)
	// RemoveOneWhere removes the first entity matching filters and fails
	// with a *types.NotFoundError when there is none.
	RemoveOneWhere(ctx context.Context, filters []Filter, save bool) (*T, error)
	RemoveMany(ctx context.Context, entities []*T, save bool) error
	// RemoveManyWhere removes every entity matching filters; no match is a
	// no-op.
	RemoveManyWhere(ctx context.Context, filters []Filter, save bool) error

	// Upsert writes entities immediately, updating fields on conflict with
	// conflictKeys, and tracks them as unchanged unless the data context
	// disables tracking.
	Upsert(ctx context.Context, fields []string, conflictKeys []string, entities ...*T) error

	// Save flushes every staged change of the data context and returns the
	// number of affected rows.
	Save(ctx context.Context) (int, error)
}
