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
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"strings"

	"github.com/tomoncle/repopattern/datacontext"
	"github.com/tomoncle/repopattern/types"
	"github.com/uptrace/bun"
)

// Include is a navigation path to eager load, built with Path and Then.
type Include struct {
	path []string
}

// Path starts an include at the relation name of the entity.
func Path(relation string) Include {
	return Include{path: []string{relation}}
}

// Then extends the include with a relation of the previous step.
func (i Include) Then(relation string) Include {
	path := make([]string, len(i.path), len(i.path)+1)
	copy(path, i.path)
	return Include{path: append(path, relation)}
}

// String renders the path the way bun expects it, e.g. "Author.Profile".
func (i Include) String() string {
	return strings.Join(i.path, ".")
}

// Where returns a filter for a raw condition with bun placeholders.
func Where(query string, args ...interface{}) Filter {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where(query, args...)
	}
}

// FromQueryFilter adapts a types.QueryFilter; a nil filter matches all.
func FromQueryFilter(f *types.QueryFilter) Filter {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if f == nil || f.Schema == "" {
			return q
		}
		return q.Where(f.Schema, f.Args...)
	}
}

// ByID returns a filter matching the primary key of T. Composite keys take
// their values in the order the key columns are declared.
func ByID[T any](ids ...interface{}) Filter {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		table := q.DB().Table(reflect.TypeFor[T]())
		if len(ids) != len(table.PKs) {
			return q.Err(fmt.Errorf("%w: %s has %d primary key columns, got %d values",
				types.ErrInvalidArgument, table.TypeName, len(table.PKs), len(ids)))
		}
		for i, pk := range table.PKs {
			q = q.Where("?TableAlias.? = ?", bun.Ident(pk.Name), ids[i])
		}
		return q
	}
}

// Asc orders by column ascending. A column without a table qualifier is
// qualified with the entity table alias so that includes cannot make it
// ambiguous.
func Asc(column string) OrderBy {
	return orderColumn(column, "ASC")
}

// Desc orders by column descending, qualified like Asc.
func Desc(column string) OrderBy {
	return orderColumn(column, "DESC")
}

func orderColumn(column, direction string) OrderBy {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if strings.Contains(column, ".") {
			return q.OrderExpr("? "+direction, bun.Ident(column))
		}
		return q.OrderExpr("?TableAlias.? "+direction, bun.Ident(column))
	}
}

// Order orders by raw expressions such as "name DESC".
func Order(exprs ...string) OrderBy {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Order(exprs...)
	}
}

// QueryOptions is the description of a query pipeline.
type QueryOptions struct {
	Includes []Include
	Tracking *bool
	OrderBy  OrderBy
	Filters  []Filter
}

type QueryOption func(*QueryOptions)

func WithIncludes(includes ...Include) QueryOption {
	return func(o *QueryOptions) { o.Includes = append(o.Includes, includes...) }
}

// WithoutTracking returns detached entities.
func WithoutTracking() QueryOption {
	return func(o *QueryOptions) {
		off := false
		o.Tracking = &off
	}
}

// WithTracking tracks results even when the data context disables tracking
// by default.
func WithTracking() QueryOption {
	return func(o *QueryOptions) {
		on := true
		o.Tracking = &on
	}
}

func WithOrderBy(orderBy OrderBy) QueryOption {
	return func(o *QueryOptions) { o.OrderBy = orderBy }
}

func WithFilters(filters ...Filter) QueryOption {
	return func(o *QueryOptions) { o.Filters = append(o.Filters, filters...) }
}

// NewQueryOptions applies opts to an empty description.
func NewQueryOptions(opts ...QueryOption) QueryOptions {
	var o QueryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// tracking resolves the tracking stage against the context default.
func (o QueryOptions) tracking(dc *datacontext.Context) bool {
	if o.Tracking != nil {
		return *o.Tracking
	}
	return dc.TrackQueries()
}

// apply runs the includes, filters and ordering stages in that order.
func (o QueryOptions) apply(q *bun.SelectQuery, withOrder bool) *bun.SelectQuery {
	for _, inc := range o.Includes {
		q = q.Relation(inc.String())
	}
	for _, f := range o.Filters {
		if f != nil {
			q = f(q)
		}
	}
	if withOrder && o.OrderBy != nil {
		q = o.OrderBy(q)
	}
	return q
}

type bunQuery[T any] struct {
	dc   *datacontext.Context
	opts QueryOptions
}

func newQuery[T any](dc *datacontext.Context, opts QueryOptions) Query[T] {
	return &bunQuery[T]{dc: dc, opts: opts}
}

func (q *bunQuery[T]) selectQuery(model interface{}, withOrder bool) *bun.SelectQuery {
	return q.opts.apply(q.dc.IDB().NewSelect().Model(model), withOrder)
}

// ready fails a cancelled call or a query on a closed data context before it
// reaches the store.
func (q *bunQuery[T]) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.dc.Closed() {
		return datacontext.ErrClosed
	}
	return nil
}

func (q *bunQuery[T]) All(ctx context.Context) ([]*T, error) {
	if err := q.ready(ctx); err != nil {
		return nil, err
	}
	entities := make([]*T, 0)
	if err := q.selectQuery(&entities, true).Scan(ctx); err != nil {
		return nil, err
	}
	return q.track(entities)
}

func (q *bunQuery[T]) Iter(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		entities, err := q.All(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, e := range entities {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (q *bunQuery[T]) First(ctx context.Context) (*T, error) {
	if err := q.ready(ctx); err != nil {
		return nil, err
	}
	entity := new(T)
	err := q.selectQuery(entity, true).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tracked, err := q.track([]*T{entity})
	if err != nil {
		return nil, err
	}
	return tracked[0], nil
}

func (q *bunQuery[T]) Count(ctx context.Context) (int, error) {
	if err := q.ready(ctx); err != nil {
		return 0, err
	}
	return q.selectQuery((*T)(nil), false).Count(ctx)
}

func (q *bunQuery[T]) Exists(ctx context.Context) (bool, error) {
	if err := q.ready(ctx); err != nil {
		return false, err
	}
	return q.selectQuery((*T)(nil), false).Exists(ctx)
}

// Page counts the matches and loads one window of them. The page filter
// narrows the query filters and page orders follow the query ordering.
func (q *bunQuery[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	if err := q.ready(ctx); err != nil {
		return nil, err
	}
	if page == nil {
		page = types.NewDefaultPageRequest(1, 0)
	}
	narrow := func(sq *bun.SelectQuery) *bun.SelectQuery {
		return FromQueryFilter(page.GetFilter())(sq)
	}

	pagination := types.NewDefaultPagination[T](page.GetPage(), page.GetPageSize())
	total, err := narrow(q.selectQuery((*T)(nil), false)).Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}

	entities := make([]*T, 0, page.GetPageSize())
	sq := narrow(q.selectQuery(&entities, true))
	if orders := page.GetOrders(); len(orders) > 0 {
		sq = sq.Order(orders...)
	}
	err = sq.Offset(page.GetOffset()).Limit(page.GetPageSize()).Scan(ctx)
	if err != nil {
		return nil, err
	}
	if entities, err = q.track(entities); err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

// track attaches loaded entities and swaps in already tracked instances.
func (q *bunQuery[T]) track(entities []*T) ([]*T, error) {
	if !q.opts.tracking(q.dc) {
		return entities, nil
	}
	tracker := q.dc.Tracker()
	for i, e := range entities {
		tracked, err := tracker.Attach(e)
		if err != nil {
			return nil, err
		}
		entities[i] = tracked.(*T)
	}
	return entities, nil
}

type sliceQuery[T any] struct {
	items []*T
}

// FromSlice returns a Query over items, for test doubles of Repository.
func FromSlice[T any](items []*T) Query[T] {
	return &sliceQuery[T]{items: items}
}

func (q *sliceQuery[T]) All(ctx context.Context) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]*T, len(q.items))
	copy(out, q.items)
	return out, nil
}

func (q *sliceQuery[T]) Iter(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		for _, e := range q.items {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (q *sliceQuery[T]) First(ctx context.Context) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(q.items) == 0 {
		return nil, nil
	}
	return q.items[0], nil
}

func (q *sliceQuery[T]) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(q.items), nil
}

func (q *sliceQuery[T]) Exists(ctx context.Context) (bool, error) {
	n, err := q.Count(ctx)
	return n > 0, err
}

func (q *sliceQuery[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page == nil {
		page = types.NewDefaultPageRequest(1, 0)
	}
	if page.GetFilter() != nil || len(page.GetOrders()) > 0 {
		return nil, fmt.Errorf("%w: in-memory queries cannot apply page filters or orders", types.ErrInvalidArgument)
	}
	pagination := types.NewDefaultPagination[T](page.GetPage(), page.GetPageSize())
	pagination.Total = len(q.items)
	start := min(page.GetOffset(), len(q.items))
	end := min(start+page.GetPageSize(), len(q.items))
	pagination.Items = append(pagination.Items, q.items[start:end]...)
	return pagination, nil
}
