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
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/repopattern/datacontext"
	"github.com/tomoncle/repopattern/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
)

type baseRepositoryImpl[T any] struct {
	dc *datacontext.Context
}

// NewRepository returns a Repository for T backed by the data context. It
// borrows dc and holds no other state.
func NewRepository[T any](dc *datacontext.Context) Repository[T] {
	return &baseRepositoryImpl[T]{dc: dc}
}

// EntityName returns the Go type name of T.
func EntityName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().Name()
}

func (r *baseRepositoryImpl[T]) GetMany(opts ...QueryOption) Query[T] {
	return newQuery[T](r.dc, NewQueryOptions(opts...))
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, opts ...QueryOption) (*T, error) {
	return r.GetMany(opts...).First(ctx)
}

func (r *baseRepositoryImpl[T]) AddOne(ctx context.Context, entity *T, save bool) (*T, error) {
	if err := r.stage(ctx, []*T{entity}, r.dc.Tracker().Add); err != nil {
		return nil, err
	}
	return entity, r.saveIf(ctx, save)
}

func (r *baseRepositoryImpl[T]) AddMany(ctx context.Context, entities []*T, save bool) error {
	if err := r.stage(ctx, entities, r.dc.Tracker().Add); err != nil {
		return err
	}
	return r.saveIf(ctx, save)
}

func (r *baseRepositoryImpl[T]) UpdateOne(ctx context.Context, entity *T, save bool) (*T, error) {
	if err := r.stage(ctx, []*T{entity}, r.dc.Tracker().Update); err != nil {
		return nil, err
	}
	return entity, r.saveIf(ctx, save)
}

func (r *baseRepositoryImpl[T]) UpdateMany(ctx context.Context, entities []*T, save bool) error {
	if err := r.stage(ctx, entities, r.dc.Tracker().Update); err != nil {
		return err
	}
	return r.saveIf(ctx, save)
}

func (r *baseRepositoryImpl[T]) RemoveOne(ctx context.Context, entity *T, save bool) (*T, error) {
	if err := r.stage(ctx, []*T{entity}, r.dc.Tracker().Remove); err != nil {
		return nil, err
	}
	return entity, r.saveIf(ctx, save)
}

func (r *baseRepositoryImpl[T]) RemoveOneWhere(ctx context.Context, filters []Filter, save bool) (*T, error) {
	entity, err := r.GetOne(ctx, WithFilters(filters...))
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, types.NewNotFoundError(EntityName[T](), "filters")
	}
	return r.RemoveOne(ctx, entity, save)
}

func (r *baseRepositoryImpl[T]) RemoveMany(ctx context.Context, entities []*T, save bool) error {
	if err := r.stage(ctx, entities, r.dc.Tracker().Remove); err != nil {
		return err
	}
	return r.saveIf(ctx, save)
}

func (r *baseRepositoryImpl[T]) RemoveManyWhere(ctx context.Context, filters []Filter, save bool) error {
	entities, err := r.GetMany(WithFilters(filters...)).All(ctx)
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		return nil
	}
	return r.RemoveMany(ctx, entities, save)
}

func (r *baseRepositoryImpl[T]) Save(ctx context.Context) (int, error) {
	return r.dc.SaveChanges(ctx)
}

// stage validates every entity before handing any of them to the tracker so
// that a bad batch leaves the tracker untouched.
func (r *baseRepositoryImpl[T]) stage(ctx context.Context, entities []*T, apply func(interface{}) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.dc.Closed() {
		return datacontext.ErrClosed
	}
	for i, e := range entities {
		if e == nil {
			return fmt.Errorf("%w: %s at index %d is nil", types.ErrInvalidArgument, EntityName[T](), i)
		}
	}
	for _, e := range entities {
		if err := apply(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) saveIf(ctx context.Context, save bool) error {
	if !save {
		return nil
	}
	_, err := r.dc.SaveChanges(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, conflictKeys []string, entities ...*T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.dc.Closed() {
		return datacontext.ErrClosed
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: fields cannot be empty", types.ErrInvalidArgument)
	}
	if len(entities) == 0 {
		return nil
	}

	db := r.dc.DB()
	insertQuery := r.dc.IDB().NewInsert().Model(&entities)
	var err error
	switch {
	case db.HasFeature(feature.InsertOnConflict):
		err = r.upsertOnConflict(ctx, insertQuery, fields, conflictKeys)
	case db.HasFeature(feature.InsertOnDuplicateKey):
		err = r.upsertOnDuplicateKey(ctx, insertQuery, fields)
	default:
		err = r.upsertFallback(ctx, entities)
	}
	if err != nil {
		return err
	}

	if !r.dc.TrackQueries() {
		return nil
	}
	tracker := r.dc.Tracker()
	for _, e := range entities {
		if _, err := tracker.Attach(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) upsertOnDuplicateKey(ctx context.Context, insertQuery *bun.InsertQuery, fields []string) error {
	var sets []string
	for _, field := range fields {
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", field, field))
	}
	_, err := insertQuery.
		On("DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertOnConflict(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, conflictKeys []string) error {
	if len(conflictKeys) == 0 {
		conflictKeys = []string{"id"}
	}
	var sets []string
	for _, field := range fields {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", field, field))
	}
	_, err := insertQuery.
		On("CONFLICT (" + strings.Join(conflictKeys, ",") + ") DO UPDATE").
		Set(strings.Join(sets, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, entities []*T) error {
	idb := r.dc.IDB()
	for _, entity := range entities {
		if _, err := idb.NewInsert().Model(entity).Exec(ctx); err != nil {
			if _, updateErr := idb.NewUpdate().Model(entity).WherePK().Exec(ctx); updateErr != nil {
				return fmt.Errorf("upsert failed for %s: insert error: %v, update error: %w", EntityName[T](), err, updateErr)
			}
		}
	}
	return nil
}
