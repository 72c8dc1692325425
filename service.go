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

package repopattern

import (
	"context"

	"github.com/tomoncle/repopattern/repository"
	"github.com/tomoncle/repopattern/types"
	"github.com/tomoncle/repopattern/unitofwork"
)

type Service[T any] interface {
	// Get returns the entity with the given primary key.
	Get(ctx context.Context, id ...any) (*T, error)

	// List returns the entities selected by opts.
	List(ctx context.Context, opts ...repository.QueryOption) ([]*T, error)

	// Page returns one page of the entities selected by opts.
	Page(ctx context.Context, page *types.PageRequest, opts ...repository.QueryOption) (*types.Pagination[T], error)

	// Create inserts entities.
	Create(ctx context.Context, entities ...*T) error

	// Update writes every column of an existing entity.
	Update(ctx context.Context, entity *T) error

	// Delete removes the entity with the given primary key.
	Delete(ctx context.Context, id ...any) error

	// Transaction runs fn with a unit of work inside a transaction. Pending
	// changes are saved before the commit.
	Transaction(ctx context.Context, fn func(ctx context.Context, u unitofwork.UnitOfWork) error) error
}

type baseServiceImpl[T any] struct {
	provider *Provider
}

// NewService returns a Service for T. Every call runs in its own scope of
// provider.
func NewService[T any](provider *Provider) Service[T] {
	return &baseServiceImpl[T]{provider: provider}
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id ...any) (*T, error) {
	var out *T
	err := s.run(ctx, func(u unitofwork.UnitOfWork) error {
		e, err := unitofwork.Repository[T](u).GetOne(ctx,
			repository.WithFilters(repository.ByID[T](id...)), repository.WithoutTracking())
		if err != nil {
			return err
		}
		if e == nil {
			return types.NewNotFoundError(repository.EntityName[T](), "id")
		}
		out = e
		return nil
	})
	return out, err
}

func (s *baseServiceImpl[T]) List(ctx context.Context, opts ...repository.QueryOption) ([]*T, error) {
	var out []*T
	err := s.run(ctx, func(u unitofwork.UnitOfWork) (err error) {
		out, err = unitofwork.Repository[T](u).GetMany(opts...).All(ctx)
		return err
	})
	return out, err
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest, opts ...repository.QueryOption) (*types.Pagination[T], error) {
	var out *types.Pagination[T]
	err := s.run(ctx, func(u unitofwork.UnitOfWork) (err error) {
		out, err = unitofwork.Repository[T](u).GetMany(opts...).Page(ctx, page)
		return err
	})
	return out, err
}

func (s *baseServiceImpl[T]) Create(ctx context.Context, entities ...*T) error {
	return s.run(ctx, func(u unitofwork.UnitOfWork) error {
		return unitofwork.Repository[T](u).AddMany(ctx, entities, true)
	})
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, entity *T) error {
	return s.run(ctx, func(u unitofwork.UnitOfWork) error {
		_, err := unitofwork.Repository[T](u).UpdateOne(ctx, entity, true)
		return err
	})
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id ...any) error {
	return s.run(ctx, func(u unitofwork.UnitOfWork) error {
		_, err := unitofwork.Repository[T](u).RemoveOneWhere(ctx,
			[]repository.Filter{repository.ByID[T](id...)}, true)
		return err
	})
}

func (s *baseServiceImpl[T]) Transaction(ctx context.Context, fn func(ctx context.Context, u unitofwork.UnitOfWork) error) error {
	return s.run(ctx, func(u unitofwork.UnitOfWork) error {
		return unitofwork.WithTransaction(ctx, u, func(ctx context.Context) error {
			if err := fn(ctx, u); err != nil {
				return err
			}
			_, err := u.Save(ctx)
			return err
		})
	})
}

func (s *baseServiceImpl[T]) run(ctx context.Context, fn func(u unitofwork.UnitOfWork) error) error {
	scope := s.provider.NewScope()
	defer scope.Close()

	u, err := scope.UnitOfWork(ctx)
	if err != nil {
		return err
	}
	return fn(u)
}
