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
	"fmt"

	"github.com/tomoncle/repopattern/datacontext"
	"github.com/tomoncle/repopattern/repository"
	"github.com/tomoncle/repopattern/types"
	"github.com/tomoncle/repopattern/unitofwork"
	"github.com/uptrace/bun"
)

// Factory creates a unit of work.
type Factory func(ctx context.Context) (unitofwork.UnitOfWork, error)

// RepositorySetup installs repositories into the registry of a new unit of
// work, typically with repository.Register.
type RepositorySetup func(r *repository.Registry)

// UnitOfWorkOptions holds the unit of work factory, its lifetime and the
// repository setups run on every unit of work the factory creates.
type UnitOfWorkOptions struct {
	factory      Factory
	lifetime     Lifetime
	repositories []RepositorySetup
}

// UseLifetime sets the lifetime of the units of work. The default is Scoped.
func (o *UnitOfWorkOptions) UseLifetime(lifetime Lifetime) *UnitOfWorkOptions {
	o.lifetime = lifetime
	return o
}

// UseRepositories replaces the default repository of some entity types in
// every unit of work, for example with a caching or auditing decorator.
// Setups run in order right after the unit of work is created.
func (o *UnitOfWorkOptions) UseRepositories(setups ...RepositorySetup) *UnitOfWorkOptions {
	o.repositories = append(o.repositories, setups...)
	return o
}

func (o *UnitOfWorkOptions) create(ctx context.Context) (unitofwork.UnitOfWork, error) {
	u, err := o.factory(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: unit of work factory returned nil", types.ErrInvalidOperation)
	}
	for _, setup := range o.repositories {
		setup(u.Repositories())
	}
	return u, nil
}

// Builder collects the configuration passed to New.
type Builder struct {
	unitOfWork *UnitOfWorkOptions
}

// UseUnitOfWork configures the factory used to create units of work.
func (b *Builder) UseUnitOfWork(factory Factory) *UnitOfWorkOptions {
	b.unitOfWork = &UnitOfWorkOptions{factory: factory, lifetime: Scoped}
	return b.unitOfWork
}

// UseBun configures units of work backed by db, each with its own data
// context built from opts.
func (b *Builder) UseBun(db *bun.DB, opts ...datacontext.Option) *UnitOfWorkOptions {
	return b.UseBunSource(func() *bun.DB { return db }, opts...)
}

// UseBunSource is UseBun for a pool that may be replaced, such as the one
// published by a database manager that reconnects. source is called for
// every new unit of work.
func (b *Builder) UseBunSource(source func() *bun.DB, opts ...datacontext.Option) *UnitOfWorkOptions {
	return b.UseUnitOfWork(func(ctx context.Context) (unitofwork.UnitOfWork, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		db := source()
		if db == nil {
			return nil, &types.StateError{Op: "create unit of work", Reason: "The database is not connected."}
		}
		return unitofwork.New(db, opts...), nil
	})
}

func (b *Builder) validate() error {
	if b.unitOfWork == nil || b.unitOfWork.factory == nil {
		return fmt.Errorf("%w: the unit of work options has not been configured", types.ErrInvalidOperation)
	}
	if !b.unitOfWork.lifetime.IsValid() {
		return fmt.Errorf("%w: invalid unit of work lifetime %d", types.ErrInvalidArgument, b.unitOfWork.lifetime)
	}
	return nil
}

// New runs configure on an empty Builder and returns a Provider for the
// configured units of work.
func New(configure func(b *Builder)) (*Provider, error) {
	if configure == nil {
		return nil, fmt.Errorf("%w: configure cannot be nil", types.ErrInvalidArgument)
	}
	b := &Builder{}
	configure(b)
	if err := b.validate(); err != nil {
		return nil, err
	}
	return &Provider{options: *b.unitOfWork}, nil
}
