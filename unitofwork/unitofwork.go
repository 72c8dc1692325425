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

package unitofwork

import (
	"context"
	"errors"

	"github.com/tomoncle/repopattern/database"
	"github.com/tomoncle/repopattern/datacontext"
	"github.com/tomoncle/repopattern/repository"
	"github.com/tomoncle/repopattern/types"
	"github.com/uptrace/bun"
)

// UnitOfWork coordinates the repositories of one data context and at most
// one active transaction. It is not safe for concurrent use.
type UnitOfWork interface {
	// SupportsSavepoints is true only while a transaction is active on a
	// store that supports savepoints.
	SupportsSavepoints() bool
	InTransaction() bool
	// TransactionID identifies the active transaction, or is empty.
	TransactionID() string

	// BeginTransaction fails while a transaction is active unless force is
	// set; a forced begin discards the active handle without resolving it.
	BeginTransaction(ctx context.Context, force bool) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	CreateSavepoint(ctx context.Context, name string) error
	// RollbackToSavepoint and ReleaseSavepoint end the transaction after the
	// savepoint operation; the disposed handle rolls back what it did not
	// commit.
	RollbackToSavepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error

	Save(ctx context.Context) (int, error)
	Close() error

	// Repositories is the per unit of work repository cache used by
	// Repository.
	Repositories() *repository.Registry
}

// Repository returns the repository for T cached by u.
func Repository[T any](u UnitOfWork) repository.Repository[T] {
	return repository.Resolve[T](u.Repositories())
}

type unitOfWorkImpl struct {
	dc     *datacontext.Context
	repos  *repository.Registry
	tx     *datacontext.Transaction
	logger database.Logger
	closed bool
}

// New returns a UnitOfWork over a fresh data context on db.
func New(db *bun.DB, opts ...datacontext.Option) UnitOfWork {
	return NewFromContext(datacontext.New(db, opts...))
}

// NewFromContext returns a UnitOfWork that owns dc and closes it on Close.
func NewFromContext(dc *datacontext.Context) UnitOfWork {
	return &unitOfWorkImpl{
		dc:     dc,
		repos:  repository.NewRegistry(dc),
		logger: dc.Logger(),
	}
}

func (u *unitOfWorkImpl) Repositories() *repository.Registry { return u.repos }

func (u *unitOfWorkImpl) InTransaction() bool { return u.tx != nil }

func (u *unitOfWorkImpl) SupportsSavepoints() bool {
	return u.tx != nil && u.tx.SupportsSavepoints()
}

func (u *unitOfWorkImpl) TransactionID() string {
	if u.tx == nil {
		return ""
	}
	return u.tx.ID().String()
}

func (u *unitOfWorkImpl) BeginTransaction(ctx context.Context, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.tx != nil && !force {
		return types.TransactionInProgress()
	}
	if u.tx != nil {
		u.logger.Warn("Discarding active transaction without commit or rollback", "tx", u.TransactionID())
		u.tx = nil
	}

	tx, err := u.dc.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	u.tx = tx
	return nil
}

func (u *unitOfWorkImpl) Commit(ctx context.Context) error {
	if err := u.ready(ctx, "commit transaction"); err != nil {
		return err
	}
	err := u.tx.Commit(ctx)
	u.tx = nil
	return err
}

func (u *unitOfWorkImpl) Rollback(ctx context.Context) error {
	if err := u.ready(ctx, "rollback transaction"); err != nil {
		return err
	}
	err := u.tx.Rollback(ctx)
	u.tx = nil
	return err
}

func (u *unitOfWorkImpl) CreateSavepoint(ctx context.Context, name string) error {
	if err := u.ready(ctx, "create savepoint"); err != nil {
		return err
	}
	return u.tx.CreateSavepoint(ctx, name)
}

func (u *unitOfWorkImpl) RollbackToSavepoint(ctx context.Context, name string) error {
	if err := u.ready(ctx, "rollback to savepoint"); err != nil {
		return err
	}
	if err := u.tx.RollbackToSavepoint(ctx, name); err != nil {
		return err
	}
	return u.dropTransaction()
}

func (u *unitOfWorkImpl) ReleaseSavepoint(ctx context.Context, name string) error {
	if err := u.ready(ctx, "release savepoint"); err != nil {
		return err
	}
	if err := u.tx.ReleaseSavepoint(ctx, name); err != nil {
		return err
	}
	return u.dropTransaction()
}

func (u *unitOfWorkImpl) Save(ctx context.Context) (int, error) {
	return u.dc.SaveChanges(ctx)
}

// Close disposes the active transaction, then the data context. It is safe
// to call more than once.
func (u *unitOfWorkImpl) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	var errs []error
	if u.tx != nil {
		errs = append(errs, u.dropTransaction())
	}
	errs = append(errs, u.dc.Close())
	return errors.Join(errs...)
}

// ready reports cancellation before the transaction state.
func (u *unitOfWorkImpl) ready(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.tx == nil {
		return types.NoTransaction(op)
	}
	return nil
}

func (u *unitOfWorkImpl) dropTransaction() error {
	tx := u.tx
	u.tx = nil
	return tx.Dispose()
}
