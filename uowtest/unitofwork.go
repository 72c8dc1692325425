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
	"fmt"

	"github.com/google/uuid"
	"github.com/tomoncle/repopattern/repository"
	"github.com/tomoncle/repopattern/types"
	"github.com/tomoncle/repopattern/unitofwork"
)

// UnitOfWork is an in-memory unitofwork.UnitOfWork. It follows the same
// transaction state machine without a store and counts what it was asked to
// do. Repositories must be installed with Register; any other entity type
// resolves to a repository whose operations fail.
type UnitOfWork struct {
	// Savepoints controls SupportsSavepoints while a transaction is active.
	Savepoints bool
	// SaveFunc answers Save; nil returns 0.
	SaveFunc func(ctx context.Context) (int, error)

	Begins    int
	Commits   int
	Rollbacks int
	Saves     int
	Discarded []string

	repos      *repository.Registry
	txID       string
	savepoints []string
	closed     bool
}

var _ unitofwork.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{Savepoints: true, repos: repository.NewRegistry(nil)}
}

// Register installs repo as the repository for T on u.
func Register[T any](u *UnitOfWork, repo repository.Repository[T]) {
	repository.Register[T](u.repos, repo)
}

func (u *UnitOfWork) Repositories() *repository.Registry { return u.repos }

func (u *UnitOfWork) InTransaction() bool { return u.txID != "" }

func (u *UnitOfWork) TransactionID() string { return u.txID }

func (u *UnitOfWork) SupportsSavepoints() bool { return u.InTransaction() && u.Savepoints }

// ActiveSavepoints lists the savepoints of the active transaction.
func (u *UnitOfWork) ActiveSavepoints() []string {
	return append([]string(nil), u.savepoints...)
}

// Closed reports whether Close was called.
func (u *UnitOfWork) Closed() bool { return u.closed }

func (u *UnitOfWork) BeginTransaction(ctx context.Context, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.InTransaction() {
		if !force {
			return types.TransactionInProgress()
		}
		u.Discarded = append(u.Discarded, u.txID)
	}
	u.Begins++
	u.txID = uuid.NewString()
	u.savepoints = nil
	return nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	if err := u.ready(ctx, "commit transaction"); err != nil {
		return err
	}
	u.Commits++
	u.end()
	return nil
}

func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if err := u.ready(ctx, "rollback transaction"); err != nil {
		return err
	}
	u.Rollbacks++
	u.end()
	return nil
}

func (u *UnitOfWork) CreateSavepoint(ctx context.Context, name string) error {
	if err := u.savepoint(ctx, "create savepoint", name); err != nil {
		return err
	}
	u.savepoints = append(u.savepoints, name)
	return nil
}

func (u *UnitOfWork) RollbackToSavepoint(ctx context.Context, name string) error {
	if err := u.savepoint(ctx, "rollback to savepoint", name); err != nil {
		return err
	}
	if err := u.requireSavepoint(name); err != nil {
		return err
	}
	u.Rollbacks++
	u.end()
	return nil
}

func (u *UnitOfWork) ReleaseSavepoint(ctx context.Context, name string) error {
	if err := u.savepoint(ctx, "release savepoint", name); err != nil {
		return err
	}
	if err := u.requireSavepoint(name); err != nil {
		return err
	}
	u.Rollbacks++
	u.end()
	return nil
}

func (u *UnitOfWork) Save(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	u.Saves++
	if u.SaveFunc == nil {
		return 0, nil
	}
	return u.SaveFunc(ctx)
}

func (u *UnitOfWork) Close() error {
	if u.InTransaction() {
		u.Rollbacks++
		u.end()
	}
	u.closed = true
	return nil
}

func (u *UnitOfWork) ready(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !u.InTransaction() {
		return types.NoTransaction(op)
	}
	return nil
}

func (u *UnitOfWork) savepoint(ctx context.Context, op, name string) error {
	if err := u.ready(ctx, op); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: savepoint name cannot be empty", types.ErrInvalidArgument)
	}
	if !u.Savepoints {
		return fmt.Errorf("savepoints are not supported")
	}
	return nil
}

func (u *UnitOfWork) requireSavepoint(name string) error {
	for _, sp := range u.savepoints {
		if sp == name {
			return nil
		}
	}
	return fmt.Errorf("no such savepoint: %s", name)
}

func (u *UnitOfWork) end() {
	u.txID = ""
	u.savepoints = nil
}
