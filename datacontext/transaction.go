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

package datacontext

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tomoncle/repopattern/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Transaction is a database transaction bound to a data context connection.
// Commit, Rollback and Dispose complete it; the savepoint operations leave it
// open.
type Transaction struct {
	id         uuid.UUID
	tx         bun.Tx
	conn       *Connection
	closeConn  bool
	dialect    dialect.Name
	savepoints []string
	completed  bool
	onDone     func(*Transaction)
}

// ID identifies the transaction in logs and tests.
func (t *Transaction) ID() uuid.UUID { return t.id }

// Tx returns the bun transaction.
func (t *Transaction) Tx() bun.Tx { return t.tx }

// Completed reports whether the transaction was committed, rolled back or
// disposed.
func (t *Transaction) Completed() bool { return t.completed }

// Savepoints lists the savepoints created and not yet released, oldest first.
func (t *Transaction) Savepoints() []string {
	out := make([]string, len(t.savepoints))
	copy(out, t.savepoints)
	return out
}

// SupportsSavepoints reports whether the dialect accepts SAVEPOINT statements.
func (t *Transaction) SupportsSavepoints() bool {
	return dialectSupportsSavepoints(t.dialect)
}

func (t *Transaction) Commit(ctx context.Context) error {
	if err := t.check(ctx, "commit"); err != nil {
		return err
	}
	err := t.tx.Commit()
	t.finish()
	return err
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if err := t.check(ctx, "rollback"); err != nil {
		return err
	}
	err := t.tx.Rollback()
	t.finish()
	return err
}

func (t *Transaction) CreateSavepoint(ctx context.Context, name string) error {
	if err := t.savepointCheck(ctx, name); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT ?", bun.Ident(name)); err != nil {
		return err
	}
	t.savepoints = append(t.savepoints, name)
	return nil
}

func (t *Transaction) RollbackToSavepoint(ctx context.Context, name string) error {
	if err := t.savepointCheck(ctx, name); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT ?", bun.Ident(name)); err != nil {
		return err
	}
	// savepoints created after name are gone, name itself survives
	if i := t.savepointIndex(name); i >= 0 {
		t.savepoints = t.savepoints[:i+1]
	}
	return nil
}

func (t *Transaction) ReleaseSavepoint(ctx context.Context, name string) error {
	if err := t.savepointCheck(ctx, name); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT ?", bun.Ident(name)); err != nil {
		return err
	}
	if i := t.savepointIndex(name); i >= 0 {
		t.savepoints = t.savepoints[:i]
	}
	return nil
}

// Dispose rolls back the transaction unless it already completed, and
// closes the connection when the transaction opened it. It is safe to call
// more than once.
func (t *Transaction) Dispose() error {
	if t.completed {
		return nil
	}
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		err = nil
	}
	t.finish()
	return err
}

func (t *Transaction) check(ctx context.Context, op string) error {
	if t.completed {
		return fmt.Errorf("cannot %s: %w", op, sql.ErrTxDone)
	}
	return ctx.Err()
}

func (t *Transaction) savepointCheck(ctx context.Context, name string) error {
	if err := t.check(ctx, "use savepoint"); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: savepoint name cannot be empty", types.ErrInvalidArgument)
	}
	if !t.SupportsSavepoints() {
		return fmt.Errorf("savepoints are not supported by the %s dialect", t.dialect)
	}
	return nil
}

func (t *Transaction) savepointIndex(name string) int {
	for i := len(t.savepoints) - 1; i >= 0; i-- {
		if t.savepoints[i] == name {
			return i
		}
	}
	return -1
}

func (t *Transaction) finish() {
	t.completed = true
	t.savepoints = nil
	if t.onDone != nil {
		t.onDone(t)
	}
}

func dialectSupportsSavepoints(name dialect.Name) bool {
	switch name {
	case dialect.PG, dialect.MySQL, dialect.SQLite:
		return true
	default:
		return false
	}
}
