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
	"github.com/tomoncle/repopattern/database"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// ErrClosed is returned by operations on a closed data context.
var ErrClosed = errors.New("data context is closed")

// Options configure a data context.
type Options struct {
	// DisableTracking makes queries return detached entities unless a query
	// asks for tracking explicitly.
	DisableTracking bool
	// AutoDetectChanges compares unchanged entities with their snapshot
	// before SaveChanges. Defaults to true.
	AutoDetectChanges bool
	Logger            database.Logger
}

type Option func(*Options)

func WithTrackingDisabled(disabled bool) Option {
	return func(o *Options) { o.DisableTracking = disabled }
}

func WithAutoDetectChanges(enabled bool) Option {
	return func(o *Options) { o.AutoDetectChanges = enabled }
}

func WithLogger(logger database.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// Context is the session between entities and the store: it tracks entity
// changes, owns a dedicated connection and at most one current transaction.
// A Context must be used by one goroutine at a time.
type Context struct {
	db      *bun.DB
	opts    Options
	logger  database.Logger
	tracker *ChangeTracker
	conn    *Connection
	tx      *Transaction
	parked  []*Transaction
	closed  bool
}

// New returns a data context over db. The pool itself stays owned by the
// caller; Close releases only what the context acquired.
func New(db *bun.DB, opts ...Option) *Context {
	o := Options{AutoDetectChanges: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = database.GetLogger()
	}
	return &Context{
		db:      db,
		opts:    o,
		logger:  o.Logger,
		tracker: newChangeTracker(db),
	}
}

func (c *Context) DB() *bun.DB { return c.db }

func (c *Context) Tracker() *ChangeTracker { return c.tracker }

func (c *Context) Logger() database.Logger { return c.logger }

func (c *Context) Dialect() dialect.Name { return c.db.Dialect().Name() }

// TrackQueries reports whether queries track their results by default.
func (c *Context) TrackQueries() bool { return !c.opts.DisableTracking }

// Connection returns the dedicated connection, creating it closed on first
// use.
func (c *Context) Connection() *Connection {
	if c.conn == nil {
		c.conn = newConnection(c.db, c.logger)
	}
	return c.conn
}

// CurrentTransaction returns the transaction queries run in, or nil.
func (c *Context) CurrentTransaction() *Transaction { return c.tx }

// IDB returns where queries run: the current transaction, else the open
// dedicated connection, else the pool.
func (c *Context) IDB() bun.IDB {
	if c.tx != nil {
		return c.tx.tx
	}
	if c.conn != nil && c.conn.conn != nil {
		return c.conn.conn
	}
	return c.db
}

// BeginTransaction opens the connection if needed and starts a transaction
// that becomes current. A current transaction is parked unresolved together
// with its connection and a fresh connection is used; parked transactions are
// rolled back by Close.
func (c *Context) BeginTransaction(ctx context.Context) (*Transaction, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.tx != nil {
		c.park()
	}

	conn := c.Connection()
	opened := !conn.IsOpen()
	if err := conn.Open(ctx); err != nil {
		return nil, err
	}
	// the transaction outlives the call that begins it
	btx, err := conn.conn.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		if opened {
			_ = conn.Close()
		}
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &Transaction{
		id:        uuid.New(),
		tx:        btx,
		conn:      conn,
		closeConn: opened,
		dialect:   c.Dialect(),
		onDone:    c.transactionDone,
	}
	c.tx = tx
	c.logger.Debug("Transaction started", "tx", tx.id.String())
	return tx, nil
}

func (c *Context) park() {
	old := c.tx
	c.parked = append(c.parked, old)
	c.tx = nil
	c.conn = nil
	c.logger.Warn("Transaction replaced while active; it stays open until the context is closed",
		"tx", old.id.String(), "parked", len(c.parked))
}

func (c *Context) transactionDone(tx *Transaction) {
	if c.tx == tx {
		c.tx = nil
	}
	if tx.closeConn && tx.conn == c.conn {
		if err := tx.conn.Close(); err != nil {
			c.logger.Warn("Failed to close connection", "tx", tx.id.String(), "error", err)
		}
	}
	c.logger.Debug("Transaction completed", "tx", tx.id.String())
}

// SaveChanges flushes pending entities in tracking order and returns the
// number of affected rows. Without a current transaction the flush runs in
// its own transaction. After a successful flush added and modified entities
// become unchanged and deleted ones are no longer tracked.
func (c *Context) SaveChanges(ctx context.Context) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if c.opts.AutoDetectChanges {
		c.tracker.DetectChanges()
	}
	pending := c.tracker.pending()
	if len(pending) == 0 {
		return 0, nil
	}

	var affected int
	flush := func(ctx context.Context, idb bun.IDB) error {
		affected = 0
		for _, e := range pending {
			n, err := execEntry(ctx, idb, e)
			if err != nil {
				return err
			}
			affected += n
		}
		return nil
	}

	var err error
	switch {
	case c.tx != nil:
		err = flush(ctx, c.tx.tx)
	case c.conn != nil && c.conn.conn != nil:
		err = c.conn.conn.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return flush(ctx, tx)
		})
	default:
		err = c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return flush(ctx, tx)
		})
	}
	if err != nil {
		return 0, err
	}

	c.tracker.acceptChanges(pending)
	c.logger.Debug("Changes saved", "entities", len(pending), "rows", affected)
	return affected, nil
}

func execEntry(ctx context.Context, idb bun.IDB, e *Entry) (int, error) {
	var (
		res sql.Result
		err error
	)
	switch e.state {
	case Added:
		res, err = idb.NewInsert().Model(e.entity).Exec(ctx)
	case Modified:
		res, err = idb.NewUpdate().Model(e.entity).WherePK().Exec(ctx)
	case Deleted:
		res, err = idb.NewDelete().Model(e.entity).WherePK().Exec(ctx)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to save %s %s: %w", e.table.TypeName, e.state, err)
	}
	return affectedRows(res, e)
}

func affectedRows(res sql.Result, e *Entry) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows of %s %s: %w", e.table.TypeName, e.state, err)
	}
	return int(n), nil
}

// Close rolls back the current and parked transactions, returns the
// connections to the pool and stops tracking. The bun.DB stays open.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.tx != nil {
		errs = append(errs, c.tx.Dispose())
	}
	for _, tx := range c.parked {
		if err := tx.Dispose(); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, tx.conn.Close())
	}
	c.parked = nil
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	c.tracker.Clear()
	return errors.Join(errs...)
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool { return c.closed }
