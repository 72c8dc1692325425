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
	"database/sql/driver"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/repopattern/database"
	"github.com/tomoncle/repopattern/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

type account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID      int64  `bun:"id,pk,autoincrement"`
	Name    string `bun:"name,notnull"`
	Balance int64  `bun:"balance"`
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqldb.SetMaxIdleConns(4)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.CreateTables(context.Background(), db, (*account)(nil)))
	return db
}

func countAccounts(t *testing.T, idb bun.IDB) int {
	t.Helper()
	n, err := idb.NewSelect().Model((*account)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestEntityState(t *testing.T) {
	assert.Equal(t, "modified", Modified.String())
	assert.Equal(t, 3, Modified.Number())
	assert.True(t, Deleted.IsValid())
	assert.Equal(t, "staged for insert", Added.Desc())

	bad := EntityState(42)
	assert.False(t, bad.IsValid())
	assert.Equal(t, types.IllegalValue, bad.Number())
	assert.Equal(t, types.IllegalName, bad.Name())

	assert.True(t, Added.Pending())
	assert.False(t, Unchanged.Pending())
	assert.False(t, Detached.Pending())
}

func TestSaveChangesFlushesInTrackingOrder(t *testing.T) {
	db := newTestDB(t)
	dc := New(db)
	defer dc.Close()
	ctx := context.Background()

	a := &account{Name: "a"}
	b := &account{Name: "b"}
	require.NoError(t, dc.Tracker().Add(a))
	require.NoError(t, dc.Tracker().Add(b))
	assert.Equal(t, Added, dc.Tracker().State(a))

	n, err := dc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotZero(t, a.ID)
	assert.Greater(t, b.ID, a.ID)
	assert.Equal(t, Unchanged, dc.Tracker().State(a))

	a.Balance = 10
	require.NoError(t, dc.Tracker().Remove(b))
	n, err = dc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, Detached, dc.Tracker().State(b))

	var stored []account
	require.NoError(t, db.NewSelect().Model(&stored).Scan(ctx))
	require.Len(t, stored, 1)
	assert.Equal(t, int64(10), stored[0].Balance)
}

func TestSaveChangesEmpty(t *testing.T) {
	dc := New(newTestDB(t))
	defer dc.Close()

	n, err := dc.SaveChanges(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveChangesCancelled(t *testing.T) {
	db := newTestDB(t)
	dc := New(db)
	defer dc.Close()

	a := &account{Name: "a"}
	require.NoError(t, dc.Tracker().Add(a))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := dc.SaveChanges(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Added, dc.Tracker().State(a))
	assert.Zero(t, countAccounts(t, db))
}

func TestAutoDetectChangesDisabled(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, err := db.NewInsert().Model(&account{Name: "a"}).Exec(ctx)
	require.NoError(t, err)

	dc := New(db, WithAutoDetectChanges(false))
	defer dc.Close()

	loaded := new(account)
	require.NoError(t, db.NewSelect().Model(loaded).Limit(1).Scan(ctx))
	tracked, err := dc.Tracker().Attach(loaded)
	require.NoError(t, err)
	tracked.(*account).Name = "changed"

	n, err := dc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	dc.Tracker().DetectChanges()
	assert.Equal(t, Modified, dc.Tracker().State(loaded))
	n, err = dc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTransactionCommitAndRollback(t *testing.T) {
	db := newTestDB(t)
	dc := New(db)
	defer dc.Close()
	ctx := context.Background()

	tx, err := dc.BeginTransaction(ctx)
	require.NoError(t, err)
	assert.True(t, dc.Connection().IsOpen())
	assert.Same(t, tx, dc.CurrentTransaction())

	require.NoError(t, dc.Tracker().Add(&account{Name: "kept"}))
	_, err = dc.SaveChanges(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.True(t, tx.Completed())
	assert.Nil(t, dc.CurrentTransaction())
	// begin opened the connection, completion closes it
	assert.Equal(t, ConnectionClosed, dc.Connection().State())
	assert.Equal(t, 1, countAccounts(t, db))

	tx, err = dc.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, dc.Tracker().Add(&account{Name: "dropped"}))
	_, err = dc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, countAccounts(t, dc.IDB()))
	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, 1, countAccounts(t, db))

	assert.ErrorIs(t, tx.Commit(ctx), sql.ErrTxDone)
}

func TestTransactionKeepsExplicitlyOpenedConnection(t *testing.T) {
	dc := New(newTestDB(t))
	defer dc.Close()
	ctx := context.Background()

	require.NoError(t, dc.Connection().Open(ctx))
	tx, err := dc.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.True(t, dc.Connection().IsOpen())
}

func TestSavepoints(t *testing.T) {
	db := newTestDB(t)
	dc := New(db)
	defer dc.Close()
	ctx := context.Background()

	tx, err := dc.BeginTransaction(ctx)
	require.NoError(t, err)
	assert.True(t, tx.SupportsSavepoints())

	require.NoError(t, dc.Tracker().Add(&account{Name: "before"}))
	_, err = dc.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.CreateSavepoint(ctx, "sp1"))
	require.NoError(t, dc.Tracker().Add(&account{Name: "after"}))
	_, err = dc.SaveChanges(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateSavepoint(ctx, "sp2"))
	assert.Equal(t, []string{"sp1", "sp2"}, tx.Savepoints())

	require.NoError(t, tx.RollbackToSavepoint(ctx, "sp1"))
	assert.Equal(t, []string{"sp1"}, tx.Savepoints())
	assert.Equal(t, 1, countAccounts(t, dc.IDB()))

	require.NoError(t, tx.ReleaseSavepoint(ctx, "sp1"))
	assert.Empty(t, tx.Savepoints())
	assert.ErrorIs(t, tx.CreateSavepoint(ctx, ""), types.ErrInvalidArgument)

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 1, countAccounts(t, db))
}

func TestForcedBeginParksTransaction(t *testing.T) {
	db := newTestDB(t)
	dc := New(db)
	ctx := context.Background()

	first, err := dc.BeginTransaction(ctx)
	require.NoError(t, err)
	second, err := dc.BeginTransaction(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID())
	assert.Same(t, second, dc.CurrentTransaction())
	assert.False(t, first.Completed())

	require.NoError(t, second.Commit(ctx))
	require.NoError(t, dc.Close())
	assert.True(t, first.Completed())
	assert.True(t, dc.Closed())

	_, err = dc.BeginTransaction(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = dc.SaveChanges(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, dc.Close())
}

func TestBeginCancelled(t *testing.T) {
	dc := New(newTestDB(t))
	defer dc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := dc.BeginTransaction(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, dc.CurrentTransaction())
	assert.False(t, dc.Connection().IsOpen())
}

func TestCloseRollsBackCurrentTransaction(t *testing.T) {
	db := newTestDB(t)
	dc := New(db)
	ctx := context.Background()

	tx, err := dc.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, dc.Tracker().Add(&account{Name: "lost"}))
	_, err = dc.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, dc.Close())
	assert.True(t, tx.Completed())
	assert.Zero(t, countAccounts(t, db))
}

func TestIDBFollowsConnectionState(t *testing.T) {
	db := newTestDB(t)
	dc := New(db)
	defer dc.Close()
	ctx := context.Background()

	assert.Same(t, db, dc.IDB())
	require.NoError(t, dc.Connection().Open(ctx))
	assert.IsType(t, &bun.Conn{}, dc.IDB())
	tx, err := dc.BeginTransaction(ctx)
	require.NoError(t, err)
	assert.IsType(t, bun.Tx{}, dc.IDB())
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, dc.Connection().Close())
	assert.Same(t, db, dc.IDB())
}

func TestAffectedRows(t *testing.T) {
	e := &Entry{table: &schema.Table{TypeName: "account"}, state: Modified}

	n, err := affectedRows(driver.RowsAffected(2), e)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = affectedRows(driver.ResultNoRows, e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account modified")
}
