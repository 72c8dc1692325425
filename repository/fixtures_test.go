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
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomoncle/repopattern/database"
	"github.com/tomoncle/repopattern/datacontext"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type testEntity struct {
	bun.BaseModel `bun:"table:test_entities,alias:te"`

	ID          int64            `bun:"id,pk,autoincrement"`
	Name        string           `bun:"name,notnull"`
	Description string           `bun:"description"`
	FeaturedID  int64            `bun:"featured_id,nullzero"`
	Featured    *relatedEntity   `bun:"rel:belongs-to,join:featured_id=id"`
	Related     []*relatedEntity `bun:"rel:has-many,join:id=test_entity_id"`
}

type relatedEntity struct {
	bun.BaseModel `bun:"table:related_entities,alias:re"`

	ID           int64         `bun:"id,pk,autoincrement"`
	Name         string        `bun:"name"`
	TestEntityID int64         `bun:"test_entity_id,nullzero"`
	InsideID     int64         `bun:"inside_id,nullzero"`
	Inside       *insideEntity `bun:"rel:belongs-to,join:inside_id=id"`
}

type insideEntity struct {
	bun.BaseModel `bun:"table:inside_entities,alias:ie"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Label string `bun:"label"`
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqldb.SetMaxIdleConns(4)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.CreateTables(context.Background(), db,
		(*insideEntity)(nil), (*relatedEntity)(nil), (*testEntity)(nil)))
	return db
}

// seed stores {1:A, 2:B, 3:C}; entity n features related n, entity 1 owns
// related 1 and entity 2 owns related 2 and 3.
func seed(t *testing.T, db *bun.DB) {
	t.Helper()
	ctx := context.Background()
	_, err := db.NewInsert().Model(&insideEntity{ID: 1, Label: "inside"}).Exec(ctx)
	require.NoError(t, err)
	related := []*relatedEntity{
		{ID: 1, Name: "r1", TestEntityID: 1, InsideID: 1},
		{ID: 2, Name: "r2", TestEntityID: 2, InsideID: 1},
		{ID: 3, Name: "r3", TestEntityID: 2, InsideID: 1},
	}
	_, err = db.NewInsert().Model(&related).Exec(ctx)
	require.NoError(t, err)
	entities := []*testEntity{
		{ID: 1, Name: "A", FeaturedID: 1},
		{ID: 2, Name: "B", FeaturedID: 2},
		{ID: 3, Name: "C", FeaturedID: 3},
	}
	_, err = db.NewInsert().Model(&entities).Exec(ctx)
	require.NoError(t, err)
}

func newTestRepository(t *testing.T, opts ...datacontext.Option) (*bun.DB, *datacontext.Context, Repository[testEntity]) {
	t.Helper()
	db := newTestDB(t)
	dc := datacontext.New(db, opts...)
	t.Cleanup(func() { _ = dc.Close() })
	return db, dc, NewRepository[testEntity](dc)
}

func storedNames(t *testing.T, db *bun.DB) []string {
	t.Helper()
	var names []string
	err := db.NewSelect().Model((*testEntity)(nil)).Column("name").Order("id").Scan(context.Background(), &names)
	require.NoError(t, err)
	return names
}

func ids(entities []*testEntity) []int64 {
	out := make([]int64, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.ID)
	}
	return out
}

func cancelled() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
