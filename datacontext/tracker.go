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
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/repopattern/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrIdentityConflict is returned when a second instance with the key of an
// already tracked entity is attached.
var ErrIdentityConflict = errors.New("another instance with the same key is already tracked")

// Entry is the tracking record of one entity.
type Entry struct {
	entity   interface{}
	table    *schema.Table
	state    EntityState
	key      string
	snapshot []byte
}

func (e *Entry) Entity() interface{} { return e.entity }

func (e *Entry) State() EntityState { return e.state }

func (e *Entry) Table() *schema.Table { return e.table }

// ChangeTracker records entity states for one data context. Entries keep the
// order in which entities were first tracked and SaveChanges flushes them in
// that order. Not safe for concurrent use.
type ChangeTracker struct {
	db       *bun.DB
	entries  []*Entry
	byEntity map[interface{}]*Entry
	identity map[string]*Entry
}

func newChangeTracker(db *bun.DB) *ChangeTracker {
	return &ChangeTracker{
		db:       db,
		byEntity: make(map[interface{}]*Entry),
		identity: make(map[string]*Entry),
	}
}

// State returns the state of entity, or Detached when it is not tracked.
func (t *ChangeTracker) State(entity interface{}) EntityState {
	if checkEntity(entity) != nil {
		return Detached
	}
	if e, ok := t.byEntity[entity]; ok {
		return e.state
	}
	return Detached
}

// Entries returns the tracked entries in tracking order.
func (t *ChangeTracker) Entries() []*Entry {
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// HasChanges reports whether any entry is pending. Call DetectChanges first
// to account for in-place mutations of unchanged entities.
func (t *ChangeTracker) HasChanges() bool {
	for _, e := range t.entries {
		if e.state.Pending() {
			return true
		}
	}
	return false
}

// Add stages entity for insert. A deleted entity is restored as modified.
func (t *ChangeTracker) Add(entity interface{}) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	if e, ok := t.byEntity[entity]; ok {
		if e.state == Deleted {
			e.state = Modified
		} else {
			e.state = Added
		}
		return nil
	}
	_, err := t.track(entity, Added)
	return err
}

// Update stages entity for update. Added entities stay added.
func (t *ChangeTracker) Update(entity interface{}) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	if e, ok := t.byEntity[entity]; ok {
		if e.state != Added {
			e.state = Modified
		}
		return nil
	}
	_, err := t.track(entity, Modified)
	return err
}

// Remove stages entity for delete. An added entity never reached the store
// and is simply forgotten.
func (t *ChangeTracker) Remove(entity interface{}) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	if e, ok := t.byEntity[entity]; ok {
		if e.state == Added {
			t.forget(e)
		} else {
			e.state = Deleted
		}
		return nil
	}
	_, err := t.track(entity, Deleted)
	return err
}

// Attach starts tracking entity as unchanged and returns the tracked
// instance. When an instance with the same key is already tracked that
// instance is returned instead, with relations loaded on entity copied over.
func (t *ChangeTracker) Attach(entity interface{}) (interface{}, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	if _, ok := t.byEntity[entity]; ok {
		return entity, nil
	}
	table, err := t.tableOf(entity)
	if err != nil {
		return nil, err
	}
	if key := identityKey(table, entity); key != "" {
		if existing, ok := t.identity[key]; ok {
			copyRelations(table, entity, existing.entity)
			return existing.entity, nil
		}
	}
	e, err := t.track(entity, Unchanged)
	if err != nil {
		return nil, err
	}
	return e.entity, nil
}

// Detach stops tracking entity.
func (t *ChangeTracker) Detach(entity interface{}) {
	if checkEntity(entity) != nil {
		return
	}
	if e, ok := t.byEntity[entity]; ok {
		t.forget(e)
	}
}

// DetectChanges marks unchanged entities whose column values differ from
// their snapshot as modified.
func (t *ChangeTracker) DetectChanges() {
	for _, e := range t.entries {
		if e.state != Unchanged || e.snapshot == nil {
			continue
		}
		current, err := snapshot(e.table, e.entity)
		if err != nil || !bytes.Equal(current, e.snapshot) {
			e.state = Modified
		}
	}
}

// Clear stops tracking every entity.
func (t *ChangeTracker) Clear() {
	t.entries = nil
	t.byEntity = make(map[interface{}]*Entry)
	t.identity = make(map[string]*Entry)
}

func (t *ChangeTracker) pending() []*Entry {
	var out []*Entry
	for _, e := range t.entries {
		if e.state.Pending() {
			out = append(out, e)
		}
	}
	return out
}

// acceptChanges moves flushed entries to unchanged and drops deleted ones.
func (t *ChangeTracker) acceptChanges(flushed []*Entry) {
	for _, e := range flushed {
		if e.state == Deleted {
			t.forget(e)
			continue
		}
		e.state = Unchanged
		t.index(e)
		e.snapshot, _ = snapshot(e.table, e.entity)
	}
}

func (t *ChangeTracker) track(entity interface{}, state EntityState) (*Entry, error) {
	table, err := t.tableOf(entity)
	if err != nil {
		return nil, err
	}
	e := &Entry{entity: entity, table: table, state: state}
	if key := identityKey(table, entity); key != "" {
		if other, ok := t.identity[key]; ok && other.entity != entity {
			return nil, fmt.Errorf("%w: %s", ErrIdentityConflict, key)
		}
	}
	if state == Unchanged {
		e.snapshot, err = snapshot(table, entity)
		if err != nil {
			return nil, err
		}
	}
	t.entries = append(t.entries, e)
	t.byEntity[entity] = e
	t.index(e)
	return e, nil
}

// index registers e under its current key. An added entity whose key the
// store assigns has no key yet and is indexed after SaveChanges.
func (t *ChangeTracker) index(e *Entry) {
	key := identityKey(e.table, e.entity)
	if key == e.key {
		return
	}
	if e.key != "" && t.identity[e.key] == e {
		delete(t.identity, e.key)
	}
	e.key = key
	if key != "" {
		t.identity[key] = e
	}
}

func (t *ChangeTracker) forget(e *Entry) {
	delete(t.byEntity, e.entity)
	if e.key != "" && t.identity[e.key] == e {
		delete(t.identity, e.key)
	}
	for i, other := range t.entries {
		if other == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
}

func (t *ChangeTracker) tableOf(entity interface{}) (*schema.Table, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	return t.db.Table(reflect.TypeOf(entity)), nil
}

func checkEntity(entity interface{}) error {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: entity must be a non-nil struct pointer, got %T", types.ErrInvalidArgument, entity)
	}
	return nil
}

// identityKey renders "table:pk1,pk2". It is empty while any key column
// still holds its zero value.
func identityKey(table *schema.Table, entity interface{}) string {
	if len(table.PKs) == 0 {
		return ""
	}
	strct := reflect.ValueOf(entity).Elem()
	parts := make([]string, 0, len(table.PKs))
	for _, pk := range table.PKs {
		v := pk.Value(strct)
		if !v.IsValid() || v.IsZero() {
			return ""
		}
		parts = append(parts, fmt.Sprint(v.Interface()))
	}
	return table.Name + ":" + strings.Join(parts, ",")
}

// snapshot encodes the column values of entity. Relation fields are left
// out so that loaded graphs do not count as changes.
func snapshot(table *schema.Table, entity interface{}) ([]byte, error) {
	strct := reflect.ValueOf(entity).Elem()
	values := make([]interface{}, 0, len(table.Fields))
	for _, f := range table.Fields {
		v := f.Value(strct)
		if !v.IsValid() {
			values = append(values, nil)
			continue
		}
		values = append(values, v.Interface())
	}
	return msgpack.Marshal(values)
}

func copyRelations(table *schema.Table, from, to interface{}) {
	src := reflect.ValueOf(from).Elem()
	dst := reflect.ValueOf(to).Elem()
	for _, rel := range table.Relations {
		v := rel.Field.Value(src)
		if v.IsValid() && !v.IsZero() {
			rel.Field.Value(dst).Set(v)
		}
	}
}
