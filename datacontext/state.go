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

import "github.com/tomoncle/repopattern/types"

// EntityState is the change-tracking state of an entity.
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Added
	Modified
	Deleted
)

var entityStates = []types.EnumEntry{
	{Name: "detached", Desc: "not tracked by the context"},
	{Name: "unchanged", Desc: "tracked and in sync with the store"},
	{Name: "added", Desc: "staged for insert"},
	{Name: "modified", Desc: "staged for update"},
	{Name: "deleted", Desc: "staged for delete"},
}

var _ types.BaseEnum = Detached

func (s EntityState) IsValid() bool {
	_, ok := types.LookupEnum(entityStates, int(s))
	return ok
}

func (s EntityState) Number() int {
	if !s.IsValid() {
		return types.IllegalValue
	}
	return int(s)
}

func (s EntityState) String() string {
	return s.Name()
}

func (s EntityState) Name() string {
	e, _ := types.LookupEnum(entityStates, int(s))
	return e.Name
}

func (s EntityState) Desc() string {
	e, _ := types.LookupEnum(entityStates, int(s))
	return e.Desc
}

// Pending reports whether the state is flushed by SaveChanges.
func (s EntityState) Pending() bool {
	return s == Added || s == Modified || s == Deleted
}
