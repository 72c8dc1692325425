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
	"fmt"
	"strings"

	"github.com/tomoncle/repopattern/types"
)

// Lifetime controls how a Provider hands out units of work.
type Lifetime int

const (
	// Singleton shares one unit of work for the whole provider.
	Singleton Lifetime = iota
	// Scoped creates one unit of work per Scope.
	Scoped
	// Transient creates a new unit of work on every request.
	Transient
)

var lifetimes = []types.EnumEntry{
	{Name: "singleton", Desc: "one unit of work per provider"},
	{Name: "scoped", Desc: "one unit of work per scope"},
	{Name: "transient", Desc: "a new unit of work per request"},
}

var _ types.BaseEnum = Scoped

func (l Lifetime) IsValid() bool {
	_, ok := types.LookupEnum(lifetimes, int(l))
	return ok
}

func (l Lifetime) Number() int {
	if !l.IsValid() {
		return types.IllegalValue
	}
	return int(l)
}

func (l Lifetime) String() string {
	return l.Name()
}

func (l Lifetime) Name() string {
	e, _ := types.LookupEnum(lifetimes, int(l))
	return e.Name
}

func (l Lifetime) Desc() string {
	e, _ := types.LookupEnum(lifetimes, int(l))
	return e.Desc
}

// ParseLifetime parses a lifetime name case-insensitively. An empty name
// yields Scoped.
func ParseLifetime(name string) (Lifetime, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Scoped, nil
	}
	for i, e := range lifetimes {
		if e.Name == name {
			return Lifetime(i), nil
		}
	}
	return Lifetime(types.IllegalValue), fmt.Errorf("%w: unknown lifetime %q", types.ErrInvalidArgument, name)
}
