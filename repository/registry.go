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
	"github.com/tomoncle/repopattern/datacontext"
)

// entityKey identifies a repository slot by the static type parameter.
type entityKey[T any] struct{}

// Registry memoizes one repository per entity type for a data context. It
// is owned by a unit of work and is not safe for concurrent use.
type Registry struct {
	dc    *datacontext.Context
	repos map[interface{}]interface{}
}

// NewRegistry returns an empty registry whose repositories share dc.
func NewRegistry(dc *datacontext.Context) *Registry {
	return &Registry{dc: dc, repos: make(map[interface{}]interface{})}
}

// Context returns the shared data context.
func (r *Registry) Context() *datacontext.Context { return r.dc }

// Len returns the number of repositories created so far.
func (r *Registry) Len() int { return len(r.repos) }

// Resolve returns the repository for T, creating it on first use. A
// registry without a data context only serves registered repositories; for
// any other T it returns a repository whose operations fail with
// types.ErrInvalidOperation.
func Resolve[T any](r *Registry) Repository[T] {
	if r == nil {
		panic("repository: Resolve called on a nil registry")
	}
	key := entityKey[T]{}
	if repo, ok := r.repos[key]; ok {
		return repo.(Repository[T])
	}
	var repo Repository[T]
	if r.dc == nil {
		repo = newUnboundRepository[T]()
	} else {
		repo = NewRepository[T](r.dc)
	}
	r.repos[key] = repo
	return repo
}

// Register installs repo as the repository for T, replacing any existing
// one. Test doubles and decorated repositories are registered this way.
func Register[T any](r *Registry, repo Repository[T]) {
	r.repos[entityKey[T]{}] = repo
}
