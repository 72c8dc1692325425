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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageRequestDefaults(t *testing.T) {
	p := NewDefaultPageRequest(0, 0)
	assert.Equal(t, 1, p.GetPage())
	assert.Equal(t, 10, p.GetPageSize())
	assert.Equal(t, 0, p.GetOffset())
	assert.Nil(t, p.GetFilter())

	p = NewPageRequest(3, 5, NewQueryFilter("name = ?", "a"), []string{"id DESC"})
	assert.Equal(t, 10, p.GetOffset())
	assert.Equal(t, "name = ?", p.GetFilter().Schema)
	assert.Equal(t, []interface{}{"a"}, p.GetFilter().Args)
	assert.Equal(t, []string{"id DESC"}, p.GetOrders())
}

func TestPaginationPages(t *testing.T) {
	p := NewDefaultPagination[struct{}](1, 5)
	assert.Equal(t, 0, p.Pages())
	assert.False(t, p.HasNext())

	p.Total = 11
	assert.Equal(t, 3, p.Pages())
	assert.True(t, p.HasNext())

	p.Page = 3
	assert.False(t, p.HasNext())
}
