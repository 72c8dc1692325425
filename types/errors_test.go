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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundErrorMatchesBothKinds(t *testing.T) {
	err := NewNotFoundError("TestEntity", "filters")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.False(t, errors.Is(err, ErrInvalidOperation))

	var nf *NotFoundError
	if assert.True(t, errors.As(err, &nf)) {
		assert.Equal(t, "TestEntity", nf.Entity)
		assert.Equal(t, "filters", nf.Param)
	}
	assert.Equal(t, "TestEntity not found (parameter 'filters')", err.Error())
}

func TestStateErrors(t *testing.T) {
	err := NoTransaction("commit")
	assert.ErrorIs(t, err, ErrInvalidOperation)
	assert.Equal(t, "cannot commit. No active transaction exists.", err.Error())

	err = TransactionInProgress()
	assert.ErrorIs(t, err, ErrInvalidOperation)
	assert.Contains(t, err.Error(), "already in progress")
}

func TestLookupEnum(t *testing.T) {
	table := []EnumEntry{{Name: "a", Desc: "first"}, {Name: "b", Desc: "second"}}

	e, ok := LookupEnum(table, 1)
	assert.True(t, ok)
	assert.Equal(t, "b", e.Name)

	e, ok = LookupEnum(table, 2)
	assert.False(t, ok)
	assert.Equal(t, IllegalName, e.Name)
	assert.Equal(t, IllegalDesc, e.Desc)
}
