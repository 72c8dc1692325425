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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/repopattern/types"
)

func TestLifetimeEnum(t *testing.T) {
	assert.Equal(t, "singleton", Singleton.String())
	assert.Equal(t, 1, Scoped.Number())
	assert.Equal(t, "a new unit of work per request", Transient.Desc())

	bad := Lifetime(9)
	assert.False(t, bad.IsValid())
	assert.Equal(t, types.IllegalValue, bad.Number())
	assert.Equal(t, types.IllegalName, bad.Name())
}

func TestParseLifetime(t *testing.T) {
	cases := map[string]Lifetime{
		"":           Scoped,
		"singleton":  Singleton,
		" Scoped ":   Scoped,
		"TRANSIENT":  Transient,
	}
	for in, want := range cases {
		got, err := ParseLifetime(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLifetime("per-request")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}
