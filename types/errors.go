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
	"fmt"
)

var (
	// ErrInvalidArgument is matched by errors caused by a bad caller argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is matched when a single-entity lookup resolves nothing.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidOperation is matched when an operation is issued in the wrong
	// transaction state.
	ErrInvalidOperation = errors.New("invalid operation")
)

// NotFoundError reports that no entity matched a filter-based lookup.
// It matches both ErrNotFound and ErrInvalidArgument.
type NotFoundError struct {
	Entity string
	Param  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found (parameter '%s')", e.Entity, e.Param)
}

func (e *NotFoundError) Unwrap() []error {
	return []error{ErrNotFound, ErrInvalidArgument}
}

// StateError reports an operation issued in the wrong transaction state.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s. %s", e.Op, e.Reason)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidOperation
}

// NewNotFoundError builds a NotFoundError for the given entity and parameter.
func NewNotFoundError(entity, param string) error {
	return &NotFoundError{Entity: entity, Param: param}
}

// NoTransaction builds the StateError returned when op needs an active transaction.
func NoTransaction(op string) error {
	return &StateError{Op: op, Reason: "No active transaction exists."}
}

// TransactionInProgress builds the StateError returned by a non-forced begin
// while a transaction is active.
func TransactionInProgress() error {
	return &StateError{Op: "begin transaction", Reason: "A transaction is already in progress."}
}
