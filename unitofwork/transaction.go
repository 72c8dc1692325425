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

package unitofwork

import (
	"context"
	"errors"
	"fmt"
)

// WithTransaction runs fn inside a transaction of u. The transaction is
// committed when fn returns nil and rolled back when it fails or panics.
func WithTransaction(ctx context.Context, u UnitOfWork, fn func(ctx context.Context) error) (err error) {
	if err = u.BeginTransaction(ctx, false); err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = u.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err = fn(ctx); err != nil {
		if !u.InTransaction() {
			return err
		}
		if rbErr := u.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}
	if !u.InTransaction() {
		return nil
	}
	return u.Commit(ctx)
}
