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
	"context"
	"fmt"

	"github.com/tomoncle/repopattern/database"
	"github.com/uptrace/bun"
)

// ConnectionState is the state of a data context connection.
type ConnectionState int

const (
	ConnectionClosed ConnectionState = iota
	ConnectionOpen
)

func (s ConnectionState) String() string {
	if s == ConnectionOpen {
		return "open"
	}
	return "closed"
}

// Connection is a dedicated connection taken from the bun.DB pool. It is
// owned by one data context and returned to the pool on Close.
type Connection struct {
	db     *bun.DB
	conn   *bun.Conn
	logger database.Logger
}

func newConnection(db *bun.DB, logger database.Logger) *Connection {
	return &Connection{db: db, logger: logger}
}

// Open acquires the dedicated connection. It is a no-op when already open.
func (c *Connection) Open(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	c.conn = &conn
	c.logger.Debug("Connection opened", "dialect", c.db.Dialect().Name().String())
	return nil
}

// Close returns the connection to the pool. Closing a closed connection is a
// no-op.
func (c *Connection) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.logger.Debug("Connection closed")
	return err
}

func (c *Connection) State() ConnectionState {
	if c.conn == nil {
		return ConnectionClosed
	}
	return ConnectionOpen
}

func (c *Connection) IsOpen() bool {
	return c.conn != nil
}

// Conn returns the underlying bun connection, or nil when closed.
func (c *Connection) Conn() *bun.Conn {
	return c.conn
}
