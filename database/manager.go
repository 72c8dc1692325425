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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

// driver opens the database/sql pool for one database type and names the
// bun dialect to put on top of it.
type driver struct {
	name    string
	dsn     func(cfg *ConnectionConfig) string
	dialect func() schema.Dialect
}

var drivers = map[string]driver{
	"mysql":      {"mysql", mysqlDSN, func() schema.Dialect { return mysqldialect.New() }},
	"postgres":   {"postgres", postgresDSN, func() schema.Dialect { return pgdialect.New() }},
	"postgresql": {"postgres", postgresDSN, func() schema.Dialect { return pgdialect.New() }},
	"sqlite":     {sqliteshim.ShimName, sqliteDSN, func() schema.Dialect { return sqlitedialect.New() }},
	"sqlite3":    {sqliteshim.ShimName, sqliteDSN, func() schema.Dialect { return sqlitedialect.New() }},
}

func mysqlDSN(cfg *ConnectionConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		cfg.ConnectTimeout, cfg.ReadTimeout, cfg.WriteTimeout)
}

func postgresDSN(cfg *ConnectionConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		sslMode, int(cfg.ConnectTimeout.Seconds()))
}

func sqliteDSN(cfg *ConnectionConfig) string {
	return SQLiteDSN(cfg.DBName)
}

// SQLiteDSN maps a configured database name to a sqlite DSN. ":memory:" and
// "file:" names are passed through; a bare name gets the ".db" suffix.
func SQLiteDSN(name string) string {
	switch {
	case name == "" || name == ":memory:":
		return "file::memory:?cache=shared"
	case strings.HasPrefix(name, "file:"), strings.HasSuffix(name, ".db"):
		return name
	default:
		return name + ".db"
	}
}

// defaultDatabaseManager owns the current *bun.DB. GetDB always returns the
// pool in use: a reconnect opens and verifies a new pool, publishes it, and
// only then closes the previous one. Units of work resolve the pool through
// GetDB when they are created, so a reconnect reaches every unit of work
// created after it. Open transactions and connections of earlier units of
// work finish on the replaced pool.
type defaultDatabaseManager struct {
	config *ConnectionConfig

	mu        sync.RWMutex
	db        *bun.DB
	logger    Logger
	lastError error
	stopWatch context.CancelFunc
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by bun. A nil
// config falls back to DefaultConnectionConfig.
func NewDatabaseManager(config *ConnectionConfig) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	return &defaultDatabaseManager{config: config}
}

// Connect opens the pool unless one is already published and starts the
// health watcher when HealthCheckInterval is set.
func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	if dm.GetDB() != nil {
		return nil
	}
	db, err := dm.open(ctx)
	if err != nil {
		dm.setError(err)
		return err
	}

	dm.mu.Lock()
	if dm.db != nil {
		// lost a race with a concurrent Connect
		dm.mu.Unlock()
		return db.Close()
	}
	dm.db = db
	dm.lastError = nil
	dm.mu.Unlock()

	dm.watch()
	dm.log().Info("Database connected successfully", "type", dm.config.Type, "host", dm.config.Host, "dbname", dm.config.DBName)
	return nil
}

// open builds a configured and pinged pool without publishing it.
func (dm *defaultDatabaseManager) open(ctx context.Context) (*bun.DB, error) {
	d, ok := drivers[dm.config.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", dm.config.Type)
	}
	sqlDB, err := sql.Open(d.name, d.dsn(dm.config))
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(dm.config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(dm.config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(dm.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(dm.config.ConnMaxIdleTime)

	db := bun.NewDB(sqlDB, d.dialect())
	if dm.config.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if dm.config.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(dm.config.SlowQueryTime, dm.log()))
	}

	pingCtx, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database connection test failed: %w", err)
	}
	return db, nil
}

// Disconnect stops the health watcher and closes the published pool.
func (dm *defaultDatabaseManager) Disconnect() error {
	dm.mu.Lock()
	db := dm.db
	dm.db = nil
	stop := dm.stopWatch
	dm.stopWatch = nil
	dm.mu.Unlock()

	if stop != nil {
		stop()
	}
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		dm.log().Error("Failed to close database connection", "error", err)
		return err
	}
	dm.log().Info("Database connection closed")
	return nil
}

// Reconnect replaces the published pool with a freshly opened one. When the
// new pool cannot be opened the current one stays published.
func (dm *defaultDatabaseManager) Reconnect(ctx context.Context) error {
	dm.log().Info("Attempting to reconnect to the database")
	fresh, err := dm.open(ctx)
	if err != nil {
		dm.setError(err)
		return fmt.Errorf("failed to reconnect: %w", err)
	}

	dm.mu.Lock()
	old := dm.db
	dm.db = fresh
	dm.lastError = nil
	dm.mu.Unlock()

	dm.watch()
	if old != nil {
		if err := old.Close(); err != nil {
			dm.log().Warn("Error closing replaced connection pool", "error", err)
		}
	}
	dm.log().Info("Reconnect succeeded")
	return nil
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	if db := dm.GetDB(); db != nil {
		return db.DB
	}
	return nil
}

// HealthCheck pings the published pool and records the result.
func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}

	db := dm.GetDB()
	if db == nil {
		status.LastError = "Database not initialized"
		if err := dm.getError(); err != nil {
			status.LastError = err.Error()
		}
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := db.PingContext(pingCtx)
	status.ResponseTime = time.Since(start)
	status.Healthy = err == nil
	status.Connected = err == nil
	if err != nil {
		status.LastError = err.Error()
	}

	stats := db.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	dm.setError(err)
	return status
}

// watch starts the health watcher once per published pool lifetime.
func (dm *defaultDatabaseManager) watch() {
	if dm.config.HealthCheckInterval <= 0 {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.stopWatch != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	dm.stopWatch = cancel
	go dm.watchHealth(ctx)
}

func (dm *defaultDatabaseManager) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(dm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		healthy := dm.HealthCheck(checkCtx).Healthy
		cancel()
		if !healthy && dm.config.EnableReconnect {
			dm.retryReconnect(ctx)
		}
	}
}

// retryReconnect retries Reconnect up to MaxReconnectTries times.
func (dm *defaultDatabaseManager) retryReconnect(ctx context.Context) {
	for try := 1; try <= dm.config.MaxReconnectTries; try++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(dm.config.ReconnectInterval):
		}
		connectCtx, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
		err := dm.Reconnect(connectCtx)
		cancel()
		if err == nil {
			return
		}
		dm.log().Error("Reconnect failed", "error", err, "try", try)
	}
	dm.log().Error("Max reconnect attempts reached, keeping the current pool", "tries", dm.config.MaxReconnectTries)
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	db := dm.GetDB()
	if db == nil {
		return &DBStats{}
	}
	stats := db.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}

func (dm *defaultDatabaseManager) log() Logger {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if dm.logger == nil {
		return GetLogger()
	}
	return dm.logger
}

func (dm *defaultDatabaseManager) setError(err error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.lastError = err
}

func (dm *defaultDatabaseManager) getError() error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.lastError
}
