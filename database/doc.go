// Package database provides connection management over bun for mysql,
// postgres and sqlite: configuration (YAML and environment), a connection
// manager with health checks and reconnects, the Logger used across the
// module, a slow-query hook, driver error classification and a model
// registry that can bootstrap tables.
package database
