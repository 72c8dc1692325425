// Package datacontext implements the session that sits between entities and
// the store: a change tracker with identity resolution and snapshot based
// change detection, a dedicated connection, and transactions with named
// savepoints. Repositories and units of work are built on top of it.
package datacontext
