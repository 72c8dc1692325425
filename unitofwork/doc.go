// Package unitofwork provides the UnitOfWork contract and its data context
// implementation: a repository cache keyed by entity type and a transaction
// state machine with named savepoints.
package unitofwork
