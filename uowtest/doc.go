// Package uowtest provides test doubles for code written against
// unitofwork.UnitOfWork and repository.Repository: an in-memory unit of work
// that enforces the transaction state machine and a testify mock repository.
package uowtest
