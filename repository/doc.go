// Package repository provides the generic Repository contract and its bun
// implementation. Queries are described with options (includes, tracking,
// filters and ordering) and run lazily against the current transaction of
// the data context; writes are staged in the change tracker until saved.
package repository
