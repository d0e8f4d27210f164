// Package storage provides SQLite persistence for the payer rule knowledge
// base: payers, versioned rules with embedded vectors, source documents, the
// change-log audit trail, alerts and ingest job bookkeeping.
//
// Rules are append-only. A content change never mutates a row in place;
// SupersedeRule inserts the new version and retires the old one in a single
// transaction, so the set of current rules is always consistent.
//
// Two SQLite drivers are supported via build tags: github.com/mattn/go-sqlite3
// (cgo_sqlite tag) and modernc.org/sqlite (default, pure Go).
package storage
