// Package storage owns the relational schema shared by the credential store
// and the identity directory, plus the helpers that open and migrate it.
//
// Two dialects are supported: PostgreSQL (through pgxpool) and SQLite
// (through the pure-Go modernc driver). Timestamps are TIMESTAMPTZ on
// Postgres and unix milliseconds on SQLite.
package storage
