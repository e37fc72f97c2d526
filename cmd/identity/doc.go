// Package identity implements the user directory behind passwordless login.
//
// A user is created the first time an e-mail address asks for a magic link
// and is addressed by a ULID afterwards. The package holds the user record,
// e-mail normalization, ID generation, and the Store boundary with memory,
// SQLite and PostgreSQL implementations.
package identity
