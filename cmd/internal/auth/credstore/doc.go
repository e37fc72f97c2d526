// Package credstore persists magic links and refresh tokens.
//
// Callers always address records by the plaintext bearer value. Stores keep
// only its digest (see cmd/security/token), so a leaked table does not leak
// usable credentials.
//
// Refresh-token rotation is a single atomic unit of work: the predecessor is
// revoked with a conditional update and the successor is inserted in the same
// transaction. At most one concurrent caller can rotate a given token. When
// the successor cannot be written, the revocation is still committed.
//
// Rows are never physically deleted.
package credstore
