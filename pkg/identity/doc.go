// Package identity is the authoritative store of credentials, roles and
// account state.
//
// Emails are normalized to lower case on write and matched
// case-insensitively on read. Records are never hard-deleted: a soft delete
// sets DeletedAt, after which GetByEmail no longer finds the record while
// GetByID still does, so audit references stay resolvable.
//
// PostgresStore is the production implementation. CachedStore adds a
// short-lived LRU in front of email lookups for the request path.
package identity
