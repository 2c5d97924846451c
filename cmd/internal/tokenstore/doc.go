// Package tokenstore persists the access/refresh token pair between runs.
//
// Every backend writes both tokens together: a reader never sees a new access
// token next to an old refresh token. Backends:
//   - MemoryStore: process lifetime only (tests, one-shot commands)
//   - FileStore: JSON file, optionally sealed with a passphrase vault
//   - RedisStore: two keys under a prefix, written in one MULTI/EXEC
//   - PostgresStore: two rows per profile, written in one transaction
package tokenstore
