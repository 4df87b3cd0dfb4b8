// Package sqlitestore provides the durable SQLite implementation of
// queue.Storage.
//
// The database runs in WAL mode with a busy timeout, and every write retries
// with backoff on SQLITE_BUSY. The claim executes as a single UPDATE with a
// nested eligibility SELECT, which SQLite serializes, giving the
// at-most-one-claimant guarantee the queue contract requires. Schema changes
// are embedded SQL migrations tracked in a schema_migrations table.
package sqlitestore
