// Package pgstore provides the PostgreSQL implementation of queue.Storage
// on top of a pgx/v5 pool.
//
// The claim uses FOR UPDATE SKIP LOCKED inside a single UPDATE ... RETURNING
// statement: concurrent workers skip rows another transaction is claiming,
// so each eligible message goes to exactly one claimant without lock
// convoys. Schema setup ships as embedded goose migrations applied through
// pg.Migrate.
package pgstore
