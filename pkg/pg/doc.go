// Package pg bootstraps the PostgreSQL layer for the queue: a pgx/v5
// connection pool with startup retry, goose migrations applied from an
// embedded filesystem, a health check closure, and error classifiers for
// common SQLSTATE conditions.
//
// The actual queue storage lives in pgstore; this package only concerns
// connectivity and schema, so a process can do:
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations(), cfg, slog.Default()); err != nil {
//	    return err
//	}
//
//	store := pgstore.New(pool)
package pg
