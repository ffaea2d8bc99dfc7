// Package pg bootstraps the PostgreSQL layer: a pgx/v5 connection pool
// configured from the environment, goose schema migrations, a health check
// closure, and helpers that classify pgx/pgconn errors so stores can map
// SQLSTATEs to their own sentinels.
//
// Typical startup:
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		panic(err)
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		panic(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//		panic(err)
//	}
//
// Connect retries with growing back-off so services and their database can
// start in any order. Migrate bridges the pool into database/sql for goose
// and routes goose's output through the application logger.
package pg
