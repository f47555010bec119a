package startup

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edume/internal/logger"
)

// ConnectDB подключается к Postgres с повторами: пул считается готовым после успешного Ping.
func ConnectDB(ctx context.Context, poolCfg *pgxpool.Config, maxWait time.Duration) (*pgxpool.Pool, error) {
	return withRetry(ctx, "db connect", maxWait, func(ctx context.Context) (*pgxpool.Pool, error) {
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := pgxpool.NewWithConfig(connCtx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(connCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping: %w", err)
		}
		return pool, nil
	})
}

// Migrate применяет все *.sql из fsys в лексикографическом порядке (001_, 002_, ...).
// Миграции идемпотентны (IF NOT EXISTS / OR REPLACE), журнала применённых нет.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) error {
	defer logger.DeferLogDuration("startup.Migrate", time.Now())()
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("startup.Migrate: %w", err)
	}
	sort.Strings(files)
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return fmt.Errorf("startup.Migrate read %s: %w", f, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("startup.Migrate run %s: %w", f, err)
		}
	}
	logger.Infof("migrations applied: %d", len(files))
	return nil
}
