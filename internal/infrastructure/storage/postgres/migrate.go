package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"larder/pkg/logger"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrate applies the embedded schema files in name order. Every statement is idempotent,
// so running it on an up-to-date database is a no-op.
func Migrate(ctx context.Context, txManager *TxManager) error {
	files, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return fmt.Errorf("list schema files: %w", err)
	}
	sort.Strings(files)

	return txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := txManager.GetQuerier(ctx)
		// serialize concurrent migrators
		if _, err := q.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext('larder.migrate'))"); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		for _, name := range files {
			body, err := schemaFS.ReadFile(name)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			if _, err := q.Exec(ctx, string(body)); err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
			logger.Info(ctx, "schema applied", "file", name)
		}
		return nil
	})
}
