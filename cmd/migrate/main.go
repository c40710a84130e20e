// Package main applies the database schema and runs one-off data migrations.
//
//	migrate up
//	migrate legacy-refs --tenant t1
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"larder/internal/infrastructure/storage/postgres"
	"larder/internal/infrastructure/storage/postgres/recipe_repo"
	"larder/pkg/logger"
)

var log *logger.Logger

func main() {
	var err error
	log, err = logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		log.Fatalw("migration failed", "error", err)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the larder schema and data migrations",
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply the embedded schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTxManager(cmd.Context(), func(ctx context.Context, txm *postgres.TxManager) error {
				if err := postgres.Migrate(ctx, txm); err != nil {
					return err
				}
				log.Info("schema applied")
				return nil
			})
		},
	})

	var tenantID string
	legacy := &cobra.Command{
		Use:   "legacy-refs",
		Short: "Rewrite legacy ingredient id references to inventoryItemId",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTxManager(cmd.Context(), func(ctx context.Context, txm *postgres.TxManager) error {
				return migrateLegacyRefs(ctx, txm, tenantID)
			})
		},
	}
	legacy.Flags().StringVar(&tenantID, "tenant", "", "limit the migration to one tenant")
	root.AddCommand(legacy)

	return root
}

func withTxManager(ctx context.Context, fn func(ctx context.Context, txm *postgres.TxManager) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, postgres.NewTxManager(pool))
}

func migrateLegacyRefs(ctx context.Context, txm *postgres.TxManager, tenantID string) error {
	repo := recipe_repo.New(txm)

	tenants := []string{tenantID}
	if tenantID == "" {
		var err error
		tenants, err = repo.TenantsWithLegacyRefs(ctx)
		if err != nil {
			return err
		}
	}

	var total int64
	for _, t := range tenants {
		err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
			n, err := repo.MigrateLegacyIngredientRefs(ctx, t)
			if err != nil {
				return err
			}
			total += n
			return nil
		})
		if err != nil {
			return fmt.Errorf("tenant %s: %w", t, err)
		}
	}

	log.Infow("legacy ingredient references migrated", "tenants", len(tenants), "menu_items", total)
	return nil
}
