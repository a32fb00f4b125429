package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"inclusion-quiz-service/internal/config"
	"inclusion-quiz-service/internal/infra/memory"
	"inclusion-quiz-service/internal/infra/postgres"
	pgmigrations "inclusion-quiz-service/internal/infra/postgres/migrations"
	"inclusion-quiz-service/internal/logger"
)

// NewMigrateCmd applies database migrations and optionally seeds quiz
// definitions from a YAML file.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seedPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.Setup(cfg.Log.Level, cfg.Log.Format)
			if err := runMigrationsWithConfig(cmd.Context(), cfg, log); err != nil {
				return err
			}
			if seedPath == "" {
				return nil
			}
			return seedDefinitions(cmd.Context(), cfg, seedPath, log)
		},
	}
	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML file of quiz definitions to upsert after migrating")
	return cmd
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := openBun(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info().Msg("database already up to date")
		return nil
	}
	log.Info().Str("group", group.String()).Msg("migrations applied")
	return nil
}

func seedDefinitions(ctx context.Context, cfg config.Config, path string, log zerolog.Logger) error {
	loader, err := memory.LoadDefinitionsFile(path)
	if err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := postgres.NewQuizLoader(pool)
	for _, id := range loader.IDs() {
		def, err := loader.LoadQuiz(ctx, id)
		if err != nil {
			return err
		}
		if err := store.SaveQuiz(ctx, def); err != nil {
			return err
		}
		log.Info().Str("quiz", id).Msg("quiz definition seeded")
	}
	return nil
}
