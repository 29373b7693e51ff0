package cmd

import (
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/qrave1/TypeRace/internal/application/config"
	"github.com/qrave1/TypeRace/internal/application/constant"
	"github.com/qrave1/TypeRace/internal/infra/adapters/postgres/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|status|redo|reset|version|up-to|down-to] [args]",
	Short: "Apply embedded database migrations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New(envFiles...)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		goose.SetBaseFS(migrations.MigrationsFS)

		db, err := goose.OpenDBWithDriver("pgx", cfg.Postgres.DSN())
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				slog.Error("close migrations db", slog.Any(constant.Error, closeErr))
			}
		}()

		command := args[0]
		if err = goose.RunContext(cmd.Context(), command, db, ".", args[1:]...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}

		version, err := goose.GetDBVersionContext(cmd.Context(), db)
		if err != nil {
			return fmt.Errorf("read db version: %w", err)
		}

		slog.Info("migrations done", slog.String("command", command), slog.Int64("version", version))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
