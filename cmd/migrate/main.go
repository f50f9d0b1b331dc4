package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"library/internal/storage/pg"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using existing environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var dsn string

	root := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema of the library service",
		Long: `Manage the PostgreSQL schema of the library service.

Migrations are embedded in the binary. The connection string is read from
--database-url or the DATABASE_URL environment variable.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dsn, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")

	// withDB opens the database, runs fn against it and closes it again
	withDB := func(fn func(ctx context.Context, db *sql.DB) error) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			db, err := sql.Open("pgx", dsn)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			ctx := cmd.Context()
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("failed to ping database: %w", err)
			}
			log.Println("Connected to PostgreSQL successfully")

			if err := pg.SetupGoose(); err != nil {
				return err
			}
			return fn(ctx, db)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, db *sql.DB) error {
				if err := goose.UpContext(ctx, db, pg.MigrationsDir); err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
				log.Println("Migrations completed successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, db *sql.DB) error {
				if err := goose.DownContext(ctx, db, pg.MigrationsDir); err != nil {
					return fmt.Errorf("failed to rollback migration: %w", err)
				}
				log.Println("Rollback completed successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the status of every migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, db *sql.DB) error {
				if err := goose.StatusContext(ctx, db, pg.MigrationsDir); err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, db *sql.DB) error {
				version, err := goose.GetDBVersionContext(ctx, db)
				if err != nil {
					return fmt.Errorf("failed to get version: %w", err)
				}
				log.Printf("Current migration version: %d", version)
				return nil
			}),
		},
		newCreateCommand(),
	)

	return root
}

// newCreateCommand writes a new SQL migration into the source tree.
// It does not need a database connection.
func newCreateCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:     "create <migration_name>",
		Short:   "Create a new SQL migration file",
		Example: "  migrate create add_books_publisher",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Write to the real filesystem, not the embedded one
			goose.SetBaseFS(nil)
			if err := goose.Create(nil, dir, args[0], "sql"); err != nil {
				return fmt.Errorf("failed to create migration: %w", err)
			}
			log.Printf("Created migration: %s", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "internal/storage/pg/migrations", "directory to write the migration into")

	return cmd
}
