package app

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/stocksync/internal/infrastructure/config"
	"github.com/erp/stocksync/internal/infrastructure/migration"
	"github.com/erp/stocksync/migrations"
)

const defaultMigrationsDir = "migrations"

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long: `Manage the catalog and settings schema. Migrations are embedded in the binary;
pass --path to run them from a directory instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().String("path", "", "Run migrations from this directory instead of the embedded set")
	cmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back database migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m *migration.Migrator, _ []string) error {
			yes, err := cmd.Flags().GetBool("yes")
			if err != nil {
				return err
			}
			if !yes {
				return errors.New("rolling back drops catalog data; re-run with --yes to confirm")
			}
			if n := numSteps(cmd); n > 0 {
				return m.Steps(-n)
			}
			return m.Down()
		}),
	}
	down.Flags().BoolP("yes", "y", false, "Confirm the rollback")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending database migrations",
			RunE: withMigrator(func(cmd *cobra.Command, m *migration.Migrator, _ []string) error {
				if n := numSteps(cmd); n > 0 {
					return m.Steps(n)
				}
				return m.Up()
			}),
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: withMigrator(func(cmd *cobra.Command, m *migration.Migrator, _ []string) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return err
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(_ *cobra.Command, m *migration.Migrator, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return m.Force(version)
			}),
		},
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create an empty up/down migration pair",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				mf, err := migration.CreateMigration(migrationsDir(cmd), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %s\ncreated %s\n", mf.UpPath, mf.DownPath)
				return err
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List migrations found in the migrations directory",
			RunE: func(cmd *cobra.Command, _ []string) error {
				files, err := migration.ListMigrations(migrationsDir(cmd))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, f := range files {
					if _, err := fmt.Fprintf(out, "%06d  %s\n", f.Version, f.Name); err != nil {
						return err
					}
				}
				return nil
			},
		},
	)
	return cmd
}

func numSteps(cmd *cobra.Command) int {
	n, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return 0
	}
	return int(n)
}

func migrationsDir(cmd *cobra.Command) string {
	if dir, _ := cmd.Flags().GetString("path"); dir != "" {
		return dir
	}
	return defaultMigrationsDir
}

// withMigrator opens the database and a migrator for fn and closes both afterwards
func withMigrator(fn func(*cobra.Command, *migration.Migrator, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		m, closeDB, err := openMigrator(cmd, cfg, log)
		if err != nil {
			log.Error("Failed to open migrator", zap.Error(err))
			return err
		}
		defer func() {
			if err := m.Close(); err != nil {
				log.Warn("Error closing migrator", zap.Error(err))
			}
			closeDB()
		}()

		if err := fn(cmd, m, args); err != nil {
			log.Error("Migration command failed", zap.String("command", cmd.Name()), zap.Error(err))
			return err
		}
		return nil
	}
}

func openMigrator(cmd *cobra.Command, cfg *config.Config, log *zap.Logger) (*migration.Migrator, func(), error) {
	if dir, _ := cmd.Flags().GetString("path"); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve migrations path: %w", err)
		}
		m, err := migration.NewFromPath(cfg.Database.DSN(), abs, log)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(cmd.Context()); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	m, err := migration.New(db, migrations.FS, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return m, func() { _ = db.Close() }, nil
}
