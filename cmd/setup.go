package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations. With --rollback it reverts the latest one instead.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("rollback") {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back: %w", err)
		}
		r.writePlain("✓ Rolled back latest migration of %s\n", r.config.Database.Path)
		return nil
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := shared.MigrationStatus(db)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
	for _, m := range applied {
		r.writePlain("  %04d %s (applied %s)\n", m.Version, m.Name, m.AppliedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// SetupConfig writes the example configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if cmd.Bool("force") {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to replace config file: %w", err)
		}
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Config written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Create an OAuth client (Desktop or Web) in the Google Cloud console with the Photos Library and YouTube Data APIs enabled\n")
	r.writePlain("2. Set credentials.google.client_id and client_secret in %s\n", path)
	r.writePlain("3. Run 'gpyt auth login'\n")
	return nil
}
