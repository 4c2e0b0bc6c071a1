package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
)

// RunMigrations applies pending schema migrations from the migrations
// directory. A database that is already up to date is not an error.
func RunMigrations(dsn, migrationsPath string, log *logger.Logger) error {
	log.LogDatabase("MIGRATE", "schema", "Running schema migrations")

	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.LogDatabase("MIGRATE", "schema", "Schema already up to date")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.LogDatabase("SUCCESS", "schema", "Schema migrations applied")
	return nil
}
