package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"fund-balance-service/internal/config"
)

var ErrUnknownMigrationCommand = errors.New("unknown migration command")

func newMigrate(cfg *config.Config) (*migrate.Migrate, error) {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", cfg.Migration.Dir),
		cfg.GetMigrationDBURL(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize migrate: %w", err)
	}
	return m, nil
}

// Migrate runs "up" or "down". steps of 0 means all the way. Having nothing
// to apply is not an error.
func Migrate(cfg *config.Config, command string, steps int) error {
	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMigrationCommand, command)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	return nil
}

// MigrationVersion returns the applied schema version. ok is false when no
// migration has run yet.
func MigrationVersion(cfg *config.Config) (version uint, dirty, ok bool, err error) {
	m, err := newMigrate(cfg)
	if err != nil {
		return 0, false, false, err
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, true, nil
}
