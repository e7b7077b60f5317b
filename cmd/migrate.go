package cmd

import (
	"fmt"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/db"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/config"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/log"
)

// runMigrate applies pending database migrations and exits. serve also
// migrates on startup; this command exists for deploy pipelines that migrate
// before rolling instances.
func runMigrate(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("migrations applied", "database", cfg.DBName)
	return nil
}
