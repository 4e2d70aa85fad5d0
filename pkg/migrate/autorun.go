package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/eventprize-backend/pkg/config"
	"github.com/angelmondragon/eventprize-backend/pkg/db"
	"github.com/angelmondragon/eventprize-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup in dev when
// EVENTPRIZE_AUTO_MIGRATE is on. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if cfg.DB.UsesSQLite() {
		logg.Warn(ctx, "skipping auto-migrate: migrations target postgres only")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	src := Source{}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "migrations": src.String()})
	logg.Info(ctx, "applying migrations")
	if err := Run(ctx, sqlDB, src, "up"); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logg.Info(ctx, "migrations applied")
	return nil
}
