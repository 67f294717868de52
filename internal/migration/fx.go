package migration

import (
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"github.com/smallbiznis/orderlead/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

type Params struct {
	fx.In

	DB  *gorm.DB `optional:"true"`
	Cfg db.Config
	Log *zap.Logger
}

// Apply brings the delivery log schema up to date. Postgres uses the
// versioned SQL migrations; the other dialects fall back to AutoMigrate.
func Apply(p Params) error {
	if p.DB == nil {
		return nil
	}

	if p.Cfg.Type != db.TypePostgres {
		p.Log.Info("auto-migrating delivery log", zap.String("type", p.Cfg.Type))
		return p.DB.AutoMigrate(&domain.DeliveryRecord{})
	}

	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	if err := RunMigrations(sqlDB); err != nil {
		return err
	}
	p.Log.Info("migrations applied")
	return nil
}
