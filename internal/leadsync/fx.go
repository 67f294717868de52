package leadsync

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orderlead/internal/bitrix"
	"github.com/smallbiznis/orderlead/internal/clock"
	"github.com/smallbiznis/orderlead/internal/config"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"github.com/smallbiznis/orderlead/internal/leadsync/lock"
	"github.com/smallbiznis/orderlead/internal/leadsync/mapping"
	"github.com/smallbiznis/orderlead/internal/leadsync/payload"
	"github.com/smallbiznis/orderlead/internal/leadsync/repository"
	"github.com/smallbiznis/orderlead/internal/leadsync/service"
	obsmetrics "github.com/smallbiznis/orderlead/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("leadsync",
	clock.Module,
	fx.Provide(repository.Provide),
	fx.Provide(provideParser),
	fx.Provide(payload.NewBuilder),
	fx.Provide(provideMappingSource),
	fx.Provide(provideLeadClient),
	fx.Provide(provideLocker),
	fx.Provide(service.NewCoordinator),
	fx.Provide(
		service.NewService,
		func(s *service.Service) domain.Service { return s },
		func(s *service.Service) domain.DeliveryLog { return s },
	),
)

func provideParser(cfg config.Config, log *zap.Logger) *payload.Parser {
	return payload.NewParser(log, cfg.AcceptedCurrencies)
}

func provideMappingSource(holder *config.MappingHolder) mapping.Source {
	return holder
}

func provideLeadClient(cfg config.Config, log *zap.Logger, syncMetrics *obsmetrics.LeadSyncMetrics) (domain.LeadClient, error) {
	return bitrix.NewClient(bitrix.Config{
		WebhookURL: cfg.CRMWebhookURL,
		Timeout:    cfg.CRMTimeout,
	}, log, syncMetrics)
}

// provideLocker picks the Redis lock when REDIS_ADDR is set so several
// replicas serialize on the same order; otherwise the lock is in-process.
func provideLocker(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (domain.Locker, error) {
	if !cfg.RedisEnabled() {
		log.Info("using in-process order lock")
		return lock.NewKeyedLocker(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	log.Info("using redis order lock", zap.String("addr", cfg.RedisAddr))
	return lock.NewRedisLocker(client, log, lock.RedisOptions{
		Prefix:      cfg.LockPrefix,
		TTL:         cfg.LockTTL,
		WaitTimeout: cfg.LockWaitTimeout,
	}), nil
}
