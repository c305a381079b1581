package assembly

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/txix-open/isp-kit/app"
	"github.com/txix-open/isp-kit/bootstrap"
	"github.com/txix-open/isp-kit/cluster"
	"github.com/txix-open/isp-kit/http"
	"github.com/txix-open/isp-kit/lb"
	"github.com/txix-open/isp-kit/log"
	"trip-quota-service/conf"
	"trip-quota-service/repository"
)

type Assembly struct {
	boot   *bootstrap.Bootstrap
	server *http.Server
	logger *log.Adapter

	redisCli redis.UniversalClient

	// survive config upgrades: the in-memory fallback keeps its counters and
	// the host manager keeps its round robin position
	rateLimitFallback *repository.MemoryRateLimit
	aiHostManager     *lb.RoundRobin
}

func New(boot *bootstrap.Bootstrap) (*Assembly, error) {
	return &Assembly{
		boot:              boot,
		server:            http.NewServer(boot.App.Logger()),
		logger:            boot.App.Logger(),
		rateLimitFallback: repository.NewMemoryRateLimit(),
		aiHostManager:     lb.NewRoundRobin(nil),
	}, nil
}

func (a *Assembly) ReceiveConfig(ctx context.Context, remoteConfig []byte) error {
	var (
		newCfg  conf.Remote
		prevCfg conf.Remote
	)
	err := a.boot.RemoteConfig.Upgrade(remoteConfig, &newCfg, &prevCfg)
	if err != nil {
		a.logger.Fatal(ctx, errors.WithMessage(err, "upgrade remote config"))
	}
	err = newCfg.Validate()
	if err != nil {
		a.logger.Fatal(ctx, errors.WithMessage(err, "invalid remote config"))
	}

	a.logger.SetLevel(newCfg.Logging.LogLevel)

	a.aiHostManager.Upgrade(newCfg.AiBackend.Addresses)

	newRedisCli := a.redisClient(newCfg.Redis)

	locator := NewLocator(a.logger, a.rateLimitFallback, a.aiHostManager)
	handler := locator.Handler(newCfg, newRedisCli)
	a.server.Upgrade(handler)

	if a.redisCli != nil {
		_ = a.redisCli.Close()
	}
	a.redisCli = newRedisCli

	return nil
}

func (a *Assembly) Runners() []app.Runner {
	eventHandler := cluster.NewEventHandler().
		RemoteConfigReceiver(a)

	return []app.Runner{
		app.RunnerFunc(func(ctx context.Context) error {
			return a.server.ListenAndServe(a.boot.BindingAddress)
		}),
		app.RunnerFunc(func(ctx context.Context) error {
			return a.boot.ClusterCli.Run(ctx, eventHandler)
		}),
	}
}

func (a *Assembly) Closers() []app.Closer {
	return []app.Closer{
		a.boot.ClusterCli,
		app.CloserFunc(func() error {
			return a.server.Shutdown(context.Background())
		}),
		app.CloserFunc(func() error {
			if a.redisCli != nil {
				return a.redisCli.Close()
			}
			return nil
		}),
	}
}

// nolint:ireturn
func (a *Assembly) redisClient(config conf.Redis) redis.UniversalClient {
	if config.Sentinel != nil {
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       config.Sentinel.MasterName,
			SentinelAddrs:    config.Sentinel.Addresses,
			SentinelUsername: config.Sentinel.Username,
			SentinelPassword: config.Sentinel.Password,
			Username:         config.Username,
			Password:         config.Password,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Username: config.Username,
		Password: config.Password,
	})
}
