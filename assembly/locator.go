package assembly

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/txix-open/isp-kit/log"
	"trip-quota-service/conf"
	"trip-quota-service/handler"
	"trip-quota-service/middleware"
	"trip-quota-service/proxy"
	"trip-quota-service/repository"
	"trip-quota-service/service"
)

const (
	aiPathPrefix = "/api/ai"

	bytesInMb = 1024 * 1024
)

type Locator struct {
	logger            log.Logger
	rateLimitFallback *repository.MemoryRateLimit
	aiHostManager     proxy.HostManager
}

func NewLocator(
	logger log.Logger,
	rateLimitFallback *repository.MemoryRateLimit,
	aiHostManager proxy.HostManager,
) Locator {
	return Locator{
		logger:            logger,
		rateLimitFallback: rateLimitFallback,
		aiHostManager:     aiHostManager,
	}
}

func (l Locator) Handler(config conf.Remote, redisCli redis.UniversalClient) http.Handler {
	rateLimitRepo := repository.NewRateLimit(redisCli)
	rateLimiter := service.NewRateLimiter(
		rateLimitRepo,
		l.rateLimitFallback,
		config.AiRateLimit.MaxCount(),
		config.AiRateLimit.Window(),
		l.logger,
	)

	usageRepo := repository.NewUsageTracking(redisCli)
	quotas := service.NewTierQuotas(config.Tiers)
	tripLimits := service.NewTripLimits(usageRepo, quotas)

	guestTripsRepo := repository.NewGuestTrips(redisCli)
	guestTrips := service.NewGuestTrips(guestTripsRepo, config.GuestTrips.TripTtl())

	commonMiddlewares := []middleware.Middleware{
		middleware.RequestId(),
		middleware.Logger(l.logger, config.Logging.RequestLogEnable, config.Logging.BodyLogEnable),
		middleware.ErrorHandler(l.logger),
		middleware.Identity(),
	}
	maxRequestBodySize := config.Http.MaxRequestBodySizeInMb * bytesInMb

	mux := http.NewServeMux()

	endpoints := map[string]middleware.Handler{
		"/api/trips/check-limit":  handler.NewCheckTripLimit(tripLimits, l.logger),
		"/api/trips/complete":     handler.NewCompleteTrip(tripLimits),
		"/api/tourist/check":      handler.NewTourist(guestTrips, config.GuestTrips.IpHashSalt, l.logger),
		"/api/tourist/save-email": handler.NewSaveEmail(guestTrips),
	}
	for path, endpointHandler := range endpoints {
		chained := middleware.Chain(endpointHandler, commonMiddlewares...)
		mux.Handle(path, middleware.Entrypoint(maxRequestBodySize, chained, "", l.logger))
	}

	aiProxy := proxy.NewHttp(l.aiHostManager, time.Duration(config.Http.ProxyTimeoutInSec)*time.Second)
	aiMiddlewares := append([]middleware.Middleware{}, commonMiddlewares...)
	aiMiddlewares = append(aiMiddlewares, middleware.RateLimit(rateLimiter))
	aiHandler := middleware.Chain(aiProxy, aiMiddlewares...)
	mux.Handle(aiPathPrefix+"/", middleware.Entrypoint(maxRequestBodySize, aiHandler, aiPathPrefix, l.logger))

	return mux
}
