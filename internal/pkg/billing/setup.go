package billing

import (
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/EduPortal/app/repository"
	"github.com/ManuelReschke/EduPortal/internal/pkg/env"
	"github.com/ManuelReschke/EduPortal/internal/pkg/mail"
	"github.com/ManuelReschke/EduPortal/internal/pkg/pricing"
)

// NewServiceFromEnv wires the service with the HTTP gateway, a Redis lock when
// rdb is available and the settings from the environment.
func NewServiceFromEnv(repos *repository.Repositories, rdb *redis.Client, notifier mail.Notifier) *Service {
	gateway := NewHTTPGatewayFromEnv()
	if gateway.URL == "" {
		log.Warn("[Billing] PAYMENT_GATEWAY_URL is not set, every charge will fail")
	}

	opts := []Option{
		WithRenewalPricer(RenewalPricerFromName(env.GetEnv("RENEWAL_PRICING", "catalog"))),
		WithGatewayTimeout(env.GetEnvDuration("PAYMENT_GATEWAY_TIMEOUT", DefaultGatewayTimeout)),
		WithExpiryBatchSize(env.GetEnvInt("EXPIRY_BATCH_SIZE", DefaultExpiryBatchSize)),
		WithRenewalRetryBackoff(env.GetEnvDuration("RENEWAL_RETRY_BACKOFF", DefaultRenewalRetryBackoff)),
	}
	if rdb != nil {
		opts = append(opts, WithLocker(NewRedsyncLocker(rdb)))
	} else {
		log.Warn("[Billing] no Redis client, using in-process user locks")
	}
	if notifier != nil {
		opts = append(opts, WithNotifier(notifier))
	}

	return NewService(repos.Profile, repos.Transaction, pricing.Default(), gateway, opts...)
}
