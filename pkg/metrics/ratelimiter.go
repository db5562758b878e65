package metrics

import (
	"errors"

	"github.com/marmos91/assetrepo/internal/logger"
	"github.com/marmos91/assetrepo/internal/ratelimiter"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterRateLimiter exposes the tokens left in limiter's bucket as the
// assetrepo_rate_limiter_tokens gauge.
//
// Does nothing if metrics are not enabled or the limiter is unlimited. Only
// the first limiter registered in a process is exposed.
func RegisterRateLimiter(limiter *ratelimiter.RateLimiter) {
	if !IsEnabled() || limiter.Unlimited() {
		return
	}
	if err := registerRateLimiter(GetRegistry(), limiter); err != nil {
		logger.Warn("metrics: rate limiter gauge not registered: %v", err)
	}
}

func registerRateLimiter(reg prometheus.Registerer, limiter *ratelimiter.RateLimiter) error {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "assetrepo_rate_limiter_tokens",
			Help: "Tokens currently available in the rate limiter bucket",
		},
		limiter.Tokens,
	)
	if err := reg.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return err
	}
	return nil
}
