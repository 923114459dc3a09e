package config

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	authRateLimitVar  = "AUTH_RATE_LIMIT"
	authRateBurstVar  = "AUTH_RATE_BURST"
	trustedProxiesVar = "TRUSTED_PROXIES"
)

// RateLimitConfig controls the per-client token bucket on register and login
type RateLimitConfig interface {
	GetAuthRateLimit() float64
	GetAuthRateBurst() int
	GetTrustedProxies() []string
}

type RateLimit struct {
	v *viper.Viper
}

var _ RateLimitConfig = RateLimit{}

func (r RateLimit) GetAuthRateLimit() float64 {
	return r.v.GetFloat64(authRateLimitVar)
}

func (r RateLimit) GetAuthRateBurst() int {
	return r.v.GetInt(authRateBurstVar)
}

// GetTrustedProxies parses the comma separated TRUSTED_PROXIES list of IPs or CIDRs.
// X-Forwarded-For is only honoured for requests arriving from one of these.
func (r RateLimit) GetTrustedProxies() []string {
	var proxies []string
	for _, p := range strings.Split(r.v.GetString(trustedProxiesVar), ",") {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	return proxies
}
