// Package settings binds the gateway's environment-variable configuration
// surface (spec.md §6) via envconfig, the way the teacher binds its own
// runtime configuration.
package settings

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds every environment-driven knob the gatewayd binary reads
// at startup.
type Settings struct {
	// ListenAddr is the address the gateway's proxy listener binds to.
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`

	// AdminAddr is the address the rule-store REST API and introspection
	// endpoint bind to.
	AdminAddr string `envconfig:"ADMIN_ADDR" default:":8081"`

	// RateLimitInfoPath is the introspection endpoint path (spec.md §6).
	RateLimitInfoPath string `envconfig:"RATE_LIMIT_INFO_PATH" default:"/__rate_limit_info"`

	// ConfigStorage selects the Rule Store / Counter Store backend:
	// "memory" for a single-process deployment, "redis" for a shared fleet.
	ConfigStorage string `envconfig:"CONFIG_STORAGE" default:"memory"`

	// RateLimiter is reserved for selecting among counting algorithms; the
	// gateway only implements the sliding-window-log algorithm (spec.md
	// §9), so any value other than "sliding_window" is rejected at
	// startup rather than silently ignored.
	RateLimiter string `envconfig:"RATE_LIMITER" default:"sliding_window"`

	// ConfigCacheTTL is how often the Config Cache refreshes from the Rule
	// Store in the background (spec.md §3 default: 60s).
	ConfigCacheTTL time.Duration `envconfig:"CONFIG_CACHE_TTL" default:"60s"`

	// RedisAddr is the Redis endpoint used when ConfigStorage is "redis".
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	// OriginURL is the upstream the gateway reverse-proxies allowed
	// requests to.
	OriginURL string `envconfig:"ORIGIN_URL" default:"http://localhost:9000"`
}

// Load reads Settings from the environment, applying the defaults above to
// any variable that isn't set.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process("gateway", &s); err != nil {
		return Settings{}, err
	}
	if s.RateLimiter != "sliding_window" {
		return Settings{}, fmt.Errorf("settings: unsupported GATEWAY_RATE_LIMITER %q (only \"sliding_window\" is implemented)", s.RateLimiter)
	}
	return s, nil
}
