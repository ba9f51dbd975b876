package sandbox

import (
	"time"

	"github.com/scriptbox-dev/scriptbox/ratelimit"
)

// DefaultTimeout bounds an invocation unless WithTimeout overrides it.
const DefaultTimeout = 30 * time.Second

// Option configures a single invocation.
type Option func(*runConfig)

type runConfig struct {
	timeout    time.Duration
	onProgress func(text string)
	onSession  func(key string, value any)
	limiter    *ratelimit.Limiter
	rateLimit  int
	rateWindow time.Duration
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout: DefaultTimeout,
	}
}

// WithTimeout sets the maximum execution time. On expiry the guest is
// terminated and the invocation settles with a timeout error naming the
// duration.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithOnProgress registers a sink invoked synchronously for every progress
// message, in arrival order. Progress text is accumulated into the Result
// either way.
func WithOnProgress(fn func(text string)) Option {
	return func(c *runConfig) {
		c.onProgress = fn
	}
}

// WithOnSessionUpdate registers an observer notified after each session
// update has been applied to the store.
func WithOnSessionUpdate(fn func(key string, value any)) Option {
	return func(c *runConfig) {
		c.onSession = fn
	}
}

// WithRateLimit overrides the per-invocation call budget (default 150 calls
// per trailing minute).
func WithRateLimit(limit int, window time.Duration) Option {
	return func(c *runConfig) {
		c.rateLimit = limit
		c.rateWindow = window
	}
}

// WithLimiter supplies a shared limiter instead of the per-invocation
// default, for callers that run invocations against a shared upstream quota.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *runConfig) {
		c.limiter = l
	}
}

// HostOption configures the Host at creation time.
type HostOption func(*hostConfig)

type hostConfig struct {
	diskCache        bool
	cacheDir         string
	precompile       bool
	memoryLimitPages uint32
}

func defaultHostConfig() hostConfig {
	return hostConfig{}
}

// WithDiskCache enables a persistent compilation cache for faster startup.
// Optionally provide a custom directory; otherwise ~/.cache/scriptbox or
// XDG_CACHE_HOME/scriptbox is used.
func WithDiskCache(dir ...string) HostOption {
	return func(c *hostConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the guest runtime at Host creation instead of on
// the first invocation.
func WithPrecompile() HostOption {
	return func(c *hostConfig) {
		c.precompile = true
	}
}

// WithMemoryLimit sets the maximum guest memory in 64KB pages. Zero means
// the wazero default (4GB).
func WithMemoryLimit(pages uint32) HostOption {
	return func(c *hostConfig) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit16MB  uint32 = 256
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
)
