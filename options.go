package nbembed

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Renderer.
type Option func(*config)

type config struct {
	resolver    Resolver
	loader      Loader
	cdnBaseURL  string
	logger      zerolog.Logger
	memoryLimit uint64
	timeout     time.Duration
	textMeasure bool
	version     string // version set key, e.g. "hm1_0"
	extra       []Module
}

func defaultConfig() *config {
	return &config{
		loader:      DenyLoader{},
		logger:      zerolog.Nop(),
		timeout:     30 * time.Second,
		textMeasure: true,
		// version left empty; runtime reads default from versions.json
	}
}

// WithResolver injects the module-resolution primitive used for local
// package lookups. By default modules resolve against the registry of
// pre-registered framework modules.
func WithResolver(r Resolver) Option {
	return func(c *config) {
		c.resolver = r
	}
}

// WithLoader sets the resource loader used for the CDN fallback and for
// widget data. By default, all loading is denied (DenyLoader).
func WithLoader(l Loader) Option {
	return func(c *config) {
		c.loader = l
	}
}

// WithCDNBaseURL overrides the content delivery network queried when a
// package is not available locally. The default is unpkg.com.
func WithCDNBaseURL(base string) Option {
	return func(c *config) {
		c.cdnBaseURL = base
	}
}

// WithLogger sets the logger. The default logger is disabled; the fallback
// notice is emitted at info level.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMemoryLimit sets the maximum memory (in bytes) for the QuickJS runtime.
// Zero means no limit.
func WithMemoryLimit(bytes uint64) Option {
	return func(c *config) {
		c.memoryLimit = bytes
	}
}

// WithTimeout sets the maximum duration for a single render operation.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithTextMeasurement controls whether Go-side text measurement is enabled.
// When enabled, text widths are computed using go-text/typesetting for
// accurate widget layout. When disabled, a rough estimate is used.
func WithTextMeasurement(enabled bool) Option {
	return func(c *config) {
		c.textMeasure = enabled
	}
}

// WithManagerVersion selects the vendored widget-manager version set, e.g.
// "hm1_0". The default is read from the vendored version index.
func WithManagerVersion(key string) Option {
	return func(c *config) {
		c.version = key
	}
}

// WithModules registers additional modules into the local registry before
// rendering, alongside the vendored framework set.
func WithModules(modules ...Module) Option {
	return func(c *config) {
		c.extra = append(c.extra, modules...)
	}
}
