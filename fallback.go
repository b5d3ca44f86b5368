package nbembed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultCDNBaseURL is the content delivery network queried when a package
// cannot be resolved locally.
const DefaultCDNBaseURL = "https://unpkg.com"

// FallbackResolver resolves versioned packages with a two-stage strategy:
// first locally through a Resolver, then from a CDN. The CDN attempt is made
// at most once per call and only when the local failure names the module that
// could not be resolved.
type FallbackResolver struct {
	// Resolver performs the local resolution attempt. Required.
	Resolver Resolver

	// Loader fetches the CDN bundle on fallback. Defaults to an HTTPLoader
	// restricted to the CDN's host.
	Loader Loader

	// BaseURL of the CDN. Defaults to DefaultCDNBaseURL.
	BaseURL string

	// Logger receives the fallback notice. Defaults to a disabled logger.
	Logger zerolog.Logger
}

// NewFallbackResolver creates a FallbackResolver over local with default CDN
// settings.
func NewFallbackResolver(local Resolver) *FallbackResolver {
	return &FallbackResolver{
		Resolver: local,
		Logger:   zerolog.Nop(),
	}
}

// BundleURL returns the CDN URL for a package's distribution bundle.
func (f *FallbackResolver) BundleURL(name, version string) string {
	base := f.BaseURL
	if base == "" {
		base = DefaultCDNBaseURL
	}
	return fmt.Sprintf("%s/%s@%s/dist/index.js", strings.TrimSuffix(base, "/"), name, version)
}

// ResolvePackage resolves the package name at the given version.
//
// The local attempt asks the Resolver for "<name>.js". If that fails with a
// *ModuleLoadError naming the failed module, a single fallback notice is
// logged and the package bundle is fetched from the CDN. A local failure that
// does not name a module is swallowed: ResolvePackage returns (nil, nil).
// This mirrors the loading behavior expected by the widget manager, which
// treats such partial failures as absent optional modules.
func (f *FallbackResolver) ResolvePackage(ctx context.Context, name, version string) (*Module, error) {
	if f.Resolver == nil {
		return nil, ErrNoResolver
	}
	if name == "" {
		return nil, &ModuleLoadError{ID: name}
	}

	modules, err := f.Resolver.Resolve(ctx, name+".js")
	if err == nil {
		if len(modules) == 0 {
			return nil, &ModuleLoadError{ID: name + ".js"}
		}
		m := modules[0]
		return &m, nil
	}

	if errors.Is(err, ErrNoResolver) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	var loadErr *ModuleLoadError
	if !errors.As(err, &loadErr) || loadErr.ID == "" {
		f.Logger.Debug().
			Str("package", name).
			Str("version", version).
			Err(err).
			Msg("ignoring unidentified module load failure")
		return nil, nil
	}

	f.Logger.Info().
		Str("package", name).
		Str("version", version).
		Msgf("Falling back to unpkg.com for %s@%s", name, version)

	uri := f.BundleURL(name, version)
	loader := f.Loader
	if loader == nil {
		loader = &HTTPLoader{AllowedDomains: []string{hostOf(uri)}}
	}

	sanitized, err := loader.Sanitize(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("nbembed: fallback for %s@%s: %w", name, version, err)
	}
	src, err := loader.Load(ctx, sanitized)
	if err != nil {
		return nil, fmt.Errorf("nbembed: fallback for %s@%s: %w", name, version, err)
	}

	return &Module{Name: name, Version: version, Source: src}, nil
}

// hostOf extracts the host portion of an http(s) URL. Best effort: returns
// an empty string for malformed input, which makes the allowlist reject all.
func hostOf(uri string) string {
	rest, ok := strings.CutPrefix(uri, "https://")
	if !ok {
		rest, ok = strings.CutPrefix(uri, "http://")
		if !ok {
			return ""
		}
	}
	if i := strings.IndexAny(rest, "/:"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
