package nbembed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Loader controls how external resources (CDN module bundles, widget data)
// are fetched. By default all loading is denied. Use NewHTTPLoader to permit
// HTTP(S) requests, or implement a custom Loader for fine-grained control.
type Loader interface {
	// Load fetches the content at the given URI.
	Load(ctx context.Context, uri string) ([]byte, error)

	// Sanitize validates and optionally transforms a URI before loading.
	// Return an error to deny access to a URI.
	Sanitize(ctx context.Context, uri string) (string, error)
}

// DenyLoader denies all resource loading. This is the default.
type DenyLoader struct{}

func (DenyLoader) Load(_ context.Context, uri string) ([]byte, error) {
	return nil, fmt.Errorf("nbembed: resource loading denied for %q (no loader configured)", uri)
}

func (DenyLoader) Sanitize(_ context.Context, uri string) (string, error) {
	return "", fmt.Errorf("nbembed: resource loading denied for %q (no loader configured)", uri)
}

// HTTPLoader allows loading resources over HTTP and HTTPS.
//
// AllowedDomains, when non-empty, restricts requests to the listed hosts
// (matched case-insensitively, ignoring the port). BaseURL, when set, is used
// to resolve relative URIs; without it relative URIs are rejected.
type HTTPLoader struct {
	Client         *http.Client
	AllowedDomains []string
	BaseURL        string
}

// NewHTTPLoader creates a loader that allows HTTP(S) requests.
// If client is nil, http.DefaultClient is used.
func NewHTTPLoader(client *http.Client) *HTTPLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLoader{Client: client}
}

func (l *HTTPLoader) Load(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("nbembed: failed to create request for %q: %w", uri, err)
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nbembed: failed to load %q: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("nbembed: HTTP %d loading %q", resp.StatusCode, uri)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("nbembed: failed to read response from %q: %w", uri, err)
	}

	return data, nil
}

func (l *HTTPLoader) Sanitize(_ context.Context, uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("nbembed: invalid URI %q: %w", uri, err)
	}

	if !parsed.IsAbs() {
		if l.BaseURL == "" {
			return "", fmt.Errorf("nbembed: relative URI %q requires a BaseURL", uri)
		}
		base, err := url.Parse(l.BaseURL)
		if err != nil {
			return "", fmt.Errorf("nbembed: invalid BaseURL %q: %w", l.BaseURL, err)
		}
		parsed = base.ResolveReference(parsed)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("nbembed: unsupported scheme %q in URI %q (only http/https allowed)", scheme, uri)
	}

	if parsed.User != nil {
		return "", fmt.Errorf("nbembed: URI %q contains userinfo, refusing to load", uri)
	}

	if len(l.AllowedDomains) > 0 {
		host := strings.ToLower(parsed.Hostname())
		allowed := false
		for _, d := range l.AllowedDomains {
			if host == strings.ToLower(d) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", fmt.Errorf("nbembed: domain %q not in allowed list for URI %q", host, uri)
		}
	}

	return parsed.String(), nil
}

// FileLoader serves files from a base directory on disk. It accepts relative
// paths only and uses os.Root so that symlinks cannot escape the base
// directory. Call Close when done to release the directory handle.
type FileLoader struct {
	BaseDir string

	mu   sync.Mutex
	root *os.Root
}

// NewFileLoader creates a FileLoader rooted at dir, verifying that the
// directory can be opened.
func NewFileLoader(dir string) (*FileLoader, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("nbembed: opening base directory %q: %w", dir, err)
	}
	return &FileLoader{BaseDir: dir, root: root}, nil
}

func (l *FileLoader) Sanitize(_ context.Context, uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("nbembed: invalid URI %q: %w", uri, err)
	}

	if parsed.Scheme != "" {
		return "", fmt.Errorf("nbembed: FileLoader only accepts relative paths, got scheme %q in %q", parsed.Scheme, uri)
	}

	cleaned := filepath.Clean(uri)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("nbembed: FileLoader rejects absolute path %q", uri)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("nbembed: FileLoader rejects path traversal in %q", uri)
	}

	return cleaned, nil
}

func (l *FileLoader) Load(_ context.Context, uri string) ([]byte, error) {
	root, err := l.openRoot()
	if err != nil {
		return nil, err
	}

	f, err := root.Open(uri)
	if err != nil {
		return nil, fmt.Errorf("nbembed: FileLoader failed to open %q: %w", uri, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("nbembed: FileLoader failed to read %q: %w", uri, err)
	}
	return data, nil
}

func (l *FileLoader) openRoot() (*os.Root, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.root == nil {
		root, err := os.OpenRoot(l.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("nbembed: opening base directory %q: %w", l.BaseDir, err)
		}
		l.root = root
	}
	return l.root, nil
}

// Close releases the directory handle. Closing a FileLoader that was never
// used, or closing it twice, is a no-op.
func (l *FileLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.root == nil {
		return nil
	}
	err := l.root.Close()
	l.root = nil
	return err
}

// StaticLoader always serves a fixed value, JSON-encoded. Useful for tests
// and for injecting inline data regardless of the requested URI.
type StaticLoader struct {
	Value any
}

func (l *StaticLoader) Sanitize(_ context.Context, uri string) (string, error) {
	return uri, nil
}

func (l *StaticLoader) Load(_ context.Context, _ string) ([]byte, error) {
	data, err := json.Marshal(l.Value)
	if err != nil {
		return nil, fmt.Errorf("nbembed: StaticLoader failed to encode value: %w", err)
	}
	return data, nil
}

// FallbackLoader tries each child loader in order and serves from the first
// one whose Sanitize accepts the URI and whose Load succeeds.
type FallbackLoader struct {
	children []Loader
}

// NewFallbackLoader creates a FallbackLoader over the given children.
func NewFallbackLoader(children ...Loader) *FallbackLoader {
	return &FallbackLoader{children: children}
}

func (l *FallbackLoader) Sanitize(ctx context.Context, uri string) (string, error) {
	var errs []error
	for _, c := range l.children {
		sanitized, err := c.Sanitize(ctx, uri)
		if err == nil {
			return sanitized, nil
		}
		errs = append(errs, err)
	}
	return "", fmt.Errorf("nbembed: no loader accepts %q: %w", uri, errors.Join(errs...))
}

func (l *FallbackLoader) Load(ctx context.Context, uri string) ([]byte, error) {
	var errs []error
	for _, c := range l.children {
		sanitized, err := c.Sanitize(ctx, uri)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		data, err := c.Load(ctx, sanitized)
		if err == nil {
			return data, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("nbembed: all loaders failed for %q: %w", uri, errors.Join(errs...))
}

// Close closes every child loader that implements io.Closer.
func (l *FallbackLoader) Close() error {
	var errs []error
	for _, c := range l.children {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
