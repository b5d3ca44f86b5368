// Command vendor-widgets downloads the widget framework ESM bundles from
// jsDelivr, resolves all transitive dependencies, rewrites import paths to
// canonical module names, and saves the result to internal/js/modules/.
//
// It also generates a manifest.json with versions, checksums, and a
// topological load order suitable for QuickJS module registration.
//
// Multiple manager versions are supported. Use the -version flag to vendor
// only a single version set (e.g. -version hm1_0).
package main

import (
	"crypto/sha256"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

const (
	jsdelivrBase  = "https://cdn.jsdelivr.net"
	maxConcurrent = 8
)

// versionSet defines a widget-manager version to vendor. The base and
// controls versions are auto-resolved from jsDelivr's transitive
// dependencies.
type versionSet struct {
	key                string // directory name, e.g. "hm1_0"
	htmlManagerVersion string // e.g. "1.0.24"
}

var versionSets = []versionSet{
	{key: "hm1_0", htmlManagerVersion: "1.0.24"},
}

const managerPackage = "@jupyter-widgets/html-manager"

// VersionIndex is written to internal/js/modules/versions.json.
// It lists all available manager version sets and the default.
type VersionIndex struct {
	Default  string                `json:"default"`
	Versions map[string]VersionDef `json:"versions"`
}

// VersionDef describes a single vendored manager version set.
type VersionDef struct {
	HTMLManagerVersion string `json:"htmlManagerVersion"`
	BaseVersion        string `json:"baseVersion"`
	ControlsVersion    string `json:"controlsVersion"`
}

// Manifest is written to internal/js/modules/{key}/manifest.json.
type Manifest struct {
	HTMLManagerVersion string           `json:"htmlManagerVersion"`
	Modules            []ManifestModule `json:"modules"`
}

type ManifestModule struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	SHA256   string `json:"sha256"`
	Filename string `json:"filename"`
}

// module tracks a downloaded ESM module.
type module struct {
	name    string // canonical name, e.g. "@jupyter-widgets/base"
	version string // e.g. "6.0.10"
	source  string // rewritten source code
	deps    []string
}

var (
	// Matches jsDelivr ESM import paths like: from"/npm/@jupyter-widgets/base@6.0.10/+esm"
	// or: from "/npm/backbone@1.4.1/+esm"
	importPathRe = regexp.MustCompile(`from\s*"(/npm/((?:@[^/@]+/)?[^/@]+)@([^/]+)/\+esm)"`)

	// Matches export-from statements: export{...}from"/npm/..."
	exportPathRe = regexp.MustCompile(`(?:export\s*\{[^}]*\}\s*from|export\s*\*\s*from)\s*"(/npm/((?:@[^/@]+/)?[^/@]+)@([^/]+)/\+esm)"`)
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("vendor-widgets: ")

	versionFlag := flag.String("version", "", "vendor only this version set key (e.g. hm1_0)")
	flag.Parse()

	sets := versionSets
	if *versionFlag != "" {
		var found bool
		for _, vs := range versionSets {
			if vs.key == *versionFlag {
				sets = []versionSet{vs}
				found = true
				break
			}
		}
		if !found {
			var keys []string
			for _, vs := range versionSets {
				keys = append(keys, vs.key)
			}
			log.Fatalf("unknown version %q, available: %s", *versionFlag, strings.Join(keys, ", "))
		}
	}

	outDir := filepath.Join("internal", "js", "modules")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("creating output dir: %v", err)
	}

	index := VersionIndex{
		Default:  "hm1_0",
		Versions: make(map[string]VersionDef),
	}

	for _, vs := range sets {
		def, err := vendorVersion(vs)
		if err != nil {
			log.Fatalf("vendoring %s: %v", vs.key, err)
		}
		index.Versions[vs.key] = def
	}

	indexJSON, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		log.Fatalf("marshaling versions index: %v", err)
	}
	indexPath := filepath.Join(outDir, "versions.json")
	if err := os.WriteFile(indexPath, append(indexJSON, '\n'), 0o644); err != nil {
		log.Fatalf("writing versions index: %v", err)
	}
	log.Printf("wrote versions index to %s", indexPath)
}

func vendorVersion(vs versionSet) (VersionDef, error) {
	def := VersionDef{HTMLManagerVersion: vs.htmlManagerVersion}

	outDir := filepath.Join("internal", "js", "modules", vs.key)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return def, fmt.Errorf("creating output dir: %w", err)
	}

	log.Printf("[%s] downloading %s %s from jsDelivr...", vs.key, managerPackage, vs.htmlManagerVersion)

	modules, err := fetchTransitive(vs.key, managerPackage, vs.htmlManagerVersion)
	if err != nil {
		return def, err
	}

	for name, mod := range modules {
		switch name {
		case "@jupyter-widgets/base":
			def.BaseVersion = mod.version
		case "@jupyter-widgets/controls":
			def.ControlsVersion = mod.version
		}
	}
	if def.BaseVersion == "" {
		return def, fmt.Errorf("@jupyter-widgets/base version not resolved from dependencies")
	}

	log.Printf("[%s] downloaded %d modules, computing load order...", vs.key, len(modules))

	// Topological sort for load order.
	order, err := topoSort(modules)
	if err != nil {
		return def, fmt.Errorf("topological sort: %w", err)
	}

	// Write module files and build manifest.
	manifest := Manifest{
		HTMLManagerVersion: vs.htmlManagerVersion,
		Modules:            make([]ManifestModule, 0, len(order)),
	}

	for _, name := range order {
		mod := modules[name]
		filename := safeFilename(name)
		outPath := filepath.Join(outDir, filename)

		if err := os.WriteFile(outPath, []byte(mod.source), 0o644); err != nil {
			return def, fmt.Errorf("writing %s: %w", outPath, err)
		}

		hash := sha256.Sum256([]byte(mod.source))
		manifest.Modules = append(manifest.Modules, ManifestModule{
			Name:     name,
			Version:  mod.version,
			SHA256:   fmt.Sprintf("%x", hash),
			Filename: filename,
		})
	}

	manifestPath := filepath.Join(outDir, "manifest.json")
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return def, fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, append(manifestJSON, '\n'), 0o644); err != nil {
		return def, fmt.Errorf("writing manifest: %w", err)
	}

	log.Printf("[%s] wrote %d modules + manifest to %s", vs.key, len(order), outDir)
	for _, m := range manifest.Modules {
		log.Printf("  [%s] %s@%s (%s)", vs.key, m.Name, m.Version, m.Filename)
	}

	return def, nil
}

// fetchTransitive downloads the seed package and every transitive dependency
// it imports, fetching each dependency wave in parallel.
func fetchTransitive(setKey, seedName, seedVersion string) (map[string]*module, error) {
	type queueItem struct {
		name    string
		version string
	}

	modules := make(map[string]*module)
	queue := []queueItem{{seedName, seedVersion}}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("[%s] fetching modules", setKey)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
	)
	defer bar.Finish()

	for len(queue) > 0 {
		wave := queue
		queue = nil

		var mu sync.Mutex
		var g errgroup.Group
		g.SetLimit(maxConcurrent)

		for _, item := range wave {
			mu.Lock()
			_, exists := modules[item.name]
			if !exists {
				// Reserve the slot so concurrent wave entries dedupe.
				modules[item.name] = nil
			}
			mu.Unlock()
			if exists {
				continue
			}

			g.Go(func() error {
				src, err := fetchESM(item.name, item.version)
				if err != nil {
					return fmt.Errorf("fetching %s@%s: %w", item.name, item.version, err)
				}

				mod := &module{name: item.name, version: item.version}
				rewritten, deps := rewriteImports(src)
				mod.source = rewritten
				mod.deps = make([]string, 0, len(deps))

				mu.Lock()
				for depName, depVersion := range deps {
					mod.deps = append(mod.deps, depName)
					if _, seen := modules[depName]; !seen {
						queue = append(queue, queueItem{depName, depVersion})
					}
				}
				sort.Strings(mod.deps)
				modules[item.name] = mod
				mu.Unlock()

				bar.Add(1)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return modules, nil
}

// rewriteImports replaces jsDelivr URL imports with canonical module names
// and returns the dependencies found (name → version).
func rewriteImports(src string) (string, map[string]string) {
	deps := make(map[string]string)

	collect := func(re *regexp.Regexp) {
		for _, matches := range re.FindAllStringSubmatch(src, -1) {
			deps[matches[2]] = matches[3]
		}
	}
	collect(importPathRe)
	collect(exportPathRe)

	rewrite := func(re *regexp.Regexp, s string) string {
		return re.ReplaceAllStringFunc(s, func(match string) string {
			sub := re.FindStringSubmatch(match)
			return strings.Replace(match, sub[1], sub[2], 1)
		})
	}
	rewritten := rewrite(importPathRe, src)
	rewritten = rewrite(exportPathRe, rewritten)

	return rewritten, deps
}

func fetchESM(name, version string) (string, error) {
	url := fmt.Sprintf("%s/npm/%s@%s/+esm", jsdelivrBase, name, version)

	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response from %s: %w", url, err)
	}

	return string(body), nil
}

// safeFilename turns a module name into a flat filename, e.g.
// "@jupyter-widgets/base" → "@jupyter-widgets__base.js".
func safeFilename(name string) string {
	return strings.ReplaceAll(name, "/", "__") + ".js"
}

// topoSort computes a topological ordering of modules such that dependencies
// come before dependents. Uses Kahn's algorithm.
func topoSort(modules map[string]*module) ([]string, error) {
	inDegree := make(map[string]int)
	dependents := make(map[string][]string) // dep → list of modules that depend on it

	for name := range modules {
		if _, ok := inDegree[name]; !ok {
			inDegree[name] = 0
		}
	}

	for name, mod := range modules {
		for _, dep := range mod.deps {
			if _, ok := modules[dep]; !ok {
				continue // external dep not in our set, skip
			}
			dependents[dep] = append(dependents[dep], name)
			inDegree[name]++
		}
	}

	// Seed queue with zero in-degree nodes.
	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue) // deterministic order

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		deps := dependents[node]
		sort.Strings(deps)

		for _, dep := range deps {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(modules) {
		return nil, fmt.Errorf("cycle detected: got %d of %d modules", len(order), len(modules))
	}

	return order, nil
}
