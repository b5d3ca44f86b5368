// Command nbembed renders Jupyter widgets embedded in HTML pages.
//
// Usage:
//
//	nbembed render -i page.html -o out.html
//	nbembed render -i page.html                # stdout
//	cat page.html | nbembed render > out.html  # stdin
//	nbembed render -i page.html -element main  # one element's subtree
//	nbembed versions                           # vendored framework versions
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/nbembed/nbembed"
	"github.com/nbembed/nbembed/internal/runtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "nbembed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: nbembed <command> [flags]\n\nCommands:\n  render    Render embedded widgets in an HTML page\n  versions  List vendored widget-manager versions")
	}

	command := os.Args[1]
	switch command {
	case "render":
		return runRender(os.Args[2:])
	case "versions":
		return runVersions()
	default:
		return fmt.Errorf("unknown command %q (expected render or versions)", command)
	}
}

func runRender(args []string) (err error) {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	input := fs.String("i", "", "input HTML file (- or omit for stdin)")
	output := fs.String("o", "", "output HTML file (omit for stdout)")
	element := fs.String("element", "", "render only the subtree of this element id")
	allowHTTP := fs.Bool("allow-http", false, "allow the unpkg.com fallback and HTTP(S) widget data")
	cdn := fs.String("cdn", "", "override the fallback CDN base URL")
	timeout := fs.Duration("timeout", 30*time.Second, "maximum render duration")
	verbose := fs.Bool("v", false, "log fallback notices to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	page, err := readInput(*input)
	if err != nil {
		return err
	}

	opts := []nbembed.Option{nbembed.WithTimeout(*timeout)}
	if *allowHTTP {
		opts = append(opts, nbembed.WithLoader(nbembed.NewHTTPLoader(nil)))
	}
	if *cdn != "" {
		opts = append(opts, nbembed.WithCDNBaseURL(*cdn))
	}
	if *verbose {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		opts = append(opts, nbembed.WithLogger(logger))
	}

	r, err := nbembed.New(opts...)
	if err != nil {
		return err
	}
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var out []byte
	if *element != "" {
		out, err = r.RenderWidgetsIn(ctx, page, *element)
	} else {
		out, err = r.RenderWidgets(ctx, page)
	}
	if err != nil {
		return err
	}

	return writeOutput(*output, out)
}

func runVersions() error {
	versions, err := runtime.AvailableVersions()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(versions))
	for k := range versions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := versions[k]
		fmt.Printf("%s\thtml-manager %s\tbase %s\tcontrols %s\n", k, v.HTMLManager, v.Base, v.Controls)
	}
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
