// Package resvg rasterizes SVG to PNG using the resvg library compiled to
// WASM. Used to snapshot SVG output produced by rendered widget views.
package resvg

import _ "embed"

//go:embed resvg.wasm
var wasmBytes []byte
