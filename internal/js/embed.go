// Package js embeds the vendored widget framework modules and the bridge
// script. Module bundles are populated by cmd/vendor-widgets; the repository
// ships only the version index until that tool has run.
package js

import "embed"

//go:embed all:modules
var Modules embed.FS

//go:embed bridge.js
var BridgeJS string
