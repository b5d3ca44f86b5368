package nbembed

import (
	"errors"
	"fmt"

	"github.com/nbembed/nbembed/internal/runtime"
)

// ErrNotVendored is returned by New when the embedded widget framework
// modules have not been vendored yet. Run cmd/vendor-widgets to populate
// them.
var ErrNotVendored = runtime.ErrNotVendored

// ErrNoResolver is returned when a module load is attempted but no module
// resolver was configured. This is an environment error: it is reported
// immediately and never triggers the CDN fallback.
var ErrNoResolver = errors.New("nbembed: no module resolver configured")

// ModuleLoadError reports that the resolver failed to resolve a module.
// ID names the module that failed when it is known.
type ModuleLoadError struct {
	ID  string
	Err error
}

func (e *ModuleLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nbembed: loading module %q: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("nbembed: module %q not found", e.ID)
}

func (e *ModuleLoadError) Unwrap() error { return e.Err }
