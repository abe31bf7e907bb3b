package engine

import (
	"maps"
	"sort"

	"github.com/leapstack-labs/transvm/pkg/core"
)

// Request describes one launch: the modules to link, the models to bind and
// where they are stored. Requests are values; Refine returns a new one.
type Request struct {
	// Launcher names the registered launcher, "vm" when empty.
	Launcher string
	// Module is the locator of the main module.
	Module string
	// Overlays are module locators applied in order over Module.
	Overlays []string
	// Libraries maps library names to module or script locators.
	Libraries map[string]string

	// Sources, Targets and InOut map model names to reference models.
	Sources map[string]string
	Targets map[string]string
	InOut   map[string]string

	// Paths maps model names to storage locations.
	Paths map[string]string

	Options core.Options
}

// clone copies the request's maps so the copy can be changed freely.
func (r Request) clone() Request {
	out := r
	out.Overlays = append([]string(nil), r.Overlays...)
	out.Libraries = maps.Clone(r.Libraries)
	out.Sources = cloneOrEmpty(r.Sources)
	out.Targets = cloneOrEmpty(r.Targets)
	out.InOut = cloneOrEmpty(r.InOut)
	out.Paths = cloneOrEmpty(r.Paths)
	return out
}

func cloneOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return make(map[string]string)
	}
	return maps.Clone(m)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
