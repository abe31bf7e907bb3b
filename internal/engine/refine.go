package engine

import (
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/transvm/internal/modelstore"
	"github.com/leapstack-labs/transvm/pkg/core"
)

// RefinedSuffix is appended to a model name to form the path key its
// refined version is written to.
const RefinedSuffix = "_refined"

// RefinedName is the Paths key the refined version of model name is saved
// under.
func RefinedName(name string) string { return name + RefinedSuffix }

// Refine applies the refining rewrite when the request's options ask for
// refining trace mode, and returns req unchanged otherwise.
//
// The refined model is the only source model, or Options.RefinedModel when
// there are several. It is bound in-place as an inout model under its own
// name. The first target (by name) with the same reference model is dropped,
// and its storage location becomes the location the refined model is saved
// to.
func Refine(req Request) (Request, error) {
	if !req.Options.RefiningTraceMode {
		return req, nil
	}

	src := req.Options.RefinedModel
	switch {
	case src != "":
		if _, ok := req.Sources[src]; !ok {
			return req, &core.BindFault{Names: []string{src}, Msg: "refined model is not a source model"}
		}
	case len(req.Sources) == 1:
		for name := range req.Sources {
			src = name
		}
	default:
		return req, &core.BindFault{
			Names: sortedKeys(req.Sources),
			Msg:   "refining trace mode needs exactly one source model or an explicit refined_model",
		}
	}

	out := req.clone()
	ref := out.Sources[src]
	delete(out.Sources, src)
	out.InOut[src] = ref

	for _, name := range sortedKeys(out.Targets) {
		if out.Targets[name] != ref {
			continue
		}
		delete(out.Targets, name)
		if loc, ok := out.Paths[name]; ok {
			out.Paths[RefinedName(src)] = loc
		}
		break
	}
	return out, nil
}

// ConvertLocation maps a launch-configuration location to a model factory
// location. ext:<path> becomes file:<path>, uri:<u> becomes <u>, and bare
// relative paths are resolved against baseDir. Other schemes pass through.
func ConvertLocation(location, baseDir string) string {
	switch {
	case strings.HasPrefix(location, "ext:"):
		return modelstore.SchemeFile + ":" + strings.TrimPrefix(location, "ext:")
	case strings.HasPrefix(location, "uri:"):
		return strings.TrimPrefix(location, "uri:")
	}
	scheme, rest := modelstore.SplitLocation(location)
	if scheme != modelstore.SchemeFile || rest != location {
		return location
	}
	if baseDir == "" || filepath.IsAbs(location) {
		return location
	}
	return filepath.Join(baseDir, location)
}
