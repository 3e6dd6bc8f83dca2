package workflow

import (
	"regexp"

	"github.com/chazuruo/drover/internal/errs"
)

// placeholderRegex matches ${NAME} template variables.
var placeholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Placeholders returns the distinct variable names referenced by the
// workflow's templated fields, in first-appearance order.
func Placeholders(wf *Workflow) []string {
	var names []string
	seen := make(map[string]struct{})

	collect := func(s string) {
		for _, m := range placeholderRegex.FindAllStringSubmatch(s, -1) {
			if _, ok := seen[m[1]]; ok {
				continue
			}
			seen[m[1]] = struct{}{}
			names = append(names, m[1])
		}
	}

	collect(wf.Model)
	if wf.Env != nil {
		collect(wf.Env.ArtifactsDir)
	}
	return names
}

// Resolve returns a copy of wf with every ${VAR} placeholder in the model
// reference and the artifacts directory substituted via lookup. The input
// workflow is never mutated. If any variable cannot be resolved, Resolve
// returns a ConfigError naming all of them; a placeholder must never reach
// the engine as a literal.
func Resolve(wf *Workflow, lookup func(string) (string, bool)) (*Workflow, error) {
	out := *wf
	if wf.Env != nil {
		env := *wf.Env
		out.Env = &env
	}

	var missing []string
	seen := make(map[string]struct{})

	substitute := func(s string) string {
		return placeholderRegex.ReplaceAllStringFunc(s, func(m string) string {
			name := placeholderRegex.FindStringSubmatch(m)[1]
			if v, ok := lookup(name); ok {
				return v
			}
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				missing = append(missing, name)
			}
			return m
		})
	}

	out.Model = substitute(wf.Model)
	if out.Env != nil {
		out.Env.ArtifactsDir = substitute(out.Env.ArtifactsDir)
	}

	if len(missing) > 0 {
		return nil, &errs.ConfigError{Missing: missing}
	}
	return &out, nil
}
