package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/chazuruo/drover/internal/errs"
)

// Validate checks a workflow document in two passes and returns the decoded
// Workflow only if both pass.
//
// The structural pass checks the document against the embedded JSON schema
// and collects every violation with its path. The semantic pass then checks
// what the schema cannot express: pairwise-unique step ids, the per-type
// mandatory field, policy budget ranges, and glob pattern syntax.
//
// The engine only ever receives a Workflow that came out of Validate.
func Validate(data []byte) (*Workflow, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &errs.ValidationError{Issues: []errs.Issue{
			{Message: fmt.Sprintf("not valid YAML: %v", err)},
		}}
	}

	if issues := structuralIssues(doc); len(issues) > 0 {
		return nil, &errs.ValidationError{Issues: issues}
	}

	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, &errs.ValidationError{Issues: []errs.Issue{
			{Message: fmt.Sprintf("cannot decode workflow: %v", err)},
		}}
	}

	if issues := semanticIssues(&wf); len(issues) > 0 {
		return nil, &errs.ValidationError{Issues: issues}
	}

	return &wf, nil
}

// structuralIssues validates the generically-decoded document against the
// embedded schema and converts every cause into an Issue.
func structuralIssues(doc any) []errs.Issue {
	normalized, err := normalize(doc)
	if err != nil {
		return []errs.Issue{{Message: fmt.Sprintf("document is not JSON-compatible: %v", err)}}
	}

	if err := workflowSchema.Validate(normalized); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return collectIssues(verr)
		}
		return []errs.Issue{{Message: err.Error()}}
	}
	return nil
}

// normalize round-trips a decoded YAML value through JSON so the schema
// library sees only JSON-native types.
func normalize(doc any) (any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// collectIssues recursively extracts leaf validation errors. Intermediate
// nodes only repeat "doesn't validate with" noise, so only leaves are kept.
func collectIssues(verr *jsonschema.ValidationError) []errs.Issue {
	if len(verr.Causes) == 0 {
		return []errs.Issue{{
			Path:    pointerToPath(verr.InstanceLocation),
			Message: verr.Message,
		}}
	}

	var issues []errs.Issue
	for _, cause := range verr.Causes {
		issues = append(issues, collectIssues(cause)...)
	}
	return issues
}

// pointerToPath converts a JSON pointer ("/steps/2/policy/max_edits") into
// the dotted form used in messages ("steps[2].policy.max_edits").
func pointerToPath(ptr string) string {
	if ptr == "" || ptr == "/" {
		return ""
	}

	var b strings.Builder
	for _, seg := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		seg = strings.ReplaceAll(seg, "~1", "/")
		seg = strings.ReplaceAll(seg, "~0", "~")
		if isDigits(seg) {
			fmt.Fprintf(&b, "[%s]", seg)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// semanticIssues checks the rules the schema cannot express.
func semanticIssues(wf *Workflow) []errs.Issue {
	var issues []errs.Issue

	// The first duplicate id is reported; the remaining checks still run.
	seen := make(map[string]struct{}, len(wf.Steps))
	for i, s := range wf.Steps {
		if _, dup := seen[s.ID]; dup {
			issues = append(issues, errs.Issue{
				Path:    fmt.Sprintf("steps[%d].id", i),
				Message: fmt.Sprintf("duplicate step id %q", s.ID),
			})
			break
		}
		seen[s.ID] = struct{}{}
	}

	for i, s := range wf.Steps {
		switch s.Type {
		case StepPrompt:
			if s.PromptFile == "" {
				issues = append(issues, errs.Issue{
					Path:    fmt.Sprintf("steps[%d].prompt_file", i),
					Message: fmt.Sprintf("prompt step %q requires prompt_file", s.ID),
				})
			}
		case StepCmd:
			if s.Command == "" {
				issues = append(issues, errs.Issue{
					Path:    fmt.Sprintf("steps[%d].command", i),
					Message: fmt.Sprintf("cmd step %q requires command", s.ID),
				})
			}
		case StepAgent:
			if s.Policy == nil {
				issues = append(issues, errs.Issue{
					Path:    fmt.Sprintf("steps[%d].policy", i),
					Message: fmt.Sprintf("agent step %q requires policy", s.ID),
				})
				continue
			}
			issues = append(issues, policyIssues(i, s.Policy)...)
		case StepApplyDiff:
			// approve defaults to false; nothing else is mandatory
		}
	}

	return issues
}

// policyIssues checks an agent step's budget values.
func policyIssues(stepIdx int, p *Policy) []errs.Issue {
	var issues []errs.Issue
	path := func(field string) string {
		return fmt.Sprintf("steps[%d].policy.%s", stepIdx, field)
	}

	if p.TimeoutSeconds <= 0 {
		issues = append(issues, errs.Issue{Path: path("timeout_seconds"), Message: "must be positive"})
	}
	if p.MaxFiles <= 0 {
		issues = append(issues, errs.Issue{Path: path("max_files"), Message: "must be positive"})
	}
	if p.MaxEdits < 1 {
		issues = append(issues, errs.Issue{Path: path("max_edits"), Message: "must be at least 1"})
	}
	if len(p.AllowedPaths) == 0 {
		issues = append(issues, errs.Issue{Path: path("allowed_paths"), Message: "must not be empty"})
	}
	for j, pattern := range p.AllowedPaths {
		if !doublestar.ValidatePattern(pattern) {
			issues = append(issues, errs.Issue{
				Path:    fmt.Sprintf("steps[%d].policy.allowed_paths[%d]", stepIdx, j),
				Message: fmt.Sprintf("invalid glob pattern %q", pattern),
			})
		}
	}

	return issues
}
