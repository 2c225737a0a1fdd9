package workflow

import "strings"

// resolveStepInputs merges a step's static inputs with the workflow-level
// inputs (workflow wins on key collisions) and substitutes references.
//
// A string value starting with "$" names another step: "$analyze" becomes
// that step's whole result once it is present in the results map, and
// "$analyze.report.score" extracts a dotted path into the result. A
// reference to a step that has not run, does not exist, or whose result
// lacks the path is left as the literal string.
func resolveStepInputs(step *Step, workflowInputs map[string]any, results map[string]any) map[string]any {
	merged := make(map[string]any, len(step.Inputs)+len(workflowInputs))
	for k, v := range step.Inputs {
		merged[k] = v
	}
	for k, v := range workflowInputs {
		merged[k] = v
	}
	for k, v := range merged {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, "$") {
			continue
		}
		if resolved, ok := resolveReference(s, results); ok {
			merged[k] = resolved
		}
	}
	return merged
}

// resolveReference resolves a "$step" or "$step.path" reference against the
// completed step results. The second return is false when the reference
// cannot be resolved and the literal must be kept.
func resolveReference(ref string, results map[string]any) (any, bool) {
	ref = strings.TrimPrefix(ref, "$")
	stepID := ref
	path := ""
	if idx := strings.Index(ref, "."); idx >= 0 {
		stepID = ref[:idx]
		path = ref[idx+1:]
	}
	result, ok := results[stepID]
	if !ok {
		return nil, false
	}
	if path == "" {
		return result, true
	}
	return extractPath(result, strings.Split(path, "."))
}

// extractPath walks string-keyed maps along the path segments.
func extractPath(value any, segments []string) (any, bool) {
	current := value
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
