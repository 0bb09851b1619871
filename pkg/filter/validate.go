package filter

import "fmt"

// Validate walks a filter tree structurally without evaluating it against
// any row, the same checks the supervisor runs at startup so a
// misconfigured filter is a fatal Configuration error rather than a
// runtime surprise.
func Validate(f Filter) error {
	if len(f) == 0 {
		return nil
	}
	return validateNode(f)
}

func validateNode(node map[string]any) error {
	for key, value := range node {
		if !isSupportedOp(key) {
			continue // bare field entry, nothing further to validate
		}
		switch key {
		case "and", "or":
			list, ok := value.([]any)
			if !ok {
				return &MalformedFilterError{Reason: fmt.Sprintf("%q requires a list of conditions", key)}
			}
			for _, item := range list {
				cond, ok := item.(map[string]any)
				if !ok {
					return &MalformedFilterError{Reason: fmt.Sprintf("each condition in %q must be an object", key)}
				}
				if err := validateNode(cond); err != nil {
					return err
				}
			}
		case "not":
			cond, ok := value.(map[string]any)
			if !ok {
				return &MalformedFilterError{Reason: "'not' requires an object condition"}
			}
			if err := validateNode(cond); err != nil {
				return err
			}
		default: // eq, gt, gte, lt, lte
			if _, ok := value.(map[string]any); !ok {
				return &MalformedFilterError{Reason: fmt.Sprintf("%q requires an object of field conditions", key)}
			}
		}
	}
	return nil
}
