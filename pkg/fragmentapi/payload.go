package fragmentapi

// CloneMetadata deep-copies a fragment metadata map so consumers cannot
// mutate shared state. Passing nil or an empty map returns nil.
func CloneMetadata(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(values))
	for key, value := range values {
		cloned[key] = cloneValue(value)
	}
	return cloned
}

func cloneValue(value any) any {
	if value == nil {
		return nil
	}
	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			return map[string]any{}
		}
		cloned := make(map[string]any, len(typed))
		for key, element := range typed {
			cloned[key] = cloneValue(element)
		}
		return cloned
	case []any:
		if len(typed) == 0 {
			return []any{}
		}
		cloned := make([]any, len(typed))
		for i, element := range typed {
			cloned[i] = cloneValue(element)
		}
		return cloned
	case []string:
		if len(typed) == 0 {
			return []string{}
		}
		cloned := make([]string, len(typed))
		copy(cloned, typed)
		return cloned
	case []map[string]any:
		if len(typed) == 0 {
			return []map[string]any{}
		}
		cloned := make([]map[string]any, len(typed))
		for i, element := range typed {
			inner := make(map[string]any, len(element))
			for key, nested := range element {
				inner[key] = cloneValue(nested)
			}
			cloned[i] = inner
		}
		return cloned
	default:
		return typed
	}
}
