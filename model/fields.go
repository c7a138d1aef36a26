package model

import "sort"

// UnionFields merges field lists into a single sorted, de-duplicated list.
// A wildcard in any input expands to the full schema field list; the result
// is always clamped to schema regardless of what the inputs name.
func UnionFields(schema []string, fieldLists ...[]string) []string {
	declared := make(map[string]bool, len(schema))
	for _, f := range schema {
		declared[f] = true
	}

	out := make(map[string]bool)
	for _, fields := range fieldLists {
		for _, f := range fields {
			if f == FieldWildcard {
				for _, sf := range schema {
					out[sf] = true
				}
				continue
			}
			if declared[f] {
				out[f] = true
			}
		}
	}

	result := make([]string, 0, len(out))
	for f := range out {
		result = append(result, f)
	}
	sort.Strings(result)
	return result
}

// ApplyReadMask returns a copy of doc containing only the allowed fields.
// Intended for output redaction in downstream handlers.
func ApplyReadMask(doc map[string]any, allowed []string) map[string]any {
	if doc == nil {
		return nil
	}
	allow := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		allow[f] = true
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if allow[k] {
			out[k] = v
		}
	}
	return out
}

// ApplyWriteMask splits input into the writable subset and the list of
// rejected field names. Intended for input sanitization: callers typically
// 403 when rejected is non-empty, or silently drop, per endpoint policy.
func ApplyWriteMask(input map[string]any, allowed []string) (accepted map[string]any, rejected []string) {
	if input == nil {
		return nil, nil
	}
	allow := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		allow[f] = true
	}
	accepted = make(map[string]any, len(input))
	for k, v := range input {
		if allow[k] {
			accepted[k] = v
		} else {
			rejected = append(rejected, k)
		}
	}
	sort.Strings(rejected)
	return accepted, rejected
}
