package grading

import (
	"fmt"
	"strings"
)

// Normalize canonicalizes a value for comparison: stringified, trimmed,
// lowercased, with internal whitespace runs collapsed to one space.
// nil maps to the empty string.
func Normalize(value any) string {
	var raw string
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		raw = v
	case *string:
		if v == nil {
			return ""
		}
		raw = *v
	case fmt.Stringer:
		raw = v.String()
	default:
		raw = fmt.Sprint(v)
	}

	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

func normalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[Normalize(v)] = struct{}{}
	}
	return set
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
