package credential

import (
	"fmt"
	"strconv"
	"strings"
)

type claimType int

const (
	anyClaim claimType = iota
	stringClaim
	numberClaim
)

// claimPresent reports whether claim is set, not null, not an empty string, and of the wanted type.
func claimPresent(subject map[string]any, claim string, want claimType) bool {
	v, ok := subject[claim]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString && s == "" {
		return false
	}
	switch want {
	case stringClaim:
		_, ok = v.(string)
		return ok
	case numberClaim:
		_, ok = toNumber(v)
		return ok
	default:
		return true
	}
}

// allPresent checks every claim in required as a string claim.
func allPresent(subject map[string]any, required []string) bool {
	for _, claim := range required {
		if !claimPresent(subject, claim, stringClaim) {
			return false
		}
	}
	return true
}

// toStringByJoin flattens a list value into a comma separated string and leaves anything else as is.
func toStringByJoin(v any) any {
	switch list := v.(type) {
	case []string:
		return strings.Join(list, ", ")
	case []any:
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	default:
		return v
	}
}

// allowListed copies the allow-listed claims of input, flattening lists.
func allowListed(input Claims, allowed []string) map[string]any {
	subject := make(map[string]any)
	for _, claim := range allowed {
		if v, ok := input[claim]; ok {
			subject[claim] = toStringByJoin(v)
		}
	}
	return subject
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
