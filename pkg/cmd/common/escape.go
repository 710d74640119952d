package common

import (
	"fmt"
	"strings"
)

// KnownVerbs are the API verbs recorded in audit events.
var KnownVerbs = []string{"create", "update", "patch", "delete", "deletecollection", "get", "list", "watch"}

// EscapeCELString escapes backslashes and single quotes so s can be embedded in
// a single-quoted CEL string literal without changing the expression.
//
// Example:
//
//	EscapeCELString("prod' || true || '") -> "prod\\' || true || \\'"
func EscapeCELString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}

// ValidateVerb checks that verb is one of KnownVerbs. Empty is allowed.
func ValidateVerb(verb string) error {
	if verb == "" {
		return nil
	}
	for _, v := range KnownVerbs {
		if v == verb {
			return nil
		}
	}
	return fmt.Errorf("unknown verb %q: must be one of %s", verb, strings.Join(KnownVerbs, ", "))
}

// AndFilters joins CEL clauses with &&. Empty clauses are skipped and each clause
// is parenthesized so operator precedence inside it is kept.
func AndFilters(clauses ...string) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		parts = append(parts, "("+c+")")
	}
	if len(parts) == 1 {
		return strings.TrimSuffix(strings.TrimPrefix(parts[0], "("), ")")
	}
	return strings.Join(parts, " && ")
}
