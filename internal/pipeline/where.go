package pipeline

import (
	"regexp"
	"sort"
)

// Equal builds one equality condition per field, in key order. Nil values are
// skipped so optional request parameters can be passed straight through.
func Equal(fields map[string]any) []Expr {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Expr, 0, len(keys))
	for _, k := range keys {
		out = append(out, Eq(Field(k), fields[k]))
	}
	return out
}

// Fuzzy builds one regex condition per non-empty string field, in key order.
// The pattern is quoted so user input never becomes a regular expression.
func Fuzzy(fields map[string]string) []Expr {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Expr, 0, len(keys))
	for _, k := range keys {
		out = append(out, RegexMatch(IfNull(Field(k), ""), regexp.QuoteMeta(fields[k])))
	}
	return out
}

// FuzzyAny matches when any element of the array field matches value.
// It returns nil for an empty value.
func FuzzyAny(field, value string) Expr {
	if value == "" {
		return nil
	}
	matches := Map(IfNull(Field(field), Lit([]any{})), "v", RegexMatch(Var("v"), regexp.QuoteMeta(value)))
	return In(true, matches)
}

// Range is from <= field < to. Either bound may be nil.
func Range(field string, from, to any) Expr {
	var conds []any
	if from != nil {
		conds = append(conds, Gte(Field(field), from))
	}
	if to != nil {
		conds = append(conds, Lt(Field(field), to))
	}
	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0].(Expr)
	}
	return And(conds...)
}

// AtLeast is field >= v, or nil when v is nil.
func AtLeast(field string, v any) Expr {
	if v == nil {
		return nil
	}
	return Gte(Field(field), v)
}

// AtMost is field <= v, or nil when v is nil.
func AtMost(field string, v any) Expr {
	if v == nil {
		return nil
	}
	return Lte(Field(field), v)
}
