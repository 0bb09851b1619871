// Package filter evaluates the row filter trees configured on a TableMap.
// A filter is decoded straight from YAML/JSON into map[string]any, so the
// tree shape mirrors the configuration file: leaves are eq/gt/gte/lt/lte
// comparisons, internal nodes are and/or/not.
package filter

import (
	"fmt"

	"github.com/user/myreplicate/pkg/etlerr"
)

// Filter is a decoded filter node: either a leaf comparison or a
// structural and/or/not node, both represented as a plain map as they
// arrive from configuration.
type Filter map[string]any

var leafOps = map[string]bool{"eq": true, "gt": true, "gte": true, "lt": true, "lte": true}
var structuralOps = map[string]bool{"and": true, "or": true, "not": true}

func isSupportedOp(key string) bool {
	return leafOps[key] || structuralOps[key]
}

// MalformedFilterError is returned when a filter tree violates the shape
// rules: and/or not given a list, not not given an object, or an
// unsupported operator token used where one is required.
type MalformedFilterError = etlerr.MalformedFilterError

// Apply evaluates row against f. A nil or empty filter always passes.
func Apply(row map[string]any, f Filter) (bool, error) {
	if len(f) == 0 {
		return true, nil
	}
	return evaluate(row, f)
}

func evaluate(row map[string]any, node map[string]any) (bool, error) {
	if len(node) == 1 {
		for key, value := range node {
			if isSupportedOp(key) {
				return evaluateOp(row, key, value)
			}
			return evaluateFieldEntry(row, key, value)
		}
	}

	// Multiple sibling entries: implicit AND across every entry,
	// whether the key names an operator or a bare field.
	for key, value := range node {
		var (
			ok  bool
			err error
		)
		if isSupportedOp(key) {
			ok, err = evaluateOp(row, key, value)
		} else {
			ok, err = evaluateFieldEntry(row, key, value)
		}
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// evaluateFieldEntry handles a sibling entry keyed by a field name. The
// value may itself be the {op: value} spelling, or a bare literal (an
// implicit eq).
func evaluateFieldEntry(row map[string]any, field string, value any) (bool, error) {
	if opMap, ok := value.(map[string]any); ok && len(opMap) == 1 {
		for opKey, opValue := range opMap {
			if leafOps[opKey] {
				return evaluateOp(row, opKey, map[string]any{field: opValue})
			}
		}
	}
	return evaluateOp(row, "eq", map[string]any{field: value})
}

func evaluateOp(row map[string]any, op string, value any) (bool, error) {
	switch op {
	case "eq":
		conds, err := asConditions(op, value)
		if err != nil {
			return false, err
		}
		return evalEquality(row, conds), nil
	case "gt":
		conds, err := asConditions(op, value)
		if err != nil {
			return false, err
		}
		return evalCompare(row, conds, func(c int) bool { return c > 0 }), nil
	case "gte":
		conds, err := asConditions(op, value)
		if err != nil {
			return false, err
		}
		return evalCompare(row, conds, func(c int) bool { return c >= 0 }), nil
	case "lt":
		conds, err := asConditions(op, value)
		if err != nil {
			return false, err
		}
		return evalCompare(row, conds, func(c int) bool { return c < 0 }), nil
	case "lte":
		conds, err := asConditions(op, value)
		if err != nil {
			return false, err
		}
		return evalCompare(row, conds, func(c int) bool { return c <= 0 }), nil
	case "not":
		child, ok := value.(map[string]any)
		if !ok {
			return false, &MalformedFilterError{Reason: "'not' requires an object condition"}
		}
		inner, err := evaluate(row, child)
		if err != nil {
			return false, err
		}
		return !inner, nil
	case "and":
		return evalAndOr(row, value, "and")
	case "or":
		return evalAndOr(row, value, "or")
	default:
		return false, &MalformedFilterError{Reason: fmt.Sprintf("unsupported operator %q", op)}
	}
}

func asConditions(op string, value any) (map[string]any, error) {
	conds, ok := value.(map[string]any)
	if !ok {
		return nil, &MalformedFilterError{Reason: fmt.Sprintf("%q requires an object of field conditions", op)}
	}
	return conds, nil
}

func evalAndOr(row map[string]any, value any, kind string) (bool, error) {
	list, ok := value.([]any)
	if !ok {
		return false, &MalformedFilterError{Reason: fmt.Sprintf("%q requires a list of conditions", kind)}
	}
	if kind == "and" {
		for _, item := range list {
			cond, ok := item.(map[string]any)
			if !ok {
				return false, &MalformedFilterError{Reason: "each condition in 'and' must be an object"}
			}
			ok2, err := evaluate(row, cond)
			if err != nil {
				return false, err
			}
			if !ok2 {
				return false, nil
			}
		}
		return true, nil
	}
	for _, item := range list {
		cond, ok := item.(map[string]any)
		if !ok {
			return false, &MalformedFilterError{Reason: "each condition in 'or' must be an object"}
		}
		ok2, err := evaluate(row, cond)
		if err != nil {
			return false, err
		}
		if ok2 {
			return true, nil
		}
	}
	return false, nil
}

func evalEquality(row map[string]any, conds map[string]any) bool {
	for field, expected := range conds {
		actual := row[field]
		if !valuesEqual(actual, expected) {
			return false
		}
	}
	return true
}

func evalCompare(row map[string]any, conds map[string]any, accept func(cmp int) bool) bool {
	for field, expected := range conds {
		actual, present := row[field]
		if !present || actual == nil {
			return false
		}
		cmp, ok := compareValues(actual, expected)
		if !ok {
			return false
		}
		if !accept(cmp) {
			return false
		}
	}
	return true
}
