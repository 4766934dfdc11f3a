// Package condition evaluates trigger condition expressions against event
// payloads. Evaluation is fail-closed: anything that cannot be parsed,
// resolved, or compared is a non-match, never an error.
package condition

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Operators ordered longest-first so ">=" is not mistaken for ">".
var operators = []string{">=", "<=", "!=", "==", ">", "<"}

// Evaluate checks a condition expression against a raw payload.
//
// Supported forms:
//
//	$.path.to.field >= 85    path comparison against a JSON payload
//	> 0                      bare comparison, payload treated as a number
//
// An empty condition matches unconditionally. A missing payload, unparsable
// expression, unresolvable path, or incomparable value pair all evaluate to
// false.
func Evaluate(expr, payload string) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true
	}

	if payload == "" {
		return false
	}

	if rest, ok := strings.CutPrefix(expr, "$"); ok {
		return evaluatePath(rest, payload)
	}

	return evaluateBare(expr, payload)
}

// evaluatePath handles "$.a.b OP value" against a JSON payload.
func evaluatePath(expr, payload string) bool {
	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return false
	}

	path, op, comparand, ok := splitPathExpr(expr)
	if !ok {
		return false
	}

	value, ok := resolvePath(doc, path)
	if !ok {
		return false
	}

	return compare(value, op, comparand)
}

// evaluateBare handles "OP value" with the whole payload as the left operand.
func evaluateBare(expr, payload string) bool {
	op, comparand, ok := splitOpExpr(expr)
	if !ok {
		return false
	}

	lhs, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		return false
	}

	rhs, err := strconv.ParseFloat(comparand, 64)
	if err != nil {
		return false
	}

	return applyNumeric(lhs, op, rhs)
}

func splitPathExpr(expr string) (path []string, op, comparand string, ok bool) {
	for _, candidate := range operators {
		pos := strings.Index(expr, candidate)
		if pos < 0 {
			continue
		}

		pathPart := strings.TrimSpace(expr[:pos])
		valuePart := strings.TrimSpace(expr[pos+len(candidate):])

		if valuePart == "" {
			return nil, "", "", false
		}

		segments := make([]string, 0, 4)
		for _, seg := range strings.Split(pathPart, ".") {
			if seg != "" {
				segments = append(segments, seg)
			}
		}

		if len(segments) == 0 {
			return nil, "", "", false
		}

		return segments, candidate, valuePart, true
	}

	return nil, "", "", false
}

func splitOpExpr(expr string) (op, comparand string, ok bool) {
	for _, candidate := range operators {
		if rest, found := strings.CutPrefix(expr, candidate); found {
			value := strings.TrimSpace(rest)
			if value == "" {
				return "", "", false
			}

			return candidate, value, true
		}
	}

	return "", "", false
}

// resolvePath walks dot-separated segments through nested objects; numeric
// segments also index into arrays.
func resolvePath(doc any, segments []string) (any, bool) {
	current := doc

	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, exists := node[seg]
			if !exists {
				return nil, false
			}

			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}

			current = node[idx]
		default:
			return nil, false
		}
	}

	return current, true
}

// compare tries numeric comparison first. The string fallback only supports
// equality operators: ordering a string against a number is an incomparable
// pair and resolves to no-match.
func compare(value any, op, comparand string) bool {
	if lhs, ok := asFloat(value); ok {
		if rhs, err := strconv.ParseFloat(comparand, 64); err == nil {
			return applyNumeric(lhs, op, rhs)
		}
	}

	lhs, ok := asString(value)
	if !ok {
		return false
	}

	rhs := strings.TrimSpace(comparand)
	if unquoted, err := strconv.Unquote(rhs); err == nil {
		rhs = unquoted
	}

	switch op {
	case "==":
		return lhs == rhs
	case "!=":
		return lhs != rhs
	default:
		return false
	}
}

func applyNumeric(lhs float64, op string, rhs float64) bool {
	switch op {
	case ">":
		return lhs > rhs
	case "<":
		return lhs < rhs
	case ">=":
		return lhs >= rhs
	case "<=":
		return lhs <= rhs
	case "==":
		return lhs == rhs
	case "!=":
		return lhs != rhs
	default:
		return false
	}
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}

		return 0, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}

		return f, true
	default:
		return 0, false
	}
}

func asString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}
