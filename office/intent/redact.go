package intent

import (
	"fmt"
	"reflect"
	"strings"
)

// Redacted replaces sensitive string values in logged payloads.
const Redacted = "REDACTED"

// circularRef marks a cycle edge instead of recursing into it.
const circularRef = "[Circular Reference]"

// sensitiveKeys is the case-insensitive denylist of field names whose values
// never leave the process in a log.
var sensitiveKeys = map[string]bool{
	"user":         true,
	"email":        true,
	"mail":         true,
	"address":      true,
	"emailaddress": true,
	"password":     true,
	"token":        true,
	"accesstoken":  true,
	"refreshtoken": true,
	"content":      true,
	"body":         true,
	"contentbytes": true,
}

func isSensitiveKey(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// RedactSensitiveData returns a copy of value with every denylisted field
// replaced by a placeholder. The input is never mutated. Cycles are rendered
// as "[Circular Reference]". Redaction fails open: if the walk itself fails,
// the original value is returned un-redacted so logging never blocks a call.
func RedactSensitiveData(value any) (out any) {
	defer func() {
		if recover() != nil {
			out = value
		}
	}()
	return redactValue(value, map[uintptr]bool{})
}

func redactValue(value any, visited map[uintptr]bool) any {
	switch v := value.(type) {
	case map[string]any:
		ptr := reflect.ValueOf(v).Pointer()
		if visited[ptr] {
			return circularRef
		}
		visited[ptr] = true
		defer delete(visited, ptr)
		out := make(map[string]any, len(v))
		for k, item := range v {
			if isSensitiveKey(k) {
				out[k] = placeholder(item)
				continue
			}
			out[k] = redactValue(item, visited)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, item := range v {
			if isSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = item
		}
		return out
	case []any:
		if len(v) == 0 {
			return []any{}
		}
		ptr := reflect.ValueOf(v).Pointer()
		if visited[ptr] {
			return circularRef
		}
		visited[ptr] = true
		defer delete(visited, ptr)
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(item, visited)
		}
		return out
	default:
		return redactOther(value, visited)
	}
}

// redactOther handles map and slice shapes that arrive as concrete types
// rather than decoded JSON. Map keys are assumed to be strings, matching the
// JSON-derived payloads the router logs; anything else trips the fail-open
// recover in RedactSensitiveData.
func redactOther(value any, visited map[uintptr]bool) any {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		ptr := rv.Pointer()
		if visited[ptr] {
			return circularRef
		}
		visited[ptr] = true
		defer delete(visited, ptr)
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().Interface().(string)
			item := iter.Value().Interface()
			if isSensitiveKey(k) {
				out[k] = placeholder(item)
				continue
			}
			out[k] = redactValue(item, visited)
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = redactValue(rv.Index(i).Interface(), visited)
		}
		return out
	default:
		return value
	}
}

// placeholder renders the replacement for a sensitive value: strings become
// the marker, collections report only their size or presence.
func placeholder(value any) any {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return fmt.Sprintf("[%d items]", rv.Len())
	case reflect.Map, reflect.Struct:
		return "{" + Redacted + "}"
	default:
		return Redacted
	}
}
