// Package normalize turns whatever the backend returned into a single
// validated text answer. Payloads are first classified into a closed set of
// shapes (types.RawKind); an ordered chain of extraction strategies then runs
// over that shape, each isolated from the others' panics.
package normalize

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/llmgov/pkg/types"
)

// errorKeys mark a structured payload as an error report when no answer
// field carries content.
var errorKeys = []string{"error", "errors", "exception", "traceback", "stacktrace", "stack_trace"}

// failureStatuses are "status" values that mark a payload as failed.
var failureStatuses = map[string]bool{
	"error":   true,
	"failed":  true,
	"failure": true,
	"fail":    true,
}

// Classify converts an arbitrary backend payload into a RawResponse. It never
// panics; values it cannot inspect become ObjectLike.
func Classify(payload any) (raw types.RawResponse) {
	defer func() {
		if r := recover(); r != nil {
			raw = types.RawResponse{Kind: types.RawObjectLike, Object: payload}
		}
	}()
	return classify(payload, DefaultFields)
}

func classify(payload any, fields []string) types.RawResponse {
	switch v := payload.(type) {
	case nil:
		return types.RawResponse{Kind: types.RawEmpty}
	case types.RawResponse:
		return v
	case *types.RawResponse:
		if v == nil {
			return types.RawResponse{Kind: types.RawEmpty}
		}
		return *v
	case string:
		return classifyText(v)
	case []byte:
		return classifyText(string(v))
	case json.RawMessage:
		return classifyText(string(v))
	case error:
		return types.RawResponse{Kind: types.RawErrorShaped, Err: v.Error()}
	case map[string]any:
		return classifyFields(v, fields)
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return classifyFields(m, fields)
	case []any:
		switch len(v) {
		case 0:
			return types.RawResponse{Kind: types.RawEmpty}
		case 1:
			return classify(v[0], fields)
		default:
			return types.RawResponse{Kind: types.RawObjectLike, Object: v}
		}
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		text, _ := scalarText(v)
		return classifyText(text)
	}

	rv := reflect.ValueOf(payload)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return types.RawResponse{Kind: types.RawEmpty}
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return classifyText(rv.String())
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = iter.Value().Interface()
			}
			return classifyFields(m, fields)
		}
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return types.RawResponse{Kind: types.RawEmpty}
		}
	}

	if tm, ok := payload.(encoding.TextMarshaler); ok && rv.Kind() != reflect.Struct {
		if b, err := tm.MarshalText(); err == nil {
			return classifyText(string(b))
		}
	}

	return types.RawResponse{Kind: types.RawObjectLike, Object: payload}
}

func classifyText(s string) types.RawResponse {
	if strings.TrimSpace(s) == "" {
		return types.RawResponse{Kind: types.RawEmpty}
	}
	return types.RawResponse{Kind: types.RawText, Text: s}
}

func classifyFields(m map[string]any, fields []string) types.RawResponse {
	if len(m) == 0 {
		return types.RawResponse{Kind: types.RawEmpty}
	}
	if msg, ok := errorShape(m, fields); ok {
		return types.RawResponse{Kind: types.RawErrorShaped, Fields: m, Err: msg}
	}
	return types.RawResponse{Kind: types.RawStructured, Fields: m}
}

// errorShape reports whether m is an error report dressed as a success.
func errorShape(m map[string]any, fields []string) (string, bool) {
	for _, key := range []string{"success", "ok"} {
		if b, ok := lookupField(m, key).(bool); ok && !b {
			return describe(m), true
		}
	}
	if status, ok := lookupField(m, "status").(string); ok && failureStatuses[strings.ToLower(strings.TrimSpace(status))] {
		return describe(m), true
	}

	var errVal any
	for _, key := range errorKeys {
		if v := lookupField(m, key); truthy(v) {
			errVal = v
			break
		}
	}
	if errVal == nil {
		return "", false
	}
	for _, f := range fields {
		if truthy(lookupField(m, f)) {
			return "", false
		}
	}
	return fmt.Sprint(errVal), true
}

func describe(m map[string]any) string {
	for _, key := range append([]string{"message"}, errorKeys...) {
		if v := lookupField(m, key); truthy(v) {
			return fmt.Sprint(v)
		}
	}
	return "error status"
}

// lookupField finds key exactly, then case-insensitively.
func lookupField(m map[string]any, key string) any {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return t
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

// scalarText coerces non-string scalars to text.
func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int8:
		return strconv.FormatInt(int64(t), 10), true
	case int16:
		return strconv.FormatInt(int64(t), 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint8:
		return strconv.FormatUint(uint64(t), 10), true
	case uint16:
		return strconv.FormatUint(uint64(t), 10), true
	case uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}
