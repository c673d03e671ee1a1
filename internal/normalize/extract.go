package normalize

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/llmgov/pkg/types"
)

const (
	// maxListItems bounds how many list elements are inspected.
	maxListItems = 32
	// embeddedErrorDepth bounds the search for an error report hidden in a
	// payload, counting both container levels and decoded string layers.
	embeddedErrorDepth = 6
)

func (n *Normalizer) structuredStrategy(raw types.RawResponse) (string, string, bool) {
	if raw.Kind != types.RawStructured {
		return "", "", false
	}
	text, path, ok := n.fromFields(raw.Fields, 0)
	if !ok {
		return "", "", false
	}
	return text, StrategyStructured + ":" + path, true
}

func (n *Normalizer) stringStrategy(raw types.RawResponse) (string, string, bool) {
	if raw.Kind != types.RawText {
		return "", "", false
	}
	s := strings.TrimSpace(raw.Text)

	if parsed, ok := decodeDocument(s); ok {
		text, path, ok := n.fromParsed(parsed, 0)
		if !ok {
			// A document without an answer is an object dump, not prose.
			return "", "", false
		}
		label := StrategyStringJSON
		if path != "" {
			label += ":" + path
		}
		return text, label, true
	}

	text, ok := n.acceptText(s, 0)
	return text, StrategyString, ok
}

func (n *Normalizer) objectStrategy(raw types.RawResponse) (string, string, bool) {
	if raw.Kind != types.RawObjectLike || raw.Object == nil {
		return "", "", false
	}
	text, path, ok := n.objectText(reflect.ValueOf(raw.Object), 0)
	if !ok {
		text, ok = n.stringerText(raw.Object)
		path = "String"
	}
	if !ok {
		return "", "", false
	}
	return text, StrategyObject + ":" + path, true
}

// fromParsed extracts an answer from a decoded JSON document.
func (n *Normalizer) fromParsed(parsed any, depth int) (string, string, bool) {
	switch p := parsed.(type) {
	case map[string]any:
		if _, isErr := errorShape(p, n.fields); isErr {
			return "", "", false
		}
		return n.fromFields(p, depth)
	case string:
		text, ok := n.acceptText(p, depth)
		return text, "", ok
	case []any:
		return n.listText(p, depth)
	default:
		if s, ok := scalarText(p); ok {
			text, ok := n.acceptText(s, depth)
			return text, "", ok
		}
		return "", "", false
	}
}

// fromFields searches m for the first answer-bearing field in priority order.
// Containers outside the field list are searched at most maxDepth levels down.
func (n *Normalizer) fromFields(m map[string]any, depth int) (string, string, bool) {
	for _, field := range n.fields {
		key, v, found := findField(m, field)
		if !found || v == nil {
			continue
		}
		if text, sub, ok := n.valueText(v, depth); ok {
			return text, joinPath(key, sub), true
		}
	}

	if depth >= n.maxDepth {
		return "", "", false
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if n.isField(k) {
			continue
		}
		child, ok := m[k].(map[string]any)
		if !ok {
			continue
		}
		if text, sub, ok := n.fromFields(child, depth+1); ok {
			return text, joinPath(k, sub), true
		}
	}
	return "", "", false
}

// valueText converts a field value to an answer.
func (n *Normalizer) valueText(v any, depth int) (string, string, bool) {
	switch t := v.(type) {
	case nil:
		return "", "", false
	case string:
		s := strings.TrimSpace(t)
		if depth < n.maxDepth {
			if parsed, ok := decodeDocument(s); ok {
				return n.fromParsed(parsed, depth+1)
			}
		}
		text, ok := n.acceptText(s, depth)
		return text, "", ok
	case map[string]any:
		if depth >= n.maxDepth {
			return "", "", false
		}
		return n.fromFields(t, depth+1)
	case []any:
		return n.listText(t, depth)
	}

	if s, ok := scalarText(v); ok {
		text, ok := n.acceptText(s, depth)
		return text, "", ok
	}
	return n.objectText(reflect.ValueOf(v), depth)
}

// listText joins the text parts of a list, e.g. a content-part array.
func (n *Normalizer) listText(list []any, depth int) (string, string, bool) {
	var parts []string
	for i, item := range list {
		if i >= maxListItems {
			break
		}
		switch t := item.(type) {
		case string:
			if s, ok := n.acceptText(t, depth); ok {
				parts = append(parts, s)
			}
		case map[string]any:
			if depth >= n.maxDepth {
				continue
			}
			if text, _, ok := n.fromFields(t, depth+1); ok {
				parts = append(parts, text)
			}
		}
	}
	if len(parts) == 0 {
		return "", "", false
	}
	text, ok := n.acceptText(strings.Join(parts, "\n"), depth)
	return text, "[]", ok
}

// objectText searches an arbitrary Go value's exported fields and zero-arg
// methods for an answer.
func (n *Normalizer) objectText(v reflect.Value, depth int) (string, string, bool) {
	for i := 0; i < 8 && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface); i++ {
		if v.IsNil() {
			return "", "", false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.String:
		text, ok := n.acceptText(v.String(), depth)
		return text, "", ok

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String || !v.CanInterface() {
			return "", "", false
		}
		m := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return n.fromFields(m, depth)

	case reflect.Slice, reflect.Array:
		if !v.CanInterface() {
			return "", "", false
		}
		items := make([]any, 0, min(v.Len(), maxListItems))
		for i := 0; i < v.Len() && i < maxListItems; i++ {
			items = append(items, v.Index(i).Interface())
		}
		return n.listText(items, depth)

	case reflect.Struct:
		for _, field := range n.fields {
			if text, path, ok := n.attributeText(v, field, depth); ok {
				return text, path, true
			}
		}
		if depth >= n.maxDepth {
			return "", "", false
		}
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() || n.isField(sf.Name) {
				continue
			}
			if text, sub, ok := n.nestedAttributeText(v.Field(i), depth); ok {
				return text, joinPath(sf.Name, sub), true
			}
		}
	}
	return "", "", false
}

// attributeText reads one named attribute of a struct value, as a field or a
// zero-arg method. Failures are contained to this attribute.
func (n *Normalizer) attributeText(v reflect.Value, name string, depth int) (text, path string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Debug("attribute access failed", "attribute", name, "panic", fmt.Sprint(r))
			text, path, ok = "", "", false
		}
	}()

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || !(strings.EqualFold(sf.Name, name) || jsonName(sf) == name) {
			continue
		}
		fv := v.Field(i)
		if !fv.CanInterface() {
			continue
		}
		if text, sub, ok := n.valueText(fv.Interface(), depth); ok {
			return text, joinPath(sf.Name, sub), true
		}
	}

	methodName := strings.ToUpper(name[:1]) + name[1:]
	m := v.MethodByName(methodName)
	if !m.IsValid() && v.CanAddr() {
		m = v.Addr().MethodByName(methodName)
	}
	if s, ok := callTextMethod(m); ok {
		if text, ok := n.acceptText(s, depth); ok {
			return text, methodName + "()", true
		}
	}
	return "", "", false
}

// nestedAttributeText descends into a struct-valued field, isolated like
// attributeText.
func (n *Normalizer) nestedAttributeText(fv reflect.Value, depth int) (text, path string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, path, ok = "", "", false
		}
	}()

	inner := fv
	for inner.Kind() == reflect.Pointer || inner.Kind() == reflect.Interface {
		if inner.IsNil() {
			return "", "", false
		}
		inner = inner.Elem()
	}
	switch inner.Kind() {
	case reflect.Struct, reflect.Map:
		return n.objectText(fv, depth+1)
	}
	return "", "", false
}

// stringerText uses fmt.Stringer as the last accessor. The echo check keeps
// default object dumps out.
func (n *Normalizer) stringerText(obj any) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()
	s, isStringer := obj.(fmt.Stringer)
	if !isStringer {
		return "", false
	}
	return n.acceptText(s.String(), 0)
}

// callTextMethod calls m if it takes no arguments and returns a string,
// optionally with an error.
func callTextMethod(m reflect.Value) (string, bool) {
	if !m.IsValid() {
		return "", false
	}
	mt := m.Type()
	if mt.NumIn() != 0 || mt.NumOut() == 0 || mt.NumOut() > 2 || mt.Out(0).Kind() != reflect.String {
		return "", false
	}
	out := m.Call(nil)
	if len(out) == 2 && !out[1].IsNil() {
		return "", false
	}
	return out[0].String(), true
}

func (n *Normalizer) isField(name string) bool {
	for _, f := range n.fields {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// findField returns the key and value for field, matching exactly first and
// then case-insensitively.
func findField(m map[string]any, field string) (string, any, bool) {
	if v, ok := m[field]; ok {
		return field, v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, field) {
			return k, v, true
		}
	}
	return "", nil, false
}

func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}

func joinPath(head, tail string) string {
	if tail == "" {
		return head
	}
	if strings.HasPrefix(tail, "[") {
		return head + tail
	}
	return head + "." + tail
}

func looksJSON(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '{', '[', '"':
		return true
	}
	return false
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

// decodeDocument decodes s when it is a JSON value or a single-quoted
// mapping such as {'response': 'hi'}.
func decodeDocument(s string) (any, bool) {
	if looksJSON(s) {
		if v, err := decodeJSON(s); err == nil {
			return v, true
		}
	}
	if mappingRepr.MatchString(s) {
		if js, ok := mappingToJSON(s); ok {
			if v, err := decodeJSON(js); err == nil {
				return v, true
			}
		}
	}
	return nil, false
}

// mappingToJSON rewrites a mapping literal with single- or double-quoted
// strings and True/False/None constants as JSON. Anything else fails.
func mappingToJSON(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			lit, width, ok := scanQuoted(s[i:])
			if !ok {
				return "", false
			}
			enc, err := json.Marshal(lit)
			if err != nil {
				return "", false
			}
			b.Write(enc)
			i += width
		case c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z'):
			j := i
			for j < len(s) && (s[j] == '_' || isAlnumByte(s[j])) {
				j++
			}
			switch s[i:j] {
			case "True", "true":
				b.WriteString("true")
			case "False", "false":
				b.WriteString("false")
			case "None", "null":
				b.WriteString("null")
			default:
				return "", false
			}
			i = j
		case c == '-' || ('0' <= c && c <= '9'):
			j := i + 1
			for j < len(s) && strings.IndexByte("0123456789.eE+-", s[j]) >= 0 {
				j++
			}
			b.WriteString(s[i:j])
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), true
}

// scanQuoted reads the quoted literal at the start of s and returns its
// value and the number of bytes consumed.
func scanQuoted(s string) (string, int, bool) {
	quote := s[0]
	var out []byte
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == quote:
			return string(out), i + 1, true
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case '\\', '\'', '"':
				out = append(out, s[i])
			default:
				out = append(out, '\\', s[i])
			}
		default:
			out = append(out, c)
		}
	}
	return "", 0, false
}

func isAlnumByte(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// embeddedError reports whether v is, or contains within budget levels, an
// error-shaped document. Strings count as a level when they decode.
func (n *Normalizer) embeddedError(v any, budget int) bool {
	if budget < 0 {
		return false
	}
	switch t := v.(type) {
	case string:
		parsed, ok := decodeDocument(strings.TrimSpace(t))
		return ok && n.embeddedError(parsed, budget-1)
	case map[string]any:
		if _, isErr := errorShape(t, n.fields); isErr {
			return true
		}
		for _, child := range t {
			if n.embeddedError(child, budget-1) {
				return true
			}
		}
	case []any:
		for i, item := range t {
			if i >= maxListItems {
				break
			}
			if n.embeddedError(item, budget-1) {
				return true
			}
		}
	}
	return false
}
