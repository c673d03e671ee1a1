package observability

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	redactedKey   = "[REDACTED_API_KEY]"
	redactedValue = "[REDACTED]"
)

type redactRule struct {
	name string
	re   *regexp.Regexp
	repl string
}

// builtinRules run in order; the more specific key prefixes come first so the
// generic sk- rule does not eat them.
var builtinRules = []redactRule{
	{"anthropic_key", regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`), redactedKey},
	{"openai_project_key", regexp.MustCompile(`sk-proj-[a-zA-Z0-9\-_]{20,}`), redactedKey},
	{"openai_key", regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), redactedKey},
	{"google_key", regexp.MustCompile(`AIza[a-zA-Z0-9\-_]{35}`), redactedKey},
	{"vault_token", regexp.MustCompile(`\bhv[sbr]\.[a-zA-Z0-9_\-]{20,}`), redactedValue},
	{"bearer_token", regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-_\.=]+`), "Bearer " + redactedValue},
	{"key_value", regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)(["']?\s*[:=]\s*["']?)[^\s"'&,]+`), "$1$2" + redactedValue},
	{"url_password", regexp.MustCompile(`://([^:/@\s]+):([^@/\s]+)@`), "://$1:" + redactedValue + "@"},
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
}

// sensitiveKeys mark map entries whose values are dropped regardless of content.
var sensitiveKeys = []string{"key", "token", "secret", "password", "auth", "credential"}

// Redactor masks credentials and personal data in free text before it reaches
// a log line.
type Redactor struct {
	rules []redactRule
}

// NewRedactor returns a Redactor loaded with the built-in rules.
func NewRedactor() *Redactor {
	return &Redactor{rules: append([]redactRule(nil), builtinRules...)}
}

// AddPattern appends a rule. Patterns that fail to compile are ignored.
func (r *Redactor) AddPattern(pattern, replacement, name string) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	r.rules = append(r.rules, redactRule{name: name, re: re, repl: replacement})
}

// Redact applies every rule to s.
func (r *Redactor) Redact(s string) string {
	for _, rule := range r.rules {
		s = rule.re.ReplaceAllString(s, rule.repl)
	}
	return s
}

// Preview redacts prompt, collapses its whitespace and truncates it to
// maxRunes runes. A non-positive maxRunes disables truncation.
func (r *Redactor) Preview(prompt string, maxRunes int) string {
	s := strings.Join(strings.Fields(r.Redact(prompt)), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes]) + "..."
}

// RedactMap returns a copy of m with sensitive keys masked and string values
// redacted, descending into nested maps and slices.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = redactedValue
			continue
		}
		out[k] = r.redactAny(v)
	}
	return out
}

func (r *Redactor) redactAny(v any) any {
	switch v := v.(type) {
	case string:
		return r.Redact(v)
	case map[string]any:
		return r.RedactMap(v)
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = r.redactAny(v[i])
		}
		return out
	}
	return v
}

func isSensitiveKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
