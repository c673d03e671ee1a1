package normalize

import (
	"regexp"
	"strings"
)

// EchoPattern is one named heuristic for backend internals leaking into a
// text response.
type EchoPattern struct {
	Name string
	Re   *regexp.Regexp
}

// EchoDetector recognizes raw object dumps, stack traces and bare error class
// names. Patterns are tried in order; the first match wins.
type EchoDetector struct {
	patterns []EchoPattern
}

// mappingRepr matches a mapping literal with single-quoted keys.
var mappingRepr = regexp.MustCompile(`^\{\s*'[^']*'\s*:`)

// DefaultEchoPatterns is the built-in ordered pattern list.
var DefaultEchoPatterns = []EchoPattern{
	// <object Agent at 0x7f>, <Agent object at 0x7f3a>, <module.Class at 0xdeadbeef>
	{"object_repr", regexp.MustCompile(`(?i)^<\s*(object\s+)?[\w.$:]+(\s+object)?\s+at\s+0x[0-9a-f]+\s*>$`)},
	// (*agent.Agent)(0xc000010000)
	{"pointer_repr", regexp.MustCompile(`(?i)^\(\*?[\w./]+\)\(0x[0-9a-f]+\)$`)},
	// com.example.Agent@1b6d3586
	{"identity_repr", regexp.MustCompile(`(?i)^[a-z_$][\w$]*(\.[\w$]+)+@[0-9a-f]{4,}$`)},
	// [object Object]
	{"js_object", regexp.MustCompile(`(?i)^\[object\s+\w+\]$`)},
	// {'response': 'hi'}, a language-native mapping dump rather than JSON
	{"mapping_repr", mappingRepr},
	// Message(content='hi', role='assistant')
	{"constructor_repr", regexp.MustCompile(`^[A-Z]\w*\(\s*\w+\s*=.*\)$`)},
	{"traceback", regexp.MustCompile(`Traceback \(most recent call last\)`)},
	{"traceback", regexp.MustCompile(`(?m)^\s*File ".*", line \d+`)},
	{"goroutine_dump", regexp.MustCompile(`(?m)^(panic: |goroutine \d+ \[)`)},
	{"stack_frame", regexp.MustCompile(`(?m)^\s+at [\w.$<>]+\(.*(:\d+|Native Method|Unknown Source)\)`)},
	// Error: connection refused, exception: ..., FATAL: ...
	{"error_prefix", regexp.MustCompile(`(?i)^(error|exception|fatal|panic)\s*:`)},
	// TypeError: ..., java.lang.NullPointerException, requests.exceptions.ConnectionError
	{"error_class", regexp.MustCompile(`^([a-z_][\w]*\.)*[A-Z]\w*(Error|Exception|Fault)(:|\s*$)`)},
}

// NewEchoDetector creates a detector from an ordered pattern list.
func NewEchoDetector(patterns []EchoPattern) *EchoDetector {
	return &EchoDetector{patterns: patterns}
}

// DefaultEchoDetector returns a detector using DefaultEchoPatterns.
func DefaultEchoDetector() *EchoDetector {
	return NewEchoDetector(DefaultEchoPatterns)
}

// Match returns the name of the first pattern matching s.
func (d *EchoDetector) Match(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, p := range d.patterns {
		if p.Re.MatchString(s) {
			return p.Name, true
		}
	}
	return "", false
}

// IsEcho reports whether s looks like a raw object or error echo.
func (d *EchoDetector) IsEcho(s string) bool {
	_, ok := d.Match(s)
	return ok
}
