package normalize

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEchoDetector_Match(t *testing.T) {
	d := DefaultEchoDetector()

	tests := []struct {
		input string
		want  string
	}{
		{"<object Agent at 0x7f>", "object_repr"},
		{"<Agent object at 0x7f3a2b>", "object_repr"},
		{"<agents.core.Agent at 0xDEADBEEF>", "object_repr"},
		{"(*agent.Agent)(0xc000010000)", "pointer_repr"},
		{"com.example.Agent@1b6d3586", "identity_repr"},
		{"[object Object]", "js_object"},
		{"{'response': 'hi'}", "mapping_repr"},
		{"Message(content='hi', role='assistant')", "constructor_repr"},
		{"Traceback (most recent call last):\n  File \"a.py\", line 3, in <module>", "traceback"},
		{"panic: runtime error: invalid memory address\n\ngoroutine 1 [running]:", "goroutine_dump"},
		{"java.lang.IllegalStateException: boom\n    at com.foo.Bar.baz(Bar.java:42)", "stack_frame"},
		{"Error: connection refused to 10.0.0.3:8000", "error_prefix"},
		{"error: connection refused", "error_prefix"},
		{"Exception: boom", "error_prefix"},
		{"FATAL : disk full", "error_prefix"},
		{"TypeError: 'NoneType' object is not subscriptable", "error_class"},
		{"ConnectionError", "error_class"},
		{"requests.exceptions.ReadTimeoutError: timed out", "error_class"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, ok := d.Match(tt.input)
			assert.True(t, ok, "expected %q to be an echo", tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEchoDetector_AcceptsProse(t *testing.T) {
	d := DefaultEchoDetector()

	prose := []string{
		"Hello there",
		"The error was in your second paragraph.",
		"Error handling in Go uses explicit return values.",
		"An object at rest stays at rest.",
		`{"response":"Hello there"}`,
		"Let me explain: a TypeError occurs when types mismatch.",
		"",
	}
	for _, s := range prose {
		assert.False(t, d.IsEcho(s), "expected %q to be accepted", s)
	}
}

func TestEchoDetector_CustomPatternsOrdered(t *testing.T) {
	d := NewEchoDetector([]EchoPattern{
		{"first", regexp.MustCompile(`^secret`)},
		{"second", regexp.MustCompile(`secret`)},
	})

	name, ok := d.Match("secret sauce")
	assert.True(t, ok)
	assert.Equal(t, "first", name)

	name, ok = d.Match("the secret")
	assert.True(t, ok)
	assert.Equal(t, "second", name)
}
