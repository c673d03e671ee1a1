package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blueberrycongee/llmgov/pkg/types"
)

// DefaultFields is the priority-ordered list of field names that may carry
// the answer in a structured payload.
var DefaultFields = []string{"response", "answer", "output", "message", "content", "text", "result"}

// Strategy names reported in NormalizedResult.Strategy.
const (
	StrategyStructured = "structured"
	StrategyString     = "string"
	StrategyStringJSON = "string_json"
	StrategyObject     = "object_attribute"
)

var (
	// ErrEmpty is returned for nil, empty or whitespace-only payloads.
	ErrEmpty = errors.New("normalize: empty payload")
	// ErrErrorShaped is returned for error reports disguised as success.
	ErrErrorShaped = errors.New("normalize: error-shaped payload")
	// ErrExhausted is returned when no strategy produced an answer.
	ErrExhausted = errors.New("normalize: no strategy produced an answer")
)

// defaultErrorTokens are whole-answer strings that indicate failure rather
// than content.
var defaultErrorTokens = []string{
	"error", "none", "null", "nil", "undefined", "nan", "n/a",
	"exception", "failed", "failure", "unknown", "internal server error",
}

// Config configures a Normalizer.
type Config struct {
	// Fields overrides DefaultFields.
	Fields []string
	// MaxDepth bounds nested field search (default: 1).
	MaxDepth int
	// MinContentRunes is the shortest accepted answer (default: 2).
	MinContentRunes int
	// ErrorTokens overrides the built-in failure tokens.
	ErrorTokens []string
	// Echo overrides the default echo detector.
	Echo *EchoDetector
	// Logger receives strategy failures at debug level.
	Logger *slog.Logger
}

// Normalizer runs the extraction strategy chain. It is safe for concurrent use.
type Normalizer struct {
	fields      []string
	maxDepth    int
	minRunes    int
	errorTokens map[string]bool
	echo        *EchoDetector
	logger      *slog.Logger
	strategies  []strategy
}

// strategy is one extraction step. run returns the answer and a label
// naming the strategy and the path that produced it.
type strategy struct {
	name string
	run  func(raw types.RawResponse) (text, label string, ok bool)
}

// New creates a Normalizer.
func New(cfg Config) *Normalizer {
	if len(cfg.Fields) == 0 {
		cfg.Fields = DefaultFields
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 1
	}
	if cfg.MinContentRunes <= 0 {
		cfg.MinContentRunes = 2
	}
	if cfg.ErrorTokens == nil {
		cfg.ErrorTokens = defaultErrorTokens
	}
	if cfg.Echo == nil {
		cfg.Echo = DefaultEchoDetector()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	tokens := make(map[string]bool, len(cfg.ErrorTokens))
	for _, tok := range cfg.ErrorTokens {
		tokens[strings.ToLower(tok)] = true
	}

	n := &Normalizer{
		fields:      cfg.Fields,
		maxDepth:    cfg.MaxDepth,
		minRunes:    cfg.MinContentRunes,
		errorTokens: tokens,
		echo:        cfg.Echo,
		logger:      cfg.Logger,
	}
	n.strategies = []strategy{
		{StrategyStructured, n.structuredStrategy},
		{StrategyString, n.stringStrategy},
		{StrategyObject, n.objectStrategy},
	}
	return n
}

// Normalize classifies payload and extracts the answer.
func (n *Normalizer) Normalize(payload any) (types.NormalizedResult, error) {
	return n.NormalizeRaw(n.Classify(payload))
}

// Classify classifies payload using this normalizer's field list.
func (n *Normalizer) Classify(payload any) (raw types.RawResponse) {
	defer func() {
		if r := recover(); r != nil {
			raw = types.RawResponse{Kind: types.RawObjectLike, Object: payload}
		}
	}()
	return classify(payload, n.fields)
}

// NormalizeRaw runs the strategy chain over an already classified payload.
// The returned error is ErrEmpty, ErrErrorShaped or ErrExhausted.
func (n *Normalizer) NormalizeRaw(raw types.RawResponse) (types.NormalizedResult, error) {
	switch raw.Kind {
	case types.RawEmpty:
		return types.NormalizedResult{}, ErrEmpty
	case types.RawErrorShaped:
		return types.NormalizedResult{}, ErrErrorShaped
	}

	for _, s := range n.strategies {
		text, label, ok := n.safeRun(s, raw)
		if !ok {
			continue
		}
		if label == "" {
			label = s.name
		}
		return types.NormalizedResult{Text: text, Strategy: label}, nil
	}
	if n.hidesError(raw) {
		return types.NormalizedResult{}, ErrErrorShaped
	}
	return types.NormalizedResult{}, ErrExhausted
}

// hidesError reports whether a payload no strategy could use carries an
// error report inside an encoded string or a nested container.
func (n *Normalizer) hidesError(raw types.RawResponse) (found bool) {
	defer func() {
		if recover() != nil {
			found = false
		}
	}()
	switch raw.Kind {
	case types.RawText:
		return n.embeddedError(raw.Text, embeddedErrorDepth)
	case types.RawStructured:
		return n.embeddedError(raw.Fields, embeddedErrorDepth)
	}
	return false
}

func (n *Normalizer) safeRun(s strategy, raw types.RawResponse) (text, label string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Debug("normalize strategy panicked", "strategy", s.name, "panic", fmt.Sprint(r))
			text, label, ok = "", "", false
		}
	}()
	return s.run(raw)
}

// acceptText applies the echo and minimum-content checks to a candidate. A
// candidate that is itself an encoded document is decoded and searched
// again at depth; the document text is never accepted as the answer.
func (n *Normalizer) acceptText(s string, depth int) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if parsed, ok := decodeDocument(s); ok {
		text, _, ok := n.fromParsed(parsed, depth)
		return text, ok
	}
	if name, echo := n.echo.Match(s); echo {
		n.logger.Debug("rejected echoed payload", "pattern", name)
		return "", false
	}
	if !n.hasContent(s) {
		return "", false
	}
	return s, true
}

// hasContent is the minimum-content check: long enough, has a letter or
// digit, and is not a bare failure token.
func (n *Normalizer) hasContent(s string) bool {
	if utf8.RuneCountInString(s) < n.minRunes {
		return false
	}
	alnum := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum = true
			break
		}
	}
	if !alnum {
		return false
	}
	token := strings.ToLower(strings.Trim(s, " \t\r\n.!?:;-_*()[]<>\"'`"))
	return !n.errorTokens[token] && !n.errorTokens[strings.ToLower(s)]
}
