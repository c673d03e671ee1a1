// Package fallback produces the substitute answer returned on every failure
// path of the orchestrator. Generation never fails and never returns an
// empty string.
package fallback

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"unicode"

	"github.com/blueberrycongee/llmgov/pkg/types"
)

// LastResort is returned when everything else in the generator has failed.
const LastResort = "I'm sorry, I can't respond right now. Please try again in a moment."

// Shape is a coarse classification of the caller's prompt.
type Shape int

const (
	ShapeStatement Shape = iota
	ShapeGreeting
	ShapeQuestion
)

func (s Shape) String() string {
	switch s {
	case ShapeGreeting:
		return "greeting"
	case ShapeQuestion:
		return "question"
	default:
		return "statement"
	}
}

var greetings = []string{
	"hi", "hello", "hey", "hiya", "howdy", "greetings", "yo",
	"good morning", "good afternoon", "good evening", "morning", "evening",
}

var questionOpeners = map[string]bool{
	"what": true, "why": true, "how": true, "when": true, "where": true,
	"who": true, "whom": true, "whose": true, "which": true,
	"can": true, "could": true, "would": true, "should": true, "will": true,
	"is": true, "are": true, "am": true, "was": true, "were": true,
	"do": true, "does": true, "did": true, "have": true, "has": true,
	"may": true, "might": true, "shall": true,
}

// ClassifyPrompt returns the shape of a prompt. An empty prompt is a statement.
func ClassifyPrompt(prompt string) Shape {
	p := strings.ToLower(strings.TrimSpace(prompt))
	if p == "" {
		return ShapeStatement
	}
	if strings.HasSuffix(strings.TrimRightFunc(p, unicode.IsSpace), "?") {
		return ShapeQuestion
	}

	words := strings.FieldsFunc(p, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	if len(words) == 0 {
		return ShapeStatement
	}
	if len(words) <= 4 {
		joined := strings.Join(words, " ") + " "
		for _, g := range greetings {
			if strings.HasPrefix(joined, g+" ") {
				return ShapeGreeting
			}
		}
	}
	if questionOpeners[words[0]] {
		return ShapeQuestion
	}
	return ShapeStatement
}

// templates holds message variants per reason and prompt shape.
var templates = map[types.Reason]map[Shape][]string{
	types.ReasonThrottled: {
		ShapeGreeting: {
			"Hi! I'm handling a lot right now. Give me a moment and say hello again.",
			"Hello! Things are busy on my side. Please try again shortly.",
		},
		ShapeQuestion: {
			"That's a good question, but I'm busy with other requests. Please ask again shortly.",
			"I'd like to answer that, but I'm at capacity right now. Try again in a moment.",
		},
		ShapeStatement: {
			"The system is busy right now. Please try again shortly.",
			"I'm busy with other requests at the moment. Please try again in a little while.",
		},
	},
	types.ReasonTransient: {
		ShapeGreeting: {
			"Hi! I'm having trouble connecting right now. Please try again in a moment.",
		},
		ShapeQuestion: {
			"I couldn't reach the service to answer that. Please try again later.",
			"I ran into a temporary problem while working on your question. Please try again later.",
		},
		ShapeStatement: {
			"I'm having a temporary problem. Please try again later.",
			"Something went wrong on my side. Please try again in a few moments.",
		},
	},
	types.ReasonMalformed: {
		ShapeGreeting: {
			"Hello! I got a bit tangled up there. Could you say that again?",
		},
		ShapeQuestion: {
			"Sorry, I couldn't put together a proper answer to that. Could you rephrase the question?",
			"I'm sorry, my answer came out garbled. Please try asking again.",
		},
		ShapeStatement: {
			"Sorry, I couldn't form a proper response. Could you try again?",
			"I'm sorry, something went wrong while preparing my reply.",
		},
	},
	types.ReasonUnknown: {
		ShapeGreeting: {
			"Hello! Something unexpected happened on my side. Please try again.",
		},
		ShapeQuestion: {
			"I'm sorry, I couldn't answer that due to an unexpected problem. Please try again.",
		},
		ShapeStatement: {
			"I'm sorry, something unexpected happened. Please try again.",
		},
	},
}

// moods maps a caller-supplied mood tag to a tone prefix.
var moods = map[string]string{
	"calm":       "No rush.",
	"serene":     "No rush.",
	"curious":    "Hmm, interesting.",
	"playful":    "Oops!",
	"excited":    "Oh no, just when it was getting good!",
	"happy":      "Sorry to interrupt the good mood.",
	"focused":    "Quick note:",
	"reflective": "Let me gather my thoughts.",
	"sad":        "I'm sorry.",
	"melancholy": "I'm sorry.",
	"anxious":    "Nothing to worry about.",
	"frustrated": "I understand this is frustrating.",
}

// Generator builds fallback messages. The zero value is not usable; call New.
type Generator struct {
	logger *slog.Logger

	// fault is invoked at each generation stage; tests use it to inject panics.
	fault func(stage string)
}

// New creates a Generator.
func New(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{logger: logger}
}

// Generate returns a non-empty message for reason, tailored by the request's
// prompt shape and mood tag when available. req may be nil.
func (g *Generator) Generate(reason types.Reason, req *types.Request) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			if g != nil && g.logger != nil {
				g.logger.Error("fallback generation panicked", "reason", reason.String(), "panic", fmt.Sprint(r))
			}
			msg = safeDefault(reason)
		}
		if strings.TrimSpace(msg) == "" {
			msg = LastResort
		}
	}()

	g.inject("classify")
	shape := ShapeStatement
	if req != nil {
		shape = ClassifyPrompt(req.Prompt)
	}

	g.inject("select")
	variants := templates[reason][shape]
	if len(variants) == 0 {
		variants = templates[types.ReasonUnknown][shape]
	}
	if len(variants) == 0 {
		return LastResort
	}
	base := variants[pick(req, len(variants))]

	g.inject("tone")
	if prefix, ok := moods[strings.ToLower(strings.TrimSpace(req.Tag(types.ContextMood)))]; ok {
		base = prefix + " " + base
	}
	return base
}

// Result wraps Generate into a FallbackResult.
func (g *Generator) Result(reason types.Reason, req *types.Request) types.FallbackResult {
	return types.FallbackResult{Reason: reason, Message: g.Generate(reason, req)}
}

func (g *Generator) inject(stage string) {
	if g.fault != nil {
		g.fault(stage)
	}
}

// safeDefault is the context-free message for reason.
func safeDefault(reason types.Reason) (msg string) {
	defer func() {
		if recover() != nil {
			msg = LastResort
		}
	}()
	switch reason {
	case types.ReasonThrottled:
		return "The system is busy right now. Please try again shortly."
	case types.ReasonTransient:
		return "I'm having a temporary problem. Please try again later."
	default:
		return LastResort
	}
}

// pick chooses a variant deterministically from the prompt so that repeated
// failures for the same prompt read the same.
func pick(req *types.Request, n int) int {
	if n <= 1 || req == nil {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(req.Prompt))
	return int(h.Sum32() % uint32(n))
}
