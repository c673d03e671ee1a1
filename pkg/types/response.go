package types //nolint:revive // package name is intentional

import "fmt"

// RawKind tags the shape of a backend payload. Classification happens once,
// at the ingestion boundary, before any extraction logic runs.
type RawKind int

const (
	// RawEmpty is nil, an empty string, or whitespace only.
	RawEmpty RawKind = iota
	// RawText is a plain string (possibly JSON-encoded text).
	RawText
	// RawStructured is a decoded map-like value (map[string]any or similar).
	RawStructured
	// RawObjectLike is a Go struct, pointer to struct, or other value whose
	// attributes can be inspected.
	RawObjectLike
	// RawErrorShaped is an error value or an error payload reported as success.
	RawErrorShaped
)

func (k RawKind) String() string {
	switch k {
	case RawEmpty:
		return "empty"
	case RawText:
		return "text"
	case RawStructured:
		return "structured"
	case RawObjectLike:
		return "object"
	case RawErrorShaped:
		return "error"
	default:
		return "unknown"
	}
}

// RawResponse is a classified backend payload. Exactly one of Text,
// Fields, Object or Err is meaningful, depending on Kind.
type RawResponse struct {
	Kind   RawKind
	Text   string
	Fields map[string]any
	Object any
	Err    string
}

// NormalizedResult is validated text extracted from a backend payload.
type NormalizedResult struct {
	Text string `json:"text"`
	// Strategy names the extractor that produced Text, for diagnostics.
	Strategy string `json:"strategy"`
}

// Reason classifies why a call could not be answered by the backend.
type Reason int

const (
	// ReasonThrottled means the breaker or limiter rejected the call before
	// the backend was contacted.
	ReasonThrottled Reason = iota
	// ReasonTransient means timeouts or connection failures exhausted retries.
	ReasonTransient
	// ReasonMalformed means the backend answered but nothing usable could be
	// extracted from the payload.
	ReasonMalformed
	// ReasonUnknown covers any unclassified internal failure.
	ReasonUnknown
)

// Reasons lists every reason in declaration order.
var Reasons = []Reason{ReasonThrottled, ReasonTransient, ReasonMalformed, ReasonUnknown}

func (r Reason) String() string {
	switch r {
	case ReasonThrottled:
		return "throttled"
	case ReasonTransient:
		return "transient"
	case ReasonMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Reason) UnmarshalText(b []byte) error {
	for _, v := range Reasons {
		if v.String() == string(b) {
			*r = v
			return nil
		}
	}
	return fmt.Errorf("unknown reason %q", b)
}

// FallbackResult is the substitute answer produced on a failure path.
type FallbackResult struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

// Source reports where a caller-facing answer came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceBackend  Source = "backend"
	SourceFallback Source = "fallback"
)

// CallResult is the detailed outcome of a call. Text is always non-empty.
type CallResult struct {
	Text      string `json:"text"`
	Source    Source `json:"source"`
	RequestID string `json:"request_id,omitempty"`
	// Strategy is set when Source is SourceBackend.
	Strategy string `json:"strategy,omitempty"`
	// Reason is set when Source is SourceFallback.
	Reason *Reason `json:"reason,omitempty"`
	// Attempts is the number of backend attempts made.
	Attempts int `json:"attempts"`
}
