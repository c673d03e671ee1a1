package api //nolint:revive // package name is intentional

// ErrorResponse is the error envelope returned for rejected HTTP requests.
// Orchestrated calls never produce it; their failures become fallback text.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes the error payload.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// Error types.
const (
	ErrTypeInvalidRequest = "invalid_request_error"
	ErrTypeUnavailable    = "service_unavailable"
)
