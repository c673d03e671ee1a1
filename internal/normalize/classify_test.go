package normalize

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"

	"github.com/blueberrycongee/llmgov/pkg/types"
)

type customText string

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    types.RawKind
	}{
		{"nil", nil, types.RawEmpty},
		{"empty string", "", types.RawEmpty},
		{"blank string", "   ", types.RawEmpty},
		{"text", "hello", types.RawText},
		{"bytes", []byte("hello"), types.RawText},
		{"raw json", json.RawMessage(`{"a":1}`), types.RawText},
		{"number", 12, types.RawText},
		{"custom string type", customText("hi"), types.RawText},
		{"map", map[string]any{"response": "x"}, types.RawStructured},
		{"string map", map[string]string{"answer": "x"}, types.RawStructured},
		{"typed map", map[string]int{"result": 1}, types.RawStructured},
		{"empty map", map[string]any{}, types.RawEmpty},
		{"error value", errors.New("boom"), types.RawErrorShaped},
		{"error map", map[string]any{"error": map[string]any{"code": 500}}, types.RawErrorShaped},
		{"single element list", []any{map[string]any{"text": "x"}}, types.RawStructured},
		{"empty list", []any{}, types.RawEmpty},
		{"multi list", []any{"a", "b"}, types.RawObjectLike},
		{"struct", agentReply{Content: "x"}, types.RawObjectLike},
		{"nil pointer", (*agentReply)(nil), types.RawEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.payload).Kind)
		})
	}
}

func TestClassify_ErrorMessage(t *testing.T) {
	raw := Classify(map[string]any{"success": false, "message": "quota exhausted"})
	assert.Equal(t, types.RawErrorShaped, raw.Kind)
	assert.Equal(t, "quota exhausted", raw.Err)
}

func TestClassify_PassesThroughRawResponse(t *testing.T) {
	in := types.RawResponse{Kind: types.RawText, Text: "x"}
	assert.Equal(t, in, Classify(in))
	assert.Equal(t, types.RawEmpty, Classify((*types.RawResponse)(nil)).Kind)
}
