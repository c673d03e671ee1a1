package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/goccy/go-json"
	"golang.org/x/text/unicode/norm"
)

// KeyGenerator derives cache keys from request content. Two requests that
// differ only in prompt whitespace, Unicode composition or parameter map
// ordering produce the same key.
type KeyGenerator struct {
	// Prefix is prepended to all generated keys.
	Prefix string
}

// NewKeyGenerator creates a new KeyGenerator with optional prefix.
func NewKeyGenerator(prefix string) *KeyGenerator {
	return &KeyGenerator{Prefix: prefix}
}

// Generate creates a SHA-256 key from the prompt and parameters.
// The key format is: [prefix:]sha256(prompt|params)
func (g *KeyGenerator) Generate(prompt string, params map[string]any) string {
	var sb strings.Builder

	sb.WriteString("prompt:")
	sb.WriteString(NormalizePrompt(prompt))

	if len(params) > 0 {
		sb.WriteString("|params:")
		writeCanonical(&sb, params)
	}

	hash := sha256.Sum256([]byte(sb.String()))
	hashHex := hex.EncodeToString(hash[:])

	if g.Prefix == "" {
		return hashHex
	}
	return g.Prefix + ":" + hashHex
}

// NormalizePrompt applies NFC normalization, trims the prompt and collapses
// internal whitespace runs to a single space.
func NormalizePrompt(prompt string) string {
	prompt = norm.NFC.String(prompt)
	return strings.Join(strings.FieldsFunc(prompt, unicode.IsSpace), " ")
}

// writeCanonical serializes v with sorted map keys. Values the canonical
// writer does not know are encoded with go-json, which also sorts map keys.
func writeCanonical(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case string:
		sb.WriteString(strconv.Quote(val))
	case bool:
		sb.WriteString(strconv.FormatBool(val))
	case int:
		sb.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		sb.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		sb.WriteString(strconv.FormatInt(val, 10))
	case float32:
		writeFloat(sb, float64(val))
	case float64:
		writeFloat(sb, val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte(':')
			writeCanonical(sb, val[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		data, err := json.Marshal(val)
		if err != nil {
			fmt.Fprintf(sb, "%q", fmt.Sprintf("%v", val))
			return
		}
		sb.Write(data)
	}
}

// writeFloat renders integral floats like integers so 1 and 1.0 share a key.
func writeFloat(sb *strings.Builder, f float64) {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		sb.WriteString(strconv.FormatInt(int64(f), 10))
		return
	}
	sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}
