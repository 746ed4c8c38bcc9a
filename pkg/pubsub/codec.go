package pubsub

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// reserved lists the characters the endpoint expects escaped inside a path
// segment.
const reserved = " ~`!@#$%^&*()+=[]\\{}|;':\",./<>?"

const hexDigits = "0123456789ABCDEF"

// EncodeSegment escapes every reserved character of s as '%' followed by
// two uppercase hex digits. All other characters, including non-ASCII
// runes, pass through unchanged. The escape marker '%' is itself reserved,
// so encoding is not idempotent: apply it exactly once.
func EncodeSegment(s string) string {
	if !strings.ContainsAny(s, reserved) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		if r < 0x80 && strings.ContainsRune(reserved, r) {
			b.WriteByte('%')
			b.WriteByte(hexDigits[r>>4])
			b.WriteByte(hexDigits[r&0x0f])
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Encode applies EncodeSegment to every segment, preserving order.
func Encode(segments []string) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = EncodeSegment(s)
	}
	return out
}

// Decode parses body as a JSON document into v. Numbers decode as
// json.Number when v is an interface so that 17-digit time tokens keep
// their precision. A malformed body yields a *DecodeError.
func Decode(op string, body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}

// marshalCompact serializes v without insignificant whitespace and without
// HTML escaping, the canonical form used for publishing and signing.
func marshalCompact(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

var errMissingToken = errors.New("missing time token")

// tokenString renders a decoded time token verbatim. A null, empty or
// blank token is errMissingToken.
func tokenString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errMissingToken
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		if strings.TrimSpace(s) == "" {
			return "", errMissingToken
		}
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", err
	}
	return n.String(), nil
}
