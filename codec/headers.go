package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/coregx/msgdispatch/model"
)

// headerEnvelope is the stored form of a header set. Byte slice values, such
// as the message key, live in Bytes (base64 in JSON) and every other value
// lives in Values, so a string value is never mistaken for bytes.
type headerEnvelope struct {
	Values json.RawMessage   `json:"values,omitempty"`
	Bytes  map[string][]byte `json:"bytes,omitempty"`
}

// EncodeHeaders renders headers as a JSON envelope of the form
// {"values":{...},"bytes":{"name":"<base64>"}}.
func EncodeHeaders(h model.Headers) ([]byte, error) {
	values := make(map[string]any, len(h))
	var env headerEnvelope
	for k, v := range h {
		if b, ok := v.([]byte); ok {
			if env.Bytes == nil {
				env.Bytes = make(map[string][]byte)
			}
			if b == nil {
				b = []byte{}
			}
			env.Bytes[k] = b
			continue
		}
		values[k] = v
	}
	if len(values) > 0 {
		raw, err := json.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("marshal headers: %w", err)
		}
		env.Values = raw
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal headers: %w", err)
	}
	return raw, nil
}

// DecodeHeaders parses headers produced by EncodeHeaders. Empty input yields
// empty headers.
func DecodeHeaders(raw []byte) (model.Headers, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return model.Headers{}, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("decode headers: %w", ErrInvalidJSON)
	}

	var env headerEnvelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}

	h := make(model.Headers, len(env.Bytes))
	if len(env.Values) > 0 && string(env.Values) != "null" {
		values, err := DecodePayload(env.Values)
		if err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
		for k, v := range values {
			h[k] = v
		}
	}
	for k, b := range env.Bytes {
		if _, dup := h[k]; dup {
			return nil, fmt.Errorf("decode headers: %s is both a value and bytes", k)
		}
		h[k] = b
	}
	return h, nil
}

// HeaderBytes converts a header value to the bytes carried by broker
// transports with binary header values.
func HeaderBytes(v any) []byte {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return val
	case string:
		return []byte(val)
	case fmt.Stringer:
		return []byte(val.String())
	default:
		return []byte(fmt.Sprint(val))
	}
}

// HeaderString converts a header value to the string carried by broker
// transports with text header values.
func HeaderString(v any) string {
	return string(HeaderBytes(v))
}
