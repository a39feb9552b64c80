// Package codec converts application payloads to and from their structured
// form and encodes structured messages for the wire.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/coregx/msgdispatch/model"
)

// Codec errors.
var (
	// ErrInvalidJSON is returned when wire bytes are not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON")

	// ErrNotObject is returned when a value does not have an object form.
	ErrNotObject = errors.New("value is not a JSON object")
)

// Codec converts between application objects and structured payloads.
// Implementations must be safe for concurrent use.
type Codec interface {
	// ToStructured converts v into a field name to value mapping.
	ToStructured(v any) (model.Payload, error)

	// ToTyped fills target, a pointer, from p.
	ToTyped(p model.Payload, target any) error
}

type jsonCodec struct{}

// JSON returns the default codec. It uses the json struct tags of the payload
// types.
func JSON() Codec {
	return jsonCodec{}
}

func (jsonCodec) ToStructured(v any) (model.Payload, error) {
	if p, ok := v.(model.Payload); ok {
		return clonePayload(p)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return DecodePayload(raw)
}

func (jsonCodec) ToTyped(p model.Payload, target any) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("unmarshal into %T: %w", target, err)
	}
	return nil
}

// clonePayload deep copies p through its JSON form so that the codec never
// hands out the caller's map.
func clonePayload(p model.Payload) (model.Payload, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return DecodePayload(raw)
}

// EncodePayload renders p as JSON.
func EncodePayload(p model.Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// DecodePayload parses a JSON object.
func DecodePayload(raw []byte) (model.Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, ErrNotObject
	}
	var p model.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return p, nil
}

// Peek returns the string form of the value at path in a JSON document.
func Peek(raw []byte, path string) (string, bool) {
	r := gjson.GetBytes(raw, path)
	if !r.Exists() {
		return "", false
	}
	if r.Type == gjson.String {
		return r.Str, true
	}
	return r.Raw, true
}
