package resolver

import (
	"fmt"

	"github.com/coregx/msgdispatch/model"
)

// PayloadBased keeps the message type in a payload field.
type PayloadBased struct {
	field string
}

// NewPayloadBased creates a payload strategy using field for both reading and
// writing.
func NewPayloadBased(field string) (*PayloadBased, error) {
	if err := requireField("payload field", field); err != nil {
		return nil, err
	}
	return &PayloadBased{field: field}, nil
}

// Field returns the payload field that carries the tag.
func (r *PayloadBased) Field() string {
	return r.field
}

// Read returns the tag from the payload field.
func (r *PayloadBased) Read(msg *model.StructuredMessage) (model.MessageType, bool) {
	if msg == nil {
		return model.UnknownMessageType, false
	}
	return tagOf(msg.Payload, r.field)
}

// WriteTyped writes the tag of src into the payload field.
func (r *PayloadBased) WriteTyped(src model.TypeAware, payload model.Payload, _ model.Headers) {
	if payload == nil {
		return
	}
	if tag, ok := typedTag(src); ok {
		payload[r.field] = tag.String()
	}
}

// WriteMap copies the tag field of src into the payload.
func (r *PayloadBased) WriteMap(src map[string]any, payload model.Payload, _ model.Headers) {
	if payload == nil {
		return
	}
	if tag, ok := tagOf(src, r.field); ok {
		payload[r.field] = tag.String()
	}
}

// Name implements TypeResolver.
func (r *PayloadBased) Name() string {
	return fmt.Sprintf("PayloadBased[field: %s]", r.field)
}
