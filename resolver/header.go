package resolver

import (
	"fmt"

	"github.com/coregx/msgdispatch/model"
)

// HeaderBased keeps the message type in a header.
type HeaderBased struct {
	headerField  string
	payloadField string
}

// NewHeaderBased creates a header strategy. headerField is the header that
// carries the tag; payloadField is the field WriteMap copies the tag from
// when publishing a loosely typed payload.
func NewHeaderBased(headerField, payloadField string) (*HeaderBased, error) {
	if err := requireField("header field", headerField); err != nil {
		return nil, err
	}
	if err := requireField("payload field", payloadField); err != nil {
		return nil, err
	}
	return &HeaderBased{headerField: headerField, payloadField: payloadField}, nil
}

// HeaderField returns the header that carries the tag.
func (r *HeaderBased) HeaderField() string {
	return r.headerField
}

// Read returns the tag from the configured header.
func (r *HeaderBased) Read(msg *model.StructuredMessage) (model.MessageType, bool) {
	if msg == nil {
		return model.UnknownMessageType, false
	}
	return tagOf(msg.Headers, r.headerField)
}

// WriteTyped writes the tag of src into the header.
func (r *HeaderBased) WriteTyped(src model.TypeAware, _ model.Payload, headers model.Headers) {
	if headers == nil {
		return
	}
	if tag, ok := typedTag(src); ok {
		headers[r.headerField] = tag.String()
	}
}

// WriteMap copies the payload field of src into the header.
func (r *HeaderBased) WriteMap(src map[string]any, _ model.Payload, headers model.Headers) {
	if headers == nil {
		return
	}
	if tag, ok := tagOf(src, r.payloadField); ok {
		headers[r.headerField] = tag.String()
	}
}

// Name implements TypeResolver.
func (r *HeaderBased) Name() string {
	return fmt.Sprintf("HeaderBased[header: %s, payload: %s]", r.headerField, r.payloadField)
}
