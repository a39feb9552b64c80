// Package resolver provides strategies that read and write the message type
// tag of a structured message.
//
// Two strategies are available and they are symmetric: whatever Read looks
// for, the Write methods produce in the same location.
//
//   - HeaderBased keeps the tag in a header, independent of the payload shape.
//   - PayloadBased keeps the tag in a payload field, for brokers or routing
//     layers without custom headers.
//
// Resolvers are immutable after construction and safe for concurrent use.
package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coregx/msgdispatch/model"
)

// ErrBlankField is returned when a strategy is configured with a blank field name.
var ErrBlankField = errors.New("field name must not be blank")

// TypeResolver reads the type tag from inbound messages and stamps it into
// outbound ones.
type TypeResolver interface {
	// Read returns the tag of msg. The second result is false when the
	// designated field is missing or blank. Read never fails.
	Read(msg *model.StructuredMessage) (model.MessageType, bool)

	// WriteTyped stamps the tag exposed by src. A blank tag writes nothing.
	WriteTyped(src model.TypeAware, payload model.Payload, headers model.Headers)

	// WriteMap stamps the tag carried as a field of src. A missing or blank
	// tag writes nothing.
	WriteMap(src map[string]any, payload model.Payload, headers model.Headers)

	// Name describes the strategy for logs and error messages.
	Name() string
}

// typedTag returns the non-blank tag reported by src. A nil src reports no
// tag, and so does a nil pointer whose MessageType method panics.
func typedTag(src model.TypeAware) (tag model.MessageType, ok bool) {
	if src == nil {
		return model.UnknownMessageType, false
	}
	defer func() {
		if recover() != nil {
			tag, ok = model.UnknownMessageType, false
		}
	}()
	tag = src.MessageType()
	return tag, !tag.IsBlank()
}

// Stringify converts a header or payload value to its tag string.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case model.MessageType:
		return string(val)
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// tagOf returns the non-blank tag stored under field in values.
func tagOf(values map[string]any, field string) (model.MessageType, bool) {
	if values == nil {
		return model.UnknownMessageType, false
	}
	v, ok := values[field]
	if !ok {
		return model.UnknownMessageType, false
	}
	s := Stringify(v)
	if strings.TrimSpace(s) == "" {
		return model.UnknownMessageType, false
	}
	return model.MessageType(s), true
}

func requireField(role, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s: %w", role, ErrBlankField)
	}
	return nil
}
