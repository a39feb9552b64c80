package resolver

import "github.com/coregx/msgdispatch/model"

type noop struct{}

// NoOp returns a resolver that never finds a tag and never writes one.
// A listener using it routes every message to its catch-all consumer.
func NoOp() TypeResolver {
	return noop{}
}

func (noop) Read(*model.StructuredMessage) (model.MessageType, bool) {
	return model.UnknownMessageType, false
}

func (noop) WriteTyped(model.TypeAware, model.Payload, model.Headers) {}

func (noop) WriteMap(map[string]any, model.Payload, model.Headers) {}

func (noop) Name() string { return "NoOp" }
