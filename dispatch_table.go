package msgdispatch

import (
	"fmt"
	"slices"
	"strings"

	"github.com/coregx/msgdispatch/model"
)

// Binding pairs a message type with the consumer it is routed to.
type Binding struct {
	MessageType model.MessageType `json:"messageType"`
	Consumer    string            `json:"consumer"`
	PayloadType string            `json:"payloadType"`
}

// dispatchTable maps message types to consumers. It is built once and never
// mutated afterwards, so lookups need no locking.
type dispatchTable struct {
	keys      []model.MessageType
	consumers map[model.MessageType]Consumer
}

// newDispatchTable selects the consumers of listenerID from candidates and
// indexes them by message type. The catch-all consumer is stored under
// model.UnknownMessageType.
func newDispatchTable(listenerID string, candidates []Consumer, logger Logger) (*dispatchTable, error) {
	t := &dispatchTable{
		consumers: make(map[model.MessageType]Consumer),
	}

	for _, c := range candidates {
		if c == nil {
			return nil, NewError(ErrCodeConfiguration, "message consumer cannot be nil")
		}
		if c.ListenerID() != listenerID {
			continue
		}

		tag := model.UnknownMessageType
		if !c.ConsumesUnknownTypes() {
			tag = c.MessageType()
			if tag.IsBlank() {
				return nil, NewError(ErrCodeConfiguration, fmt.Sprintf(
					"Can't bind message consumer [%s]: message type is blank", c.Name()))
			}
		}

		if existing, ok := t.consumers[tag]; ok {
			return nil, NewError(ErrCodeConfiguration, fmt.Sprintf(
				"Can't bind message consumer [%s]: message type %s is already bound to consumer [%s]",
				c.Name(), tag.DisplayName(), existing.Name()))
		}

		pos, _ := slices.BinarySearch(t.keys, tag)
		t.keys = slices.Insert(t.keys, pos, tag)
		t.consumers[tag] = c
	}

	if len(t.keys) == 0 {
		logger.Warnf("Message listener [%s] accepts messages, but doesn't dispatch them: no consumers bound", listenerID)
	} else {
		logger.Infof("Message listener [%s] dispatches %d message type(s): %s", listenerID, len(t.keys), t.describe())
	}

	return t, nil
}

// lookup finds the consumer for tag, falling back to the catch-all consumer
// when tag has no consumer of its own. key is the table entry that matched:
// tag itself or model.UnknownMessageType for the catch-all.
func (t *dispatchTable) lookup(tag model.MessageType) (c Consumer, key model.MessageType, ok bool) {
	if c, ok := t.consumers[tag]; ok {
		return c, tag, true
	}
	c, ok = t.consumers[model.UnknownMessageType]
	return c, model.UnknownMessageType, ok
}

func (t *dispatchTable) bindings() []Binding {
	out := make([]Binding, 0, len(t.keys))
	for _, k := range t.keys {
		c := t.consumers[k]
		out = append(out, Binding{
			MessageType: k,
			Consumer:    c.Name(),
			PayloadType: c.PayloadType(),
		})
	}
	return out
}

func (t *dispatchTable) describe() string {
	parts := make([]string, 0, len(t.keys))
	for _, k := range t.keys {
		parts = append(parts, fmt.Sprintf("%s -> %s", k.DisplayName(), t.consumers[k].Name()))
	}
	return strings.Join(parts, ", ")
}
