package msgdispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/require"

	"github.com/coregx/msgdispatch/model"
	"github.com/coregx/msgdispatch/resolver"
)

// recordingLogger keeps formatted log lines per level.
type recordingLogger struct {
	mu    sync.Mutex
	lines map[string][]string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{lines: map[string][]string{}}
}

func (l *recordingLogger) record(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines[level] = append(l.lines[level], fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Debugf(format string, args ...interface{}) {
	l.record("debug", format, args...)
}
func (l *recordingLogger) Infof(format string, args ...interface{}) {
	l.record("info", format, args...)
}
func (l *recordingLogger) Warnf(format string, args ...interface{}) {
	l.record("warn", format, args...)
}
func (l *recordingLogger) Errorf(format string, args ...interface{}) {
	l.record("error", format, args...)
}
func (l *recordingLogger) Info(message string) { l.record("info", "%s", message) }

func (l *recordingLogger) get(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines[level]...)
}

func (l *recordingLogger) contains(level, substr string) bool {
	for _, line := range l.get(level) {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// sentMessage is one call observed by recordingBroker.
type sentMessage struct {
	destination string
	msg         *model.StructuredMessage
}

type recordingBroker struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (b *recordingBroker) Send(_ context.Context, destination string, msg *model.StructuredMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, sentMessage{destination: destination, msg: msg.Clone()})
	return nil
}

func (b *recordingBroker) calls() []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentMessage(nil), b.sent...)
}

// countingObserver counts observer callbacks by event name.
type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
	last   map[string]string
}

func newCountingObserver() *countingObserver {
	return &countingObserver{counts: map[string]int{}, last: map[string]string{}}
}

func (o *countingObserver) hit(event, detail string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[event]++
	o.last[event] = detail
}

func (o *countingObserver) MessagePublished(_, messageType string) { o.hit("published", messageType) }
func (o *countingObserver) PublishFailed(_, reason string)         { o.hit("publish_failed", reason) }
func (o *countingObserver) MessageDispatched(_, messageType string, _ time.Duration) {
	o.hit("dispatched", messageType)
}
func (o *countingObserver) ConsumeFailed(_, _, reason string)   { o.hit("consume_failed", reason) }
func (o *countingObserver) MessageIgnored(listenerID string)    { o.hit("ignored", listenerID) }
func (o *countingObserver) DeliveryCompleted(_, outcome string) { o.hit("delivery_"+outcome, outcome) }

func (o *countingObserver) count(event string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[event]
}

func (o *countingObserver) lastDetail(event string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last[event]
}

type orderCreated struct {
	OrderID    string  `json:"orderId"`
	CustomerID string  `json:"customerId"`
	Amount     float64 `json:"amount"`
	CardNumber string  `json:"cardNumber,omitempty"`
}

func (orderCreated) MessageType() model.MessageType { return "ORDER_CREATED" }

func (o orderCreated) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.OrderID, validation.Required),
		validation.Field(&o.Amount, validation.Min(0.0)),
	)
}

func (orderCreated) SensitiveFields() []string { return []string{"cardNumber"} }

type orderCancelled struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

func (orderCancelled) MessageType() model.MessageType { return "ORDER_CANCELLED" }

// untyped carries a blank tag.
type untyped struct {
	Note string `json:"note"`
}

func (untyped) MessageType() model.MessageType { return model.UnknownMessageType }

func headerResolver(t *testing.T) *resolver.HeaderBased {
	t.Helper()
	r, err := resolver.NewHeaderBased("messageType", "type")
	require.NoError(t, err)
	return r
}

func payloadResolver(t *testing.T) *resolver.PayloadBased {
	t.Helper()
	r, err := resolver.NewPayloadBased("type")
	require.NoError(t, err)
	return r
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("msg-%d", n)
	}
}
