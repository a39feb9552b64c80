package metric

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/msgdispatch"
	"github.com/coregx/msgdispatch/model"
	"github.com/coregx/msgdispatch/resolver"
)

var _ msgdispatch.Observer = (*Metrics)(nil)

func TestMetrics_Publisher(t *testing.T) {
	m := NewMetrics()

	m.MessagePublished("orders", "ORDER_CREATED")
	m.MessagePublished("orders", "ORDER_CREATED")
	m.MessagePublished("orders", "")
	m.PublishFailed("orders", msgdispatch.ErrCodeTransport)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesPublished.WithLabelValues("orders", "ORDER_CREATED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesPublished.WithLabelValues("orders", "unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishFailures.WithLabelValues("orders", msgdispatch.ErrCodeTransport)))
}

func TestMetrics_Listener(t *testing.T) {
	m := NewMetrics()

	m.MessageDispatched("orders-listener", "ORDER_CREATED", 15*time.Millisecond)
	m.ConsumeFailed("orders-listener", "ORDER_CANCELLED", "consume")
	m.MessageIgnored("orders-listener")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesDispatched.WithLabelValues("orders-listener", "ORDER_CREATED")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.DispatchDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsumeFailures.WithLabelValues("orders-listener", "ORDER_CANCELLED", "consume")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesIgnored.WithLabelValues("orders-listener")))
}

func TestMetrics_ListenerSeriesStayBounded(t *testing.T) {
	m := NewMetrics()
	res, err := resolver.NewHeaderBased("messageType", "type")
	require.NoError(t, err)

	noop := func(context.Context, map[string]any, *model.StructuredMessage) error { return nil }
	newListener := func(consumers ...msgdispatch.Consumer) *msgdispatch.Listener {
		l, err := msgdispatch.NewListener("orders-listener",
			msgdispatch.WithResolver(res),
			msgdispatch.WithLogger(&msgdispatch.NoopLogger{}),
			msgdispatch.WithObserver(m),
			msgdispatch.WithConsumers(consumers...),
		)
		require.NoError(t, err)
		return l
	}

	strict := newListener(msgdispatch.Bind("orders-listener", "ORDER_CREATED", noop))
	catchAll := newListener(msgdispatch.BindUnknown("orders-listener", noop))

	ctx := context.Background()
	for i := range 1000 {
		msg := model.NewStructuredMessage(model.Payload{}, model.Headers{"messageType": fmt.Sprintf("TAG_%d", i)})
		require.NoError(t, strict.Accept(ctx, msg))
		require.NoError(t, catchAll.Accept(ctx, msg.Clone()))
	}

	assert.Equal(t, 1, testutil.CollectAndCount(m.MessagesIgnored))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.MessagesIgnored.WithLabelValues("orders-listener")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.MessagesDispatched))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.MessagesDispatched.WithLabelValues("orders-listener", "unknown")))
}

func TestMetrics_Outbox(t *testing.T) {
	m := NewMetrics()

	for _, outcome := range []string{"sent", "sent", "failed", "dead_lettered"} {
		m.DeliveryCompleted("orders-listener", outcome)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("orders-listener", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("orders-listener", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("orders-listener", "dead_lettered")))
}

func TestRegistry_Handler(t *testing.T) {
	reg := NewRegistry()
	reg.Metrics.MessagePublished("orders", "ORDER_CREATED")

	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `msgdispatch_publisher_published_total{destination="orders",type="ORDER_CREATED"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
