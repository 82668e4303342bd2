package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aviaryhq/aviary-go/internal/events"
	"github.com/aviaryhq/aviary-go/internal/logger"
)

func init() {
	logger.Init("error", false)
}

func TestClient_SubscribeReplacesSet(t *testing.T) {
	c := NewClient(nil, nil)
	c.SubscribeAll()

	// Connected clients receive everything until they send a filter
	assert.True(t, c.IsSubscribed(events.EventTaskSubmitted))
	assert.True(t, c.IsSubscribed(events.EventTaskFailed))

	c.handleMessage([]byte(`{"action":"subscribe","events":["task.failed"]}`))

	assert.True(t, c.IsSubscribed(events.EventTaskFailed))
	assert.False(t, c.IsSubscribed(events.EventTaskSubmitted))
	assert.False(t, c.IsSubscribed(events.EventTaskSucceeded))
}

func TestClient_SubscribeEmptyRestoresAll(t *testing.T) {
	c := NewClient(nil, nil)
	c.SubscribeAll()

	c.handleMessage([]byte(`{"action":"subscribe","events":["task.succeeded"]}`))
	assert.False(t, c.IsSubscribed(events.EventTaskStarted))

	c.handleMessage([]byte(`{"action":"subscribe"}`))
	for _, et := range events.AllTaskEvents {
		assert.True(t, c.IsSubscribed(et))
	}
}

func TestClient_Unsubscribe(t *testing.T) {
	c := NewClient(nil, nil)
	c.SubscribeAll()

	c.handleMessage([]byte(`{"action":"unsubscribe","events":["task.submitted","task.started"]}`))

	assert.False(t, c.IsSubscribed(events.EventTaskSubmitted))
	assert.False(t, c.IsSubscribed(events.EventTaskStarted))
	assert.True(t, c.IsSubscribed(events.EventTaskSucceeded))
}

func TestClient_MalformedMessageIgnored(t *testing.T) {
	c := NewClient(nil, nil)
	c.SubscribeAll()

	c.handleMessage([]byte(`{not json`))

	for _, et := range events.AllTaskEvents {
		assert.True(t, c.IsSubscribed(et))
	}
}
