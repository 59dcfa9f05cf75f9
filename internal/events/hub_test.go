package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishSubscribe(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()
	require.Equal(t, 2, h.Clients())

	h.Publish("hello")
	assert.Equal(t, "hello", <-a)
	assert.Equal(t, "hello", <-b)

	h.Unsubscribe(a)
	h.Unsubscribe(a)
	assert.Equal(t, 1, h.Clients())
	_, open := <-a
	assert.False(t, open)
}

func TestHub_DropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	for i := 0; i < h.buf+5; i++ {
		h.Publish("x")
	}
	assert.Len(t, ch, h.buf)
}

func TestMakeEvent(t *testing.T) {
	s := MakeEvent("req-1", JobStatusChanged, JobStatusData{JobID: 7, Status: "Interview", OccurredAt: "2024-01-15T09:30:00Z"})

	var e Event
	require.NoError(t, json.Unmarshal([]byte(s), &e))
	assert.Equal(t, JobStatusChanged, e.Type)
	assert.Equal(t, Version, e.Version)
	assert.Equal(t, "req-1", e.RequestID)
	assert.False(t, e.At.IsZero())

	var d JobStatusData
	require.NoError(t, json.Unmarshal(e.Data, &d))
	assert.Equal(t, int64(7), d.JobID)
	assert.Equal(t, "Interview", d.Status)
}

func TestEmit_NilPublisher(t *testing.T) {
	assert.NotPanics(t, func() { Emit(nil, "", PollStarted, nil) })
}
