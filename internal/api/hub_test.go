package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmsas95/devocr/internal/convert"
)

func receive(t *testing.T, ch <-chan convert.Event) convert.Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	return convert.Event{}
}

func TestHub_PublishSubscribe(t *testing.T) {
	h := NewHub()
	events, unsubscribe := h.Subscribe("s1")
	defer unsubscribe()

	h.Observer().OnEvent(convert.Event{Session: "s1", Phase: convert.PhasePreview, Fraction: 0.5})
	h.Publish(convert.Event{Session: "s2", Phase: convert.PhaseFull})

	e := receive(t, events)
	assert.Equal(t, convert.PhasePreview, e.Phase)
	assert.Equal(t, 0.5, e.Fraction)
	assert.Empty(t, events)
}

func TestHub_ReplaysLatest(t *testing.T) {
	h := NewHub()
	h.Publish(convert.Event{Session: "s1", Phase: convert.PhaseRaster})
	h.Publish(convert.Event{Session: "s1", Phase: convert.PhaseFull, Fraction: 0.25})

	events, unsubscribe := h.Subscribe("s1")
	defer unsubscribe()
	e := receive(t, events)
	assert.Equal(t, convert.PhaseFull, e.Phase)

	h.Forget("s1")
	late, cancel := h.Subscribe("s1")
	defer cancel()
	assert.Empty(t, late)
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub()
	events, unsubscribe := h.Subscribe("s1")
	assert.Equal(t, 1, h.Subscribers("s1"))

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, h.Subscribers("s1"))
	_, ok := <-events
	assert.False(t, ok)

	h.Publish(convert.Event{Session: "s1"})
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	_, unsubscribe := h.Subscribe("s1")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Publish(convert.Event{Session: "s1", Index: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	events, unsubscribe := h.Subscribe("s1")

	h.Close()
	_, ok := <-events
	assert.False(t, ok)
	unsubscribe()

	after, _ := h.Subscribe("s1")
	_, ok = <-after
	assert.False(t, ok)
	h.Publish(convert.Event{Session: "s1"})
}
