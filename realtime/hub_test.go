package realtime

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "subscription channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestPublishReachesRegisteredSubscribers(t *testing.T) {
	hub := NewHub(8, quietLogger())
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer a.Close()
	defer b.Close()

	hub.Publish("X", map[string]int{"group_id": 7})

	for _, s := range []*Subscription{a, b} {
		ev := receive(t, s)
		assert.Equal(t, "X", ev.Type)
		assert.Equal(t, map[string]int{"group_id": 7}, ev.Data)
		assert.Empty(t, s.Events(), "exactly one event expected")
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	hub := NewHub(8, quietLogger())
	hub.Publish("X", 1)

	late := hub.Subscribe()
	defer late.Close()
	assert.Empty(t, late.Events())

	hub.Publish("Y", 2)
	assert.Equal(t, "Y", receive(t, late).Type)
}

func TestCloseDeregisters(t *testing.T) {
	hub := NewHub(8, quietLogger())
	s := hub.Subscribe()
	require.Equal(t, 1, hub.Len())

	s.Close()
	s.Close()
	assert.Equal(t, 0, hub.Len())

	_, ok := <-s.Events()
	assert.False(t, ok)

	// publishing after close must not panic on the closed channel
	hub.Publish("X", nil)
}

func TestFullSubscriberIsDropped(t *testing.T) {
	hub := NewHub(1, quietLogger())
	slow := hub.Subscribe()
	fast := hub.Subscribe()
	defer fast.Close()

	hub.Publish("first", nil)
	receive(t, fast)
	hub.Publish("second", nil)

	assert.Equal(t, 1, hub.Len())
	ev, ok := <-slow.Events()
	require.True(t, ok)
	assert.Equal(t, "first", ev.Type)
	_, ok = <-slow.Events()
	assert.False(t, ok, "dropped subscriber channel should be closed")

	assert.Equal(t, "second", receive(t, fast).Type)
}

func TestPerSubscriberOrder(t *testing.T) {
	hub := NewHub(100, quietLogger())
	s := hub.Subscribe()
	defer s.Close()

	for i := 0; i < 50; i++ {
		hub.Publish("n", i)
	}
	for i := 0; i < 50; i++ {
		assert.Equal(t, i, receive(t, s).Data)
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	hub := NewHub(1000, quietLogger())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Publish("tick", j)
			}
		}()
		go func() {
			defer wg.Done()
			s := hub.Subscribe()
			s.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Len())
}
