package ws

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapdesk/internal/model"
)

func newTestSession(buf int) *Session {
	return &Session{send: make(chan []byte, buf)}
}

func TestBroadcastFanout(t *testing.T) {
	hub := NewHub()
	s1 := newTestSession(4)
	s2 := newTestSession(4)
	other := newTestSession(4)
	hub.attach(s1, 1)
	hub.attach(s2, 1)
	hub.attach(other, 2)

	hub.Broadcast(1, &Event{Type: EvtSnapshot})

	for _, s := range []*Session{s1, s2} {
		select {
		case data := <-s.send:
			var evt Event
			require.NoError(t, json.Unmarshal(data, &evt))
			assert.Equal(t, EvtSnapshot, evt.Type)
		default:
			t.Fatal("expected event")
		}
	}
	// 其他账户的会话收不到
	assert.Len(t, other.send, 0)
}

// 慢消费者不能拖住广播
func TestBroadcastNonBlocking(t *testing.T) {
	hub := NewHub()
	slow := newTestSession(1)
	fast := newTestSession(4)
	hub.attach(slow, 1)
	hub.attach(fast, 1)

	// 填满slow的队列
	hub.Broadcast(1, &Event{Type: EvtSnapshot})

	done := make(chan struct{})
	go func() {
		hub.Broadcast(1, &Event{Type: EvtTrades})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on slow consumer")
	}

	// slow丢了第二条，fast两条都在
	assert.Len(t, slow.send, 1)
	assert.Len(t, fast.send, 2)
}

func TestDetach(t *testing.T) {
	hub := NewHub()
	s := newTestSession(1)
	hub.attach(s, 1)
	assert.Equal(t, 1, hub.Sessions(1))

	hub.detach(s, 1)
	assert.Equal(t, 0, hub.Sessions(1))

	hub.Broadcast(1, &Event{Type: EvtSnapshot})
	assert.Len(t, s.send, 0)
}

func TestNotifierEvents(t *testing.T) {
	hub := NewHub()
	s := newTestSession(4)
	hub.attach(s, 7)

	order := &model.Order{OrderNo: "n1", Status: model.OrderFilled}
	hub.OrderFilled(7, order, &model.Trade{ExternalTradeId: "t1"})
	hub.OrderPending(7, &model.Order{OrderNo: "n2", Status: model.OrderSubmitted})

	var evt Event
	require.NoError(t, json.Unmarshal(<-s.send, &evt))
	assert.Equal(t, EvtOrderFilled, evt.Type)
	require.NoError(t, json.Unmarshal(<-s.send, &evt))
	assert.Equal(t, EvtOrderPending, evt.Type)
}
