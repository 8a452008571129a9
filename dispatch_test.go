package auditstream

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDispatcherPanicContainment(t *testing.T) {
	d := newDispatcher(zerolog.Nop())
	defer d.close()

	var mu sync.Mutex
	var got []Notification

	d.onMessage(func(n Notification) {
		panic("handler bug")
	})
	d.onMessage(func(n Notification) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, n)
	})

	d.emitMessage(Notification{Type: NotificationStatusUpdate, Priority: PriorityLow})
	d.emitMessage(Notification{Type: NotificationSystemAlert, Priority: PriorityMedium})

	waitFor(t, "sibling deliveries", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
}

func TestDispatcherUnsubscribe(t *testing.T) {
	d := newDispatcher(zerolog.Nop())
	defer d.close()

	var mu sync.Mutex
	counts := map[string]int{}
	record := func(name string) MessageHandler {
		return func(Notification) {
			mu.Lock()
			defer mu.Unlock()
			counts[name]++
		}
	}

	unsubA := d.onMessage(record("a"))
	d.onMessage(record("b"))

	// Unsubscribing twice is a no-op the second time.
	unsubA()
	unsubA()

	d.emitMessage(Notification{Type: NotificationStatusUpdate})

	waitFor(t, "delivery to b", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["b"] == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if counts["a"] != 0 {
		t.Errorf("unsubscribed handler received %d notifications", counts["a"])
	}
}

func TestDispatcherDeliversFullBacklog(t *testing.T) {
	d := newDispatcher(zerolog.Nop())
	defer d.close()

	var mu sync.Mutex
	var notes, transitions int
	d.onMessage(func(Notification) {
		time.Sleep(100 * time.Microsecond)
		mu.Lock()
		defer mu.Unlock()
		notes++
	})
	d.onConnection(func(bool) {
		mu.Lock()
		defer mu.Unlock()
		transitions++
	})

	// Far more items than any handler can keep up with; nothing may be
	// dropped, least of all the trailing connection transition.
	for i := 0; i < 300; i++ {
		d.emitMessage(Notification{Type: NotificationStatusUpdate})
	}
	d.emitConnection(false)

	waitFor(t, "full backlog delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return notes == 300 && transitions == 1
	})
}

func TestDispatcherClosedIsInert(t *testing.T) {
	d := newDispatcher(zerolog.Nop())
	d.close()

	unsub := d.onMessage(func(Notification) {
		t.Error("handler registered after close was invoked")
	})
	unsub()

	d.emitMessage(Notification{Type: NotificationStatusUpdate})
	d.emitError(nil)
	time.Sleep(20 * time.Millisecond)
}

func TestSubscribeFiltersByKind(t *testing.T) {
	dialer := newFakeDialer()
	client := NewClient(testConfig(dialer))
	defer client.Destroy()

	completed := &notificationCollector{}
	all := &notificationCollector{}
	client.Subscribe(NotificationAuditCompleted, completed.handler)
	client.OnMessage(all.handler)

	waitFor(t, "connection", func() bool { return client.Status().Connected })
	conn := dialer.conn(0)

	conn.push(`{"type":"status_update","timestamp":1724500000000}`)
	conn.push(`{"type":"audit_completed","timestamp":1724500000001}`)
	conn.push(`{"type":"audit_started","timestamp":1724500000002}`)

	waitFor(t, "all deliveries", func() bool { return all.count() == 3 })
	waitFor(t, "filtered delivery", func() bool { return completed.count() == 1 })

	if got := completed.all()[0].Type; got != NotificationAuditCompleted {
		t.Errorf("filtered handler saw %s", got)
	}
}
