package auditstream

// ============================================================================
// Durable Send Queue
// ============================================================================

// sendQueue is a bounded FIFO of serialized outbound frames. It is not
// concurrency-safe; the client's run loop is its sole owner.
type sendQueue struct {
	frames   [][]byte
	capacity int
}

func newSendQueue(capacity int) *sendQueue {
	return &sendQueue{capacity: capacity}
}

// push appends a frame, evicting the single oldest entry when the queue is
// at capacity. It reports whether an eviction happened.
func (q *sendQueue) push(frame []byte) bool {
	evicted := false
	if len(q.frames) >= q.capacity {
		q.frames = q.frames[1:]
		evicted = true
	}
	q.frames = append(q.frames, frame)
	return evicted
}

func (q *sendQueue) len() int {
	return len(q.frames)
}

func (q *sendQueue) clear() {
	q.frames = nil
}

// drainInto writes queued frames oldest-first. On the first write failure it
// stops, re-inserts the failed frame at the front, and returns the error
// alongside the count of frames that made it out.
func (q *sendQueue) drainInto(write func([]byte) error) (int, error) {
	sent := 0
	for len(q.frames) > 0 {
		frame := q.frames[0]
		q.frames = q.frames[1:]
		if err := write(frame); err != nil {
			q.frames = append([][]byte{frame}, q.frames...)
			return sent, err
		}
		sent++
	}
	return sent, nil
}
