package mqtt

import "log"

// bufferedMsg is a serialized publish held for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages published while the
// broker was unreachable. When full, the oldest message is dropped.
// Not safe for concurrent use; RealPublisher guards it with its mutex.
type ringBuffer struct {
	msgs    []bufferedMsg
	oldest  int
	count   int
	dropped int // total dropped since creation
	warned  bool
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{msgs: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	n := len(r.msgs)
	if r.count < n {
		r.msgs[(r.oldest+r.count)%n] = msg
		r.count++
		return
	}
	if !r.warned {
		log.Printf("mqtt: offline buffer full (%d messages), dropping oldest", n)
		r.warned = true
	}
	r.msgs[r.oldest] = msg
	r.oldest = (r.oldest + 1) % n
	r.dropped++
}

// drain returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drain() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	n := len(r.msgs)
	out := make([]bufferedMsg, r.count)
	for i := range out {
		out[i] = r.msgs[(r.oldest+i)%n]
		r.msgs[(r.oldest+i)%n] = bufferedMsg{}
	}
	r.oldest, r.count, r.warned = 0, 0, false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
