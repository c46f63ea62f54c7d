package stream

import (
	"context"
	"sync"
)

// opusBuffer is a bounded FIFO of encoded packets between the producer and
// the sender. Push blocks while full, Pop blocks while empty.
type opusBuffer struct {
	mu       sync.Mutex
	packets  [][]byte
	head     int
	size     int
	closed   bool
	eos      bool
	err      error
	notEmpty *sync.Cond
	notFull  *sync.Cond
}

// newOpusBuffer returns a buffer that closes itself when ctx is done.
func newOpusBuffer(ctx context.Context, maxPackets int) *opusBuffer {
	if maxPackets < 1 {
		maxPackets = 1
	}
	ob := &opusBuffer{packets: make([][]byte, maxPackets)}
	ob.notEmpty = sync.NewCond(&ob.mu)
	ob.notFull = sync.NewCond(&ob.mu)
	context.AfterFunc(ctx, ob.Close)
	return ob
}

// Push copies data into the buffer. It reports false once the buffer is
// closed or finished.
func (ob *opusBuffer) Push(data []byte) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	for ob.size == len(ob.packets) && !ob.closed && !ob.eos {
		ob.notFull.Wait()
	}
	if ob.closed || ob.eos {
		return false
	}
	ob.packets[(ob.head+ob.size)%len(ob.packets)] = append([]byte(nil), data...)
	ob.size++
	ob.notEmpty.Signal()
	return true
}

// Pop returns the oldest packet. It reports false when the buffer is closed,
// or finished and drained.
func (ob *opusBuffer) Pop() ([]byte, bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	for ob.size == 0 && !ob.closed && !ob.eos {
		ob.notEmpty.Wait()
	}
	if ob.closed || ob.size == 0 {
		return nil, false
	}
	pkt := ob.packets[ob.head]
	ob.packets[ob.head] = nil
	ob.head = (ob.head + 1) % len(ob.packets)
	ob.size--
	ob.notFull.Signal()
	return pkt, true
}

// Finish marks the end of the stream. Buffered packets stay readable.
func (ob *opusBuffer) Finish(err error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if ob.eos {
		return
	}
	ob.eos = true
	ob.err = err
	ob.notEmpty.Broadcast()
	ob.notFull.Broadcast()
}

// Err returns the error the producer finished with.
func (ob *opusBuffer) Err() error {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.err
}

func (ob *opusBuffer) Len() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.size
}

func (ob *opusBuffer) Close() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.closed = true
	ob.notEmpty.Broadcast()
	ob.notFull.Broadcast()
}
