package player

import (
	"context"
	"sync"
)

// Queue is a FIFO of pending tracks. Titles are derived from the tracks
// under the same lock, so a reader never sees them disagree.
type Queue struct {
	mu     sync.Mutex
	tracks []Track
	ready  chan struct{} // closed on the next Push
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{})}
}

// Push appends t and returns its 1-based position.
func (q *Queue) Push(t Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, t)
	close(q.ready)
	q.ready = make(chan struct{})
	return len(q.tracks)
}

// Pop blocks until a track is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (Track, error) {
	for {
		q.mu.Lock()
		if err := ctx.Err(); err != nil {
			q.mu.Unlock()
			return Track{}, err
		}
		if len(q.tracks) > 0 {
			t := q.popLocked()
			q.mu.Unlock()
			return t, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Track{}, ctx.Err()
		case <-ready:
		}
	}
}

func (q *Queue) popLocked() Track {
	t := q.tracks[0]
	q.tracks[0] = Track{}
	q.tracks = q.tracks[1:]
	if len(q.tracks) == 0 {
		q.tracks = nil
	}
	return t
}

// Drain removes every pending track and returns how many were dropped.
func (q *Queue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.tracks)
	q.tracks = nil
	return n
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks)
}

func (q *Queue) Titles() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.tracks))
	for i, t := range q.tracks {
		out[i] = t.Title
	}
	return out
}
