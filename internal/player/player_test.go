package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	guildID  = "guild-1"
	userID   = "user-1"
	channelX = "voice-x"
	channelY = "voice-y"
)

const waitFor = time.Second

type harness struct {
	p         *Player
	connector *fakeConnector
	locator   *fakeLocator
	notifier  *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{
		connector: &fakeConnector{},
		locator:   newFakeLocator(),
		notifier:  &recordingNotifier{},
	}
	h.p = NewPlayer(ctx, guildID, h.connector, h.locator)
	return h
}

func (h *harness) trigger() Trigger {
	return Trigger{UserID: userID, Notifier: h.notifier}
}

// join puts the user in channelID and establishes the guild connection.
func (h *harness) join(t *testing.T, channelID string) *fakeConn {
	t.Helper()
	h.locator.set(userID, channelID)
	got, err := h.p.EnsureVoice(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, channelID, got)
	return h.connector.last()
}

func TestPlayer_EnsureVoice(t *testing.T) {
	t.Run("user not in voice", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.p.EnsureVoice(context.Background(), userID)
		assert.ErrorIs(t, err, ErrUserNotInVoice)
		assert.Equal(t, 0, h.connector.count())
	})

	t.Run("same channel is a no-op", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, channelX)
		_, err := h.p.EnsureVoice(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, 1, h.connector.count())
	})

	t.Run("other channel conflicts", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, channelY)
		h.locator.set(userID, channelX)
		_, err := h.p.EnsureVoice(context.Background(), userID)
		assert.ErrorIs(t, err, ErrChannelConflict)
		assert.Equal(t, 1, h.connector.count())
		assert.Equal(t, channelY, h.p.ChannelID())
	})

	t.Run("connect failure", func(t *testing.T) {
		h := newHarness(t)
		h.locator.set(userID, channelX)
		h.connector.setErr(errDial)
		_, err := h.p.EnsureVoice(context.Background(), userID)
		assert.ErrorIs(t, err, ErrConnectionFailure)
		assert.ErrorIs(t, err, errDial)
		assert.False(t, h.p.HasConnection())
	})

	t.Run("dead connection is replaced", func(t *testing.T) {
		h := newHarness(t)
		old := h.join(t, channelY)
		old.drop()
		h.locator.set(userID, channelX)
		_, err := h.p.EnsureVoice(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, channelX, h.p.ChannelID())
		require.Eventually(t, func() bool { return old.disconnectCount() == 1 }, waitFor, time.Millisecond)
	})

	t.Run("concurrent joins store one connection", func(t *testing.T) {
		h := newHarness(t)
		h.locator.set(userID, channelX)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.p.EnsureVoice(context.Background(), userID)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, h.connector.count())
	})
}

func TestPlayer_PlaysInEnqueueOrder(t *testing.T) {
	h := newHarness(t)
	conn := h.join(t, channelX)

	_, started := h.p.Enqueue(track("A"), h.trigger())
	assert.True(t, started)
	for _, title := range []string{"B", "C"} {
		_, started := h.p.Enqueue(track(title), h.trigger())
		assert.False(t, started)
	}

	for i, title := range []string{"A", "B", "C"} {
		require.Eventually(t, func() bool { return conn.playCount() == i+1 }, waitFor, time.Millisecond)
		require.Eventually(t, func() bool { return h.p.State() == StateAwaitingCompletion }, waitFor, time.Millisecond)
		assert.True(t, h.notifier.has("started:"+title))
		require.True(t, conn.finish(nil))
	}

	assert.Equal(t, []string{
		"https://stream.example/A",
		"https://stream.example/B",
		"https://stream.example/C",
	}, conn.played())
	require.Eventually(t, func() bool { return h.p.State() == StateWaiting }, waitFor, time.Millisecond)
	assert.True(t, h.p.WorkerActive())
	assert.Equal(t, 0, h.p.QueueLen())
}

func TestPlayer_TitlesTrackQueue(t *testing.T) {
	h := newHarness(t)
	conn := h.join(t, channelX)

	for _, title := range []string{"A", "B", "C"} {
		h.p.Enqueue(track(title), h.trigger())
	}
	require.Eventually(t, func() bool { return conn.playCount() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"B", "C"}, h.p.Titles())
	assert.Equal(t, len(h.p.Titles()), h.p.QueueLen())
}

func TestPlayer_AtMostOneWorker(t *testing.T) {
	h := newHarness(t)
	conn := h.join(t, channelX)

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	starts := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, started := h.p.Enqueue(track(fmt.Sprint(i)), h.trigger())
			if started {
				mu.Lock()
				starts++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, starts)
	require.Eventually(t, func() bool { return conn.playCount() == 1 }, waitFor, time.Millisecond)
	// a second worker would pop while the first track is still running
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, conn.playCount())
	assert.Equal(t, n-1, h.p.QueueLen())
}

func TestPlayer_PlayStartFailureSkipsTrack(t *testing.T) {
	h := newHarness(t)
	conn := h.join(t, channelX)
	conn.mu.Lock()
	conn.playErr = fmt.Errorf("%w: bad url", ErrSourceUnavailable)
	conn.mu.Unlock()

	h.p.Enqueue(track("broken"), h.trigger())
	h.p.Enqueue(track("next"), h.trigger())

	require.Eventually(t, func() bool { return h.notifier.has("failed:next") }, waitFor, time.Millisecond)
	assert.True(t, h.notifier.has("failed:broken"))
	assert.False(t, h.notifier.has("started:broken"))
	require.Eventually(t, func() bool { return h.p.State() == StateWaiting }, waitFor, time.Millisecond)
	assert.True(t, h.p.WorkerActive())
}

func TestPlayer_BackendErrorMovesOn(t *testing.T) {
	h := newHarness(t)
	conn := h.join(t, channelX)
	h.p.Enqueue(track("A"), h.trigger())
	h.p.Enqueue(track("B"), h.trigger())

	require.Eventually(t, func() bool { return conn.playCount() == 1 }, waitFor, time.Millisecond)
	require.True(t, conn.finish(errors.New("stream reset")))

	require.Eventually(t, func() bool { return conn.playCount() == 2 }, waitFor, time.Millisecond)
	assert.True(t, h.notifier.has("errored:A"))
	assert.False(t, h.notifier.has("errored:B"))
}

func TestPlayer_WorkerReconnects(t *testing.T) {
	h := newHarness(t)
	old := h.join(t, channelX)
	old.drop()

	h.p.Enqueue(track("A"), h.trigger())

	require.Eventually(t, func() bool { return h.connector.count() == 2 }, waitFor, time.Millisecond)
	fresh := h.connector.last()
	require.Eventually(t, func() bool { return fresh.playCount() == 1 }, waitFor, time.Millisecond)
	assert.True(t, h.notifier.has("reconnected:"+channelX))
	assert.Equal(t, 0, old.playCount())
}

func TestPlayer_ReconnectFailureEndsWorker(t *testing.T) {
	h := newHarness(t)
	old := h.join(t, channelX)
	old.drop()
	h.connector.setErr(errDial)

	h.p.queue.Push(track("A"))
	h.p.Enqueue(track("B"), h.trigger())

	require.Eventually(t, func() bool { return !h.p.WorkerActive() }, waitFor, time.Millisecond)
	assert.True(t, h.notifier.has("reconnect-failed"))
	assert.Equal(t, StateIdle, h.p.State())
	// the dequeued track is gone, the rest stays for the next worker
	assert.Equal(t, []string{"B"}, h.p.Titles())

	h.connector.setErr(nil)
	_, started := h.p.Enqueue(track("C"), h.trigger())
	assert.True(t, started)
	require.Eventually(t, func() bool {
		c := h.connector.last()
		return c != old && c.playCount() == 1
	}, waitFor, time.Millisecond)
	assert.Equal(t, []string{"C"}, h.p.Titles())
}

func TestPlayer_ReconnectFailsWhenUserLeft(t *testing.T) {
	h := newHarness(t)
	old := h.join(t, channelX)
	old.drop()
	h.locator.set(userID, "")

	h.p.Enqueue(track("A"), h.trigger())
	require.Eventually(t, func() bool { return h.notifier.has("reconnect-failed") }, waitFor, time.Millisecond)
	assert.Equal(t, 1, h.connector.count())
}

func TestPlayer_SkipPauseResume(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.p.Skip(), "skip without a connection")

	conn := h.join(t, channelX)
	assert.False(t, h.p.Skip(), "skip while idle")
	assert.Equal(t, 0, conn.stopCount())
	assert.False(t, h.p.Pause())
	assert.False(t, h.p.Resume())

	h.p.Enqueue(track("A"), h.trigger())
	h.p.Enqueue(track("B"), h.trigger())
	require.Eventually(t, func() bool { return h.p.State() == StateAwaitingCompletion }, waitFor, time.Millisecond)

	assert.True(t, h.p.Pause())
	assert.True(t, conn.IsPaused())
	assert.False(t, h.p.Pause())
	assert.True(t, h.p.Resume())
	assert.True(t, conn.IsPlaying())

	assert.True(t, h.p.Skip())
	require.Eventually(t, func() bool { return conn.playCount() == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, "https://stream.example/B", conn.played()[1])
}

func TestPlayer_StopMidPlayback(t *testing.T) {
	h := newHarness(t)
	conn := h.join(t, channelX)
	for _, title := range []string{"A", "B", "C"} {
		h.p.Enqueue(track(title), h.trigger())
	}
	require.Eventually(t, func() bool { return h.p.State() == StateAwaitingCompletion }, waitFor, time.Millisecond)

	h.p.Cleanup()

	assert.Equal(t, 0, h.p.QueueLen())
	assert.Empty(t, h.p.Titles())
	assert.False(t, h.p.HasConnection())
	assert.False(t, h.p.WorkerActive())
	assert.Equal(t, StateIdle, h.p.State())
	assert.GreaterOrEqual(t, conn.stopCount(), 1)
	require.Eventually(t, func() bool { return conn.disconnectCount() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, 1, conn.playCount(), "no track after stop")

	// a later play starts a fresh worker on a fresh connection
	fresh := h.join(t, channelX)
	require.NotSame(t, conn, fresh)
	_, started := h.p.Enqueue(track("D"), h.trigger())
	assert.True(t, started)
	require.Eventually(t, func() bool { return fresh.playCount() == 1 }, waitFor, time.Millisecond)
}

func TestPlayer_CleanupIdempotent(t *testing.T) {
	h := newHarness(t)
	h.p.Cleanup()
	assert.Equal(t, StateIdle, h.p.State())

	conn := h.join(t, channelX)
	h.p.Enqueue(track("A"), h.trigger())
	h.p.Enqueue(track("B"), h.trigger())
	require.Eventually(t, func() bool { return conn.playCount() == 1 }, waitFor, time.Millisecond)

	h.p.Cleanup()
	first := []any{h.p.QueueLen(), h.p.HasConnection(), h.p.WorkerActive(), h.p.State()}
	h.p.Cleanup()
	second := []any{h.p.QueueLen(), h.p.HasConnection(), h.p.WorkerActive(), h.p.State()}

	assert.Equal(t, first, second)
	assert.Equal(t, []any{0, false, false, StateIdle}, second)
	require.Eventually(t, func() bool { return conn.disconnectCount() == 1 }, waitFor, time.Millisecond)
}

func TestPlayer_CleanupWhileWaiting(t *testing.T) {
	h := newHarness(t)
	conn := h.join(t, channelX)
	h.p.Enqueue(track("A"), h.trigger())
	require.Eventually(t, func() bool { return conn.playCount() == 1 }, waitFor, time.Millisecond)
	conn.finish(nil)
	require.Eventually(t, func() bool { return h.p.State() == StateWaiting }, waitFor, time.Millisecond)

	h.p.Cleanup()
	assert.False(t, h.p.WorkerActive())
}

func TestPlayer_ExternalDisconnect(t *testing.T) {
	h := newHarness(t)
	conn := h.join(t, channelX)
	h.p.Enqueue(track("A"), h.trigger())
	h.p.Enqueue(track("B"), h.trigger())
	require.Eventually(t, func() bool { return conn.playCount() == 1 }, waitFor, time.Millisecond)

	conn.drop()
	h.p.HandleVoiceDisconnect(channelX)

	assert.False(t, h.p.HasConnection())
	assert.False(t, h.p.WorkerActive())
	assert.Equal(t, 0, h.p.QueueLen())

	fresh := h.join(t, channelX)
	_, started := h.p.Enqueue(track("C"), h.trigger())
	assert.True(t, started)
	require.Eventually(t, func() bool { return fresh.playCount() == 1 }, waitFor, time.Millisecond)
}

func TestPlayer_StaleDisconnectIgnored(t *testing.T) {
	h := newHarness(t)
	h.join(t, channelX)
	h.p.HandleVoiceDisconnect(channelY)
	assert.True(t, h.p.HasConnection())
}

func TestPlayer_BaseContextStopsWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	connector := &fakeConnector{}
	locator := newFakeLocator()
	locator.set(userID, channelX)
	p := NewPlayer(ctx, guildID, connector, locator)

	_, err := p.EnsureVoice(context.Background(), userID)
	require.NoError(t, err)
	p.Enqueue(track("A"), Trigger{UserID: userID, Notifier: &recordingNotifier{}})
	require.Eventually(t, func() bool { return p.State() == StateAwaitingCompletion }, waitFor, time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !p.WorkerActive() }, waitFor, time.Millisecond)
}

func TestPlayer_PlayDuringReconnectFailureStartsWorker(t *testing.T) {
	h := newHarness(t)
	old := h.join(t, channelX)
	old.drop()
	h.connector.setErr(errDial)

	var started atomic.Bool
	h.notifier.onReconnectFailed = func() {
		h.connector.setErr(nil)
		_, ok := h.p.Enqueue(track("B"), h.trigger())
		started.Store(ok)
	}
	h.p.Enqueue(track("A"), h.trigger())

	require.Eventually(t, func() bool {
		c := h.connector.last()
		return c != old && c.playCount() == 1
	}, waitFor, time.Millisecond)
	assert.True(t, started.Load())
	assert.Equal(t, "https://stream.example/B", h.connector.last().played()[0])
	assert.Empty(t, h.p.Titles())
}

func TestPlayer_StopWhileOpeningIsSilent(t *testing.T) {
	tests := []struct {
		name    string
		playErr error
	}{
		{"play succeeds", nil},
		{"play fails", errors.New("source gone")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			gate := make(chan struct{})
			h.connector.playGate = gate
			h.connector.playErr = tt.playErr
			conn := h.join(t, channelX)

			h.p.Enqueue(track("A"), h.trigger())
			h.p.Enqueue(track("B"), h.trigger())
			require.Eventually(t, func() bool { return h.p.State() == StatePlaying }, waitFor, time.Millisecond)
			h.p.mu.Lock()
			w := h.p.worker
			h.p.mu.Unlock()

			h.p.Cleanup()
			close(gate)

			require.Eventually(t, func() bool { return !w.alive() }, waitFor, time.Millisecond)
			assert.Empty(t, h.notifier.all())
			assert.False(t, conn.IsPlaying())
			assert.LessOrEqual(t, conn.playCount(), 1)
		})
	}
}

func TestPlayer_OwnDisconnectEchoIgnored(t *testing.T) {
	h := newHarness(t)
	h.join(t, channelX)
	h.p.Cleanup()

	fresh := h.join(t, channelX)
	// the voice state event of the stop arrives after the rejoin
	h.p.HandleVoiceDisconnect(channelX)
	assert.True(t, h.p.HasConnection())
	assert.Equal(t, 0, fresh.disconnectCount())

	// a real drop afterwards still cleans up
	fresh.drop()
	h.p.HandleVoiceDisconnect(channelX)
	assert.False(t, h.p.HasConnection())
}
