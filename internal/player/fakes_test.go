package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type fakeConn struct {
	channelID string

	mu          sync.Mutex
	connected   bool
	playing     bool
	paused      bool
	plays       []string
	onComplete  func(error)
	playErr     error
	stops       int
	disconnects int
	// gate, when set, holds Play until it is closed
	gate chan struct{}
}

func newFakeConn(channelID string) *fakeConn {
	return &fakeConn{channelID: channelID, connected: true}
}

func (c *fakeConn) ChannelID() string { return c.channelID }

func (c *fakeConn) Play(streamURL string, onComplete func(error)) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playErr != nil {
		return c.playErr
	}
	if c.playing || c.paused {
		return fmt.Errorf("%w: already playing", ErrPlaybackStart)
	}
	c.plays = append(c.plays, streamURL)
	c.playing = true
	c.onComplete = onComplete
	return nil
}

// finish simulates the backend reaching the end of the current track.
func (c *fakeConn) finish(err error) bool {
	c.mu.Lock()
	cb := c.onComplete
	c.onComplete = nil
	c.playing = false
	c.paused = false
	c.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(err)
	return true
}

func (c *fakeConn) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		c.playing = false
		c.paused = true
	}
}

func (c *fakeConn) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		c.paused = false
		c.playing = true
	}
}

func (c *fakeConn) Stop() {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
	c.finish(nil)
}

func (c *fakeConn) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

func (c *fakeConn) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) Disconnect(force bool) error {
	c.mu.Lock()
	c.disconnects++
	c.connected = false
	c.mu.Unlock()
	c.finish(nil)
	return nil
}

// drop simulates the gateway closing the connection under us.
func (c *fakeConn) drop() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *fakeConn) playCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.plays)
}

func (c *fakeConn) played() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.plays...)
}

func (c *fakeConn) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *fakeConn) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

type fakeConnector struct {
	mu    sync.Mutex
	err   error
	conns []*fakeConn
	// playErr and playGate are copied into every connection created
	playErr  error
	playGate chan struct{}
}

func (f *fakeConnector) Connect(ctx context.Context, guildID, channelID string) (VoiceConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := newFakeConn(channelID)
	c.playErr = f.playErr
	c.gate = f.playGate
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeConnector) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeConnector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeConnector) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

type fakeLocator struct {
	mu       sync.Mutex
	channels map[string]string
}

func newFakeLocator() *fakeLocator {
	return &fakeLocator{channels: make(map[string]string)}
}

func (l *fakeLocator) set(userID, channelID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if channelID == "" {
		delete(l.channels, userID)
		return
	}
	l.channels[userID] = channelID
}

func (l *fakeLocator) UserVoiceChannel(guildID, userID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.channels[userID]
	return ch, ok
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	// onReconnectFailed runs inside ReconnectFailed
	onReconnectFailed func()
}

func (n *recordingNotifier) add(ev string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) TrackStarted(t Track)            { n.add("started:" + t.Title) }
func (n *recordingNotifier) TrackFailed(t Track, err error)  { n.add("failed:" + t.Title) }
func (n *recordingNotifier) TrackErrored(t Track, err error) { n.add("errored:" + t.Title) }
func (n *recordingNotifier) Reconnected(channelID string)    { n.add("reconnected:" + channelID) }

func (n *recordingNotifier) ReconnectFailed(err error) {
	n.add("reconnect-failed")
	if n.onReconnectFailed != nil {
		n.onReconnectFailed()
	}
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func (n *recordingNotifier) has(ev string) bool {
	for _, e := range n.all() {
		if e == ev {
			return true
		}
	}
	return false
}

var errDial = errors.New("dial failed")

func track(title string) Track {
	return Track{Title: title, StreamURL: "https://stream.example/" + title, SourceURL: "https://example/" + title}
}
