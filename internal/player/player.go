package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// echoWindow bounds how long a disconnect we asked for may take to come
// back as a voice state event.
const echoWindow = 15 * time.Second

// Player owns one guild's queue, voice connection and playback worker.
type Player struct {
	guildID   string
	baseCtx   context.Context
	connector Connector
	locator   VoiceLocator

	// joinMu serializes connection establishment so a guild never stores
	// two connections. It is held across Connect; mu never is.
	joinMu sync.Mutex

	mu     sync.Mutex
	queue  *Queue
	conn   VoiceConnection
	worker *worker
	state  State
	// echoes holds channels we left ourselves, until their voice state
	// event arrives or the window expires.
	echoes map[string]time.Time
}

type worker struct {
	trigger Trigger
	cancel  context.CancelFunc
	done    chan struct{}
}

func (w *worker) alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func NewPlayer(ctx context.Context, guildID string, connector Connector, locator VoiceLocator) *Player {
	return &Player{
		guildID:   guildID,
		baseCtx:   ctx,
		connector: connector,
		locator:   locator,
		queue:     NewQueue(),
		state:     StateIdle,
		echoes:    make(map[string]time.Time),
	}
}

func (p *Player) GuildID() string { return p.guildID }

// EnsureVoice makes sure the guild holds a live connection to the voice
// channel userID is in and returns that channel. It never moves an existing
// connection to another channel.
func (p *Player) EnsureVoice(ctx context.Context, userID string) (string, error) {
	channelID, ok := p.locator.UserVoiceChannel(p.guildID, userID)
	if !ok {
		return "", ErrUserNotInVoice
	}

	p.joinMu.Lock()
	defer p.joinMu.Unlock()

	if conn := p.connection(); conn != nil && conn.IsConnected() {
		if conn.ChannelID() == channelID {
			return channelID, nil
		}
		return "", ErrChannelConflict
	}

	// no network work under mu
	vc, err := p.connector.Connect(ctx, p.guildID, channelID)
	if err != nil {
		slog.Warn("voice connect failed", "guildID", p.guildID, "channelID", channelID, "err", err)
		return "", fmt.Errorf("%w: %w", ErrConnectionFailure, err)
	}

	p.mu.Lock()
	stale := p.conn
	p.conn = vc
	p.mu.Unlock()

	if stale != nil {
		p.disconnectDetached(stale)
	}
	slog.Info("joined voice channel", "guildID", p.guildID, "channelID", channelID, "userID", userID)
	return channelID, nil
}

// Enqueue appends t and starts a worker when none is alive. started reports
// whether this call spawned the worker.
func (p *Player) Enqueue(t Track, trig Trigger) (position int, started bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	position = p.queue.Push(t)
	if p.worker != nil && p.worker.alive() {
		return position, false
	}
	p.spawnLocked(trig)
	return position, true
}

func (p *Player) spawnLocked(trig Trigger) {
	ctx, cancel := context.WithCancel(p.baseCtx)
	w := &worker{
		trigger: trig,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	p.worker = w
	p.state = StateWaiting
	slog.Debug("playback worker started", "guildID", p.guildID, "userID", trig.UserID)
	go p.run(ctx, w)
}

// Skip stops the current track so the worker moves on. It reports false when
// nothing is playing.
func (p *Player) Skip() bool {
	conn := p.connection()
	if conn == nil || !conn.IsPlaying() {
		return false
	}
	conn.Stop()
	return true
}

func (p *Player) Pause() bool {
	conn := p.connection()
	if conn == nil || !conn.IsPlaying() {
		return false
	}
	conn.Pause()
	return true
}

func (p *Player) Resume() bool {
	conn := p.connection()
	if conn == nil || !conn.IsPaused() {
		return false
	}
	conn.Resume()
	return true
}

// Cleanup drops the queue, silences and disconnects the connection and
// cancels the worker. Calling it on an idle player is a no-op.
func (p *Player) Cleanup() {
	p.cleanup(true)
}

// cleanup does the work of Cleanup. echo records the disconnect so the
// voice state event it produces is not mistaken for an external drop.
func (p *Player) cleanup(echo bool) {
	p.mu.Lock()
	dropped := p.queue.Drain()
	conn := p.conn
	p.conn = nil
	w := p.worker
	p.worker = nil
	p.state = StateIdle
	if w != nil {
		w.cancel()
	}
	p.mu.Unlock()

	if conn != nil {
		if echo && conn.IsConnected() {
			p.expectEcho(conn.ChannelID())
		}
		p.disconnectDetached(conn)
	}
	if dropped > 0 || conn != nil || w != nil {
		slog.Info("player cleaned up", "guildID", p.guildID, "dropped", dropped, "hadConnection", conn != nil, "hadWorker", w != nil)
	}
}

// HandleVoiceDisconnect reacts to the bot leaving channelID without being
// asked to. Events about a channel other than the live one are stale, as is
// the echo of a disconnect this player requested.
func (p *Player) HandleVoiceDisconnect(channelID string) {
	if p.consumeEcho(channelID) {
		slog.Debug("ignoring echo of own voice disconnect", "guildID", p.guildID, "channelID", channelID)
		return
	}
	if conn := p.connection(); conn != nil && conn.IsConnected() && channelID != "" && conn.ChannelID() != channelID {
		slog.Debug("ignoring stale voice disconnect", "guildID", p.guildID, "channelID", channelID)
		return
	}
	slog.Info("voice connection dropped externally", "guildID", p.guildID, "channelID", channelID)
	p.cleanup(false)
}

func (p *Player) expectEcho(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.echoes[channelID] = time.Now().Add(echoWindow)
}

func (p *Player) consumeEcho(channelID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	deadline, ok := p.echoes[channelID]
	if !ok {
		return false
	}
	delete(p.echoes, channelID)
	return time.Now().Before(deadline)
}

// disconnectDetached stops audio right away and disconnects in the
// background; the caller never waits on it.
func (p *Player) disconnectDetached(conn VoiceConnection) {
	conn.Stop()
	go func() {
		if err := conn.Disconnect(true); err != nil {
			slog.Warn("voice disconnect failed", "guildID", p.guildID, "channelID", conn.ChannelID(), "err", err)
		}
	}()
}

func (p *Player) connection() VoiceConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// HasConnection reports whether a connection is stored, live or not.
func (p *Player) HasConnection() bool {
	return p.connection() != nil
}

// ChannelID returns the channel of the stored connection, if any.
func (p *Player) ChannelID() string {
	if conn := p.connection(); conn != nil {
		return conn.ChannelID()
	}
	return ""
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) WorkerActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.worker != nil && p.worker.alive()
}

func (p *Player) Titles() []string { return p.queue.Titles() }

func (p *Player) QueueLen() int { return p.queue.Len() }
