package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// run drains the queue until ctx is cancelled or a reconnect fails.
func (p *Player) run(ctx context.Context, w *worker) {
	defer p.finish(w)
	notifier := w.trigger.Notifier

	for {
		p.setState(w, StateWaiting)
		track, err := p.queue.Pop(ctx)
		if err != nil {
			return
		}

		p.setState(w, StateConnecting)
		conn, err := p.liveConnection(ctx, w)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, errWorkerCancelled) {
				return
			}
			slog.Warn("worker could not reconnect", "guildID", p.guildID, "userID", w.trigger.UserID, "err", err)
			// let a play arriving during the notification start a new worker
			p.detach(w)
			notifier.ReconnectFailed(err)
			return
		}
		if ctx.Err() != nil {
			return
		}

		done := make(chan struct{})
		var once sync.Once
		p.setState(w, StatePlaying)
		err = conn.Play(track.StreamURL, func(err error) {
			once.Do(func() {
				if err != nil && ctx.Err() == nil {
					err = fmt.Errorf("%w: %w", ErrPlaybackBackend, err)
					slog.Warn("playback ended with error", "guildID", p.guildID, "title", track.Title, "err", err)
					notifier.TrackErrored(track, err)
				}
				close(done)
			})
		})
		if ctx.Err() != nil {
			// stopped while the source was opening
			if err == nil {
				conn.Stop()
			}
			return
		}
		if err != nil {
			slog.Warn("playback failed to start", "guildID", p.guildID, "title", track.Title, "err", err)
			notifier.TrackFailed(track, err)
			continue
		}
		notifier.TrackStarted(track)

		p.setState(w, StateAwaitingCompletion)
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
}

// liveConnection returns the stored connection when it is still connected,
// otherwise makes exactly one attempt to join the trigger user's channel.
func (p *Player) liveConnection(ctx context.Context, w *worker) (VoiceConnection, error) {
	if conn := p.connection(); conn != nil && conn.IsConnected() {
		return conn, nil
	}

	p.joinMu.Lock()
	defer p.joinMu.Unlock()

	// a command may have connected while we waited
	if conn := p.connection(); conn != nil && conn.IsConnected() {
		return conn, nil
	}

	channelID, ok := p.locator.UserVoiceChannel(p.guildID, w.trigger.UserID)
	if !ok {
		return nil, ErrUserNotInVoice
	}
	vc, err := p.connector.Connect(ctx, p.guildID, channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailure, err)
	}

	p.mu.Lock()
	if p.worker != w || ctx.Err() != nil {
		p.mu.Unlock()
		p.disconnectDetached(vc)
		return nil, errWorkerCancelled
	}
	stale := p.conn
	p.conn = vc
	p.mu.Unlock()

	if stale != nil {
		p.disconnectDetached(stale)
	}
	slog.Info("worker reconnected", "guildID", p.guildID, "channelID", channelID)
	w.trigger.Notifier.Reconnected(channelID)
	return vc, nil
}

func (p *Player) setState(w *worker, s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.worker == w {
		p.state = s
	}
}

// detach makes the player forget w so Enqueue spawns a fresh worker.
func (p *Player) detach(w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.worker == w {
		p.worker = nil
		p.state = StateIdle
	}
}

func (p *Player) finish(w *worker) {
	p.detach(w)
	w.cancel()
	close(w.done)
	slog.Debug("playback worker stopped", "guildID", p.guildID)
}
