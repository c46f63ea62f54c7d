package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/jukebot/internal/player"
)

var (
	ErrNotConnected   = fmt.Errorf("%w: voice connection closed", player.ErrPlaybackStart)
	ErrAlreadyPlaying = fmt.Errorf("%w: already playing", player.ErrPlaybackStart)
	ErrVoiceNotReady  = errors.New("voice connection not ready")
	errSendTimeout    = errors.New("opus send timeout")
)

const (
	bufferPackets = 150
	readyTimeout  = 5 * time.Second
	sendTimeout   = time.Second
)

// VoiceConn plays audio over a discordgo voice connection, one track at a
// time.
type VoiceConn struct {
	vc      *discordgo.VoiceConnection
	guildID string

	mu     sync.Mutex
	sess   *playSession
	closed bool
}

type playSession struct {
	ctx        context.Context
	cancel     context.CancelFunc
	url        string
	gate       *pauseGate
	onComplete func(error)
}

// Join connects to channelID in guildID, self-deafened.
func Join(s *discordgo.Session, guildID, channelID string) (*VoiceConn, error) {
	vc, err := s.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	// Kill panics on nil channels
	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}
	if vc.OpusRecv == nil {
		vc.OpusRecv = make(chan *discordgo.Packet, 2)
	}
	return &VoiceConn{vc: vc, guildID: guildID}, nil
}

func (c *VoiceConn) ChannelID() string {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.ChannelID
}

func (c *VoiceConn) IsConnected() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.Ready
}

// Play opens streamURL and starts sending it. onComplete runs exactly once,
// after the track ended, failed or was stopped.
func (c *VoiceConn) Play(streamURL string, onComplete func(error)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.sess != nil {
		c.mu.Unlock()
		return ErrAlreadyPlaying
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &playSession{
		ctx:        ctx,
		cancel:     cancel,
		url:        streamURL,
		gate:       newPauseGate(),
		onComplete: onComplete,
	}
	c.sess = sess
	c.mu.Unlock()

	// opening the source is network work, done outside mu
	pcm, err := StartPCMStream(ctx, streamURL)
	if err != nil {
		c.release(sess)
		return fmt.Errorf("%w: %w", player.ErrSourceUnavailable, err)
	}
	enc, err := NewEncoder()
	if err != nil {
		pcm.Close()
		c.release(sess)
		return fmt.Errorf("%w: %w", player.ErrPlaybackStart, err)
	}

	go c.transmit(sess, pcm, enc)
	return nil
}

func (c *VoiceConn) release(sess *playSession) {
	sess.cancel()
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	c.mu.Unlock()
}

func (c *VoiceConn) current() *playSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *VoiceConn) Pause() {
	if s := c.current(); s != nil && s.gate.Pause() {
		_ = c.vc.Speaking(false)
	}
}

func (c *VoiceConn) Resume() {
	if s := c.current(); s != nil {
		s.gate.Resume()
	}
}

// Stop ends the current track. Its onComplete still fires, from the sender.
func (c *VoiceConn) Stop() {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()
	if s != nil {
		s.cancel()
	}
}

func (c *VoiceConn) IsPlaying() bool {
	s := c.current()
	return s != nil && !s.gate.Paused()
}

func (c *VoiceConn) IsPaused() bool {
	s := c.current()
	return s != nil && s.gate.Paused()
}

// Disconnect stops playback and leaves the channel. force skips waiting for
// the speaking state to settle.
func (c *VoiceConn) Disconnect(force bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.sess
	c.sess = nil
	c.mu.Unlock()

	if s != nil {
		s.cancel()
	}
	return c.safeDisconnect(force)
}

func (c *VoiceConn) safeDisconnect(force bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("voice disconnect panic recovered", "panic", r, "guildID", c.guildID)
			err = fmt.Errorf("voice disconnect panic: %v", r)
		}
	}()

	_ = c.vc.Speaking(false)
	if !force {
		// let pending packets drain
		time.Sleep(150 * time.Millisecond)
	}
	return c.vc.Disconnect()
}

func (c *VoiceConn) transmit(sess *playSession, pcm *PCMStreamer, enc *Encoder) {
	buf := newOpusBuffer(sess.ctx, bufferPackets)
	produced := make(chan struct{})
	var sendErr error
	defer func() {
		buf.Close()
		pcm.Close()
		<-produced
		pcm.Wait()
		enc.Close()
		c.release(sess)

		err := sendErr
		if err == nil && sess.ctx.Err() == nil {
			err = buf.Err()
		}
		if err != nil {
			slog.Debug("track ended with error", "guildID", c.guildID, "err", err)
		}
		sess.onComplete(err)
	}()

	if !c.waitReady(sess.ctx) {
		if sess.ctx.Err() == nil {
			sendErr = ErrVoiceNotReady
		}
		close(produced)
		return
	}

	go func() {
		defer close(produced)
		produce(pcm, enc, buf)
	}()

	_ = c.vc.Speaking(true)
	defer func() { _ = c.vc.Speaking(false) }()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	speaking := true
	for {
		pkt, ok := buf.Pop()
		if !ok {
			return
		}
		if sess.gate.Paused() {
			speaking = false
			if !sess.gate.Wait(sess.ctx) {
				return
			}
		}
		if !speaking {
			_ = c.vc.Speaking(true)
			speaking = true
		}

		select {
		case <-ticker.C:
		case <-sess.ctx.Done():
			return
		}
		select {
		case c.vc.OpusSend <- pkt:
		case <-sess.ctx.Done():
			return
		case <-time.After(sendTimeout):
			sendErr = errSendTimeout
			return
		}
	}
}

func (c *VoiceConn) waitReady(ctx context.Context) bool {
	deadline := time.Now().Add(readyTimeout)
	for {
		c.vc.RLock()
		ready := c.vc.Ready && c.vc.OpusSend != nil
		c.vc.RUnlock()
		if ready {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// produce reads PCM frames, encodes them and feeds buf until the source ends.
func produce(pcm *PCMStreamer, enc *Encoder, buf *opusBuffer) {
	r := bufio.NewReaderSize(pcm.Stdout(), 128*1024)
	frame := make([]byte, enc.FrameBytes())
	push := func(pkt []byte) error {
		if !buf.Push(pkt) {
			return io.ErrClosedPipe
		}
		return nil
	}

	for {
		n, err := io.ReadFull(r, frame)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// pad the tail with silence
			clear(frame[n:])
			err = io.EOF
			if encErr := enc.EncodeFrame(frame, push); encErr != nil {
				buf.Finish(encErr)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if flushErr := enc.Flush(push); flushErr != nil && !errors.Is(flushErr, io.ErrClosedPipe) {
					buf.Finish(flushErr)
					return
				}
				buf.Finish(pcm.Err())
				return
			}
			buf.Finish(err)
			return
		}
		if err := enc.EncodeFrame(frame, push); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			buf.Finish(err)
			return
		}
	}
}
