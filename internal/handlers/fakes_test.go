package handlers

import (
	"context"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/jukebot/internal/player"
	"github.com/sonroyaalmerol/jukebot/internal/repository"
)

type fakeConn struct {
	channelID string

	mu         sync.Mutex
	connected  bool
	playing    bool
	paused     bool
	plays      []string
	onComplete func(error)
	stops      int
	disconnect int
}

func (c *fakeConn) ChannelID() string { return c.channelID }

func (c *fakeConn) Play(url string, onComplete func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plays = append(c.plays, url)
	c.playing = true
	c.onComplete = onComplete
	return nil
}

func (c *fakeConn) finish() {
	c.mu.Lock()
	cb := c.onComplete
	c.onComplete = nil
	c.playing, c.paused = false, false
	c.mu.Unlock()
	if cb != nil {
		cb(nil)
	}
}

func (c *fakeConn) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		c.playing, c.paused = false, true
	}
}

func (c *fakeConn) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		c.playing, c.paused = true, false
	}
}

func (c *fakeConn) Stop() {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
	c.finish()
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
	c.connected = false
	c.disconnect++
	c.mu.Unlock()
	c.finish()
	return nil
}

func (c *fakeConn) playCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.plays)
}

func (c *fakeConn) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func (c *fakeConn) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnect
}

// fakeVoice plays the Discord side: connector, voice state cache and
// channel names.
type fakeVoice struct {
	mu    sync.Mutex
	users map[string]string
	conns []*fakeConn
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{users: make(map[string]string)}
}

func (v *fakeVoice) Connect(ctx context.Context, guildID, channelID string) (player.VoiceConnection, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	c := &fakeConn{channelID: channelID, connected: true}
	v.conns = append(v.conns, c)
	return c, nil
}

func (v *fakeVoice) UserVoiceChannel(guildID, userID string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ch, ok := v.users[userID]
	return ch, ok
}

func (v *fakeVoice) ChannelName(channelID string) string {
	return strings.ToUpper(channelID[:1]) + channelID[1:]
}

func (v *fakeVoice) put(userID, channelID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.users[userID] = channelID
}

func (v *fakeVoice) connCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.conns)
}

func (v *fakeVoice) conn(i int) *fakeConn {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conns[i]
}

type fakeResolver struct {
	mu      sync.Mutex
	queries []string
	err     error
}

func (r *fakeResolver) Search(ctx context.Context, query string) (player.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	if r.err != nil {
		return player.Track{}, r.err
	}
	return player.Track{
		Title:     query,
		StreamURL: "https://stream.example/" + query,
		SourceURL: "https://www.youtube.com/watch?v=" + query,
	}, nil
}

func (r *fakeResolver) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries)
}

type fakeSettings struct {
	mu       sync.Mutex
	settings map[string]repository.Settings
	err      error
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{settings: make(map[string]repository.Settings)}
}

func (f *fakeSettings) Get(ctx context.Context, guildID string) (repository.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return repository.Settings{}, f.err
	}
	st, ok := f.settings[guildID]
	if !ok {
		st = repository.Settings{GuildID: guildID, AnnounceNowPlaying: true}
	}
	return st, nil
}

func (f *fakeSettings) Prefix(ctx context.Context, guildID string) string {
	st, _ := f.Get(ctx, guildID)
	if st.Prefix == "" {
		return "!"
	}
	return st.Prefix
}

func (f *fakeSettings) SetPrefix(ctx context.Context, guildID, prefix string) error {
	if prefix == "" || strings.ContainsAny(prefix, " \t") || len([]rune(prefix)) > 5 {
		return repository.ErrInvalidPrefix
	}
	return f.update(guildID, func(st *repository.Settings) { st.Prefix = prefix })
}

func (f *fakeSettings) SetAnnounce(ctx context.Context, guildID string, on bool) error {
	return f.update(guildID, func(st *repository.Settings) { st.AnnounceNowPlaying = on })
}

func (f *fakeSettings) update(guildID string, mutate func(*repository.Settings)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	st, ok := f.settings[guildID]
	if !ok {
		st = repository.Settings{GuildID: guildID, AnnounceNowPlaying: true}
	}
	mutate(&st)
	f.settings[guildID] = st
	return nil
}

// outbox records everything sent as a reply or to the channel.
type outbox struct {
	mu     sync.Mutex
	texts  []string
	embeds []*discordgo.MessageEmbed
	acks   int
}

func (o *outbox) Reply(content string) { o.Send(content) }

func (o *outbox) ReplyEmbed(embed *discordgo.MessageEmbed) { o.SendEmbed(embed) }

func (o *outbox) Ack() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.acks++
}

func (o *outbox) Send(content string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.texts = append(o.texts, content)
}

func (o *outbox) SendEmbed(embed *discordgo.MessageEmbed) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.embeds = append(o.embeds, embed)
}

func (o *outbox) all() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.texts...)
}

func (o *outbox) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.texts) == 0 {
		return ""
	}
	return o.texts[len(o.texts)-1]
}

func (o *outbox) embedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.embeds)
}

func (o *outbox) lastEmbed() *discordgo.MessageEmbed {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.embeds) == 0 {
		return nil
	}
	return o.embeds[len(o.embeds)-1]
}

func (o *outbox) ackCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.acks
}
