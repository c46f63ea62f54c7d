package player

import (
	"context"
	"sync"
)

// PlayerManager hands out one Player per guild. Players are never evicted.
type PlayerManager struct {
	ctx       context.Context
	connector Connector
	locator   VoiceLocator

	mu      sync.Mutex
	players map[string]*Player
}

// NewPlayerManager returns a manager whose workers stop when ctx is done.
func NewPlayerManager(ctx context.Context, connector Connector, locator VoiceLocator) *PlayerManager {
	return &PlayerManager{
		ctx:       ctx,
		connector: connector,
		locator:   locator,
		players:   make(map[string]*Player),
	}
}

func (pm *PlayerManager) Get(guildID string) *Player {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if p, ok := pm.players[guildID]; ok {
		return p
	}
	p := NewPlayer(pm.ctx, guildID, pm.connector, pm.locator)
	pm.players[guildID] = p
	return p
}

// Peek returns the guild's player without creating one.
func (pm *PlayerManager) Peek(guildID string) *Player {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.players[guildID]
}

func (pm *PlayerManager) Len() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.players)
}

// CleanupAll cleans up every guild, used on shutdown.
func (pm *PlayerManager) CleanupAll() {
	pm.mu.Lock()
	players := make([]*Player, 0, len(pm.players))
	for _, p := range pm.players {
		players = append(players, p)
	}
	pm.mu.Unlock()

	for _, p := range players {
		p.Cleanup()
	}
}
