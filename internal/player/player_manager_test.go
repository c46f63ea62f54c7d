package player

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerManager_Get(t *testing.T) {
	pm := NewPlayerManager(context.Background(), &fakeConnector{}, newFakeLocator())

	assert.Nil(t, pm.Peek("g1"))
	p := pm.Get("g1")
	require.NotNil(t, p)
	assert.Equal(t, "g1", p.GuildID())
	assert.Same(t, p, pm.Get("g1"))
	assert.Same(t, p, pm.Peek("g1"))
	assert.NotSame(t, p, pm.Get("g2"))
	assert.Equal(t, 2, pm.Len())
}

func TestPlayerManager_ConcurrentGet(t *testing.T) {
	pm := NewPlayerManager(context.Background(), &fakeConnector{}, newFakeLocator())

	const guilds, callers = 5, 40
	results := make([][]*Player, guilds)
	for g := range results {
		results[g] = make([]*Player, callers)
	}

	var wg sync.WaitGroup
	for g := 0; g < guilds; g++ {
		for c := 0; c < callers; c++ {
			wg.Add(1)
			go func(g, c int) {
				defer wg.Done()
				results[g][c] = pm.Get(fmt.Sprintf("guild-%d", g))
			}(g, c)
		}
	}
	wg.Wait()

	for g := range results {
		for c := range results[g] {
			assert.Same(t, results[g][0], results[g][c])
		}
	}
	assert.Equal(t, guilds, pm.Len())
}

func TestPlayerManager_CleanupKeepsEntry(t *testing.T) {
	pm := NewPlayerManager(context.Background(), &fakeConnector{}, newFakeLocator())
	p := pm.Get("g1")
	p.Cleanup()
	assert.Same(t, p, pm.Peek("g1"))
}

func TestPlayerManager_CleanupAll(t *testing.T) {
	connector := &fakeConnector{}
	locator := newFakeLocator()
	locator.set("u1", "c1")
	pm := NewPlayerManager(context.Background(), connector, locator)

	for _, g := range []string{"g1", "g2"} {
		_, err := pm.Get(g).EnsureVoice(context.Background(), "u1")
		require.NoError(t, err)
	}
	require.Equal(t, 2, connector.count())

	pm.CleanupAll()
	for _, g := range []string{"g1", "g2"} {
		assert.False(t, pm.Peek(g).HasConnection())
	}
	for _, c := range connector.conns {
		require.Eventually(t, func() bool { return c.disconnectCount() == 1 }, time.Second, 5*time.Millisecond)
	}
}
