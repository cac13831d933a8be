package leveling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmationsResolveOnlyForActor(t *testing.T) {
	t.Parallel()
	c := NewConfirmations()
	pending := c.Expect("prompt", aliceID)

	assert.False(t, c.Resolve("elsewhere", aliceID, ConfirmEmoji))
	assert.True(t, c.Resolve("prompt", bobID, ConfirmEmoji), "a stranger's reaction is swallowed")
	assert.True(t, c.Resolve("prompt", aliceID, "🎉"))
	assert.True(t, c.Resolve("prompt", aliceID, CancelEmoji))

	d, err := pending.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, d)
	assert.False(t, c.Resolve("prompt", aliceID, ConfirmEmoji), "answered prompts are dropped")
}

func TestConfirmationsAwaitConfirmed(t *testing.T) {
	t.Parallel()
	c := NewConfirmations()
	go func() {
		for !c.Resolve("prompt", aliceID, ConfirmEmoji) {
			time.Sleep(time.Millisecond)
		}
	}()
	d, err := c.Await(context.Background(), "prompt", aliceID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Confirmed, d)
}

func TestConfirmationsTimeout(t *testing.T) {
	t.Parallel()
	c := NewConfirmations()
	_, err := c.Await(context.Background(), "prompt", aliceID, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.False(t, c.Resolve("prompt", aliceID, ConfirmEmoji))
}

func TestConfirmationsContextCancel(t *testing.T) {
	t.Parallel()
	c := NewConfirmations()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Await(ctx, "prompt", aliceID, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
