package leveling

import (
	"context"
	"sync"
	"time"
)

type Decision int

const (
	Confirmed Decision = iota + 1
	Cancelled
)

// Confirmations tracks prompts waiting for a ✅ or ❌ from one user.
type Confirmations struct {
	mu      sync.Mutex
	pending map[string]*prompt
}

type prompt struct {
	userID   string
	decision chan Decision
}

func NewConfirmations() *Confirmations {
	return &Confirmations{pending: make(map[string]*prompt)}
}

// Await blocks until userID answers the prompt messageID, timeout passes or ctx ends.
func (c *Confirmations) Await(ctx context.Context, messageID, userID string, timeout time.Duration) (Decision, error) {
	return c.Expect(messageID, userID).Wait(ctx, timeout)
}

// Pending is a registered prompt. Registering before the prompt's reactions are
// added keeps an early answer from being lost.
type Pending struct {
	c         *Confirmations
	messageID string
	p         *prompt
}

// Expect registers a prompt for userID without waiting yet.
func (c *Confirmations) Expect(messageID, userID string) *Pending {
	p := &prompt{userID: userID, decision: make(chan Decision, 1)}
	c.mu.Lock()
	c.pending[messageID] = p
	c.mu.Unlock()
	return &Pending{c: c, messageID: messageID, p: p}
}

// Wait returns the answer, ErrConfirmationTimeout or ctx's error. The prompt is
// dropped either way.
func (w *Pending) Wait(ctx context.Context, timeout time.Duration) (Decision, error) {
	defer w.c.drop(w.messageID, w.p)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case d := <-w.p.decision:
		return d, nil
	case <-timer.C:
		return 0, ErrConfirmationTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *Confirmations) drop(messageID string, p *prompt) {
	c.mu.Lock()
	if c.pending[messageID] == p {
		delete(c.pending, messageID)
	}
	c.mu.Unlock()
}

// Resolve delivers a reaction. It reports whether messageID is a pending prompt, in
// which case the reaction must not be treated as anything else.
func (c *Confirmations) Resolve(messageID, userID, emoji string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[messageID]
	if !ok {
		return false
	}
	if userID != p.userID {
		return true
	}
	var d Decision
	switch emoji {
	case ConfirmEmoji:
		d = Confirmed
	case CancelEmoji:
		d = Cancelled
	default:
		return true
	}
	select {
	case p.decision <- d:
	default:
	}
	return true
}
