package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/outubeused26-commits/FloraVeda/internal/botanist"
	"github.com/outubeused26-commits/FloraVeda/internal/domain"
)

// Greeting is the model turn the transcript starts with.
const Greeting = "Hello! I am Dr. Green. I've analyzed your plant's condition. " +
	"How can I assist you with its health and care today? \U0001FA7A\U0001F33F"

// Canned user-facing messages for failed exchanges.
const (
	msgConnectionError = "I encountered a connection error. Please try again."
	msgRateLimited     = "I'm receiving too many requests right now. Please try again in a moment."
	msgUnavailable     = "The service is temporarily unavailable."
	msgSafetyBlocked   = "I cannot provide an answer to that request due to safety guidelines."
)

// ErrBusy is returned when a send or retry arrives while a prior exchange is
// still streaming. Exchanges are strictly one at a time.
var ErrBusy = errors.New("a chat exchange is already in progress")

// Event reports one observable mutation of the exchange: either an
// incremental fragment appended to the model turn, or the settled final turn.
type Event struct {
	TurnID   string           `json:"turnId"`
	Fragment string           `json:"fragment,omitempty"`
	Done     bool             `json:"done,omitempty"`
	Turn     *domain.ChatTurn `json:"turn,omitempty"`
}

// Controller drives chat exchanges against a session and owns the transcript.
// Turns are appended and updated strictly in the order exchanges are
// initiated; the busy flag rejects overlapping exchanges.
type Controller struct {
	session *Session
	logger  *slog.Logger

	mu     sync.Mutex
	turns  []*domain.ChatTurn
	typing bool
}

func NewController(session *Session, logger *slog.Logger) *Controller {
	return &Controller{
		session: session,
		logger:  logger,
		turns: []*domain.ChatTurn{
			{ID: "init", Role: domain.RoleModel, Text: Greeting},
		},
	}
}

// Transcript returns a snapshot of all turns in chronological order.
func (c *Controller) Transcript() []domain.ChatTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChatTurn, len(c.turns))
	for i, t := range c.turns {
		out[i] = *t
	}
	return out
}

// IsTyping reports whether an exchange is currently in flight.
func (c *Controller) IsTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// Send runs one exchange: it appends the user turn and a loading model
// placeholder, then streams the reply into the placeholder. Events mirror
// each transcript mutation so callers can render partial answers. A nil
// channel with nil error means the send was a no-op (blank text or no
// session); ErrBusy means an exchange is already streaming.
func (c *Controller) Send(ctx context.Context, text string) (<-chan Event, error) {
	if strings.TrimSpace(text) == "" || c.session == nil {
		return nil, nil
	}

	c.mu.Lock()
	if c.typing {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.typing = true
	c.turns = append(c.turns, &domain.ChatTurn{
		ID:   uuid.NewString(),
		Role: domain.RoleUser,
		Text: text,
	})
	placeholder := &domain.ChatTurn{
		ID:        uuid.NewString(),
		Role:      domain.RoleModel,
		IsLoading: true,
	}
	c.turns = append(c.turns, placeholder)
	c.mu.Unlock()

	out := make(chan Event, 16)
	go c.run(ctx, text, placeholder, out)
	return out, nil
}

// Retry re-runs the exchange that produced turnID, overwriting that turn in
// place. It is a no-op unless the immediately preceding turn is a user turn.
func (c *Controller) Retry(ctx context.Context, turnID string) (<-chan Event, error) {
	c.mu.Lock()
	idx := -1
	for i, t := range c.turns {
		if t.ID == turnID {
			idx = i
			break
		}
	}
	if idx <= 0 || c.turns[idx-1].Role != domain.RoleUser {
		c.mu.Unlock()
		return nil, nil
	}
	if c.typing {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.typing = true
	userText := c.turns[idx-1].Text
	turn := c.turns[idx]
	turn.Text = ""
	turn.IsLoading = true
	turn.IsError = false
	c.mu.Unlock()

	out := make(chan Event, 16)
	go c.run(ctx, userText, turn, out)
	return out, nil
}

// run drives one exchange to settlement. The typing flag is cleared on every
// exit path so the input affordance is re-enabled exactly once per exchange.
func (c *Controller) run(ctx context.Context, userText string, turn *domain.ChatTurn, out chan<- Event) {
	defer close(out)
	defer func() {
		c.mu.Lock()
		c.typing = false
		c.mu.Unlock()
	}()

	settle := func(errMsg string) {
		c.mu.Lock()
		if errMsg != "" {
			turn.Text = errMsg
			turn.IsError = true
		}
		turn.IsLoading = false
		snapshot := *turn
		c.mu.Unlock()
		out <- Event{TurnID: snapshot.ID, Done: true, Turn: &snapshot}
	}

	stream, err := c.session.handle.SendStream(ctx, userText)
	if err != nil {
		c.logger.Error("chat exchange failed to start", "turn_id", turn.ID, "error", err)
		settle(classify(err))
		return
	}

	for ev := range stream {
		if ev.Err != nil {
			c.logger.Error("chat stream failed", "turn_id", turn.ID, "error", ev.Err)
			settle(classify(ev.Err))
			return
		}
		c.mu.Lock()
		turn.IsLoading = false
		turn.Text += ev.Text
		c.mu.Unlock()
		out <- Event{TurnID: turn.ID, Fragment: ev.Text}
	}

	settle("")
}

// classify maps a stream failure to its canned user-facing message. Typed
// error kinds win; otherwise the failure text is matched for the provider's
// well-known markers, checked rate-limit first, then unavailable, then
// safety. Anything unrecognized gets the generic connection message.
func classify(err error) string {
	var se *botanist.StreamError
	if errors.As(err, &se) {
		switch se.Kind {
		case botanist.KindRateLimited:
			return msgRateLimited
		case botanist.KindUnavailable:
			return msgUnavailable
		case botanist.KindSafetyBlocked:
			return msgSafetyBlocked
		}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return msgRateLimited
	case strings.Contains(msg, "503"):
		return msgUnavailable
	case strings.Contains(msg, "safety"):
		return msgSafetyBlocked
	}
	return msgConnectionError
}
