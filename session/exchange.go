package session

import (
	"iter"

	"github.com/BaSui01/fedflow/types"
	"github.com/BaSui01/fedflow/wire"
)

// Gathered is the result of one gather. It can be ranged over once.
type Gathered struct {
	entries  []gatheredEntry
	consumed bool
}

type gatheredEntry struct {
	body  wire.Body
	index int
}

// Len is the number of entries, one per client, or zero when the gather is
// not complete yet.
func (g *Gathered) Len() int {
	return len(g.entries)
}

// All yields each client's body with its index among the clients.
// A second call yields nothing.
func (g *Gathered) All() iter.Seq2[wire.Body, int] {
	return func(yield func(wire.Body, int) bool) {
		if g.consumed {
			return
		}
		g.consumed = true
		for _, e := range g.entries {
			if !yield(e.body, e.index) {
				return
			}
		}
	}
}

// SendToCoordinator places a fragment in the outbox, replacing any payload
// that was not pulled yet.
func (c *Core) SendToCoordinator(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, err := c.requireRoleLocked(false, "send to coordinator")
	if err != nil {
		return err
	}
	data, err := wire.Encode(c.codec, wire.Fragment(id.ID, v))
	if err != nil {
		return err
	}
	c.setOutboxLocked(wire.KindFragment, data)
	return nil
}

// Broadcast places a broadcast in the outbox. The transport fans it out.
func (c *Core) Broadcast(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, err := c.requireRoleLocked(true, "broadcast")
	if err != nil {
		return err
	}
	data, err := wire.Encode(c.codec, wire.Broadcast(id.ID, v))
	if err != nil {
		return err
	}
	c.setOutboxLocked(wire.KindBroadcast, data)
	return nil
}

// GatherFromClients returns one fragment per client once every client has
// sent one, and removes those fragments from the inbox. Until then it returns
// an empty Gathered and leaves the inbox untouched. A later fragment from the
// same client replaces its earlier one.
func (c *Core) GatherFromClients() (*Gathered, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.requireRoleLocked(true, "gather from clients"); err != nil {
		return nil, err
	}

	latest := make(map[string]wire.Envelope, len(c.clients))
	rest := make([][]byte, 0, len(c.inbox))
	for _, raw := range c.inbox {
		msg, err := c.decodeLocked(raw, wire.KindFragment, wire.KindDone)
		if err != nil {
			c.failLocked(err)
			return nil, err
		}
		if msg.Kind != wire.KindFragment {
			rest = append(rest, raw)
			continue
		}
		if msg.From == c.identity.ID {
			c.failLocked(types.NewError(types.ErrDecodeFailure, "coordinator received its own fragment"))
			return nil, c.failure
		}
		latest[msg.From] = msg
	}
	if len(latest) < len(c.clients) {
		return &Gathered{}, nil
	}

	g := &Gathered{entries: make([]gatheredEntry, 0, len(c.clients))}
	for i, client := range c.clients {
		g.entries = append(g.entries, gatheredEntry{body: wire.NewBody(latest[client].Body), index: i})
	}
	c.inbox = rest
	return g, nil
}

// AwaitBroadcast returns the most recent broadcast and clears the inbox, or
// false when none has arrived.
func (c *Core) AwaitBroadcast() (wire.Body, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.requireRoleLocked(false, "await broadcast"); err != nil {
		return wire.Body{}, false, err
	}
	var (
		latest wire.Envelope
		found  bool
	)
	for _, raw := range c.inbox {
		msg, err := c.decodeLocked(raw, wire.KindBroadcast)
		if err != nil {
			c.failLocked(err)
			return wire.Body{}, false, err
		}
		latest, found = msg, true
	}
	if !found {
		return wire.Body{}, false, nil
	}
	c.inbox = nil
	return wire.NewBody(latest.Body), true, nil
}

func (c *Core) requireRoleLocked(coordinator bool, op string) (*ParticipantIdentity, error) {
	if c.identity == nil {
		return nil, types.Errorf(types.ErrNotInitialized, "%s before setup", op)
	}
	if c.identity.Coordinator != coordinator {
		return nil, types.Errorf(types.ErrRoleViolation, "%s is not allowed for a %s", op, c.identity.Role())
	}
	return c.identity, nil
}
