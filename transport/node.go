package transport

import (
	"context"

	"github.com/BaSui01/fedflow/api"
	"github.com/BaSui01/fedflow/session"
)

// Node is one participant as seen by the relay.
type Node interface {
	ID() string
	Setup(ctx context.Context, identity session.ParticipantIdentity) error
	Status(ctx context.Context) (api.StatusResponse, error)
	// Pull takes the pending outbound payload. ok is false when none is pending.
	Pull(ctx context.Context) (payload []byte, ok bool, err error)
	Push(ctx context.Context, payload []byte) error
}

// LocalNode wraps a session running in this process.
type LocalNode struct {
	id   string
	core *session.Core
}

// NewLocalNode returns a node backed by core.
func NewLocalNode(id string, core *session.Core) *LocalNode {
	return &LocalNode{id: id, core: core}
}

func (n *LocalNode) ID() string { return n.id }

// Core returns the wrapped session.
func (n *LocalNode) Core() *session.Core { return n.core }

func (n *LocalNode) Setup(_ context.Context, identity session.ParticipantIdentity) error {
	return n.core.OnSetup(identity)
}

func (n *LocalNode) Status(context.Context) (api.StatusResponse, error) {
	return api.StatusFrom(n.core.Status()), nil
}

func (n *LocalNode) Pull(context.Context) ([]byte, bool, error) {
	payload, ok := n.core.PullOutbound()
	return payload, ok, nil
}

func (n *LocalNode) Push(_ context.Context, payload []byte) error {
	return n.core.OnInboundPayload(payload)
}
