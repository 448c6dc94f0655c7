package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/BaSui01/fedflow/wire"
)

// ErrNotReady is returned by a strategy that is waiting on peer data.
// The phase is retried on the next tick.
var ErrNotReady = errors.New("session: not ready")

// Strategy supplies the phase-specific work of one participant.
// Methods run synchronously inside a tick and may be retried after ErrNotReady.
type Strategy interface {
	Configure(ctx context.Context, env Env) (Plan, error)
	Ingest(ctx context.Context, env Env, input Dataset) (Artifact, error)
	Transform(ctx context.Context, env Env, in Artifact) (Artifact, error)
	Emit(ctx context.Context, env Env, in Artifact, dest Destination) (ArtifactRef, error)
}

// Transform is one optional preprocessing step a strategy may enable.
type Transform struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Plan is the outcome of Configure.
type Plan struct {
	Transforms []Transform `json:"transforms"`
}

// HasTransform reports whether any transform is enabled.
func (p Plan) HasTransform() bool {
	for _, t := range p.Transforms {
		if t.Enabled {
			return true
		}
	}
	return false
}

// Dataset is the local input handle.
type Dataset struct {
	Root string `json:"root"`
}

// Destination is where the final artifact is written.
type Destination struct {
	Root string `json:"root"`
}

// Artifact is the value passed between phases.
// Value is persisted after ingest; it may implement encoding.BinaryMarshaler.
type Artifact struct {
	Name  string
	Value any
}

// ArtifactRef points at an emitted artifact.
type ArtifactRef struct {
	Location string `json:"location"`
	Codec    string `json:"codec,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Exchange holds the primitives for mid-pipeline aggregation.
type Exchange interface {
	SendToCoordinator(v any) error
	GatherFromClients() (*Gathered, error)
	Broadcast(v any) error
	AwaitBroadcast() (wire.Body, bool, error)
}

// Env is what a strategy sees of its session.
type Env interface {
	Exchange
	Identity() ParticipantIdentity
	Logger() *zap.Logger
	Codec() wire.Codec
	Progress(fraction float64, message string)
}

type env struct {
	c *Core
}

func (e env) SendToCoordinator(v any) error { return e.c.SendToCoordinator(v) }
func (e env) GatherFromClients() (*Gathered, error) { return e.c.GatherFromClients() }
func (e env) Broadcast(v any) error { return e.c.Broadcast(v) }
func (e env) AwaitBroadcast() (wire.Body, bool, error) { return e.c.AwaitBroadcast() }
func (e env) Logger() *zap.Logger { return e.c.logger }
func (e env) Codec() wire.Codec { return e.c.codec }

func (e env) Identity() ParticipantIdentity {
	id, _ := e.c.Identity()
	return id
}

func (e env) Progress(fraction float64, message string) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	e.c.progress = fraction
	e.c.message = message
}
