package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/fedflow/api"
	"github.com/BaSui01/fedflow/session"
	"github.com/BaSui01/fedflow/types"
)

// DeliveryRecorder records the outcome of each delivery attempt.
type DeliveryRecorder interface {
	RecordRelayDelivery(target string, err error)
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithPollInterval sets the pause between pumps in Run.
func WithPollInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRelayLogger sets the logger.
func WithRelayLogger(logger *zap.Logger) RelayOption {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDeliveryRecorder records delivery outcomes, typically into metrics.
func WithDeliveryRecorder(rec DeliveryRecorder) RelayOption {
	return func(r *Relay) { r.recorder = rec }
}

// NodeStatus is one node's status as observed by the relay.
type NodeStatus struct {
	ID     string
	Status api.StatusResponse
	Err    error
}

// Relay moves payloads between one coordinator and its clients.
type Relay struct {
	nodes       []Node
	coordinator Node
	clients     []Node
	interval    time.Duration
	logger      *zap.Logger
	recorder    DeliveryRecorder

	mu     sync.Mutex
	queues map[string][][]byte
}

// NewRelay builds a relay over nodes. coordinatorID must name one of them.
func NewRelay(nodes []Node, coordinatorID string, opts ...RelayOption) (*Relay, error) {
	if len(nodes) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "relay needs at least one node")
	}
	ids := lo.Map(nodes, func(n Node, _ int) string { return n.ID() })
	if dup := lo.FindDuplicates(ids); len(dup) > 0 {
		return nil, types.Errorf(types.ErrInvalidRequest, "duplicate node ids: %v", dup)
	}
	coord, ok := lo.Find(nodes, func(n Node) bool { return n.ID() == coordinatorID })
	if !ok {
		return nil, types.Errorf(types.ErrInvalidRequest, "coordinator %q is not among the nodes", coordinatorID)
	}

	r := &Relay{
		nodes:       nodes,
		coordinator: coord,
		clients:     lo.Filter(nodes, func(n Node, _ int) bool { return n.ID() != coordinatorID }),
		interval:    500 * time.Millisecond,
		logger:      zap.NewNop(),
		queues:      make(map[string][][]byte, len(nodes)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "relay"), zap.String("coordinator", coordinatorID))
	return r, nil
}

// Peers returns every node id in relay order.
func (r *Relay) Peers() []string {
	return lo.Map(r.nodes, func(n Node, _ int) string { return n.ID() })
}

// Setup delivers each node its identity. A node that was already set up is
// left as is.
func (r *Relay) Setup(ctx context.Context) error {
	peers := r.Peers()
	g, gctx := errgroup.WithContext(ctx)
	for _, n := range r.nodes {
		g.Go(func() error {
			identity := session.ParticipantIdentity{
				ID:          n.ID(),
				Coordinator: n.ID() == r.coordinator.ID(),
				Peers:       peers,
			}
			err := n.Setup(gctx, identity)
			if types.IsCode(err, types.ErrAlreadyInitialized) {
				r.logger.Warn("node already set up", zap.String("node", n.ID()))
				return nil
			}
			if err != nil {
				return fmt.Errorf("setup %s: %w", n.ID(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.logger.Info("nodes set up", zap.Int("nodes", len(r.nodes)))
	return nil
}

// Pump pulls every pending payload, routes it and delivers all queued
// payloads. It returns how many payloads were delivered.
func (r *Relay) Pump(ctx context.Context) (int, error) {
	pulled := make([][]byte, len(r.nodes))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range r.nodes {
		g.Go(func() error {
			payload, ok, err := n.Pull(gctx)
			if err != nil {
				r.logger.Warn("pull failed", zap.String("node", n.ID()), zap.Error(err))
				return nil
			}
			if ok {
				pulled[i] = payload
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	for i, payload := range pulled {
		if payload == nil {
			continue
		}
		if r.nodes[i] == r.coordinator {
			for _, c := range r.clients {
				r.queues[c.ID()] = append(r.queues[c.ID()], payload)
			}
			continue
		}
		id := r.coordinator.ID()
		r.queues[id] = append(r.queues[id], payload)
	}
	r.mu.Unlock()

	return r.flush(ctx)
}

// Pending returns the number of queued payloads per target.
func (r *Relay) Pending() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.MapValues(lo.PickBy(r.queues, func(_ string, q [][]byte) bool { return len(q) > 0 }),
		func(q [][]byte, _ string) int { return len(q) })
}

// flush drains each target's queue in order, stopping a target at its first
// retryable failure.
func (r *Relay) flush(ctx context.Context) (int, error) {
	var (
		mu        sync.Mutex
		delivered int
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, n := range r.nodes {
		r.mu.Lock()
		queue := r.queues[n.ID()]
		delete(r.queues, n.ID())
		r.mu.Unlock()
		if len(queue) == 0 {
			continue
		}

		g.Go(func() error {
			sent, rest := r.deliver(gctx, n, queue)
			mu.Lock()
			delivered += sent
			mu.Unlock()
			if len(rest) > 0 {
				r.mu.Lock()
				r.queues[n.ID()] = append(rest, r.queues[n.ID()]...)
				r.mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return delivered, ctx.Err()
}

func (r *Relay) deliver(ctx context.Context, n Node, queue [][]byte) (int, [][]byte) {
	sent := 0
	for i, payload := range queue {
		err := n.Push(ctx, payload)
		if r.recorder != nil {
			r.recorder.RecordRelayDelivery(n.ID(), err)
		}
		if err == nil {
			sent++
			continue
		}
		if retryable(err) {
			r.logger.Debug("delivery deferred", zap.String("target", n.ID()), zap.Error(err))
			return sent, queue[i:]
		}
		r.logger.Warn("payload dropped",
			zap.String("target", n.ID()),
			zap.String("code", string(types.CodeOf(err))),
			zap.Error(err))
	}
	return sent, nil
}

// retryable treats transport errors without a code as transient.
func retryable(err error) bool {
	if _, ok := types.AsError(err); !ok {
		return true
	}
	return types.IsRetryable(err)
}

// Statuses queries every node.
func (r *Relay) Statuses(ctx context.Context) []NodeStatus {
	out := make([]NodeStatus, len(r.nodes))
	var wg sync.WaitGroup
	for i, n := range r.nodes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := n.Status(ctx)
			out[i] = NodeStatus{ID: n.ID(), Status: st, Err: err}
		}()
	}
	wg.Wait()
	return out
}

// Run sets the nodes up and pumps until every node has finished with nothing
// left in flight, a node fails, or ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.Setup(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	start := time.Now()

	for {
		if _, err := r.Pump(ctx); err != nil {
			return err
		}

		done, err := r.settled(ctx)
		if err != nil {
			return err
		}
		if done {
			r.logger.Info("all nodes finished", zap.Duration("elapsed", time.Since(start)))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Relay) settled(ctx context.Context) (bool, error) {
	statuses := r.Statuses(ctx)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	for _, s := range statuses {
		if s.Err == nil && s.Status.Failed {
			return false, types.Errorf(types.ErrSessionFailed, "node %s failed: %s", s.ID, s.Status.Error)
		}
	}
	if len(r.Pending()) > 0 {
		return false, nil
	}
	return lo.EveryBy(statuses, func(s NodeStatus) bool {
		return s.Err == nil && s.Status.Finished && !s.Status.Available
	}), nil
}
