package session

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/fedflow/artifact"
	"github.com/BaSui01/fedflow/types"
	"github.com/BaSui01/fedflow/wire"
)

// ArtifactStore persists raw artifacts after ingest.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Journal records phase transitions.
type Journal interface {
	RecordTransition(ctx context.Context, t Transition) error
}

// Transition is one phase change of one participant.
type Transition struct {
	RunID       string
	Participant string
	Coordinator bool
	From        Phase
	To          Phase
	Duration    time.Duration
	Err         string
	At          time.Time
}

// Observer receives session metrics.
type Observer interface {
	ObserveTick(phase string)
	ObserveTransition(from, to string, d time.Duration)
	ObserveInbound(size int)
	ObserveOutbound(kind string, size int)
	ObserveBarrier(have, need int)
	ObserveFailure(code string)
}

type nopObserver struct{}

func (nopObserver) ObserveTick(string) {}
func (nopObserver) ObserveTransition(string, string, time.Duration) {}
func (nopObserver) ObserveInbound(int) {}
func (nopObserver) ObserveOutbound(string, int) {}
func (nopObserver) ObserveBarrier(int, int) {}
func (nopObserver) ObserveFailure(string) {}

// Request is the side effect a tick asks the transport for.
type Request int

const (
	RequestNone Request = iota
	RequestSend
	RequestBroadcast
	RequestWait
)

func (r Request) String() string {
	switch r {
	case RequestSend:
		return "send"
	case RequestBroadcast:
		return "broadcast"
	case RequestWait:
		return "wait"
	default:
		return "none"
	}
}

// Report is the outcome of one tick.
type Report struct {
	From     Phase
	To       Phase
	Request  Request
	Finished bool
}

// Result is set once, when the participant finishes.
type Result struct {
	Finished    bool        `json:"finished"`
	Artifact    ArtifactRef `json:"artifact"`
	RunID       string      `json:"run_id"`
	Participant string      `json:"participant"`
	FinishedAt  time.Time   `json:"finished_at"`
}

// Status is a point-in-time snapshot for the hosting platform.
type Status struct {
	ID          string  `json:"id"`
	Coordinator bool    `json:"coordinator"`
	Phase       Phase   `json:"state"`
	Available   bool    `json:"available"`
	Finished    bool    `json:"finished"`
	Failed      bool    `json:"failed"`
	Error       string  `json:"error,omitempty"`
	Progress    float64 `json:"progress"`
	Message     string  `json:"message,omitempty"`
	Inbox       int     `json:"inbox"`
	Clients     int     `json:"clients"`
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Core) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCodec sets the payload codec. JSON is the default.
func WithCodec(codec wire.Codec) Option {
	return func(c *Core) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithArtifactStore sets where raw artifacts are persisted.
func WithArtifactStore(store ArtifactStore) Option {
	return func(c *Core) {
		if store != nil {
			c.store = store
		}
	}
}

// WithJournal sets the transition journal.
func WithJournal(j Journal) Option {
	return func(c *Core) { c.journal = j }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Core) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithTracer sets the tracer used for phase spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Core) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithDataset sets the input handle passed to Ingest.
func WithDataset(d Dataset) Option {
	return func(c *Core) { c.dataset = d }
}

// WithDestination sets where Emit writes.
func WithDestination(d Destination) Option {
	return func(c *Core) { c.dest = d }
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(c *Core) {
		if id != "" {
			c.runID = id
		}
	}
}

// WithBarrierTimeout fails a coordinator that waits longer than d in
// Finalizing. Zero waits forever.
func WithBarrierTimeout(d time.Duration) Option {
	return func(c *Core) { c.barrierTimeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Core) {
		if now != nil {
			c.now = now
		}
	}
}

// Core is the round state machine of one participant.
type Core struct {
	strategy       Strategy
	codec          wire.Codec
	store          ArtifactStore
	journal        Journal
	observer       Observer
	tracer         trace.Tracer
	logger         *zap.Logger
	dataset        Dataset
	dest           Destination
	runID          string
	barrierTimeout time.Duration
	now            func() time.Time

	// tickMu serializes the drive path. The fields below it are only
	// touched while it is held.
	tickMu     sync.Mutex
	plan       *Plan
	current    Artifact
	emitted    ArtifactRef
	recorded   Phase
	recordedAt time.Time

	mu        sync.Mutex
	identity  *ParticipantIdentity
	clients   []string
	phase     Phase
	enteredAt time.Time
	inbox     [][]byte
	outbox    []byte
	available bool
	sent      wire.Kind
	result    *Result
	failure   error
	progress  float64
	message   string
}

// New creates a session core driven by strategy.
func New(strategy Strategy, opts ...Option) *Core {
	c := &Core{
		strategy: strategy,
		codec:    wire.JSONCodec{},
		store:    artifact.NewMemoryStore(),
		observer: nopObserver{},
		tracer:   otel.Tracer("github.com/BaSui01/fedflow/session"),
		logger:   zap.NewNop(),
		dataset:  Dataset{Root: "/mnt/input"},
		dest:     Destination{Root: "/mnt/output"},
		runID:    uuid.NewString(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "session"), zap.String("run_id", c.runID))
	c.enteredAt = c.now()
	c.recordedAt = c.enteredAt
	return c
}

// RunID returns the identifier of this session run.
func (c *Core) RunID() string {
	return c.runID
}

// OnSetup records the participant identity. It may be called once.
func (c *Core) OnSetup(identity ParticipantIdentity) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity != nil {
		return types.Errorf(types.ErrAlreadyInitialized, "participant %q is already set up", c.identity.ID)
	}
	id := identity.clone()
	c.identity = &id
	c.clients = id.Clients()
	c.logger.Info("session set up",
		zap.String("participant", id.ID),
		zap.String("role", id.Role()),
		zap.Int("clients", len(c.clients)))
	return nil
}

// Identity returns the recorded identity.
func (c *Core) Identity() (ParticipantIdentity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return ParticipantIdentity{}, false
	}
	return c.identity.clone(), true
}

// OnInboundPayload appends a payload to the inbox. It never blocks on the
// drive path. The coordinator's inbox holds at most one entry per barrier slot;
// a resent fragment or marker replaces the earlier one from the same sender.
func (c *Core) OnInboundPayload(payload []byte) error {
	if len(payload) == 0 {
		return types.NewError(types.ErrInvalidRequest, "empty payload")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseFailed {
		return types.NewError(types.ErrSessionFailed, "session has failed").WithCause(c.failure)
	}
	entry := append([]byte(nil), payload...)
	if c.identity != nil && c.identity.Coordinator && len(c.inbox) >= len(c.clients)+1 {
		compacted := c.collapseLocked(append(append([][]byte(nil), c.inbox...), entry))
		if len(compacted) > len(c.clients)+1 {
			return types.Errorf(types.ErrInboxOverflow, "inbox holds %d payloads", len(c.inbox)).WithRetryable(true)
		}
		c.inbox = compacted
	} else {
		c.inbox = append(c.inbox, entry)
	}
	c.observer.ObserveInbound(len(payload))
	return nil
}

type slotKey struct {
	kind wire.Kind
	from string
}

// collapseLocked keeps the latest entry per sender and kind.
// Undecodable entries stay so the next tick fails on them.
func (c *Core) collapseLocked(entries [][]byte) [][]byte {
	keys := make([]*slotKey, len(entries))
	last := make(map[slotKey]int, len(entries))
	for i, raw := range entries {
		msg, err := wire.Decode(c.codec, raw)
		if err != nil {
			continue
		}
		k := slotKey{kind: msg.Kind, from: msg.From}
		keys[i] = &k
		last[k] = i
	}
	out := make([][]byte, 0, len(entries))
	for i, raw := range entries {
		if keys[i] != nil && last[*keys[i]] != i {
			continue
		}
		out = append(out, raw)
	}
	return out
}

// PullOutbound takes the pending outbound payload.
func (c *Core) PullOutbound() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.available {
		return nil, false
	}
	out := c.outbox
	c.outbox = nil
	c.available = false
	return out, true
}

// Status returns a snapshot of the session.
func (c *Core) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		Phase:     c.phase,
		Available: c.available,
		Finished:  c.result != nil,
		Failed:    c.phase == PhaseFailed,
		Progress:  c.progress,
		Message:   c.message,
		Inbox:     len(c.inbox),
		Clients:   len(c.clients),
	}
	if c.identity != nil {
		s.ID = c.identity.ID
		s.Coordinator = c.identity.Coordinator
	}
	if c.failure != nil {
		s.Error = c.failure.Error()
	}
	return s
}

// Result returns the final result once the participant has finished.
func (c *Core) Result() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return Result{}, false
	}
	return *c.result, true
}

// Err returns the failure that ended the session, if any.
func (c *Core) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Phase returns the current phase.
func (c *Core) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Tick runs the current phase once and advances by at most one phase.
// Repeated ticks in Finalizing, Terminal and Failed produce no new sends.
func (c *Core) Tick(ctx context.Context) (Report, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	from := c.Phase()
	c.observer.ObserveTick(from.String())

	var (
		req Request
		err error
	)
	switch {
	case !from.IsTerminal() && c.screenInbox() != nil:
		err = c.Err()
	case from == PhaseInitializing:
		req = c.stepInitializing()
	case from == PhaseLocalIngest, from == PhaseLocalTransform, from == PhaseEmit:
		req, err = c.runPhase(ctx, from)
	case from == PhaseFinalizing:
		req, err = c.stepFinalizing()
	case from == PhaseTerminal:
	case from == PhaseFailed:
		err = c.Err()
	default:
		err = types.Errorf(types.ErrInternalError, "unhandled phase %s", from)
	}

	c.settle(ctx)
	to := c.Phase()
	if to == PhaseFailed && err == nil {
		err = c.Err()
	}
	_, finished := c.Result()
	return Report{From: from, To: to, Request: req, Finished: finished}, err
}

func (c *Core) stepInitializing() Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return RequestWait
	}
	c.enterLocked(PhaseLocalIngest)
	return RequestNone
}

// runPhase wraps a strategy-backed phase in a span and maps its outcome.
func (c *Core) runPhase(ctx context.Context, phase Phase) (Request, error) {
	id, _ := c.Identity()
	ctx = types.WithRunID(types.WithParticipantID(ctx, id.ID), c.runID)
	ctx, span := c.tracer.Start(ctx, "session."+phase.String(), trace.WithAttributes(
		attribute.String("fedflow.run_id", c.runID),
		attribute.String("fedflow.participant", id.ID),
		attribute.Bool("fedflow.coordinator", id.Coordinator),
	))
	defer span.End()

	var (
		next Phase
		err  error
	)
	switch phase {
	case PhaseLocalIngest:
		next, err = c.ingest(ctx)
	case PhaseLocalTransform:
		next, err = c.transform(ctx)
	case PhaseEmit:
		next, err = c.emit(ctx, id)
	}

	req := c.takeSendRequest()
	switch {
	case err == nil:
		c.mu.Lock()
		if c.phase == phase {
			c.enterLocked(next)
		}
		c.mu.Unlock()
		return req, nil
	case errors.Is(err, ErrNotReady):
		if req == RequestNone {
			req = RequestWait
		}
		return req, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !types.IsCode(err, types.ErrDecodeFailure) && !types.IsCode(err, types.ErrInternalError) {
			err = types.Errorf(types.ErrPipelineFailure, "%s failed", phase).WithCause(err)
		}
		c.fail(err)
		return req, c.Err()
	}
}

func (c *Core) ingest(ctx context.Context) (Phase, error) {
	e := env{c: c}
	if c.plan == nil {
		plan, err := c.strategy.Configure(ctx, e)
		if err != nil {
			return 0, err
		}
		c.plan = &plan
	}
	art, err := c.strategy.Ingest(ctx, e, c.dataset)
	if err != nil {
		return 0, err
	}
	if err := c.persist(ctx, art); err != nil {
		return 0, err
	}
	c.current = art
	if c.plan.HasTransform() {
		return PhaseLocalTransform, nil
	}
	return PhaseEmit, nil
}

func (c *Core) transform(ctx context.Context) (Phase, error) {
	art, err := c.strategy.Transform(ctx, env{c: c}, c.current)
	if err != nil {
		return 0, err
	}
	c.current = art
	return PhaseEmit, nil
}

func (c *Core) emit(ctx context.Context, id ParticipantIdentity) (Phase, error) {
	ref, err := c.strategy.Emit(ctx, env{c: c}, c.current, c.dest)
	if err != nil {
		return 0, err
	}
	c.emitted = ref
	done, err := wire.Encode(c.codec, wire.Done(id.ID))
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id.Coordinator {
		// 聚合已完成: 剩余片段作废, 每个 sender 只留一个 DONE
		seen := make(map[string]bool, len(c.inbox))
		kept := make([][]byte, 0, len(c.clients)+1)
		for _, raw := range c.inbox {
			msg, err := c.decodeLocked(raw, wire.KindFragment, wire.KindDone)
			if err != nil {
				return 0, err
			}
			if !msg.IsDone() || msg.From == id.ID || seen[msg.From] {
				continue
			}
			seen[msg.From] = true
			kept = append(kept, raw)
		}
		c.inbox = append(kept, done)
		return PhaseFinalizing, nil
	}
	if err := c.screenInboxLocked(); err != nil {
		return 0, err
	}
	c.setOutboxLocked(wire.KindDone, done)
	c.finishLocked()
	return PhaseTerminal, nil
}

// persist stores the raw artifact under <run>/<participant>/<name>.
func (c *Core) persist(ctx context.Context, art Artifact) error {
	var (
		data []byte
		err  error
	)
	if m, ok := art.Value.(encoding.BinaryMarshaler); ok {
		data, err = m.MarshalBinary()
	} else {
		data, err = c.codec.Marshal(art.Value)
	}
	if err != nil {
		return types.NewError(types.ErrInternalError, "encode raw artifact").WithCause(err)
	}
	name := art.Name
	if name == "" {
		name = "raw"
	}
	id, _ := c.Identity()
	key := fmt.Sprintf("%s/%s/%s", c.runID, id.ID, name)
	if err := c.store.Put(ctx, key, data); err != nil {
		return types.NewError(types.ErrInternalError, "persist raw artifact").WithCause(err)
	}
	c.logger.Debug("raw artifact persisted", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// stepFinalizing counts distinct completion markers in the inbox.
func (c *Core) stepFinalizing() (Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(c.inbox))
	kept := make([][]byte, 0, len(c.inbox))
	for _, raw := range c.inbox {
		msg, err := c.decodeLocked(raw, wire.KindFragment, wire.KindDone)
		if err != nil {
			c.failLocked(err)
			return RequestNone, c.failure
		}
		// Stale fragments are dropped so late completion markers still fit.
		if !msg.IsDone() || seen[msg.From] {
			continue
		}
		seen[msg.From] = true
		kept = append(kept, raw)
	}
	c.inbox = kept

	have, need := len(kept), len(c.clients)+1
	c.observer.ObserveBarrier(have, need)
	if have >= need {
		c.finishLocked()
		c.enterLocked(PhaseTerminal)
		return RequestNone, nil
	}
	if c.barrierTimeout > 0 && c.now().Sub(c.enteredAt) > c.barrierTimeout {
		c.failLocked(types.Errorf(types.ErrTimeout, "barrier incomplete after %s: %d of %d", c.barrierTimeout, have, need))
		return RequestNone, c.failure
	}
	return RequestWait, nil
}

// decodeLocked decodes raw and checks the sender and kind against the role.
func (c *Core) decodeLocked(raw []byte, allowed ...wire.Kind) (wire.Envelope, error) {
	msg, err := wire.Decode(c.codec, raw)
	if err != nil {
		return wire.Envelope{}, err
	}
	kindOK := false
	for _, k := range allowed {
		if msg.Kind == k {
			kindOK = true
			break
		}
	}
	if !kindOK {
		return wire.Envelope{}, types.Errorf(types.ErrDecodeFailure, "unexpected %s payload from %q", msg.Kind, msg.From)
	}
	if c.identity != nil && c.identity.Coordinator && msg.From != c.identity.ID && c.clientIndexLocked(msg.From) < 0 {
		return wire.Envelope{}, types.Errorf(types.ErrDecodeFailure, "payload from unknown sender %q", msg.From)
	}
	return msg, nil
}

// screenInbox fails a client whose inbox holds anything but a decodable
// broadcast. The coordinator checks its inbox when it consumes it.
func (c *Core) screenInbox() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.screenInboxLocked(); err != nil {
		c.failLocked(err)
		return err
	}
	return nil
}

func (c *Core) screenInboxLocked() error {
	if c.identity == nil || c.identity.Coordinator {
		return nil
	}
	for _, raw := range c.inbox {
		if _, err := c.decodeLocked(raw, wire.KindBroadcast); err != nil {
			return err
		}
	}
	return nil
}

func (c *Core) clientIndexLocked(id string) int {
	for i, client := range c.clients {
		if client == id {
			return i
		}
	}
	return -1
}

func (c *Core) setOutboxLocked(kind wire.Kind, data []byte) {
	c.outbox = data
	c.available = true
	c.sent = kind
	c.observer.ObserveOutbound(string(kind), len(data))
}

// takeSendRequest reports what was placed in the outbox during this tick.
func (c *Core) takeSendRequest() Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind := c.sent
	c.sent = ""
	switch kind {
	case wire.KindFragment, wire.KindDone:
		return RequestSend
	case wire.KindBroadcast:
		return RequestBroadcast
	default:
		return RequestNone
	}
}

func (c *Core) enterLocked(p Phase) {
	if c.phase == p || c.phase.IsTerminal() {
		return
	}
	c.phase = p
	c.enteredAt = c.now()
	if b := p.baseline(); b > c.progress || p == PhaseTerminal {
		c.progress = b
	}
	c.message = ""
}

func (c *Core) finishLocked() {
	if c.result != nil {
		return
	}
	r := Result{
		Finished:   true,
		Artifact:   c.emitted,
		RunID:      c.runID,
		FinishedAt: c.now(),
	}
	if c.identity != nil {
		r.Participant = c.identity.ID
	}
	c.result = &r
}

func (c *Core) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failLocked(err)
}

// failLocked moves the session to Failed. The first failure wins.
func (c *Core) failLocked(err error) {
	if c.phase == PhaseFailed {
		return
	}
	c.failure = err
	c.phase = PhaseFailed
	c.enteredAt = c.now()
	c.inbox = nil
	c.observer.ObserveFailure(string(types.CodeOf(err)))
	c.logger.Error("session failed", zap.Error(err))
}

// settle publishes the transition made since the last tick, if any.
func (c *Core) settle(ctx context.Context) {
	c.mu.Lock()
	to := c.phase
	from := c.recorded
	if to == from {
		c.mu.Unlock()
		return
	}
	now := c.now()
	t := Transition{
		RunID:    c.runID,
		From:     from,
		To:       to,
		Duration: now.Sub(c.recordedAt),
		At:       now,
	}
	if c.identity != nil {
		t.Participant = c.identity.ID
		t.Coordinator = c.identity.Coordinator
	}
	if c.failure != nil {
		t.Err = c.failure.Error()
	}
	c.recorded = to
	c.recordedAt = now
	c.mu.Unlock()

	c.observer.ObserveTransition(from.String(), to.String(), t.Duration)
	c.logger.Info("phase changed",
		zap.String("participant", t.Participant),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Duration("took", t.Duration))
	if c.journal != nil {
		if err := c.journal.RecordTransition(ctx, t); err != nil {
			c.logger.Warn("failed to record transition", zap.Error(err))
		}
	}
}
