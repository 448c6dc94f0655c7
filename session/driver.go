package session

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/fedflow/types"
)

// Scheduler signals when the driver should tick again.
type Scheduler interface {
	C() <-chan time.Time
	Stop()
}

type tickerScheduler struct {
	t *time.Ticker
}

// NewTickerScheduler fires every d.
func NewTickerScheduler(d time.Duration) Scheduler {
	if d <= 0 {
		d = time.Second
	}
	return &tickerScheduler{t: time.NewTicker(d)}
}

func (s *tickerScheduler) C() <-chan time.Time { return s.t.C }
func (s *tickerScheduler) Stop() { s.t.Stop() }

// Inlet pushes inbound payloads to the driver.
type Inlet interface {
	Inbound() <-chan []byte
}

// Outlet accepts outbound payloads pushed by the driver.
type Outlet interface {
	Deliver(ctx context.Context, payload []byte) error
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithScheduler replaces the default one-second ticker.
func WithScheduler(s Scheduler) DriverOption {
	return func(d *Driver) { d.scheduler = s }
}

// WithInlet feeds inbound payloads from a push transport. It is meant for
// programs that embed a Core next to their own transport; `fedflow serve`
// leaves it unset and receives payloads through the node API instead.
func WithInlet(in Inlet) DriverOption {
	return func(d *Driver) { d.inlet = in }
}

// WithOutlet delivers outbound payloads to a push transport. Without an outlet
// payloads wait in the outbox for PullOutbound, which is how `fedflow serve`
// hands them to the relay.
func WithOutlet(out Outlet) DriverOption {
	return func(d *Driver) { d.outlet = out }
}

// WithDriverLogger sets the driver logger.
func WithDriverLogger(logger *zap.Logger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Driver ticks a Core until it finishes.
type Driver struct {
	core      *Core
	scheduler Scheduler
	inlet     Inlet
	outlet    Outlet
	logger    *zap.Logger

	pending []byte
}

// NewDriver creates a driver for core.
func NewDriver(core *Core, opts ...DriverOption) *Driver {
	d := &Driver{core: core, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	if d.scheduler == nil {
		d.scheduler = NewTickerScheduler(time.Second)
	}
	d.logger = d.logger.With(zap.String("component", "session_driver"))
	return d
}

// Run ticks until the session finishes, fails or ctx is cancelled. A client
// is finished once its completion marker has left the outbox.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	defer d.scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	var result Result

	g.Go(func() error {
		defer close(done)
		r, err := d.loop(gctx)
		result = r
		return err
	})
	if d.inlet != nil {
		g.Go(func() error {
			return d.pump(gctx, done)
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (d *Driver) loop(ctx context.Context) (Result, error) {
	for {
		report, err := d.core.Tick(ctx)
		if err != nil {
			return Result{}, err
		}
		if report.From != report.To {
			d.logger.Debug("tick advanced",
				zap.Stringer("from", report.From),
				zap.Stringer("to", report.To),
				zap.Stringer("request", report.Request))
		}
		if d.outlet != nil {
			d.flush(ctx)
		}
		if r, ok := d.complete(); ok {
			return r, nil
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-d.scheduler.C():
		}
	}
}

func (d *Driver) complete() (Result, bool) {
	r, ok := d.core.Result()
	if !ok {
		return Result{}, false
	}
	st := d.core.Status()
	if !st.Coordinator && (st.Available || d.pending != nil) {
		return Result{}, false
	}
	return r, true
}

// flush delivers the newest outbound payload. A failed delivery is retried on
// the next tick unless a newer payload replaces it.
func (d *Driver) flush(ctx context.Context) {
	if payload, ok := d.core.PullOutbound(); ok {
		d.pending = payload
	}
	if d.pending == nil {
		return
	}
	if err := d.outlet.Deliver(ctx, d.pending); err != nil {
		d.logger.Warn("outbound delivery failed, will retry", zap.Error(err))
		return
	}
	d.pending = nil
}

func (d *Driver) pump(ctx context.Context, done <-chan struct{}) error {
	in := d.inlet.Inbound()
	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			if err := d.core.OnInboundPayload(payload); err != nil {
				d.logger.Warn("inbound payload rejected",
					zap.String("code", string(types.CodeOf(err))),
					zap.Error(err))
			}
		}
	}
}
