package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/fedflow/internal/tlsutil"
)

// =============================================================================
// 🌐 节点 HTTP 端点
// =============================================================================

// Surface 标识端点对外提供的是节点的哪一面
type Surface string

const (
	SurfaceNodeAPI      Surface = "node_api"
	SurfaceMetrics      Surface = "metrics"
	SurfaceRelayMetrics Surface = "relay_metrics"
)

// State 端点生命周期阶段，只向前推进
type State int32

const (
	StateIdle State = iota
	StateServing
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateServing:
		return "serving"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrNotIdle 端点已经打开过
var ErrNotIdle = errors.New("endpoint already opened")

// Options 端点参数。CertFile 非空时以 TLS 提供服务。
type Options struct {
	Surface Surface
	Addr    string

	CertFile string
	KeyFile  string

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// 排空在途请求的上限
	DrainTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Surface == "" {
		o.Surface = SurfaceNodeAPI
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 30 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 2 * time.Minute
	}
	if o.MaxHeaderBytes <= 0 {
		o.MaxHeaderBytes = 1 << 20
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 30 * time.Second
	}
	return o
}

// Endpoint 一个监听地址上的 http.Server
type Endpoint struct {
	opts   Options
	srv    *http.Server
	logger *zap.Logger

	mu    sync.RWMutex
	state State
	ln    net.Listener

	failed chan error
}

// NewEndpoint 创建端点，尚未监听
func NewEndpoint(handler http.Handler, opts Options, logger *zap.Logger) *Endpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Endpoint{
		opts: opts,
		srv: &http.Server{
			Handler:        handler,
			ReadTimeout:    opts.ReadTimeout,
			WriteTimeout:   opts.WriteTimeout,
			IdleTimeout:    opts.IdleTimeout,
			MaxHeaderBytes: opts.MaxHeaderBytes,
		},
		logger: logger.With(zap.String("component", "endpoint"), zap.String("surface", string(opts.Surface))),
		failed: make(chan error, 1),
	}
}

// Open 绑定地址并在后台开始服务
func (e *Endpoint) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return fmt.Errorf("%s: %w (%s)", e.opts.Surface, ErrNotIdle, e.state)
	}

	ln, err := net.Listen("tcp", e.opts.Addr)
	if err != nil {
		return fmt.Errorf("%s: listen on %s: %w", e.opts.Surface, e.opts.Addr, err)
	}
	e.ln = ln
	e.state = StateServing

	serve := func() error { return e.srv.Serve(ln) }
	if e.opts.CertFile != "" {
		e.srv.TLSConfig = tlsutil.DefaultTLSConfig()
		serve = func() error { return e.srv.ServeTLS(ln, e.opts.CertFile, e.opts.KeyFile) }
	}
	e.logger.Info("endpoint serving",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", e.opts.CertFile != ""))

	go func() {
		if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("endpoint failed", zap.Error(err))
			e.failed <- err
		}
	}()
	return nil
}

// Drain 停止接收新连接并等待在途请求，最多 DrainTimeout。
// 对未打开或已停止的端点是空操作。
func (e *Endpoint) Drain(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateServing {
		e.state = StateStopped
		e.mu.Unlock()
		return nil
	}
	e.state = StateDraining
	e.mu.Unlock()

	e.logger.Info("endpoint draining")
	ctx, cancel := context.WithTimeout(ctx, e.opts.DrainTimeout)
	defer cancel()
	err := e.srv.Shutdown(ctx)

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
	if err != nil {
		e.logger.Error("endpoint drain incomplete", zap.Error(err))
		return fmt.Errorf("%s: drain: %w", e.opts.Surface, err)
	}
	e.logger.Info("endpoint stopped")
	return nil
}

// Run 打开端点，阻塞到 ctx 结束或服务异常，然后排空
func (e *Endpoint) Run(ctx context.Context) error {
	if err := e.Open(); err != nil {
		return err
	}
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-e.failed:
	}
	if err := e.Drain(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Failed 服务异常退出时收到错误
func (e *Endpoint) Failed() <-chan error { return e.failed }

// Surface 返回端点标识
func (e *Endpoint) Surface() Surface { return e.opts.Surface }

// State 返回当前阶段
func (e *Endpoint) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Addr 返回绑定地址；未打开时返回配置地址。":0" 时用于取得随机端口。
func (e *Endpoint) Addr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ln != nil {
		return e.ln.Addr().String()
	}
	return e.opts.Addr
}

// =============================================================================
// 👥 端点组
// =============================================================================

// Group 一个节点的全部端点，一起打开、一起排空
type Group struct {
	endpoints []*Endpoint
	logger    *zap.Logger
}

// NewGroup 创建端点组，跳过 nil
func NewGroup(logger *zap.Logger, endpoints ...*Endpoint) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Group{logger: logger}
	for _, e := range endpoints {
		if e != nil {
			g.endpoints = append(g.endpoints, e)
		}
	}
	return g
}

// Open 按顺序打开；任一失败时已打开的端点会被排空
func (g *Group) Open() error {
	for i, e := range g.endpoints {
		if err := e.Open(); err != nil {
			for _, opened := range g.endpoints[:i] {
				_ = opened.Drain(context.Background())
			}
			return err
		}
	}
	return nil
}

// Failed 合并所有端点的异常
func (g *Group) Failed() <-chan error {
	out := make(chan error, len(g.endpoints))
	for _, e := range g.endpoints {
		go func() {
			if err, ok := <-e.Failed(); ok {
				out <- err
			}
		}()
	}
	return out
}

// Drain 排空所有端点，返回第一个错误
func (g *Group) Drain(ctx context.Context) error {
	var first error
	for _, e := range g.endpoints {
		if err := e.Drain(ctx); err != nil {
			g.logger.Error("endpoint drain error", zap.String("surface", string(e.Surface())), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Endpoint 按标识查找
func (g *Group) Endpoint(s Surface) (*Endpoint, bool) {
	for _, e := range g.endpoints {
		if e.Surface() == s {
			return e, true
		}
	}
	return nil, false
}
