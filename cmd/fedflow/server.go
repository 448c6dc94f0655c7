package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/fedflow/api/handlers"
	"github.com/BaSui01/fedflow/artifact"
	"github.com/BaSui01/fedflow/config"
	"github.com/BaSui01/fedflow/history"
	"github.com/BaSui01/fedflow/internal/metrics"
	"github.com/BaSui01/fedflow/internal/server"
	"github.com/BaSui01/fedflow/internal/telemetry"
	"github.com/BaSui01/fedflow/pipeline"
	"github.com/BaSui01/fedflow/pipeline/mount"
	"github.com/BaSui01/fedflow/session"
	"github.com/BaSui01/fedflow/wire"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 承载一个参与方：会话、驱动器、节点 API 与 metrics 服务
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	core      *session.Core
	driver    *session.Driver
	store     artifact.Store
	journal   history.Journal
	telemetry *telemetry.Providers
	collector *metrics.Collector
	health    *handlers.HealthHandler

	// 节点 API 与 metrics 端点
	endpoints *server.Group

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化会话并启动两个 HTTP 服务（非阻塞）
func (s *Server) Start() error {
	// 1. 初始化会话及其依赖
	if err := s.initSession(); err != nil {
		return fmt.Errorf("failed to init session: %w", err)
	}

	// 2. 健康检查
	s.initHealth()

	// 3. 打开节点 API 与 metrics 端点
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	s.endpoints = server.NewGroup(s.logger,
		server.NewEndpoint(s.routes(rateLimiterCtx), s.endpointOptions(server.SurfaceNodeAPI, s.cfg.Server.HTTPPort), s.logger),
		server.NewEndpoint(s.metricsRoutes(), s.endpointOptions(server.SurfaceMetrics, s.cfg.Server.MetricsPort), s.logger),
	)
	if err := s.endpoints.Open(); err != nil {
		rateLimiterCancel()
		return fmt.Errorf("failed to open endpoints: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("run_id", s.core.RunID()),
		zap.String("strategy", s.cfg.Session.Strategy),
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initSession() error {
	codec, err := wire.ByName(s.cfg.Session.Codec)
	if err != nil {
		return err
	}

	mounts := mount.Mounts{Input: s.cfg.Session.InputDir, Output: s.cfg.Session.OutputDir}
	strategy, err := pipeline.New(s.cfg.Session.Strategy, mounts)
	if err != nil {
		return err
	}

	storeCfg := s.cfg.ArtifactStoreConfig()
	store, err := artifact.NewStore(storeCfg)
	if err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}
	backend := string(storeCfg.Type)
	if backend == "" {
		backend = string(artifact.StoreTypeMemory)
	}
	s.store = artifact.Instrument(store, backend, s.collector)

	s.journal, err = history.Open(s.cfg.History, s.logger)
	if err != nil {
		s.logger.Warn("history journal not available, transitions are not persisted", zap.Error(err))
		s.journal = history.NopJournal{}
	}

	runID := s.cfg.Session.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	s.telemetry, err = telemetry.Init(s.cfg.Telemetry, telemetry.Node{
		RunID:       runID,
		Strategy:    s.cfg.Session.Strategy,
		Codec:       s.cfg.Session.Codec,
		Participant: s.participant,
	}, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
		s.telemetry = &telemetry.Providers{}
	}

	s.core = session.New(strategy,
		session.WithRunID(runID),
		session.WithLogger(s.logger),
		session.WithCodec(codec),
		session.WithArtifactStore(s.store),
		session.WithJournal(s.journal),
		session.WithObserver(s.collector),
		session.WithTracer(s.telemetry.Tracer()),
		session.WithDataset(session.Dataset{Root: mounts.Input}),
		session.WithDestination(session.Destination{Root: mounts.Output}),
		session.WithBarrierTimeout(s.cfg.Session.BarrierTimeout),
	)

	s.driver = session.NewDriver(s.core,
		session.WithScheduler(session.NewTickerScheduler(s.cfg.Session.TickInterval)),
		session.WithDriverLogger(s.logger))
	return nil
}

// participant 在 setup 之后返回本节点的参与方标识
func (s *Server) participant() (string, bool, bool) {
	if s.core == nil {
		return "", false, false
	}
	id, ok := s.core.Identity()
	return id.ID, id.Coordinator, ok
}

func (s *Server) initHealth() {
	s.health = handlers.NewHealthHandler(s.core, s.logger)
	s.health.RegisterDependency("artifact_store", s.store.Ping)
	s.health.RegisterDependency("history", s.journal.Ping)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) registerHealth(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.health.HandleLive)
	mux.HandleFunc("/healthz", s.health.HandleLive)
	mux.HandleFunc("/ready", s.health.HandleReady)
	mux.HandleFunc("/readyz", s.health.HandleReady)
	mux.HandleFunc("/version", s.health.HandleVersion(handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}))
}

// routes 构建节点 API 的路由与中间件链
func (s *Server) routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	s.registerHealth(mux)
	handlers.NewSessionHandler(s.core, s.cfg.Session.Codec, s.logger).Register(mux)
	handlers.NewWatchHandler(s.core, 0, s.logger).Register(mux)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)
}

func (s *Server) metricsRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.registerHealth(mux)
	return mux
}

// endpointOptions 节点 API 使用 TLS（若配置），metrics 始终为明文
func (s *Server) endpointOptions(surface server.Surface, port int) server.Options {
	opts := server.Options{
		Surface:      surface,
		Addr:         fmt.Sprintf(":%d", port),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
		DrainTimeout: s.cfg.Server.ShutdownTimeout,
	}
	if surface == server.SurfaceNodeAPI {
		opts.CertFile = s.cfg.Server.TLSCertFile
		opts.KeyFile = s.cfg.Server.TLSKeyFile
	}
	return opts
}

// =============================================================================
// ▶️ 运行与关闭
// =============================================================================

// Run 驱动会话直到结束。会话失败时返回错误，但节点 API 继续提供状态。
func (s *Server) Run(ctx context.Context) (session.Result, error) {
	result, err := s.driver.Run(ctx)
	switch {
	case err == nil:
		s.logger.Info("session finished",
			zap.String("artifact", result.Artifact.Location),
			zap.Int64("size", result.Artifact.Size))
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error("session failed", zap.Error(err))
	}
	return result, err
}

// Errors 端点异常退出时收到错误
func (s *Server) Errors() <-chan error {
	if s.endpoints == nil {
		return nil
	}
	return s.endpoints.Failed()
}

// Addr 返回端点的实际绑定地址
func (s *Server) Addr(surface server.Surface) string {
	if s.endpoints == nil {
		return ""
	}
	if e, ok := s.endpoints.Endpoint(surface); ok {
		return e.Addr()
	}
	return ""
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("Starting graceful shutdown...")

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.endpoints != nil {
		_ = s.endpoints.Drain(ctx)
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Error("journal close error", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("artifact store close error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
