package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/fedflow/session"
)

// =============================================================================
// 🏥 节点健康 Handler
// =============================================================================

// Node health states reported by /ready.
const (
	NodeReady    = "ready"    // 可接收 setup 与载荷
	NodeFinished = "finished" // 会话结束，仍提供状态与结果
	NodeFailed   = "failed"   // 会话失败，relay 应停止投递
	NodeUnready  = "unready"  // 依赖不可用
)

// StatusSource 提供会话快照，*session.Core 满足该接口
type StatusSource interface {
	Status() session.Status
}

// Dependency 就绪检查依赖的外部组件（产物存储、历史日志）
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

// NodeHealth 健康响应
type NodeHealth struct {
	Status      string                 `json:"status"`
	Phase       string                 `json:"phase"`
	Participant string                 `json:"participant,omitempty"`
	Role        string                 `json:"role,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Checks      map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个依赖的检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass" | "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// BuildInfo 构建信息
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// HealthHandler 存活与就绪检查
type HealthHandler struct {
	source       StatusSource
	logger       *zap.Logger
	checkTimeout time.Duration

	mu   sync.RWMutex
	deps []Dependency
}

// NewHealthHandler 创建健康处理器
func NewHealthHandler(source StatusSource, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		source:       source,
		logger:       logger.With(zap.String("component", "health")),
		checkTimeout: 5 * time.Second,
	}
}

// RegisterDependency 注册就绪检查依赖
func (h *HealthHandler) RegisterDependency(name string, ping func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deps = append(h.deps, Dependency{Name: name, Ping: ping})
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleLive 处理 /health 与 /healthz。进程能应答即存活，会话失败也不例外。
func (h *HealthHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	out := h.snapshot()
	out.Status = "alive"
	WriteJSON(w, http.StatusOK, out)
}

// HandleReady 处理 /ready 与 /readyz。
// 会话失败或任一依赖不可用时返回 503。
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	out := h.snapshot()
	if out.Status == NodeFailed {
		WriteJSON(w, http.StatusServiceUnavailable, out)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
	defer cancel()
	out.Checks = h.runChecks(ctx)
	for _, c := range out.Checks {
		if c.Status != "pass" {
			out.Status = NodeUnready
			WriteJSON(w, http.StatusServiceUnavailable, out)
			return
		}
	}
	WriteJSON(w, http.StatusOK, out)
}

// HandleVersion 处理 /version
func (h *HealthHandler) HandleVersion(info BuildInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, info)
	}
}

// snapshot 按会话阶段得出节点状态
func (h *HealthHandler) snapshot() NodeHealth {
	out := NodeHealth{Status: NodeReady, Timestamp: time.Now()}
	if h.source == nil {
		return out
	}
	st := h.source.Status()
	out.Phase = st.Phase.String()
	out.Participant = st.ID
	if st.ID != "" {
		out.Role = session.ParticipantIdentity{Coordinator: st.Coordinator}.Role()
	}
	switch {
	case st.Failed:
		out.Status = NodeFailed
		out.Error = st.Error
	case st.Finished:
		out.Status = NodeFinished
	}
	return out
}

func (h *HealthHandler) runChecks(ctx context.Context) map[string]CheckResult {
	h.mu.RLock()
	deps := append([]Dependency(nil), h.deps...)
	h.mu.RUnlock()

	results := make(map[string]CheckResult, len(deps))
	for _, dep := range deps {
		start := time.Now()
		err := dep.Ping(ctx)
		latency := time.Since(start)

		res := CheckResult{Status: "pass", Latency: latency.String()}
		if err != nil {
			res.Status = "fail"
			res.Message = err.Error()
			h.logger.Warn("dependency check failed",
				zap.String("dependency", dep.Name),
				zap.Duration("latency", latency),
				zap.Error(err))
		}
		results[dep.Name] = res
	}
	return results
}
