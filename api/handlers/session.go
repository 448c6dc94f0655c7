package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/fedflow/api"
	"github.com/BaSui01/fedflow/session"
	"github.com/BaSui01/fedflow/types"
)

// DefaultMaxPayload 单个入站负载的默认上限
const DefaultMaxPayload = 64 << 20

// =============================================================================
// 🔄 会话控制协议 Handler
// =============================================================================

// SessionHandler 将控制器协议映射到 session.Core
type SessionHandler struct {
	core       *session.Core
	codec      string
	maxPayload int64
	logger     *zap.Logger
}

// SessionHandlerOption 配置 SessionHandler
type SessionHandlerOption func(*SessionHandler)

// WithMaxPayload 设置入站负载上限
func WithMaxPayload(n int64) SessionHandlerOption {
	return func(h *SessionHandler) {
		if n > 0 {
			h.maxPayload = n
		}
	}
}

// NewSessionHandler 创建会话处理器。codec 为会话编码名，决定负载的 Content-Type。
func NewSessionHandler(core *session.Core, codec string, logger *zap.Logger, opts ...SessionHandlerOption) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &SessionHandler{
		core:       core,
		codec:      codec,
		maxPayload: DefaultMaxPayload,
		logger:     logger.With(zap.String("component", "session_api")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 注册 /api 路由
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", h.HandleStatus)
	mux.HandleFunc("POST /api/setup", h.HandleSetup)
	mux.HandleFunc("POST /api/data", h.HandlePush)
	mux.HandleFunc("GET /api/data", h.HandlePull)
	mux.HandleFunc("GET /api/result", h.HandleResult)
}

// HandleStatus 处理 GET /api/status
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, api.StatusFrom(h.core.Status()))
}

// HandleSetup 处理 POST /api/setup
func (h *SessionHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	var req api.SetupRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := h.core.OnSetup(req.Identity()); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	h.logger.Info("participant configured",
		zap.String("id", req.ID),
		zap.Bool("coordinator", req.Coordinator),
		zap.Int("participants", len(req.Clients)))
	WriteJSON(w, http.StatusOK, api.StatusFrom(h.core.Status()))
}

// HandlePush 处理 POST /api/data：负载原样追加到收件箱
func (h *SessionHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	payload, err := ReadBody(w, r, h.maxPayload)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if err := h.core.OnInboundPayload(payload); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]int{"bytes": len(payload)})
}

// HandlePull 处理 GET /api/data：取走待发送负载，没有时返回 204
func (h *SessionHandler) HandlePull(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.core.PullOutbound()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", ContentType(h.codec))
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		h.logger.Warn("outbound payload write failed", zap.Error(err))
	}
}

// HandleResult 处理 GET /api/result
func (h *SessionHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	if err := h.core.Err(); err != nil {
		WriteError(w, types.NewError(types.ErrSessionFailed, "session failed").
			WithCause(err).
			WithHTTPStatus(http.StatusConflict), h.logger)
		return
	}
	res, ok := h.core.Result()
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "session has not finished", h.logger)
		return
	}
	WriteSuccess(w, api.ResultFrom(res))
}

// ContentType 返回编码对应的负载 Content-Type
func ContentType(codec string) string {
	if codec == "proto" {
		return "application/x-protobuf"
	}
	return "application/json"
}
