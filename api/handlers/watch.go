package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/fedflow/api"
	"github.com/BaSui01/fedflow/session"
)

// WatchHandler 通过 WebSocket 推送状态快照。
// 快照变化时推送一次，会话结束（且出站负载已被取走）或失败后推送最终快照并正常关闭。
type WatchHandler struct {
	core     *session.Core
	interval time.Duration
	origins  []string
	logger   *zap.Logger
}

// NewWatchHandler 创建状态推送处理器。interval 为采样间隔。
func NewWatchHandler(core *session.Core, interval time.Duration, logger *zap.Logger, originPatterns ...string) *WatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &WatchHandler{
		core:     core,
		interval: interval,
		origins:  originPatterns,
		logger:   logger.With(zap.String("component", "session_watch")),
	}
}

// Register 注册 /api/watch 路由
func (h *WatchHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/watch", h.ServeHTTP)
}

// ServeHTTP 升级连接并推送快照
func (h *WatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 只写不读；CloseRead 在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())
	if err := h.stream(ctx, conn); err != nil {
		h.logger.Debug("watch stream ended", zap.Error(err))
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "session finished")
}

func (h *WatchHandler) stream(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var (
		last api.StatusResponse
		sent bool
	)
	for {
		cur := api.StatusFrom(h.core.Status())
		if !sent || cur != last {
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, conn, cur)
			cancel()
			if err != nil {
				return err
			}
			last, sent = cur, true
		}
		if (cur.Finished && !cur.Available) || cur.Failed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
