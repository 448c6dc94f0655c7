package api

import (
	"time"

	"github.com/BaSui01/fedflow/session"
)

// =============================================================================
// 节点控制协议类型
// =============================================================================

// SetupRequest 是控制器下发的参与方身份。
// Clients 为全部参与方 ID，可以包含自身。
type SetupRequest struct {
	// 本参与方 ID
	ID string `json:"id" validate:"required,max=255"`
	// 是否为协调方
	Coordinator bool `json:"coordinator"`
	// 参与方列表
	Clients []string `json:"clients" validate:"dive,required,max=255"`
}

// Identity 转换为会话身份
func (r SetupRequest) Identity() session.ParticipantIdentity {
	return session.ParticipantIdentity{
		ID:          r.ID,
		Coordinator: r.Coordinator,
		Peers:       append([]string(nil), r.Clients...),
	}
}

// SetupRequestFrom 由会话身份构造请求
func SetupRequestFrom(id session.ParticipantIdentity) SetupRequest {
	return SetupRequest{
		ID:          id.ID,
		Coordinator: id.Coordinator,
		Clients:     append([]string(nil), id.Peers...),
	}
}

// StatusResponse 是 GET /api/status 的响应体。
// 控制器轮询 available 决定是否拉取数据，finished 后停止轮询。
type StatusResponse struct {
	Available bool    `json:"available"`
	Finished  bool    `json:"finished"`
	Failed    bool    `json:"failed"`
	State     string  `json:"state"`
	Progress  float64 `json:"progress"`
	Message   string  `json:"message,omitempty"`
	Role      string  `json:"role,omitempty"`
	ID        string  `json:"id,omitempty"`
	Error     string  `json:"error,omitempty"`
	Inbox     int     `json:"inbox"`
}

// StatusFrom 由会话快照构造响应
func StatusFrom(s session.Status) StatusResponse {
	resp := StatusResponse{
		Available: s.Available,
		Finished:  s.Finished,
		Failed:    s.Failed,
		State:     s.Phase.String(),
		Progress:  s.Progress,
		Message:   s.Message,
		ID:        s.ID,
		Error:     s.Error,
		Inbox:     s.Inbox,
	}
	if s.ID != "" {
		resp.Role = session.ParticipantIdentity{Coordinator: s.Coordinator}.Role()
	}
	return resp
}

// ResultResponse 是 GET /api/result 的响应体
type ResultResponse struct {
	RunID       string    `json:"run_id"`
	Participant string    `json:"participant"`
	Location    string    `json:"location"`
	Codec       string    `json:"codec,omitempty"`
	Size        int64     `json:"size"`
	FinishedAt  time.Time `json:"finished_at"`
}

// ResultFrom 由会话结果构造响应
func ResultFrom(r session.Result) ResultResponse {
	return ResultResponse{
		RunID:       r.RunID,
		Participant: r.Participant,
		Location:    r.Artifact.Location,
		Codec:       r.Artifact.Codec,
		Size:        r.Artifact.Size,
		FinishedAt:  r.FinishedAt,
	}
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}
