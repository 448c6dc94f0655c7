package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/fedflow/api"
	"github.com/BaSui01/fedflow/internal/tlsutil"
	"github.com/BaSui01/fedflow/session"
	"github.com/BaSui01/fedflow/types"
)

// maxPullBytes bounds a pulled payload.
const maxPullBytes = 256 << 20

// RemoteNode talks to a node over its HTTP API.
type RemoteNode struct {
	id      string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// RemoteOption configures a RemoteNode.
type RemoteOption func(*RemoteNode)

// WithHTTPClient replaces the default TLS-hardened client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(n *RemoteNode) {
		if c != nil {
			n.client = c
		}
	}
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(logger *zap.Logger) RemoteOption {
	return func(n *RemoteNode) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewRemoteNode returns a node reachable at baseURL, e.g. http://10.0.0.2:8080.
func NewRemoteNode(id, baseURL string, opts ...RemoteOption) *RemoteNode {
	n := &RemoteNode{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  tlsutil.SecureHTTPClient(30 * time.Second),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With(zap.String("component", "remote_node"), zap.String("node", id))
	return n
}

func (n *RemoteNode) ID() string { return n.id }

// BaseURL returns the node's API root.
func (n *RemoteNode) BaseURL() string { return n.baseURL }

func (n *RemoteNode) Setup(ctx context.Context, identity session.ParticipantIdentity) error {
	body, err := json.Marshal(api.SetupRequestFrom(identity))
	if err != nil {
		return types.NewError(types.ErrInternalError, "encode setup").WithCause(err)
	}
	resp, err := n.do(ctx, http.MethodPost, "/api/setup", "application/json", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (n *RemoteNode) Status(ctx context.Context) (api.StatusResponse, error) {
	resp, err := n.do(ctx, http.MethodGet, "/api/status", "", nil)
	if err != nil {
		return api.StatusResponse{}, err
	}
	defer resp.Body.Close()
	var st api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return api.StatusResponse{}, upstream(n.id, "decode status", err)
	}
	return st, nil
}

func (n *RemoteNode) Pull(ctx context.Context) ([]byte, bool, error) {
	resp, err := n.do(ctx, http.MethodGet, "/api/data", "", nil)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, false, nil
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPullBytes))
	if err != nil {
		return nil, false, upstream(n.id, "read payload", err)
	}
	if len(payload) == 0 {
		return nil, false, nil
	}
	return payload, true, nil
}

func (n *RemoteNode) Push(ctx context.Context, payload []byte) error {
	resp, err := n.do(ctx, http.MethodPost, "/api/data", "application/octet-stream", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// do sends a request and turns non-2xx answers into *types.Error.
func (n *RemoteNode) do(ctx context.Context, method, path, contentType string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, n.baseURL+path, rd)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build request").WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, upstream(n.id, method+" "+path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, remoteError(n.id, resp)
}

func remoteError(node string, resp *http.Response) error {
	var out api.Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err == nil && out.Error != nil {
		return types.Errorf(types.ErrorCode(out.Error.Code), "node %s: %s", node, out.Error.Message).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(out.Error.Retryable)
	}
	return types.Errorf(types.ErrUpstreamError, "node %s: unexpected status %d", node, resp.StatusCode).
		WithHTTPStatus(resp.StatusCode).
		WithRetryable(resp.StatusCode >= http.StatusInternalServerError)
}

func upstream(node, op string, err error) error {
	return types.NewError(types.ErrUpstreamError, fmt.Sprintf("node %s: %s", node, op)).
		WithCause(err).
		WithRetryable(true)
}
