// Package roundtrip 将重认证钩子接入标准库 HTTP 客户端
// 任意 http.RoundTripper 包上一层后即可获得前瞻注入与未授权自动重试
package roundtrip

import (
	"context"
	"net/http"

	"reauth/internal/logger"
	"reauth/internal/transport"
	"reauth/pkg/domain"
)

// Hooks 拦截钩子的窄接口，引擎门面天然满足
type Hooks interface {
	HandleRequest(req *domain.Request) (*domain.Request, bool)
	HandleResponse(ctx context.Context, req *domain.Request, resp *domain.Response) (*domain.Response, bool)
}

// Transport 绑定钩子的 http.RoundTripper
// 出站前应用请求钩子，收到响应后应用响应钩子，替换结果对调用方透明
type Transport struct {
	base  http.RoundTripper
	hooks Hooks
	log   logger.Logger
}

// NewTransport 创建钩子传输层，base 为空时退回 http.DefaultTransport
func NewTransport(hooks Hooks, base http.RoundTripper, l logger.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Transport{base: base, hooks: hooks, log: l}
}

// NewHTTPClient 返回绑定钩子的 http.Client
func NewHTTPClient(hooks Hooks) *http.Client {
	return &http.Client{Transport: NewTransport(hooks, nil, nil)}
}

// RoundTrip 实现 http.RoundTripper
// 请求体在转换时被缓冲，重试路径因此可以安全重放
func (t *Transport) RoundTrip(httpReq *http.Request) (*http.Response, error) {
	dreq, err := FromHTTPRequest(httpReq)
	if err != nil {
		return nil, err
	}
	if modified, ok := t.hooks.HandleRequest(dreq); ok && modified != nil {
		t.log.Debug("出站请求被钩子改写", "method", dreq.Method, "url", dreq.URL)
		dreq = modified
	}

	// 钩子层已做哨兵擦除，转换层仍会兜底剥除
	outReq, err := transport.ToHTTPRequest(httpReq.Context(), dreq)
	if err != nil {
		return nil, err
	}
	httpResp, err := t.base.RoundTrip(outReq)
	if err != nil {
		return nil, err
	}

	dresp, err := transport.FromHTTPResponse(httpResp)
	httpResp.Body.Close()
	if err != nil {
		return nil, err
	}
	if replaced, ok := t.hooks.HandleResponse(httpReq.Context(), dreq, dresp); ok && replaced != nil {
		t.log.Debug("入站响应被钩子替换", "url", dreq.URL, "status", replaced.StatusCode)
		dresp = replaced
	}
	return ToHTTPResponse(dresp, httpReq), nil
}
