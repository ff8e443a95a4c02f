// Package transport 负责引擎自身发起的登录与重试请求的实际传输
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"

	"reauth/internal/logger"
	"reauth/internal/marker"
	"reauth/pkg/domain"
)

// 响应体读取上限，防止异常服务端拖垮内存
const maxResponseBytes = 10 << 20

// DefaultTimeout 默认请求超时
const DefaultTimeout = 30 * time.Second

// Sender 发送领域请求并返回领域响应
// 引擎对登录与重试调用的全部网络依赖都收敛在该接口上
type Sender interface {
	Do(ctx context.Context, req *domain.Request) (*domain.Response, error)
}

// Options 客户端配置选项
type Options struct {
	// Timeout 整体请求超时，非正时取 DefaultTimeout
	Timeout time.Duration
	// InsecureSkipVerify 跳过 TLS 证书校验，拦截场景常面向自签名目标
	InsecureSkipVerify bool
	// Logger 日志接口
	Logger logger.Logger
}

// Client 基于 net/http 的 Sender 实现
type Client struct {
	hc  *http.Client
	log logger.Logger
}

// NewClient 创建传输客户端
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}

	tr := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if opts.InsecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		hc:  &http.Client{Timeout: opts.Timeout, Transport: tr},
		log: l,
	}
}

// Do 发送请求并读取完整响应
// 哨兵标记头在触网前剥除，绝不到达线上
func (c *Client) Do(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	httpReq, err := ToHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := c.hc.Do(httpReq)
	if err != nil {
		c.log.Warn("请求发送失败", "method", req.Method, "url", req.URL, "error", err)
		return nil, err
	}
	defer httpResp.Body.Close()

	resp, err := FromHTTPResponse(httpResp)
	if err != nil {
		return nil, err
	}

	c.log.Debug("请求完成", "method", req.Method, "url", req.URL, "status", resp.StatusCode, "timeMs", time.Since(start).Milliseconds())
	return resp, nil
}

// ToHTTPRequest 将领域请求转换为 net/http 请求
// Host 头改写 http.Request.Host，Content-Length 由传输层重新计算
func ToHTTPRequest(ctx context.Context, req *domain.Request) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}

	for _, h := range req.Headers {
		switch {
		case strings.EqualFold(h.Name, marker.SkipHeader):
			// 剥除哨兵标记
		case strings.EqualFold(h.Name, "Host"):
			httpReq.Host = h.Value
		case strings.EqualFold(h.Name, "Content-Length"):
		default:
			httpReq.Header.Add(h.Name, h.Value)
		}
	}
	return httpReq, nil
}

// FromHTTPResponse 将 net/http 响应转换为领域响应，读取并缓冲完整响应体
// 同名头部的多个值保持各自的先后顺序
func FromHTTPResponse(httpResp *http.Response) (*domain.Response, error) {
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	resp := &domain.Response{StatusCode: httpResp.StatusCode, Body: body}
	for name, values := range httpResp.Header {
		for _, v := range values {
			resp.Headers = append(resp.Headers, domain.Header{Name: name, Value: v})
		}
	}
	return resp, nil
}
