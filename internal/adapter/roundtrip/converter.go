package roundtrip

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"reauth/pkg/domain"
)

// 请求体读取上限，与传输层的响应上限对齐
const maxRequestBytes = 10 << 20

// FromHTTPRequest 将 net/http 请求转换为领域 Request 模型
// 请求体被完整读取并缓冲，原 Body 在此处关闭
func FromHTTPRequest(httpReq *http.Request) (*domain.Request, error) {
	req := &domain.Request{
		Method: httpReq.Method,
		URL:    httpReq.URL.String(),
	}

	// Host 改写保存在 http.Request.Host 而非头部集合中
	if httpReq.Host != "" && httpReq.Host != httpReq.URL.Host {
		req.Headers = append(req.Headers, domain.Header{Name: "Host", Value: httpReq.Host})
	}
	for name, values := range httpReq.Header {
		for _, v := range values {
			req.Headers = append(req.Headers, domain.Header{Name: name, Value: v})
		}
	}

	if httpReq.Body != nil {
		body, err := io.ReadAll(io.LimitReader(httpReq.Body, maxRequestBytes))
		httpReq.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		req.Body = body
	}
	return req, nil
}

// ToHTTPResponse 将领域响应转换回 net/http 响应
// Content-Length 按实际响应体重新计算，替换后的响应不携带陈旧长度
func ToHTTPResponse(resp *domain.Response, httpReq *http.Request) *http.Response {
	header := make(http.Header, len(resp.Headers))
	for _, h := range resp.Headers {
		if http.CanonicalHeaderKey(h.Name) == "Content-Length" {
			continue
		}
		header.Add(h.Name, h.Value)
	}
	header.Set("Content-Length", strconv.Itoa(len(resp.Body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		StatusCode:    resp.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       httpReq,
	}
}
