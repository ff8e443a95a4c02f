package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"reauth/pkg/domain"
)

// ParsedRequest 原始 HTTP 请求文本的解析结果
type ParsedRequest struct {
	Method  string
	Path    string
	Version string
	Headers []domain.Header
	Body    string
}

// Header 返回第一个同名请求头的值（忽略大小写），不存在时返回空字符串
func (r *ParsedRequest) Header(name string) string {
	return headerValue(r.Headers, name)
}

// ParsedResponse 原始 HTTP 响应文本的解析结果
type ParsedResponse struct {
	Version    string
	StatusCode int
	StatusText string
	Headers    []domain.Header
	Body       string
}

// Header 返回第一个同名响应头的值（忽略大小写），不存在时返回空字符串
func (r *ParsedResponse) Header(name string) string {
	return headerValue(r.Headers, name)
}

// SetCookies 返回全部 Set-Cookie 响应头的值，保持出现顺序
func (r *ParsedResponse) SetCookies() []string {
	var cookies []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, "Set-Cookie") {
			cookies = append(cookies, h.Value)
		}
	}
	return cookies
}

// ParseRequestTemplate 解析手工粘贴的原始 HTTP 请求文本
// 请求行缺少版本号时默认为 HTTP/1.1，头部顺序按原文保留
func ParseRequestTemplate(raw string) (*ParsedRequest, error) {
	lines := splitLines(raw)
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, errors.New("request template is empty")
	}

	parts := strings.Fields(strings.TrimSpace(lines[0]))
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid request line: %s", lines[0])
	}

	req := &ParsedRequest{
		Method:  strings.ToUpper(parts[0]),
		Path:    parts[1],
		Version: "HTTP/1.1",
	}
	if len(parts) >= 3 {
		req.Version = parts[2]
	}

	headers, bodyStart := parseHeaderLines(lines, 1)
	req.Headers = headers
	req.Body = joinBodyLines(lines, bodyStart)
	return req, nil
}

// ParseResponseTemplate 解析手工粘贴的原始 HTTP 响应文本
func ParseResponseTemplate(raw string) (*ParsedResponse, error) {
	lines := splitLines(raw)
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, errors.New("response template is empty")
	}

	parts := strings.SplitN(strings.TrimSpace(lines[0]), " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid status line: %s", lines[0])
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid status code: %s", parts[1])
	}

	res := &ParsedResponse{
		Version:    parts[0],
		StatusCode: code,
	}
	if len(parts) >= 3 {
		res.StatusText = parts[2]
	}

	headers, bodyStart := parseHeaderLines(lines, 1)
	res.Headers = headers
	res.Body = joinBodyLines(lines, bodyStart)
	return res, nil
}

// splitLines 按 \r\n 或 \n 切分文本
func splitLines(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
}

// parseHeaderLines 从 start 行开始解析头部，直到空行为止
// 返回头部列表与正文起始行号
func parseHeaderLines(lines []string, start int) ([]domain.Header, int) {
	var headers []domain.Header
	i := start
	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			i++
			break
		}
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		headers = append(headers, domain.Header{
			Name:  strings.TrimSpace(line[:idx]),
			Value: strings.TrimSpace(line[idx+1:]),
		})
	}
	return headers, i
}

// joinBodyLines 将正文各行按 \n 合并并去除首尾空白
func joinBodyLines(lines []string, start int) string {
	if start >= len(lines) {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}

func headerValue(headers []domain.Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
