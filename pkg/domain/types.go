// Package domain 定义引擎与宿主拦截层之间交换的核心类型
package domain

import (
	"net/url"
	"strings"
)

// Header 单个 HTTP 头部条目（保留顺序与重复项）
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Request 宿主拦截层视角下的一次 HTTP 请求
type Request struct {
	Method  string   `json:"method"`
	URL     string   `json:"url"` // 绝对地址，含 scheme
	Headers []Header `json:"headers"`
	Body    []byte   `json:"body,omitempty"`
}

// Response 宿主拦截层视角下的一次 HTTP 响应
type Response struct {
	StatusCode int      `json:"statusCode"`
	Headers    []Header `json:"headers"`
	Body       []byte   `json:"body,omitempty"`
}

// Header 返回第一个名称匹配的头部值，名称比较不区分大小写
func (r *Request) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HasHeader 判断是否存在名称匹配的头部
func (r *Request) HasHeader(name string) bool {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return true
		}
	}
	return false
}

// SetHeader 覆盖第一个同名头部，不存在则追加；不会产生重复条目
func (r *Request) SetHeader(name, value string) {
	for i, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			r.Headers[i].Value = value
			return
		}
	}
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
}

// AddHeader 追加头部条目，允许重复
func (r *Request) AddHeader(name, value string) {
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
}

// RemoveHeader 移除所有名称匹配的头部
func (r *Request) RemoveHeader(name string) {
	out := r.Headers[:0]
	for _, h := range r.Headers {
		if !strings.EqualFold(h.Name, name) {
			out = append(out, h)
		}
	}
	r.Headers = out
}

// Host 返回请求目标主机名，小写且不含端口
func (r *Request) Host() string {
	return HostOf(r.URL)
}

// Path 返回请求路径，缺省为 "/"
func (r *Request) Path() string {
	return PathOf(r.URL)
}

// Clone 深拷贝请求，修改副本不会影响原请求
func (r *Request) Clone() *Request {
	c := &Request{
		Method: r.Method,
		URL:    r.URL,
	}
	if len(r.Headers) > 0 {
		c.Headers = make([]Header, len(r.Headers))
		copy(c.Headers, r.Headers)
	}
	if len(r.Body) > 0 {
		c.Body = make([]byte, len(r.Body))
		copy(c.Body, r.Body)
	}
	return c
}

// Header 返回第一个名称匹配的头部值，名称比较不区分大小写
func (r *Response) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// SetCookies 按出现顺序返回全部 Set-Cookie 头部值
func (r *Response) SetCookies() []string {
	var out []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, "Set-Cookie") {
			out = append(out, h.Value)
		}
	}
	return out
}

// Clone 深拷贝响应
func (r *Response) Clone() *Response {
	c := &Response{StatusCode: r.StatusCode}
	if len(r.Headers) > 0 {
		c.Headers = make([]Header, len(r.Headers))
		copy(c.Headers, r.Headers)
	}
	if len(r.Body) > 0 {
		c.Body = make([]byte, len(r.Body))
		copy(c.Body, r.Body)
	}
	return c
}

// HostOf 提取 URL 中的主机名（小写、去端口）。
// 无法按标准 URL 解析时退化为字符串切分，保证对残缺地址也能取到主机部分。
func HostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}
	s := stripScheme(rawURL)
	if i := strings.IndexByte(s, '/'); i > 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i > 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// PathOf 提取 URL 中的路径部分，缺省为 "/"
func PathOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return u.Path
	}
	s := stripScheme(rawURL)
	if i := strings.IndexByte(s, '/'); i > 0 {
		return s[i:]
	}
	return "/"
}

func stripScheme(rawURL string) string {
	s := rawURL
	for _, p := range []string{"https://", "http://"} {
		if strings.HasPrefix(strings.ToLower(s), p) {
			return s[len(p):]
		}
	}
	return s
}

// SourceKind 令牌来源类型
type SourceKind string

const (
	SourceHeader    SourceKind = "header"     // 响应头部
	SourceCookie    SourceKind = "cookie"     // Set-Cookie
	SourceJSONField SourceKind = "json_field" // JSON 响应体字段
)

// TargetKind 令牌注入位置类型
type TargetKind string

const (
	TargetHeader TargetKind = "header" // 自定义头部
	TargetCookie TargetKind = "cookie" // Cookie 条目
	TargetBearer TargetKind = "bearer" // Authorization: Bearer
)

// ExtractedToken 从登录响应中提取出的令牌，不可变值对象
type ExtractedToken struct {
	Value      string     `json:"value"`
	SourceKind SourceKind `json:"sourceKind"`
	SourceName string     `json:"sourceName"`
}

// EventType 引擎事件类型
type EventType string

const (
	EventLoginSuccess    EventType = "loginSuccess"    // 登录成功并提取到令牌
	EventLoginFailure    EventType = "loginFailure"    // 登录或提取失败
	EventTokenCached     EventType = "tokenCached"     // 令牌写入缓存
	EventTokenInjected   EventType = "tokenInjected"   // 令牌注入出站请求
	EventRateLimited     EventType = "rateLimited"     // 登录被限速拦截
	EventCacheCleared    EventType = "cacheCleared"    // 缓存被清除
	EventManualInjection EventType = "manualInjection" // 手工注入完成
)

// AuthEvent 引擎运行事件，供外部订阅观察
type AuthEvent struct {
	Type      EventType `json:"type"`
	Host      string    `json:"host,omitempty"`
	Pattern   string    `json:"pattern,omitempty"` // 关联配置的 URL 模式
	Detail    string    `json:"detail,omitempty"`
	Timestamp int64     `json:"timestamp"` // Unix 毫秒
}
