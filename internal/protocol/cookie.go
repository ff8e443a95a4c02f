package protocol

import (
	"strings"
)

// Cookie 单个 Cookie 键值对
type Cookie struct {
	Name  string
	Value string
}

// ParseCookieHeader 解析 Cookie 请求头的值，保持键值对的出现顺序
func ParseCookieHeader(value string) []Cookie {
	var cookies []Cookie
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "="); idx > 0 {
			cookies = append(cookies, Cookie{Name: part[:idx], Value: part[idx+1:]})
		} else {
			cookies = append(cookies, Cookie{Name: part})
		}
	}
	return cookies
}

// FormatCookieHeader 将 Cookie 列表序列化为 Cookie 请求头的值
func FormatCookieHeader(cookies []Cookie) string {
	if len(cookies) == 0 {
		return ""
	}
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// MergeCookie 合并 Cookie：同名（忽略大小写）时原位置替换值，否则追加到末尾
func MergeCookie(cookies []Cookie, name, value string) []Cookie {
	for i := range cookies {
		if strings.EqualFold(cookies[i].Name, name) {
			cookies[i].Value = value
			return cookies
		}
	}
	return append(cookies, Cookie{Name: name, Value: value})
}

// ParseSetCookie 解析 Set-Cookie 响应头，返回第一个键值对（忽略属性部分）
func ParseSetCookie(header string) (string, string, bool) {
	first := header
	if idx := strings.Index(header, ";"); idx != -1 {
		first = header[:idx]
	}
	idx := strings.Index(first, "=")
	if idx <= 0 {
		return "", "", false
	}
	name := strings.TrimSpace(first[:idx])
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(first[idx+1:]), true
}
