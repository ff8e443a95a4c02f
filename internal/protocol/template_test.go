package protocol_test

import (
	"testing"

	"reauth/internal/protocol"
)

func TestParseRequestTemplate(t *testing.T) {
	raw := "POST /api/login HTTP/1.1\r\n" +
		"Host: auth.example.com\r\n" +
		"Content-Type: application/json\r\n" +
		"\r\n" +
		"{\"username\":\"admin\",\"password\":\"secret\"}"

	req, err := protocol.ParseRequestTemplate(raw)
	if err != nil {
		t.Fatalf("ParseRequestTemplate() error = %v", err)
	}
	if req.Method != "POST" {
		t.Errorf("got method %q, want POST", req.Method)
	}
	if req.Path != "/api/login" {
		t.Errorf("got path %q, want /api/login", req.Path)
	}
	if req.Version != "HTTP/1.1" {
		t.Errorf("got version %q, want HTTP/1.1", req.Version)
	}
	if got := req.Header("Host"); got != "auth.example.com" {
		t.Errorf("got host %q, want auth.example.com", got)
	}
	if req.Body != `{"username":"admin","password":"secret"}` {
		t.Errorf("got body %q", req.Body)
	}
}

func TestParseRequestTemplate_DefaultVersion(t *testing.T) {
	// 请求行省略版本号时默认 HTTP/1.1
	req, err := protocol.ParseRequestTemplate("GET /ping\nHost: example.com\n")
	if err != nil {
		t.Fatalf("ParseRequestTemplate() error = %v", err)
	}
	if req.Version != "HTTP/1.1" {
		t.Errorf("got version %q, want HTTP/1.1", req.Version)
	}
}

func TestParseRequestTemplate_LowercaseMethod(t *testing.T) {
	req, err := protocol.ParseRequestTemplate("post /login\n\n")
	if err != nil {
		t.Fatalf("ParseRequestTemplate() error = %v", err)
	}
	if req.Method != "POST" {
		t.Errorf("got method %q, want POST", req.Method)
	}
}

func TestParseRequestTemplate_HeaderOrder(t *testing.T) {
	raw := "GET / HTTP/1.1\n" +
		"B-Header: 2\n" +
		"A-Header: 1\n" +
		"B-Header: 3\n"

	req, err := protocol.ParseRequestTemplate(raw)
	if err != nil {
		t.Fatalf("ParseRequestTemplate() error = %v", err)
	}
	if len(req.Headers) != 3 {
		t.Fatalf("got %d headers, want 3", len(req.Headers))
	}
	// 重复头部保留原始顺序
	if req.Headers[0].Name != "B-Header" || req.Headers[0].Value != "2" {
		t.Errorf("got first header %v", req.Headers[0])
	}
	if req.Headers[2].Value != "3" {
		t.Errorf("got third header value %q, want 3", req.Headers[2].Value)
	}
}

func TestParseRequestTemplate_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"blank first line", "\nHost: example.com"},
		{"method only", "POST"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := protocol.ParseRequestTemplate(tc.raw); err == nil {
				t.Errorf("ParseRequestTemplate(%q) expected error", tc.raw)
			}
		})
	}
}

func TestParseResponseTemplate(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: application/json\r\n" +
		"Set-Cookie: session_id=abc; Path=/\r\n" +
		"Set-Cookie: theme=dark\r\n" +
		"\r\n" +
		"{\"token\":\"xyz\"}"

	res, err := protocol.ParseResponseTemplate(raw)
	if err != nil {
		t.Fatalf("ParseResponseTemplate() error = %v", err)
	}
	if res.StatusCode != 200 {
		t.Errorf("got status %d, want 200", res.StatusCode)
	}
	if res.StatusText != "OK" {
		t.Errorf("got status text %q, want OK", res.StatusText)
	}
	cookies := res.SetCookies()
	if len(cookies) != 2 {
		t.Fatalf("got %d set-cookies, want 2", len(cookies))
	}
	if cookies[0] != "session_id=abc; Path=/" {
		t.Errorf("got first set-cookie %q", cookies[0])
	}
	if res.Body != `{"token":"xyz"}` {
		t.Errorf("got body %q", res.Body)
	}
}

func TestParseResponseTemplate_NoStatusText(t *testing.T) {
	res, err := protocol.ParseResponseTemplate("HTTP/1.1 204\n\n")
	if err != nil {
		t.Fatalf("ParseResponseTemplate() error = %v", err)
	}
	if res.StatusCode != 204 {
		t.Errorf("got status %d, want 204", res.StatusCode)
	}
	if res.StatusText != "" {
		t.Errorf("got status text %q, want empty", res.StatusText)
	}
}

func TestParseResponseTemplate_InvalidStatus(t *testing.T) {
	if _, err := protocol.ParseResponseTemplate("HTTP/1.1 abc OK\n\n"); err == nil {
		t.Error("expected error for non-numeric status code")
	}
}
