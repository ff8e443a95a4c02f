package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"reauth/internal/auth"
	"reauth/pkg/domain"
	"reauth/pkg/profile"
)

func TestBuildLoginRequest_FromFields(t *testing.T) {
	p := newAPIProfile()
	p.LoginMethod = "put"
	p.ContentType = "application/x-www-form-urlencoded"
	p.LoginBody = "user=${username}&pass=${password}"
	p.ExtraHeaders = map[string]string{"X-Api-Version": "2"}

	req, err := auth.BuildLoginRequest(p)
	if err != nil {
		t.Fatalf("BuildLoginRequest() error = %v", err)
	}
	if req.Method != "PUT" {
		t.Errorf("got method %q, want PUT", req.Method)
	}
	if req.URL != p.LoginURL {
		t.Errorf("got url %q, want %q", req.URL, p.LoginURL)
	}
	if got := req.Header("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("got content type %q", got)
	}
	if got := req.Header("X-Api-Version"); got != "2" {
		t.Errorf("got X-Api-Version %q, want 2", got)
	}
	if got := string(req.Body); got != "user=admin&pass=secret" {
		t.Errorf("got body %q, want substituted credentials", got)
	}
}

func TestBuildLoginRequest_FieldDefaults(t *testing.T) {
	// 字面量构造跳过 NewProfile 的预填充，验证合成时的缺省补齐
	p := &profile.AuthProfile{
		URLPattern: "api.example.com/**",
		LoginURL:   "https://api.example.com/auth/login",
	}

	req, err := auth.BuildLoginRequest(p)
	if err != nil {
		t.Fatalf("BuildLoginRequest() error = %v", err)
	}
	if req.Method != "POST" {
		t.Errorf("got method %q, want default POST", req.Method)
	}
	if got := req.Header("Content-Type"); got != "application/json" {
		t.Errorf("got content type %q, want default application/json", got)
	}
}

func TestBuildLoginRequest_MissingURL(t *testing.T) {
	p := profile.NewProfile("api.example.com/**")
	if _, err := auth.BuildLoginRequest(p); err == nil {
		t.Error("expected error without login url or raw template")
	}
}

func TestBuildLoginRequest_NilProfile(t *testing.T) {
	if _, err := auth.BuildLoginRequest(nil); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("got %v, want ErrProfileNotFound", err)
	}
}

func TestBuildLoginRequest_FromTemplate(t *testing.T) {
	p := newAPIProfile()
	p.RawRequest = strings.Join([]string{
		"POST /auth/login HTTP/1.1",
		"Host: api.example.com",
		"Content-Type: application/json",
		"X-Trace: abc",
		"Content-Length: 99",
		"",
		`{"username":"${username}","password":"${password}"}`,
	}, "\r\n")

	req, err := auth.BuildLoginRequest(p)
	if err != nil {
		t.Fatalf("BuildLoginRequest() error = %v", err)
	}
	if req.URL != "https://api.example.com/auth/login" {
		t.Errorf("got url %q, want https scheme from host header", req.URL)
	}
	if req.Method != "POST" {
		t.Errorf("got method %q, want POST", req.Method)
	}
	if got := req.Header("X-Trace"); got != "abc" {
		t.Errorf("got X-Trace %q, want abc", got)
	}
	// 凭据替换会改变正文长度，模板中的 Content-Length 不得保留
	if req.HasHeader("Content-Length") {
		t.Error("Content-Length from the template must be dropped")
	}
	if got := string(req.Body); got != `{"username":"admin","password":"secret"}` {
		t.Errorf("got body %q, want substituted credentials", got)
	}
}

func TestBuildLoginRequest_TemplatePlainPort(t *testing.T) {
	p := newAPIProfile()
	p.RawRequest = strings.Join([]string{
		"POST /login HTTP/1.1",
		"Host: legacy.example.com:80",
		"",
		"user=${username}",
	}, "\n")

	req, err := auth.BuildLoginRequest(p)
	if err != nil {
		t.Fatalf("BuildLoginRequest() error = %v", err)
	}
	if req.URL != "http://legacy.example.com:80/login" {
		t.Errorf("got url %q, want plaintext scheme for :80", req.URL)
	}
}

func TestBuildLoginRequest_TemplateAbsoluteURL(t *testing.T) {
	p := newAPIProfile()
	p.RawRequest = "POST http://plain.example.com/login HTTP/1.1\nContent-Type: application/json\n\n{}"

	req, err := auth.BuildLoginRequest(p)
	if err != nil {
		t.Fatalf("BuildLoginRequest() error = %v", err)
	}
	if req.URL != "http://plain.example.com/login" {
		t.Errorf("got url %q, want the absolute request-line url", req.URL)
	}
}

func TestBuildLoginRequest_TemplateFallsBackToFields(t *testing.T) {
	p := newAPIProfile()
	// 模板缺 Host 头无法定位目标，应退回离散字段合成
	p.RawRequest = "GET /x HTTP/1.1\nX-Only: 1"

	req, err := auth.BuildLoginRequest(p)
	if err != nil {
		t.Fatalf("BuildLoginRequest() error = %v", err)
	}
	if req.URL != p.LoginURL {
		t.Errorf("got url %q, want field fallback %q", req.URL, p.LoginURL)
	}
	if req.HasHeader("X-Only") {
		t.Error("template headers must not leak into the field-built request")
	}
}

func TestTestLogin_Success(t *testing.T) {
	s := &fakeSender{}
	s.handle = func(req *domain.Request) (*domain.Response, error) {
		return okJSON(`{"token":"secret-token-value-123456"}`), nil
	}
	m := newManager(s, newAPIProfile())

	result := m.TestLogin(context.Background(), newAPIProfile())
	if !result.Success {
		t.Fatalf("got failure %q, want success", result.Error)
	}
	if result.StatusCode != 200 {
		t.Errorf("got status %d, want 200", result.StatusCode)
	}
	if result.TokenMask != "secr****3456" {
		t.Errorf("got token mask %q, want secr****3456", result.TokenMask)
	}
	if result.SourceKind != "json" || result.SourceName != "token" {
		t.Errorf("got source %s/%s, want json/token", result.SourceKind, result.SourceName)
	}
	if result.DurationMS < 0 {
		t.Errorf("got duration %d, want non-negative", result.DurationMS)
	}

	// 预览中的令牌值必须已做掩码
	if strings.Contains(result.BodyPreview, "secret-token-value-123456") {
		t.Errorf("raw token leaked into preview: %q", result.BodyPreview)
	}
	if !strings.Contains(result.BodyPreview, "secr****3456") {
		t.Errorf("got preview %q, want masked token", result.BodyPreview)
	}
}

func TestTestLogin_NoSideEffects(t *testing.T) {
	s := &fakeSender{}
	s.handle = func(req *domain.Request) (*domain.Response, error) {
		return okJSON(`{"token":"tok-x"}`), nil
	}
	m := newManager(s, newAPIProfile())

	if result := m.TestLogin(context.Background(), newAPIProfile()); !result.Success {
		t.Fatalf("got failure %q, want success", result.Error)
	}

	// 演练不写缓存
	if _, ok := m.CachedToken("api.example.com"); ok {
		t.Error("test login must not populate the token cache")
	}
	// 演练不记入限速：随后的按需登录应立即放行
	if _, err := m.LoginAndGetToken(context.Background(), newAPIProfile()); err != nil {
		t.Errorf("on-demand login after a test run should pass the gate, got %v", err)
	}
}

func TestTestLogin_StatusFailure(t *testing.T) {
	s := &fakeSender{}
	s.handle = func(req *domain.Request) (*domain.Response, error) {
		return &domain.Response{StatusCode: 500, Body: []byte("boom")}, nil
	}
	m := newManager(s, newAPIProfile())

	result := m.TestLogin(context.Background(), newAPIProfile())
	if result.Success {
		t.Fatal("expected failure on 500")
	}
	if result.StatusCode != 500 || result.Error != "login status 500" {
		t.Errorf("got status %d error %q", result.StatusCode, result.Error)
	}
	if result.BodyPreview != "boom" {
		t.Errorf("got preview %q, want the response body", result.BodyPreview)
	}
}

func TestTestLogin_NoToken(t *testing.T) {
	s := &fakeSender{}
	s.handle = func(req *domain.Request) (*domain.Response, error) {
		return okJSON(`{"message":"ok"}`), nil
	}
	m := newManager(s, newAPIProfile())

	result := m.TestLogin(context.Background(), newAPIProfile())
	if result.Success {
		t.Fatal("expected failure when no token can be extracted")
	}
	if result.Error != domain.ErrNoToken.Error() {
		t.Errorf("got error %q, want %q", result.Error, domain.ErrNoToken.Error())
	}
}

func TestTestLogin_TransportError(t *testing.T) {
	s := &fakeSender{}
	s.handle = func(req *domain.Request) (*domain.Response, error) {
		return nil, errors.New("dial timeout")
	}
	m := newManager(s, newAPIProfile())

	result := m.TestLogin(context.Background(), newAPIProfile())
	if result.Success || result.Error == "" {
		t.Errorf("got %+v, want transport failure surfaced in Error", result)
	}
}
