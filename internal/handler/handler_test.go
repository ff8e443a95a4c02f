package handler_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"reauth/internal/auth"
	"reauth/internal/handler"
	"reauth/internal/logger"
	"reauth/internal/marker"
	"reauth/internal/matcher"
	"reauth/internal/tokencache"
	"reauth/pkg/domain"
	"reauth/pkg/profile"
)

type stubSender struct {
	mu     sync.Mutex
	calls  int
	handle func(req *domain.Request) (*domain.Response, error)
}

func (s *stubSender) Do(_ context.Context, req *domain.Request) (*domain.Response, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.handle == nil {
		return &domain.Response{StatusCode: 200}, nil
	}
	return s.handle(req)
}

func (s *stubSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func apiProfile() *profile.AuthProfile {
	p := profile.NewProfile("api.example.com/**")
	p.LoginURL = "https://api.example.com/auth/login"
	p.LoginBody = `{"username":"${username}","password":"${password}"}`
	p.Username = "admin"
	p.Password = "secret"
	return p
}

// newHandler 构造共享同一匹配器的编排器与钩子
func newHandler(enabled bool, s *stubSender, cache *tokencache.Cache, profiles ...*profile.AuthProfile) *handler.Handler {
	m := matcher.New(profiles)
	mgr := auth.New(auth.Config{
		Matcher: m,
		Sender:  s,
		Cache:   cache,
		Logger:  logger.NewNop(),
	})
	return handler.New(handler.Config{
		Manager: mgr,
		Matcher: m,
		Enabled: enabled,
		Logger:  logger.NewNop(),
	})
}

func hotCache() *tokencache.Cache {
	c := tokencache.New()
	c.Put("api.example.com", domain.ExtractedToken{
		Value:      "tok-1",
		SourceKind: domain.SourceJSONField,
		SourceName: "token",
	})
	return c
}

func dataRequest() *domain.Request {
	return &domain.Request{Method: "GET", URL: "https://api.example.com/v1/data"}
}

func TestHandleRequest_UnmarksOwnTraffic(t *testing.T) {
	h := newHandler(true, &stubSender{}, hotCache(), apiProfile())

	req := dataRequest()
	marker.Mark(req)

	out, modified := h.HandleRequest(req)
	if !modified {
		t.Fatal("marked request should be rewritten")
	}
	if marker.IsMarked(out) {
		t.Error("sentinel header must not survive the outbound hook")
	}
	// 自家流量只擦哨兵，不做注入
	if out.HasHeader("Authorization") {
		t.Error("own traffic must not receive proactive injection")
	}
	if !marker.IsMarked(req) {
		t.Error("original request must stay untouched")
	}
}

func TestHandleRequest_LoginURLPassthrough(t *testing.T) {
	h := newHandler(true, &stubSender{}, hotCache(), apiProfile())

	req := &domain.Request{Method: "POST", URL: "https://api.example.com/auth/login"}
	out, modified := h.HandleRequest(req)
	if modified {
		t.Error("login replay should pass through unchanged")
	}
	if out.HasHeader("Authorization") {
		t.Error("login replay must not receive token injection")
	}
}

func TestHandleRequest_DisabledSkipsInjection(t *testing.T) {
	h := newHandler(false, &stubSender{}, hotCache(), apiProfile())

	if _, modified := h.HandleRequest(dataRequest()); modified {
		t.Error("disabled engine must not inject")
	}
}

func TestHandleRequest_ProactiveInjection(t *testing.T) {
	h := newHandler(true, &stubSender{}, hotCache(), apiProfile())

	req := dataRequest()
	out, modified := h.HandleRequest(req)
	if !modified {
		t.Fatal("expected proactive injection with a hot cache")
	}
	if got := out.Header("Authorization"); got != "Bearer tok-1" {
		t.Errorf("got Authorization %q, want Bearer tok-1", got)
	}
	if req.HasHeader("Authorization") {
		t.Error("original request must stay untouched")
	}
}

func TestHandleRequest_NoProfile(t *testing.T) {
	h := newHandler(true, &stubSender{}, hotCache())

	req := dataRequest()
	out, modified := h.HandleRequest(req)
	if modified || out != req {
		t.Error("request without a matching profile should pass through")
	}
}

func TestHandleResponse_SubstitutesRetry(t *testing.T) {
	s := &stubSender{}
	s.handle = func(req *domain.Request) (*domain.Response, error) {
		if strings.Contains(req.URL, "/auth/login") {
			resp := &domain.Response{StatusCode: 200, Body: []byte(`{"token":"tok-1"}`)}
			return resp, nil
		}
		if req.Header("Authorization") == "Bearer tok-1" {
			return &domain.Response{StatusCode: 200}, nil
		}
		return &domain.Response{StatusCode: 401}, nil
	}
	h := newHandler(true, s, nil, apiProfile())

	out, substituted := h.HandleResponse(context.Background(), dataRequest(), &domain.Response{StatusCode: 401})
	if !substituted {
		t.Fatal("expected the unauthorized response to be substituted")
	}
	if out.StatusCode != 200 {
		t.Errorf("got status %d, want 200", out.StatusCode)
	}
}

func TestHandleResponse_IgnoresNon401(t *testing.T) {
	s := &stubSender{}
	h := newHandler(true, s, nil, apiProfile())

	resp := &domain.Response{StatusCode: 503}
	out, substituted := h.HandleResponse(context.Background(), dataRequest(), resp)
	if substituted || out != resp {
		t.Error("non-unauthorized responses must pass through")
	}
	if s.callCount() != 0 {
		t.Error("no network activity expected")
	}
}

func TestHandleResponse_Disabled(t *testing.T) {
	s := &stubSender{}
	h := newHandler(false, s, nil, apiProfile())

	resp := &domain.Response{StatusCode: 401}
	if _, substituted := h.HandleResponse(context.Background(), dataRequest(), resp); substituted {
		t.Error("disabled engine must not react to unauthorized responses")
	}
	if s.callCount() != 0 {
		t.Error("no network activity expected")
	}
}

func TestHandleResponse_MarkedInitiator(t *testing.T) {
	s := &stubSender{}
	h := newHandler(true, s, nil, apiProfile())

	req := dataRequest()
	marker.Mark(req)

	// 自家请求引发的 401 不得再次触发登录，否则形成循环
	resp := &domain.Response{StatusCode: 401}
	if _, substituted := h.HandleResponse(context.Background(), req, resp); substituted {
		t.Error("marked initiator must never re-trigger authentication")
	}
	if s.callCount() != 0 {
		t.Error("no network activity expected")
	}
}

func TestHandleResponse_LoginEndpoint(t *testing.T) {
	s := &stubSender{}
	h := newHandler(true, s, nil, apiProfile())

	req := &domain.Request{Method: "POST", URL: "https://api.example.com/auth/login"}
	resp := &domain.Response{StatusCode: 401}
	if _, substituted := h.HandleResponse(context.Background(), req, resp); substituted {
		t.Error("401 from the login endpoint itself must pass through")
	}
	if s.callCount() != 0 {
		t.Error("re-login cannot improve a failing login endpoint")
	}
}

func TestHandleResponse_FallsBackWhenAborted(t *testing.T) {
	s := &stubSender{}
	s.handle = func(req *domain.Request) (*domain.Response, error) {
		return &domain.Response{StatusCode: 500}, nil
	}
	h := newHandler(true, s, nil, apiProfile())

	resp := &domain.Response{StatusCode: 401}
	out, substituted := h.HandleResponse(context.Background(), dataRequest(), resp)
	if substituted || out != resp {
		t.Error("failed re-authentication must fall back to the original response")
	}
}

func TestSetEnabled(t *testing.T) {
	h := newHandler(false, &stubSender{}, nil)
	if h.Enabled() {
		t.Error("handler should start disabled")
	}
	h.SetEnabled(true)
	if !h.Enabled() {
		t.Error("handler should be enabled after SetEnabled(true)")
	}
}
