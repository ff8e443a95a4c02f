package injector_test

import (
	"testing"

	"reauth/internal/extractor"
	"reauth/internal/injector"
	"reauth/pkg/domain"
	"reauth/pkg/profile"
)

func autoInject() profile.InjectionSpec {
	return profile.InjectionSpec{AutoDetect: true}
}

func newRequest() *domain.Request {
	return &domain.Request{Method: "GET", URL: "https://api.example.com/v1/users"}
}

func TestInject_AutoMirrorsCookie(t *testing.T) {
	tok := domain.ExtractedToken{Value: "XYZ", SourceKind: domain.SourceCookie, SourceName: "session"}

	out := injector.Inject(newRequest(), tok, autoInject())
	if got := out.Header("Cookie"); got != "session=XYZ" {
		t.Errorf("got Cookie %q, want session=XYZ", got)
	}
}

func TestInject_AutoMirrorsHeader(t *testing.T) {
	tok := domain.ExtractedToken{Value: "abc", SourceKind: domain.SourceHeader, SourceName: "X-Auth-Token"}

	out := injector.Inject(newRequest(), tok, autoInject())
	// 非 Authorization 头不加 Bearer 前缀
	if got := out.Header("X-Auth-Token"); got != "abc" {
		t.Errorf("got X-Auth-Token %q, want abc", got)
	}
}

func TestInject_AutoRestoresBearerForAuthorization(t *testing.T) {
	tok := domain.ExtractedToken{Value: "abc", SourceKind: domain.SourceHeader, SourceName: "Authorization"}

	out := injector.Inject(newRequest(), tok, autoInject())
	if got := out.Header("Authorization"); got != "Bearer abc" {
		t.Errorf("got Authorization %q, want Bearer abc", got)
	}
}

func TestInject_AutoJSONFieldUsesBearer(t *testing.T) {
	tok := domain.ExtractedToken{Value: "abc", SourceKind: domain.SourceJSONField, SourceName: "data.token"}

	out := injector.Inject(newRequest(), tok, autoInject())
	if got := out.Header("Authorization"); got != "Bearer abc" {
		t.Errorf("got Authorization %q, want Bearer abc", got)
	}
}

func TestInject_Pure(t *testing.T) {
	req := newRequest()
	req.SetHeader("Cookie", "a=1")
	tok := domain.ExtractedToken{Value: "XYZ", SourceKind: domain.SourceCookie, SourceName: "session"}

	out := injector.Inject(req, tok, autoInject())

	if got := req.Header("Cookie"); got != "a=1" {
		t.Errorf("original request mutated: Cookie = %q", got)
	}
	if got := out.Header("Cookie"); got != "a=1; session=XYZ" {
		t.Errorf("got Cookie %q, want a=1; session=XYZ", got)
	}
}

func TestInject_ReplacesExistingHeader(t *testing.T) {
	req := newRequest()
	req.SetHeader("Authorization", "Bearer stale")
	tok := domain.ExtractedToken{Value: "fresh", SourceKind: domain.SourceHeader, SourceName: "Authorization"}

	out := injector.Inject(req, tok, autoInject())

	if got := out.Header("Authorization"); got != "Bearer fresh" {
		t.Errorf("got Authorization %q, want Bearer fresh", got)
	}
	count := 0
	for _, h := range out.Headers {
		if h.Name == "Authorization" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d Authorization headers, want 1", count)
	}
}

func TestInject_CookieMergePreservesOrder(t *testing.T) {
	req := newRequest()
	req.SetHeader("Cookie", "first=1; session=old; last=9")
	tok := domain.ExtractedToken{Value: "new", SourceKind: domain.SourceCookie, SourceName: "SESSION"}

	out := injector.Inject(req, tok, autoInject())
	if got := out.Header("Cookie"); got != "first=1; session=new; last=9" {
		t.Errorf("got Cookie %q, want first=1; session=new; last=9", got)
	}
}

func TestInject_ManualHeader(t *testing.T) {
	tok := domain.ExtractedToken{Value: "abc", SourceKind: domain.SourceJSONField, SourceName: "token"}
	spec := profile.InjectionSpec{TargetKind: domain.TargetHeader, Name: "X-Api-Key"}

	out := injector.Inject(newRequest(), tok, spec)
	// 手工头部注入使用原始值
	if got := out.Header("X-Api-Key"); got != "abc" {
		t.Errorf("got X-Api-Key %q, want abc", got)
	}
}

func TestInject_ManualCookie(t *testing.T) {
	req := newRequest()
	req.SetHeader("Cookie", "keep=1")
	tok := domain.ExtractedToken{Value: "abc", SourceKind: domain.SourceHeader, SourceName: "Authorization"}
	spec := profile.InjectionSpec{TargetKind: domain.TargetCookie, Name: "sid"}

	out := injector.Inject(req, tok, spec)
	if got := out.Header("Cookie"); got != "keep=1; sid=abc" {
		t.Errorf("got Cookie %q, want keep=1; sid=abc", got)
	}
}

func TestInject_ManualBearer(t *testing.T) {
	tok := domain.ExtractedToken{Value: "abc", SourceKind: domain.SourceCookie, SourceName: "session"}
	spec := profile.InjectionSpec{TargetKind: domain.TargetBearer}

	out := injector.Inject(newRequest(), tok, spec)
	if got := out.Header("Authorization"); got != "Bearer abc" {
		t.Errorf("got Authorization %q, want Bearer abc", got)
	}
}

func TestInject_EmptyToken(t *testing.T) {
	req := newRequest()
	req.SetHeader("Cookie", "a=1")

	out := injector.Inject(req, domain.ExtractedToken{}, autoInject())
	if len(out.Headers) != len(req.Headers) {
		t.Error("empty token should leave the request unchanged")
	}
}

// 往返属性：提取后再注入，不丢失也不重复 Cookie 头中的无关条目
func TestInject_RoundTripKeepsUnrelatedCookies(t *testing.T) {
	loginResp := &domain.Response{
		StatusCode: 200,
		Headers: []domain.Header{
			{Name: "Set-Cookie", Value: "session=XYZ; Path=/"},
		},
	}
	tok, ok := extractor.Extract(loginResp, profile.ExtractionSpec{AutoDetect: true})
	if !ok {
		t.Fatal("extraction failed")
	}

	req := newRequest()
	req.SetHeader("Cookie", "lang=en; theme=dark")

	out := injector.Inject(req, tok, autoInject())
	if got := out.Header("Cookie"); got != "lang=en; theme=dark; session=XYZ" {
		t.Errorf("got Cookie %q, want lang=en; theme=dark; session=XYZ", got)
	}
}
