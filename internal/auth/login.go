package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reauth/internal/extractor"
	"reauth/internal/jsonutil"
	"reauth/internal/marker"
	"reauth/internal/protocol"
	"reauth/pkg/domain"
	"reauth/pkg/model"
	"reauth/pkg/profile"
)

// maxBodyPreview 登录演练返回的响应体预览上限
const maxBodyPreview = 2048

// BuildLoginRequest 依据配置构造登录请求。
// 捕获过原始报文时优先整体重放，仅替换正文中的凭据占位符；
// 模板缺失或损坏时退回离散字段合成。
func BuildLoginRequest(p *profile.AuthProfile) (*domain.Request, error) {
	if p == nil {
		return nil, domain.ErrProfileNotFound
	}
	if strings.TrimSpace(p.RawRequest) != "" {
		req, err := buildFromTemplate(p)
		if err == nil {
			return req, nil
		}
	}
	return buildFromFields(p)
}

// buildFromTemplate 重放捕获的原始登录报文。
// 传输协议由 Host 头推断：带 :80 后缀走明文，其余走加密（默认 443）。
func buildFromTemplate(p *profile.AuthProfile) (*domain.Request, error) {
	parsed, err := protocol.ParseRequestTemplate(p.RawRequest)
	if err != nil {
		return nil, err
	}

	req := &domain.Request{Method: parsed.Method}

	if strings.HasPrefix(parsed.Path, "http://") || strings.HasPrefix(parsed.Path, "https://") {
		// 代理风格请求行自带绝对地址
		req.URL = parsed.Path
	} else {
		hostHeader := parsed.Header("Host")
		if hostHeader == "" {
			return nil, errors.New("raw request missing host header")
		}
		scheme := "https"
		if strings.HasSuffix(hostHeader, ":80") {
			scheme = "http"
		}
		req.URL = scheme + "://" + hostHeader + parsed.Path
	}

	for _, h := range parsed.Headers {
		// 凭据替换会改变正文长度，交给传输层重新计算
		if strings.EqualFold(h.Name, "Content-Length") {
			continue
		}
		req.AddHeader(h.Name, h.Value)
	}

	if body := profile.SubstituteCredentials(parsed.Body, p.Username, p.Password); body != "" {
		req.Body = []byte(body)
	}
	return req, nil
}

// buildFromFields 按离散字段合成登录请求
func buildFromFields(p *profile.AuthProfile) (*domain.Request, error) {
	if strings.TrimSpace(p.LoginURL) == "" {
		return nil, errors.New("login url not configured")
	}

	method := strings.ToUpper(strings.TrimSpace(p.LoginMethod))
	if method == "" {
		method = profile.DefaultLoginMethod
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = profile.DefaultContentType
	}

	req := &domain.Request{Method: method, URL: p.LoginURL}
	req.SetHeader("Content-Type", contentType)
	for name, value := range p.ExtraHeaders {
		req.SetHeader(name, value)
	}
	if body := p.BuildLoginBody(); body != "" {
		req.Body = []byte(body)
	}
	return req, nil
}

// TestLogin 对配置做一次登录演练：发送登录并尝试提取令牌。
// 演练不写缓存、不记入限速，可反复执行而不影响正常触发。
func (m *Manager) TestLogin(ctx context.Context, p *profile.AuthProfile) model.LoginTestResult {
	start := time.Now()
	result := m.runLoginTest(ctx, p)
	result.DurationMS = time.Since(start).Milliseconds()
	return result
}

func (m *Manager) runLoginTest(ctx context.Context, p *profile.AuthProfile) model.LoginTestResult {
	var result model.LoginTestResult
	if m.sender == nil {
		result.Error = "transport not configured"
		return result
	}

	loginReq, err := BuildLoginRequest(p)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	marker.Mark(loginReq)

	resp, err := m.sender.Do(ctx, loginReq)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.StatusCode = resp.StatusCode
	result.BodyPreview = previewBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("login status %d", resp.StatusCode)
		return result
	}

	tok, ok := extractor.Extract(resp, p.Extraction)
	if !ok {
		result.Error = domain.ErrNoToken.Error()
		return result
	}

	result.Success = true
	result.TokenMask = model.MaskToken(tok.Value)
	result.SourceKind = string(tok.SourceKind)
	result.SourceName = tok.SourceName
	return result
}

// previewBody 生成响应体预览，已知令牌字段先做掩码，防止明文进入界面
func previewBody(body []byte) string {
	s := string(body)
	if jsonutil.IsValid(s) {
		s = jsonutil.MaskValues(s, model.MaskToken, extractor.CandidateJSONPaths...)
	}
	if len(s) > maxBodyPreview {
		s = s[:maxBodyPreview]
	}
	return s
}
