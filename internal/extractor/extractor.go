// Package extractor 从登录响应中定位凭据令牌及其来源
package extractor

import (
	"strings"

	"github.com/tidwall/gjson"

	"reauth/internal/protocol"
	"reauth/pkg/domain"
	"reauth/pkg/profile"
)

// CandidateHeaders 自动探测时按固定优先级检查的响应头
var CandidateHeaders = []string{"Authorization", "X-Auth-Token", "X-Access-Token", "Token"}

// CookieNameHints Cookie 名包含任一子串（忽略大小写）时视为凭据
var CookieNameHints = []string{"token", "session", "auth", "jwt", "access"}

// CandidateJSONPaths 自动探测时按固定顺序尝试的 JSON 字段路径
var CandidateJSONPaths = []string{
	"token",
	"access_token",
	"accessToken",
	"data.token",
	"data.access_token",
	"data.accessToken",
	"response.token",
	"response.access_token",
	"jwt",
	"id_token",
	"idToken",
}

// Extract 依据提取规格从登录响应中定位令牌
// 自动模式按 头部 -> Set-Cookie -> JSON 字段 的优先级探测，首个命中即返回；
// 手工模式只查配置的来源，落空且配置携带示例值时回退到该值。
// 任何来源都未产出非空值时返回 ok=false，调用方应中止重试而非循环。
func Extract(resp *domain.Response, spec profile.ExtractionSpec) (domain.ExtractedToken, bool) {
	if resp == nil {
		return domain.ExtractedToken{}, false
	}
	if spec.AutoDetect {
		return autoDetect(resp)
	}
	return manual(resp, spec)
}

// autoDetect 固定优先级探测，示例值回退不参与该模式
func autoDetect(resp *domain.Response) (domain.ExtractedToken, bool) {
	for _, name := range CandidateHeaders {
		if value := stripBearer(resp.Header(name)); value != "" {
			return domain.ExtractedToken{Value: value, SourceKind: domain.SourceHeader, SourceName: name}, true
		}
	}

	for _, setCookie := range resp.SetCookies() {
		name, value, ok := protocol.ParseSetCookie(setCookie)
		if !ok || value == "" {
			continue
		}
		if isCredentialCookie(name) {
			return domain.ExtractedToken{Value: value, SourceKind: domain.SourceCookie, SourceName: name}, true
		}
	}

	body := string(resp.Body)
	if gjson.Valid(body) {
		for _, path := range CandidateJSONPaths {
			if value := stringLeaf(body, path); value != "" {
				return domain.ExtractedToken{Value: value, SourceKind: domain.SourceJSONField, SourceName: path}, true
			}
		}
	}

	return domain.ExtractedToken{}, false
}

func manual(resp *domain.Response, spec profile.ExtractionSpec) (domain.ExtractedToken, bool) {
	var value string
	switch spec.SourceKind {
	case domain.SourceHeader:
		value = stripBearer(resp.Header(spec.Name))
	case domain.SourceCookie:
		for _, setCookie := range resp.SetCookies() {
			name, v, ok := protocol.ParseSetCookie(setCookie)
			if ok && strings.EqualFold(name, spec.Name) {
				value = v
				break
			}
		}
	case domain.SourceJSONField:
		body := string(resp.Body)
		if gjson.Valid(body) {
			value = stringLeaf(body, spec.Name)
		}
	}

	if value != "" {
		return domain.ExtractedToken{Value: value, SourceKind: spec.SourceKind, SourceName: spec.Name}, true
	}

	// 路径提取落空时回退到操作者确认过的示例值
	if spec.SelectedValue != "" {
		return domain.ExtractedToken{Value: spec.SelectedValue, SourceKind: spec.SourceKind, SourceName: spec.Name}, true
	}
	return domain.ExtractedToken{}, false
}

// stringLeaf 取路径上的字符串叶子值，其他类型不合格
func stringLeaf(body, path string) string {
	if path == "" {
		return ""
	}
	result := gjson.Get(body, path)
	if result.Type != gjson.String {
		return ""
	}
	return result.String()
}

// stripBearer 去除值开头的 Bearer 前缀（忽略大小写）
func stripBearer(value string) string {
	if len(value) >= 7 && strings.EqualFold(value[:7], "Bearer ") {
		return value[7:]
	}
	return value
}

func isCredentialCookie(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range CookieNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
