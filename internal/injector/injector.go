// Package injector 将凭据令牌改写进出站请求
package injector

import (
	"reauth/internal/protocol"
	"reauth/pkg/domain"
	"reauth/pkg/profile"
)

// Inject 依据注入规格把令牌写入请求，返回修改后的副本
// 纯函数：原请求不被改动；同名头部或 Cookie 条目被替换而非重复追加
func Inject(req *domain.Request, token domain.ExtractedToken, spec profile.InjectionSpec) *domain.Request {
	if req == nil {
		return nil
	}
	out := req.Clone()
	if token.Value == "" {
		return out
	}

	if spec.AutoDetect {
		injectAuto(out, token)
	} else {
		injectManual(out, token, spec)
	}
	return out
}

// injectAuto 镜像令牌自身的来源：Cookie 回写同名 Cookie，
// 头部回写同名头部（仅名称恰为 Authorization 时补回 Bearer 前缀），
// JSON 字段来源在请求侧没有天然位置，约定写入 Authorization: Bearer
func injectAuto(req *domain.Request, token domain.ExtractedToken) {
	switch token.SourceKind {
	case domain.SourceCookie:
		mergeCookie(req, token.SourceName, token.Value)
	case domain.SourceHeader:
		value := token.Value
		if token.SourceName == "Authorization" {
			value = "Bearer " + value
		}
		req.SetHeader(token.SourceName, value)
	default:
		req.SetHeader("Authorization", "Bearer "+token.Value)
	}
}

func injectManual(req *domain.Request, token domain.ExtractedToken, spec profile.InjectionSpec) {
	switch spec.TargetKind {
	case domain.TargetCookie:
		mergeCookie(req, spec.Name, token.Value)
	case domain.TargetHeader:
		if spec.Name == "" {
			req.SetHeader("Authorization", "Bearer "+token.Value)
			return
		}
		req.SetHeader(spec.Name, token.Value)
	default:
		req.SetHeader("Authorization", "Bearer "+token.Value)
	}
}

// mergeCookie 并入既有 Cookie 头：同名条目原位替换，新条目追加，
// 未触及条目的顺序保持不变
func mergeCookie(req *domain.Request, name, value string) {
	if name == "" {
		return
	}
	cookies := protocol.ParseCookieHeader(req.Header("Cookie"))
	cookies = protocol.MergeCookie(cookies, name, value)
	req.SetHeader("Cookie", protocol.FormatCookieHeader(cookies))
}
