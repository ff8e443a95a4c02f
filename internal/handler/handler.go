// Package handler 实现拦截层的出入站钩子，衔接流量拦截与重认证编排
package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"reauth/internal/auth"
	"reauth/internal/logger"
	"reauth/internal/marker"
	"reauth/internal/matcher"
	"reauth/pkg/domain"
)

// Handler 拦截钩子。
// 出站钩子负责哨兵头擦除、登录请求放行与前瞻注入；
// 入站钩子识别未授权响应并换入重认证得到的改善结果。
type Handler struct {
	manager *auth.Manager
	matcher *matcher.Matcher
	log     logger.Logger

	stateMu sync.RWMutex
	enabled bool
}

// Config 配置选项
type Config struct {
	Manager *auth.Manager
	Matcher *matcher.Matcher
	Enabled bool
	Logger  logger.Logger
}

// New 创建拦截钩子
func New(cfg Config) *Handler {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	if cfg.Matcher == nil {
		cfg.Matcher = matcher.New(nil)
	}
	return &Handler{
		manager: cfg.Manager,
		matcher: cfg.Matcher,
		log:     l,
		enabled: cfg.Enabled,
	}
}

// SetEnabled 切换全局开关，对后续钩子调用立即生效
func (h *Handler) SetEnabled(enabled bool) {
	h.stateMu.Lock()
	h.enabled = enabled
	h.stateMu.Unlock()
	h.log.Info("重认证全局开关变更", "enabled", enabled)
}

// Enabled 返回全局开关状态
func (h *Handler) Enabled() bool {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.enabled
}

// HandleRequest 出站钩子，返回应继续发送的请求与是否发生了改写。
// 哨兵擦除与登录地址放行先于全局开关判定，确保引擎关闭时哨兵头同样不落到线上。
func (h *Handler) HandleRequest(req *domain.Request) (*domain.Request, bool) {
	if req == nil {
		return nil, false
	}

	// 自家登录或重试流量：擦除哨兵后放行，不做注入
	if marker.IsMarked(req) {
		out := req.Clone()
		marker.Unmark(out)
		h.log.Debug("擦除出站哨兵头", "url", out.URL)
		return out, true
	}

	// 命中任一配置的登录地址：用户在重放登录请求，原样放行
	if h.matcher.FindByLoginURL(req.URL) != nil {
		return req, false
	}

	if h.manager == nil || !h.Enabled() {
		return req, false
	}

	return h.manager.InjectCached(req)
}

// HandleResponse 入站钩子，对未授权响应发起重认证。
// 返回应交还上层的响应与是否发生了替换；放弃时原响应原样生效。
func (h *Handler) HandleResponse(ctx context.Context, req *domain.Request, resp *domain.Response) (*domain.Response, bool) {
	if req == nil || resp == nil {
		return resp, false
	}
	if h.manager == nil || !h.Enabled() {
		return resp, false
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, false
	}
	// 自家流量的未授权响应不再触发，防止登录失败引起循环
	if marker.IsMarked(req) {
		return resp, false
	}
	p := h.matcher.FindURL(req.URL)
	if p == nil {
		return resp, false
	}
	// 登录端点自身的未授权无法靠再登录改善
	if p.LoginURL != "" && strings.Contains(req.URL, p.LoginURL) {
		return resp, false
	}

	if retry := h.manager.HandleUnauthorized(ctx, req); retry != nil {
		h.log.Info("未授权响应已被重认证结果替换",
			"url", req.URL, "status", retry.StatusCode)
		return retry, true
	}
	return resp, false
}
