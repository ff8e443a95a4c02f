// Package manual 提供手工令牌注入：在任意请求字节的选区上拼接令牌文本
package manual

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"reauth/internal/auth"
	"reauth/internal/logger"
	"reauth/pkg/domain"
	"reauth/pkg/model"
	"reauth/pkg/profile"
)

// History 注入历史落地接口
type History interface {
	Record(rec *model.InjectionRecord)
	Clear(ctx context.Context) error
}

// Listener 注入完成后的回调
type Listener func(rec model.InjectionRecord)

// Service 手工注入服务。
// 手工令牌缓存按配置模式独立建键，与编排器按主机建键的自动缓存分层：
// 先查手工缓存，落空再借用自动缓存，都落空时按需登录。
type Service struct {
	auth    *auth.Manager
	history History
	log     logger.Logger

	manualCache sync.Map // pattern -> domain.ExtractedToken

	listenerMu sync.RWMutex
	listeners  []Listener
}

// Config 配置选项
type Config struct {
	Auth    *auth.Manager
	History History
	Logger  logger.Logger
}

// New 创建手工注入服务
func New(cfg Config) *Service {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Service{
		auth:    cfg.Auth,
		history: cfg.History,
		log:     l,
	}
}

// InjectToken 把配置对应的令牌文本拼入请求字节的选区。
// 选区为字节偏移，selStart == selEnd 表示纯插入；
// 令牌优先取缓存，落空时触发一次按需登录（过限速闸门）。
// 返回修改后的字节与本次注入的记录。
func (s *Service) InjectToken(ctx context.Context, requestBytes []byte, selStart, selEnd int, p *profile.AuthProfile, requestURL string) ([]byte, *model.InjectionRecord, error) {
	if p == nil {
		return nil, nil, domain.ErrProfileNotFound
	}
	if selStart < 0 || selEnd > len(requestBytes) || selStart > selEnd {
		return nil, nil, domain.ErrInvalidSelection
	}

	tok, ok := s.CachedTokenFor(p)
	if !ok {
		var err error
		tok, err = s.TriggerLogin(ctx, p)
		if err != nil {
			return nil, nil, err
		}
	}

	tokenBytes := []byte(tok.Value)
	modified := make([]byte, 0, len(requestBytes)-(selEnd-selStart)+len(tokenBytes))
	modified = append(modified, requestBytes[:selStart]...)
	modified = append(modified, tokenBytes...)
	modified = append(modified, requestBytes[selEnd:]...)

	rec := &model.InjectionRecord{
		ID:             uuid.NewString(),
		RequestURL:     requestURL,
		Pattern:        p.URLPattern,
		SelectionStart: selStart,
		SelectionEnd:   selEnd,
		OriginalText:   string(requestBytes[selStart:selEnd]),
		TokenPreview:   model.PreviewToken(tok.Value),
		Before:         string(requestBytes),
		After:          string(modified),
		Timestamp:      time.Now().UnixMilli(),
	}
	if s.history != nil {
		s.history.Record(rec)
	}
	s.notify(*rec)

	s.log.Info("手工注入完成", "url", requestURL, "pattern", p.URLPattern,
		"selStart", selStart, "selEnd", selEnd, "token", model.PreviewToken(tok.Value))
	return modified, rec, nil
}

// CachedTokenFor 查询配置可用的缓存令牌：手工缓存优先，自动缓存兜底
func (s *Service) CachedTokenFor(p *profile.AuthProfile) (domain.ExtractedToken, bool) {
	if p == nil {
		return domain.ExtractedToken{}, false
	}
	if v, ok := s.manualCache.Load(p.URLPattern); ok {
		return v.(domain.ExtractedToken), true
	}
	if s.auth == nil {
		return domain.ExtractedToken{}, false
	}
	return s.auth.CachedToken(auth.TargetHost(p))
}

// TriggerLogin 为配置执行一次按需登录并填充手工缓存
func (s *Service) TriggerLogin(ctx context.Context, p *profile.AuthProfile) (domain.ExtractedToken, error) {
	if p == nil {
		return domain.ExtractedToken{}, domain.ErrProfileNotFound
	}
	if s.auth == nil {
		return domain.ExtractedToken{}, domain.ErrNoToken
	}
	tok, err := s.auth.LoginAndGetToken(ctx, p)
	if err != nil {
		return domain.ExtractedToken{}, err
	}
	s.manualCache.Store(p.URLPattern, tok)
	return tok, nil
}

// ClearCache 清空手工令牌缓存。编排器的自动缓存不受影响，需单独清理。
func (s *Service) ClearCache() {
	s.manualCache.Range(func(key, _ any) bool {
		s.manualCache.Delete(key)
		return true
	})
	s.log.Info("手工令牌缓存已清空")
}

// ClearHistory 清空注入历史
func (s *Service) ClearHistory(ctx context.Context) error {
	if s.history == nil {
		return nil
	}
	return s.history.Clear(ctx)
}

// AddListener 注册注入完成回调
func (s *Service) AddListener(fn Listener) {
	if fn == nil {
		return
	}
	s.listenerMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenerMu.Unlock()
}

// notify 逐个通知监听器，单个恐慌不影响其余监听器与注入结果
func (s *Service) notify(rec model.InjectionRecord) {
	s.listenerMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Warn("注入监听器恐慌已隔离", "recover", r)
				}
			}()
			fn(rec)
		}()
	}
}
