// Package auth 实现重认证编排核心：未授权响应触发登录、提取令牌并重试原请求
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"reauth/internal/audit"
	"reauth/internal/extractor"
	"reauth/internal/injector"
	"reauth/internal/logger"
	"reauth/internal/marker"
	"reauth/internal/matcher"
	"reauth/internal/ratelimit"
	"reauth/internal/tokencache"
	"reauth/internal/transport"
	"reauth/pkg/domain"
	"reauth/pkg/errx"
	"reauth/pkg/model"
	"reauth/pkg/profile"
)

// Manager 重认证编排器。
// 以主机为粒度串行化登录流程：同一主机的并发未授权响应只触发一次登录，
// 其余调用方在锁后复用新令牌重试。缓存与限速状态归实例所有，随实例销毁。
type Manager struct {
	matcher  *matcher.Matcher
	sender   transport.Sender
	limiter  *ratelimit.Limiter
	cache    *tokencache.Cache
	recorder *audit.Recorder
	log      logger.Logger

	// 主机锁按需创建，永不回收；主机基数由真实流量决定，可接受
	hostLocks sync.Map // host -> *sync.Mutex

	unauthorized atomic.Int64
	logins       atomic.Int64
	loginFailed  atomic.Int64
	cacheHits    atomic.Int64
	injections   atomic.Int64
	rateLimited  atomic.Int64

	byHostMu sync.Mutex
	byHost   map[string]int64
}

// Config 配置选项
type Config struct {
	Matcher  *matcher.Matcher
	Sender   transport.Sender
	Limiter  *ratelimit.Limiter
	Cache    *tokencache.Cache
	Recorder *audit.Recorder
	Logger   logger.Logger
}

// New 创建编排器，除 Sender 外的依赖缺省时使用内建实现
func New(cfg Config) *Manager {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	if cfg.Matcher == nil {
		cfg.Matcher = matcher.New(nil)
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(0)
	}
	if cfg.Cache == nil {
		cfg.Cache = tokencache.New()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = audit.New(nil, l)
	}
	return &Manager{
		matcher:  cfg.Matcher,
		sender:   cfg.Sender,
		limiter:  cfg.Limiter,
		cache:    cfg.Cache,
		recorder: cfg.Recorder,
		log:      l,
		byHost:   make(map[string]int64),
	}
}

// HandleUnauthorized 处理一次未授权响应，返回改善后的响应。
// 返回 nil 表示本轮放弃，调用方应让原 401 响应原样传递。
func (m *Manager) HandleUnauthorized(ctx context.Context, original *domain.Request) *domain.Response {
	if original == nil {
		return nil
	}
	p := m.matcher.FindURL(original.URL)
	if p == nil {
		m.log.Debug("未命中任何认证配置，保持原响应", "url", original.URL)
		return nil
	}

	host := original.Host()
	m.unauthorized.Add(1)
	m.bumpHost(host)

	lock := m.hostLock(host)
	lock.Lock()
	defer lock.Unlock()

	// 排队期间并发竞争者可能已写入新令牌：先试缓存令牌搭车重试。
	// 闸门只拦真正的登录交换，不拦搭车，否则锁后排队的调用方会被
	// 头一次登录记下的尝试时间全部挡掉。
	if tok, ok := m.cache.Get(host); ok {
		retry := m.sendRetry(ctx, original, tok, p)
		if retry != nil && retry.StatusCode != http.StatusUnauthorized {
			m.cacheHits.Add(1)
			m.log.Debug("缓存令牌重试成功", "host", host, "status", retry.StatusCode)
			return retry
		}
		// 缓存令牌已失效，剔除后转入完整登录
		m.cache.Delete(host)
		m.log.Debug("缓存令牌已失效", "host", host)
	}

	// 限速闸门：未到间隔直接放弃，原响应生效
	if !m.limiter.IsAllowed(host) {
		wait := m.limiter.RemainingWait(host)
		m.rateLimited.Add(1)
		m.recorder.Record(domain.EventRateLimited, host, p.URLPattern,
			fmt.Sprintf("next login allowed in %dms", wait.Milliseconds()))
		m.log.Info("登录限速拦截", "host", host, "waitMs", wait.Milliseconds())
		return nil
	}

	tok, err := m.login(ctx, p, host)
	if err != nil {
		return nil
	}

	// 无论重试结果如何都交还调用方，不再循环
	return m.sendRetry(ctx, original, tok, p)
}

// InjectCached 对命中配置且缓存中已有令牌的出站请求做前瞻注入。
// 第二个返回值指示是否发生了注入。
func (m *Manager) InjectCached(req *domain.Request) (*domain.Request, bool) {
	if req == nil {
		return nil, false
	}
	p := m.matcher.FindURL(req.URL)
	if p == nil {
		return req, false
	}
	host := req.Host()
	tok, ok := m.cache.Get(host)
	if !ok {
		return req, false
	}

	out := injector.Inject(req, tok, p.Injection)
	m.injections.Add(1)
	m.recorder.Record(domain.EventTokenInjected, host, p.URLPattern, tok.SourceName)
	m.log.Debug("前瞻注入缓存令牌", "host", host, "sourceName", tok.SourceName)
	return out, true
}

// LoginAndGetToken 按需登录：加锁、过限速闸门、登录并提取缓存令牌。
// 供手工注入等无未授权响应前置的工作流使用。
func (m *Manager) LoginAndGetToken(ctx context.Context, p *profile.AuthProfile) (domain.ExtractedToken, error) {
	if p == nil {
		return domain.ExtractedToken{}, errx.Wrap(errx.CodeNoMatchingProfile, domain.ErrProfileNotFound, "no profile")
	}
	host := TargetHost(p)

	lock := m.hostLock(host)
	lock.Lock()
	defer lock.Unlock()

	if !m.limiter.IsAllowed(host) {
		wait := m.limiter.RemainingWait(host)
		m.rateLimited.Add(1)
		m.recorder.Record(domain.EventRateLimited, host, p.URLPattern,
			fmt.Sprintf("next login allowed in %dms", wait.Milliseconds()))
		return domain.ExtractedToken{}, errx.New(errx.CodeRateLimited,
			fmt.Sprintf("login rate limited for %s, retry in %dms", host, wait.Milliseconds()))
	}

	return m.login(ctx, p, host)
}

// login 执行一次完整的登录交换：记录尝试、发送登录、提取并缓存令牌。
// 调用方必须已持有该主机的锁。
func (m *Manager) login(ctx context.Context, p *profile.AuthProfile, host string) (domain.ExtractedToken, error) {
	var zero domain.ExtractedToken
	if m.sender == nil {
		return zero, errors.New("transport not configured")
	}

	loginReq, err := BuildLoginRequest(p)
	if err != nil {
		return zero, m.failLogin(host, p, errx.Wrap(errx.CodeConfigInvalid, err, "build login request"))
	}
	marker.Mark(loginReq)

	// 尝试记录必须先于网络调用，防止重叠的慢登录同时通过闸门
	m.limiter.RecordAttempt(host)

	resp, err := m.sender.Do(ctx, loginReq)
	if err != nil {
		return zero, m.failLogin(host, p, errx.Wrap(errx.CodeLoginTransportFailure, err, "send login request"))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, m.failLogin(host, p, errx.New(errx.CodeLoginStatusFailure, fmt.Sprintf("login status %d", resp.StatusCode)))
	}

	tok, ok := extractor.Extract(resp, p.Extraction)
	if !ok {
		return zero, m.failLogin(host, p, errx.Wrap(errx.CodeExtractionFailure, domain.ErrNoToken, host))
	}

	m.logins.Add(1)
	m.cache.Put(host, tok)
	m.recorder.Record(domain.EventLoginSuccess, host, p.URLPattern, model.MaskToken(tok.Value))
	m.recorder.Record(domain.EventTokenCached, host, p.URLPattern,
		string(tok.SourceKind)+"/"+tok.SourceName)
	m.log.Info("登录成功并缓存令牌", "host", host,
		"sourceKind", string(tok.SourceKind), "sourceName", tok.SourceName,
		"token", model.MaskToken(tok.Value))
	return tok, nil
}

// failLogin 统一登录失败的计数、事件与日志
func (m *Manager) failLogin(host string, p *profile.AuthProfile, err error) error {
	m.loginFailed.Add(1)
	m.recorder.Record(domain.EventLoginFailure, host, p.URLPattern, err.Error())
	m.log.Warn("登录交换失败", "host", host, "err", err)
	return err
}

// sendRetry 将令牌注入原请求并发送重试，网络失败时返回 nil
func (m *Manager) sendRetry(ctx context.Context, original *domain.Request, tok domain.ExtractedToken, p *profile.AuthProfile) *domain.Response {
	if m.sender == nil {
		m.log.Warn("重试跳过：传输层未配置", "url", original.URL)
		return nil
	}

	retry := injector.Inject(original, tok, p.Injection)
	marker.Mark(retry)
	m.injections.Add(1)

	resp, err := m.sender.Do(ctx, retry)
	if err != nil {
		m.log.Warn("重试请求发送失败", "host", original.Host(),
			"err", errx.Wrap(errx.CodeRetryTransportFailure, err, original.URL))
		return nil
	}
	return resp
}

// hostLock 获取主机锁，懒创建
func (m *Manager) hostLock(host string) *sync.Mutex {
	v, _ := m.hostLocks.LoadOrStore(host, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// bumpHost 累加主机维度的未授权触发计数
func (m *Manager) bumpHost(host string) {
	m.byHostMu.Lock()
	m.byHost[host]++
	m.byHostMu.Unlock()
}

// CachedToken 查询主机的缓存令牌
func (m *Manager) CachedToken(host string) (domain.ExtractedToken, bool) {
	return m.cache.Get(host)
}

// CacheEntries 返回全部缓存条目的掩码视图
func (m *Manager) CacheEntries() []model.CacheEntry {
	hosts := m.cache.Hosts()
	out := make([]model.CacheEntry, 0, len(hosts))
	for _, host := range hosts {
		entry, ok := m.cache.GetEntry(host)
		if !ok {
			continue
		}
		out = append(out, model.CacheEntry{
			Host:       host,
			TokenMask:  model.MaskToken(entry.Token.Value),
			SourceKind: string(entry.Token.SourceKind),
			SourceName: entry.Token.SourceName,
			CachedAt:   entry.CachedAt,
		})
	}
	return out
}

// ClearCache 清除单个主机的缓存令牌
func (m *Manager) ClearCache(host string) {
	m.cache.Delete(host)
	m.recorder.Record(domain.EventCacheCleared, host, "", "")
	m.log.Info("清除主机令牌缓存", "host", host)
}

// ClearAllCache 清空全部缓存令牌。限速记录保持不变，清缓存不能绕过登录间隔。
func (m *Manager) ClearAllCache() {
	m.cache.Clear()
	m.recorder.Record(domain.EventCacheCleared, "", "", "all hosts")
	m.log.Info("清空全部令牌缓存")
}

// HostStatuses 汇总出现过的主机及其令牌与登录尝试状态
func (m *Manager) HostStatuses() []model.HostStatus {
	seen := make(map[string]bool)
	for _, h := range m.cache.Hosts() {
		seen[h] = true
	}
	for _, h := range m.limiter.Hosts() {
		seen[h] = true
	}
	hosts := make([]string, 0, len(seen))
	for h := range seen {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)

	out := make([]model.HostStatus, 0, len(hosts))
	for _, h := range hosts {
		_, hasToken := m.cache.Get(h)
		out = append(out, model.HostStatus{
			Host:        h,
			HasToken:    hasToken,
			LastAttempt: m.limiter.LastAttempt(h),
		})
	}
	return out
}

// Stats 返回引擎累计运行统计
func (m *Manager) Stats() model.EngineStats {
	m.byHostMu.Lock()
	byHost := make(map[string]int64, len(m.byHost))
	for k, v := range m.byHost {
		byHost[k] = v
	}
	m.byHostMu.Unlock()

	return model.EngineStats{
		Unauthorized: m.unauthorized.Load(),
		Logins:       m.logins.Load(),
		LoginFailed:  m.loginFailed.Load(),
		CacheHits:    m.cacheHits.Load(),
		Injections:   m.injections.Load(),
		RateLimited:  m.rateLimited.Load(),
		ByHost:       byHost,
	}
}

// TargetHost 返回配置保护的目标主机，即缓存、锁与限速共用的键。
// 取模式的主机段并去掉通配前缀；模式为空时退回登录地址的主机。
func TargetHost(p *profile.AuthProfile) string {
	pattern := strings.TrimSpace(p.URLPattern)
	host := pattern
	if i := strings.Index(pattern, "/"); i >= 0 {
		host = pattern[:i]
	}
	host = strings.ToLower(strings.TrimPrefix(host, "*."))
	if host == "" {
		host = domain.HostOf(p.LoginURL)
	}
	return host
}
