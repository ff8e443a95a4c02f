// Package service 组装重认证引擎的全部组件并实现对外服务接口
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"reauth/internal/audit"
	"reauth/internal/auth"
	"reauth/internal/handler"
	"reauth/internal/jsonutil"
	"reauth/internal/logger"
	"reauth/internal/manual"
	"reauth/internal/matcher"
	"reauth/internal/ratelimit"
	"reauth/internal/storage/repo"
	"reauth/internal/tokencache"
	"reauth/internal/transport"
	"reauth/pkg/domain"
	"reauth/pkg/errx"
	"reauth/pkg/model"
	"reauth/pkg/profile"

	"github.com/google/uuid"
)

type svc struct {
	profiles *repo.ProfileRepo
	settings *repo.SettingsRepo
	history  *repo.InjectionRepo

	matcher  *matcher.Matcher
	limiter  *ratelimit.Limiter
	cache    *tokencache.Cache
	events   chan domain.AuthEvent
	recorder *audit.Recorder
	auth     *auth.Manager
	handler  *handler.Handler
	manual   *manual.Service

	log logger.Logger

	closeOnce sync.Once
}

// Config 配置选项
type Config struct {
	// Profiles 认证配置档案仓库，可为空（纯内存运行）
	Profiles *repo.ProfileRepo
	// Settings 引擎设置仓库，可为空（使用内置默认值）
	Settings *repo.SettingsRepo
	// History 注入历史仓库，可为空（不落地历史）
	History *repo.InjectionRepo
	// Sender 登录与重试请求的发送器，缺省使用内置 HTTP 客户端
	Sender transport.Sender
	// EventBufferSize 事件通道容量
	EventBufferSize int
	Logger          logger.Logger
}

// injectionHistory 把注入历史仓库适配为手工注入服务的落地接口
type injectionHistory struct {
	repo *repo.InjectionRepo
}

func (h injectionHistory) Record(rec *model.InjectionRecord) { h.repo.Record(rec) }

func (h injectionHistory) Clear(ctx context.Context) error { return h.repo.ClearAll(ctx) }

// New 创建服务层实例：加载持久化的设置与档案，装配匹配器、限速器、
// 缓存、事件流、编排器、拦截钩子与手工注入服务
func New(ctx context.Context, cfg Config) (*svc, error) {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 256
	}
	if cfg.Sender == nil {
		cfg.Sender = transport.NewClient(transport.Options{Logger: l})
	}

	enabled := true
	intervalMS := profile.DefaultRateLimitIntervalMS
	if cfg.Settings != nil {
		enabled = cfg.Settings.GetGlobalEnabled(ctx)
		intervalMS = cfg.Settings.GetRateLimitIntervalMS(ctx)
	}

	var profiles []*profile.AuthProfile
	if cfg.Profiles != nil {
		var err error
		profiles, err = cfg.Profiles.LoadAll(ctx)
		if err != nil {
			return nil, errx.Wrap(errx.CodeStorageFailure, err, "load profiles")
		}
	}

	m := matcher.New(profiles)
	limiter := ratelimit.New(intervalMS)
	cache := tokencache.New()
	events := make(chan domain.AuthEvent, cfg.EventBufferSize)
	recorder := audit.New(events, l)

	mgr := auth.New(auth.Config{
		Matcher:  m,
		Sender:   cfg.Sender,
		Limiter:  limiter,
		Cache:    cache,
		Recorder: recorder,
		Logger:   l,
	})

	h := handler.New(handler.Config{
		Manager: mgr,
		Matcher: m,
		Enabled: enabled,
		Logger:  l,
	})

	var hist manual.History
	if cfg.History != nil {
		hist = injectionHistory{repo: cfg.History}
	}
	man := manual.New(manual.Config{
		Auth:    mgr,
		History: hist,
		Logger:  l,
	})

	s := &svc{
		profiles: cfg.Profiles,
		settings: cfg.Settings,
		history:  cfg.History,
		matcher:  m,
		limiter:  limiter,
		cache:    cache,
		events:   events,
		recorder: recorder,
		auth:     mgr,
		handler:  h,
		manual:   man,
		log:      l,
	}

	// 手工注入完成后同步发布引擎事件，供订阅方观察
	man.AddListener(func(rec model.InjectionRecord) {
		recorder.Record(domain.EventManualInjection,
			domain.HostOf(rec.RequestURL), rec.Pattern, rec.TokenPreview)
	})

	s.log.Info("重认证服务已装配", "profiles", len(profiles),
		"enabled", enabled, "intervalMS", intervalMS)
	return s, nil
}

// HandleRequest 出站请求钩子，透传拦截层的改写决策
func (s *svc) HandleRequest(req *domain.Request) (*domain.Request, bool) {
	return s.handler.HandleRequest(req)
}

// HandleResponse 入站响应钩子，透传拦截层的替换决策
func (s *svc) HandleResponse(ctx context.Context, req *domain.Request, resp *domain.Response) (*domain.Response, bool) {
	return s.handler.HandleResponse(ctx, req, resp)
}

// ListProfiles 列出全部认证配置概览
func (s *svc) ListProfiles(ctx context.Context) ([]model.ProfileView, error) {
	if s.profiles == nil {
		return nil, nil
	}
	records, err := s.profiles.List(ctx)
	if err != nil {
		return nil, errx.Wrap(errx.CodeStorageFailure, err, "list profiles")
	}

	views := make([]model.ProfileView, 0, len(records))
	for i := range records {
		p, err := s.profiles.ToProfile(&records[i])
		if err != nil {
			s.log.Warn("解析认证配置失败，已跳过", "profile", records[i].ProfileID, "error", err)
			continue
		}
		if p == nil {
			continue
		}
		views = append(views, toView(p, records[i].UpdatedAt))
	}
	return views, nil
}

// GetProfile 按业务 ID 获取完整认证配置
func (s *svc) GetProfile(ctx context.Context, profileID string) (*profile.AuthProfile, error) {
	return s.loadProfile(ctx, profileID)
}

// SaveProfile 校验并保存认证配置，随后刷新匹配器。
// ID 为空时视作新建并分配 UUID。
func (s *svc) SaveProfile(ctx context.Context, p *profile.AuthProfile) (model.ProfileView, error) {
	if p == nil {
		return model.ProfileView{}, errx.New(errx.CodeConfigInvalid, "empty profile")
	}
	if s.profiles == nil {
		return model.ProfileView{}, errx.New(errx.CodeStorageFailure, "profile store not configured")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := p.Validate(); err != nil {
		return model.ProfileView{}, errx.Wrap(errx.CodeConfigInvalid, err, "validate profile")
	}

	record, err := s.profiles.Upsert(ctx, p)
	if err != nil {
		return model.ProfileView{}, errx.Wrap(errx.CodeStorageFailure, err, "save profile")
	}
	if err := s.refreshMatcher(ctx); err != nil {
		return model.ProfileView{}, err
	}

	s.log.Info("认证配置已保存", "profile", p.ID, "pattern", p.URLPattern)
	return toView(p, record.UpdatedAt), nil
}

// DeleteProfile 删除认证配置并刷新匹配器
func (s *svc) DeleteProfile(ctx context.Context, profileID string) error {
	if s.profiles == nil {
		return errx.New(errx.CodeStorageFailure, "profile store not configured")
	}
	if err := s.profiles.DeleteByProfileID(ctx, profileID); err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return errx.New(errx.CodeProfileNotFound, profileID)
		}
		return errx.Wrap(errx.CodeStorageFailure, err, "delete profile")
	}
	if err := s.refreshMatcher(ctx); err != nil {
		return err
	}
	s.log.Info("认证配置已删除", "profile", profileID)
	return nil
}

// SetProfileEnabled 切换单个配置的启用状态并刷新匹配器
func (s *svc) SetProfileEnabled(ctx context.Context, profileID string, enabled bool) error {
	if s.profiles == nil {
		return errx.New(errx.CodeStorageFailure, "profile store not configured")
	}
	if err := s.profiles.SetEnabled(ctx, profileID, enabled); err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return errx.New(errx.CodeProfileNotFound, profileID)
		}
		return errx.Wrap(errx.CodeStorageFailure, err, "toggle profile")
	}
	if err := s.refreshMatcher(ctx); err != nil {
		return err
	}
	s.log.Info("认证配置启用状态已更新", "profile", profileID, "enabled", enabled)
	return nil
}

// Settings 返回当前生效的引擎设置
func (s *svc) Settings() model.EngineSettings {
	return model.EngineSettings{
		GlobalEnabled:       s.handler.Enabled(),
		RateLimitIntervalMS: s.limiter.Interval(),
	}
}

// SetGlobalEnabled 持久化并应用全局开关
func (s *svc) SetGlobalEnabled(ctx context.Context, enabled bool) error {
	if s.settings != nil {
		if err := s.settings.SetGlobalEnabled(ctx, enabled); err != nil {
			return errx.Wrap(errx.CodeStorageFailure, err, "persist global switch")
		}
	}
	s.handler.SetEnabled(enabled)
	return nil
}

// SetRateLimitInterval 持久化并应用登录限速间隔（毫秒）
func (s *svc) SetRateLimitInterval(ctx context.Context, intervalMS int64) error {
	if intervalMS <= 0 {
		return errx.New(errx.CodeConfigInvalid, "interval must be positive")
	}
	if s.settings != nil {
		if err := s.settings.SetRateLimitIntervalMS(ctx, intervalMS); err != nil {
			return errx.Wrap(errx.CodeStorageFailure, err, "persist rate limit interval")
		}
	}
	s.limiter.SetInterval(intervalMS)
	s.log.Info("登录限速间隔已更新", "intervalMS", intervalMS)
	return nil
}

// CacheEntries 列出全部缓存令牌的脱敏概览
func (s *svc) CacheEntries() []model.CacheEntry {
	return s.auth.CacheEntries()
}

// HostStatuses 返回各主机的缓存与登录尝试状态
func (s *svc) HostStatuses() []model.HostStatus {
	return s.auth.HostStatuses()
}

// ClearCache 清除单个主机的自动缓存令牌
func (s *svc) ClearCache(host string) {
	s.auth.ClearCache(host)
}

// ClearAllCache 清空自动缓存与手工缓存
func (s *svc) ClearAllCache() {
	s.auth.ClearAllCache()
	s.manual.ClearCache()
}

// TestLogin 对指定配置试跑一次登录交换，不产生缓存副作用
func (s *svc) TestLogin(ctx context.Context, profileID string) (model.LoginTestResult, error) {
	p, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return model.LoginTestResult{}, err
	}
	return s.auth.TestLogin(ctx, p), nil
}

// TriggerLogin 对指定配置执行一次按需登录并缓存令牌，返回脱敏的缓存条目
func (s *svc) TriggerLogin(ctx context.Context, profileID string) (model.CacheEntry, error) {
	p, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return model.CacheEntry{}, err
	}
	tok, err := s.manual.TriggerLogin(ctx, p)
	if err != nil {
		return model.CacheEntry{}, err
	}
	return model.CacheEntry{
		Host:       auth.TargetHost(p),
		TokenMask:  model.MaskToken(tok.Value),
		SourceKind: string(tok.SourceKind),
		SourceName: tok.SourceName,
		CachedAt:   time.Now().UnixMilli(),
	}, nil
}

// ManualInject 在请求字节的选区上拼接指定配置的令牌
func (s *svc) ManualInject(ctx context.Context, profileID string, requestBytes []byte, selStart, selEnd int, requestURL string) ([]byte, *model.InjectionRecord, error) {
	p, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return nil, nil, err
	}
	return s.manual.InjectToken(ctx, requestBytes, selStart, selEnd, p, requestURL)
}

// History 分页查询手工注入历史，按时间倒序
func (s *svc) History(ctx context.Context, q model.InjectionQuery) (model.InjectionHistory, error) {
	if s.history == nil {
		return model.InjectionHistory{Items: []model.InjectionRecord{}}, nil
	}
	records, total, err := s.history.Query(ctx, repo.InjectionQuery{
		Pattern:   q.Pattern,
		URL:       q.URL,
		StartTime: q.StartTime,
		EndTime:   q.EndTime,
		Offset:    q.Offset,
		Limit:     q.Limit,
	})
	if err != nil {
		return model.InjectionHistory{}, errx.Wrap(errx.CodeStorageFailure, err, "query history")
	}

	items := make([]model.InjectionRecord, 0, len(records))
	for i := range records {
		items = append(items, *s.history.ToRecord(&records[i]))
	}
	return model.InjectionHistory{Items: items, Total: total}, nil
}

// ClearHistory 清空手工注入历史
func (s *svc) ClearHistory(ctx context.Context) error {
	if err := s.manual.ClearHistory(ctx); err != nil {
		return errx.Wrap(errx.CodeStorageFailure, err, "clear history")
	}
	return nil
}

// ExportConfig 导出完整引擎配置（全局设置与全部档案）
func (s *svc) ExportConfig(ctx context.Context) (*profile.Config, error) {
	cfg := profile.NewConfig()
	cfg.GlobalEnabled = s.handler.Enabled()
	cfg.RateLimitIntervalMS = s.limiter.Interval()
	if s.profiles != nil {
		profiles, err := s.profiles.LoadAll(ctx)
		if err != nil {
			return nil, errx.Wrap(errx.CodeStorageFailure, err, "load profiles")
		}
		cfg.Profiles = profiles
	}
	return cfg, nil
}

// ImportConfig 按档案业务 ID 合并导入配置：已有档案覆盖，新档案追加，
// 未出现在导入内容中的档案保持不变
func (s *svc) ImportConfig(ctx context.Context, cfg *profile.Config) error {
	if cfg == nil {
		return errx.New(errx.CodeConfigInvalid, "empty config")
	}
	if s.profiles == nil {
		return errx.New(errx.CodeStorageFailure, "profile store not configured")
	}

	// 全量预检，任何一条不合法都整体拒绝
	for _, p := range cfg.Profiles {
		if p == nil {
			return errx.New(errx.CodeConfigInvalid, "nil profile in config")
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if err := p.Validate(); err != nil {
			return errx.Wrap(errx.CodeConfigInvalid, err, p.URLPattern)
		}
	}

	for _, p := range cfg.Profiles {
		if _, err := s.profiles.Upsert(ctx, p); err != nil {
			return errx.Wrap(errx.CodeStorageFailure, err, "import profile "+p.ID)
		}
	}
	if err := s.SetGlobalEnabled(ctx, cfg.GlobalEnabled); err != nil {
		return err
	}
	if cfg.RateLimitIntervalMS > 0 {
		if err := s.SetRateLimitInterval(ctx, cfg.RateLimitIntervalMS); err != nil {
			return err
		}
	}
	if err := s.refreshMatcher(ctx); err != nil {
		return err
	}

	s.log.Info("引擎配置导入完成", "profiles", len(cfg.Profiles))
	return nil
}

// FlattenJSON 把 JSON 文本展开为 路径 -> 叶子值 的有序列表
func (s *svc) FlattenJSON(body string) []model.JSONField {
	fields := jsonutil.Flatten(body)
	out := make([]model.JSONField, 0, len(fields))
	for _, f := range fields {
		out = append(out, model.JSONField{Path: f.Path, Value: f.Value})
	}
	return out
}

// SubscribeEvents 订阅引擎事件流，通道满时事件被丢弃
func (s *svc) SubscribeEvents() <-chan domain.AuthEvent {
	return s.events
}

// Stats 返回引擎累计计数
func (s *svc) Stats() model.EngineStats {
	return s.auth.Stats()
}

// Enabled 返回引擎全局开关状态
func (s *svc) Enabled() bool {
	return s.handler.Enabled()
}

// Close 停止后台写入并刷新未落地的注入历史
func (s *svc) Close() error {
	s.closeOnce.Do(func() {
		if s.history != nil {
			s.history.Stop()
		}
		s.log.Info("重认证服务已关闭")
	})
	return nil
}

// loadProfile 按业务 ID 装载档案，不存在时返回带业务码的错误
func (s *svc) loadProfile(ctx context.Context, profileID string) (*profile.AuthProfile, error) {
	if s.profiles == nil {
		return nil, errx.New(errx.CodeProfileNotFound, profileID)
	}
	record, err := s.profiles.GetByProfileID(ctx, profileID)
	if err != nil {
		return nil, errx.Wrap(errx.CodeStorageFailure, err, "load profile")
	}
	if record == nil {
		return nil, errx.New(errx.CodeProfileNotFound, profileID)
	}
	p, err := s.profiles.ToProfile(record)
	if err != nil {
		return nil, errx.Wrap(errx.CodeStorageFailure, err, "decode profile")
	}
	if p == nil {
		return nil, errx.New(errx.CodeProfileNotFound, profileID)
	}
	return p, nil
}

// refreshMatcher 从存储重载全部档案并替换匹配器的活动集合
func (s *svc) refreshMatcher(ctx context.Context) error {
	profiles, err := s.profiles.LoadAll(ctx)
	if err != nil {
		return errx.Wrap(errx.CodeStorageFailure, err, "reload profiles")
	}
	s.matcher.Update(profiles)
	return nil
}

func toView(p *profile.AuthProfile, updatedAt time.Time) model.ProfileView {
	return model.ProfileView{
		ID:          p.ID,
		Enabled:     p.Enabled,
		URLPattern:  p.URLPattern,
		LoginURL:    p.LoginURL,
		LoginMethod: p.LoginMethod,
		AutoExtract: p.Extraction.AutoDetect,
		AutoInject:  p.Injection.AutoDetect,
		HasTemplate: p.RawRequest != "",
		UpdatedAt:   updatedAt.UnixMilli(),
	}
}
