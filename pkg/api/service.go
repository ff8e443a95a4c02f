package api

import (
	"context"

	"reauth/internal/logger"
	"reauth/internal/service"
	"reauth/internal/storage/repo"
	"reauth/internal/transport"
	"reauth/pkg/domain"
	"reauth/pkg/model"
	"reauth/pkg/profile"
)

// Service 服务接口
type Service interface {
	// HandleRequest 出站请求钩子：擦除哨兵或注入缓存令牌，
	// 返回 true 时调用方应改发返回的请求
	HandleRequest(req *domain.Request) (*domain.Request, bool)

	// HandleResponse 入站响应钩子：未授权响应触发重认证，
	// 返回 true 时调用方应以返回的响应替换原响应
	HandleResponse(ctx context.Context, req *domain.Request, resp *domain.Response) (*domain.Response, bool)

	// ListProfiles 列出全部认证配置概览
	ListProfiles(ctx context.Context) ([]model.ProfileView, error)

	// GetProfile 获取完整认证配置
	GetProfile(ctx context.Context, profileID string) (*profile.AuthProfile, error)

	// SaveProfile 校验并保存认证配置
	SaveProfile(ctx context.Context, p *profile.AuthProfile) (model.ProfileView, error)

	// DeleteProfile 删除认证配置
	DeleteProfile(ctx context.Context, profileID string) error

	// SetProfileEnabled 切换配置启用状态
	SetProfileEnabled(ctx context.Context, profileID string, enabled bool) error

	// Settings 返回当前生效的引擎设置
	Settings() model.EngineSettings

	// SetGlobalEnabled 设置全局开关
	SetGlobalEnabled(ctx context.Context, enabled bool) error

	// SetRateLimitInterval 设置登录限速间隔（毫秒）
	SetRateLimitInterval(ctx context.Context, intervalMS int64) error

	// Enabled 返回引擎全局开关状态
	Enabled() bool

	// CacheEntries 列出缓存令牌的脱敏概览
	CacheEntries() []model.CacheEntry

	// HostStatuses 返回各主机的缓存与登录尝试状态
	HostStatuses() []model.HostStatus

	// ClearCache 清除单个主机的缓存令牌
	ClearCache(host string)

	// ClearAllCache 清空全部缓存令牌
	ClearAllCache()

	// TestLogin 试跑一次登录交换，不产生缓存副作用
	TestLogin(ctx context.Context, profileID string) (model.LoginTestResult, error)

	// TriggerLogin 执行一次按需登录并缓存令牌
	TriggerLogin(ctx context.Context, profileID string) (model.CacheEntry, error)

	// ManualInject 在请求字节的选区上拼接令牌
	ManualInject(ctx context.Context, profileID string, requestBytes []byte, selStart, selEnd int, requestURL string) ([]byte, *model.InjectionRecord, error)

	// History 分页查询手工注入历史
	History(ctx context.Context, q model.InjectionQuery) (model.InjectionHistory, error)

	// ClearHistory 清空手工注入历史
	ClearHistory(ctx context.Context) error

	// ExportConfig 导出完整引擎配置
	ExportConfig(ctx context.Context) (*profile.Config, error)

	// ImportConfig 合并导入引擎配置
	ImportConfig(ctx context.Context, cfg *profile.Config) error

	// FlattenJSON 把 JSON 文本展开为路径到叶子值的有序列表
	FlattenJSON(body string) []model.JSONField

	// SubscribeEvents 订阅引擎事件流
	SubscribeEvents() <-chan domain.AuthEvent

	// Stats 返回引擎累计计数
	Stats() model.EngineStats

	// Close 停止后台任务并刷新未落地数据
	Close() error
}

// Config 服务装配参数
type Config struct {
	Profiles        *repo.ProfileRepo
	Settings        *repo.SettingsRepo
	History         *repo.InjectionRepo
	Sender          transport.Sender
	EventBufferSize int
	Logger          logger.Logger
}

// NewService 创建并返回服务接口实现
func NewService(ctx context.Context, cfg Config) (Service, error) {
	return service.New(ctx, service.Config{
		Profiles:        cfg.Profiles,
		Settings:        cfg.Settings,
		History:         cfg.History,
		Sender:          cfg.Sender,
		EventBufferSize: cfg.EventBufferSize,
		Logger:          cfg.Logger,
	})
}
