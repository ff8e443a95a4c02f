// Package profile 定义重认证配置的类型规范
package profile

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"reauth/pkg/domain"
)

// 登录请求字段默认值
const (
	DefaultLoginMethod = "POST"             // 默认登录方法
	DefaultContentType = "application/json" // 默认登录内容类型
)

// DefaultRateLimitIntervalMS 同一主机两次登录尝试之间的最小间隔毫秒数
const DefaultRateLimitIntervalMS int64 = 5000

// 登录体中被替换的凭据占位符
const (
	PlaceholderUsername = "${username}"
	PlaceholderPassword = "${password}"
)

// Config 引擎完整配置：全局开关、限速间隔与全部目标配置
type Config struct {
	GlobalEnabled       bool           `json:"globalEnabled"`       // 全局启用开关
	RateLimitIntervalMS int64          `json:"rateLimitIntervalMS"` // 登录限速间隔（毫秒）
	Profiles            []*AuthProfile `json:"profiles"`            // 目标配置列表
}

// NewConfig 创建一个带默认值的空配置
func NewConfig() *Config {
	return &Config{
		GlobalEnabled:       true,
		RateLimitIntervalMS: DefaultRateLimitIntervalMS,
		Profiles:            []*AuthProfile{},
	}
}

// Clone 深拷贝配置
func (c *Config) Clone() *Config {
	out := &Config{
		GlobalEnabled:       c.GlobalEnabled,
		RateLimitIntervalMS: c.RateLimitIntervalMS,
		Profiles:            make([]*AuthProfile, 0, len(c.Profiles)),
	}
	for _, p := range c.Profiles {
		out.Profiles = append(out.Profiles, p.Clone())
	}
	return out
}

// AuthProfile 单个目标的重认证配置。
// 身份由 URLPattern 决定（hostGlob[/pathGlob]），一次请求至多命中一个配置。
type AuthProfile struct {
	ID          string `json:"id"`          // 配置唯一标识符
	Enabled     bool   `json:"enabled"`     // 是否参与匹配
	URLPattern  string `json:"urlPattern"`  // 匹配模式 hostGlob[/pathGlob]
	LoginURL    string `json:"loginUrl"`    // 登录端点绝对地址
	LoginMethod string `json:"loginMethod"` // 登录请求方法
	ContentType string `json:"contentType"` // 登录请求内容类型
	LoginBody   string `json:"loginBody"`   // 登录体模板，含凭据占位符
	Username    string `json:"username"`
	Password    string `json:"password"`
	// ExtraHeaders 合成登录请求时附加的头部（例如 OAuth2 的 Basic 认证）
	ExtraHeaders map[string]string `json:"extraHeaders,omitempty"`
	// RawRequest 捕获到的原始登录请求文本；非空时优先于字段合成方式
	RawRequest string `json:"rawRequest,omitempty"`
	// RawResponse 捕获到的原始登录响应文本，仅供配置界面参考
	RawResponse string         `json:"rawResponse,omitempty"`
	Extraction  ExtractionSpec `json:"extraction"`
	Injection   InjectionSpec  `json:"injection"`
}

// NewProfile 创建一个带 UUID 和默认值的目标配置
func NewProfile(urlPattern string) *AuthProfile {
	return &AuthProfile{
		ID:           uuid.New().String(),
		Enabled:      true,
		URLPattern:   urlPattern,
		LoginMethod:  DefaultLoginMethod,
		ContentType:  DefaultContentType,
		ExtraHeaders: map[string]string{},
		Extraction:   NewExtractionSpec(),
		Injection:    NewInjectionSpec(),
	}
}

// Clone 深拷贝配置项
func (p *AuthProfile) Clone() *AuthProfile {
	out := *p
	if p.ExtraHeaders != nil {
		out.ExtraHeaders = make(map[string]string, len(p.ExtraHeaders))
		for k, v := range p.ExtraHeaders {
			out.ExtraHeaders[k] = v
		}
	}
	return &out
}

// Validate 校验配置项的自洽性
func (p *AuthProfile) Validate() error {
	if strings.TrimSpace(p.URLPattern) == "" {
		return domain.ErrEmptyPattern
	}
	if !p.Extraction.AutoDetect {
		switch p.Extraction.SourceKind {
		case domain.SourceHeader, domain.SourceCookie, domain.SourceJSONField:
		default:
			return fmt.Errorf("%w: unknown extraction source %q", domain.ErrInvalidProfile, p.Extraction.SourceKind)
		}
	}
	if !p.Injection.AutoDetect {
		switch p.Injection.TargetKind {
		case domain.TargetHeader, domain.TargetCookie, domain.TargetBearer:
		default:
			return fmt.Errorf("%w: unknown injection target %q", domain.ErrInvalidProfile, p.Injection.TargetKind)
		}
	}
	return nil
}

// BuildLoginBody 将凭据占位符替换为配置的用户名和密码
func (p *AuthProfile) BuildLoginBody() string {
	return SubstituteCredentials(p.LoginBody, p.Username, p.Password)
}

// SubstituteCredentials 对任意模板文本做凭据占位符替换
func SubstituteCredentials(template, username, password string) string {
	s := strings.ReplaceAll(template, PlaceholderUsername, username)
	return strings.ReplaceAll(s, PlaceholderPassword, password)
}

// ExtractionSpec 令牌提取规范：自动探测或手工指定来源
type ExtractionSpec struct {
	AutoDetect bool              `json:"autoDetect"`
	SourceKind domain.SourceKind `json:"sourceKind,omitempty"` // 手工模式来源类型
	// Name 头部名、Cookie 名或点分 JSON 路径，随 SourceKind 解释
	Name string `json:"name,omitempty"`
	// 操作者确认过的令牌样例：手工提取落空时的最后回退，自动模式不使用
	SelectionStart int    `json:"selectionStart"`
	SelectionEnd   int    `json:"selectionEnd"`
	SelectedValue  string `json:"selectedValue,omitempty"`
}

// NewExtractionSpec 创建默认提取规范（自动探测）
func NewExtractionSpec() ExtractionSpec {
	return ExtractionSpec{
		AutoDetect:     true,
		SourceKind:     domain.SourceJSONField,
		SelectionStart: -1,
		SelectionEnd:   -1,
	}
}

// HasSelection 是否携带可用的令牌样例
func (s ExtractionSpec) HasSelection() bool {
	return s.SelectionStart >= 0 && s.SelectionEnd > s.SelectionStart && s.SelectedValue != ""
}

// InjectionSpec 令牌注入规范：自动镜像来源或手工指定目标
type InjectionSpec struct {
	AutoDetect bool              `json:"autoDetect"`
	TargetKind domain.TargetKind `json:"targetKind,omitempty"` // 手工模式注入位置
	Name       string            `json:"name,omitempty"`       // 头部名或 Cookie 名
}

// NewInjectionSpec 创建默认注入规范（自动镜像）
func NewInjectionSpec() InjectionSpec {
	return InjectionSpec{
		AutoDetect: true,
		TargetKind: domain.TargetBearer,
	}
}
