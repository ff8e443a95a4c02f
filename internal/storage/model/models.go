package model

import (
	"time"
)

// Setting 引擎设置表
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`  // 设置键
	Value     string    `gorm:"type:text" json:"value"` // 设置值
	UpdatedAt time.Time `json:"updatedAt"`              // 更新时间
}

// 预定义的设置 Key
const (
	SettingKeyGlobalEnabled       = "global_enabled"         // 全局启用开关
	SettingKeyRateLimitIntervalMS = "rate_limit_interval_ms" // 登录限速间隔（毫秒）
)

// ProfileRecord 目标配置表（存储重认证配置）
type ProfileRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`                  // 数据库主键（内部使用）
	ProfileID   string    `gorm:"uniqueIndex;not null" json:"profileId"` // 配置业务ID（唯一索引）
	URLPattern  string    `gorm:"not null" json:"urlPattern"`            // URL 匹配模式
	Enabled     bool      `gorm:"default:true" json:"enabled"`           // 是否参与匹配
	ProfileJSON string    `gorm:"type:text" json:"profileJson"`          // 完整配置 JSON
	CreatedAt   time.Time `json:"createdAt"`                             // 创建时间
	UpdatedAt   time.Time `json:"updatedAt"`                             // 更新时间
}

// InjectionEventRecord 手工注入历史记录表
type InjectionEventRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	RecordID       string    `gorm:"uniqueIndex;not null" json:"recordId"` // 记录业务ID
	RequestURL     string    `json:"requestUrl"`                           // 被编辑请求的地址
	Pattern        string    `gorm:"index" json:"pattern"`                 // 使用的配置模式
	SelectionStart int       `json:"selectionStart"`
	SelectionEnd   int       `json:"selectionEnd"`
	OriginalText   string    `gorm:"type:text" json:"originalText"` // 被替换的原文
	TokenPreview   string    `json:"tokenPreview"`                  // 注入令牌的脱敏预览
	BeforeText     string    `gorm:"type:text" json:"beforeText"`   // 注入前请求报文快照
	AfterText      string    `gorm:"type:text" json:"afterText"`    // 注入后请求报文快照
	Timestamp      int64     `gorm:"index" json:"timestamp"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TableName 指定表名
func (InjectionEventRecord) TableName() string {
	return "injection_event_records"
}
