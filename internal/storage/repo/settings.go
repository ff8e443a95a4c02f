package repo

import (
	"context"
	"strconv"
	"time"

	"reauth/internal/storage/model"
	"reauth/pkg/profile"

	"gorm.io/gorm"
)

// SettingsRepo 设置仓库
type SettingsRepo struct {
	BaseRepository[model.Setting]
}

// NewSettingsRepo 创建设置仓库实例
func NewSettingsRepo(db *gorm.DB) *SettingsRepo {
	return &SettingsRepo{
		BaseRepository: *NewBaseRepository[model.Setting](db),
	}
}

// Get 获取设置值
func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	var setting model.Setting
	result := r.Db.WithContext(ctx).Where("key = ?", key).First(&setting)
	if result.Error != nil {
		return "", result.Error
	}
	return setting.Value, nil
}

// GetWithDefault 获取设置值，不存在时返回默认值
func (r *SettingsRepo) GetWithDefault(ctx context.Context, key, defaultValue string) string {
	val, err := r.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	return val
}

// Set 设置值（存在则更新，不存在则创建）
func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	setting := model.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return r.Db.WithContext(ctx).Save(&setting).Error
}

// DeleteByKey 根据 key 删除设置
func (r *SettingsRepo) DeleteByKey(ctx context.Context, key string) error {
	return r.Db.WithContext(ctx).Delete(&model.Setting{}, "key = ?", key).Error
}

// GetAll 获取所有设置
func (r *SettingsRepo) GetAll(ctx context.Context) (map[string]string, error) {
	var settings []model.Setting
	if err := r.Db.WithContext(ctx).Find(&settings).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, s := range settings {
		result[s.Key] = s.Value
	}
	return result, nil
}

// SetMultiple 批量设置
func (r *SettingsRepo) SetMultiple(ctx context.Context, kvs map[string]string) error {
	return r.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for key, value := range kvs {
			setting := model.Setting{
				Key:       key,
				Value:     value,
				UpdatedAt: now,
			}
			if err := tx.Save(&setting).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetGlobalEnabled 获取全局开关，未设置时默认开启
func (r *SettingsRepo) GetGlobalEnabled(ctx context.Context) bool {
	val := r.GetWithDefault(ctx, model.SettingKeyGlobalEnabled, "true")
	enabled, err := strconv.ParseBool(val)
	if err != nil {
		return true
	}
	return enabled
}

// SetGlobalEnabled 设置全局开关
func (r *SettingsRepo) SetGlobalEnabled(ctx context.Context, enabled bool) error {
	return r.Set(ctx, model.SettingKeyGlobalEnabled, strconv.FormatBool(enabled))
}

// GetRateLimitIntervalMS 获取登录限速间隔（毫秒），未设置或非法时返回默认值
func (r *SettingsRepo) GetRateLimitIntervalMS(ctx context.Context) int64 {
	val := r.GetWithDefault(ctx, model.SettingKeyRateLimitIntervalMS, "")
	if val == "" {
		return profile.DefaultRateLimitIntervalMS
	}
	interval, err := strconv.ParseInt(val, 10, 64)
	if err != nil || interval <= 0 {
		return profile.DefaultRateLimitIntervalMS
	}
	return interval
}

// SetRateLimitIntervalMS 设置登录限速间隔（毫秒）
func (r *SettingsRepo) SetRateLimitIntervalMS(ctx context.Context, intervalMS int64) error {
	return r.Set(ctx, model.SettingKeyRateLimitIntervalMS, strconv.FormatInt(intervalMS, 10))
}
