package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reauth/internal/storage/model"
	"reauth/pkg/domain"
	"reauth/pkg/profile"

	"gorm.io/gorm"
)

// ProfileRepo 认证配置档案仓库，档案以规范化 JSON 存储并以业务 ID 索引
type ProfileRepo struct {
	BaseRepository[model.ProfileRecord]
}

// NewProfileRepo 创建配置档案仓库实例
func NewProfileRepo(db *gorm.DB) *ProfileRepo {
	return &ProfileRepo{
		BaseRepository: *NewBaseRepository[model.ProfileRecord](db),
	}
}

// Create 创建新档案
func (r *ProfileRepo) Create(ctx context.Context, p *profile.AuthProfile) (*model.ProfileRecord, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%w: 档案缺少 ID", domain.ErrInvalidProfile)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	profileJSON, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("序列化档案失败: %w", err)
	}

	record := &model.ProfileRecord{
		ProfileID:   p.ID,
		URLPattern:  p.URLPattern,
		Enabled:     p.Enabled,
		ProfileJSON: string(profileJSON),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := r.Db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// Update 更新档案（按数据库 ID）
func (r *ProfileRepo) Update(ctx context.Context, dbID uint, p *profile.AuthProfile) error {
	if p.ID == "" {
		return fmt.Errorf("%w: 档案缺少 ID", domain.ErrInvalidProfile)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	profileJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("序列化档案失败: %w", err)
	}

	return r.Db.WithContext(ctx).Model(&model.ProfileRecord{}).Where("id = ?", dbID).Updates(map[string]any{
		"profile_id":   p.ID,
		"url_pattern":  p.URLPattern,
		"enabled":      p.Enabled,
		"profile_json": string(profileJSON),
		"updated_at":   time.Now(),
	}).Error
}

// GetByProfileID 根据档案业务 ID 获取记录，不存在时返回 nil
func (r *ProfileRepo) GetByProfileID(ctx context.Context, profileID string) (*model.ProfileRecord, error) {
	var record model.ProfileRecord
	if err := r.Db.WithContext(ctx).Where("profile_id = ?", profileID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// List 列出所有档案记录
func (r *ProfileRepo) List(ctx context.Context) ([]model.ProfileRecord, error) {
	var records []model.ProfileRecord
	if err := r.Db.WithContext(ctx).Order("updated_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Upsert 保存档案（根据业务 ID 判断覆盖或新增）
func (r *ProfileRepo) Upsert(ctx context.Context, p *profile.AuthProfile) (*model.ProfileRecord, error) {
	existing, err := r.GetByProfileID(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if err := r.Update(ctx, existing.ID, p); err != nil {
			return nil, err
		}
		return r.FindOne(ctx, existing.ID)
	}

	return r.Create(ctx, p)
}

// SetEnabled 切换档案启用状态（同步更新记录列和 JSON 内容）
func (r *ProfileRepo) SetEnabled(ctx context.Context, profileID string, enabled bool) error {
	record, err := r.GetByProfileID(ctx, profileID)
	if err != nil {
		return err
	}
	if record == nil {
		return domain.ErrProfileNotFound
	}

	p, err := r.ToProfile(record)
	if err != nil {
		return err
	}

	p.Enabled = enabled
	profileJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("序列化档案失败: %w", err)
	}

	return r.Db.WithContext(ctx).Model(&model.ProfileRecord{}).Where("id = ?", record.ID).Updates(map[string]any{
		"enabled":      enabled,
		"profile_json": string(profileJSON),
		"updated_at":   time.Now(),
	}).Error
}

// DeleteByProfileID 根据业务 ID 删除档案
func (r *ProfileRepo) DeleteByProfileID(ctx context.Context, profileID string) error {
	result := r.Db.WithContext(ctx).Where("profile_id = ?", profileID).Delete(&model.ProfileRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

// ToProfile 将记录转换为 profile.AuthProfile
func (r *ProfileRepo) ToProfile(record *model.ProfileRecord) (*profile.AuthProfile, error) {
	if record == nil || record.ProfileJSON == "" {
		return nil, nil
	}

	var p profile.AuthProfile
	if err := json.Unmarshal([]byte(record.ProfileJSON), &p); err != nil {
		return nil, fmt.Errorf("解析档案失败: %w", err)
	}
	return &p, nil
}

// LoadAll 加载所有档案，供引擎启动时构建内存配置
func (r *ProfileRepo) LoadAll(ctx context.Context) ([]*profile.AuthProfile, error) {
	records, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	profiles := make([]*profile.AuthProfile, 0, len(records))
	for i := range records {
		p, err := r.ToProfile(&records[i])
		if err != nil {
			return nil, fmt.Errorf("档案 %s: %w", records[i].ProfileID, err)
		}
		if p != nil {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}
