package repository

import (
	"context"

	"bunker-go/internal/model"

	"gorm.io/gorm"
)

// SettingRepository 定义了应用设置与第三方接入记录的只读访问。
// 核心只消费这些配置，不负责写入（写入属于设置界面的外围功能）。
type SettingRepository interface {
	// GetValue 返回设置项的值；不存在时返回空串而不是错误。
	GetValue(ctx context.Context, key string) (string, error)
	// IntegrationConfig 返回某个接入方的原始 JSON 配置；不存在时返回空串。
	IntegrationConfig(ctx context.Context, provider string) (string, error)
}

// settingRepository 是 SettingRepository 接口的 GORM 实现。
type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository 创建一个新的 SettingRepository 实例。
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

// GetValue 返回设置项的值。
func (r *settingRepository) GetValue(ctx context.Context, key string) (string, error) {
	var setting model.Setting
	err := r.db.WithContext(ctx).First(&setting, "`key` = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// IntegrationConfig 返回某个接入方的原始 JSON 配置。
func (r *settingRepository) IntegrationConfig(ctx context.Context, provider string) (string, error) {
	var integration model.Integration
	err := r.db.WithContext(ctx).First(&integration, "provider = ?", provider).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return integration.Config, nil
}
