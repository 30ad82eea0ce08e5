package repository

import (
	"context"

	"bunker-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProjectRepository 定义了项目数据的持久化操作。
// 项目的完整 CRUD 属于仪表盘外围，这里只保留会话路由需要的部分。
type ProjectRepository interface {
	Create(ctx context.Context, project *model.Project) error
	FindByID(ctx context.Context, id string) (*model.Project, error)
}

// projectRepository 是 ProjectRepository 接口的 GORM 实现。
type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository 创建一个新的 ProjectRepository 实例。
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

// Create 在数据库中创建一个新的项目记录。
func (r *projectRepository) Create(ctx context.Context, project *model.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(project).Error
}

// FindByID 根据项目 ID 查找一个项目。
func (r *projectRepository) FindByID(ctx context.Context, id string) (*model.Project, error) {
	var project model.Project
	err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}
