package repository

import (
	"context"

	"gorm.io/gorm"

	"immersion/backend/internal/model"
)

// JobLogRepository 定时命令执行记录数据访问接口
type JobLogRepository interface {
	Create(ctx context.Context, log *model.JobLog) error
	Update(ctx context.Context, log *model.JobLog) error
}

type jobLogRepo struct {
	db *gorm.DB
}

// NewJobLogRepo 创建 JobLogRepository 实例
func NewJobLogRepo(db *gorm.DB) JobLogRepository {
	return &jobLogRepo{db: db}
}

func (r *jobLogRepo) Create(ctx context.Context, log *model.JobLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *jobLogRepo) Update(ctx context.Context, log *model.JobLog) error {
	return r.db.WithContext(ctx).Save(log).Error
}
