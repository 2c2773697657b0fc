package repository

import (
	"context"

	"gorm.io/gorm"

	"immersion/backend/internal/model"
)

// OfferRepository 培训、课程与活动数据访问接口
type OfferRepository interface {
	GetTraining(ctx context.Context, id string) (*model.Training, error)
	GetCourse(ctx context.Context, id string) (*model.Course, error)
	GetEvent(ctx context.Context, id string) (*model.OffOfferEvent, error)
	DeleteCourse(ctx context.Context, id string, deletedBy string) error
	UnpublishAll(ctx context.Context) error
	CountPublishedCourses(ctx context.Context) (int64, error)
}

type offerRepo struct {
	db *gorm.DB
}

// NewOfferRepo 创建 OfferRepository 实例
func NewOfferRepo(db *gorm.DB) OfferRepository {
	return &offerRepo{db: db}
}

func (r *offerRepo) GetTraining(ctx context.Context, id string) (*model.Training, error) {
	var t model.Training
	if err := r.db.WithContext(ctx).Where("training_id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *offerRepo) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	var c model.Course
	err := r.db.WithContext(ctx).
		Preload("Training").
		Where("course_id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *offerRepo) GetEvent(ctx context.Context, id string) (*model.OffOfferEvent, error) {
	var e model.OffOfferEvent
	if err := r.db.WithContext(ctx).Where("event_id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *offerRepo) DeleteCourse(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Course{}).
		Where("course_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

// UnpublishAll 年度清理时下线全部课程与活动
func (r *offerRepo) UnpublishAll(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.Course{}).Where("published = ?", true).Update("published", false).Error; err != nil {
		return err
	}
	return db.Model(&model.OffOfferEvent{}).Where("published = ?", true).Update("published", false).Error
}

func (r *offerRepo) CountPublishedCourses(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Course{}).Where("published = ?", true).Count(&n).Error
	return n, err
}
