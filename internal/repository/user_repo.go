package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"immersion/backend/internal/model"
)

// UserRepository 用户数据访问接口
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	ListByIDs(ctx context.Context, ids []string) ([]model.User, error)
	ListByRole(ctx context.Context, role string) ([]model.User, error)
	ListStructureManagers(ctx context.Context, structureID string) ([]model.User, error)
	ListHighSchoolManagers(ctx context.Context, highSchoolID string) ([]model.User, error)
	ListUnactivatedExpired(ctx context.Context, today time.Time) ([]model.User, error)
	ListActiveAttendees(ctx context.Context) ([]model.User, error)
	HardDelete(ctx context.Context, ids []string) (int64, error)
	DeleteByRoles(ctx context.Context, roles []string) (int64, error)
}

type userRepo struct {
	db *gorm.DB
}

// NewUserRepo 创建 UserRepository 实例
func NewUserRepo(db *gorm.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("user_id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("lower(email) = lower(?)", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) Update(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ?", id).
		Update("last_login_at", at).Error
}

func (r *userRepo) ListByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	var users []model.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *userRepo) ListByRole(ctx context.Context, role string) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).Where("role = ? AND is_active = ?", role, true).Find(&users).Error
	return users, err
}

// ListStructureManagers 管理该结构的结构负责人
func (r *userRepo) ListStructureManagers(ctx context.Context, structureID string) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND ? = ANY(structure_ids)", model.RoleStructureManager, structureID).
		Find(&users).Error
	return users, err
}

func (r *userRepo) ListHighSchoolManagers(ctx context.Context, highSchoolID string) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND high_school_id = ?", model.RoleHighSchoolManager, highSchoolID).
		Find(&users).Error
	return users, err
}

// ListUnactivatedExpired 从未激活且销毁日期已到的账号
func (r *userRepo) ListUnactivatedExpired(ctx context.Context, today time.Time) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND destruction_date IS NOT NULL AND destruction_date <= ?", false, today.Format(model.DateLayout)).
		Find(&users).Error
	return users, err
}

func (r *userRepo) ListActiveAttendees(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("role IN ? AND is_active = ?", model.AttendeeRoles, true).
		Order("email").
		Find(&users).Error
	return users, err
}

func (r *userRepo) HardDelete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Unscoped().Where("user_id IN ?", ids).Delete(&model.User{})
	return result.RowsAffected, result.Error
}

// DeleteByRoles 年度清理：删除指定角色的全部账号
func (r *userRepo) DeleteByRoles(ctx context.Context, roles []string) (int64, error) {
	result := r.db.WithContext(ctx).Unscoped().Where("role IN ?", roles).Delete(&model.User{})
	return result.RowsAffected, result.Error
}
