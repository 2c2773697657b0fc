package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	Calendar       CalendarRepository
	Establishment  EstablishmentRepository
	Campus         CampusRepository
	Offer          OfferRepository
	Slot           SlotRepository
	User           UserRepository
	Record         RecordRepository
	Immersion      ImmersionRepository
	GroupImmersion GroupImmersionRepository
	CancelType     CancelTypeRepository
	Alert          AlertRepository
	Notification   NotificationRepository
	JobLog         JobLogRepository
	Stats          StatsRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:             db,
		Calendar:       NewCalendarRepo(db),
		Establishment:  NewEstablishmentRepo(db),
		Campus:         NewCampusRepo(db),
		Offer:          NewOfferRepo(db),
		Slot:           NewSlotRepo(db),
		User:           NewUserRepo(db),
		Record:         NewRecordRepo(db),
		Immersion:      NewImmersionRepo(db),
		GroupImmersion: NewGroupImmersionRepo(db),
		CancelType:     NewCancelTypeRepo(db),
		Alert:          NewAlertRepo(db),
		Notification:   NewNotificationRepo(db),
		JobLog:         NewJobLogRepo(db),
		Stats:          NewStatsRepo(db),
	}
}

// Transaction 在单个数据库事务中执行 fn，fn 收到绑定到事务的 Repository
// 未绑定数据库（单元测试中的内存实现）时直接以自身调用 fn
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// DB 底层连接（健康检查使用），内存实现返回 nil
func (r *Repository) DB() *gorm.DB { return r.db }

// forUpdate SELECT ... FOR UPDATE
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
