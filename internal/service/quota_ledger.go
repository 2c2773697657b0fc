package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"immersion/backend/config"
	"immersion/backend/internal/model"
	"immersion/backend/internal/repository"
)

// QuotaStatus 某人在某周期（及培训）的配额情况
// 计数由有效报名推导，不单独存储
type QuotaStatus struct {
	PeriodID string
	Allowed  int
	Used     int

	TrainingID      string
	TrainingCapped  bool
	TrainingAllowed int
	TrainingUsed    int
}

// PeriodRemaining 周期剩余次数（不小于 0）
func (q *QuotaStatus) PeriodRemaining() int {
	if q.Used >= q.Allowed {
		return 0
	}
	return q.Allowed - q.Used
}

// TrainingRemaining 培训剩余次数（未启用培训配额时为 -1）
func (q *QuotaStatus) TrainingRemaining() int {
	if !q.TrainingCapped {
		return -1
	}
	if q.TrainingUsed >= q.TrainingAllowed {
		return 0
	}
	return q.TrainingAllowed - q.TrainingUsed
}

// Exceeded 超出的配额标签，未超出时为空
func (q *QuotaStatus) Exceeded() string {
	if q.PeriodRemaining() <= 0 {
		return TagOverPeriodQuota
	}
	if q.TrainingCapped && q.TrainingRemaining() <= 0 {
		return TagOverTrainingQuota
	}
	return ""
}

// PeriodCount 周期配额统计
type PeriodCount struct {
	Period    model.Period
	Allowed   int
	Used      int
	Remaining int
}

// Reservation 配额预留凭据
type Reservation struct {
	UserID   string
	SlotID   string
	PeriodID string
	// Existing 已存在的有效报名（重试时返回同一预留）
	Existing *model.Immersion
	// Raised 强制报名时个人配额被上调
	Raised bool
}

// QuotaLedger 个人报名配额账本
type QuotaLedger struct {
	cfg    *config.RegistrationConfig
	logger *zap.Logger
}

// NewQuotaLedger 创建 QuotaLedger 实例
func NewQuotaLedger(cfg *config.RegistrationConfig, logger *zap.Logger) *QuotaLedger {
	return &QuotaLedger{cfg: cfg, logger: logger}
}

// ────────────────────── RemainingCounts ──────────────────────

// RemainingCounts 每个周期：allowed（个人覆盖值优先）减去该周期课程时段上的有效报名数
func (l *QuotaLedger) RemainingCounts(ctx context.Context, repo *repository.Repository, periods []model.Period, userID string) ([]PeriodCount, error) {
	overrides, err := l.overrides(ctx, repo, userID)
	if err != nil {
		return nil, err
	}
	live, err := repo.Immersion.ListLiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]PeriodCount, 0, len(periods))
	for _, p := range periods {
		allowed := p.AllowedImmersions
		if v, ok := overrides[p.PeriodID]; ok {
			allowed = v
		}
		used := countInPeriod(live, &p, "")
		remaining := allowed - used
		if remaining < 0 {
			remaining = 0
		}
		result = append(result, PeriodCount{Period: p, Allowed: allowed, Used: used, Remaining: remaining})
	}
	return result, nil
}

// ────────────────────── Status ──────────────────────

// Status 计算某人报名 slot 时的配额情况；活动与参观时段不占配额，返回 nil
func (l *QuotaLedger) Status(ctx context.Context, repo *repository.Repository, userID string, slot *model.Slot, period *model.Period) (*QuotaStatus, error) {
	if slot == nil || period == nil || !slot.IsCourse() {
		return nil, nil
	}
	overrides, err := l.overrides(ctx, repo, userID)
	if err != nil {
		return nil, err
	}
	live, err := repo.Immersion.ListLiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &QuotaStatus{
		PeriodID: period.PeriodID,
		Allowed:  period.AllowedImmersions,
		Used:     countInPeriod(live, period, ""),
	}
	if v, ok := overrides[period.PeriodID]; ok {
		status.Allowed = v
	}

	if l.cfg.ActivateTrainingQuotas && slot.TrainingID != nil {
		status.TrainingID = *slot.TrainingID
		status.TrainingCapped = true
		status.TrainingAllowed = l.cfg.DefaultTrainingQuota
		training, err := repo.Offer.GetTraining(ctx, *slot.TrainingID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if training != nil && training.AllowedImmersions != nil {
			status.TrainingAllowed = *training.AllowedImmersions
		}
		status.TrainingUsed = countInPeriod(live, period, *slot.TrainingID)
	}
	return status, nil
}

// ────────────────────── CheckAndReserve ──────────────────────

// CheckAndReserve 在事务内（档案已加锁）复核配额并预留。
// 已存在有效报名时返回该报名对应的预留，不重复扣减。
// force 为 true 且超出周期配额时，将个人配额上调为 used+1。
func (l *QuotaLedger) CheckAndReserve(ctx context.Context, tx *repository.Repository, record *model.Record, slot *model.Slot, period *model.Period, force bool) (*Reservation, error) {
	res := &Reservation{UserID: record.UserID, SlotID: slot.SlotID}
	if period != nil {
		res.PeriodID = period.PeriodID
	}

	existing, err := tx.Immersion.FindLive(ctx, record.UserID, slot.SlotID)
	if err == nil {
		res.Existing = existing
		return res, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	status, err := l.Status(ctx, tx, record.UserID, slot, period)
	if err != nil || status == nil {
		return res, err
	}

	tag := status.Exceeded()
	if tag == "" {
		return res, nil
	}
	if !force {
		return nil, Deny(tag)
	}

	if status.PeriodRemaining() <= 0 {
		quota := &model.RecordQuota{
			RecordID:          record.RecordID,
			PeriodID:          period.PeriodID,
			AllowedImmersions: status.Used + 1,
		}
		if err := tx.Record.UpsertQuota(ctx, quota); err != nil {
			return nil, err
		}
		res.Raised = true
		l.logger.Info("强制报名上调个人配额",
			zap.String("record_id", record.RecordID),
			zap.String("period_id", period.PeriodID),
			zap.Int("allowed", quota.AllowedImmersions),
		)
	}
	return res, nil
}

// Release 取消后配额由有效报名重新推导，这里仅记录日志
func (l *QuotaLedger) Release(_ context.Context, res *Reservation) {
	if res == nil {
		return
	}
	l.logger.Debug("释放配额预留", zap.String("user_id", res.UserID), zap.String("slot_id", res.SlotID))
}

func (l *QuotaLedger) overrides(ctx context.Context, repo *repository.Repository, userID string) (map[string]int, error) {
	record, err := repo.Record.GetByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, err
	}
	quotas, err := repo.Record.ListQuotas(ctx, record.RecordID)
	if err != nil {
		return nil, err
	}
	result := make(map[string]int, len(quotas))
	for _, q := range quotas {
		result[q.PeriodID] = q.AllowedImmersions
	}
	return result, nil
}

// countInPeriod 统计周期内课程时段上的有效报名，trainingID 非空时只统计该培训
func countInPeriod(live []model.Immersion, period *model.Period, trainingID string) int {
	n := 0
	for _, imm := range live {
		if imm.Slot == nil || !imm.Slot.IsCourse() || !period.Contains(imm.Slot.Date) {
			continue
		}
		if trainingID != "" && (imm.Slot.TrainingID == nil || *imm.Slot.TrainingID != trainingID) {
			continue
		}
		n++
	}
	return n
}
