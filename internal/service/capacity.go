package service

import (
	"context"

	"go.uber.org/zap"

	"immersion/backend/internal/model"
	"immersion/backend/internal/repository"
)

// SeatKind 名额类型
type SeatKind int

const (
	SeatIndividual SeatKind = iota
	SeatGroup
)

func (k SeatKind) String() string {
	if k == SeatGroup {
		return "group"
	}
	return "individual"
}

// SeatFreedListener 名额释放事件的消费者
type SeatFreedListener interface {
	OnSeatFreed(ctx context.Context, slot *model.Slot)
}

// CapacityManager 时段名额管理
// 名额由有效报名推导：调用 Reserve 前必须已持有时段锁
type CapacityManager struct {
	listeners []SeatFreedListener
	logger    *zap.Logger
}

// NewCapacityManager 创建 CapacityManager 实例
func NewCapacityManager(logger *zap.Logger) *CapacityManager {
	return &CapacityManager{logger: logger}
}

// Subscribe 注册名额释放事件消费者
func (m *CapacityManager) Subscribe(l SeatFreedListener) {
	m.listeners = append(m.listeners, l)
}

// SeatsNeeded 一次报名需要的名额：个人 1；团体在共用模式下为团体人数，独立模式下为 1
func SeatsNeeded(slot *model.Slot, kind SeatKind, groupSize int) int {
	if kind == SeatGroup && slot.GroupMode == model.GroupModeShared {
		return groupSize
	}
	return 1
}

// ────────────────────── Available ──────────────────────

// Available 可用名额；excludeGroupID 非空时不计该团体（团体修改人数时使用）
func (m *CapacityManager) Available(ctx context.Context, repo *repository.Repository, slot *model.Slot, kind SeatKind, excludeGroupID string) (int, error) {
	individuals, err := repo.Immersion.CountLiveBySlot(ctx, slot.SlotID)
	if err != nil {
		return 0, err
	}
	groups, err := repo.GroupImmersion.ListLiveBySlot(ctx, slot.SlotID)
	if err != nil {
		return 0, err
	}

	var available int
	if slot.GroupMode == model.GroupModeShared {
		used := int(individuals)
		for _, g := range groups {
			if g.GroupImmersionID != excludeGroupID {
				used += g.Size()
			}
		}
		available = slot.NPlaces - used
	} else if kind == SeatGroup {
		used := 0
		for _, g := range groups {
			if g.GroupImmersionID != excludeGroupID {
				used++
			}
		}
		available = slot.NGroupPlaces - used
	} else {
		available = slot.NPlaces - int(individuals)
	}

	if available < 0 {
		return 0, nil
	}
	return available, nil
}

// ────────────────────── Reserve / Release ──────────────────────

// Reserve 在持有时段锁的事务内复核名额；整体无法满足时拒绝，不部分分配
func (m *CapacityManager) Reserve(ctx context.Context, tx *repository.Repository, slot *model.Slot, kind SeatKind, n int, excludeGroupID string) error {
	available, err := m.Available(ctx, tx, slot, kind, excludeGroupID)
	if err != nil {
		return err
	}
	if available < n {
		return Deny(TagNoSeatAvailable)
	}
	return nil
}

// Release 释放名额后通知订阅者；从不返回错误
func (m *CapacityManager) Release(ctx context.Context, slot *model.Slot, kind SeatKind, n int) {
	m.logger.Debug("释放名额",
		zap.String("slot_id", slot.SlotID),
		zap.String("kind", kind.String()),
		zap.Int("n", n),
	)
	for _, l := range m.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("名额释放事件处理异常", zap.Any("panic", r))
				}
			}()
			l.OnSeatFreed(ctx, slot)
		}()
	}
}
