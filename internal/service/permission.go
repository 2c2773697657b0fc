package service

import "immersion/backend/internal/model"

// Operation 受权限控制的操作
type Operation int

const (
	OpRegister Operation = iota
	OpCancel
	OpSetAttendance
	OpRegisterGroup
	OpValidateRecord
	OpViewRemaining
	OpManageSlot
)

// Target 操作对象
type Target struct {
	Slot         *model.Slot
	Person       *model.User
	Record       *model.Record
	HighSchoolID string // 团体报名所属高中
}

// CanAct 统一的权限判断：actor 能否对 target 执行 op
func CanAct(actor *model.User, op Operation, t Target) bool {
	if actor == nil {
		return false
	}

	switch actor.Role {
	case model.RoleOperator, model.RoleMasterManager:
		return true

	case model.RoleEstablishmentManager:
		if op == OpValidateRecord {
			return t.Record != nil && (t.Record.Kind == model.RecordKindVisitor ||
				(t.Record.Kind == model.RecordKindStudent && sameID(t.Record.EstablishmentID, actor.EstablishmentID)))
		}
		if op == OpViewRemaining {
			return true
		}
		return t.Slot != nil && sameID(t.Slot.EstablishmentID, actor.EstablishmentID)

	case model.RoleStructureManager:
		switch op {
		case OpRegister, OpCancel, OpSetAttendance, OpRegisterGroup, OpManageSlot:
			return t.Slot != nil && t.Slot.StructureID != nil && actor.ManagesStructure(*t.Slot.StructureID)
		case OpViewRemaining:
			return true
		}
		return false

	case model.RoleHighSchoolManager:
		if actor.HighSchoolID == nil {
			return false
		}
		hs := *actor.HighSchoolID
		switch op {
		case OpRegisterGroup:
			return t.HighSchoolID == hs
		case OpValidateRecord:
			return t.Record != nil && t.Record.Kind == model.RecordKindPupil && sameID(t.Record.HighSchoolID, &hs)
		case OpSetAttendance, OpManageSlot:
			return t.Slot != nil && sameID(t.Slot.HighSchoolID, &hs)
		case OpRegister, OpCancel, OpViewRemaining:
			if t.Slot != nil && sameID(t.Slot.HighSchoolID, &hs) {
				return true
			}
			return pupilOf(t, hs)
		}
		return false

	case model.RoleSpeaker:
		return op == OpSetAttendance && t.Slot != nil && model.ContainsString(t.Slot.SpeakerIDs, actor.UserID)

	case model.RoleStructureConsultant:
		return op == OpSetAttendance && t.Slot != nil && t.Slot.StructureID != nil && actor.ManagesStructure(*t.Slot.StructureID)

	case model.RolePupil, model.RoleStudent, model.RoleVisitor:
		switch op {
		case OpRegister, OpCancel, OpViewRemaining:
			return t.Person != nil && t.Person.UserID == actor.UserID
		}
		return false
	}
	return false
}

// Authorize CanAct 的拒绝版本：报名者操作他人报名时返回 NOT_OWNER
func Authorize(actor *model.User, op Operation, t Target) *Denial {
	if CanAct(actor, op, t) {
		return nil
	}
	if actor != nil && actor.IsAttendee() && op == OpCancel {
		return Deny(TagNotOwner)
	}
	return Deny(TagNotAuthorized)
}

// IsManager 管理类角色（可代他人操作）
func IsManager(u *model.User) bool {
	switch u.Role {
	case model.RoleOperator, model.RoleMasterManager, model.RoleEstablishmentManager,
		model.RoleStructureManager, model.RoleHighSchoolManager:
		return true
	}
	return false
}

// CanForce 可执行强制报名的角色
func CanForce(u *model.User) bool {
	switch u.Role {
	case model.RoleOperator, model.RoleMasterManager, model.RoleEstablishmentManager:
		return true
	}
	return false
}

// OverridesFor 根据操作者角色与请求开关计算豁免
func OverridesFor(actor *model.User, force, allowPending bool) Overrides {
	manager := IsManager(actor)
	return Overrides{
		AllowUnpublished:   manager,
		AllowPendingRecord: manager && allowPending,
		Force:              force && CanForce(actor),
	}
}

func pupilOf(t Target, highSchoolID string) bool {
	if t.Record != nil && t.Record.Kind == model.RecordKindPupil && sameID(t.Record.HighSchoolID, &highSchoolID) {
		return true
	}
	return t.Person != nil && t.Person.Role == model.RolePupil && sameID(t.Person.HighSchoolID, &highSchoolID)
}

func sameID(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
