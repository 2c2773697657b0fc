package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"immersion/backend/internal/dto"
	"immersion/backend/internal/model"
	"immersion/backend/internal/repository"
)

// SlotService 时段管理业务接口
type SlotService interface {
	Create(ctx context.Context, actor *model.User, req *dto.CreateSlotRequest) (*dto.SlotResponse, error)
	Get(ctx context.Context, id string) (*dto.SlotResponse, error)
	List(ctx context.Context, req *dto.SlotListRequest) ([]dto.SlotResponse, error)
	Delete(ctx context.Context, actor *model.User, id string) error
	DeleteCourse(ctx context.Context, actor *model.User, courseID string) error
}

type slotService struct {
	repo     *repository.Repository
	capacity *CapacityManager
	loc      *time.Location
	logger   *zap.Logger
}

// NewSlotService 创建 SlotService 实例
func NewSlotService(repo *repository.Repository, capacity *CapacityManager, loc *time.Location, logger *zap.Logger) SlotService {
	if loc == nil {
		loc = time.Local
	}
	return &slotService{repo: repo, capacity: capacity, loc: loc, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *slotService) Create(ctx context.Context, actor *model.User, req *dto.CreateSlotRequest) (*dto.SlotResponse, error) {
	date, err := time.ParseInLocation(model.DateLayout, req.Date, s.loc)
	if err != nil {
		return nil, Denyf(TagInvalidSlot, "日期格式无效: %s", req.Date)
	}

	slot := &model.Slot{
		Kind:                         req.Kind,
		CourseID:                     req.CourseID,
		EventID:                      req.EventID,
		Date:                         date,
		StartTime:                    req.StartTime,
		EndTime:                      req.EndTime,
		PlaceKind:                    req.PlaceKind,
		CampusID:                     req.CampusID,
		BuildingID:                   req.BuildingID,
		Room:                         req.Room,
		URL:                          req.URL,
		NPlaces:                      req.NPlaces,
		NGroupPlaces:                 req.NGroupPlaces,
		GroupMode:                    req.GroupMode,
		AllowIndividualRegistrations: true,
		AllowGroupRegistrations:      req.AllowGroupRegistrations,
		RegistrationLimitDelay:       req.RegistrationLimitDelay,
		CancellationLimitDelay:       req.CancellationLimitDelay,
		LevelsRestrictions:           req.LevelsRestrictions,
		AllowedLevels:                req.AllowedLevels,
		AllowedPostBacLevels:         req.AllowedPostBacLevels,
		EstablishmentsRestrictions:   req.EstablishmentsRestrictions,
		AllowedEstablishments:        req.AllowedEstablishments,
		HighSchoolsRestrictions:      req.HighSchoolsRestrictions,
		AllowedHighSchools:           req.AllowedHighSchools,
		BachelorsRestrictions:        req.BachelorsRestrictions,
		AllowedBachelorTypes:         req.AllowedBachelorTypes,
		AllowedBachelorMentions:      req.AllowedBachelorMentions,
		AllowedBachelorTeachings:     req.AllowedBachelorTeachings,
		SpeakerIDs:                   req.SpeakerIDs,
		Published:                    req.Published,
		AdditionalInformation:        req.AdditionalInformation,
	}
	if req.AllowIndividualRegistrations != nil {
		slot.AllowIndividualRegistrations = *req.AllowIndividualRegistrations
	}
	if slot.PlaceKind == "" {
		slot.PlaceKind = model.PlaceFaceToFace
	}

	// 从课程或活动继承归属
	if err := s.inheritOwner(ctx, slot); err != nil {
		return nil, err
	}
	if d := Authorize(actor, OpManageSlot, Target{Slot: slot}); d != nil {
		return nil, d
	}
	if err := slot.Validate(); err != nil {
		return nil, Denyf(TagInvalidSlot, "%s", err.Error())
	}

	slot.CreatedBy = &actor.UserID
	slot.UpdatedBy = &actor.UserID
	if err := s.repo.Slot.Create(ctx, slot); err != nil {
		s.logger.Error("创建时段失败", zap.Error(err))
		return nil, err
	}

	s.logger.Info("时段已创建",
		zap.String("slot_id", slot.SlotID),
		zap.String("date", req.Date),
		zap.String("created_by", actor.UserID),
	)
	return s.Get(ctx, slot.SlotID)
}

func (s *slotService) inheritOwner(ctx context.Context, slot *model.Slot) error {
	switch {
	case slot.CourseID != nil:
		course, err := s.repo.Offer.GetCourse(ctx, *slot.CourseID)
		if err != nil {
			return notFoundOr(err, TagUnknownCourse)
		}
		slot.Kind = model.SlotKindCourse
		slot.TrainingID = &course.TrainingID
		slot.StructureID = course.StructureID
		slot.HighSchoolID = course.HighSchoolID
		if len(slot.SpeakerIDs) == 0 {
			slot.SpeakerIDs = course.SpeakerIDs
		}
	case slot.EventID != nil:
		event, err := s.repo.Offer.GetEvent(ctx, *slot.EventID)
		if err != nil {
			return notFoundOr(err, TagInvalidSlot)
		}
		if slot.Kind == "" || slot.Kind == model.SlotKindCourse {
			slot.Kind = model.SlotKindEvent
		}
		slot.StructureID = event.StructureID
		slot.HighSchoolID = event.HighSchoolID
		slot.EstablishmentID = event.EstablishmentID
	default:
		return Deny(TagInvalidSlot)
	}

	if slot.StructureID != nil && slot.EstablishmentID == nil {
		str, err := s.repo.Establishment.GetStructure(ctx, *slot.StructureID)
		if err != nil {
			return notFoundOr(err, TagInvalidSlot)
		}
		slot.EstablishmentID = &str.EstablishmentID
	}
	return nil
}

// ────────────────────── Get / List ──────────────────────

func (s *slotService) Get(ctx context.Context, id string) (*dto.SlotResponse, error) {
	slot, err := s.repo.Slot.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, TagUnknownSlot)
	}
	return s.toSlotResponse(ctx, slot)
}

func (s *slotService) List(ctx context.Context, req *dto.SlotListRequest) ([]dto.SlotResponse, error) {
	from, err := time.ParseInLocation(model.DateLayout, req.From, s.loc)
	if err != nil {
		return nil, Deny(TagInvalidParams)
	}
	to, err := time.ParseInLocation(model.DateLayout, req.To, s.loc)
	if err != nil || to.Before(from) {
		return nil, Deny(TagInvalidParams)
	}

	slots, err := s.repo.Slot.ListByDateRange(ctx, from, to, req.PublishedOnly)
	if err != nil {
		s.logger.Error("查询时段列表失败", zap.Error(err))
		return nil, err
	}
	result := make([]dto.SlotResponse, 0, len(slots))
	for i := range slots {
		resp, err := s.toSlotResponse(ctx, &slots[i])
		if err != nil {
			return nil, err
		}
		result = append(result, *resp)
	}
	return result, nil
}

// ────────────────────── Delete ──────────────────────

// Delete 删除时段；存在有效报名时拒绝
func (s *slotService) Delete(ctx context.Context, actor *model.User, id string) error {
	slot, err := s.repo.Slot.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, TagUnknownSlot)
	}
	if d := Authorize(actor, OpManageSlot, Target{Slot: slot}); d != nil {
		return d
	}

	live, err := s.repo.Immersion.CountLiveBySlot(ctx, id)
	if err != nil {
		return err
	}
	groups, err := s.repo.GroupImmersion.ListLiveBySlot(ctx, id)
	if err != nil {
		return err
	}
	if live > 0 || len(groups) > 0 {
		return Deny(TagHasLiveRegistrations)
	}

	if err := s.repo.Slot.Delete(ctx, id, actor.UserID); err != nil {
		s.logger.Error("删除时段失败", zap.String("slot_id", id), zap.Error(err))
		return err
	}
	s.logger.Info("时段已删除", zap.String("slot_id", id), zap.String("deleted_by", actor.UserID))
	return nil
}

// DeleteCourse 删除课程；课程下仍有时段时拒绝
func (s *slotService) DeleteCourse(ctx context.Context, actor *model.User, courseID string) error {
	course, err := s.repo.Offer.GetCourse(ctx, courseID)
	if err != nil {
		return notFoundOr(err, TagUnknownCourse)
	}
	owner := &model.Slot{StructureID: course.StructureID, HighSchoolID: course.HighSchoolID}
	if course.StructureID != nil {
		if str, err := s.repo.Establishment.GetStructure(ctx, *course.StructureID); err == nil {
			owner.EstablishmentID = &str.EstablishmentID
		}
	}
	if d := Authorize(actor, OpManageSlot, Target{Slot: owner}); d != nil {
		return d
	}

	slots, err := s.repo.Slot.ListByCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if len(slots) > 0 {
		return Deny(TagHasSlots)
	}
	return s.repo.Offer.DeleteCourse(ctx, courseID, actor.UserID)
}

// ── 内部方法 ──

func (s *slotService) toSlotResponse(ctx context.Context, slot *model.Slot) (*dto.SlotResponse, error) {
	seats, err := s.capacity.Available(ctx, s.repo, slot, SeatIndividual, "")
	if err != nil {
		return nil, err
	}
	groupSeats, err := s.capacity.Available(ctx, s.repo, slot, SeatGroup, "")
	if err != nil {
		return nil, err
	}
	live, err := s.repo.Immersion.CountLiveBySlot(ctx, slot.SlotID)
	if err != nil {
		return nil, err
	}

	return &dto.SlotResponse{
		ID:                    slot.SlotID,
		Kind:                  slot.Kind,
		CourseID:              slot.CourseID,
		EventID:               slot.EventID,
		Label:                 SlotTitle(slot),
		Date:                  slot.Date.Format(model.DateLayout),
		StartTime:             slot.StartTime,
		EndTime:               slot.EndTime,
		PlaceKind:             slot.PlaceKind,
		NPlaces:               slot.NPlaces,
		NGroupPlaces:          slot.NGroupPlaces,
		GroupMode:             slot.GroupMode,
		AvailableSeats:        seats,
		AvailableGroupSeats:   groupSeats,
		RegistrationLimitDate: slot.RegistrationLimitDate(s.loc).Format(time.RFC3339),
		CancellationLimitDate: slot.CancellationLimitDate(s.loc).Format(time.RFC3339),
		Published:             slot.Published,
		RegisteredCount:       int(live),
	}, nil
}
