package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"immersion/backend/internal/model"
	"immersion/backend/internal/repository"
	pkgerrors "immersion/backend/pkg/errors"
)

// AlertService 课程名额提醒
type AlertService interface {
	Subscribe(ctx context.Context, email, courseID string) error
	Unsubscribe(ctx context.Context, email, courseID string) error
	// SendCourseAlerts 夜间巡检：返回发出的提醒数
	SendCourseAlerts(ctx context.Context) (int, error)
	SeatFreedListener
}

type alertService struct {
	repo     *repository.Repository
	capacity *CapacityManager
	notifier Notifier
	clock    Clock
	loc      *time.Location
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAlertService 创建 AlertService 实例，并订阅名额释放事件
func NewAlertService(repo *repository.Repository, capacity *CapacityManager, notifier Notifier, clock Clock, loc *time.Location, logger *zap.Logger) AlertService {
	s := &alertService{
		repo:     repo,
		capacity: capacity,
		notifier: notifier,
		clock:    clock,
		loc:      loc,
		validate: validator.New(),
		logger:   logger,
	}
	capacity.Subscribe(s)
	return s
}

// ────────────────────── Subscribe ──────────────────────

func (s *alertService) Subscribe(ctx context.Context, email, courseID string) error {
	email = strings.TrimSpace(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return Deny(TagInvalidEmail)
	}
	if _, err := s.repo.Offer.GetCourse(ctx, courseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Deny(TagUnknownCourse)
		}
		return err
	}

	exists, err := s.repo.Alert.ExistsPending(ctx, email, courseID)
	if err != nil {
		return err
	}
	if exists {
		return Deny(TagAlertExists)
	}
	if err := s.repo.Alert.Create(ctx, &model.UserCourseAlert{Email: email, CourseID: courseID}); err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return Deny(TagAlertExists)
		}
		return err
	}
	s.logger.Info("课程名额提醒已订阅", zap.String("course_id", courseID))
	return nil
}

func (s *alertService) Unsubscribe(ctx context.Context, email, courseID string) error {
	n, err := s.repo.Alert.Delete(ctx, strings.TrimSpace(email), courseID)
	if err != nil {
		return err
	}
	if n == 0 {
		return Deny(TagUnknownAlert)
	}
	return nil
}

// ────────────────────── 名额释放 ──────────────────────

// OnSeatFreed 某时段释放名额后，立即检查其课程的待发提醒
func (s *alertService) OnSeatFreed(ctx context.Context, slot *model.Slot) {
	if slot == nil || slot.CourseID == nil {
		return
	}
	alerts, err := s.repo.Alert.ListPending(ctx, *slot.CourseID)
	if err != nil {
		s.logger.Warn("查询待发提醒失败", zap.String("course_id", *slot.CourseID), zap.Error(err))
		return
	}
	if len(alerts) == 0 {
		return
	}
	if _, err := s.deliver(ctx, *slot.CourseID, alerts); err != nil {
		s.logger.Warn("发送课程名额提醒失败", zap.String("course_id", *slot.CourseID), zap.Error(err))
	}
}

// ────────────────────── SendCourseAlerts ──────────────────────

func (s *alertService) SendCourseAlerts(ctx context.Context) (int, error) {
	alerts, err := s.repo.Alert.ListPending(ctx, "")
	if err != nil {
		return 0, err
	}

	byCourse := make(map[string][]model.UserCourseAlert)
	var order []string
	for _, a := range alerts {
		if _, ok := byCourse[a.CourseID]; !ok {
			order = append(order, a.CourseID)
		}
		byCourse[a.CourseID] = append(byCourse[a.CourseID], a)
	}

	sent := 0
	for _, courseID := range order {
		n, err := s.deliver(ctx, courseID, byCourse[courseID])
		if err != nil {
			return sent, err
		}
		sent += n
	}
	return sent, nil
}

// deliver 课程存在已发布、未开始且有个人名额的时段时，发送提醒并标记已发送
func (s *alertService) deliver(ctx context.Context, courseID string, alerts []model.UserCourseAlert) (int, error) {
	slot, err := s.firstOpenSlot(ctx, courseID)
	if err != nil || slot == nil {
		return 0, err
	}

	course := slot.Course
	if course == nil && len(alerts) > 0 {
		course = alerts[0].Course
	}
	label := ""
	if course != nil {
		label = course.Label
	}

	ids := make([]string, 0, len(alerts))
	events := make([]Event, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.AlertID)
		events = append(events, Event{
			Template:   model.TemplateCourseAlert,
			Recipients: []string{a.Email},
			Vars: map[string]interface{}{
				"course":    label,
				"course_id": courseID,
				"date":      slot.Date.Format(model.DateLayout),
			},
			DedupKey: model.TemplateCourseAlert + ":" + a.AlertID,
		})
	}
	s.notifier.Emit(ctx, events...)

	if err := s.repo.Alert.MarkSent(ctx, ids); err != nil {
		return 0, err
	}
	s.logger.Info("课程名额提醒已发送", zap.String("course_id", courseID), zap.Int("count", len(ids)))
	return len(ids), nil
}

func (s *alertService) firstOpenSlot(ctx context.Context, courseID string) (*model.Slot, error) {
	slots, err := s.repo.Slot.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for i := range slots {
		slot := &slots[i]
		if !slot.Published || !slot.AllowIndividualRegistrations || !now.Before(slot.StartAt(s.loc)) {
			continue
		}
		available, err := s.capacity.Available(ctx, s.repo, slot, SeatIndividual, "")
		if err != nil {
			return nil, err
		}
		if available > 0 {
			return slot, nil
		}
	}
	return nil, nil
}
