package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"immersion/backend/internal/dto"
	"immersion/backend/internal/model"
	"immersion/backend/internal/repository"
)

// RecordService 档案审核
type RecordService interface {
	Validate(ctx context.Context, actor *model.User, recordID string) (*dto.RecordDecisionResponse, error)
	Reject(ctx context.Context, actor *model.User, recordID string) (*dto.RecordDecisionResponse, error)
}

type recordService struct {
	repo     *repository.Repository
	notifier Notifier
	clock    Clock
	loc      *time.Location
	logger   *zap.Logger
}

// NewRecordService 创建 RecordService 实例
func NewRecordService(repo *repository.Repository, notifier Notifier, clock Clock, loc *time.Location, logger *zap.Logger) RecordService {
	return &recordService{repo: repo, notifier: notifier, clock: clock, loc: loc, logger: logger}
}

// Validate 通过审核：需要有效期的证明文件必须已填写且未过期；
// 通过后归档不需要有效期的证明文件
func (s *recordService) Validate(ctx context.Context, actor *model.User, recordID string) (*dto.RecordDecisionResponse, error) {
	record, err := s.load(ctx, actor, recordID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Record.ListAttestations(ctx, record.RecordID)
	if err != nil {
		return nil, err
	}

	today := model.DateOf(s.clock.Now(), s.loc)
	var archive []string
	for _, a := range items {
		if a.Archived {
			continue
		}
		if !a.RequiresValidityDate {
			archive = append(archive, a.AttestationID)
			continue
		}
		invalid := a.ValidityDate == nil || a.ValidityDate.Before(today)
		if invalid && (a.Mandatory || a.ValidityDate == nil && a.Document != "") {
			return nil, Deny(TagMissingAttestationDates)
		}
	}

	now := s.clock.Now()
	record.Validation = model.ValidationValidated
	record.ValidationDate = &now
	record.RejectedDate = nil
	if err := s.repo.Record.Update(ctx, record); err != nil {
		return nil, err
	}
	if len(archive) > 0 {
		if err := s.repo.Record.ArchiveAttestations(ctx, archive); err != nil {
			s.logger.Warn("归档证明文件失败", zap.String("record_id", record.RecordID), zap.Error(err))
			archive = nil
		}
	}

	s.logger.Info("档案已通过审核", zap.String("record_id", record.RecordID), zap.String("actor_id", actor.UserID))
	s.notify(ctx, model.TemplateRecordValidated, record)
	return &dto.RecordDecisionResponse{
		OK:                   true,
		RecordID:             record.RecordID,
		Validation:           record.Validation,
		ArchivedAttestations: len(archive),
	}, nil
}

// Reject 驳回档案
func (s *recordService) Reject(ctx context.Context, actor *model.User, recordID string) (*dto.RecordDecisionResponse, error) {
	record, err := s.load(ctx, actor, recordID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	record.Validation = model.ValidationRejected
	record.RejectedDate = &now
	if err := s.repo.Record.Update(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("档案已驳回", zap.String("record_id", record.RecordID), zap.String("actor_id", actor.UserID))
	s.notify(ctx, model.TemplateRecordRejected, record)
	return &dto.RecordDecisionResponse{OK: true, RecordID: record.RecordID, Validation: record.Validation}, nil
}

func (s *recordService) load(ctx context.Context, actor *model.User, recordID string) (*model.Record, error) {
	record, err := s.repo.Record.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Deny(TagUnknownRecord)
		}
		return nil, err
	}
	if d := Authorize(actor, OpValidateRecord, Target{Record: record, Person: record.User}); d != nil {
		return nil, d
	}
	return record, nil
}

func (s *recordService) notify(ctx context.Context, template string, record *model.Record) {
	if record.User == nil {
		return
	}
	s.notifier.Emit(ctx, Event{
		Template:   template,
		Recipients: []string{record.User.Email},
		Vars: map[string]interface{}{
			"recipient": record.User.FullName(),
		},
		DedupKey: template + ":" + record.RecordID + ":" + s.clock.Now().Format(time.RFC3339),
	})
}
