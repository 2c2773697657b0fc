package service

import (
	"context"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"immersion/backend/internal/model"
	"immersion/backend/internal/repository"
	"immersion/backend/pkg/jwt"
)

// qrSize 签到二维码边长（像素）
const qrSize = 256

// AttendanceService 扫码签到
// 报名者出示二维码，授课人扫码后直接标记为出席
type AttendanceService interface {
	QRCode(ctx context.Context, actor *model.User, immersionID string) ([]byte, error)
	Scan(ctx context.Context, actor *model.User, token string) (string, error)
}

type attendanceService struct {
	repo         *repository.Repository
	jwtMgr       *jwt.Manager
	registration RegistrationService
	logger       *zap.Logger
}

// NewAttendanceService 创建 AttendanceService 实例
func NewAttendanceService(repo *repository.Repository, jwtMgr *jwt.Manager, registration RegistrationService, logger *zap.Logger) AttendanceService {
	return &attendanceService{repo: repo, jwtMgr: jwtMgr, registration: registration, logger: logger}
}

// QRCode 生成携带签名签到 Token 的 PNG 二维码
func (s *attendanceService) QRCode(ctx context.Context, actor *model.User, immersionID string) ([]byte, error) {
	imm, err := s.repo.Immersion.GetByID(ctx, immersionID)
	if err != nil {
		return nil, notFoundOr(err, TagUnknownImmersion)
	}
	if imm.UserID != actor.UserID {
		slot := imm.Slot
		if slot == nil {
			if slot, err = s.repo.Slot.GetByID(ctx, imm.SlotID); err != nil {
				return nil, notFoundOr(err, TagUnknownSlot)
			}
		}
		if d := Authorize(actor, OpSetAttendance, Target{Slot: slot, Person: imm.User}); d != nil {
			return nil, d
		}
	}
	if imm.IsCancelled() {
		return nil, Deny(TagAlreadyCancelled)
	}

	token, err := s.jwtMgr.GenerateAttendanceToken(imm.ImmersionID, imm.SlotID)
	if err != nil {
		s.logger.Error("生成签到 Token 失败", zap.String("immersion_id", immersionID), zap.Error(err))
		return nil, err
	}
	png, err := qrcode.Encode(token, qrcode.Medium, qrSize)
	if err != nil {
		s.logger.Error("生成签到二维码失败", zap.String("immersion_id", immersionID), zap.Error(err))
		return nil, err
	}
	return png, nil
}

// Scan 校验签到 Token 并标记出席，返回报名 ID
func (s *attendanceService) Scan(ctx context.Context, actor *model.User, token string) (string, error) {
	claims, err := s.jwtMgr.ParseAttendanceToken(token)
	if err != nil {
		return "", ErrTokenInvalid
	}
	if err := s.registration.MarkAttended(ctx, actor, claims.ImmersionID); err != nil {
		return claims.ImmersionID, err
	}
	return claims.ImmersionID, nil
}
