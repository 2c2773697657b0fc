package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"immersion/backend/internal/dto"
	"immersion/backend/internal/service"
	"immersion/backend/pkg/response"
)

// AttendanceHandler 扫码签到 HTTP 处理器
type AttendanceHandler struct {
	attendanceSvc service.AttendanceService
}

// NewAttendanceHandler 创建 AttendanceHandler
func NewAttendanceHandler(attendanceSvc service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendanceSvc: attendanceSvc}
}

// QRCode 报名签到二维码（PNG）
// GET /api/v1/immersions/:id/attendance-qrcode
func (h *AttendanceHandler) QRCode(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	png, err := h.attendanceSvc.QRCode(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// Scan 授课人扫码签到
// POST /api/v1/attendance/scan
func (h *AttendanceHandler) Scan(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	var req dto.AttendanceScanRequest
	if !bindJSON(c, &req) {
		return
	}

	immersionID, err := h.attendanceSvc.Scan(c.Request.Context(), actor, req.Token)
	if err != nil {
		if errors.Is(err, service.ErrTokenInvalid) {
			response.BadRequest(c, 17001, "签到二维码无效或已过期")
			return
		}
		handleServiceError(c, err)
		return
	}

	response.OK(c, gin.H{"ok": true, "immersion_id": immersionID})
}
