package handler

import (
	"github.com/gin-gonic/gin"

	"immersion/backend/internal/dto"
	"immersion/backend/internal/service"
	"immersion/backend/pkg/response"
)

// AlertHandler 课程名额提醒 HTTP 处理器（无需登录）
type AlertHandler struct {
	alertSvc service.AlertService
}

// NewAlertHandler 创建 AlertHandler
func NewAlertHandler(alertSvc service.AlertService) *AlertHandler {
	return &AlertHandler{alertSvc: alertSvc}
}

// Subscribe 订阅课程名额提醒
// POST /api/v1/alerts
func (h *AlertHandler) Subscribe(c *gin.Context) {
	var req dto.CourseAlertRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.alertSvc.Subscribe(c.Request.Context(), req.Email, req.CourseID); err != nil {
		handleServiceError(c, err)
		return
	}
	response.Created(c, dto.OKResponse{OK: true})
}

// Unsubscribe 取消订阅
// DELETE /api/v1/alerts
func (h *AlertHandler) Unsubscribe(c *gin.Context) {
	var req dto.CourseAlertRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.alertSvc.Unsubscribe(c.Request.Context(), req.Email, req.CourseID); err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, dto.OKResponse{OK: true})
}
