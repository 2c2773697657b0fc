package handler

import (
	"github.com/gin-gonic/gin"

	"immersion/backend/internal/service"
	"immersion/backend/pkg/response"
)

// RecordHandler 档案审核 HTTP 处理器
type RecordHandler struct {
	recordSvc service.RecordService
}

// NewRecordHandler 创建 RecordHandler
func NewRecordHandler(recordSvc service.RecordService) *RecordHandler {
	return &RecordHandler{recordSvc: recordSvc}
}

// Validate 审核通过
// POST /api/v1/records/:id/validate
func (h *RecordHandler) Validate(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.recordSvc.Validate(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// Reject 驳回
// POST /api/v1/records/:id/reject
func (h *RecordHandler) Reject(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.recordSvc.Reject(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}
