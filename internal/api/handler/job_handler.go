package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"immersion/backend/internal/service"
	"immersion/backend/pkg/response"
)

// JobHandler 定时命令 HTTP 处理器（平台运维手动触发）
type JobHandler struct {
	jobSvc service.JobService
}

// NewJobHandler 创建 JobHandler
func NewJobHandler(jobSvc service.JobService) *JobHandler {
	return &JobHandler{jobSvc: jobSvc}
}

// ListCommands 可执行的命令列表
// GET /api/v1/jobs
func (h *JobHandler) ListCommands(c *gin.Context) {
	response.OK(c, gin.H{"list": h.jobSvc.Commands()})
}

// Run 立即执行一个命令
// POST /api/v1/jobs/:command?source=xxx
func (h *JobHandler) Run(c *gin.Context) {
	result, err := h.jobSvc.Run(c.Request.Context(), c.Param("command"), service.JobOptions{Source: c.Query("source")})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownCommand):
			response.NotFound(c, 18001, "未知的命令")
		case service.IsConfigError(err):
			response.ErrorWithDetails(c, http.StatusServiceUnavailable, response.CodeConfiguration, "定时任务配置错误", err.Error())
		default:
			_ = c.Error(err)
			response.ErrorWithDetails(c, http.StatusInternalServerError, 18002, "命令执行失败", err.Error())
		}
		return
	}

	response.OK(c, result)
}
