package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"immersion/backend/internal/api/middleware"
	"immersion/backend/internal/model"
	"immersion/backend/internal/service"
	"immersion/backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	s := c.GetString(middleware.CtxUserID)
	if s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetActor 从 Gin 上下文中提取 LoadActor 注入的操作人
func MustGetActor(c *gin.Context) (*model.User, bool) {
	v, exists := c.Get(middleware.CtxActor)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return nil, false
	}
	actor, ok := v.(*model.User)
	if !ok || actor == nil {
		response.Unauthorized(c, 10002, "未认证")
		return nil, false
	}
	return actor, true
}

// tokenFromContext 当前 Access Token 的 jti 与过期时间
func tokenFromContext(c *gin.Context) (string, time.Time) {
	jti := c.GetString(middleware.CtxTokenJTI)
	exp, _ := c.Get(middleware.CtxTokenExp)
	expiresAt, _ := exp.(time.Time)
	return jti, expiresAt
}

// ── 错误映射 ──

// DenialStatus 业务拒绝类别对应的 HTTP 状态码
func DenialStatus(d *service.Denial) int {
	switch d.Kind() {
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

// IsAuthError 操作人无法认证（用户已删除或未激活）
func IsAuthError(err error) bool {
	return errors.Is(err, service.ErrTokenInvalid) || errors.Is(err, service.ErrAccountInactive)
}

// handleServiceError 业务拒绝按标签返回，其余错误记录后返回 500
func handleServiceError(c *gin.Context, err error) {
	if d, ok := service.AsDenial(err); ok {
		c.Set(middleware.CtxDenialTag, d.Tag)
		response.Denied(c, DenialStatus(d), d.Tag, d.Message)
		return
	}
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(c, http.StatusUnauthorized, 11001, "邮箱或密码错误")
	case errors.Is(err, service.ErrAccountInactive):
		response.Forbidden(c, 11002, "账号尚未激活")
	case errors.Is(err, service.ErrTokenInvalid):
		response.Unauthorized(c, 11003, "Token 无效或已过期")
	case errors.Is(err, service.ErrTokenRevoked):
		response.Unauthorized(c, 11004, "Token 已注销")
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}

// bindJSON 绑定并校验 JSON 请求体；失败时写入 400（超出 BodyLimit 时 413）
func bindJSON(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
		return false
	}
	response.BadRequest(c, 10001, "参数校验失败")
	return false
}
