package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CtxRequestID 请求追踪 ID 的上下文键
const CtxRequestID = "request_id"

// 外部传入的 Request-ID 超过该长度时重新生成
const requestIDMaxLen = 64

var httpTracer = otel.Tracer("immersion/backend/internal/api")

// RequestID 请求追踪中间件
// 读取或生成 X-Request-ID，并为每个请求开启一个 span，
// Service 层的报名、取消 span 挂在该 span 之下
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" || len(rid) > requestIDMaxLen {
			rid = uuid.New().String()
		}
		c.Set(CtxRequestID, rid)
		c.Header("X-Request-ID", rid)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := httpTracer.Start(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.String("request_id", rid),
			))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if tag := c.GetString(CtxDenialTag); tag != "" {
			span.SetAttributes(attribute.String("denial", tag))
		}
		if status >= 500 {
			span.SetStatus(codes.Error, c.Errors.ByType(gin.ErrorTypePrivate).String())
		}
	}
}
