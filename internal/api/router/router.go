package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"immersion/backend/config"
	"immersion/backend/internal/api/handler"
	"immersion/backend/internal/api/middleware"
	"immersion/backend/internal/model"
	"immersion/backend/pkg/jwt"
	"immersion/backend/pkg/redis"
)

// Options 路由依赖；Redis 与 Gatherer 可为 nil
type Options struct {
	Config   *config.Config
	Handler  *handler.Handler
	Actors   middleware.ActorLoader
	JWT      *jwt.Manager
	Redis    *redis.Client
	Gatherer prometheus.Gatherer
	// Ready 就绪检查（数据库连通性），可为 nil
	Ready  func(ctx context.Context) error
	Logger *zap.Logger
}

// Setup 初始化并返回 Gin 路由引擎
func Setup(o Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	h := o.Handler

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(o.Logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(o.Config.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(1 << 20))

	// ── 健康检查与指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		if o.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := o.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if o.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{})))
	}

	var checker middleware.TokenChecker
	if o.Redis != nil {
		checker = o.Redis
	}

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", middleware.RateLimit(o.Redis, "login", 10, time.Minute), h.Auth.Login)
			auth.POST("/refresh", h.Auth.RefreshToken)
		}

		// 课程名额提醒（匿名访客也可订阅）
		alerts := v1.Group("/alerts")
		alerts.Use(middleware.RateLimit(o.Redis, "alerts", 20, time.Minute))
		{
			alerts.POST("", h.Alert.Subscribe)
			alerts.DELETE("", h.Alert.Unsubscribe)
		}

		// 时段浏览（无需认证）
		v1.GET("/slots", h.Slot.ListSlots)
		v1.GET("/slots/:id", h.Slot.GetSlot)

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(o.JWT, checker))
		authorized.Use(middleware.LoadActor(o.Actors, handler.IsAuthError))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.GetCurrentUser)

			// 时段与报名
			slots := authorized.Group("/slots")
			{
				slots.POST("", h.Slot.CreateSlot)
				slots.DELETE("/:id", h.Slot.DeleteSlot)
				slots.GET("/:id/eligibility", h.Registration.Probe)
				slots.POST("/:id/register", h.Registration.Register)
				slots.POST("/:id/groups", h.Registration.RegisterGroup)
				slots.POST("/:id/batch-cancel", h.Registration.BatchCancel)
				slots.GET("/:id/attendees.xlsx", h.Export.ExportSlotAttendees)
			}
			authorized.DELETE("/courses/:id", h.Slot.DeleteCourse)

			// 团体报名
			groups := authorized.Group("/groups")
			{
				groups.PUT("/:id", h.Registration.UpdateGroup)
				groups.POST("/:id/cancel", h.Registration.CancelGroup)
			}

			// 报名记录与出勤
			immersions := authorized.Group("/immersions")
			{
				immersions.PUT("/attendance", h.Registration.SetAttendance)
				immersions.POST("/:id/cancel", h.Registration.Cancel)
				immersions.GET("/:id/attendance-qrcode", h.Attendance.QRCode)
			}
			authorized.POST("/attendance/scan", h.Attendance.Scan)

			// 剩余报名次数（:id 可为 me）
			authorized.GET("/users/:id/remaining-registrations", h.Registration.RemainingCounts)

			// 档案审核（Service 层鉴权）
			records := authorized.Group("/records")
			{
				records.POST("/:id/validate", h.Record.Validate)
				records.POST("/:id/reject", h.Record.Reject)
			}

			// 定时命令（仅平台运维）
			jobs := authorized.Group("/jobs")
			jobs.Use(middleware.RoleAuth(model.RoleOperator))
			{
				jobs.GET("", h.Job.ListCommands)
				jobs.POST("/:command", h.Job.Run)
			}
		}
	}

	return r
}
