package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"immersion/backend/config"
	"immersion/backend/internal/api/handler"
	"immersion/backend/internal/api/router"
	"immersion/backend/internal/dto"
	"immersion/backend/internal/repository"
	"immersion/backend/internal/service"
	"immersion/backend/pkg/database"
	"immersion/backend/pkg/jwt"
	applogger "immersion/backend/pkg/logger"
	"immersion/backend/pkg/metrics"
	"immersion/backend/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("timezone", cfg.Server.Timezone),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级为进程内锁与同步投递）
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，Token 黑名单、分布式锁与通知队列将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 初始化 JWT 管理器、校验标签与指标
	jwtMgr := jwt.NewManager(&cfg.Auth)
	if err := dto.RegisterValidators(); err != nil {
		logger.Fatal("注册校验标签失败", zap.Error(err))
	}
	m := metrics.New(prometheus.DefaultRegisterer)

	// 6. 依赖注入: Repository → Service → Handler
	deps := service.Deps{
		Config:  cfg,
		Repo:    repository.NewRepository(db),
		JWT:     jwtMgr,
		Metrics: m,
		Logger:  logger,
	}
	if rdb != nil {
		deps.Blacklist = rdb
		deps.Locker = rdb
		deps.Queue = rdb
	}
	svc := service.NewService(deps)
	h := handler.NewHandler(svc)

	// 7. 通知投递循环
	ctx, stop := context.WithCancel(context.Background())
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		svc.Dispatcher.Run(ctx)
	}()

	// 8. 初始化路由
	engine := router.Setup(router.Options{
		Config:   cfg,
		Handler:  h,
		Actors:   svc.Auth,
		JWT:      jwtMgr,
		Redis:    rdb,
		Gatherer: prometheus.DefaultGatherer,
		Ready:    sqlDB.PingContext,
		Logger:   logger,
	})

	// 9. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 10. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	stop()
	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		logger.Warn("通知投递循环未能及时退出")
	}

	// 关闭数据库连接
	if sqlDB != nil {
		sqlDB.Close()
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
