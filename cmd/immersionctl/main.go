// immersionctl 执行定时命令，供 cron 调用
//
//	immersionctl [-config config.yaml] <command> [-source 路径或URL]
//	immersionctl list
//
// 退出码：0 成功，1 执行失败，2 配置错误或参数错误
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"immersion/backend/config"
	"immersion/backend/internal/dto"
	"immersion/backend/internal/repository"
	"immersion/backend/internal/service"
	"immersion/backend/pkg/database"
	"immersion/backend/pkg/jwt"
	applogger "immersion/backend/pkg/logger"
	"immersion/backend/pkg/redis"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

var errUsage = errors.New("用法: immersionctl [-config 文件] <command> [-source 来源] | immersionctl list")

type cliArgs struct {
	configPath string
	command    string
	source     string
}

// parseArgs 解析全局参数与子命令参数
func parseArgs(args []string) (cliArgs, error) {
	var a cliArgs

	global := flag.NewFlagSet("immersionctl", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	global.StringVar(&a.configPath, "config", "", "配置文件路径")
	if err := global.Parse(args); err != nil {
		return a, errUsage
	}
	rest := global.Args()
	if len(rest) == 0 {
		return a, errUsage
	}
	a.command = rest[0]

	sub := flag.NewFlagSet(a.command, flag.ContinueOnError)
	sub.SetOutput(io.Discard)
	sub.StringVar(&a.source, "source", "", "导入类命令的数据来源")
	if err := sub.Parse(rest[1:]); err != nil {
		return a, errUsage
	}
	if sub.NArg() > 0 {
		return a, errUsage
	}
	return a, nil
}

// exitCode 命令结果对应的退出码
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case service.IsConfigError(err), errors.Is(err, service.ErrUnknownCommand):
		return exitConfig
	default:
		return exitFailure
	}
}

func printResult(w io.Writer, res *dto.JobResult, err error) {
	switch {
	case res != nil:
		status := "OK"
		if !res.Success {
			status = "FAILED"
		}
		fmt.Fprintf(w, "%s %s count=%d %s\n", status, res.Command, res.Count, res.Message)
	case err != nil:
		fmt.Fprintf(w, "FAILED %v\n", err)
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	a, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "加载配置失败: %v\n", err)
		return exitConfig
	}

	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "初始化日志失败: %v\n", err)
		return exitConfig
	}
	defer logger.Sync()
	logger = applogger.ForCommand(logger, a.command)

	// 列出命令无需连接数据库
	if a.command == "list" {
		svc := service.NewService(service.Deps{Config: cfg, Repo: repository.NewRepository(nil), Logger: logger})
		for _, c := range svc.Job.Commands() {
			fmt.Fprintln(stdout, c)
		}
		return exitOK
	}

	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Error("数据库连接失败", zap.Error(err))
		return exitFailure
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	// 定时命令不消费通知队列：不注入 Queue，通知同步投递
	deps := service.Deps{
		Config: cfg,
		Repo:   repository.NewRepository(db),
		JWT:    jwt.NewManager(&cfg.Auth),
		Logger: logger,
	}
	if rdb, err := redis.NewClient(&cfg.Redis, logger); err == nil {
		defer rdb.Close()
		deps.Locker = rdb
	} else {
		logger.Warn("Redis 不可用，使用进程内时段锁", zap.Error(err))
	}
	svc := service.NewService(deps)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := svc.Job.Run(ctx, a.command, service.JobOptions{Source: a.source})
	printResult(stdout, res, err)
	if err != nil {
		logger.Error("命令执行失败", zap.Error(err))
	}
	return exitCode(err)
}
