package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"generation-service/internal/biz"
	"generation-service/internal/conf"
	"generation-service/internal/constants"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

var (
	flagconf string
)

// SweeperApp 恢复扫描应用结构
type SweeperApp struct {
	sweep      *biz.SweepUseCase
	dispatcher *biz.Dispatcher
}

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	// 初始化配置
	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	// 初始化日志 (使用 go-pkg/logger)
	logConfig := &logger.Config{
		Level:         "info",
		Format:        "json",
		Output:        "stdout",
		FilePath:      "logs/generation-sweeper.log",
		MaxSize:       100,
		MaxAge:        30,
		MaxBackups:    10,
		Compress:      true,
		EnableConsole: true,
	}

	loggerInstance := logger.NewLogger(logConfig)

	// 添加基本字段
	loggerInstance = log.With(loggerInstance,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "generation-sweeper",
	)

	logHelper := log.NewHelper(loggerInstance)

	// 初始化应用
	app, cleanup, err := wireApp(&bc, loggerInstance)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	spec := constants.DefaultSweepSpec
	if bc.Sweeper != nil && bc.Sweeper.Spec != "" {
		spec = bc.Sweeper.Spec
	}

	// 创建定时任务调度器（支持秒级调度）
	cronScheduler := cron.New(cron.WithSeconds())

	// 恢复扫描：重新调度卡在 QUEUED 的任务，对超时在途任务退款
	_, err = cronScheduler.AddFunc(spec, func() {
		logHelper.Info("[CRON] Starting recovery sweep...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := app.sweep.Sweep(ctx); err != nil {
			logHelper.Errorf("[CRON] Recovery sweep failed: %v", err)
		} else {
			logHelper.Info("[CRON] Finished recovery sweep")
		}
	})
	if err != nil {
		logHelper.Errorf("Failed to add recovery sweep job: %v", err)
	}

	// 启动定时任务
	cronScheduler.Start()
	logHelper.Info("========================================")
	logHelper.Info("Sweeper started successfully")
	logHelper.Infof("Scheduled jobs:")
	logHelper.Infof("  - Recovery sweep: %s", spec)
	logHelper.Info("========================================")

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logHelper.Info("Shutting down gracefully...")

	// 停止定时任务
	cronCtx := cronScheduler.Stop()
	select {
	case <-cronCtx.Done():
		logHelper.Info("Sweep jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		logHelper.Info("Sweep jobs forced to stop after timeout")
	}

	// 等待扫描期间调度的任务执行协程退出
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.dispatcher.Stop(stopCtx); err != nil {
		logHelper.Warnf("Dispatcher stop timed out: %v", err)
	}
}
