package server

import (
	"context"
	"time"

	"generation-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// RunnerServer 将任务调度器接入应用生命周期
// 停机时取消所有在途任务协程并限时等待退出，
// 未跑完的任务停留在最后一次落库的状态，由恢复扫描接手
type RunnerServer struct {
	dispatcher *biz.Dispatcher
	log        *log.Helper
}

// NewRunnerServer 创建 RunnerServer
func NewRunnerServer(dispatcher *biz.Dispatcher, logger log.Logger) *RunnerServer {
	return &RunnerServer{
		dispatcher: dispatcher,
		log:        log.NewHelper(logger),
	}
}

// Start 无需启动动作，任务由 HTTP 层按需调度
func (s *RunnerServer) Start(ctx context.Context) error {
	s.log.Info("job dispatcher ready")
	return nil
}

// Stop 停止调度器
func (s *RunnerServer) Stop(ctx context.Context) error {
	s.log.Info("stopping job dispatcher")
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.dispatcher.Stop(stopCtx)
}
