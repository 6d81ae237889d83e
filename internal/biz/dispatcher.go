package biz

import (
	"context"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
)

// Dispatcher 后台任务调度器
// 每个任务一个 goroutine，统一挂在可取消的基础上下文下，
// 停机时取消上下文并等待所有执行协程退出
type Dispatcher struct {
	runner *JobRunner
	log    *log.Helper

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher 创建调度器
func NewDispatcher(runner *JobRunner, logger log.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		runner:  runner,
		log:     log.NewHelper(logger),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Dispatch 异步启动一个任务的执行协议，立即返回
func (d *Dispatcher) Dispatch(jobID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				d.log.Errorf("job runner panic: job_id=%s, panic=%v", jobID, rec)
			}
		}()
		d.runner.Run(d.baseCtx, jobID)
	}()
}

// Stop 取消所有在途任务并等待协程退出；ctx 超时则放弃等待
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.log.Warn("dispatcher stop timed out waiting for running jobs")
		return ctx.Err()
	}
}
