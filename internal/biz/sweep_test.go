package biz

import (
	"context"
	"testing"
	"time"

	"generation-service/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSweep(repo *fakeGenerationRepo, provider *fakeProvider) (*SweepUseCase, *Dispatcher, *GenerationUseCase) {
	runner, gen := newTestRunner(repo, provider, &fakeLocker{})
	dispatcher := NewDispatcher(runner, newTestLogger())
	sweep := NewSweepUseCase(repo, gen, dispatcher, &SweepConfig{GracePeriod: 0}, newTestLogger())
	return sweep, dispatcher, gen
}

func TestSweepRequeuesStuckQueuedJobs(t *testing.T) {
	repo := newFakeGenerationRepo()
	provider := &fakeProvider{}
	sweep, dispatcher, gen := newTestSweep(repo, provider)
	account, job := queueJob(t, repo, gen, 10)

	require.NoError(t, sweep.Sweep(context.Background()))

	// 重新调度后任务由执行器跑到终态
	require.Eventually(t, func() bool {
		stored, err := repo.GetJob(context.Background(), job.GenerationJobID)
		return err == nil && stored.Status == StatusCompleted
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(5), repo.balance(account.AccountID))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, dispatcher.Stop(stopCtx))
}

func TestSweepRefundsExpiredRunningJobs(t *testing.T) {
	repo := newFakeGenerationRepo()
	sweep, _, gen := newTestSweep(repo, &fakeProvider{})
	account, job := queueJob(t, repo, gen, 10)

	// 模拟旧进程崩溃遗留的在途任务
	require.NoError(t, repo.MarkSubmitted(context.Background(), job.GenerationJobID,
		"req-1", "s-url", "r-url", "c-url"))
	repo.mu.Lock()
	repo.jobs[job.GenerationJobID].CreatedAt = time.Now().Add(-time.Hour)
	repo.mu.Unlock()

	require.NoError(t, sweep.Sweep(context.Background()))

	stored, err := repo.GetJob(context.Background(), job.GenerationJobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, constants.TimeoutErrorMessage, stored.ErrorMessage)
	assert.Equal(t, int64(10), repo.balance(account.AccountID))
}

func TestSweepSkipsFreshAndTerminalJobs(t *testing.T) {
	repo := newFakeGenerationRepo()
	sweep, _, gen := newTestSweep(repo, &fakeProvider{})
	account, job := queueJob(t, repo, gen, 10)

	// 在途但未超时的任务不动
	require.NoError(t, repo.MarkSubmitted(context.Background(), job.GenerationJobID,
		"req-1", "s-url", "r-url", "c-url"))
	require.NoError(t, sweep.Sweep(context.Background()))

	stored, err := repo.GetJob(context.Background(), job.GenerationJobID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, stored.Status)
	assert.Equal(t, int64(5), repo.balance(account.AccountID))
}
