package biz

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"generation-service/internal/constants"
	genErrors "generation-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() log.Logger {
	return log.NewStdLogger(io.Discard)
}

func newTestGenerationUseCase(repo GenerationRepo, provider ProviderClient) *GenerationUseCase {
	return NewGenerationUseCase(repo, provider, NewPricingConfig(nil), NewRunnerConfig(nil), newTestLogger())
}

func TestCalculateCostDefaults(t *testing.T) {
	uc := newTestGenerationUseCase(newFakeGenerationRepo(), &fakeProvider{})

	tests := []struct {
		kind     string
		duration int
		want     int64
	}{
		{KindTextToImage, 0, 5},
		{KindImageToImage, 0, 6},
		{KindTextToVideo, 5, 30},
		{KindTextToVideo, 10, 55},
		{KindImageToVideo, 5, 35},
		{KindImageToVideo, 10, 65},
		// 非 10 一律按 5s 档
		{KindTextToVideo, 0, 30},
		{KindImageToVideo, 7, 35},
	}
	for _, tt := range tests {
		cost, err := uc.CalculateCost(tt.kind, tt.duration)
		require.NoError(t, err)
		assert.Equal(t, tt.want, cost, "kind=%s duration=%d", tt.kind, tt.duration)
	}
}

func TestCalculateCostUnknownKind(t *testing.T) {
	uc := newTestGenerationUseCase(newFakeGenerationRepo(), &fakeProvider{})
	_, err := uc.CalculateCost("TEXT_TO_AUDIO", 0)
	require.Error(t, err)
}

func TestCreateJobDebitsAndQueues(t *testing.T) {
	repo := newFakeGenerationRepo()
	uc := newTestGenerationUseCase(repo, &fakeProvider{})
	account := repo.addAccount("user-1", 100)

	job, err := uc.CreateJob(context.Background(), account, KindTextToVideo,
		"fal-ai/wan-25-preview/text-to-video", json.RawMessage(`{"prompt":"a cat"}`), 10)
	require.NoError(t, err)

	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, int64(55), job.CostTokens)
	assert.Equal(t, int64(45), repo.balance(account.AccountID))

	debits := repo.entriesByReason(ReasonGeneration)
	require.Len(t, debits, 1)
	assert.Equal(t, DirectionDebit, debits[0].Direction)
	assert.Equal(t, int64(55), debits[0].Amount)
	assert.Equal(t, job.GenerationJobID, debits[0].ExternalRef)
}

func TestCreateJobInsufficientBalance(t *testing.T) {
	repo := newFakeGenerationRepo()
	uc := newTestGenerationUseCase(repo, &fakeProvider{})
	account := repo.addAccount("user-1", 4)

	_, err := uc.CreateJob(context.Background(), account, KindTextToImage,
		"fal-ai/wan-25-preview/text-to-image", json.RawMessage(`{}`), 0)
	require.Error(t, err)
	assert.True(t, genErrors.IsInsufficientBalance(err))

	// 失败不产生任何变更
	assert.Equal(t, int64(4), repo.balance(account.AccountID))
	assert.Empty(t, repo.entriesByReason(ReasonGeneration))
}

func TestCreateJobConcurrentDebitsSerialize(t *testing.T) {
	repo := newFakeGenerationRepo()
	uc := newTestGenerationUseCase(repo, &fakeProvider{})
	account := repo.addAccount("user-1", 5) // 正好够一次文生图

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.CreateJob(context.Background(), account, KindTextToImage,
				"fal-ai/wan-25-preview/text-to-image", json.RawMessage(`{}`), 0)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, genErrors.IsInsufficientBalance(err))
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(0), repo.balance(account.AccountID))
}

func TestRefundJobIsGuardedByTerminalState(t *testing.T) {
	repo := newFakeGenerationRepo()
	uc := newTestGenerationUseCase(repo, &fakeProvider{})
	account := repo.addAccount("user-1", 10)

	job, err := uc.CreateJob(context.Background(), account, KindTextToImage,
		"fal-ai/wan-25-preview/text-to-image", json.RawMessage(`{}`), 0)
	require.NoError(t, err)
	require.Equal(t, int64(5), repo.balance(account.AccountID))

	require.NoError(t, uc.RefundJob(context.Background(), job, "boom", StatusFailed))
	assert.Equal(t, int64(10), repo.balance(account.AccountID))

	stored, err := repo.GetJob(context.Background(), job.GenerationJobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, "boom", stored.ErrorMessage)

	// 第二次退款被终态保护拒绝，余额不变
	err = uc.RefundJob(context.Background(), job, "boom again", StatusFailed)
	require.Error(t, err)
	assert.True(t, genErrors.IsJobAlreadyTerminal(err))
	assert.Equal(t, int64(10), repo.balance(account.AccountID))
	assert.Len(t, repo.entriesByReason(ReasonRefund), 1)
}

func TestCancelQueuedJobSkipsProvider(t *testing.T) {
	repo := newFakeGenerationRepo()
	provider := &fakeProvider{}
	uc := newTestGenerationUseCase(repo, provider)
	account := repo.addAccount("user-1", 10)

	job, err := uc.CreateJob(context.Background(), account, KindTextToImage,
		"fal-ai/wan-25-preview/text-to-image", json.RawMessage(`{}`), 0)
	require.NoError(t, err)

	canceled, err := uc.CancelJob(context.Background(), job.GenerationJobID, account)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)
	assert.Equal(t, constants.CanceledErrorMessage, canceled.ErrorMessage)
	assert.Equal(t, int64(10), repo.balance(account.AccountID))
	assert.Equal(t, 0, provider.cancelCalls)
}

func TestCancelSubmittedJobCallsProvider(t *testing.T) {
	repo := newFakeGenerationRepo()
	provider := &fakeProvider{}
	uc := newTestGenerationUseCase(repo, provider)
	account := repo.addAccount("user-1", 10)

	job, err := uc.CreateJob(context.Background(), account, KindTextToImage,
		"fal-ai/wan-25-preview/text-to-image", json.RawMessage(`{}`), 0)
	require.NoError(t, err)
	require.NoError(t, repo.MarkSubmitted(context.Background(), job.GenerationJobID,
		"req-1", "https://queue.fal.run/fal-ai/wan-25-preview/requests/req-1/status",
		"https://queue.fal.run/fal-ai/wan-25-preview/requests/req-1",
		"https://queue.fal.run/fal-ai/wan-25-preview/requests/req-1/cancel"))

	canceled, err := uc.CancelJob(context.Background(), job.GenerationJobID, account)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)
	assert.Equal(t, 1, provider.cancelCalls)
	assert.Equal(t, "https://queue.fal.run/fal-ai/wan-25-preview/requests/req-1/cancel", provider.canceledURL)
	assert.Equal(t, int64(10), repo.balance(account.AccountID))
}

func TestCancelFinishedJobRejected(t *testing.T) {
	repo := newFakeGenerationRepo()
	uc := newTestGenerationUseCase(repo, &fakeProvider{})
	account := repo.addAccount("user-1", 10)

	job, err := uc.CreateJob(context.Background(), account, KindTextToImage,
		"fal-ai/wan-25-preview/text-to-image", json.RawMessage(`{}`), 0)
	require.NoError(t, err)
	require.NoError(t, repo.MarkCompleted(context.Background(), job.GenerationJobID, json.RawMessage(`{}`)))

	_, err = uc.CancelJob(context.Background(), job.GenerationJobID, account)
	require.Error(t, err)
	assert.True(t, genErrors.IsJobFinished(err))
	// 已完成的任务不退款
	assert.Equal(t, int64(5), repo.balance(account.AccountID))
}

func TestGetJobHidesOtherAccounts(t *testing.T) {
	repo := newFakeGenerationRepo()
	uc := newTestGenerationUseCase(repo, &fakeProvider{})
	owner := repo.addAccount("user-1", 10)
	other := repo.addAccount("user-2", 10)

	job, err := uc.CreateJob(context.Background(), owner, KindTextToImage,
		"fal-ai/wan-25-preview/text-to-image", json.RawMessage(`{}`), 0)
	require.NoError(t, err)

	got, err := uc.GetJob(context.Background(), job.GenerationJobID, other)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = uc.GetJob(context.Background(), job.GenerationJobID, owner)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.GenerationJobID, got.GenerationJobID)
}

func TestListJobsNewestFirst(t *testing.T) {
	repo := newFakeGenerationRepo()
	uc := newTestGenerationUseCase(repo, &fakeProvider{})
	account := repo.addAccount("user-1", 100)

	var created []string
	for i := 0; i < 3; i++ {
		job, err := uc.CreateJob(context.Background(), account, KindTextToImage,
			"fal-ai/wan-25-preview/text-to-image", json.RawMessage(`{}`), 0)
		require.NoError(t, err)
		created = append(created, job.GenerationJobID)
	}

	jobs, err := uc.ListJobs(context.Background(), account, 10, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	// 创建顺序的倒序
	assert.Equal(t, created[2], jobs[0].GenerationJobID)
	assert.Equal(t, created[1], jobs[1].GenerationJobID)
	assert.Equal(t, created[0], jobs[2].GenerationJobID)

	page, err := uc.ListJobs(context.Background(), account, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, created[1], page[0].GenerationJobID)
}

func TestStatusFromProviderUnknownMapsToInQueue(t *testing.T) {
	assert.Equal(t, StatusInQueue, StatusFromProvider("SOMETHING_NEW"))
	assert.Equal(t, StatusInQueue, StatusFromProvider(""))
	assert.Equal(t, StatusInQueue, StatusFromProvider(StatusQueued))
	assert.Equal(t, StatusCompleted, StatusFromProvider(StatusCompleted))
	assert.Equal(t, StatusInProgress, StatusFromProvider(StatusInProgress))
}

func TestBuildProviderURLs(t *testing.T) {
	assert.Equal(t, "fal-ai/wan-25-preview", BaseModel("fal-ai/wan-25-preview/text-to-video"))
	assert.Equal(t, "fal-ai/flux", BaseModel("fal-ai/flux"))

	base := "https://queue.fal.run"
	model := "fal-ai/wan-25-preview/text-to-video"
	assert.Equal(t,
		"https://queue.fal.run/fal-ai/wan-25-preview/requests/req-9/status",
		BuildStatusURL(base, model, "req-9"))
	assert.Equal(t,
		"https://queue.fal.run/fal-ai/wan-25-preview/requests/req-9",
		BuildResultURL(base, model, "req-9"))
	assert.Equal(t,
		"https://queue.fal.run/fal-ai/wan-25-preview/requests/req-9/cancel",
		BuildCancelURL(base, model, "req-9"))
}
