package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	genErrors "generation-service/internal/errors"

	"github.com/google/uuid"
)

// fakeGenerationRepo 内存版 GenerationRepo，事务语义用互斥锁模拟
type fakeGenerationRepo struct {
	mu       sync.Mutex
	accounts map[string]*Account // key: accountID
	byExtID  map[string]string   // externalUserID -> accountID
	jobs     map[string]*GenerationJob
	jobOrder []string // 创建顺序，ListJobs 按其倒序返回
	entries  []*LedgerEntry
}

func newFakeGenerationRepo() *fakeGenerationRepo {
	return &fakeGenerationRepo{
		accounts: make(map[string]*Account),
		byExtID:  make(map[string]string),
		jobs:     make(map[string]*GenerationJob),
	}
}

func (f *fakeGenerationRepo) addAccount(externalUserID string, balance int64) *Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	account := &Account{
		AccountID:      uuid.New().String(),
		ExternalUserID: externalUserID,
		BalanceTokens:  balance,
	}
	f.accounts[account.AccountID] = account
	f.byExtID[externalUserID] = account.AccountID
	return &Account{AccountID: account.AccountID, ExternalUserID: externalUserID, BalanceTokens: balance}
}

func (f *fakeGenerationRepo) balance(accountID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[accountID]; ok {
		return a.BalanceTokens
	}
	return 0
}

func (f *fakeGenerationRepo) entriesByReason(reason string) []*LedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*LedgerEntry
	for _, e := range f.entries {
		if e.Reason == reason {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeGenerationRepo) appendEntry(accountID, direction, reason string, amount int64, externalRef string) {
	f.entries = append(f.entries, &LedgerEntry{
		LedgerEntryID: uuid.New().String(),
		AccountID:     accountID,
		Direction:     direction,
		Reason:        reason,
		Amount:        amount,
		ExternalRef:   externalRef,
		CreatedAt:     time.Now(),
	})
}

func (f *fakeGenerationRepo) CreateJobWithDebit(ctx context.Context, job *GenerationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[job.AccountID]
	if !ok {
		return fmt.Errorf("account not found: %s", job.AccountID)
	}
	if account.BalanceTokens < job.CostTokens {
		return genErrors.ErrorInsufficientBalance(
			"insufficient balance: have %d, need %d", account.BalanceTokens, job.CostTokens)
	}
	account.BalanceTokens -= job.CostTokens
	f.appendEntry(job.AccountID, DirectionDebit, ReasonGeneration, job.CostTokens, job.GenerationJobID)
	stored := *job
	stored.Status = StatusQueued
	f.jobs[job.GenerationJobID] = &stored
	f.jobOrder = append(f.jobOrder, job.GenerationJobID)
	return nil
}

func (f *fakeGenerationRepo) RefundJob(ctx context.Context, jobID string, amount int64, status, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return genErrors.ErrorJobNotFound("job not found: %s", jobID)
	}
	if IsTerminalStatus(job.Status) {
		return genErrors.ErrorJobAlreadyTerminal("job already terminal: %s, status=%s", jobID, job.Status)
	}
	job.Status = status
	job.ErrorMessage = errorMessage
	f.accounts[job.AccountID].BalanceTokens += amount
	f.appendEntry(job.AccountID, DirectionCredit, ReasonRefund, amount, jobID)
	return nil
}

func (f *fakeGenerationRepo) TopupWithIdempotency(ctx context.Context, externalUserID string, amount int64, eventID string) (*Account, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	accountID, ok := f.byExtID[externalUserID]
	if !ok {
		account := &Account{
			AccountID:      uuid.New().String(),
			ExternalUserID: externalUserID,
		}
		f.accounts[account.AccountID] = account
		f.byExtID[externalUserID] = account.AccountID
		accountID = account.AccountID
	}
	account := f.accounts[accountID]

	if eventID != "" {
		for _, e := range f.entries {
			if e.Reason == ReasonTopup && e.ExternalRef == eventID {
				snapshot := *account
				return &snapshot, false, nil
			}
		}
	}

	account.BalanceTokens += amount
	f.appendEntry(accountID, DirectionCredit, ReasonTopup, amount, eventID)
	snapshot := *account
	return &snapshot, true, nil
}

func (f *fakeGenerationRepo) GetJob(ctx context.Context, jobID string) (*GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, nil
	}
	snapshot := *job
	return &snapshot, nil
}

func (f *fakeGenerationRepo) ListJobs(ctx context.Context, accountID string, limit, offset int) ([]*GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*GenerationJob
	for i := len(f.jobOrder) - 1; i >= 0; i-- {
		job := f.jobs[f.jobOrder[i]]
		if job.AccountID == accountID {
			snapshot := *job
			matched = append(matched, &snapshot)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *fakeGenerationRepo) UpdateStatus(ctx context.Context, jobID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return genErrors.ErrorJobNotFound("job not found: %s", jobID)
	}
	if IsTerminalStatus(job.Status) {
		return genErrors.ErrorJobAlreadyTerminal("job already terminal: %s, status=%s", jobID, job.Status)
	}
	job.Status = status
	return nil
}

func (f *fakeGenerationRepo) MarkSubmitted(ctx context.Context, jobID, requestID, statusURL, responseURL, cancelURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return genErrors.ErrorJobNotFound("job not found: %s", jobID)
	}
	if IsTerminalStatus(job.Status) {
		return genErrors.ErrorJobAlreadyTerminal("job already terminal: %s, status=%s", jobID, job.Status)
	}
	job.Status = StatusSubmitted
	job.ProviderRequestID = requestID
	job.StatusURL = statusURL
	job.ResponseURL = responseURL
	job.CancelURL = cancelURL
	return nil
}

func (f *fakeGenerationRepo) MarkCompleted(ctx context.Context, jobID string, result json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return genErrors.ErrorJobNotFound("job not found: %s", jobID)
	}
	if IsTerminalStatus(job.Status) {
		return genErrors.ErrorJobAlreadyTerminal("job already terminal: %s, status=%s", jobID, job.Status)
	}
	job.Status = StatusCompleted
	job.ResultJSON = result
	return nil
}

func (f *fakeGenerationRepo) ListStuckQueued(ctx context.Context, olderThan time.Time) ([]*GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*GenerationJob
	for _, job := range f.jobs {
		if job.Status == StatusQueued && job.CreatedAt.Before(olderThan) {
			snapshot := *job
			out = append(out, &snapshot)
		}
	}
	return out, nil
}

func (f *fakeGenerationRepo) ListExpiredRunning(ctx context.Context, olderThan time.Time) ([]*GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*GenerationJob
	for _, job := range f.jobs {
		switch job.Status {
		case StatusSubmitted, StatusInQueue, StatusInProgress:
			if job.CreatedAt.Before(olderThan) {
				snapshot := *job
				out = append(out, &snapshot)
			}
		}
	}
	return out, nil
}

// fakeProvider 可编程的 ProviderClient
type fakeProvider struct {
	mu          sync.Mutex
	submitFn    func(modelID string, payload json.RawMessage) (*SubmitReply, error)
	statusFn    func(statusURL string) (*StatusReply, error)
	resultFn    func(responseURL string) (json.RawMessage, error)
	cancelErr   error
	statusCalls int
	cancelCalls int
	canceledURL string
}

func (p *fakeProvider) Submit(ctx context.Context, modelID string, payload json.RawMessage) (*SubmitReply, error) {
	if p.submitFn != nil {
		return p.submitFn(modelID, payload)
	}
	return &SubmitReply{RequestID: "req-1"}, nil
}

func (p *fakeProvider) GetStatus(ctx context.Context, statusURL string) (*StatusReply, error) {
	p.mu.Lock()
	p.statusCalls++
	p.mu.Unlock()
	if p.statusFn != nil {
		return p.statusFn(statusURL)
	}
	return &StatusReply{Status: StatusCompleted}, nil
}

func (p *fakeProvider) GetResult(ctx context.Context, responseURL string) (json.RawMessage, error) {
	if p.resultFn != nil {
		return p.resultFn(responseURL)
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (p *fakeProvider) Cancel(ctx context.Context, cancelURL string) error {
	p.mu.Lock()
	p.cancelCalls++
	p.canceledURL = cancelURL
	p.mu.Unlock()
	return p.cancelErr
}

// fakeLocker 总能拿到锁的 RunLocker
type fakeLocker struct {
	busy bool
}

func (l *fakeLocker) Acquire(ctx context.Context, jobID string) (func(), error) {
	if l.busy {
		return nil, fmt.Errorf("lock busy: %s", jobID)
	}
	return func() {}, nil
}

// fakeAccountRepo 内存版 AccountRepo
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*Account // key: externalUserID
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*Account)}
}

func (f *fakeAccountRepo) GetByExternalID(ctx context.Context, externalUserID string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[externalUserID]; ok {
		snapshot := *a
		return &snapshot, nil
	}
	return nil, nil
}

func (f *fakeAccountRepo) GetByFingerprint(ctx context.Context, fingerprint string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.APIKeyFingerprint == fingerprint {
			snapshot := *a
			return &snapshot, nil
		}
	}
	return nil, nil
}

func (f *fakeAccountRepo) Create(ctx context.Context, externalUserID, apiKeyHash, apiKeyFingerprint string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[externalUserID]; ok {
		return nil, genErrors.ErrorUserAlreadyExists("account already exists: %s", externalUserID)
	}
	account := &Account{
		AccountID:         uuid.New().String(),
		ExternalUserID:    externalUserID,
		APIKeyHash:        apiKeyHash,
		APIKeyFingerprint: apiKeyFingerprint,
		CreatedAt:         time.Now(),
	}
	f.accounts[externalUserID] = account
	snapshot := *account
	return &snapshot, nil
}

func (f *fakeAccountRepo) UpdateAPIKey(ctx context.Context, accountID, apiKeyHash, apiKeyFingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.AccountID == accountID {
			a.APIKeyHash = apiKeyHash
			a.APIKeyFingerprint = apiKeyFingerprint
			return nil
		}
	}
	return fmt.Errorf("account not found: %s", accountID)
}

func (f *fakeAccountRepo) GetBalance(ctx context.Context, accountID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.AccountID == accountID {
			return a.BalanceTokens, nil
		}
	}
	return 0, nil
}
