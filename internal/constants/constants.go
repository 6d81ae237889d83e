package constants

import "time"

// Redis Key 前缀常量
const (
	// RedisKeyBalance 余额缓存 key 前缀
	RedisKeyBalance = "balance:"
	// RedisKeyRunnerLock 任务执行器互斥锁 key 前缀
	RedisKeyRunnerLock = "genjob:run:"
)

// 缓存相关常量
const (
	// BalanceCacheTTL 余额缓存有效期
	BalanceCacheTTL = 5 * time.Minute
	// CacheWriteTimeout 缓存写入超时（缓存失败不影响主流程）
	CacheWriteTimeout = 1 * time.Second
)

// 任务执行器默认值
const (
	// DefaultPollInterval 轮询提供商状态的间隔
	DefaultPollInterval = 2 * time.Second
	// DefaultTotalTimeout 单个任务从提交到终态的最长等待时间
	DefaultTotalTimeout = 15 * time.Minute
	// RunnerLockExpiry 任务执行器分布式锁过期时间
	RunnerLockExpiry = 30 * time.Second
)

// 恢复扫描默认值
const (
	// DefaultSweepSpec 默认每 5 分钟扫描一次（秒级 cron 表达式）
	DefaultSweepSpec = "0 */5 * * * *"
	// DefaultSweepGracePeriod 任务滞留多久之后才会被扫描处理
	DefaultSweepGracePeriod = 5 * time.Minute
)

// 分页常量
const (
	// DefaultPageSize 默认分页大小
	DefaultPageSize = 20
	// MaxPageSize 最大分页大小
	MaxPageSize = 100
)

// HTTP 头常量
const (
	// HeaderAPIKey API 密钥头
	HeaderAPIKey = "X-API-Key"
	// HeaderWebhookSecret 回调密钥头
	HeaderWebhookSecret = "X-Webhook-Secret"
	// HeaderEventID 回调幂等事件ID头
	HeaderEventID = "X-Event-Id"
)

// 锁获取结果常量（用于指标）
const (
	// LockResultSuccess 成功
	LockResultSuccess = "success"
	// LockResultFailed 失败
	LockResultFailed = "failed"
)

// 默认的回退错误信息
const (
	// ProviderDefaultError 提供商未给出错误信息时的缺省值
	ProviderDefaultError = "failed"
	// TimeoutErrorMessage 等待提供商超时
	TimeoutErrorMessage = "timeout waiting for provider"
	// CanceledErrorMessage 用户主动取消
	CanceledErrorMessage = "canceled"
)
