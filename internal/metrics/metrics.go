package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GenerationMetrics 生成服务指标
type GenerationMetrics struct {
	// 任务相关指标
	JobCreateTotal    *prometheus.CounterVec   // 任务创建总数（按类型、结果）
	JobCreateDuration *prometheus.HistogramVec // 任务创建耗时
	JobOutcomeTotal   *prometheus.CounterVec   // 任务终态总数（按类型、终态）
	JobRunDuration    *prometheus.HistogramVec // 任务从提交到终态的耗时
	JobsInFlight      prometheus.Gauge         // 正在执行的任务数

	// 余额/账本相关指标
	DebitTotal   *prometheus.CounterVec // 扣费总数（按类型）
	DebitAmount  *prometheus.CounterVec // 扣费代币总量（按类型）
	RefundTotal  *prometheus.CounterVec // 退款总数（按终态）
	RefundAmount prometheus.Counter     // 退款代币总量

	// 充值相关指标
	TopupTotal        *prometheus.CounterVec // 充值总数（按结果：credited/duplicate/failed）
	TopupAmount       prometheus.Counter     // 充值代币总量
	BalanceQueryTotal prometheus.Counter     // 余额查询总数

	// 提供商相关指标
	ProviderRequestTotal    *prometheus.CounterVec   // 提供商调用总数（按操作、结果）
	ProviderRequestDuration *prometheus.HistogramVec // 提供商调用耗时

	// 分布式锁相关指标
	LockAcquireTotal    *prometheus.CounterVec // 锁获取总数（按结果）
	LockAcquireDuration prometheus.Histogram   // 锁获取耗时

	// 恢复扫描相关指标
	SweepRequeuedTotal prometheus.Counter // 扫描重新调度的任务数
	SweepExpiredTotal  prometheus.Counter // 扫描强制失败的超时任务数
}

// NewGenerationMetrics 创建生成服务指标
func NewGenerationMetrics() *GenerationMetrics {
	return &GenerationMetrics{
		JobCreateTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_job_create_total",
				Help: "Total number of generation job creations",
			},
			[]string{"kind", "result"}, // result: created/insufficient_balance/error
		),
		JobCreateDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "generation_job_create_duration_seconds",
				Help:    "Duration of generation job creation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		JobOutcomeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_job_outcome_total",
				Help: "Total number of generation jobs reaching a terminal status",
			},
			[]string{"kind", "status"}, // status: COMPLETED/FAILED/CANCELED
		),
		JobRunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "generation_job_run_duration_seconds",
				Help:    "Duration from submission to terminal status",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
			},
			[]string{"kind"},
		),
		JobsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "generation_jobs_in_flight",
				Help: "Number of job runners currently active",
			},
		),

		DebitTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_debit_total",
				Help: "Total number of balance debits",
			},
			[]string{"kind"},
		),
		DebitAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_debit_amount_total",
				Help: "Total tokens debited",
			},
			[]string{"kind"},
		),
		RefundTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_refund_total",
				Help: "Total number of refunds",
			},
			[]string{"status"}, // status: FAILED/CANCELED
		),
		RefundAmount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "generation_refund_amount_total",
				Help: "Total tokens refunded",
			},
		),

		TopupTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_topup_total",
				Help: "Total number of topup settlements",
			},
			[]string{"result"}, // result: credited/duplicate/failed
		),
		TopupAmount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "generation_topup_amount_total",
				Help: "Total tokens credited by topups",
			},
		),
		BalanceQueryTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "generation_balance_query_total",
				Help: "Total number of balance queries",
			},
		),

		ProviderRequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_provider_request_total",
				Help: "Total number of provider API calls",
			},
			[]string{"op", "result"}, // op: submit/status/result/cancel
		),
		ProviderRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "generation_provider_request_duration_seconds",
				Help:    "Duration of provider API calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_lock_acquire_total",
				Help: "Total number of runner lock acquisition attempts",
			},
			[]string{"result"}, // result: success/failed
		),
		LockAcquireDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "generation_lock_acquire_duration_seconds",
				Help:    "Duration of runner lock acquisition",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),

		SweepRequeuedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "generation_sweep_requeued_total",
				Help: "Total number of stuck jobs rescheduled by the recovery sweep",
			},
		),
		SweepExpiredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "generation_sweep_expired_total",
				Help: "Total number of expired jobs failed by the recovery sweep",
			},
		),
	}
}

// 全局指标实例
var defaultMetrics *GenerationMetrics

// InitMetrics 初始化全局指标
func InitMetrics() {
	defaultMetrics = NewGenerationMetrics()
}

// GetMetrics 获取全局指标实例
func GetMetrics() *GenerationMetrics {
	if defaultMetrics == nil {
		InitMetrics()
	}
	return defaultMetrics
}
