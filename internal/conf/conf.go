package conf

// Bootstrap 应用配置根结构
// 通过 kratos config 从 YAML 加载（c.Scan(&bc)）
type Bootstrap struct {
	Server   *Server   `json:"server"`
	Data     *Data     `json:"data"`
	Provider *Provider `json:"provider"`
	Billing  *Billing  `json:"billing"`
	Runner   *Runner   `json:"runner"`
	Webhook  *Webhook  `json:"webhook"`
	Sweeper  *Sweeper  `json:"sweeper"`
}

// Server 服务端配置
type Server struct {
	Http *HTTP `json:"http"`
}

// HTTP HTTP 服务配置
type HTTP struct {
	Network        string `json:"network"`
	Addr           string `json:"addr"`
	TimeoutSeconds int64  `json:"timeout_seconds"`
}

// Data 数据层配置
type Data struct {
	Database *Database `json:"database"`
	Redis    *Redis    `json:"redis"`
	Rocketmq *Rocketmq `json:"rocketmq"`
}

// Database 数据库配置
type Database struct {
	Source string `json:"source"`
}

// Redis Redis 配置
type Redis struct {
	Addr                string `json:"addr"`
	ReadTimeoutSeconds  int64  `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int64  `json:"write_timeout_seconds"`
}

// Rocketmq RocketMQ 充值事件消费配置（可选）
type Rocketmq struct {
	Enabled     bool     `json:"enabled"`
	NameServers []string `json:"name_servers"`
	GroupName   string   `json:"group_name"`
	Topic       string   `json:"topic"`
	RetryTimes  int32    `json:"retry_times"`
}

// Provider 生成服务提供商（fal 队列 API）配置
type Provider struct {
	BaseUrl        string `json:"base_url"`
	ApiKey         string `json:"api_key"`
	TimeoutSeconds int64  `json:"timeout_seconds"`
}

// Billing 计费配置
type Billing struct {
	// TokenPrices 按 (类型, 时长档位) 的代币价格覆盖，缺省使用内置默认值
	TokenPrices map[string]int64 `json:"token_prices"`
}

// Runner 任务执行器配置
type Runner struct {
	PollIntervalSeconds int64 `json:"poll_interval_seconds"`
	TotalTimeoutSeconds int64 `json:"total_timeout_seconds"`
}

// Webhook 支付回调配置
type Webhook struct {
	Secret string `json:"secret"`
}

// Sweeper 恢复扫描配置
type Sweeper struct {
	// Spec cron 表达式（支持秒级字段）
	Spec               string `json:"spec"`
	GracePeriodSeconds int64  `json:"grace_period_seconds"`
}
