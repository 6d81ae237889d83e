package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"generation-service/internal/biz"
	"generation-service/internal/conf"
	"generation-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// providerClient fal 队列 API 客户端，实现 biz.ProviderClient 接口
// 轮询与取消使用提交时返回的绝对 URL，不经过固定 endpoint
type providerClient struct {
	base    string
	apiKey  string
	client  *http.Client
	log     *log.Helper
	metrics *metrics.GenerationMetrics
}

// NewProviderClient 创建提供商客户端（返回 biz.ProviderClient 接口）
func NewProviderClient(c *conf.Bootstrap, logger log.Logger) biz.ProviderClient {
	base := "https://queue.fal.run"
	apiKey := ""
	timeout := 30 * time.Second
	if c != nil && c.Provider != nil {
		if c.Provider.BaseUrl != "" {
			base = c.Provider.BaseUrl
		}
		apiKey = c.Provider.ApiKey
		if c.Provider.TimeoutSeconds > 0 {
			timeout = time.Duration(c.Provider.TimeoutSeconds) * time.Second
		}
	}
	return &providerClient{
		base:    strings.TrimRight(base, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// Submit 提交生成请求
func (p *providerClient) Submit(ctx context.Context, modelID string, payload json.RawMessage) (*biz.SubmitReply, error) {
	url := fmt.Sprintf("%s/%s", p.base, modelID)
	body, err := p.do(ctx, http.MethodPost, url, payload, "submit")
	if err != nil {
		return nil, err
	}

	var reply biz.SubmitReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode submit response: %w", err)
	}
	return &reply, nil
}

// GetStatus 查询任务状态
func (p *providerClient) GetStatus(ctx context.Context, statusURL string) (*biz.StatusReply, error) {
	body, err := p.do(ctx, http.MethodGet, statusURL, nil, "status")
	if err != nil {
		return nil, err
	}

	var reply biz.StatusReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &reply, nil
}

// GetResult 拉取任务结果（原样返回结果 JSON）
func (p *providerClient) GetResult(ctx context.Context, responseURL string) (json.RawMessage, error) {
	body, err := p.do(ctx, http.MethodGet, responseURL, nil, "result")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// Cancel 请求取消任务
func (p *providerClient) Cancel(ctx context.Context, cancelURL string) error {
	_, err := p.do(ctx, http.MethodPut, cancelURL, nil, "cancel")
	return err
}

// do 发起一次提供商调用并记录指标
func (p *providerClient) do(ctx context.Context, method, url string, payload []byte, op string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+p.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	startTime := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.observe(op, "error", startTime)
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.observe(op, "error", startTime)
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.observe(op, "error", startTime)
		p.log.Warnf("provider returned non-2xx: op=%s, status=%d, body=%s", op, resp.StatusCode, truncate(body, 256))
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	p.observe(op, "success", startTime)
	return body, nil
}

func (p *providerClient) observe(op, result string, startTime time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.ProviderRequestTotal.WithLabelValues(op, result).Inc()
	p.metrics.ProviderRequestDuration.WithLabelValues(op).Observe(time.Since(startTime).Seconds())
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
