package biz

import (
	"context"
	"encoding/json"
	"strings"
)

// ProviderClient 生成服务提供商客户端接口（fal 队列 API）
// 四个方法均发生网络调用，传输/HTTP 错误以 error 形式返回，
// 由任务执行器统一处理为退款路径
type ProviderClient interface {
	Submit(ctx context.Context, modelID string, payload json.RawMessage) (*SubmitReply, error)
	GetStatus(ctx context.Context, statusURL string) (*StatusReply, error)
	GetResult(ctx context.Context, responseURL string) (json.RawMessage, error)
	Cancel(ctx context.Context, cancelURL string) error
}

// SubmitReply 提交响应
// 提供商的字段命名存在 snake_case 与 camelCase 两种风格，两种都接受
type SubmitReply struct {
	RequestID      string `json:"request_id"`
	ID             string `json:"id"`
	StatusURL      string `json:"status_url"`
	StatusURLAlt   string `json:"statusUrl"`
	ResponseURL    string `json:"response_url"`
	ResponseURLAlt string `json:"responseUrl"`
	CancelURL      string `json:"cancel_url"`
	CancelURLAlt   string `json:"cancelUrl"`
}

// GetRequestID 提取请求ID（两种别名其一），均缺失返回空串
func (r *SubmitReply) GetRequestID() string {
	if r.RequestID != "" {
		return r.RequestID
	}
	return r.ID
}

// GetStatusURL 提取状态URL
func (r *SubmitReply) GetStatusURL() string {
	if r.StatusURL != "" {
		return r.StatusURL
	}
	return r.StatusURLAlt
}

// GetResponseURL 提取结果URL
func (r *SubmitReply) GetResponseURL() string {
	if r.ResponseURL != "" {
		return r.ResponseURL
	}
	return r.ResponseURLAlt
}

// GetCancelURL 提取取消URL
func (r *SubmitReply) GetCancelURL() string {
	if r.CancelURL != "" {
		return r.CancelURL
	}
	return r.CancelURLAlt
}

// StatusReply 状态查询响应
type StatusReply struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Error  string `json:"error"`
}

// GetStatus 提取状态值（status 与 state 两种别名）
func (r *StatusReply) GetStatus() string {
	if r.Status != "" {
		return r.Status
	}
	return r.State
}

// BaseModel 模型ID的基础部分（前两段路径），用于合成回调URL
func BaseModel(modelID string) string {
	parts := strings.Split(modelID, "/")
	if len(parts) >= 2 {
		return strings.Join(parts[:2], "/")
	}
	return modelID
}

// BuildStatusURL 合成状态URL：{base}/{model-prefix}/requests/{request_id}/status
func BuildStatusURL(base, modelID, requestID string) string {
	return base + "/" + BaseModel(modelID) + "/requests/" + requestID + "/status"
}

// BuildResultURL 合成结果URL：{base}/{model-prefix}/requests/{request_id}
func BuildResultURL(base, modelID, requestID string) string {
	return base + "/" + BaseModel(modelID) + "/requests/" + requestID
}

// BuildCancelURL 合成取消URL：{base}/{model-prefix}/requests/{request_id}/cancel
func BuildCancelURL(base, modelID, requestID string) string {
	return base + "/" + BaseModel(modelID) + "/requests/" + requestID + "/cancel"
}
