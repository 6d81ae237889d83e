package errors

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/errors"
)

// Generation Service 错误定义
// 基于 kratos errors（code + reason），表现层按 code 映射 HTTP 状态码。
//
// 模块划分：
//   余额模块：INSUFFICIENT_BALANCE
//   账户模块：USER_ALREADY_EXISTS / UNAUTHORIZED
//   任务模块：JOB_NOT_FOUND / JOB_FINISHED / JOB_ALREADY_TERMINAL
//   回调模块：WEBHOOK_SECRET_INVALID

// 错误 reason 常量
const (
	ReasonInsufficientBalance = "INSUFFICIENT_BALANCE"
	ReasonUserAlreadyExists   = "USER_ALREADY_EXISTS"
	ReasonUnauthorized        = "UNAUTHORIZED"
	ReasonJobNotFound         = "JOB_NOT_FOUND"
	ReasonJobFinished         = "JOB_FINISHED"
	ReasonJobAlreadyTerminal  = "JOB_ALREADY_TERMINAL"
	ReasonWebhookSecret       = "WEBHOOK_SECRET_INVALID"
	ReasonInvalidArgument     = "INVALID_ARGUMENT"
)

// ErrorInsufficientBalance 余额不足（不产生任何变更）
func ErrorInsufficientBalance(format string, args ...interface{}) *errors.Error {
	return errors.New(402, ReasonInsufficientBalance, fmt.Sprintf(format, args...))
}

// IsInsufficientBalance 判断是否余额不足错误
func IsInsufficientBalance(err error) bool {
	if err == nil {
		return false
	}
	e := errors.FromError(err)
	return e.Reason == ReasonInsufficientBalance && e.Code == 402
}

// ErrorUserAlreadyExists 未请求轮换时重复注册
func ErrorUserAlreadyExists(format string, args ...interface{}) *errors.Error {
	return errors.New(409, ReasonUserAlreadyExists, fmt.Sprintf(format, args...))
}

// IsUserAlreadyExists 判断是否重复注册错误
func IsUserAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	e := errors.FromError(err)
	return e.Reason == ReasonUserAlreadyExists && e.Code == 409
}

// ErrorUnauthorized API 密钥缺失或无效
func ErrorUnauthorized(format string, args ...interface{}) *errors.Error {
	return errors.New(401, ReasonUnauthorized, fmt.Sprintf(format, args...))
}

// IsUnauthorized 判断是否认证失败错误
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	e := errors.FromError(err)
	return e.Reason == ReasonUnauthorized && e.Code == 401
}

// ErrorJobNotFound 任务不存在（或不属于当前账户，不区分两者）
func ErrorJobNotFound(format string, args ...interface{}) *errors.Error {
	return errors.New(404, ReasonJobNotFound, fmt.Sprintf(format, args...))
}

// IsJobNotFound 判断是否任务不存在错误
func IsJobNotFound(err error) bool {
	if err == nil {
		return false
	}
	e := errors.FromError(err)
	return e.Reason == ReasonJobNotFound && e.Code == 404
}

// ErrorJobFinished 任务已处于终态，不能再取消
func ErrorJobFinished(format string, args ...interface{}) *errors.Error {
	return errors.New(400, ReasonJobFinished, fmt.Sprintf(format, args...))
}

// IsJobFinished 判断是否任务已结束错误
func IsJobFinished(err error) bool {
	if err == nil {
		return false
	}
	e := errors.FromError(err)
	return e.Reason == ReasonJobFinished && e.Code == 400
}

// ErrorJobAlreadyTerminal 退款时发现任务已处于终态（重复退款被拒绝，属预期内竞争）
func ErrorJobAlreadyTerminal(format string, args ...interface{}) *errors.Error {
	return errors.New(409, ReasonJobAlreadyTerminal, fmt.Sprintf(format, args...))
}

// IsJobAlreadyTerminal 判断是否重复退款错误
func IsJobAlreadyTerminal(err error) bool {
	if err == nil {
		return false
	}
	e := errors.FromError(err)
	return e.Reason == ReasonJobAlreadyTerminal && e.Code == 409
}

// ErrorWebhookSecret 回调密钥无效
func ErrorWebhookSecret(format string, args ...interface{}) *errors.Error {
	return errors.New(401, ReasonWebhookSecret, fmt.Sprintf(format, args...))
}

// IsWebhookSecret 判断是否回调密钥错误
func IsWebhookSecret(err error) bool {
	if err == nil {
		return false
	}
	e := errors.FromError(err)
	return e.Reason == ReasonWebhookSecret && e.Code == 401
}

// ErrorInvalidArgument 请求参数无效
func ErrorInvalidArgument(format string, args ...interface{}) *errors.Error {
	return errors.New(400, ReasonInvalidArgument, fmt.Sprintf(format, args...))
}

// IsInvalidArgument 判断是否参数错误
func IsInvalidArgument(err error) bool {
	if err == nil {
		return false
	}
	e := errors.FromError(err)
	return e.Reason == ReasonInvalidArgument && e.Code == 400
}
