package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// 交易所错误分类。调用方根据Kind决定重试策略，不解析错误字符串

type ErrKind string

const (
	// 凭证问题，账户重新配置前都会失败
	KindAuth ErrKind = "AuthError"
	// 限频，可退避重试
	KindRateLimited ErrKind = "RateLimited"
	// 保证金不足，业务拒绝，不可重试
	KindInsufficientMargin ErrKind = "InsufficientMargin"
	// 币对不存在或不在支持集合内
	KindInvalidInstrument ErrKind = "InvalidInstrument"
	// 网络超时，可退避重试
	KindNetworkTimeout ErrKind = "NetworkTimeout"
	// 交易所明确拒绝，携带远端原因，不可重试
	KindRemoteRejected ErrKind = "RemoteRejected"
)

type Error struct {
	Kind ErrKind
	// 交易所返回的错误码，如 51008
	Code string
	// 远端原因，原样保留
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s(code=%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable 只有限频和网络超时可以重试
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindNetworkTimeout
}

func newError(kind ErrKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// KindOf 取出错误分类，不是交易所错误时返回空串
func KindOf(err error) ErrKind {
	var ex *Error
	if errors.As(err, &ex) {
		return ex.Kind
	}
	return ""
}

// IsRetryable 判断错误是否可以退避重试
func IsRetryable(err error) bool {
	var ex *Error
	if errors.As(err, &ex) {
		return ex.Retryable()
	}
	return false
}

// okx v5错误码 -> 分类。未列出的一律按RemoteRejected处理
var okxCodeKinds = map[string]ErrKind{
	// 限频
	"50011": KindRateLimited,
	"50013": KindRateLimited,
	"50061": KindRateLimited,
	// 凭证
	"50100": KindAuth,
	"50101": KindAuth,
	"50104": KindAuth,
	"50105": KindAuth,
	"50111": KindAuth,
	"50113": KindAuth,
	"50114": KindAuth,
	// 保证金/余额不足
	"51008": KindInsufficientMargin,
	"51131": KindInsufficientMargin,
	"59200": KindInsufficientMargin,
	// 币对不存在
	"51001": KindInvalidInstrument,
	"51014": KindInvalidInstrument,
}

// classifyCode 根据okx返回的code和msg构造分类错误
func classifyCode(code, msg string) *Error {
	if kind, ok := okxCodeKinds[code]; ok {
		return newError(kind, code, msg)
	}
	return newError(KindRemoteRejected, code, msg)
}

// Classify 将任意底层错误归入分类。网络超时和context超时都归为NetworkTimeout
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ex *Error
	if errors.As(err, &ex) {
		return ex
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetworkTimeout, Message: err.Error(), cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindNetworkTimeout, Message: err.Error(), cause: err}
	}
	// goex把okx的code拼进了错误字符串，这里兜底匹配一次
	msg := err.Error()
	for code, kind := range okxCodeKinds {
		if strings.Contains(msg, code) {
			return &Error{Kind: kind, Code: code, Message: msg, cause: err}
		}
	}
	return &Error{Kind: KindRemoteRejected, Message: msg, cause: err}
}
