package ecode

// 业务错误码，0表示成功
const (
	Success = 0

	// 通用
	InternalErr   = 10001
	BadRequestErr = 10002
	NotFoundErr   = 10003

	// 订单执行
	ValidationErr      = 20001 // 参数校验失败，不会重试
	DuplicateOrderErr  = 20002 // 相同correlation id的重复提交
	ExecutionFailedErr = 20003 // 重试次数耗尽
	AccountInactiveErr = 20004

	// 交易所
	AuthErr               = 30001
	RateLimitedErr        = 30002
	InsufficientMarginErr = 30003
	InvalidInstrumentErr  = 30004
	NetworkTimeoutErr     = 30005
	RemoteRejectedErr     = 30006

	// 同步
	ReconciliationDriftErr = 40001
	SectionUnavailableErr  = 40002
)

var messages = map[int]string{
	Success:                "ok",
	InternalErr:            "internal error",
	BadRequestErr:          "bad request",
	NotFoundErr:            "not found",
	ValidationErr:          "validation failed",
	DuplicateOrderErr:      "duplicate order request",
	ExecutionFailedErr:     "order execution failed",
	AccountInactiveErr:     "account is not active",
	AuthErr:                "exchange auth failed",
	RateLimitedErr:         "exchange rate limited",
	InsufficientMarginErr:  "insufficient margin",
	InvalidInstrumentErr:   "invalid instrument",
	NetworkTimeoutErr:      "network timeout",
	RemoteRejectedErr:      "rejected by exchange",
	ReconciliationDriftErr: "local and remote state disagree",
	SectionUnavailableErr:  "section unavailable",
}

// Message 返回错误码对应的默认提示
func Message(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "unknown error"
}
