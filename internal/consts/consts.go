package consts

import "time"

const (
	// RequestId 请求id名称
	RequestId = "request_id"
	UserID    = "user_id"
	AccountID = "account_id"

	// 默认的兜底身份，bootstrap未携带用户名时使用
	DefaultUsername = "default"

	// 计价货币，余额汇总和仓位名义价值都以它计价
	QuoteCurrency = "USDT"

	// 历史查询默认回溯窗口
	DefaultHistoryWindow = 7 * 24 * time.Hour

	DateLayout = "2006-01-02"
	TimeLayout = "2006-01-02 15:04:05"
)

// 账户类型
const (
	AccountKindAlgo   = "AI"     // 决策引擎驱动
	AccountKindManual = "MANUAL" // 手动下单
)
