package model

// 决策引擎产出的交易意图，只消费一次，最多转化为一个订单
type DecisionIntent struct {
	AccountID uint   `json:"account_id"`
	Operation string `json:"operation"` // hold / buy / sell
	Symbol    string `json:"symbol"`    // BASE部分，如BTC
	// 目标仓位占可用余额（buy）或持仓（sell）的比例，(0, 1]
	TargetPortion float64 `json:"target_portion_of_balance"`
	Leverage      int     `json:"leverage"`
	Reason        string  `json:"reason"`
}

const (
	OpHold = "hold"
	OpBuy  = "buy"
	OpSell = "sell"
)
