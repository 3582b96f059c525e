package model

// 快照读模型。交易所返回的数据是外部真相，这里只做聚合，不落库

// 单币种余额，来自交易所，本地不推算
type Balance struct {
	Currency string  `json:"currency"`
	Total    float64 `json:"total"`
	Free     float64 `json:"free"`
	Used     float64 `json:"used"`
}

// 交易所报告的仓位，只包含有敞口的
type PositionState struct {
	Symbol           string  `json:"symbol"` // BTC-USDT-SWAP
	Side             string  `json:"side"`   // long / short
	Contracts        float64 `json:"contracts"`
	Notional         float64 `json:"notional"`
	EntryPrice       float64 `json:"entryPrice"`
	MarkPrice        float64 `json:"markPrice"`
	UnrealizedPnl    float64 `json:"unrealizedPnl"`
	Percentage       float64 `json:"percentage"`
	Leverage         float64 `json:"leverage"`
	LiquidationPrice float64 `json:"liquidationPrice"`
	MarginMode       string  `json:"marginMode,omitempty"`
}

// 交易所侧订单视图
type OrderState struct {
	Id        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Type      string  `json:"type"` // market / limit
	Side      string  `json:"side"` // buy / sell
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Filled    float64 `json:"filled"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"` // 毫秒
}

// 交易所侧成交视图
type TradeState struct {
	Id        string  `json:"id"`
	OrderId   string  `json:"orderId,omitempty"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Cost      float64 `json:"cost"`
	Fee       float64 `json:"fee"`
	Timestamp int64   `json:"timestamp"`
}

// 账户概要，由同一轮查询的三个结果推导
type Summary struct {
	TotalBalance    float64 `json:"totalBalance"`
	FreeBalance     float64 `json:"freeBalance"`
	UsedBalance     float64 `json:"usedBalance"`
	PositionsValue  float64 `json:"positionsValue"`
	PositionsCount  int     `json:"positionsCount"`
	UnrealizedPnl   float64 `json:"unrealizedPnl"`
	OpenOrdersCount int     `json:"openOrdersCount"`
}

// 快照的一个分区。失败的查询降级为Unavailable，与空结果是两种状态
type Section[T any] struct {
	Available bool   `json:"available"`
	Data      []T    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

func SectionOK[T any](data []T) Section[T] {
	if data == nil {
		data = []T{}
	}
	return Section[T]{Available: true, Data: data}
}

func SectionUnavailable[T any](err error) Section[T] {
	return Section[T]{Available: false, Error: err.Error()}
}

// 某账户某一时刻的完整视图，临时对象不落库
type Snapshot struct {
	AccountID uint                   `json:"account_id"`
	Balances  Section[Balance]       `json:"balances"`
	Positions Section[PositionState] `json:"positions"`
	Orders    Section[OrderState]    `json:"orders"`
	Summary   *Summary               `json:"summary,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// 扩展视图，按需拉取
type History struct {
	AccountID uint                `json:"account_id"`
	Orders    Section[OrderState] `json:"orders"`
	Trades    Section[TradeState] `json:"trades"`
	Timestamp int64               `json:"timestamp"`
}
