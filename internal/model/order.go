package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

type OrderType string

const (
	// 市价购买
	Market OrderType = "market"
	// 限价购买
	Limit OrderType = "limit"
)

// posSide 持仓方向 做多long或者做空short
type OrderPosSide string

const (
	// 做多
	PosSideLong OrderPosSide = "long"
	// 做空
	PosSideShort OrderPosSide = "short"
)

// 保证金模式（cross / isolated）
type MgnMode string

const (
	// 全仓模式
	MgnModeCross MgnMode = "cross"
	// 逐仓模式
	MgnModeIsolated MgnMode = "isolated"
)

// 订单状态机，只允许向前流转：
// created -> submitted -> {partially_filled -> filled, filled, canceled, rejected}
// failed 表示重试耗尽后的本地终态
type OrderStatus string

const (
	OrderCreated         OrderStatus = "created"
	OrderSubmitted       OrderStatus = "submitted"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCanceled        OrderStatus = "canceled"
	OrderRejected        OrderStatus = "rejected"
	OrderFailed          OrderStatus = "failed"
)

// Terminal 是否为终态
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCanceled, OrderRejected, OrderFailed:
		return true
	}
	return false
}

// CanTransition 状态机约束，禁止任何回退
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderCreated:
		return next == OrderSubmitted || next == OrderRejected || next == OrderFailed
	case OrderSubmitted:
		return next == OrderPartiallyFilled || next == OrderFilled ||
			next == OrderCanceled || next == OrderRejected || next == OrderFailed
	case OrderPartiallyFilled:
		return next == OrderFilled || next == OrderCanceled
	}
	return false
}

// 订单持久化记录，执行网关创建后只向前更新状态
type Order struct {
	ID        uint      `gorm:"column:id;primary_key" json:"id"`
	AccountID uint      `gorm:"column:account_id;index" json:"account_id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	// 全局唯一订单号（snowflake），区别于自增主键
	OrderNo string `gorm:"column:order_no;size:32;uniqueIndex" json:"order_no"`
	// 调用方生成的幂等id，同一id只会产生一次远端提交
	CorrelationId string `gorm:"column:correlation_id;size:64;uniqueIndex" json:"correlation_id"`
	// 交易所返回的订单id
	ExternalOrderId string `gorm:"column:external_order_id;size:64;index" json:"external_order_id"`

	Symbol    string       `gorm:"column:symbol;size:32;index" json:"symbol"` // BTC-USDT-SWAP
	Side      OrderSide    `gorm:"column:side;size:8" json:"side"`
	PosSide   OrderPosSide `gorm:"column:pos_side;size:8" json:"pos_side"`
	OrderType OrderType    `gorm:"column:order_type;size:8" json:"order_type"`

	Price          decimal.Decimal `gorm:"column:price;type:decimal(32,16)" json:"price"`
	Quantity       decimal.Decimal `gorm:"column:quantity;type:decimal(32,16)" json:"quantity"` // 张数
	FilledQuantity decimal.Decimal `gorm:"column:filled_quantity;type:decimal(32,16)" json:"filled_quantity"`
	Leverage       int             `gorm:"column:leverage" json:"leverage"`

	Status OrderStatus `gorm:"column:status;size:20;index" json:"status"`
	// 失败/拒绝时交易所返回的原因
	Reason string `gorm:"column:reason;size:255" json:"reason,omitempty"`
}

func (Order) TableName() string {
	return "order_record"
}
