package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 成交记录，一条成交只属于一个订单，写入后不再修改
type Trade struct {
	ID        uint      `gorm:"column:id;primary_key" json:"id"`
	OrderID   uint      `gorm:"column:order_id;index" json:"order_id"`
	AccountID uint      `gorm:"column:account_id;index" json:"account_id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`

	// 交易所成交id，同一笔成交只记录一次
	ExternalTradeId string `gorm:"column:external_trade_id;size:64;uniqueIndex" json:"external_trade_id"`

	Symbol   string          `gorm:"column:symbol;size:32;index" json:"symbol"`
	Side     OrderSide       `gorm:"column:side;size:8" json:"side"`
	Price    decimal.Decimal `gorm:"column:price;type:decimal(32,16)" json:"price"`
	Quantity decimal.Decimal `gorm:"column:quantity;type:decimal(32,16)" json:"quantity"`
	Fee      decimal.Decimal `gorm:"column:fee;type:decimal(32,16)" json:"fee"`

	// 交易所侧的成交时间
	TradeTime time.Time `gorm:"column:trade_time" json:"trade_time"`
}

func (Trade) TableName() string {
	return "trade"
}
