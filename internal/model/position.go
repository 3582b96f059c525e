package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 本地仓位记录，(account_id, symbol, pos_side)唯一。
// 仓位不是权威数据，永远可以用交易所仓位+本地均价账本重建
type Position struct {
	ID        uint      `gorm:"column:id;primary_key" json:"id"`
	AccountID uint      `gorm:"column:account_id;uniqueIndex:idx_account_symbol_side" json:"account_id"`
	Symbol    string    `gorm:"column:symbol;size:32;uniqueIndex:idx_account_symbol_side" json:"symbol"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	PosSide  OrderPosSide    `gorm:"column:pos_side;size:8;uniqueIndex:idx_account_symbol_side" json:"pos_side"`
	Quantity decimal.Decimal `gorm:"column:quantity;type:decimal(32,16)" json:"quantity"` // 张数
	AvgCost  decimal.Decimal `gorm:"column:avg_cost;type:decimal(32,16)" json:"avg_cost"` // 开仓均价
	Leverage int             `gorm:"column:leverage" json:"leverage"`
}

func (Position) TableName() string {
	return "position"
}
