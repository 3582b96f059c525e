package dao

import (
	"context"
	"swapdesk/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TradeDao struct {
	db *gorm.DB
}

func NewTradeDao(db *gorm.DB) *TradeDao {
	return &TradeDao{db: db}
}

// 插入成交。external_trade_id有唯一索引，重复写入直接忽略
func (d *TradeDao) Insert(ctx context.Context, trade *model.Trade) error {
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(trade).Error
}

// 账户在时间窗口内的成交，按成交时间倒序
func (d *TradeDao) ListByAccountSince(ctx context.Context, accountID uint, since time.Time, limit int) ([]model.Trade, error) {
	var trades []model.Trade
	err := d.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Where("trade_time >= ?", since).
		Order("trade_time DESC").
		Limit(limit).
		Find(&trades).Error
	return trades, err
}

func (d *TradeDao) ListByOrder(ctx context.Context, orderID uint) ([]model.Trade, error) {
	var trades []model.Trade
	err := d.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("trade_time ASC").
		Find(&trades).Error
	return trades, err
}
