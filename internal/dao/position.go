package dao

import (
	"context"
	"errors"
	"swapdesk/internal/model"

	"gorm.io/gorm"
)

type PositionDao struct {
	db *gorm.DB
}

func NewPositionDao(db *gorm.DB) *PositionDao {
	return &PositionDao{db: db}
}

// 定位仓位，(account_id, symbol, pos_side)唯一，不存在返回nil
func (d *PositionDao) Get(ctx context.Context, accountID uint, symbol string, posSide model.OrderPosSide) (*model.Position, error) {
	var pos model.Position
	err := d.db.WithContext(ctx).
		Where("account_id = ? AND symbol = ? AND pos_side = ?", accountID, symbol, posSide).
		First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (d *PositionDao) ListByAccount(ctx context.Context, accountID uint) ([]model.Position, error) {
	var positions []model.Position
	err := d.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Find(&positions).Error
	return positions, err
}

// 保存仓位。数量归零时删除记录而不是留一行脏数据
func (d *PositionDao) Save(ctx context.Context, pos *model.Position) error {
	if pos.Quantity.IsZero() {
		if pos.ID == 0 {
			return nil
		}
		return d.db.WithContext(ctx).Delete(&model.Position{}, pos.ID).Error
	}
	return d.db.WithContext(ctx).Save(pos).Error
}
