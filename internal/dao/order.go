package dao

import (
	"context"
	"errors"
	"swapdesk/internal/model"

	"gorm.io/gorm"
)

type OrderDao struct {
	db *gorm.DB
}

func NewOrderDao(db *gorm.DB) *OrderDao {
	return &OrderDao{db: db}
}

// 插入订单记录
func (d *OrderDao) Insert(ctx context.Context, order *model.Order) error {
	return d.db.WithContext(ctx).Create(order).Error
}

// 按幂等id查询，不存在返回nil
func (d *OrderDao) GetByCorrelationId(ctx context.Context, correlationId string) (*model.Order, error) {
	var order model.Order
	err := d.db.WithContext(ctx).Where("correlation_id = ?", correlationId).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *OrderDao) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	err := d.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// 更新订单状态。状态机只允许向前，回退直接拒绝
func (d *OrderDao) UpdateStatus(ctx context.Context, order *model.Order, next model.OrderStatus) error {
	if !order.Status.CanTransition(next) {
		return errors.New("invalid order status transition: " + string(order.Status) + " -> " + string(next))
	}
	order.Status = next
	return d.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":            next,
			"external_order_id": order.ExternalOrderId,
			"filled_quantity":   order.FilledQuantity,
			"reason":            order.Reason,
		}).Error
}

// 账户最近的订单，倒序
func (d *OrderDao) ListByAccount(ctx context.Context, accountID uint, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := d.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// 账户未到终态的订单
func (d *OrderDao) ListPendingByAccount(ctx context.Context, accountID uint) ([]model.Order, error) {
	var orders []model.Order
	err := d.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Where("status IN ?", []model.OrderStatus{model.OrderCreated, model.OrderSubmitted, model.OrderPartiallyFilled}).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}
