package dao

import (
	"context"
	"errors"
	"swapdesk/internal/model"

	"gorm.io/gorm"
)

type AccountDao struct {
	db *gorm.DB
}

func NewAccountDao(db *gorm.DB) *AccountDao {
	return &AccountDao{db: db}
}

// 按id查询账户
func (d *AccountDao) GetByID(ctx context.Context, id uint) (*model.Account, error) {
	var account model.Account
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// 查询某个用户名下的全部账户
func (d *AccountDao) ListByUser(ctx context.Context, userID uint) ([]model.Account, error) {
	var accounts []model.Account
	err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}

// 用户的第一个活跃账户，会话初始化时作为缺省账户
func (d *AccountDao) FirstActiveByUser(ctx context.Context, userID uint) (*model.Account, error) {
	var account model.Account
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id ASC").
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// 某一类的全部活跃账户，决策轮询用
func (d *AccountDao) ListActiveByKind(ctx context.Context, kind string) ([]model.Account, error) {
	var accounts []model.Account
	err := d.db.WithContext(ctx).
		Where("kind = ? AND is_active = ?", kind, true).
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}

func (d *AccountDao) Insert(ctx context.Context, account *model.Account) error {
	return d.db.WithContext(ctx).Create(account).Error
}

// 更新现金账本，只动current_cash和frozen_cash两列
func (d *AccountDao) UpdateCash(ctx context.Context, account *model.Account) error {
	return d.db.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"current_cash": account.CurrentCash,
			"frozen_cash":  account.FrozenCash,
		}).Error
}

type UserDao struct {
	db *gorm.DB
}

func NewUserDao(db *gorm.DB) *UserDao {
	return &UserDao{db: db}
}

// 按用户名查询，不存在时自动创建。前端连上来只带username
func (d *UserDao) GetOrCreate(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := d.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	user = model.User{Username: username}
	if err = d.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *UserDao) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := d.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
