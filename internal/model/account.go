package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/plugin/soft_delete"
)

// 交易账户，1个用户可以有多个账户（手动账户 + 决策引擎账户）
type Account struct {
	ID        uint      `gorm:"column:id;primary_key" json:"id"`
	UserID    uint      `gorm:"column:user_id;index" json:"user_id"`
	Name      string    `gorm:"column:name;size:64" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	// AI 或 MANUAL，见consts.AccountKind*
	Kind string `gorm:"column:kind;size:16" json:"kind"`

	// 本地现金账本。必须满足 current_cash + frozen_cash 与订单的借贷记录对账一致
	InitialCapital decimal.Decimal `gorm:"column:initial_capital;type:decimal(32,16)" json:"initial_capital"`
	CurrentCash    decimal.Decimal `gorm:"column:current_cash;type:decimal(32,16)" json:"current_cash"`
	FrozenCash     decimal.Decimal `gorm:"column:frozen_cash;type:decimal(32,16)" json:"frozen_cash"`

	// 交易所凭证
	OkxApiKey     string `gorm:"column:okx_api_key;size:128" json:"-"`
	OkxSecret     string `gorm:"column:okx_secret;size:128" json:"-"`
	OkxPassphrase string `gorm:"column:okx_passphrase;size:128" json:"-"`
	OkxSimulated  bool   `gorm:"column:okx_simulated" json:"okx_simulated"`

	IsActive  bool                  `gorm:"column:is_active;default:true" json:"is_active"`
	DeletedAt soft_delete.DeletedAt `gorm:"column:deleted_at" json:"-"`
}

func (Account) TableName() string {
	return "account"
}

// HasCredentials 账户是否配置了交易所凭证
func (a *Account) HasCredentials() bool {
	return a.OkxApiKey != "" && a.OkxSecret != "" && a.OkxPassphrase != ""
}

type User struct {
	ID        uint      `gorm:"column:id;primary_key" json:"id"`
	Username  string    `gorm:"column:username;size:64;uniqueIndex" json:"username"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (User) TableName() string {
	return "user"
}
