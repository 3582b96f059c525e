package exchange

import (
	"context"
	"math"
	"swapdesk/internal/model"
	"time"
)

// Exchange 适配器接口。无状态翻译层：规范输入 -> 交易所wire语义，
// 失败时返回分类错误，从不伪造结果
type Exchange interface {
	// FetchBalances 查询全部币种余额，余额永远以交易所为准
	FetchBalances(ctx context.Context) ([]model.Balance, error)
	// FetchPositions 只返回有敞口的仓位
	FetchPositions(ctx context.Context) ([]model.PositionState, error)
	// FetchOpenOrders 当前未完成订单
	FetchOpenOrders(ctx context.Context) ([]model.OrderState, error)
	// FetchOrderHistory 历史订单，window限定回溯范围以约束远端负载
	FetchOrderHistory(ctx context.Context, window time.Duration) ([]model.OrderState, error)
	// FetchTrades 成交记录，同样受window约束
	FetchTrades(ctx context.Context, window time.Duration) ([]model.TradeState, error)
	// SubmitOrder 提交订单，返回交易所订单id
	SubmitOrder(ctx context.Context, req *OrderRequest) (string, error)
	// FetchOrderStatus 查询单个订单
	FetchOrderStatus(ctx context.Context, orderId, symbol string) (*model.OrderState, error)
	// CancelOrder 撤单
	CancelOrder(ctx context.Context, orderId, symbol string) error
	// LastPrice 最新成交价
	LastPrice(ctx context.Context, symbol string) (float64, error)
	// Instruments 支持的币对集合（含合约面值）
	Instruments() *InstrumentSet
}

// OrderRequest 规范订单输入
type OrderRequest struct {
	Symbol    string // BTC-USDT-SWAP
	Side      model.OrderSide
	OrderType model.OrderType
	Price     float64
	Quantity  float64 // 张数
	// 持仓方向。为空时按开仓方向解析：buy->long, sell->short。
	// 显式传入相反方向表示平仓：sell+long平多，buy+short平空
	PosSide  model.OrderPosSide
	Leverage int
	MgnMode  model.MgnMode
}

// 订单动作，由(side, posSide)对显式解析得到，协议层不做猜测
type orderAction int

const (
	actionOpenLong orderAction = iota
	actionOpenShort
	actionCloseLong
	actionCloseShort
)

// resolveAction 解析(side, posSide)组合。四种组合都合法且语义唯一，
// 未给出posSide时默认为开仓方向
func resolveAction(side model.OrderSide, posSide model.OrderPosSide) (orderAction, model.OrderPosSide, error) {
	switch side {
	case model.Buy:
		switch posSide {
		case "", model.PosSideLong:
			return actionOpenLong, model.PosSideLong, nil
		case model.PosSideShort:
			return actionCloseShort, model.PosSideShort, nil
		}
	case model.Sell:
		switch posSide {
		case "", model.PosSideShort:
			return actionOpenShort, model.PosSideShort, nil
		case model.PosSideLong:
			return actionCloseLong, model.PosSideLong, nil
		}
	}
	return 0, "", newError(KindInvalidInstrument, "",
		"invalid side/posSide combination: "+string(side)+"/"+string(posSide))
}

// CalculateContractOrder 合约下单计算：返回 sz(张数) 和 qty(币数量)
// costUSDT: 愿意投入的保证金
// leverage: 杠杆倍数
// marketPrice: 标的价格
// ctVal: 每张合约代表多少币，比如BTC=0.01
func CalculateContractOrder(costUSDT float64, leverage int, marketPrice float64, ctVal float64) (sz float64, qty float64) {
	// 名义价值 = 保证金 * 杠杆
	notional := costUSDT * float64(leverage)

	// 实际币数量
	qty = notional / marketPrice

	// 张数
	sz = qty / ctVal

	// 精确的币数量 = 张数 * ctVal
	qty = sz * ctVal

	sz = floorFloat(sz, 2)
	qty = floorFloat(qty, 3)
	return
}

// FloorContracts 张数向下取整到0.01张，和下单精度一致
func FloorContracts(sz float64) float64 {
	return floorFloat(sz, 2)
}

// 向下取整保留 n 位小数
func floorFloat(val float64, n int) float64 {
	factor := math.Pow10(n)
	return math.Floor(val*factor) / factor
}
