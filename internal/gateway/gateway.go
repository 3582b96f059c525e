package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"swapdesk/conf"
	"swapdesk/internal/exchange"
	"swapdesk/internal/model"
	"swapdesk/internal/snapshot"
	"swapdesk/pkg/errors"
	"swapdesk/pkg/errors/ecode"
	"swapdesk/pkg/logger"
)

// taker手续费率，本地账本按最差情况预估
var takerFeeRate = decimal.NewFromFloat(0.0005)

// Notifier 订单结果回调，由广播层实现。网关不关心有没有人在听
type Notifier interface {
	OrderFilled(accountID uint, order *model.Order, trade *model.Trade)
	OrderPending(accountID uint, order *model.Order)
}

// PlaceRequest 下单输入。CorrelationId是调用方的幂等键，
// 为空时网关生成一个，等于放弃幂等保护
type PlaceRequest struct {
	CorrelationId string
	Symbol        string
	Side          model.OrderSide
	OrderType     model.OrderType
	Price         float64
	Quantity      float64 // 张数
	PosSide       model.OrderPosSide
	Leverage      int
	MgnMode       model.MgnMode
}

// Result 下单结果。Duplicate表示命中幂等记录，本次没有任何远端提交
type Result struct {
	Order     *model.Order `json:"order"`
	Trade     *model.Trade `json:"trade,omitempty"`
	Filled    bool         `json:"filled"`
	Duplicate bool         `json:"duplicate"`
}

// 账本读写面，dao包的各Dao都满足对应接口
type AccountStore interface {
	UpdateCash(ctx context.Context, account *model.Account) error
}

type OrderStore interface {
	Insert(ctx context.Context, order *model.Order) error
	GetByCorrelationId(ctx context.Context, correlationId string) (*model.Order, error)
	UpdateStatus(ctx context.Context, order *model.Order, next model.OrderStatus) error
}

type TradeStore interface {
	Insert(ctx context.Context, trade *model.Trade) error
}

type PositionStore interface {
	Get(ctx context.Context, accountID uint, symbol string, posSide model.OrderPosSide) (*model.Position, error)
	Save(ctx context.Context, pos *model.Position) error
}

// Gateway 订单执行网关。同一账户的下单串行执行，
// 校验失败不会触碰交易所
type Gateway struct {
	cfg conf.GatewayConfig

	accountDao  AccountStore
	orderDao    OrderStore
	tradeDao    TradeStore
	positionDao PositionStore
	engine      *snapshot.Engine

	node     *snowflake.Node
	notifier Notifier

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewGateway(cfg conf.GatewayConfig, accountDao AccountStore, orderDao OrderStore,
	tradeDao TradeStore, positionDao PositionStore, engine *snapshot.Engine) (*Gateway, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		cfg:         cfg,
		accountDao:  accountDao,
		orderDao:    orderDao,
		tradeDao:    tradeDao,
		positionDao: positionDao,
		engine:      engine,
		node:        node,
		locks:       make(map[uint]*sync.Mutex),
	}, nil
}

// SetNotifier 注册结果回调，启动期一次性装配
func (g *Gateway) SetNotifier(n Notifier) { g.notifier = n }

// lockFor 每个账户一把锁，check-freeze-submit-settle整段串行
func (g *Gateway) lockFor(accountID uint) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[accountID] = l
	}
	return l
}

// PlaceOrder 完整的下单流程：校验 -> 幂等检查 -> 落单 -> 提交 -> 结算。
// 幂等命中时返回首次结果，绝不重复提交
func (g *Gateway) PlaceOrder(ctx context.Context, account *model.Account, ex exchange.Exchange, req *PlaceRequest) (*Result, error) {
	if err := g.validate(account, ex, req); err != nil {
		return nil, err
	}
	if req.CorrelationId == "" {
		req.CorrelationId = uuid.NewString()
	}

	lock := g.lockFor(account.ID)
	lock.Lock()
	defer lock.Unlock()

	// 幂等：同一correlation id只产生一次提交，不论首次结果如何
	existing, err := g.orderDao.GetByCorrelationId(ctx, req.CorrelationId)
	if err != nil {
		return nil, errors.Wrap(ecode.InternalErr, "", err)
	}
	if existing != nil {
		logger.Info("duplicate correlation id, return first result",
			logger.Pair("correlationId", req.CorrelationId),
			logger.Pair("orderNo", existing.OrderNo))
		return &Result{Order: existing, Duplicate: true, Filled: existing.Status == model.OrderFilled}, nil
	}

	order := &model.Order{
		AccountID:     account.ID,
		OrderNo:       g.node.Generate().String(),
		CorrelationId: req.CorrelationId,
		Symbol:        req.Symbol,
		Side:          req.Side,
		PosSide:       effectivePosSide(req.Side, req.PosSide),
		OrderType:     req.OrderType,
		Price:         decimal.NewFromFloat(req.Price),
		Quantity:      decimal.NewFromFloat(req.Quantity),
		Leverage:      req.Leverage,
		Status:        model.OrderCreated,
	}
	if err = g.orderDao.Insert(ctx, order); err != nil {
		return nil, errors.Wrap(ecode.InternalErr, "", err)
	}

	externalId, exhausted, err := withRetry(ctx, g.cfg.MaxAttempts, g.cfg.RetryBackoff, func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.SubmitTimeout)
		defer cancel()
		return ex.SubmitOrder(callCtx, &exchange.OrderRequest{
			Symbol:    req.Symbol,
			Side:      req.Side,
			OrderType: req.OrderType,
			Price:     req.Price,
			Quantity:  req.Quantity,
			PosSide:   req.PosSide,
			Leverage:  req.Leverage,
			MgnMode:   req.MgnMode,
		})
	})
	if err != nil {
		order.Reason = err.Error()
		g.markFailed(ctx, order, exhausted)
		return nil, g.mapSubmitError(err, exhausted)
	}

	order.ExternalOrderId = externalId
	if err = g.orderDao.UpdateStatus(ctx, order, model.OrderSubmitted); err != nil {
		logger.Error("persist submitted order failed", logger.Pair("orderNo", order.OrderNo), logger.Pair("err", err))
	}

	// 提交成功后查一次成交结果。查询失败不算下单失败，订单留在submitted
	result := &Result{Order: order}
	state, err := ex.FetchOrderStatus(ctx, externalId, req.Symbol)
	if err != nil {
		logger.Warn("fetch order status failed, leave submitted",
			logger.Pair("orderNo", order.OrderNo), logger.Pair("err", err))
	} else if state.Status == "filled" {
		trade := g.settleFill(ctx, account, ex, order, state)
		result.Trade = trade
		result.Filled = true
		if g.notifier != nil {
			g.notifier.OrderFilled(account.ID, order, trade)
		}
		return result, nil
	}

	if g.notifier != nil {
		g.notifier.OrderPending(account.ID, order)
	}
	return result, nil
}

// validate 前置校验，任何失败都不触碰交易所
func (g *Gateway) validate(account *model.Account, ex exchange.Exchange, req *PlaceRequest) error {
	if account == nil || !account.IsActive {
		return errors.New(ecode.AccountInactiveErr, "")
	}
	if req.Quantity <= 0 {
		return errors.Newf(ecode.ValidationErr, "quantity must be positive, got %v", req.Quantity)
	}
	if req.Side != model.Buy && req.Side != model.Sell {
		return errors.Newf(ecode.ValidationErr, "invalid side %q", req.Side)
	}
	switch req.OrderType {
	case model.Market:
	case model.Limit:
		if req.Price <= 0 {
			return errors.New(ecode.ValidationErr, "limit order requires a positive price")
		}
	default:
		return errors.Newf(ecode.ValidationErr, "invalid order type %q", req.OrderType)
	}
	if req.Leverage < 0 || req.Leverage > 125 {
		return errors.Newf(ecode.ValidationErr, "leverage out of range: %d", req.Leverage)
	}
	if !ex.Instruments().Supported(req.Symbol) {
		return errors.Newf(ecode.InvalidInstrumentErr, "unsupported symbol %q", req.Symbol)
	}
	return nil
}

// settleFill 成交结算：成交记录 + 仓位均价账本 + 现金账本。
// 本地账本失败只记日志，交易所侧的事实不受影响
func (g *Gateway) settleFill(ctx context.Context, account *model.Account, ex exchange.Exchange,
	order *model.Order, state *model.OrderState) *model.Trade {
	order.FilledQuantity = decimal.NewFromFloat(state.Filled)
	if err := g.orderDao.UpdateStatus(ctx, order, model.OrderFilled); err != nil {
		logger.Error("persist filled order failed", logger.Pair("orderNo", order.OrderNo), logger.Pair("err", err))
	}

	price := decimal.NewFromFloat(state.Price)
	qty := decimal.NewFromFloat(state.Filled)
	ctVal, err := ex.Instruments().CtVal(order.Symbol)
	if err != nil {
		logger.Error("missing contract value, skip bookkeeping", logger.Pair("symbol", order.Symbol))
		return nil
	}
	notional := price.Mul(qty).Mul(decimal.NewFromFloat(ctVal))
	fee := notional.Mul(takerFeeRate)

	trade := &model.Trade{
		OrderID:         order.ID,
		AccountID:       account.ID,
		ExternalTradeId: fmt.Sprintf("%s-%s", order.OrderNo, order.ExternalOrderId),
		Symbol:          order.Symbol,
		Side:            order.Side,
		Price:           price,
		Quantity:        qty,
		Fee:             fee,
		TradeTime:       time.UnixMilli(state.Timestamp),
	}
	if err = g.tradeDao.Insert(ctx, trade); err != nil {
		logger.Error("persist trade failed", logger.Pair("orderNo", order.OrderNo), logger.Pair("err", err))
	}

	g.bookkeep(ctx, account, order, price, qty, decimal.NewFromFloat(ctVal), fee)
	if g.engine != nil {
		g.engine.Invalidate(account.ID)
	}
	return trade
}

// bookkeep 仓位开仓均价和现金账本。开仓扣保证金，平仓退保证金并结已实现盈亏
func (g *Gateway) bookkeep(ctx context.Context, account *model.Account, order *model.Order,
	price, qty, ctVal, fee decimal.Decimal) {
	opening := isOpening(order.Side, order.PosSide)
	leverage := decimal.NewFromInt(int64(max(order.Leverage, 1)))

	pos, err := g.positionDao.Get(ctx, account.ID, order.Symbol, order.PosSide)
	if err != nil {
		logger.Error("load position failed", logger.Pair("orderNo", order.OrderNo), logger.Pair("err", err))
		return
	}

	if opening {
		if pos == nil {
			pos = &model.Position{AccountID: account.ID, Symbol: order.Symbol, PosSide: order.PosSide}
		}
		newQty := pos.Quantity.Add(qty)
		pos.AvgCost = pos.Quantity.Mul(pos.AvgCost).Add(qty.Mul(price)).Div(newQty)
		pos.Quantity = newQty
		pos.Leverage = order.Leverage

		margin := price.Mul(qty).Mul(ctVal).Div(leverage)
		account.CurrentCash = account.CurrentCash.Sub(margin).Sub(fee)
		account.FrozenCash = account.FrozenCash.Add(margin)
	} else {
		if pos == nil || pos.Quantity.IsZero() {
			logger.Warn("close fill without local position", logger.Pair("orderNo", order.OrderNo))
			return
		}
		closed := decimal.Min(qty, pos.Quantity)

		var pnl decimal.Decimal
		if order.PosSide == model.PosSideLong {
			pnl = price.Sub(pos.AvgCost).Mul(closed).Mul(ctVal)
		} else {
			pnl = pos.AvgCost.Sub(price).Mul(closed).Mul(ctVal)
		}
		lv := decimal.NewFromInt(int64(max(pos.Leverage, 1)))
		returned := pos.AvgCost.Mul(closed).Mul(ctVal).Div(lv)

		pos.Quantity = pos.Quantity.Sub(closed)
		account.CurrentCash = account.CurrentCash.Add(returned).Add(pnl).Sub(fee)
		account.FrozenCash = account.FrozenCash.Sub(returned)
	}

	if err = g.positionDao.Save(ctx, pos); err != nil {
		logger.Error("persist position failed", logger.Pair("orderNo", order.OrderNo), logger.Pair("err", err))
	}
	if err = g.accountDao.UpdateCash(ctx, account); err != nil {
		logger.Error("persist cash failed", logger.Pair("accountId", account.ID), logger.Pair("err", err))
	}
}

// markFailed 提交失败的本地终态。重试耗尽记failed，远端明确拒绝记rejected
func (g *Gateway) markFailed(ctx context.Context, order *model.Order, exhausted bool) {
	status := model.OrderRejected
	if exhausted {
		status = model.OrderFailed
	}
	if err := g.orderDao.UpdateStatus(ctx, order, status); err != nil {
		logger.Error("persist failed order failed", logger.Pair("orderNo", order.OrderNo), logger.Pair("err", err))
	}
}

// mapSubmitError 交易所错误分类 -> 业务错误码
func (g *Gateway) mapSubmitError(err error, exhausted bool) error {
	if exhausted {
		return errors.Wrap(ecode.ExecutionFailedErr, "", err)
	}
	switch exchange.KindOf(err) {
	case exchange.KindAuth:
		return errors.Wrap(ecode.AuthErr, "", err)
	case exchange.KindRateLimited:
		return errors.Wrap(ecode.RateLimitedErr, "", err)
	case exchange.KindInsufficientMargin:
		return errors.Wrap(ecode.InsufficientMarginErr, "", err)
	case exchange.KindInvalidInstrument:
		return errors.Wrap(ecode.InvalidInstrumentErr, "", err)
	case exchange.KindNetworkTimeout:
		return errors.Wrap(ecode.NetworkTimeoutErr, "", err)
	}
	return errors.Wrap(ecode.RemoteRejectedErr, "", err)
}

// effectivePosSide posSide缺省时按开仓方向解析，与适配器的规则一致
func effectivePosSide(side model.OrderSide, posSide model.OrderPosSide) model.OrderPosSide {
	if posSide != "" {
		return posSide
	}
	if side == model.Buy {
		return model.PosSideLong
	}
	return model.PosSideShort
}

// isOpening buy+long和sell+short是开仓，反向组合是平仓
func isOpening(side model.OrderSide, posSide model.OrderPosSide) bool {
	return (side == model.Buy && posSide == model.PosSideLong) ||
		(side == model.Sell && posSide == model.PosSideShort)
}
