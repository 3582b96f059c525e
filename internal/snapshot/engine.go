package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"swapdesk/conf"
	"swapdesk/internal/consts"
	"swapdesk/internal/exchange"
	"swapdesk/internal/model"
	"swapdesk/pkg/logger"
)

// 对账要改的两张本地表，dao实现
type PositionStore interface {
	ListByAccount(ctx context.Context, accountID uint) ([]model.Position, error)
	Save(ctx context.Context, pos *model.Position) error
}

type OrderStore interface {
	ListPendingByAccount(ctx context.Context, accountID uint) ([]model.Order, error)
	UpdateStatus(ctx context.Context, order *model.Order, next model.OrderStatus) error
}

// Engine 同步引擎。交易所是权威数据源，这里负责并发拉取、
// 分区降级、概要推导，以及把偏差的本地账对齐到交易所
type Engine struct {
	queryTimeout  time.Duration
	historyTTL    time.Duration
	historyWindow time.Duration

	positionDao PositionStore
	orderDao    OrderStore

	mu        sync.Mutex
	histories map[uint]*historyEntry
}

type historyEntry struct {
	history   *model.History
	fetchedAt time.Time
}

func NewEngine(cfg conf.SyncConfig, positionDao PositionStore, orderDao OrderStore) *Engine {
	return &Engine{
		queryTimeout:  cfg.QueryTimeout,
		historyTTL:    cfg.HistoryTTL,
		historyWindow: cfg.HistoryWindow,
		positionDao:   positionDao,
		orderDao:      orderDao,
		histories:     make(map[uint]*historyEntry),
	}
}

// Snapshot 组装一个账户的账务快照。三个查询并发执行，
// 单个失败只降级对应分区，错误聚合后返回给调用方记日志。
// 快照总是非nil，调用方自行决定降级后的快照是否可用
func (e *Engine) Snapshot(ctx context.Context, accountID uint, ex exchange.Exchange) (*model.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	var (
		wg        sync.WaitGroup
		balances  []model.Balance
		positions []model.PositionState
		orders    []model.OrderState
		balErr    error
		posErr    error
		ordErr    error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		balances, balErr = ex.FetchBalances(ctx)
	}()
	go func() {
		defer wg.Done()
		positions, posErr = ex.FetchPositions(ctx)
	}()
	go func() {
		defer wg.Done()
		orders, ordErr = ex.FetchOpenOrders(ctx)
	}()
	wg.Wait()

	snap := &model.Snapshot{
		AccountID: accountID,
		Timestamp: time.Now().UnixMilli(),
	}

	if balErr != nil {
		snap.Balances = model.SectionUnavailable[model.Balance](balErr)
	} else {
		snap.Balances = model.SectionOK(balances)
	}
	if posErr != nil {
		snap.Positions = model.SectionUnavailable[model.PositionState](posErr)
	} else {
		snap.Positions = model.SectionOK(positions)
	}
	if ordErr != nil {
		snap.Orders = model.SectionUnavailable[model.OrderState](ordErr)
	} else {
		snap.Orders = model.SectionOK(orders)
	}

	// 概要只由同一轮的完整结果推导，任何分区缺失就不给概要
	if balErr == nil && posErr == nil && ordErr == nil {
		snap.Summary = buildSummary(balances, positions, orders)
	}

	if posErr == nil {
		e.reconcile(ctx, accountID, positions)
	}
	if ordErr == nil {
		e.reconcileOrders(ctx, accountID, ex, orders)
	}

	return snap, multierr.Combine(balErr, posErr, ordErr)
}

// History 惰性查询历史订单和成交。缓存未过期直接返回，
// force为true时绕过缓存强制刷新
func (e *Engine) History(ctx context.Context, accountID uint, ex exchange.Exchange, force bool) (*model.History, error) {
	if !force {
		e.mu.Lock()
		entry, ok := e.histories[accountID]
		e.mu.Unlock()
		if ok && time.Since(entry.fetchedAt) < e.historyTTL {
			return entry.history, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	var (
		wg       sync.WaitGroup
		orders   []model.OrderState
		trades   []model.TradeState
		ordErr   error
		tradeErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		orders, ordErr = ex.FetchOrderHistory(ctx, e.historyWindow)
	}()
	go func() {
		defer wg.Done()
		trades, tradeErr = ex.FetchTrades(ctx, e.historyWindow)
	}()
	wg.Wait()

	history := &model.History{
		AccountID: accountID,
		Timestamp: time.Now().UnixMilli(),
	}
	if ordErr != nil {
		history.Orders = model.SectionUnavailable[model.OrderState](ordErr)
	} else {
		history.Orders = model.SectionOK(orders)
	}
	if tradeErr != nil {
		history.Trades = model.SectionUnavailable[model.TradeState](tradeErr)
	} else {
		history.Trades = model.SectionOK(trades)
	}

	// 两个分区都失败就不污染缓存，下次重查
	if ordErr == nil || tradeErr == nil {
		e.mu.Lock()
		e.histories[accountID] = &historyEntry{history: history, fetchedAt: time.Now()}
		e.mu.Unlock()
	}

	return history, multierr.Combine(ordErr, tradeErr)
}

// Invalidate 作废某账户的历史缓存，成交落地后调用
func (e *Engine) Invalidate(accountID uint) {
	e.mu.Lock()
	delete(e.histories, accountID)
	e.mu.Unlock()
}

// reconcile 对账本地仓位和交易所仓位。交易所永远是对的，
// 本地数量对不上就直接改成交易所的值，归零即删
func (e *Engine) reconcile(ctx context.Context, accountID uint, remote []model.PositionState) {
	if e.positionDao == nil {
		return
	}
	local, err := e.positionDao.ListByAccount(ctx, accountID)
	if err != nil {
		logger.Warn("reconcile: load local positions failed", logger.Pair("accountId", accountID), logger.Pair("err", err))
		return
	}

	remoteQty := make(map[string]float64, len(remote))
	for _, p := range remote {
		remoteQty[p.Symbol+"/"+p.Side] = p.Contracts
	}
	for i := range local {
		p := &local[i]
		key := p.Symbol + "/" + string(p.PosSide)
		got := remoteQty[key]
		want, _ := p.Quantity.Float64()
		diff := want - got
		if diff <= driftTolerance && diff >= -driftTolerance {
			continue
		}
		logger.Warn("position drift, remote wins",
			logger.Pair("accountId", accountID),
			logger.Pair("symbol", p.Symbol),
			logger.Pair("posSide", p.PosSide),
			logger.Pair("local", want),
			logger.Pair("remote", got))
		p.Quantity = decimal.NewFromFloat(got)
		if err = e.positionDao.Save(ctx, p); err != nil {
			logger.Error("reconcile: save position failed",
				logger.Pair("accountId", accountID),
				logger.Pair("symbol", p.Symbol),
				logger.Pair("err", err))
		}
	}
}

// reconcileOrders 对账本地在途订单和交易所挂单。本地还挂着submitted
// 但交易所已经不在挂单列表里的，回查单笔状态并推进到远端终态
func (e *Engine) reconcileOrders(ctx context.Context, accountID uint, ex exchange.Exchange, remote []model.OrderState) {
	if e.orderDao == nil {
		return
	}
	pending, err := e.orderDao.ListPendingByAccount(ctx, accountID)
	if err != nil {
		logger.Warn("reconcile: load pending orders failed", logger.Pair("accountId", accountID), logger.Pair("err", err))
		return
	}

	open := make(map[string]struct{}, len(remote))
	for _, o := range remote {
		open[o.Id] = struct{}{}
	}
	for _, o := range pending {
		if o.ExternalOrderId == "" {
			continue
		}
		if _, ok := open[o.ExternalOrderId]; ok {
			continue
		}
		state, err := ex.FetchOrderStatus(ctx, o.ExternalOrderId, o.Symbol)
		if err != nil {
			logger.Warn("reconcile: fetch order status failed",
				logger.Pair("accountId", accountID),
				logger.Pair("orderNo", o.OrderNo),
				logger.Pair("err", err))
			continue
		}
		next, ok := remoteOrderStatus(state.Status)
		if !ok || !o.Status.CanTransition(next) {
			continue
		}
		o.FilledQuantity = decimal.NewFromFloat(state.Filled)
		if err = e.orderDao.UpdateStatus(ctx, &o, next); err != nil {
			logger.Error("reconcile: advance order failed",
				logger.Pair("accountId", accountID),
				logger.Pair("orderNo", o.OrderNo),
				logger.Pair("err", err))
			continue
		}
		logger.Warn("order drift, advanced to remote state",
			logger.Pair("accountId", accountID),
			logger.Pair("orderNo", o.OrderNo),
			logger.Pair("externalOrderId", o.ExternalOrderId),
			logger.Pair("status", next))
	}
}

// remoteOrderStatus 把交易所订单状态映射到本地状态机
func remoteOrderStatus(s string) (model.OrderStatus, bool) {
	switch s {
	case "filled":
		return model.OrderFilled, true
	case "canceled", "mmp_canceled":
		return model.OrderCanceled, true
	case "partially_filled":
		return model.OrderPartiallyFilled, true
	}
	return "", false
}

// 对账容差，张数比对不需要更高精度
const driftTolerance = 1e-8

// buildSummary 从同一轮查询的三个结果推导账户概要。
// usedBalance恒等于totalBalance-freeBalance
func buildSummary(balances []model.Balance, positions []model.PositionState, orders []model.OrderState) *model.Summary {
	s := &model.Summary{
		PositionsCount:  len(positions),
		OpenOrdersCount: len(orders),
	}
	for _, b := range balances {
		if b.Currency == consts.QuoteCurrency {
			s.TotalBalance = b.Total
			s.FreeBalance = b.Free
			s.UsedBalance = b.Total - b.Free
			break
		}
	}
	for _, p := range positions {
		s.PositionsValue += p.Notional
		s.UnrealizedPnl += p.UnrealizedPnl
	}
	return s
}
