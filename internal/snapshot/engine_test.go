package snapshot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapdesk/conf"
	"swapdesk/internal/exchange"
	"swapdesk/internal/model"
)

// 测试替身，按需注入每个查询的返回
type fakeExchange struct {
	balances    []model.Balance
	positions   []model.PositionState
	orders      []model.OrderState
	histOrds    []model.OrderState
	trades      []model.TradeState
	orderStatus *model.OrderState

	balErr    error
	posErr    error
	ordErr    error
	histErr   error
	tradeErr  error
	statusErr error

	historyCalls int64
}

func (f *fakeExchange) FetchBalances(ctx context.Context) ([]model.Balance, error) {
	return f.balances, f.balErr
}
func (f *fakeExchange) FetchPositions(ctx context.Context) ([]model.PositionState, error) {
	return f.positions, f.posErr
}
func (f *fakeExchange) FetchOpenOrders(ctx context.Context) ([]model.OrderState, error) {
	return f.orders, f.ordErr
}
func (f *fakeExchange) FetchOrderHistory(ctx context.Context, window time.Duration) ([]model.OrderState, error) {
	atomic.AddInt64(&f.historyCalls, 1)
	return f.histOrds, f.histErr
}
func (f *fakeExchange) FetchTrades(ctx context.Context, window time.Duration) ([]model.TradeState, error) {
	return f.trades, f.tradeErr
}
func (f *fakeExchange) SubmitOrder(ctx context.Context, req *exchange.OrderRequest) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeExchange) FetchOrderStatus(ctx context.Context, orderId, symbol string) (*model.OrderState, error) {
	if f.orderStatus == nil && f.statusErr == nil {
		return nil, errors.New("not implemented")
	}
	return f.orderStatus, f.statusErr
}
func (f *fakeExchange) CancelOrder(ctx context.Context, orderId, symbol string) error {
	return errors.New("not implemented")
}
func (f *fakeExchange) LastPrice(ctx context.Context, symbol string) (float64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeExchange) Instruments() *exchange.InstrumentSet {
	return exchange.NewInstrumentSet()
}

// 内存仓位表，验证对账写回
type memPositions struct {
	rows map[uint]*model.Position
}

func newMemPositions(seed ...*model.Position) *memPositions {
	m := &memPositions{rows: make(map[uint]*model.Position)}
	for i, p := range seed {
		p.ID = uint(i + 1)
		m.rows[p.ID] = p
	}
	return m
}

func (m *memPositions) ListByAccount(ctx context.Context, accountID uint) ([]model.Position, error) {
	var out []model.Position
	for _, p := range m.rows {
		if p.AccountID == accountID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPositions) Save(ctx context.Context, pos *model.Position) error {
	if pos.Quantity.IsZero() {
		delete(m.rows, pos.ID)
		return nil
	}
	cp := *pos
	m.rows[pos.ID] = &cp
	return nil
}

// 内存订单表，状态机约束和dao一致
type memOrders struct {
	rows map[uint]*model.Order
}

func newMemOrders(seed ...*model.Order) *memOrders {
	m := &memOrders{rows: make(map[uint]*model.Order)}
	for i, o := range seed {
		o.ID = uint(i + 1)
		m.rows[o.ID] = o
	}
	return m
}

func (m *memOrders) ListPendingByAccount(ctx context.Context, accountID uint) ([]model.Order, error) {
	var out []model.Order
	for _, o := range m.rows {
		if o.AccountID == accountID && !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) UpdateStatus(ctx context.Context, order *model.Order, next model.OrderStatus) error {
	if !order.Status.CanTransition(next) {
		return errors.New("invalid transition")
	}
	order.Status = next
	cp := *order
	m.rows[order.ID] = &cp
	return nil
}

func testEngine() *Engine {
	return testEngineWith(nil, nil)
}

func testEngineWith(positions PositionStore, orders OrderStore) *Engine {
	return NewEngine(conf.SyncConfig{
		QueryTimeout:  time.Second,
		HistoryTTL:    time.Minute,
		HistoryWindow: 7 * 24 * time.Hour,
	}, positions, orders)
}

func TestSnapshotAllSections(t *testing.T) {
	ex := &fakeExchange{
		balances: []model.Balance{{Currency: "USDT", Total: 1000, Free: 800, Used: 200}},
		positions: []model.PositionState{
			{Symbol: "BTC-USDT-SWAP", Side: "long", Contracts: 10, Notional: 5000, UnrealizedPnl: 42},
			{Symbol: "ETH-USDT-SWAP", Side: "short", Contracts: 3, Notional: 900, UnrealizedPnl: -7},
		},
		orders: []model.OrderState{{Id: "o1", Symbol: "BTC-USDT-SWAP"}},
	}

	snap, err := testEngine().Snapshot(context.Background(), 1, ex)
	require.NoError(t, err)
	assert.True(t, snap.Balances.Available)
	assert.True(t, snap.Positions.Available)
	assert.True(t, snap.Orders.Available)

	require.NotNil(t, snap.Summary)
	assert.Equal(t, 1000.0, snap.Summary.TotalBalance)
	assert.Equal(t, 800.0, snap.Summary.FreeBalance)
	// usedBalance永远等于total减free
	assert.Equal(t, snap.Summary.TotalBalance-snap.Summary.FreeBalance, snap.Summary.UsedBalance)
	assert.Equal(t, 5900.0, snap.Summary.PositionsValue)
	assert.Equal(t, 35.0, snap.Summary.UnrealizedPnl)
	assert.Equal(t, 2, snap.Summary.PositionsCount)
	assert.Equal(t, 1, snap.Summary.OpenOrdersCount)
}

func TestSnapshotSectionDegrade(t *testing.T) {
	ex := &fakeExchange{
		balances: []model.Balance{{Currency: "USDT", Total: 100, Free: 100}},
		posErr:   errors.New("boom"),
	}

	snap, err := testEngine().Snapshot(context.Background(), 1, ex)
	require.Error(t, err)

	// 失败的分区降级，其余分区不受影响
	assert.True(t, snap.Balances.Available)
	assert.False(t, snap.Positions.Available)
	assert.Equal(t, "boom", snap.Positions.Error)
	assert.True(t, snap.Orders.Available)

	// 分区缺失时不推导概要
	assert.Nil(t, snap.Summary)
}

// 空仓和查询失败是两种不同状态
func TestSnapshotEmptyIsNotUnavailable(t *testing.T) {
	ex := &fakeExchange{
		balances: []model.Balance{{Currency: "USDT", Total: 100, Free: 100}},
	}

	snap, err := testEngine().Snapshot(context.Background(), 1, ex)
	require.NoError(t, err)
	assert.True(t, snap.Positions.Available)
	assert.NotNil(t, snap.Positions.Data)
	assert.Len(t, snap.Positions.Data, 0)
	require.NotNil(t, snap.Summary)
	assert.Equal(t, 0, snap.Summary.PositionsCount)
}

func TestHistoryCache(t *testing.T) {
	ex := &fakeExchange{
		histOrds: []model.OrderState{{Id: "h1"}},
		trades:   []model.TradeState{{Id: "t1"}},
	}
	engine := testEngine()

	h1, err := engine.History(context.Background(), 1, ex, false)
	require.NoError(t, err)
	assert.True(t, h1.Orders.Available)
	assert.EqualValues(t, 1, atomic.LoadInt64(&ex.historyCalls))

	// TTL内命中缓存，不再打交易所
	h2, err := engine.History(context.Background(), 1, ex, false)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.EqualValues(t, 1, atomic.LoadInt64(&ex.historyCalls))

	// 强制刷新绕过缓存
	_, err = engine.History(context.Background(), 1, ex, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt64(&ex.historyCalls))

	// 作废后下一次重查
	engine.Invalidate(1)
	_, err = engine.History(context.Background(), 1, ex, false)
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt64(&ex.historyCalls))
}

// 本地仓位数量和交易所对不上时，对账直接改成交易所的值
func TestReconcileRewritesDriftedPosition(t *testing.T) {
	positions := newMemPositions(&model.Position{
		AccountID: 1,
		Symbol:    "BTC-USDT-SWAP",
		PosSide:   model.PosSideLong,
		Quantity:  decimal.NewFromInt(10),
		AvgCost:   decimal.NewFromInt(50000),
	})
	ex := &fakeExchange{
		balances: []model.Balance{{Currency: "USDT", Total: 100, Free: 100}},
		positions: []model.PositionState{
			{Symbol: "BTC-USDT-SWAP", Side: "long", Contracts: 4},
		},
	}

	_, err := testEngineWith(positions, nil).Snapshot(context.Background(), 1, ex)
	require.NoError(t, err)

	rows, err := positions.ListByAccount(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Quantity.Equal(decimal.NewFromInt(4)))
	// 均价账本不动，只对数量
	assert.True(t, rows[0].AvgCost.Equal(decimal.NewFromInt(50000)))
}

// 交易所已无仓位（例如被强平）时本地记录删除，而不是永远留着旧数量
func TestReconcileRemovesLiquidatedPosition(t *testing.T) {
	positions := newMemPositions(&model.Position{
		AccountID: 1,
		Symbol:    "BTC-USDT-SWAP",
		PosSide:   model.PosSideLong,
		Quantity:  decimal.NewFromInt(10),
	})
	ex := &fakeExchange{
		balances: []model.Balance{{Currency: "USDT", Total: 100, Free: 100}},
	}

	_, err := testEngineWith(positions, nil).Snapshot(context.Background(), 1, ex)
	require.NoError(t, err)

	rows, err := positions.ListByAccount(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, rows, 0)
}

// 本地submitted但交易所挂单里已经没有的订单，回查状态后推进到远端终态
func TestReconcileAdvancesClosedOrder(t *testing.T) {
	orders := newMemOrders(&model.Order{
		AccountID:       1,
		OrderNo:         "n1",
		Symbol:          "BTC-USDT-SWAP",
		ExternalOrderId: "ext1",
		Status:          model.OrderSubmitted,
	})
	ex := &fakeExchange{
		balances:    []model.Balance{{Currency: "USDT", Total: 100, Free: 100}},
		orderStatus: &model.OrderState{Id: "ext1", Status: "filled", Filled: 3},
	}

	_, err := testEngineWith(nil, orders).Snapshot(context.Background(), 1, ex)
	require.NoError(t, err)

	got := orders.rows[1]
	assert.Equal(t, model.OrderFilled, got.Status)
	assert.True(t, got.FilledQuantity.Equal(decimal.NewFromInt(3)))
}

// 回查失败时订单保持原状，等下一轮再试
func TestReconcileKeepsOrderOnStatusError(t *testing.T) {
	orders := newMemOrders(&model.Order{
		AccountID:       1,
		OrderNo:         "n1",
		Symbol:          "BTC-USDT-SWAP",
		ExternalOrderId: "ext1",
		Status:          model.OrderSubmitted,
	})
	ex := &fakeExchange{
		balances:  []model.Balance{{Currency: "USDT", Total: 100, Free: 100}},
		statusErr: errors.New("okx down"),
	}

	_, err := testEngineWith(nil, orders).Snapshot(context.Background(), 1, ex)
	require.NoError(t, err)
	assert.Equal(t, model.OrderSubmitted, orders.rows[1].Status)
}

func TestHistoryPartialFailureStillCached(t *testing.T) {
	ex := &fakeExchange{
		histOrds: []model.OrderState{{Id: "h1"}},
		tradeErr: errors.New("fills down"),
	}
	engine := testEngine()

	h, err := engine.History(context.Background(), 1, ex, false)
	require.Error(t, err)
	assert.True(t, h.Orders.Available)
	assert.False(t, h.Trades.Available)
}
