package gateway

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapdesk/conf"
	"swapdesk/internal/exchange"
	"swapdesk/internal/model"
	"swapdesk/pkg/errors"
	"swapdesk/pkg/errors/ecode"
)

// 内存版账本，替代gorm DAO

type memOrders struct {
	mu     sync.Mutex
	byCorr map[string]*model.Order
	nextID uint
}

func newMemOrders() *memOrders {
	return &memOrders{byCorr: map[string]*model.Order{}}
}

func (m *memOrders) Insert(ctx context.Context, order *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	order.ID = m.nextID
	m.byCorr[order.CorrelationId] = order
	return nil
}

func (m *memOrders) GetByCorrelationId(ctx context.Context, correlationId string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byCorr[correlationId], nil
}

func (m *memOrders) UpdateStatus(ctx context.Context, order *model.Order, next model.OrderStatus) error {
	order.Status = next
	return nil
}

type memTrades struct {
	mu     sync.Mutex
	trades []*model.Trade
}

func (m *memTrades) Insert(ctx context.Context, trade *model.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	return nil
}

type memPositions struct {
	mu  sync.Mutex
	pos map[string]*model.Position
}

func newMemPositions() *memPositions { return &memPositions{pos: map[string]*model.Position{}} }

func key(accountID uint, symbol string, posSide model.OrderPosSide) string {
	return strconv.FormatUint(uint64(accountID), 10) + "/" + symbol + "/" + string(posSide)
}

func (m *memPositions) Get(ctx context.Context, accountID uint, symbol string, posSide model.OrderPosSide) (*model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos[key(accountID, symbol, posSide)], nil
}

func (m *memPositions) Save(ctx context.Context, pos *model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos[key(pos.AccountID, pos.Symbol, pos.PosSide)] = pos
	return nil
}

type memAccounts struct{}

func (memAccounts) UpdateCash(ctx context.Context, account *model.Account) error { return nil }

// 可编程的交易所替身
type stubExchange struct {
	submits   int64
	submitFn  func(req *exchange.OrderRequest) (string, error)
	statusFn  func(orderId string) (*model.OrderState, error)
	supported *exchange.InstrumentSet
}

func newStubExchange() *stubExchange {
	set := exchange.NewInstrumentSet()
	set.Put(exchange.Instrument{Canonical: "BTC-USDT-SWAP", Base: "BTC", Quote: "USDT", CtVal: 0.01})
	return &stubExchange{
		supported: set,
		submitFn:  func(req *exchange.OrderRequest) (string, error) { return "ext-1", nil },
		statusFn: func(orderId string) (*model.OrderState, error) {
			return &model.OrderState{Id: orderId, Status: "filled", Price: 50000, Filled: 2, Timestamp: time.Now().UnixMilli()}, nil
		},
	}
}

func (s *stubExchange) FetchBalances(ctx context.Context) ([]model.Balance, error)         { return nil, nil }
func (s *stubExchange) FetchPositions(ctx context.Context) ([]model.PositionState, error)  { return nil, nil }
func (s *stubExchange) FetchOpenOrders(ctx context.Context) ([]model.OrderState, error)    { return nil, nil }
func (s *stubExchange) FetchOrderHistory(ctx context.Context, w time.Duration) ([]model.OrderState, error) {
	return nil, nil
}
func (s *stubExchange) FetchTrades(ctx context.Context, w time.Duration) ([]model.TradeState, error) {
	return nil, nil
}
func (s *stubExchange) SubmitOrder(ctx context.Context, req *exchange.OrderRequest) (string, error) {
	atomic.AddInt64(&s.submits, 1)
	return s.submitFn(req)
}
func (s *stubExchange) FetchOrderStatus(ctx context.Context, orderId, symbol string) (*model.OrderState, error) {
	return s.statusFn(orderId)
}
func (s *stubExchange) CancelOrder(ctx context.Context, orderId, symbol string) error { return nil }
func (s *stubExchange) LastPrice(ctx context.Context, symbol string) (float64, error) { return 0, nil }
func (s *stubExchange) Instruments() *exchange.InstrumentSet                          { return s.supported }

func testGateway(t *testing.T) (*Gateway, *memOrders, *memPositions) {
	t.Helper()
	orders := newMemOrders()
	positions := newMemPositions()
	g, err := NewGateway(conf.GatewayConfig{
		MaxAttempts:   3,
		RetryBackoff:  time.Millisecond,
		SubmitTimeout: time.Second,
	}, memAccounts{}, orders, &memTrades{}, positions, nil)
	require.NoError(t, err)
	return g, orders, positions
}

func activeAccount() *model.Account {
	return &model.Account{
		ID:          1,
		IsActive:    true,
		CurrentCash: decimal.NewFromInt(10000),
	}
}

func marketBuy(corr string) *PlaceRequest {
	return &PlaceRequest{
		CorrelationId: corr,
		Symbol:        "BTC-USDT-SWAP",
		Side:          model.Buy,
		OrderType:     model.Market,
		Quantity:      2,
		Leverage:      10,
		MgnMode:       model.MgnModeCross,
	}
}

// 校验失败不触碰交易所
func TestValidationRejectsBeforeAdapter(t *testing.T) {
	g, _, _ := testGateway(t)
	ex := newStubExchange()
	account := activeAccount()

	cases := []*PlaceRequest{
		{Symbol: "BTC-USDT-SWAP", Side: model.Buy, OrderType: model.Market, Quantity: 0},
		{Symbol: "BTC-USDT-SWAP", Side: model.Buy, OrderType: model.Limit, Quantity: 1, Price: 0},
		{Symbol: "BTC-USDT-SWAP", Side: "flat", OrderType: model.Market, Quantity: 1},
		{Symbol: "BTC-USDT-SWAP", Side: model.Buy, OrderType: model.Market, Quantity: 1, Leverage: 200},
	}
	for i, req := range cases {
		_, err := g.PlaceOrder(context.Background(), account, ex, req)
		require.Error(t, err, i)
		assert.True(t, errors.IsCode(err, ecode.ValidationErr), i)
	}

	// 不支持的币对是独立的错误码
	_, err := g.PlaceOrder(context.Background(), account, ex,
		&PlaceRequest{Symbol: "DOGE-USDT-SWAP", Side: model.Buy, OrderType: model.Market, Quantity: 1})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, ecode.InvalidInstrumentErr))

	// 停用账户直接拒绝
	inactive := activeAccount()
	inactive.IsActive = false
	_, err = g.PlaceOrder(context.Background(), inactive, ex, marketBuy("c1"))
	assert.True(t, errors.IsCode(err, ecode.AccountInactiveErr))

	assert.EqualValues(t, 0, atomic.LoadInt64(&ex.submits))
}

func TestPlaceOrderFillFlow(t *testing.T) {
	g, _, positions := testGateway(t)
	ex := newStubExchange()

	res, err := g.PlaceOrder(context.Background(), activeAccount(), ex, marketBuy("c1"))
	require.NoError(t, err)
	assert.True(t, res.Filled)
	assert.Equal(t, model.OrderFilled, res.Order.Status)
	assert.Equal(t, "ext-1", res.Order.ExternalOrderId)
	require.NotNil(t, res.Trade)

	// 2张 * 0.01面值 * 50000 = 1000U名义
	assert.True(t, res.Trade.Price.Equal(decimal.NewFromInt(50000)))

	// 仓位均价账本已更新
	pos, err := positions.Get(context.Background(), 1, "BTC-USDT-SWAP", model.PosSideLong)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, pos.AvgCost.Equal(decimal.NewFromInt(50000)))
}

// 同一correlation id只提交一次，后续返回首次结果
func TestDuplicateCorrelationId(t *testing.T) {
	g, _, _ := testGateway(t)
	ex := newStubExchange()
	account := activeAccount()

	first, err := g.PlaceOrder(context.Background(), account, ex, marketBuy("same"))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := g.PlaceOrder(context.Background(), account, ex, marketBuy("same"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Order.OrderNo, second.Order.OrderNo)
	assert.EqualValues(t, 1, atomic.LoadInt64(&ex.submits))
}

// 可重试错误指数退避，耗尽后报ExecutionFailed
func TestRetryExhausted(t *testing.T) {
	g, _, _ := testGateway(t)
	ex := newStubExchange()
	ex.submitFn = func(req *exchange.OrderRequest) (string, error) {
		return "", exchange.Classify(context.DeadlineExceeded)
	}

	_, err := g.PlaceOrder(context.Background(), activeAccount(), ex, marketBuy("c1"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, ecode.ExecutionFailedErr))
	assert.EqualValues(t, 3, atomic.LoadInt64(&ex.submits))
}

// 不可重试错误第一次就原样上抛
func TestNonRetryableSurfacesImmediately(t *testing.T) {
	g, orders, _ := testGateway(t)
	ex := newStubExchange()
	marginErr := &exchange.Error{Kind: exchange.KindInsufficientMargin, Code: "51008", Message: "insufficient margin"}
	ex.submitFn = func(req *exchange.OrderRequest) (string, error) { return "", marginErr }

	_, err := g.PlaceOrder(context.Background(), activeAccount(), ex, marketBuy("c1"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, ecode.InsufficientMarginErr))
	assert.EqualValues(t, 1, atomic.LoadInt64(&ex.submits))

	// 本地订单落了rejected终态
	order, err := orders.GetByCorrelationId(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, model.OrderRejected, order.Status)
}

// 同一账户的下单串行执行
func TestPerAccountSerialization(t *testing.T) {
	g, _, _ := testGateway(t)
	ex := newStubExchange()

	var inFlight, maxInFlight int64
	ex.submitFn = func(req *exchange.OrderRequest) (string, error) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&maxInFlight)
			if cur <= old || atomic.CompareAndSwapInt64(&maxInFlight, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return "ext", nil
	}

	account := activeAccount()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = g.PlaceOrder(context.Background(), account, ex, marketBuy(""))
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&maxInFlight))
}

// 两笔并发订单抢同一份保证金额度时，恰好一笔成交，另一笔报保证金不足
func TestConcurrentInsufficientMargin(t *testing.T) {
	g, _, _ := testGateway(t)
	ex := newStubExchange()

	// 额度只够一笔，之后的提交都打回
	var budget int64 = 1
	ex.submitFn = func(req *exchange.OrderRequest) (string, error) {
		if atomic.AddInt64(&budget, -1) < 0 {
			return "", &exchange.Error{Kind: exchange.KindInsufficientMargin, Code: "51008", Message: "insufficient margin"}
		}
		return "ext-1", nil
	}

	account := activeAccount()
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.PlaceOrder(context.Background(), account, ex, marketBuy("full-"+strconv.Itoa(i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var filled, margin int
	for err := range errs {
		switch {
		case err == nil:
			filled++
		case errors.IsCode(err, ecode.InsufficientMarginErr):
			margin++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, filled)
	assert.Equal(t, 1, margin)
	assert.EqualValues(t, 2, atomic.LoadInt64(&ex.submits))
}

// 不同账户同一币对各自记账，仓位互不串号
func TestPositionsIsolatedPerAccount(t *testing.T) {
	g, _, positions := testGateway(t)
	ex := newStubExchange()

	a1 := activeAccount()
	a2 := activeAccount()
	a2.ID = 2

	_, err := g.PlaceOrder(context.Background(), a1, ex, marketBuy("a1"))
	require.NoError(t, err)
	_, err = g.PlaceOrder(context.Background(), a2, ex, marketBuy("a2"))
	require.NoError(t, err)

	p1, err := positions.Get(context.Background(), 1, "BTC-USDT-SWAP", model.PosSideLong)
	require.NoError(t, err)
	require.NotNil(t, p1)
	p2, err := positions.Get(context.Background(), 2, "BTC-USDT-SWAP", model.PosSideLong)
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.True(t, p1.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, p2.Quantity.Equal(decimal.NewFromInt(2)))
}

// 查不到成交结果时订单留在submitted，不算失败
func TestStatusUnavailableLeavesSubmitted(t *testing.T) {
	g, _, _ := testGateway(t)
	ex := newStubExchange()
	ex.statusFn = func(orderId string) (*model.OrderState, error) {
		return nil, &exchange.Error{Kind: exchange.KindNetworkTimeout, Message: "timeout"}
	}

	res, err := g.PlaceOrder(context.Background(), activeAccount(), ex, marketBuy("c1"))
	require.NoError(t, err)
	assert.False(t, res.Filled)
	assert.Equal(t, model.OrderSubmitted, res.Order.Status)
}

// 平仓结算：退保证金+已实现盈亏
func TestCloseSettlesPnl(t *testing.T) {
	g, _, positions := testGateway(t)
	ex := newStubExchange()
	account := activeAccount()

	// 先建一个多头仓位：2张，均价40000，10倍杠杆
	require.NoError(t, positions.Save(context.Background(), &model.Position{
		AccountID: 1, Symbol: "BTC-USDT-SWAP", PosSide: model.PosSideLong,
		Quantity: decimal.NewFromInt(2), AvgCost: decimal.NewFromInt(40000), Leverage: 10,
	}))
	cashBefore := account.CurrentCash

	req := marketBuy("close-1")
	req.Side = model.Sell
	req.PosSide = model.PosSideLong
	res, err := g.PlaceOrder(context.Background(), account, ex, req)
	require.NoError(t, err)
	require.True(t, res.Filled)

	// 50000平40000的多，2张*0.01面值：盈亏+200，退保证金 40000*2*0.01/10=80
	assert.True(t, account.CurrentCash.GreaterThan(cashBefore.Add(decimal.NewFromInt(200))),
		"cash=%s", account.CurrentCash)

	pos, err := positions.Get(context.Background(), 1, "BTC-USDT-SWAP", model.PosSideLong)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.Quantity.IsZero())
}

func TestEmptyCorrelationIdGenerated(t *testing.T) {
	g, _, _ := testGateway(t)
	ex := newStubExchange()

	res, err := g.PlaceOrder(context.Background(), activeAccount(), ex, marketBuy(""))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Order.CorrelationId)
}
