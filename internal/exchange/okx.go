package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"swapdesk/internal/model"
	"swapdesk/pkg/logger"
	"time"

	"github.com/goccy/go-json"
	goexv2 "github.com/nntaoli-project/goex/v2"
	goexmodel "github.com/nntaoli-project/goex/v2/model"
	"github.com/nntaoli-project/goex/v2/okx/futures"
	"github.com/nntaoli-project/goex/v2/options"
	"github.com/spf13/cast"
)

// okx永续合约适配器。下单走goex的类型化API，
// 账户级查询（余额/持仓/挂单/历史/成交）走okx v5的原生接口
type OkxExchange struct {
	prv  *futures.PrvApi
	pub  futures.Swap
	inst *InstrumentSet
	// 单次调用的超时，goex私有方法没有context，超时在外层兜
	timeout time.Duration
}

// NewOkxExchange 创建适配器并加载可交易币对。凭证无效时GetExchangeInfo会失败
func NewOkxExchange(apiKey, apiSecret, passphrase string, timeout time.Duration) (*OkxExchange, error) {
	opts := []options.ApiOption{
		options.WithApiKey(apiKey),
		options.WithApiSecretKey(apiSecret),
		options.WithPassphrase(passphrase),
	}

	pub := goexv2.OKx.Swap
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	e := &OkxExchange{
		prv:     pub.NewPrvApi(opts...),
		pub:     *pub,
		inst:    NewInstrumentSet(),
		timeout: timeout,
	}

	// 初始化时加载所有可交易币对，同时起到测试连接的作用
	info, _, err := e.pub.GetExchangeInfo()
	if err != nil {
		return nil, Classify(err)
	}
	for _, pair := range info {
		base, quote, err := SplitCanonical(pair.Symbol)
		if err != nil {
			// 不是永续合约的币对忽略
			continue
		}
		e.inst.Put(Instrument{
			Canonical: pair.Symbol,
			Base:      base,
			Quote:     quote,
			CtVal:     pair.ContractVal,
		})
	}
	return e, nil
}

func (e *OkxExchange) Instruments() *InstrumentSet {
	return e.inst
}

// symbol 格式转换: "BTC-USDT-SWAP" -> goex 需要的 CurrencyPair
func (e *OkxExchange) toCurrencyPair(symbol string) (goexmodel.CurrencyPair, error) {
	base, quote, err := SplitCanonical(symbol)
	if err != nil {
		return goexmodel.CurrencyPair{}, err
	}
	pair, perr := e.pub.NewCurrencyPair(base, quote)
	if perr != nil {
		return goexmodel.CurrencyPair{}, newError(KindInvalidInstrument, "", "unknown instrument: "+symbol)
	}
	return pair, nil
}

// okx v5响应包装
type okxEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// doRequest 调用okx原生接口并解出data。code非0时返回分类错误
func (e *OkxExchange) doRequest(ctx context.Context, method, path string, params *url.Values, out interface{}) error {
	type result struct {
		body []byte
		err  error
	}
	ch := make(chan result, 1)
	reqUrl := fmt.Sprintf("%s%s", e.prv.UriOpts.Endpoint, path)

	go func() {
		_, body, err := e.prv.DoAuthRequest(method, reqUrl, params, nil)
		ch <- result{body, err}
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var body []byte
	select {
	case <-timeoutCtx.Done():
		return Classify(timeoutCtx.Err())
	case r := <-ch:
		if r.err != nil {
			return Classify(r.err)
		}
		body = r.body
	}

	var env okxEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Classify(fmt.Errorf("decode okx response: %w", err))
	}
	if env.Code != "0" {
		return classifyCode(env.Code, env.Msg)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return Classify(fmt.Errorf("decode okx data: %w", err))
		}
	}
	return nil
}

// FetchBalances 查询全部币种余额。只透传，网络/鉴权失败原样上报，从不伪造
func (e *OkxExchange) FetchBalances(ctx context.Context) ([]model.Balance, error) {
	var data []struct {
		Details []struct {
			Ccy       string `json:"ccy"`
			Eq        string `json:"eq"`
			AvailBal  string `json:"availBal"`
			AvailEq   string `json:"availEq"`
			FrozenBal string `json:"frozenBal"`
		} `json:"details"`
	}
	if err := e.doRequest(ctx, http.MethodGet, "/api/v5/account/balance", &url.Values{}, &data); err != nil {
		return nil, err
	}

	balances := make([]model.Balance, 0)
	for _, acct := range data {
		for _, d := range acct.Details {
			total := cast.ToFloat64(d.Eq)
			if total == 0 {
				continue
			}
			free := cast.ToFloat64(d.AvailBal)
			if free == 0 {
				free = cast.ToFloat64(d.AvailEq)
			}
			balances = append(balances, model.Balance{
				Currency: d.Ccy,
				Total:    total,
				Free:     free,
				Used:     cast.ToFloat64(d.FrozenBal),
			})
		}
	}
	return balances, nil
}

// FetchPositions 只返回交易所报告的有敞口仓位
func (e *OkxExchange) FetchPositions(ctx context.Context) ([]model.PositionState, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")

	var data []struct {
		InstId      string `json:"instId"`
		PosSide     string `json:"posSide"`
		Pos         string `json:"pos"`
		AvgPx       string `json:"avgPx"`
		MarkPx      string `json:"markPx"`
		Upl         string `json:"upl"`
		UplRatio    string `json:"uplRatio"`
		Lever       string `json:"lever"`
		LiqPx       string `json:"liqPx"`
		NotionalUsd string `json:"notionalUsd"`
		MgnMode     string `json:"mgnMode"`
	}
	if err := e.doRequest(ctx, http.MethodGet, "/api/v5/account/positions", &params, &data); err != nil {
		return nil, err
	}

	positions := make([]model.PositionState, 0, len(data))
	for _, p := range data {
		contracts := cast.ToFloat64(p.Pos)
		if contracts == 0 {
			// 没有张数的仓位忽略
			continue
		}
		side := p.PosSide
		if side == "" || side == "net" {
			// 净持仓模式下用张数符号判断方向
			if contracts > 0 {
				side = string(model.PosSideLong)
			} else {
				side = string(model.PosSideShort)
			}
		}
		if contracts < 0 {
			contracts = -contracts
		}
		positions = append(positions, model.PositionState{
			Symbol:           p.InstId,
			Side:             side,
			Contracts:        contracts,
			Notional:         cast.ToFloat64(p.NotionalUsd),
			EntryPrice:       cast.ToFloat64(p.AvgPx),
			MarkPrice:        cast.ToFloat64(p.MarkPx),
			UnrealizedPnl:    cast.ToFloat64(p.Upl),
			Percentage:       cast.ToFloat64(p.UplRatio) * 100,
			Leverage:         cast.ToFloat64(p.Lever),
			LiquidationPrice: cast.ToFloat64(p.LiqPx),
			MarginMode:       p.MgnMode,
		})
	}
	return positions, nil
}

type okxOrderData struct {
	OrdId     string `json:"ordId"`
	ClOrdId   string `json:"clOrdId"`
	InstId    string `json:"instId"`
	OrdType   string `json:"ordType"`
	Side      string `json:"side"`
	Px        string `json:"px"`
	AvgPx     string `json:"avgPx"`
	Sz        string `json:"sz"`
	AccFillSz string `json:"accFillSz"`
	State     string `json:"state"`
	CTime     string `json:"cTime"`
}

func (o *okxOrderData) toState() model.OrderState {
	price := cast.ToFloat64(o.Px)
	if price == 0 {
		price = cast.ToFloat64(o.AvgPx)
	}
	return model.OrderState{
		Id:        o.OrdId,
		Symbol:    o.InstId,
		Type:      o.OrdType,
		Side:      o.Side,
		Price:     price,
		Amount:    cast.ToFloat64(o.Sz),
		Filled:    cast.ToFloat64(o.AccFillSz),
		Status:    o.State,
		Timestamp: cast.ToInt64(o.CTime),
	}
}

// FetchOpenOrders 查询全部未完成订单
func (e *OkxExchange) FetchOpenOrders(ctx context.Context) ([]model.OrderState, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")

	var data []okxOrderData
	if err := e.doRequest(ctx, http.MethodGet, "/api/v5/trade/orders-pending", &params, &data); err != nil {
		return nil, err
	}
	orders := make([]model.OrderState, 0, len(data))
	for _, o := range data {
		orders = append(orders, o.toState())
	}
	return orders, nil
}

// FetchOrderHistory 历史订单，window限定回溯窗口
func (e *OkxExchange) FetchOrderHistory(ctx context.Context, window time.Duration) ([]model.OrderState, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")
	params.Set("begin", strconv.FormatInt(time.Now().Add(-window).UnixMilli(), 10))

	var data []okxOrderData
	if err := e.doRequest(ctx, http.MethodGet, "/api/v5/trade/orders-history", &params, &data); err != nil {
		return nil, err
	}
	orders := make([]model.OrderState, 0, len(data))
	for _, o := range data {
		orders = append(orders, o.toState())
	}
	return orders, nil
}

// FetchTrades 成交记录
func (e *OkxExchange) FetchTrades(ctx context.Context, window time.Duration) ([]model.TradeState, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")
	params.Set("begin", strconv.FormatInt(time.Now().Add(-window).UnixMilli(), 10))

	var data []struct {
		TradeId string `json:"tradeId"`
		OrdId   string `json:"ordId"`
		InstId  string `json:"instId"`
		Side    string `json:"side"`
		FillPx  string `json:"fillPx"`
		FillSz  string `json:"fillSz"`
		Fee     string `json:"fee"`
		Ts      string `json:"ts"`
	}
	if err := e.doRequest(ctx, http.MethodGet, "/api/v5/trade/fills", &params, &data); err != nil {
		return nil, err
	}

	trades := make([]model.TradeState, 0, len(data))
	for _, t := range data {
		price := cast.ToFloat64(t.FillPx)
		amount := cast.ToFloat64(t.FillSz)
		fee := cast.ToFloat64(t.Fee)
		if fee < 0 {
			// okx的手续费是负数（扣减），统一转为正的成本
			fee = -fee
		}
		trades = append(trades, model.TradeState{
			Id:        t.TradeId,
			OrderId:   t.OrdId,
			Symbol:    t.InstId,
			Side:      t.Side,
			Price:     price,
			Amount:    amount,
			Cost:      price * amount,
			Fee:       fee,
			Timestamp: cast.ToInt64(t.Ts),
		})
	}
	return trades, nil
}

// FetchOrderStatus 查询单个订单
func (e *OkxExchange) FetchOrderStatus(ctx context.Context, orderId, symbol string) (*model.OrderState, error) {
	params := url.Values{}
	params.Set("instId", symbol)
	params.Set("ordId", orderId)

	var data []okxOrderData
	if err := e.doRequest(ctx, http.MethodGet, "/api/v5/trade/order", &params, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, newError(KindRemoteRejected, "", "order not found: "+orderId)
	}
	state := data[0].toState()
	return &state, nil
}

// SubmitOrder 下单。posSide/tdMode由(side, posSide)对显式解析，开仓前先设杠杆
func (e *OkxExchange) SubmitOrder(ctx context.Context, req *OrderRequest) (string, error) {
	if !e.inst.Supported(req.Symbol) {
		return "", newError(KindInvalidInstrument, "", "unsupported instrument: "+req.Symbol)
	}
	pair, err := e.toCurrencyPair(req.Symbol)
	if err != nil {
		return "", err
	}

	action, posSide, err := resolveAction(req.Side, req.PosSide)
	if err != nil {
		return "", err
	}

	var side goexmodel.OrderSide
	switch action {
	case actionOpenLong:
		side = goexmodel.Futures_OpenBuy
	case actionOpenShort:
		side = goexmodel.Futures_OpenSell
	case actionCloseLong:
		side = goexmodel.Futures_CloseBuy
	case actionCloseShort:
		side = goexmodel.Futures_CloseSell
	}

	var orderType goexmodel.OrderType
	switch req.OrderType {
	case model.Limit:
		orderType = goexmodel.OrderType_Limit
	case model.Market:
		orderType = goexmodel.OrderType_Market
	default:
		return "", newError(KindRemoteRejected, "", "unsupported order type: "+string(req.OrderType))
	}

	mgnMode := req.MgnMode
	if mgnMode == "" {
		mgnMode = model.MgnModeCross
	}

	opts := []goexmodel.OptionParameter{
		{Key: "tdMode", Value: string(mgnMode)},
		{Key: "posSide", Value: string(posSide)},
	}

	// 开仓前设置杠杆，平仓沿用已有杠杆
	if req.Leverage > 0 && (action == actionOpenLong || action == actionOpenShort) {
		if err := e.setLeverage(req.Symbol, req.Leverage, mgnMode, posSide); err != nil {
			// 杠杆设置失败不阻断下单，交易所会沿用当前杠杆
			logger.Warnf("set leverage failed for %s: %v", req.Symbol, err)
		}
	}

	type result struct {
		order *goexmodel.Order
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		created, _, cerr := e.prv.CreateOrder(pair, req.Quantity, req.Price, side, orderType, opts...)
		ch <- result{created, cerr}
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	select {
	case <-timeoutCtx.Done():
		return "", Classify(timeoutCtx.Err())
	case r := <-ch:
		if r.err != nil {
			return "", Classify(r.err)
		}
		return r.order.Id, nil
	}
}

// SetLeverage 设置合约杠杆
// leverage   杠杆倍数，例如 20、50
// marginMode 保证金模式：isolated（逐仓）或 cross（全仓）
// posSide    持仓方向：long（做多）、short（做空）
func (e *OkxExchange) setLeverage(symbol string, leverage int, mgnMode model.MgnMode, posSide model.OrderPosSide) error {
	opts := []goexmodel.OptionParameter{
		{Key: "mgnMode", Value: string(mgnMode)},
	}
	// 逐仓模式下必须指定posSide
	if mgnMode == model.MgnModeIsolated {
		opts = append(opts, goexmodel.OptionParameter{Key: "posSide", Value: string(posSide)})
	}
	_, err := e.prv.SetLeverage(symbol, strconv.Itoa(leverage), opts...)
	if err != nil {
		return Classify(err)
	}
	return nil
}

// CancelOrder 撤单
func (e *OkxExchange) CancelOrder(ctx context.Context, orderId, symbol string) error {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return err
	}
	type result struct{ err error }
	ch := make(chan result, 1)
	go func() {
		_, cerr := e.prv.CancelOrder(pair, orderId)
		ch <- result{cerr}
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	select {
	case <-timeoutCtx.Done():
		return Classify(timeoutCtx.Err())
	case r := <-ch:
		if r.err != nil {
			return Classify(r.err)
		}
		return nil
	}
}

// LastPrice 获取最新价格
func (e *OkxExchange) LastPrice(ctx context.Context, symbol string) (float64, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return 0, err
	}
	ticker, _, terr := e.pub.GetTicker(pair)
	if terr != nil {
		return 0, Classify(terr)
	}
	if ticker == nil {
		return 0, newError(KindRemoteRejected, "", "failed to get ticker for "+symbol)
	}
	return ticker.Last, nil
}
