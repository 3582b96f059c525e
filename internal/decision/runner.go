package decision

import (
	"context"
	"time"

	"github.com/google/uuid"

	"swapdesk/conf"
	"swapdesk/internal/consts"
	"swapdesk/internal/exchange"
	"swapdesk/internal/gateway"
	"swapdesk/internal/model"
	"swapdesk/internal/snapshot"
	"swapdesk/pkg/errors"
	"swapdesk/pkg/errors/ecode"
	"swapdesk/pkg/logger"
)

// Provider 决策来源。拿到账户当前快照，产出一个交易意图。
// 返回nil意图等同于hold
type Provider interface {
	Decide(ctx context.Context, account *model.Account, snap *model.Snapshot) (*model.DecisionIntent, error)
}

// AccountSource 决策轮询的账户来源
type AccountSource interface {
	ListActiveByKind(ctx context.Context, kind string) ([]model.Account, error)
}

// OrderPlacer 下单出口，gateway.Gateway实现它。
// 决策单和手动单走完全相同的执行路径
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, account *model.Account, ex exchange.Exchange, req *gateway.PlaceRequest) (*gateway.Result, error)
}

// Runner 定时驱动决策引擎账户。每一轮：拉快照 -> 要意图 -> 校验 -> 定量 -> 下单
type Runner struct {
	cfg      conf.DecisionConfig
	provider Provider
	accounts AccountSource
	engine   *snapshot.Engine
	placer   OrderPlacer
	manager  *exchange.Manager

	stop chan struct{}
	done chan struct{}
}

func NewRunner(cfg conf.DecisionConfig, provider Provider, accounts AccountSource,
	engine *snapshot.Engine, placer OrderPlacer, manager *exchange.Manager) *Runner {
	return &Runner{
		cfg:      cfg,
		provider: provider,
		accounts: accounts,
		engine:   engine,
		placer:   placer,
		manager:  manager,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动轮询协程，Stop之前一直跑
func (r *Runner) Start() {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.RunOnce(context.Background())
			case <-r.stop:
				return
			}
		}
	}()
}

func (r *Runner) Stop() {
	close(r.stop)
	<-r.done
}

// RunOnce 跑一轮全部决策账户。单个账户失败不影响其他账户
func (r *Runner) RunOnce(ctx context.Context) {
	accounts, err := r.accounts.ListActiveByKind(ctx, consts.AccountKindAlgo)
	if err != nil {
		logger.Error("list decision accounts failed", logger.Pair("err", err))
		return
	}
	for i := range accounts {
		if err = r.runAccount(ctx, &accounts[i]); err != nil {
			logger.Warn("decision round failed",
				logger.Pair("accountId", accounts[i].ID),
				logger.Pair("err", err))
		}
	}
}

func (r *Runner) runAccount(ctx context.Context, account *model.Account) error {
	ex, err := r.manager.Acquire(account)
	if err != nil {
		return err
	}
	defer r.manager.Release(account)

	snap, err := r.engine.Snapshot(ctx, account.ID, ex)
	if err != nil && snap.Summary == nil {
		// 概要都推不出来就没法定量，这一轮跳过
		return err
	}

	intent, err := r.provider.Decide(ctx, account, snap)
	if err != nil {
		return err
	}
	if intent == nil || intent.Operation == model.OpHold {
		logger.Info("decision hold", logger.Pair("accountId", account.ID))
		return nil
	}
	intent.AccountID = account.ID

	req, err := r.buildRequest(ctx, ex, snap, intent)
	if err != nil {
		return err
	}
	if req == nil {
		// 定量结果为0，无单可下
		return nil
	}

	result, err := r.placer.PlaceOrder(ctx, account, ex, req)
	if err != nil {
		return err
	}
	logger.Info("decision order placed",
		logger.Pair("accountId", account.ID),
		logger.Pair("orderNo", result.Order.OrderNo),
		logger.Pair("operation", intent.Operation),
		logger.Pair("symbol", req.Symbol),
		logger.Pair("filled", result.Filled),
		logger.Pair("reason", intent.Reason))
	return nil
}

// buildRequest 校验意图并换算成订单。buy按可用余额比例定量，
// sell按持仓比例平掉对应张数
func (r *Runner) buildRequest(ctx context.Context, ex exchange.Exchange,
	snap *model.Snapshot, intent *model.DecisionIntent) (*gateway.PlaceRequest, error) {
	if intent.Operation != model.OpBuy && intent.Operation != model.OpSell {
		return nil, errors.Newf(ecode.ValidationErr, "invalid operation %q", intent.Operation)
	}
	symbol, err := exchange.Normalize(intent.Symbol)
	if err != nil {
		return nil, errors.Wrap(ecode.ValidationErr, "", err)
	}
	if !ex.Instruments().Supported(symbol) {
		return nil, errors.Newf(ecode.InvalidInstrumentErr, "unsupported symbol %q", symbol)
	}

	portion := intent.TargetPortion
	if portion <= 0 || portion > 1 {
		return nil, errors.Newf(ecode.ValidationErr, "target portion out of range: %v", portion)
	}
	if r.cfg.MaxPortion > 0 && portion > r.cfg.MaxPortion {
		portion = r.cfg.MaxPortion
	}
	leverage := clampLeverage(intent.Leverage)

	req := &gateway.PlaceRequest{
		CorrelationId: uuid.NewString(),
		Symbol:        symbol,
		OrderType:     model.Market,
		Leverage:      leverage,
		MgnMode:       model.MgnModeCross,
	}

	if intent.Operation == model.OpBuy {
		price, err := ex.LastPrice(ctx, symbol)
		if err != nil {
			return nil, err
		}
		ctVal, err := ex.Instruments().CtVal(symbol)
		if err != nil {
			return nil, err
		}
		cost := snap.Summary.FreeBalance * portion
		sz, _ := exchange.CalculateContractOrder(cost, leverage, price, ctVal)
		if sz <= 0 {
			logger.Info("decision buy sized to zero",
				logger.Pair("symbol", symbol),
				logger.Pair("cost", cost))
			return nil, nil
		}
		req.Side = model.Buy
		req.PosSide = model.PosSideLong
		req.Quantity = sz
		return req, nil
	}

	// sell：按比例平多头仓位
	var held float64
	for _, p := range snap.Positions.Data {
		if p.Symbol == symbol && p.Side == string(model.PosSideLong) {
			held = p.Contracts
			break
		}
	}
	if held <= 0 {
		logger.Info("decision sell without position", logger.Pair("symbol", symbol))
		return nil, nil
	}
	// 平仓精度和开仓一致，0.01张起
	qty := exchange.FloorContracts(held * portion)
	if portion >= 1 {
		qty = held
	}
	if qty <= 0 {
		return nil, nil
	}
	req.Side = model.Sell
	req.PosSide = model.PosSideLong
	req.Quantity = qty
	return req, nil
}

func clampLeverage(lv int) int {
	if lv < 1 {
		return 1
	}
	if lv > 125 {
		return 125
	}
	return lv
}
