package account

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"swapdesk/internal/dao"
	"swapdesk/internal/exchange"
	"swapdesk/internal/gateway"
	"swapdesk/internal/model"
	"swapdesk/internal/snapshot"
	"swapdesk/pkg/errors"
	"swapdesk/pkg/errors/ecode"
	"swapdesk/pkg/response"
	"swapdesk/pkg/validator"
)

// AccountHandler 账户维度的REST查询和下单入口，
// 和websocket共用同一套引擎和网关
type AccountHandler struct {
	accounts *dao.AccountDao
	engine   *snapshot.Engine
	gw       *gateway.Gateway
	manager  *exchange.Manager
}

func NewAccountHandler(accounts *dao.AccountDao, engine *snapshot.Engine,
	gw *gateway.Gateway, manager *exchange.Manager) *AccountHandler {
	return &AccountHandler{accounts: accounts, engine: engine, gw: gw, manager: manager}
}

// withExchange 解析账户id并借出交易所连接，用完归还
func (handler *AccountHandler) withExchange(ctx *gin.Context,
	fn func(account *model.Account, ex exchange.Exchange)) {
	id := cast.ToUint(ctx.Param("id"))
	if id == 0 {
		response.BadRequests(ctx, "invalid account id")
		return
	}
	account, err := handler.accounts.GetByID(ctx, id)
	if err != nil {
		response.JSON(ctx, errors.New(ecode.NotFoundErr, "account not found"), nil)
		return
	}
	ex, err := handler.manager.Acquire(account)
	if err != nil {
		response.JSON(ctx, errors.Wrap(ecode.AuthErr, "", err), nil)
		return
	}
	defer handler.manager.Release(account)
	fn(account, ex)
}

// @Summary		账户连接状态
// @Produce		json
// @Success		200	{object}	response.ApiResponse
// @Router			/api/v1/account/{id}/status [get]
func (handler *AccountHandler) AccountStatus() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := cast.ToUint(ctx.Param("id"))
		account, err := handler.accounts.GetByID(ctx, id)
		if err != nil {
			response.JSON(ctx, errors.New(ecode.NotFoundErr, "account not found"), nil)
			return
		}
		response.JSON(ctx, nil, gin.H{
			"account":    account,
			"configured": account.HasCredentials(),
			"active":     account.IsActive,
		})
	}
}

// @Summary		账户余额，直接查交易所
// @Produce		json
// @Success		200	{object}	response.ApiResponse{data=[]model.Balance}
// @Router			/api/v1/account/{id}/balance [get]
func (handler *AccountHandler) AccountBalance() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		handler.withExchange(ctx, func(account *model.Account, ex exchange.Exchange) {
			balances, err := ex.FetchBalances(ctx)
			if err != nil {
				response.JSON(ctx, errors.Wrap(ecode.SectionUnavailableErr, "", err), nil)
				return
			}
			response.JSON(ctx, nil, balances)
		})
	}
}

// @Summary		当前持仓
// @Produce		json
// @Success		200	{object}	response.ApiResponse{data=[]model.PositionState}
// @Router			/api/v1/account/{id}/positions [get]
func (handler *AccountHandler) AccountPositions() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		handler.withExchange(ctx, func(account *model.Account, ex exchange.Exchange) {
			positions, err := ex.FetchPositions(ctx)
			if err != nil {
				response.JSON(ctx, errors.Wrap(ecode.SectionUnavailableErr, "", err), nil)
				return
			}
			response.JSON(ctx, nil, positions)
		})
	}
}

// @Summary		未完成订单
// @Produce		json
// @Success		200	{object}	response.ApiResponse{data=[]model.OrderState}
// @Router			/api/v1/account/{id}/orders/open [get]
func (handler *AccountHandler) AccountOpenOrders() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		handler.withExchange(ctx, func(account *model.Account, ex exchange.Exchange) {
			orders, err := ex.FetchOpenOrders(ctx)
			if err != nil {
				response.JSON(ctx, errors.Wrap(ecode.SectionUnavailableErr, "", err), nil)
				return
			}
			response.JSON(ctx, nil, orders)
		})
	}
}

// @Summary		历史订单和成交，走同步引擎的缓存
// @Produce		json
// @Param			refresh	query		bool	false	"绕过缓存强制刷新"
// @Success		200		{object}	response.ApiResponse{data=model.History}
// @Router			/api/v1/account/{id}/orders/history [get]
func (handler *AccountHandler) AccountHistory() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		handler.withExchange(ctx, func(account *model.Account, ex exchange.Exchange) {
			force := cast.ToBool(ctx.Query("refresh"))
			history, err := handler.engine.History(ctx, account.ID, ex, force)
			if err != nil && !history.Orders.Available && !history.Trades.Available {
				response.JSON(ctx, errors.Wrap(ecode.SectionUnavailableErr, "", err), nil)
				return
			}
			response.JSON(ctx, nil, history)
		})
	}
}

// @Summary		时间窗口内的成交
// @Produce		json
// @Success		200	{object}	response.ApiResponse{data=model.Section[model.TradeState]}
// @Router			/api/v1/account/{id}/trades [get]
func (handler *AccountHandler) AccountTrades() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		handler.withExchange(ctx, func(account *model.Account, ex exchange.Exchange) {
			history, err := handler.engine.History(ctx, account.ID, ex, cast.ToBool(ctx.Query("refresh")))
			if err != nil && !history.Trades.Available {
				response.JSON(ctx, errors.Wrap(ecode.SectionUnavailableErr, "", err), nil)
				return
			}
			response.JSON(ctx, nil, history.Trades)
		})
	}
}

// @Summary		完整账务快照（含概要）
// @Produce		json
// @Success		200	{object}	response.ApiResponse{data=model.Snapshot}
// @Router			/api/v1/account/{id}/summary [get]
func (handler *AccountHandler) AccountSummary() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		handler.withExchange(ctx, func(account *model.Account, ex exchange.Exchange) {
			snap, _ := handler.engine.Snapshot(ctx, account.ID, ex)
			// 降级快照照样返回，分区里的available标记说明一切
			response.JSON(ctx, nil, snap)
		})
	}
}

// @Summary		撤单
// @Produce		json
// @Success		200	{object}	response.ApiResponse
// @Router			/api/v1/account/{id}/order/{orderId} [delete]
func (handler *AccountHandler) OrderCancel() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		orderId := ctx.Param("orderId")
		symbol := ctx.Query("symbol")
		if orderId == "" || symbol == "" {
			response.BadRequests(ctx, "orderId and symbol are required")
			return
		}
		handler.withExchange(ctx, func(account *model.Account, ex exchange.Exchange) {
			if err := ex.CancelOrder(ctx, orderId, symbol); err != nil {
				response.JSON(ctx, errors.Wrap(ecode.RemoteRejectedErr, "", err), nil)
				return
			}
			handler.engine.Invalidate(account.ID)
			response.JSON(ctx, nil, gin.H{"order_id": orderId})
		})
	}
}

type placeOrderReq struct {
	CorrelationId string  `json:"correlation_id"`
	Symbol        string  `json:"symbol" binding:"required"`
	Side          string  `json:"side" binding:"required,oneof=buy sell"`
	OrderType     string  `json:"order_type" binding:"required,oneof=market limit"`
	Price         float64 `json:"price" binding:"omitempty,gt=0"`
	Quantity      float64 `json:"quantity" binding:"required,gt=0"`
	PosSide       string  `json:"pos_side" binding:"omitempty,oneof=long short"`
	Leverage      int     `json:"leverage" binding:"omitempty,min=1,max=125"`
	MgnMode       string  `json:"mgn_mode" binding:"omitempty,oneof=cross isolated"`
}

// @Summary		下单
// @Accept			json
// @Produce		json
// @Success		200	{object}	response.ApiResponse{data=gateway.Result}
// @Router			/api/v1/account/{id}/order [post]
func (handler *AccountHandler) OrderCreate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req placeOrderReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.BadRequests(ctx, validator.Translate(err))
			return
		}
		handler.withExchange(ctx, func(account *model.Account, ex exchange.Exchange) {
			result, err := handler.gw.PlaceOrder(ctx, account, ex, &gateway.PlaceRequest{
				CorrelationId: req.CorrelationId,
				Symbol:        req.Symbol,
				Side:          model.OrderSide(req.Side),
				OrderType:     model.OrderType(req.OrderType),
				Price:         req.Price,
				Quantity:      req.Quantity,
				PosSide:       model.OrderPosSide(req.PosSide),
				Leverage:      req.Leverage,
				MgnMode:       model.MgnMode(req.MgnMode),
			})
			if err != nil {
				response.JSON(ctx, err, nil)
				return
			}
			response.JSON(ctx, nil, result)
		})
	}
}
