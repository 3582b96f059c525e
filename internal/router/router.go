package router

import (
	"github.com/gin-gonic/gin"

	"swapdesk/internal/handler/account"
	"swapdesk/internal/handler/ws"
)

type ApiRouter struct {
	accountHandler *account.AccountHandler
	wsHandler      *ws.Handler
}

func NewApiRouter(accountHandler *account.AccountHandler, wsHandler *ws.Handler) *ApiRouter {
	return &ApiRouter{accountHandler: accountHandler, wsHandler: wsHandler}
}

func (api *ApiRouter) Load(g *gin.Engine) {
	// 会话入口，命令和事件都走这条连接
	g.GET("/ws", api.wsHandler.ServeWS)

	base := g.Group("/api/v1")

	a := base.Group("/account/:id")
	{
		a.GET("/status", api.accountHandler.AccountStatus())
		a.GET("/balance", api.accountHandler.AccountBalance())
		a.GET("/positions", api.accountHandler.AccountPositions())
		a.GET("/orders/open", api.accountHandler.AccountOpenOrders())
		a.GET("/orders/history", api.accountHandler.AccountHistory())
		a.GET("/trades", api.accountHandler.AccountTrades())
		a.GET("/summary", api.accountHandler.AccountSummary())
		a.POST("/order", api.accountHandler.OrderCreate())
		a.DELETE("/order/:orderId", api.accountHandler.OrderCancel())
	}
}
