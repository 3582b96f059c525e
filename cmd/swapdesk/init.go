package api

import (
	"gorm.io/gorm"

	"swapdesk/conf"
	"swapdesk/internal/dao"
	"swapdesk/internal/decision"
	"swapdesk/internal/exchange"
	"swapdesk/internal/gateway"
	"swapdesk/internal/handler/account"
	"swapdesk/internal/handler/ws"
	"swapdesk/internal/router"
	"swapdesk/internal/snapshot"
	"swapdesk/pkg/logger"
)

// InitRouter 装配所有组件。依赖方向：handler -> gateway/engine -> dao/exchange
func InitRouter(db *gorm.DB, provider decision.Provider) (Router, func()) {
	appCfg := conf.AppConfig

	accountDao := dao.NewAccountDao(db)
	userDao := dao.NewUserDao(db)
	orderDao := dao.NewOrderDao(db)
	tradeDao := dao.NewTradeDao(db)
	positionDao := dao.NewPositionDao(db)

	manager := exchange.NewManager(appCfg.Sync.QueryTimeout)
	engine := snapshot.NewEngine(appCfg.Sync, positionDao, orderDao)

	gw, err := gateway.NewGateway(appCfg.Gateway, accountDao, orderDao, tradeDao, positionDao, engine)
	if err != nil {
		logger.Fatal("init gateway failed", logger.Pair("err", err))
	}

	hub := ws.NewHub()
	gw.SetNotifier(hub)

	wsHandler := ws.NewHandler(ws.Deps{
		Users:    userDao,
		Accounts: accountDao,
		Engine:   engine,
		Gateway:  gw,
		Manager:  manager,
	}, hub)

	accountHandler := account.NewAccountHandler(accountDao, engine, gw, manager)

	// 决策轮询，没配provider就不启动
	var stopRunner func()
	if appCfg.Decision.Enabled && provider != nil {
		runner := decision.NewRunner(appCfg.Decision, provider, accountDao, engine, gw, manager)
		runner.Start()
		stopRunner = runner.Stop
		logger.Info("decision runner started",
			logger.Pair("interval", appCfg.Decision.Interval),
			logger.Pair("symbols", appCfg.Decision.Symbols))
	}

	return router.NewApiRouter(accountHandler, wsHandler), stopRunner
}
