package main

import (
	"log"
	"os"

	goexv2 "github.com/nntaoli-project/goex/v2"

	api "swapdesk/cmd/swapdesk"
	"swapdesk/conf"
	"swapdesk/internal/middleware"
	"swapdesk/internal/model"
	"swapdesk/pkg/db"
	"swapdesk/pkg/logger"
)

func main() {
	// 加载配置文件
	err := conf.LoadConfig("conf/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appCfg := conf.AppConfig
	logger.Init(appCfg.Log)
	defer logger.Sync()

	if appCfg.Simulated {
		// 设置为模拟盘环境
		goexv2.DefaultHttpCli.SetHeaders("x-simulated-trading", "1")
	}

	// 数据库连接优先读环境变量，容器部署用
	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	if dbUser == "" || dbPass == "" || dbHost == "" {
		dbUser = appCfg.Db.Username
		dbPass = appCfg.Db.Password
		dbHost = appCfg.Db.Host
		dbPort = appCfg.Db.Port
		dbName = appCfg.Db.DbName
	}

	datasource := db.Init(conf.Db{
		Username: dbUser,
		Password: dbPass,
		Host:     dbHost,
		Port:     dbPort,
		DbName:   dbName,
	})
	if err = datasource.AutoMigrate(
		&model.User{}, &model.Account{},
		&model.Order{}, &model.Trade{}, &model.Position{},
	); err != nil {
		logger.Fatalf("migrate tables failed: %v", err)
	}

	// 创建并启动服务
	srv := api.NewServer(&appCfg)
	srvRouter, stopRunner := api.InitRouter(datasource, nil)
	srv.RegisterOnShutdown(func() {
		if stopRunner != nil {
			stopRunner()
		}
		if datasource != nil {
			if m, err := datasource.DB(); err == nil {
				_ = m.Close()
			}
		}
	})

	srv.Run(middleware.NewMiddleware(), srvRouter)
}
