package main

import (
	"github.com/magdyzaki/Karas-Chat-sub000/internal/call"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/config"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/db"
	clog "github.com/magdyzaki/Karas-Chat-sub000/internal/log"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/server"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/service"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	hub := ws.NewHub()
	relay := call.NewRelay(hub, service.NewDirectoryService(gdb))
	// 用户最后一个连接断开时，为对端合成 call_ended。
	hub.OnUserOffline(relay.HandleUserOffline)

	r := server.SetupRouter(cfg, gdb, hub, relay)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
