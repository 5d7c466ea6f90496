package server

import (
	"net/http"
	"time"

	"github.com/magdyzaki/Karas-Chat-sub000/internal/auth"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/call"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/config"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/metrics"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/mw"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/service"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, hub *ws.Hub, relay *call.Relay) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))
	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	if cfg.Env == "dev" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	dir := service.NewDirectoryService(db)
	messages := service.NewMessageService(db)
	receipts := service.NewReceiptService(db)
	h := NewHandler(dir, messages, receipts, hub, cfg.HistoryPageMax)

	api := r.Group("/api/v1")
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, db))

	authed.GET("/conversations", h.ListConversations)
	authed.GET("/conversations/:id/messages", h.ListMessages)
	authed.GET("/conversations/:id/receipts", h.ListReceipts)
	authed.POST("/conversations/:id/messages/:mid/delete-for-me", h.DeleteForMe)
	authed.POST("/conversations/:id/messages/:mid/delete-for-everyone", h.DeleteForEveryone)

	r.GET("/ws", ws.Serve(hub, ws.Deps{
		Cfg:      cfg,
		DB:       db,
		Dir:      dir,
		Messages: messages,
		Receipts: receipts,
		Relay:    relay,
	}))

	return r
}
