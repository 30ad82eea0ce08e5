// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bunker-go/internal/config"
	"bunker-go/internal/handler"
	"bunker-go/internal/middleware"
	"bunker-go/internal/model"
	"bunker-go/internal/repository"
	"bunker-go/internal/service"
	"bunker-go/pkg/bus"
	"bunker-go/pkg/database"
	"bunker-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// 1. 加载 .env（如果存在）与配置文件
	_ = godotenv.Load()
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err := database.DB.AutoMigrate(
		&model.Project{},
		&model.Conversation{},
		&model.Message{},
		&model.Setting{},
		&model.Integration{},
	); err != nil {
		log.Fatal("数据库迁移失败", err)
	}

	// 4. 初始化 Repository
	projectRepo := repository.NewProjectRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)
	settingRepo := repository.NewSettingRepository(database.DB)
	relayLinkRepo := repository.NewRelayLinkRepository(database.RDB)

	// 5. 初始化广播器与 Service (依赖注入)
	// 广播器生命周期与服务进程一致，注入到各 handler，而不是包级全局状态。
	broadcaster := bus.New()
	credentialService := service.NewCredentialService(settingRepo)
	relayService := service.NewRelayService(credentialService, conversationRepo, relayLinkRepo, broadcaster)
	chatService := service.NewChatService(conversationRepo, projectRepo, relayService, credentialService)
	catalogService := service.NewCatalogService(credentialService)
	conversationService := service.NewConversationService(conversationRepo, projectRepo)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	chatHandler := handler.NewChatHandler(chatService)
	liveHandler := handler.NewLiveHandler(broadcaster)
	modelHandler := handler.NewModelHandler(catalogService)
	relayHandler := handler.NewRelayHandler(relayService)
	conversationHandler := handler.NewConversationHandler(conversationService)

	conversations := r.Group("/conversations")
	{
		conversations.POST("", conversationHandler.Create)
		conversations.GET("/:id/messages", conversationHandler.Messages)
		conversations.POST("/:id/send", chatHandler.Send)
		conversations.GET("/:id/live", liveHandler.Live)
		conversations.GET("/:id/ws", liveHandler.LiveWS)
	}

	r.GET("/models", modelHandler.List)

	relayGroup := r.Group("/relay")
	{
		relayGroup.POST("/webhook", relayHandler.Webhook)
		relayGroup.POST("/setup", relayHandler.Setup)
	}

	// 8. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器；推送通道随请求上下文取消自行清理
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
