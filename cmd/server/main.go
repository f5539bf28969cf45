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

	"docchat-go/internal/config"
	"docchat-go/internal/handler"
	"docchat-go/internal/middleware"
	"docchat-go/internal/model"
	"docchat-go/internal/pipeline"
	"docchat-go/internal/repository"
	"docchat-go/internal/service"
	"docchat-go/pkg/database"
	"docchat-go/pkg/embedding"
	"docchat-go/pkg/es"
	"docchat-go/pkg/kafka"
	"docchat-go/pkg/llm"
	"docchat-go/pkg/log"
	"docchat-go/pkg/pdf"
	"docchat-go/pkg/storage"
	"docchat-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、对象存储和消息队列
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.DB.AutoMigrate(&model.User{}, &model.Document{}); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Fatal("Elasticsearch 初始化失败", err)
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	documentRepo := repository.NewDocumentRepository(database.DB)
	esDocRepo := repository.NewEsDocumentRepository(es.ESClient, cfg.Elasticsearch.DocumentIndex)
	chunkRepo := repository.NewChunkRepository(es.ESClient, cfg.Elasticsearch.ChunkIndex, cfg.Embedding.Dimensions)
	conversationRepo := repository.NewConversationRepository(database.RDB)
	jobRepo := repository.NewJobRepository(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	embedder := embedding.NewProvider(embedding.NewClient(cfg.Embedding), cfg.Embedding.Dimensions)
	llmClient := llm.NewClient(cfg.LLM)
	extractor := pdf.NewExtractor()

	userService := service.NewUserService(userRepo, jwtManager)
	searchService := service.NewSearchService(chunkRepo, esDocRepo, embedder, cfg.Retrieval)
	chatService := service.NewChatService(searchService, llmClient, conversationRepo, cfg.Retrieval.ContextLimit)
	objectStore := storage.NewObjectStore(cfg.MinIO.BucketName)
	documentService := service.NewDocumentService(documentRepo, esDocRepo, chunkRepo, extractor, objectStore, kafka.ProduceDocumentTask)

	// 6. 初始化文档处理管道 (Processor)
	processor := pipeline.NewProcessor(documentRepo, chunkRepo, embedder, cfg.Retrieval)
	adminService := service.NewAdminService(es.ESClient, llmClient, documentRepo, jobRepo, processor)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	authHandler := handler.NewAuthHandler(userService)
	documentHandler := handler.NewDocumentHandler(documentService)
	searchHandler := handler.NewSearchHandler(searchService)
	chatHandler := handler.NewChatHandler(chatService, userService, jwtManager)
	conversationHandler := handler.NewConversationHandler(chatService)
	adminHandler := handler.NewAdminHandler(adminService)

	apiV1 := r.Group("/api/v1")
	{
		users := apiV1.Group("/users")
		{
			users.POST("/register", authHandler.Register)
			users.POST("/login", authHandler.Login)
			users.POST("/refreshToken", authHandler.RefreshToken)

			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", authHandler.Profile)
			}
		}

		documents := apiV1.Group("/documents")
		documents.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			documents.POST("", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.GET("/:id", documentHandler.Get)
			documents.DELETE("/:id", documentHandler.Delete)
		}

		search := apiV1.Group("/search")
		search.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			search.GET("/context", searchHandler.Context)
		}

		chat := apiV1.Group("/chat")
		chat.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			chat.POST("", chatHandler.Chat)
		}

		conversations := apiV1.Group("/conversations")
		conversations.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			conversations.GET("", conversationHandler.List)
			conversations.GET("/:id", conversationHandler.Get)
			conversations.DELETE("/:id", conversationHandler.Delete)
		}

		admin := apiV1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			admin.GET("/status", adminHandler.Status)
			admin.POST("/reprocess", adminHandler.Reprocess)
			admin.GET("/reprocess/:id", adminHandler.GetJob)
		}
	}

	// WebSocket 路由：浏览器的 WebSocket API 不支持自定义请求头，token 走路径参数
	r.GET("/chat/:token", chatHandler.HandleWS)

	// 10. 启动 HTTP 服务器并实现优雅停机
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("服务关闭失败", err)
	}
	log.Info("服务已退出")
}
