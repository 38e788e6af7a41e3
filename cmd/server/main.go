// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"agent-platform-go/internal/config"
	"agent-platform-go/internal/handler"
	"agent-platform-go/internal/middleware"
	"agent-platform-go/internal/model"
	"agent-platform-go/internal/pipeline"
	"agent-platform-go/internal/rag"
	"agent-platform-go/internal/repository"
	"agent-platform-go/internal/service"
	"agent-platform-go/internal/tools"
	"agent-platform-go/pkg/database"
	"agent-platform-go/pkg/embedding"
	"agent-platform-go/pkg/extractor"
	"agent-platform-go/pkg/kafka"
	"agent-platform-go/pkg/llm"
	"agent-platform-go/pkg/log"
	"agent-platform-go/pkg/storage"
	"agent-platform-go/pkg/token"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// 1. 加载 .env 并初始化配置
	_ = godotenv.Load()
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储与 Kafka
	database.InitPostgres(cfg.Database.Postgres.DSN)
	if err := database.DB.AutoMigrate(
		&model.Document{},
		&model.Chunk{},
		&model.Conversation{},
		&model.Message{},
		&model.Agent{},
		&model.AgentTool{},
		&model.ToolLog{},
		&model.Memory{},
		&model.MemoryLog{},
		&model.UserSetting{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	database.InitRedis(cfg.Database.Redis)
	storage.InitMinIO(cfg.MinIO)
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	documentRepo := repository.NewDocumentRepository(database.DB)
	chunkRepo := repository.NewChunkRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)
	agentRepo := repository.NewAgentRepository(database.DB)
	memoryRepo := repository.NewMemoryRepository(database.DB)
	toolStateRepo := repository.NewToolStateRepository(database.DB, database.RDB)

	// 5. 初始化外部客户端与工具注册表
	jwtManager := token.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Audience)
	extractorClient := extractor.NewClient(cfg.Extractor)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	registry := tools.NewRegistry(
		tools.NewWeatherTool(cfg.Tools),
		tools.NewNewsTool(cfg.Tools, toolStateRepo),
	)

	// 6. 初始化 Service (依赖注入)
	retriever := rag.NewRetriever(chunkRepo)
	searchService := service.NewSearchService(embeddingClient, retriever, documentRepo)
	uploadService := service.NewUploadService(documentRepo, cfg.MinIO)
	documentService := service.NewDocumentService(documentRepo, chunkRepo, cfg.MinIO)
	conversationService := service.NewConversationService(conversationRepo)
	agentService := service.NewAgentService(agentRepo, registry)
	toolService := service.NewToolService(registry, agentRepo, toolStateRepo)
	memoryService := service.NewMemoryService(memoryRepo, embeddingClient, llmClient)
	chatService := service.NewChatService(embeddingClient, retriever, llmClient, agentRepo, conversationRepo, toolService, memoryService)

	// 7. 初始化文档入库管道并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(
		extractorClient,
		embeddingClient,
		cfg.MinIO,
		documentRepo,
		chunkRepo,
	)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 7.1 初始化导入 initfile 目录下的 PDF 为公共文档，已导入则跳过
	initCtx, cancelInit := context.WithCancel(context.Background())
	defer cancelInit()
	go initSeedFiles(initCtx, "initfile", documentRepo, uploadService)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	// 9. 初始化 Handler
	healthHandler := handler.NewHealthHandler(searchService)
	chatHandler := handler.NewChatHandler(chatService, jwtManager)
	uploadHandler := handler.NewUploadHandler(uploadService)
	documentHandler := handler.NewDocumentHandler(documentService)
	searchHandler := handler.NewSearchHandler(searchService)
	agentHandler := handler.NewAgentHandler(agentService)
	toolHandler := handler.NewToolHandler(toolService)
	conversationHandler := handler.NewConversationHandler(conversationService)
	memoryHandler := handler.NewMemoryHandler(memoryService)

	optionalAuth := middleware.OptionalAuth(jwtManager)
	requireAuth := middleware.RequireAuth(jwtManager)

	// 10. 注册路由
	r.GET("/", healthHandler.Root)
	r.GET("/health", healthHandler.Health)
	// WebSocket 握手无法携带 Authorization 头，流式令牌拼在路径上
	r.GET("/chat/stream/:token", chatHandler.Stream)

	api := r.Group("/api")
	{
		api.GET("/status", healthHandler.Status)
		api.GET("/rag/ping", healthHandler.RAGPing)
		api.GET("/tools", toolHandler.Catalog)

		// 对话路由，匿名可用：匿名调用只触达公共文档，不做记忆沉淀
		llmGroup := api.Group("/llm", optionalAuth)
		{
			llmGroup.POST("/chat", chatHandler.Chat)
			llmGroup.GET("/chat/websocket-token", requireAuth, chatHandler.GetWebsocketToken)
		}

		// 文档入库路由，匿名上传的文档为公共文档
		ingest := api.Group("/ingest", optionalAuth)
		{
			ingest.POST("/upload", uploadHandler.Upload)
			ingest.GET("/documents", documentHandler.List)
			ingest.DELETE("/documents/:id", documentHandler.Delete)
			ingest.GET("/documents/:id/download", documentHandler.Download)
			ingest.GET("/search", searchHandler.Search)
		}

		// 智能体路由，全部要求登录
		agents := api.Group("/agents", requireAuth)
		{
			agents.POST("", agentHandler.Create)
			agents.GET("", agentHandler.List)
			agents.GET("/:id", agentHandler.Get)
			agents.PUT("/:id", agentHandler.Update)
			agents.DELETE("/:id", agentHandler.Delete)
			agents.GET("/:id/tools", agentHandler.ListTools)
			agents.PUT("/:id/tools/:key", agentHandler.UpsertTool)
		}

		// 工具执行与日志要求登录，目录在上面公开
		toolsGroup := api.Group("/tools", requireAuth)
		{
			toolsGroup.POST("/execute", toolHandler.Execute)
			toolsGroup.GET("/logs", toolHandler.ListLogs)
		}

		// 会话路由，匿名可用：匿名会话无归属
		conversations := api.Group("/conversations", optionalAuth)
		{
			conversations.POST("", conversationHandler.Create)
			conversations.GET("", conversationHandler.List)
			conversations.GET("/:id", conversationHandler.Get)
			conversations.PUT("/:id", conversationHandler.Update)
			conversations.DELETE("/:id", conversationHandler.Delete)
			conversations.GET("/:id/messages", conversationHandler.ListMessages)
			conversations.POST("/:id/messages", conversationHandler.AppendMessage)
		}

		// 长期记忆路由，全部要求登录
		memories := api.Group("/memories", requireAuth)
		{
			memories.GET("", memoryHandler.ListOrSearch)
			memories.POST("", memoryHandler.Create)
			memories.POST("/condense", memoryHandler.Condense)
			memories.GET("/preferences", memoryHandler.GetPreferences)
			memories.PUT("/preferences", memoryHandler.SetPreferences)
			memories.GET("/:id", memoryHandler.Get)
			memories.DELETE("/:id", memoryHandler.Delete)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
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

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费者是一个循环，会在程序退出时自然结束。
	// 如果需要更精细的控制，可以在 StartConsumer 中实现一个关闭通道。
	log.Info("服务已优雅关闭")
}

// initSeedFiles 扫描目录下的 PDF 并通过标准上传流程导入为公共文档（幂等）。
func initSeedFiles(ctx context.Context, dir string, docRepo repository.DocumentRepository, uploadSvc service.UploadService) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("initSeedFiles: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	// 幂等检查：同名公共文档已存在则跳过
	existing, err := docRepo.ListByOwner(nil)
	if err != nil {
		log.Warnf("initSeedFiles: 读取已有公共文档失败: %v", err)
		return
	}
	seen := make(map[string]bool, len(existing))
	for _, doc := range existing {
		seen[doc.FileName] = true
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(info.Name()), ".pdf") {
			log.Infof("initSeedFiles: 非 PDF 文件跳过: %s", path)
			return nil
		}
		if seen[info.Name()] {
			log.Infof("initSeedFiles: 已存在，跳过: %s", info.Name())
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			log.Warnf("initSeedFiles: 打开文件失败: %s, err=%v", path, err)
			return nil
		}
		defer f.Close()

		if _, err := uploadSvc.Upload(ctx, nil, info.Name(), info.Size(), "application/pdf", f); err != nil {
			log.Warnf("initSeedFiles: 导入失败: %s, err=%v", path, err)
			return nil
		}
		log.Infof("initSeedFiles: 导入完成并已触发向量化: %s", info.Name())
		return nil
	})
	if walkErr != nil {
		log.Warnf("initSeedFiles: 遍历目录发生错误: %v", walkErr)
	}
}
