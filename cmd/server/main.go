// Package main 是应用程序的入口点。
package main

import (
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"prop-eval-go/internal/config"
	"prop-eval-go/internal/corpus"
	"prop-eval-go/internal/handler"
	"prop-eval-go/internal/middleware"
	"prop-eval-go/internal/model"
	"prop-eval-go/internal/pipeline"
	"prop-eval-go/internal/repository"
	"prop-eval-go/internal/service"
	"prop-eval-go/pkg/database"
	"prop-eval-go/pkg/embedding"
	"prop-eval-go/pkg/es"
	"prop-eval-go/pkg/kafka"
	"prop-eval-go/pkg/llm"
	"prop-eval-go/pkg/log"
	"prop-eval-go/pkg/storage"
	"prop-eval-go/pkg/tasks"
	"prop-eval-go/pkg/token"
	"prop-eval-go/pkg/websearch"
	"syscall"
	"time"

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

	// 3. 初始化数据库与外部依赖
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(database.RDB)
	corpusRepo := repository.NewCorpusRepository(database.DB)

	// 5. 初始化外部服务客户端
	jwtManager := token.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpireHours)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	searchClient := websearch.NewClient(cfg.WebSearch)

	// 6. 装载语料快照：检索只读这份内存数据，启动后不再依赖 ES
	snapshot, err := corpus.Load(context.Background(), cfg.Corpus, cfg.Elasticsearch)
	if err != nil {
		log.Errorf("语料快照装载失败 %s", err)
		return
	}

	// 7. 初始化 Service (依赖注入)
	topK := cfg.Retrieval.TopK
	documentService := service.NewDocumentService()
	retrievalService := service.NewRetrievalService(snapshot)
	similarityService := service.NewSimilarityService(snapshot, embeddingClient)
	chatService := service.NewChatService(retrievalService, embeddingClient, llmClient, conversationRepo, topK)
	extractService := service.NewExtractService(llmClient)
	liveService := service.NewLiveService(searchClient, embeddingClient, cfg.WebSearch.MaxResults)
	scoreService := service.NewScoreService(snapshot, similarityService, retrievalService, embeddingClient, llmClient, topK)

	// 8. 初始化语料索引管道并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(documentService, corpusRepo, embeddingClient)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8.1 启动时导入种子语料目录（幂等，已导入的文档跳过）
	seedCtx, cancelSeed := context.WithCancel(context.Background())
	defer cancelSeed()
	go seedCorpus(seedCtx, cfg.Corpus.SeedDir, corpusRepo)

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	documentHandler := handler.NewDocumentHandler(documentService)
	similarityHandler := handler.NewSimilarityHandler(similarityService, documentService)
	extractHandler := handler.NewExtractHandler(extractService, documentService)
	chatHandler := handler.NewChatHandler(chatService, jwtManager)
	scoreHandler := handler.NewScoreHandler(scoreService, documentService, liveService)
	onlineCheckHandler := handler.NewOnlineCheckHandler(liveService, retrievalService, embeddingClient, topK)
	corpusHandler := handler.NewCorpusHandler(corpusRepo)
	authHandler := handler.NewAuthHandler(jwtManager)

	// 10. 注册路由
	r.GET("/healthz", handler.NewHealthHandler(snapshot).Check)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/token", authHandler.Token)

		apiV1.POST("/documents", documentHandler.Ingest)
		apiV1.GET("/documents/:id", documentHandler.Get)

		apiV1.POST("/timeline", extractHandler.Timeline)
		apiV1.POST("/extract", extractHandler.Extract)
		apiV1.GET("/extract/schemas", extractHandler.Schemas)

		apiV1.POST("/similarity", similarityHandler.Score)

		apiV1.POST("/chat/guidelines", chatHandler.Guideline)
		apiV1.POST("/chat/specialist", chatHandler.Specialist)
		apiV1.GET("/conversations/:id", chatHandler.History)

		apiV1.POST("/novelty", scoreHandler.Novelty)
		apiV1.POST("/cost", scoreHandler.Cost)
		apiV1.POST("/plag", scoreHandler.Plagiarism)

		apiV1.GET("/online-check", onlineCheckHandler.Check)
		apiV1.POST("/online-check", onlineCheckHandler.Check)

		// 语料写路径需要机器客户端令牌
		corpusGroup := apiV1.Group("/corpus")
		corpusGroup.Use(middleware.AuthMiddleware(jwtManager))
		{
			corpusGroup.POST("/documents", corpusHandler.Submit)
			corpusGroup.GET("/documents/:id", corpusHandler.Get)
			corpusGroup.GET("/scopes", corpusHandler.Scopes)
		}
	}

	// Chat 流式路由 (WebSocket)
	r.GET("/chat/stream/:policy", chatHandler.Stream)

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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// seedCorpus 扫描种子目录并通过标准语料提交流程导入（幂等）。
// 目录结构为 <seedDir>/<scope>/<文件>，scope 必须已在配置中声明。
func seedCorpus(ctx context.Context, dir string, corpusRepo repository.CorpusRepository) {
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("seedCorpus: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	declared := make(map[string]struct{}, len(config.Conf.Corpus.Scopes))
	for _, s := range config.Conf.Corpus.Scopes {
		declared[s] = struct{}{}
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// 目录名即作用域
		scope := filepath.Base(filepath.Dir(path))
		if _, ok := declared[scope]; !ok {
			log.Warnf("seedCorpus: 作用域 '%s' 未声明，跳过: %s", scope, path)
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("seedCorpus: 读取文件失败: %s, err=%v", path, err)
			return nil
		}

		// 内容 MD5 作为文档 ID，天然幂等
		documentID := fmt.Sprintf("%x", md5.Sum(data))
		existing, err := corpusRepo.FindDocument(documentID)
		if err != nil {
			log.Warnf("seedCorpus: 查询文档失败: %s, err=%v", documentID, err)
			return nil
		}
		if existing != nil {
			log.Infof("seedCorpus: 已存在，跳过: %s (id=%s)", info.Name(), documentID)
			return nil
		}

		if err := storage.PutCorpusDocument(ctx, config.Conf.MinIO.BucketName, documentID, string(data)); err != nil {
			log.Warnf("seedCorpus: 归档原文失败: %s, err=%v", path, err)
			return nil
		}
		title := info.Name()
		doc := &model.CorpusDocument{
			ID:     documentID,
			Scope:  scope,
			Title:  title,
			Status: model.CorpusStatusPending,
		}
		if err := corpusRepo.CreateDocument(doc); err != nil {
			log.Warnf("seedCorpus: 文档落库失败: %s, err=%v", documentID, err)
			return nil
		}
		if err := kafka.ProduceIndexTask(tasks.CorpusIndexTask{DocumentID: documentID, Scope: scope, Title: title}); err != nil {
			log.Warnf("seedCorpus: 投递索引任务失败: %s, err=%v", documentID, err)
			return nil
		}
		log.Infof("seedCorpus: 已导入: %s (scope=%s, id=%s)", title, scope, documentID)
		return nil
	})
	if walkErr != nil {
		log.Warnf("seedCorpus: 扫描目录中止: %v", walkErr)
	}
}
