// Package main 是补全服务端的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"mu-assistant-go/internal/config"
	"mu-assistant-go/internal/handler"
	"mu-assistant-go/internal/middleware"
	"mu-assistant-go/internal/repository"
	"mu-assistant-go/internal/service"
	"mu-assistant-go/pkg/database"
	"mu-assistant-go/pkg/kafka"
	"mu-assistant-go/pkg/llm"
	"mu-assistant-go/pkg/log"
	"mu-assistant-go/pkg/token"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	if cfg.LLM.APIKey == "" {
		log.Warnf("未配置 GEMINI_API_KEY，补全接口将返回 500")
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 3. 可选的 Redis 与 Kafka：用于用量统计，不配置时服务仍然可用
	var usageService service.UsageService
	if cfg.Redis.Addr != "" {
		rdb, err := database.NewRedis(rootCtx, cfg.Redis)
		if err != nil {
			log.Fatalf("Redis 初始化失败: %v", err)
		}
		defer rdb.Close()
		usageService = service.NewUsageService(repository.NewUsageRepository(rdb))
	}

	var usagePublisher service.UsagePublisher
	var consumerWG sync.WaitGroup
	if cfg.Kafka.Brokers != "" {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		usagePublisher = producer

		// 4. 启动后台 Kafka 消费者，把用量事件汇总到 Redis
		if usageService != nil {
			consumerWG.Add(1)
			go func() {
				defer consumerWG.Done()
				kafka.StartConsumer(rootCtx, cfg.Kafka, usageService)
			}()
		} else {
			log.Warnf("未配置 Redis，用量事件只发送不汇总")
		}
	}

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	llmClient := llm.NewClient(cfg.LLM)
	completionService := service.NewCompletionService(llmClient, cfg.LLM, usagePublisher)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	{
		apiV1.POST("/completion", handler.NewCompletionHandler(completionService).Complete)
		apiV1.GET("/completion/stream", handler.NewStreamHandler(completionService).Handle)
		apiV1.GET("/usage", handler.NewUsageHandler(usageService).GetUsage)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者并等待其退出
	cancelRoot()
	consumerWG.Wait()
	log.Info("服务已优雅关闭")
}
