// Package main 是终端聊天客户端的入口点。对话只保存在本机（或用户自己的存储后端）。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"mu-assistant-go/internal/cli"
	"mu-assistant-go/internal/config"
	"mu-assistant-go/internal/repository"
	"mu-assistant-go/internal/service"
	"mu-assistant-go/pkg/completion"
	"mu-assistant-go/pkg/database"
	"mu-assistant-go/pkg/log"
	"mu-assistant-go/pkg/pacing"
	"mu-assistant-go/pkg/storage"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. 初始化配置
	config.Init(configPath)
	cfg := config.Conf

	dataDir, err := dataDir()
	if err != nil {
		return err
	}

	// 2. 日志只写文件，终端输出属于界面
	log.InitFile(cfg.Log.Level, cfg.Log.Format, filepath.Join(dataDir, "client.log"))
	defer log.Sync()

	ctx := context.Background()

	// 3. 登录会话：配置的访问令牌即登录凭证
	users := service.NewTokenUserProvider()
	if cfg.Client.AccessToken != "" {
		if err := users.SignIn(cfg.Client.AccessToken); err != nil {
			log.Warnf("配置的访问令牌无效: %v", err)
			fmt.Fprintf(os.Stderr, "访问令牌无效: %v\n", err)
		}
	}

	// 4. 持久化后端
	kv, err := openKVStore(ctx, cfg, dataDir, users)
	if err != nil {
		return err
	}
	defer kv.Close()

	store := service.NewConversationService(repository.NewConversationRepository(kv))
	switch res := store.Load(ctx); res.Status {
	case repository.LoadCorrupt:
		fmt.Fprintln(os.Stderr, "本地聊天记录已损坏，已从空白开始。")
	case repository.LoadUnavailable:
		fmt.Fprintln(os.Stderr, "无法读取本地聊天记录，已从空白开始。")
	}

	// 5. 补全客户端与展示节奏
	client := newCompletionClient(cfg.Client, users)
	pacer := pacing.Pacer{ChunkSize: cfg.Client.Reveal.ChunkSize, Interval: cfg.Client.Reveal.Interval()}
	printer := cli.NewLivePrinter(os.Stdout)
	chat := service.NewChatService(store, client, users, service.ChatOptions{
		Pacer:    pacer,
		OnChange: printer.OnChange,
	})

	app := cli.NewApp(ctx, cli.AppOptions{
		Chat:        chat,
		Onboarding:  service.NewOnboardingService(repository.NewFlagRepository(kv)),
		Session:     users,
		Out:         os.Stdout,
		UserScoped:  userScopedStorage(cfg.Storage.Driver),
		HistoryFile: filepath.Join(dataDir, "input_history"),
	})
	return app.Run(ctx)
}

func dataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "mu-assistant")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("无法创建数据目录: %w", err)
	}
	return dir, nil
}

// openKVStore 按配置选择持久化后端。redis 与 minio 属于用户自己的存储，按当前登录用户的 ID 区分键空间。
func openKVStore(ctx context.Context, cfg config.Config, dataDir string, users service.UserProvider) (repository.KVStore, error) {
	owner := func() string {
		if u, ok := users.CurrentUser(); ok {
			return u.UID
		}
		return "anonymous"
	}

	switch cfg.Storage.Driver {
	case "", "bolt":
		path := cfg.Storage.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, path)
		}
		return repository.NewBoltKVStore(path)
	case "redis":
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return repository.NewRedisKVStore(rdb, func() string {
			return fmt.Sprintf("mu-assistant:%s:", owner())
		}), nil
	case "minio":
		client, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return repository.NewMinioKVStore(client, cfg.MinIO.BucketName, func() string {
			return cfg.MinIO.Prefix + owner() + "/"
		}), nil
	default:
		return nil, fmt.Errorf("未知的存储后端: %s", cfg.Storage.Driver)
	}
}

// userScopedStorage 报告存储后端是否按用户隔离。本机 bolt 文件由设备上所有用户共享。
func userScopedStorage(driver string) bool {
	return driver == "redis" || driver == "minio"
}

func newCompletionClient(cfg config.ClientConfig, tokens completion.TokenSource) completion.Client {
	if cfg.Transport == "websocket" {
		return completion.NewWebSocketClient(cfg.StreamEndpoint, tokens)
	}
	return completion.NewHTTPClient(cfg.Endpoint, tokens, nil)
}
