// Package main 为指定用户签发访问令牌，供聊天客户端配置使用。
package main

import (
	"flag"
	"fmt"
	"os"

	"mu-assistant-go/internal/config"
	"mu-assistant-go/internal/model"
	"mu-assistant-go/pkg/token"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	uid := flag.String("uid", "", "用户 ID (必填)")
	name := flag.String("name", "", "显示名称")
	muID := flag.String("mu-id", "", "学号")
	email := flag.String("email", "", "邮箱")
	premium := flag.Bool("premium", false, "是否为高级会员")
	flag.Parse()

	if *uid == "" {
		fmt.Fprintln(os.Stderr, "缺少 -uid 参数")
		flag.Usage()
		os.Exit(2)
	}

	var cfg config.Config
	if err := config.Load(*configPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	tok, err := jwtManager.GenerateToken(model.User{
		UID:       *uid,
		Name:      *name,
		MuID:      *muID,
		Email:     *email,
		IsPremium: *premium,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "签发令牌失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
