package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/internal/repository"
	"mu-assistant-go/internal/service"
	"mu-assistant-go/pkg/log"
)

// Session 是客户端的登录会话，由 service.TokenUserProvider 实现。
type Session interface {
	service.UserProvider
	SignIn(accessToken string) error
	SignOut()
}

// App 是交互式聊天客户端。
type App struct {
	chat        service.ChatService
	onboarding  service.OnboardingService
	session     Session
	out         io.Writer
	renderer    *Renderer
	width       int
	pending     *model.Attachment
	historyFile string
	userScoped  bool
}

// AppOptions 汇总 App 的依赖。
type AppOptions struct {
	Chat        service.ChatService
	Onboarding  service.OnboardingService
	Session     Session
	Out         io.Writer
	Width       int
	HistoryFile string
	// UserScoped 表示存储后端按登录用户隔离。为 false 时存储由设备上所有用户共享，退出登录会清空对话。
	UserScoped bool
}

// NewApp 创建一个新的 App。
func NewApp(ctx context.Context, opts AppOptions) *App {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Width <= 0 {
		opts.Width = 80
	}
	return &App{
		chat:        opts.Chat,
		onboarding:  opts.Onboarding,
		session:     opts.Session,
		out:         opts.Out,
		renderer:    NewRenderer(opts.Onboarding.Theme(ctx), opts.Width),
		width:       opts.Width,
		historyFile: opts.HistoryFile,
		userScoped:  opts.UserScoped,
	}
}

// Run 进入输入循环，直到用户退出或输入结束。
func (a *App) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	a.loadHistory(line)
	defer a.saveHistory(line)

	a.greet(ctx)

	for {
		input, err := line.Prompt(a.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(a.out)
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		if quit := a.Execute(ctx, input); quit {
			return nil
		}
	}
}

// Execute 处理一行输入，返回 true 表示退出。
func (a *App) Execute(ctx context.Context, input string) bool {
	if cmd, ok := ParseCommand(input); ok {
		return a.handleCommand(ctx, cmd)
	}
	a.send(ctx, input)
	return false
}

func (a *App) prompt() string {
	if a.pending != nil {
		return fmt.Sprintf("mu [📎 %s]> ", a.pending.Name)
	}
	return "mu> "
}

func (a *App) greet(ctx context.Context) {
	user, ok := a.session.CurrentUser()
	if !ok {
		fmt.Fprintln(a.out, "尚未登录，请使用 /signin <令牌> 登录。")
		return
	}
	a.maybeOnboarding(ctx)
	fmt.Fprintf(a.out, "欢迎, %s! 输入 /help 查看命令。\n", displayName(user))
	a.maybePremiumWelcome(ctx, user, false)

	if conv, ok := a.chat.Active(); ok {
		fmt.Fprintf(a.out, "当前对话: %s\n", conv.Title)
	}
}

// maybeOnboarding 在首次有用户登录时显示使用引导。
func (a *App) maybeOnboarding(ctx context.Context) {
	show, err := a.onboarding.ShouldShowOnboarding(ctx)
	if err != nil {
		log.Warnf("读取引导标记失败: %v", err)
	}
	if !show {
		return
	}
	fmt.Fprintln(a.out, a.renderer.Render(onboardingText))
	if err := a.onboarding.MarkOnboardingViewed(ctx); err != nil {
		log.Warnf("保存引导标记失败: %v", err)
	}
}

// maybePremiumWelcome 在用户首次成为高级会员时显示一次欢迎信息。
func (a *App) maybePremiumWelcome(ctx context.Context, user *model.User, wasPremium bool) {
	show, err := a.onboarding.ShouldShowPremiumWelcome(ctx, user, wasPremium)
	if err != nil {
		log.Warnf("读取高级会员欢迎标记失败: %v", err)
		return
	}
	if !show {
		return
	}
	fmt.Fprintln(a.out, a.renderer.Render(premiumWelcomeText))
	if err := a.onboarding.MarkPremiumWelcomeShown(ctx); err != nil {
		log.Warnf("保存高级会员欢迎标记失败: %v", err)
	}
}

func (a *App) send(ctx context.Context, text string) {
	// 发送期间 Ctrl+C 只取消本次请求
	sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	err := a.chat.Send(sendCtx, text, a.pending)
	var vErr *service.ValidationError
	switch {
	case err == nil:
		a.pending = nil
	case errors.Is(err, service.ErrNotSignedIn):
		fmt.Fprintln(a.out, "请先使用 /signin <令牌> 登录。")
	case errors.Is(err, service.ErrBusy):
		fmt.Fprintln(a.out, "上一条消息还在处理中，请稍候。")
	case errors.As(err, &vErr):
		fmt.Fprintf(a.out, "消息未发送: %s\n", vErr.Reason)
	default:
		fmt.Fprintf(a.out, "消息未发送: %v\n", err)
	}
}

func (a *App) handleCommand(ctx context.Context, cmd Command) bool {
	switch cmd.Name {
	case CmdQuit:
		return true
	case CmdHelp:
		fmt.Fprintln(a.out, helpText)
	case CmdNew:
		conv, err := a.chat.NewChat(ctx)
		if err != nil {
			log.Warnf("新建对话时持久化失败: %v", err)
		}
		fmt.Fprintf(a.out, "已新建对话: %s\n", conv.Title)
	case CmdList:
		fmt.Fprint(a.out, ConversationList(a.chat.Conversations(), a.chat.Snapshot().ActiveID))
	case CmdSwitch:
		conv, ok := a.pick(cmd.Arg)
		if !ok {
			return false
		}
		a.chat.Select(conv.ID)
		fmt.Fprintln(a.out, a.renderer.Render(ConversationMarkdown(conv)))
	case CmdDelete:
		a.delete(ctx, cmd.Arg)
	case CmdShow:
		conv, ok := a.chat.Active()
		if !ok {
			fmt.Fprintln(a.out, "当前没有对话。")
			return false
		}
		fmt.Fprintln(a.out, a.renderer.Render(ConversationMarkdown(conv)))
	case CmdAttach:
		a.attach(cmd.Arg)
	case CmdDetach:
		a.pending = nil
		fmt.Fprintln(a.out, "已取消附件。")
	case CmdTheme:
		a.theme(ctx, cmd.Arg)
	case CmdWhoami:
		if user, ok := a.session.CurrentUser(); ok {
			tier := "标准"
			if user.IsPremium {
				tier = "高级"
			}
			fmt.Fprintf(a.out, "%s (%s) %s会员\n", displayName(user), user.Email, tier)
		} else {
			fmt.Fprintln(a.out, "尚未登录。")
		}
	case CmdSignIn:
		a.signIn(ctx, cmd.Arg)
	case CmdSignOut:
		a.signOut(ctx)
	default:
		fmt.Fprintf(a.out, "未知命令 /%s，输入 /help 查看命令。\n", cmd.Name)
	}
	return false
}

// pick 按列表序号（从 1 开始）查找对话。
func (a *App) pick(arg string) (model.Conversation, bool) {
	list := a.chat.Conversations()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(list) {
		fmt.Fprintf(a.out, "无效的序号 %q，使用 /list 查看对话。\n", arg)
		return model.Conversation{}, false
	}
	return list[n-1], true
}

func (a *App) delete(ctx context.Context, arg string) {
	var conv model.Conversation
	if arg == "" {
		active, ok := a.chat.Active()
		if !ok {
			fmt.Fprintln(a.out, "当前没有对话。")
			return
		}
		conv = active
	} else {
		picked, ok := a.pick(arg)
		if !ok {
			return
		}
		conv = picked
	}
	if err := a.chat.DeleteChat(ctx, conv.ID); err != nil {
		log.Warnf("删除对话时持久化失败: %v", err)
	}
	fmt.Fprintf(a.out, "已删除对话: %s\n", conv.Title)
}

func (a *App) attach(path string) {
	if path == "" {
		fmt.Fprintln(a.out, "用法: /attach <路径>")
		return
	}
	att, err := LoadAttachment(path)
	if err != nil {
		fmt.Fprintf(a.out, "无法附加文件: %v\n", err)
		return
	}
	a.pending = att
	fmt.Fprintf(a.out, "已附加 %s (%s)，将随下一条消息发送。\n", att.Name, att.MimeType)
}

func (a *App) theme(ctx context.Context, name string) {
	if name == "" {
		current := a.onboarding.Theme(ctx)
		names := make([]string, len(service.Themes))
		for i, t := range service.Themes {
			names[i] = string(t)
		}
		fmt.Fprintf(a.out, "当前主题: %s (可选: %s)\n", current, strings.Join(names, ", "))
		return
	}
	theme := service.Theme(strings.ToLower(name))
	if err := a.onboarding.SetTheme(ctx, theme); err != nil {
		fmt.Fprintf(a.out, "无法设置主题: %v\n", err)
		return
	}
	a.renderer = NewRenderer(theme, a.width)
	fmt.Fprintf(a.out, "主题已切换为 %s。\n", theme)
}

func (a *App) signIn(ctx context.Context, tok string) {
	if tok == "" {
		fmt.Fprintln(a.out, "用法: /signin <令牌>")
		return
	}
	prev, hadPrev := a.session.CurrentUser()
	wasPremium := hadPrev && prev.IsPremium
	if err := a.session.SignIn(tok); err != nil {
		fmt.Fprintf(a.out, "登录失败: %v\n", err)
		return
	}
	user, _ := a.session.CurrentUser()
	if hadPrev && prev.UID != user.UID {
		// 未退出就换了账号，共享存储中上一位用户的对话不能留给新用户
		wasPremium = false
		if !a.userScoped {
			if err := a.chat.ClearAll(ctx); err != nil {
				log.Warnf("清空上一位用户的对话失败: %v", err)
			}
		}
	}
	a.reload(ctx)
	fmt.Fprintf(a.out, "已登录为 %s。\n", displayName(user))
	a.maybeOnboarding(ctx)
	a.maybePremiumWelcome(ctx, user, wasPremium)
}

// signOut 结束登录。共享存储上的对话随之删除，按用户隔离的存储只丢弃内存中的对话。
func (a *App) signOut(ctx context.Context) {
	if _, ok := a.session.CurrentUser(); !ok {
		fmt.Fprintln(a.out, "尚未登录。")
		return
	}
	if !a.userScoped {
		if err := a.chat.ClearAll(ctx); err != nil {
			log.Warnf("退出登录时清空对话失败: %v", err)
		}
	}
	a.session.SignOut()
	a.pending = nil
	if a.userScoped {
		a.reload(ctx)
	}
	fmt.Fprintln(a.out, "已退出登录。")
}

// reload 按当前登录用户重新读取对话。
func (a *App) reload(ctx context.Context) {
	res, err := a.chat.Reload(ctx)
	if err != nil {
		log.Warnf("重新读取对话失败: %v", err)
		return
	}
	switch res.Status {
	case repository.LoadCorrupt:
		fmt.Fprintln(a.out, "聊天记录已损坏，已从空白开始。")
	case repository.LoadUnavailable:
		fmt.Fprintln(a.out, "无法读取聊天记录，已从空白开始。")
	}
}

func (a *App) loadHistory(line *liner.State) {
	if a.historyFile == "" {
		return
	}
	if f, err := os.Open(a.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
}

func (a *App) saveHistory(line *liner.State) {
	if a.historyFile == "" {
		return
	}
	f, err := os.OpenFile(a.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		log.Warnf("保存输入历史失败: %v", err)
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}

func displayName(u *model.User) string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.UID
}

const onboardingText = `# 欢迎使用 Mu Assistant

Mekelle University 学生的 AI 助手。

- 直接输入问题即可开始对话，对话只保存在本机。
- 包含 *how*、*why*、*explain*、*solve* 等词的问题会使用深度推理模式，其余问题使用联网搜索模式。
- 使用 ` + "`/attach <路径>`" + ` 附加图片、PDF 或文本文件让助手分析。
- 输入 ` + "`/help`" + ` 查看全部命令。`

const premiumWelcomeText = `# 🎉 欢迎成为高级会员

感谢支持 Mu Assistant！`
