package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/internal/service"
)

// themeStyles 把界面主题映射到 glamour 的内置样式。
var themeStyles = map[service.Theme]string{
	service.ThemeFuturistic: "dracula",
	service.ThemeNeoDark:    "dark",
	service.ThemeNeoLight:   "light",
	service.ThemeVibrant:    "pink",
}

// Renderer 把 Markdown 渲染成终端文本。初始化失败时退化为原样输出。
type Renderer struct {
	term *glamour.TermRenderer
}

// NewRenderer 按主题创建渲染器。
func NewRenderer(theme service.Theme, width int) *Renderer {
	styleOpt := glamour.WithAutoStyle()
	if style, ok := themeStyles[theme]; ok {
		styleOpt = glamour.WithStandardStyle(style)
	}
	term, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return &Renderer{}
	}
	return &Renderer{term: term}
}

// Render 渲染一段 Markdown，失败时返回原文。
func (r *Renderer) Render(md string) string {
	if r == nil || r.term == nil {
		return md
	}
	out, err := r.term.Render(md)
	if err != nil {
		return md
	}
	return out
}

// ConversationMarkdown 把一个对话转换成 Markdown 文本。
func ConversationMarkdown(conv model.Conversation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", conv.Title)
	if len(conv.History) == 0 {
		sb.WriteString("_暂无消息_\n")
		return sb.String()
	}
	for _, turn := range conv.History {
		speaker := "**Mu Assistant**"
		if turn.Role == model.RoleUser {
			speaker = "**You**"
		}
		fmt.Fprintf(&sb, "%s\n\n", speaker)
		for _, p := range turn.Parts {
			if p.InlineData != nil {
				fmt.Fprintf(&sb, "> 📎 附件 (%s, %d KB)\n\n", p.InlineData.MimeType, len(p.InlineData.Data)/1024)
			}
			if p.Text != "" {
				sb.WriteString(p.Text)
				sb.WriteString("\n\n")
			}
		}
	}
	return sb.String()
}

// ConversationList 格式化对话列表，当前对话以 * 标记。
func ConversationList(list []model.Conversation, activeID string) string {
	if len(list) == 0 {
		return "还没有对话，直接输入消息即可开始。\n"
	}
	var sb strings.Builder
	for i, c := range list {
		marker := " "
		if c.ID == activeID {
			marker = "*"
		}
		created := time.UnixMilli(c.CreatedAt).Format("2006-01-02 15:04")
		fmt.Fprintf(&sb, "%s %2d. %-32s %s  (%d 条消息)\n", marker, i+1, c.Title, created, len(c.History))
	}
	return sb.String()
}
