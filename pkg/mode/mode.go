// Package mode 根据用户输入的文本选择响应模式。
package mode

import (
	"strings"

	"mu-assistant-go/internal/model"
)

// reasoningKeywords 命中任意一个即走 reasoning 模式。
// 使用子串匹配而不是整词匹配，"howdy" 也会命中 "how"。
var reasoningKeywords = []string{
	"how",
	"why",
	"explain",
	"prove",
	"derive",
	"solve",
	"calculate",
	"step by step",
	"analyze",
	"analyse",
	"compare",
	"dkl",
}

// Detect 将提示词映射为响应模式，大小写不敏感。
func Detect(prompt string) model.Mode {
	lower := strings.ToLower(prompt)
	for _, k := range reasoningKeywords {
		if strings.Contains(lower, k) {
			return model.ModeReasoning
		}
	}
	return model.ModeSearch
}

// FromHistory 在调用方未指定模式时，根据最后一条用户消息推断模式。
func FromHistory(history []model.Turn) model.Mode {
	if len(history) == 0 {
		return model.ModeSearch
	}
	last := history[len(history)-1]
	if last.Role != model.RoleUser {
		return model.ModeSearch
	}
	if text := last.Text(); text != "" {
		return Detect(text)
	}
	return model.ModeSearch
}

// Parse 解析来自请求或配置的模式字符串。
func Parse(s string) (model.Mode, bool) {
	switch model.Mode(strings.ToLower(strings.TrimSpace(s))) {
	case model.ModeSearch:
		return model.ModeSearch, true
	case model.ModeReasoning:
		return model.ModeReasoning, true
	}
	return "", false
}
