// Package model 包含了应用的数据模型定义。
package model

// Mode 表示一次回答使用的响应模式，决定上游模型档位与工具配置。
type Mode string

const (
	ModeSearch    Mode = "search"
	ModeReasoning Mode = "reasoning"
)

// Role 是对话中一条消息的角色。
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// InlineData 是以内联方式携带的二进制附件。Data 在 JSON 中按 base64 编码。
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Part 是一条消息中的一个片段：要么是文本，要么是内联附件。
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// Turn 代表对话历史中的一条消息，结构与上游 Content 保持一致。
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Text 返回消息中第一个非空文本片段。
func (t Turn) Text() string {
	for _, p := range t.Parts {
		if p.Text != "" {
			return p.Text
		}
	}
	return ""
}

// HasContent 判断消息是否至少包含一个非空文本或一个附件。
func (t Turn) HasContent() bool {
	for _, p := range t.Parts {
		if p.Text != "" || p.InlineData != nil {
			return true
		}
	}
	return false
}

// Clone 深拷贝一条消息，附件数据共享底层只读切片。
func (t Turn) Clone() Turn {
	parts := make([]Part, len(t.Parts))
	for i, p := range t.Parts {
		parts[i] = Part{Text: p.Text}
		if p.InlineData != nil {
			d := *p.InlineData
			parts[i].InlineData = &d
		}
	}
	return Turn{Role: t.Role, Parts: parts}
}

// TextTurn 构造一条只含文本的消息。
func TextTurn(role Role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

// Conversation 代表一次独立的多轮对话。
type Conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	History   []Turn `json:"history"`
	CreatedAt int64  `json:"createdAt"` // 毫秒时间戳，仅用于排序
	Mode      Mode   `json:"mode,omitempty"`
}

// Clone 深拷贝一个对话，调用方可以随意修改返回值。
func (c Conversation) Clone() Conversation {
	out := c
	out.History = make([]Turn, len(c.History))
	for i, t := range c.History {
		out.History[i] = t.Clone()
	}
	return out
}
