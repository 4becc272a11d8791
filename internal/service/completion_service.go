package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mu-assistant-go/internal/config"
	"mu-assistant-go/internal/model"
	"mu-assistant-go/pkg/llm"
	"mu-assistant-go/pkg/log"
	"mu-assistant-go/pkg/mode"
)

// UsagePublisher 发布用量事件。实现可以是 Kafka 生产者，也可以为空。
type UsagePublisher interface {
	Publish(ctx context.Context, event model.UsageEvent) error
}

// CompletionRequest 是服务端收到的一次补全请求。
type CompletionRequest struct {
	History []model.Turn
	Mode    model.Mode
}

// CompletionService 是服务端的补全代理：选择模型档位、附加系统提示词，然后调用上游。
// 服务端不保存任何对话。
type CompletionService interface {
	Configured() bool
	Complete(ctx context.Context, user *model.User, req CompletionRequest) (string, error)
	StreamComplete(ctx context.Context, user *model.User, req CompletionRequest, writer llm.MessageWriter) error
}

type completionService struct {
	llmClient         llm.Client
	cfg               config.LLMConfig
	systemInstruction string
	usage             UsagePublisher
}

// NewCompletionService 创建一个新的 CompletionService 实例。usage 可以为 nil。
func NewCompletionService(llmClient llm.Client, cfg config.LLMConfig, usage UsagePublisher) CompletionService {
	return &completionService{
		llmClient:         llmClient,
		cfg:               cfg,
		systemInstruction: BuildSystemInstruction(cfg.Prompt),
		usage:             usage,
	}
}

// BuildSystemInstruction 拼装系统提示词：人设、身份问答的固定回答、其余规则。
func BuildSystemInstruction(p config.LLMPromptConfig) string {
	var sb strings.Builder
	if p.Persona != "" {
		sb.WriteString(p.Persona)
		sb.WriteString("\n")
	}
	if p.IdentityAnswer != "" {
		// 固定回答原样嵌入，不做转义，换行也要保留
		sb.WriteString("If a user asks \"who are you?\", \"who created you?\", \"who made you?\", \"your creator\", \"your name\" " +
			"or any question directly related to your identity or origin, you MUST answer ONLY with the following exact sentence: \"" +
			p.IdentityAnswer + "\". This rule overrides every other instruction.\n")
	}
	sb.WriteString(p.Rules)
	return strings.TrimSpace(sb.String())
}

func (s *completionService) Configured() bool {
	return s.llmClient.Configured()
}

func (s *completionService) Complete(ctx context.Context, user *model.User, req CompletionRequest) (string, error) {
	genReq, m, err := s.buildRequest(req)
	if err != nil {
		return "", err
	}
	start := time.Now()
	text, err := s.llmClient.Generate(ctx, genReq)
	s.publish(ctx, user, m, genReq.Model, start, err)
	if err != nil {
		return "", fmt.Errorf("upstream completion failed: %w", err)
	}
	return text, nil
}

func (s *completionService) StreamComplete(ctx context.Context, user *model.User, req CompletionRequest, writer llm.MessageWriter) error {
	genReq, m, err := s.buildRequest(req)
	if err != nil {
		return err
	}
	start := time.Now()
	err = s.llmClient.StreamGenerate(ctx, genReq, writer)
	s.publish(ctx, user, m, genReq.Model, start, err)
	if err != nil {
		return fmt.Errorf("upstream stream failed: %w", err)
	}
	return nil
}

// buildRequest 校验请求并按模式选择上游配置。模式缺失时根据最后一条用户消息推断。
func (s *completionService) buildRequest(req CompletionRequest) (llm.GenerateRequest, model.Mode, error) {
	if len(req.History) == 0 {
		return llm.GenerateRequest{}, "", &ValidationError{Reason: "history is empty"}
	}
	for i, t := range req.History {
		if t.Role != model.RoleUser && t.Role != model.RoleModel {
			return llm.GenerateRequest{}, "", &ValidationError{Reason: fmt.Sprintf("turn %d has unknown role %q", i, t.Role)}
		}
	}

	m, ok := mode.Parse(string(req.Mode))
	if !ok {
		m = mode.FromHistory(req.History)
	}

	genReq := llm.GenerateRequest{
		History:           req.History,
		SystemInstruction: s.systemInstruction,
	}
	switch m {
	case model.ModeReasoning:
		genReq.Model = s.cfg.ReasoningModel
		genReq.ThinkingBudget = s.cfg.ThinkingBudget
	default:
		genReq.Model = s.cfg.SearchModel
		genReq.WebSearch = true
	}
	return genReq, m, nil
}

func (s *completionService) publish(ctx context.Context, user *model.User, m model.Mode, modelName string, start time.Time, callErr error) {
	if s.usage == nil {
		return
	}
	event := model.UsageEvent{
		Mode:      m,
		Model:     modelName,
		Status:    "ok",
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: time.Now().UnixMilli(),
	}
	if user != nil {
		event.UserID = user.UID
	}
	if callErr != nil {
		event.Status = "error"
	}
	// 用量统计失败不影响回答
	if err := s.usage.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Warnf("发送用量事件失败: %v", err)
	}
}
