// Package llm provides a client for the upstream Gemini generateContent API.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"mu-assistant-go/internal/config"
	"mu-assistant-go/internal/model"
)

// ErrMissingAPIKey 表示服务端没有配置上游 API Key。
var ErrMissingAPIKey = errors.New("no GEMINI_API_KEY configured on server")

// MessageWriter defines an interface for writing WebSocket messages.
// This allows both a standard websocket.Conn and our interceptor to be used.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// GenerateRequest 描述一次上游调用。模型档位与工具配置由调用方决定。
type GenerateRequest struct {
	Model             string
	History           []model.Turn
	SystemInstruction string
	// WebSearch 为 true 时启用 Google 搜索增强
	WebSearch bool
	// ThinkingBudget 大于 0 时开启扩展思考
	ThinkingBudget int
}

// Client defines the interface for an LLM client.
type Client interface {
	// Configured 报告是否配置了 API Key。
	Configured() bool
	// Generate 一次性返回完整回答。
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	// StreamGenerate 以 SSE 方式调用上游，并将每个文本分块写入 writer。
	StreamGenerate(ctx context.Context, req GenerateRequest, writer MessageWriter) error
}

type geminiClient struct {
	cfg    config.LLMConfig
	client *http.Client
	// streamClient 只限制等待响应头的时间，长回答的流式正文不受整体超时约束
	streamClient *http.Client
}

// NewClient creates a new Gemini client from the config.
func NewClient(cfg config.LLMConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &geminiClient{
		cfg:          cfg,
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{Transport: transport},
	}
}

type content struct {
	Parts []model.Part `json:"parts"`
}

type tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type generationConfig struct {
	ThinkingConfig *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type generateContentRequest struct {
	Contents          []model.Turn      `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

func (c *geminiClient) Configured() bool {
	return c.cfg.APIKey != ""
}

func (c *geminiClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	resp, err := c.do(ctx, c.client, req, ":generateContent", "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read gemini response: %w", err)
	}
	return extractText(body)
}

func (c *geminiClient) StreamGenerate(ctx context.Context, req GenerateRequest, writer MessageWriter) error {
	resp, err := c.do(ctx, c.streamClient, req, ":streamGenerateContent?alt=sse", "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("failed to read from stream: %w", readErr)
		}
		// 最后一行可能没有换行符，先处理再结束
		if err := writeEvent(line, writer); err != nil {
			return err
		}
		if readErr == io.EOF {
			return nil
		}
	}
}

// writeEvent 处理一行 SSE 数据，非 data 行与空文本直接忽略。
func writeEvent(line string, writer MessageWriter) error {
	if !strings.HasPrefix(line, "data: ") {
		return nil
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
	if data == "" || data == "[DONE]" {
		return nil
	}

	text, err := extractText([]byte(data))
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	if err := writer.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("failed to write message to websocket: %w", err)
	}
	return nil
}

func (c *geminiClient) do(ctx context.Context, httpClient *http.Client, req GenerateRequest, method, accept string) (*http.Response, error) {
	if !c.Configured() {
		return nil, ErrMissingAPIKey
	}

	reqBody := generateContentRequest{Contents: req.History}
	if req.SystemInstruction != "" {
		reqBody.SystemInstruction = &content{Parts: []model.Part{{Text: req.SystemInstruction}}}
	}
	if req.WebSearch {
		reqBody.Tools = []tool{{GoogleSearch: &struct{}{}}}
	}
	if req.ThinkingBudget > 0 {
		reqBody.GenerationConfig = &generationConfig{ThinkingConfig: &thinkingConfig{ThinkingBudget: req.ThinkingBudget}}
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s%s", strings.TrimRight(c.cfg.BaseURL, "/"), req.Model, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call gemini api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		msg := gjson.GetBytes(bodyBytes, "error.message").String()
		if msg == "" {
			msg = string(bodyBytes)
		}
		return nil, fmt.Errorf("gemini api returned non-200 status: %s, message: %s", resp.Status, msg)
	}
	return resp, nil
}

// extractText 拼接第一个候选回答中的所有文本片段，跳过思考过程片段。
func extractText(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("invalid gemini response body")
	}
	result := gjson.ParseBytes(body)
	if msg := result.Get("error.message"); msg.Exists() {
		return "", fmt.Errorf("gemini api error: %s", msg.String())
	}
	if reason := result.Get("promptFeedback.blockReason"); reason.Exists() {
		return "", fmt.Errorf("gemini blocked the prompt: %s", reason.String())
	}

	var sb strings.Builder
	result.Get("candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
		if part.Get("thought").Bool() {
			return true
		}
		sb.WriteString(part.Get("text").String())
		return true
	})
	return sb.String(), nil
}
