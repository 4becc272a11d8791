// Package completion 提供了调用远程补全接口的客户端。
// 客户端只负责传输：把对话记录和模式发给服务端，拿回文本。展示节奏由 pacing 包处理。
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/pkg/mode"
)

// Client 定义了补全客户端的接口。
type Client interface {
	// Complete 发送完整对话记录，返回完整的回答文本。
	Complete(ctx context.Context, history []model.Turn, m model.Mode) (string, error)
	// Stream 与 Complete 相同，但文本每到达一段就调用一次 onChunk。
	// onChunk 返回错误会中止本次调用并原样返回该错误。
	Stream(ctx context.Context, history []model.Turn, m model.Mode, onChunk func(string) error) error
}

// TokenSource 提供调用接口所需的访问令牌。
type TokenSource interface {
	AccessToken() string
}

// Request 是补全接口的请求体。
type Request struct {
	History      []model.Turn `json:"history"`
	Mode         model.Mode   `json:"mode"`
	SystemPrompt string       `json:"systemPrompt,omitempty"`
}

// Response 是补全接口的响应体。
type Response struct {
	Text  *string `json:"text,omitempty"`
	Error string  `json:"error,omitempty"`
}

// maxErrorBody 限制读取错误响应体的大小
const maxErrorBody = 64 * 1024

type httpClient struct {
	endpoint string
	tokens   TokenSource
	client   *http.Client
}

// NewHTTPClient 创建一个通过单次 HTTP POST 获取完整回答的客户端。
// client 为 nil 时使用不带超时的默认客户端，与接口约定一致：超时交给传输层。
func NewHTTPClient(endpoint string, tokens TokenSource, client *http.Client) Client {
	if client == nil {
		client = &http.Client{}
	}
	return &httpClient{endpoint: endpoint, tokens: tokens, client: client}
}

func (c *httpClient) Complete(ctx context.Context, history []model.Turn, m model.Mode) (string, error) {
	if m == "" {
		m = mode.FromHistory(history)
	}
	reqBytes, err := json.Marshal(Request{History: history, Mode: m})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		if tok := c.tokens.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		te := &TransportError{StatusCode: resp.StatusCode}
		var body Response
		if json.Unmarshal(bodyBytes, &body) == nil && body.Error != "" {
			te.Message = body.Error
		} else {
			te.Message = string(bodyBytes)
		}
		return "", te
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	var body Response
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return "", &ProtocolError{Body: string(bodyBytes), Err: err}
	}
	if body.Text == nil {
		return "", &ProtocolError{Body: string(bodyBytes), Err: errors.New("missing text field")}
	}
	return *body.Text, nil
}

// Stream 对非流式接口而言只有一次到达：完整文本作为唯一的分块交给 onChunk。
func (c *httpClient) Stream(ctx context.Context, history []model.Turn, m model.Mode, onChunk func(string) error) error {
	text, err := c.Complete(ctx, history, m)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return onChunk(text)
}
