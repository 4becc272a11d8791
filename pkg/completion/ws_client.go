package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/pkg/mode"
)

// FrameTypeCompletion 标记一次流式响应结束。
const FrameTypeCompletion = "completion"

// Frame 是流式接口下发的单个 JSON 消息。
// 文本分块为 {"chunk":"..."}，结束通知为 {"type":"completion",...}，错误为 {"error":"..."}。
type Frame struct {
	Chunk     *string `json:"chunk,omitempty"`
	Type      string  `json:"type,omitempty"`
	Status    string  `json:"status,omitempty"`
	Message   string  `json:"message,omitempty"`
	Error     string  `json:"error,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
	Date      string  `json:"date,omitempty"`
}

type wsClient struct {
	endpoint string
	tokens   TokenSource
	dialer   *websocket.Dialer
}

// NewWebSocketClient 创建一个通过 WebSocket 真正逐段接收回答的客户端。
// 每次调用建立一条连接，发送一个请求，收到结束通知后关闭。
func NewWebSocketClient(endpoint string, tokens TokenSource) Client {
	return &wsClient{endpoint: endpoint, tokens: tokens, dialer: websocket.DefaultDialer}
}

func (c *wsClient) Complete(ctx context.Context, history []model.Turn, m model.Mode) (string, error) {
	var sb strings.Builder
	err := c.Stream(ctx, history, m, func(chunk string) error {
		sb.WriteString(chunk)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (c *wsClient) Stream(ctx context.Context, history []model.Turn, m model.Mode, onChunk func(string) error) error {
	if m == "" {
		m = mode.FromHistory(history)
	}

	target, header, err := c.dialTarget()
	if err != nil {
		return err
	}
	conn, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		te := &TransportError{Err: err}
		if resp != nil {
			te.StatusCode = resp.StatusCode
		}
		return te
	}
	defer conn.Close()

	// ctx 取消时关闭连接，使阻塞中的 ReadMessage 返回
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	reqBytes, err := json.Marshal(Request{History: history, Mode: m})
	if err != nil {
		return fmt.Errorf("failed to marshal completion request: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, reqBytes); err != nil {
		return &TransportError{Err: err}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return &TransportError{Err: err}
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			return &ProtocolError{Body: string(data), Err: err}
		}
		switch {
		case f.Error != "":
			return &TransportError{Message: f.Error}
		case f.Chunk != nil:
			if *f.Chunk == "" {
				continue
			}
			if err := onChunk(*f.Chunk); err != nil {
				return err
			}
		case f.Type == FrameTypeCompletion:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		default:
			return &ProtocolError{Body: string(data), Err: errors.New("unexpected frame")}
		}
	}
}

func (c *wsClient) dialTarget() (string, http.Header, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid stream endpoint: %w", err)
	}
	header := http.Header{}
	if c.tokens != nil {
		if tok := c.tokens.AccessToken(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}
	return u.String(), header, nil
}
