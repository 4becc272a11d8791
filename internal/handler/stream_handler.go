package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mu-assistant-go/internal/service"
	"mu-assistant-go/pkg/completion"
	"mu-assistant-go/pkg/log"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// StreamHandler 负责处理 WebSocket 流式补全连接。
// 一条连接上可以依次发送多个请求，每个请求以一条 completion 通知结束。
type StreamHandler struct {
	completionService service.CompletionService
}

// NewStreamHandler 创建一个新的 StreamHandler。
func NewStreamHandler(completionService service.CompletionService) *StreamHandler {
	return &StreamHandler{completionService: completionService}
}

// chunkWriter 拦截上游的原始文本分块，包装成 {"chunk": ...} 帧后写回连接。
type chunkWriter struct {
	conn *websocket.Conn
}

func (w *chunkWriter) WriteMessage(_ int, data []byte) error {
	chunk := string(data)
	return writeFrame(w.conn, completion.Frame{Chunk: &chunk})
}

// Handle 处理一个传入的 WebSocket 连接。
func (h *StreamHandler) Handle(c *gin.Context) {
	if !h.completionService.Configured() {
		log.Errorf("流式补全请求失败: 服务端未配置 GEMINI_API_KEY")
		c.JSON(http.StatusInternalServerError, completion.Response{Error: MissingKeyMessage})
		return
	}
	user := currentUser(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	if user != nil {
		log.Infof("WebSocket 连接已建立，用户: %s", user.UID)
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		var req completion.Request
		if err := json.Unmarshal(message, &req); err != nil {
			log.Warnf("无法解析 WebSocket 请求: %v", err)
			_ = writeFrame(conn, completion.Frame{Error: "Invalid request body"})
			_ = writeCompletion(conn)
			continue
		}

		err = h.completionService.StreamComplete(c.Request.Context(), user, service.CompletionRequest{
			History: req.History,
			Mode:    req.Mode,
		}, &chunkWriter{conn: conn})
		if err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			_, msg := completionErrorStatus(err)
			if werr := writeFrame(conn, completion.Frame{Error: msg}); werr != nil {
				break
			}
		}
		if err := writeCompletion(conn); err != nil {
			log.Warnf("发送完成通知失败: %v", err)
			break
		}
	}
}

func writeFrame(conn *websocket.Conn, f completion.Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

func writeCompletion(conn *websocket.Conn) error {
	now := time.Now()
	return writeFrame(conn, completion.Frame{
		Type:      completion.FrameTypeCompletion,
		Status:    "finished",
		Message:   "响应已完成",
		Timestamp: now.UnixMilli(),
		Date:      now.Format("2006-01-02T15:04:05"),
	})
}
