// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/internal/service"
	"mu-assistant-go/pkg/completion"
	"mu-assistant-go/pkg/log"
)

// MissingKeyMessage 是服务端未配置上游密钥时返回的错误信息。
const MissingKeyMessage = "No GEMINI_API_KEY configured on server"

// CompletionHandler 负责处理非流式的补全请求。
type CompletionHandler struct {
	completionService service.CompletionService
}

// NewCompletionHandler 创建一个新的 CompletionHandler。
func NewCompletionHandler(completionService service.CompletionService) *CompletionHandler {
	return &CompletionHandler{completionService: completionService}
}

// Complete 处理 POST /api/v1/completion。
// 响应体只有两种形态：成功时 {"text": ...}，失败时 {"error": ...}。
func (h *CompletionHandler) Complete(c *gin.Context) {
	if !h.completionService.Configured() {
		log.Errorf("补全请求失败: 服务端未配置 GEMINI_API_KEY")
		c.JSON(http.StatusInternalServerError, completion.Response{Error: MissingKeyMessage})
		return
	}

	var req completion.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Complete: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, completion.Response{Error: "Invalid request body"})
		return
	}
	if req.SystemPrompt != "" {
		// 系统提示词以服务端配置为准
		log.Debugf("忽略客户端提供的 systemPrompt")
	}

	text, err := h.completionService.Complete(c.Request.Context(), currentUser(c), service.CompletionRequest{
		History: req.History,
		Mode:    req.Mode,
	})
	if err != nil {
		status, msg := completionErrorStatus(err)
		log.Errorf("补全请求失败: %v", err)
		c.JSON(status, completion.Response{Error: msg})
		return
	}

	c.JSON(http.StatusOK, completion.Response{Text: &text})
}

func completionErrorStatus(err error) (int, string) {
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, vErr.Error()
	}
	return http.StatusBadGateway, "Failed to get response from model"
}

// currentUser 读取 AuthMiddleware 写入的用户，未经认证的路由返回 nil。
func currentUser(c *gin.Context) *model.User {
	v, ok := c.Get("user")
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}
