package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mu-assistant-go/internal/service"
	"mu-assistant-go/pkg/log"
)

// UsageHandler 负责查询当前用户的补全用量。
type UsageHandler struct {
	usageService service.UsageService
}

// NewUsageHandler 创建一个新的 UsageHandler。usageService 为 nil 表示未启用用量统计。
func NewUsageHandler(usageService service.UsageService) *UsageHandler {
	return &UsageHandler{usageService: usageService}
}

// GetUsage 返回当前用户按模式统计的调用次数。
func (h *UsageHandler) GetUsage(c *gin.Context) {
	if h.usageService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "用量统计未启用", "data": nil})
		return
	}
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无法获取用户信息", "data": nil})
		return
	}

	usage, err := h.usageService.GetUserUsage(c.Request.Context(), user.UID)
	if err != nil {
		log.Errorf("获取用户用量失败, uid: %s, error: %v", user.UID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取用量失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": usage})
}
