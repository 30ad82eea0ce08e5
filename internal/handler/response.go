// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"bunker-go/internal/service"

	"github.com/gin-gonic/gin"
)

// respondError 以统一的 {error:{code,message}} 结构返回同步失败。
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// mapServiceError 把业务层错误映射为对应的 HTTP 状态与错误码。
// 配置类错误按缺失的配置项区分报告，不合并成笼统失败。
func mapServiceError(c *gin.Context, err error) {
	var noKey *service.NoAPIKeyError
	switch {
	case errors.Is(err, service.ErrConversationNotFound),
		errors.Is(err, service.ErrProjectNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.As(err, &noKey), errors.Is(err, service.ErrRelayTokenMissing):
		respondError(c, http.StatusBadRequest, "NO_API_KEY", err.Error())
	case errors.Is(err, service.ErrRelayChatMissing):
		respondError(c, http.StatusBadRequest, "CONFIG_ERROR", err.Error())
	case errors.Is(err, service.ErrWebhookURLMissing), errors.Is(err, service.ErrUnknownSetupAction):
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "CHAT_FAILED", "聊天请求处理失败")
	}
}
