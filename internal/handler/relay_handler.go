package handler

import (
	"errors"
	"net/http"

	"bunker-go/internal/service"
	"bunker-go/pkg/log"
	"bunker-go/pkg/relay"

	"github.com/gin-gonic/gin"
)

// RelayHandler 处理中继回调与 webhook 管理。
type RelayHandler struct {
	relayService service.RelayService
}

// NewRelayHandler 创建一个新的 RelayHandler。
func NewRelayHandler(relayService service.RelayService) *RelayHandler {
	return &RelayHandler{relayService: relayService}
}

// Webhook 处理 POST /relay/webhook。
// 中继的投递契约要求立即确认以避免重试风暴：除密钥不匹配返回 401 外，
// 一律应答 200 {ok:true}，内部错误只记日志、不外露。
func (h *RelayHandler) Webhook(c *gin.Context) {
	var update relay.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		log.Warnf("中继回调解析失败: %v", err)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	secretHeader := c.GetHeader(relay.SecretTokenHeader)
	if err := h.relayService.HandleInboundUpdate(c.Request.Context(), &update, secretHeader); err != nil {
		if errors.Is(err, service.ErrWebhookUnauthorized) {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "webhook 密钥不匹配")
			return
		}
		log.Error("中继回调处理失败", err)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type relaySetupRequest struct {
	Action     string `json:"action" binding:"required,oneof=set delete info"`
	WebhookURL string `json:"webhookUrl"`
}

// Setup 处理 POST /relay/setup，管理回调注册（set / delete / info）。
func (h *RelayHandler) Setup(c *gin.Context) {
	var req relaySetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "action 必须是 set/delete/info: "+err.Error())
		return
	}

	result, err := h.relayService.SetupWebhook(c.Request.Context(), req.Action, req.WebhookURL)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}
