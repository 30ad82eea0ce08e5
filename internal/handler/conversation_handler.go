package handler

import (
	"net/http"

	"bunker-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理会话的最小管理面。
type ConversationHandler struct {
	conversationService service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(conversationService service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

type createConversationRequest struct {
	ProjectID string `json:"projectId" binding:"required"`
	Title     string `json:"title"`
	ModelID   string `json:"modelId"`
}

// Create 处理 POST /conversations，新建一个会话。
func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "projectId 为必填项: "+err.Error())
		return
	}

	conv, err := h.conversationService.Create(c.Request.Context(), req.ProjectID, req.Title, req.ModelID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// Messages 处理 GET /conversations/:id/messages，按创建顺序返回消息历史。
func (h *ConversationHandler) Messages(c *gin.Context) {
	messages, err := h.conversationService.Messages(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
