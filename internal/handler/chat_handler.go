package handler

import (
	"net/http"

	"bunker-go/internal/service"
	"bunker-go/pkg/llm"
	"bunker-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ChatHandler 处理会话消息发送。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type sendRequest struct {
	Message string `json:"message" binding:"required,min=1"`
	ModelID string `json:"modelId" binding:"required"`
	Context string `json:"context"`
}

// Send 处理 POST /conversations/:id/send。
// 中继路径立即以 202 返回 pending 确认；Provider 路径以分块文本流响应，
// 流按生成顺序写出，不做重排或额外缓冲。
func (h *ChatHandler) Send(c *gin.Context) {
	conversationID := c.Param("id")

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "message 与 modelId 为必填项: "+err.Error())
		return
	}

	variant, _ := llm.Resolve(req.ModelID)
	if variant == llm.VariantRelay {
		result, err := h.chatService.SendMessage(c.Request.Context(), conversationID, req.Message, req.ModelID, req.Context, nil)
		if err != nil {
			mapServiceError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"success":         true,
			"messageId":       result.UserMessageID,
			"relayMessageId":  result.RelayMessageID,
			"status":          "sent",
			"pendingResponse": true,
		})
		return
	}

	writer := &streamWriter{c: c}
	_, err := h.chatService.SendMessage(c.Request.Context(), conversationID, req.Message, req.ModelID, req.Context, writer)
	if err != nil {
		if writer.started {
			// 响应头已写出，只能记录后关闭流。
			log.Errorf("流式响应中途失败: %v", err)
			return
		}
		mapServiceError(c, err)
		return
	}
	// 流以连接关闭作为结束标记，这里无需再写任何内容。
}

// streamWriter 把流式分块直接写入 HTTP 响应并即时 flush。
// 首个分块到达时才提交 200 响应头，之前的失败仍可返回结构化错误。
type streamWriter struct {
	c       *gin.Context
	started bool
}

// WriteChunk 满足 llm.ChunkWriter 接口。
func (w *streamWriter) WriteChunk(data []byte) error {
	if !w.started {
		w.c.Header("Content-Type", "text/plain; charset=utf-8")
		w.c.Header("Cache-Control", "no-cache")
		w.c.Status(http.StatusOK)
		w.started = true
	}
	if _, err := w.c.Writer.Write(data); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}
