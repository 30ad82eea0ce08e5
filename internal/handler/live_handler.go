package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bunker-go/pkg/bus"
	"bunker-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// heartbeatInterval 是推送通道的心跳间隔，防止中间代理掐断空闲连接。
const heartbeatInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// LiveHandler 处理会话更新的服务端推送通道（SSE 与 WebSocket 两种传输）。
type LiveHandler struct {
	broadcaster *bus.Broadcaster
}

// NewLiveHandler 创建一个新的 LiveHandler。
func NewLiveHandler(broadcaster *bus.Broadcaster) *LiveHandler {
	return &LiveHandler{broadcaster: broadcaster}
}

// subscribeBuffered 订阅会话事件到一个带缓冲的 channel。
// 广播是同步调用，回调里绝不能阻塞，缓冲写不进去就丢弃。
func (h *LiveHandler) subscribeBuffered(conversationID string) (<-chan bus.Event, func()) {
	ch := make(chan bus.Event, 16)
	unsubscribe := h.broadcaster.Subscribe(conversationID, func(ev bus.Event) {
		select {
		case ch <- ev:
		default:
			log.Warnf("会话 %s 的推送缓冲已满，丢弃一条事件", conversationID)
		}
	})
	return ch, unsubscribe
}

// Live 处理 GET /conversations/:id/live，打开一条 SSE 推送通道。
// 打开时发 connected 事件，每次广播发 message 事件，周期性发 heartbeat；
// 客户端断开（请求上下文取消）后无条件注销订阅并释放心跳定时器。
func (h *LiveHandler) Live(c *gin.Context) {
	conversationID := c.Param("id")
	if conversationID == "" {
		conversationID = c.Query("conversationId")
	}

	ch, unsubscribe := h.subscribeBuffered(conversationID)
	heartbeat := time.NewTicker(heartbeatInterval)
	// 清理必须覆盖所有退出路径，包括写出错时。
	defer func() {
		unsubscribe()
		heartbeat.Stop()
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	if err := writeSSE(c, gin.H{"type": "connected", "conversationId": conversationID, "timestamp": time.Now().UnixMilli()}); err != nil {
		return
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			if err := writeSSE(c, gin.H{"type": "heartbeat", "timestamp": time.Now().UnixMilli()}); err != nil {
				return
			}
		case ev := <-ch:
			if err := writeSSE(c, gin.H{"type": "message", "message": ev.Message}); err != nil {
				return
			}
		}
	}
}

// writeSSE 按 SSE 文本协议写出一个 JSON 事件并即时 flush。
func writeSSE(c *gin.Context, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", b); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// LiveWS 处理 GET /conversations/:id/ws，与 SSE 通道等价的 WebSocket 传输。
func (h *LiveHandler) LiveWS(c *gin.Context) {
	conversationID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}

	ch, unsubscribe := h.subscribeBuffered(conversationID)
	heartbeat := time.NewTicker(heartbeatInterval)
	defer func() {
		unsubscribe()
		heartbeat.Stop()
		_ = conn.Close()
	}()

	// 读循环只用于探测客户端断开。
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeJSON := func(payload interface{}) error {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, b)
	}

	if err := writeJSON(gin.H{"type": "connected", "conversationId": conversationID, "timestamp": time.Now().UnixMilli()}); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			if err := writeJSON(gin.H{"type": "heartbeat", "timestamp": time.Now().UnixMilli()}); err != nil {
				return
			}
		case ev := <-ch:
			if err := writeJSON(gin.H{"type": "message", "message": ev.Message}); err != nil {
				return
			}
		}
	}
}
