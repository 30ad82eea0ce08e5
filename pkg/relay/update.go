package relay

// Update 是中继回调投递的原生更新信封。
// 回调没有可靠的关联 id，会话归属由上层按启发式决定。
type Update struct {
	UpdateID      int64            `json:"update_id"`
	Message       *IncomingMessage `json:"message"`
	EditedMessage *IncomingMessage `json:"edited_message"`
}

// IncomingMessage 是更新中携带的（可能不带文本的）消息。
type IncomingMessage struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
}

// User 是消息发送方。
type User struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username"`
}

// Chat 是消息来源频道。
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// FirstText 返回更新中第一条带文本的消息（message 优先于 edited_message）。
// 没有文本消息时返回 nil——这类更新不是错误，直接丢弃即可。
func (u *Update) FirstText() *IncomingMessage {
	if u.Message != nil && u.Message.Text != "" {
		return u.Message
	}
	if u.EditedMessage != nil && u.EditedMessage.Text != "" {
		return u.EditedMessage
	}
	return nil
}
