// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 消息角色常量。system 角色的消息不进入下一次模型调用的上下文窗口。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Project 对应于数据库中的 'projects' 表。
// 仪表盘的项目管理功能不在本服务核心范围内，这里只保留会话路由所需的最小字段。
type Project struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Project) TableName() string {
	return "projects"
}

// Conversation 对应于数据库中的 'conversations' 表。
// UpdatedAt 在每次收发消息时被抬升，且单调不减；按它排序即可得到"最近活跃"。
type Conversation struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProjectID string    `gorm:"type:varchar(36);index;not null" json:"projectId"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	// Model 记录该会话当前选择的模型标识，流式回复落库时一并更新。
	Model     string    `gorm:"type:varchar(128)" json:"model"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"index" json:"updatedAt"`

	// Messages 由会话独占；会话删除时级联删除其消息。
	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Conversation) TableName() string {
	return "conversations"
}

// Message 对应于数据库中的 'messages' 表。
// 消息在会话内按创建时间全序排列，只追加、不修改、不重排。
type Message struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ConversationID string    `gorm:"type:varchar(36);index;not null" json:"conversationId"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"index" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Message) TableName() string {
	return "messages"
}

// Setting 对应于数据库中的 'settings' 表，保存应用级键值配置。
// 凭证解析顺序：环境变量 > settings 表 > integrations 表。
type Setting struct {
	Key       string    `gorm:"type:varchar(128);primaryKey" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Setting) TableName() string {
	return "settings"
}

// Integration 对应于数据库中的 'integrations' 表。
// Config 是一段 JSON，按接入方不同而结构不同（例如 {"apiKey":"..."}）。
type Integration struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Provider  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"provider"`
	Config    string    `gorm:"type:text" json:"config"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Integration) TableName() string {
	return "integrations"
}
