package dto

// ConversationSummary is one row of the conversation list, scanned directly
// from the conversations table joined with its first message.
type ConversationSummary struct {
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id"`
	Title          string `json:"title" gorm:"column:title"`
	FirstMessage   string `json:"first_message" gorm:"column:first_message"`
	MessageCount   int    `json:"message_count" gorm:"column:message_count"`
	CreatedTime    int64  `json:"-" gorm:"column:created_time"`
	UpdatedTime    int64  `json:"-" gorm:"column:updated_time"`
	// CreatedAt and LastUpdated are RFC3339 renderings filled after the scan.
	CreatedAt   string `json:"created_at" gorm:"-"`
	LastUpdated string `json:"last_updated" gorm:"-"`
}

// HistoryMessage is a stored message as returned to the front-end.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"`
}
