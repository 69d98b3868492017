package chat

import "time"

// Chat is one saved conversation thread. Name is unique across all
// chats; Model is the completion model currently associated with the
// thread and may change over its life.
type Chat struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"name"`
	Model     string    `gorm:"type:varchar(64);not null" json:"model"`
	CreatedAt time.Time `json:"created_at"`

	Messages []Message `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Jobs     []TurnJob `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Chat) TableName() string { return "chats" }

// Message is append-only: rows are never updated or reordered after
// insertion and are removed only by the cascade when the owning chat is
// deleted. Model records the model in effect when this message was
// produced, which can differ from the chat's current model.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID    uint64    `gorm:"index;not null" json:"chat_id"`
	Model     string    `gorm:"type:varchar(64);not null" json:"model"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "messages" }
