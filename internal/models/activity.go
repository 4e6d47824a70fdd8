package models

import "time"

// ChatActivity tracks how a chat has interacted with the bot
type ChatActivity struct {
	ChatID            int64     `json:"chat_id"`
	Username          string    `json:"username"`
	LastCommand       string    `json:"last_command"`
	Interactions      int64     `json:"interactions"`
	LastInteractionAt time.Time `json:"last_interaction_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
